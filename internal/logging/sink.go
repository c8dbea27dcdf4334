package logging

import (
	"sort"

	"go.uber.org/zap"
)

// Sink writes recorded telemetry as structured records: one log line per
// emission carrying the recorder name, the telemetry kind, the recorder
// context fields, and the caller-supplied attributes.
type Sink struct {
	log *zap.Logger
}

// NewSink wraps a logger as a telemetry sink.
func NewSink(log *zap.Logger) *Sink {
	return &Sink{log: log}
}

// Write emits one telemetry record. telemetryType is "event" or
// "metric"; context holds the recorder context fields (run id, testplan,
// role, recorder name); attrs are the caller-supplied attributes, keys
// emitted in sorted order for stable output.
func (s *Sink) Write(telemetryType, name string, context map[string]string, attrs map[string]any) {
	if s == nil || s.log == nil {
		return
	}

	fields := make([]zap.Field, 0, len(context)+len(attrs)+2)
	fields = append(fields,
		zap.String("telemetry_type", telemetryType),
		zap.String("telemetry_name", name),
	)

	for _, key := range sortedKeys(context) {
		fields = append(fields, zap.String(key, context[key]))
	}
	attrKeys := make([]string, 0, len(attrs))
	for key := range attrs {
		attrKeys = append(attrKeys, key)
	}
	sort.Strings(attrKeys)
	for _, key := range attrKeys {
		fields = append(fields, zap.Any(key, attrs[key]))
	}

	s.log.Info("telemetry", fields...)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
