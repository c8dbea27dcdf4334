package logrec

import (
	"github.com/platform-crew/loadfire/internal/telemetry"
	"github.com/platform-crew/loadfire/internal/telemetry/instrument"
)

// sampleUsage writes one system usage pass: CPU percent and resident
// memory in MiB. No-op when the process has no resource sampler.
func sampleUsage(r *telemetry.Recorder) error {
	res := r.Process().Resources
	if res == nil {
		return nil
	}
	cpu, err := res.CPUPercent()
	if err != nil {
		return err
	}
	if err := r.RecordMetric(instrument.CPUUsage, cpu, nil); err != nil {
		return err
	}
	rss, err := res.MemoryRSS()
	if err != nil {
		return err
	}
	return r.RecordMetric(instrument.MemoryUsage, float64(rss)/(1<<20), map[string]any{
		"unit": "MiB",
	})
}
