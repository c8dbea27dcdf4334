package logging

import (
	"bytes"
	"testing"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func bufferedLogger(buf *bytes.Buffer) *zap.Logger {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		MessageKey:  "message",
		LevelKey:    "level",
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	})
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(buf), zapcore.InfoLevel))
}

func TestSinkWritesOneRecordPerEmission(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(bufferedLogger(&buf))

	sink.Write("event", "test_lifecycle",
		map[string]string{"run_id": "r1", "role": "primary"},
		map[string]any{"event": "run started", "num_users": 7},
	)

	line := gjson.Parse(buf.String())
	if got := line.Get("message").String(); got != "telemetry" {
		t.Errorf("message = %q", got)
	}
	if got := line.Get("telemetry_type").String(); got != "event" {
		t.Errorf("telemetry_type = %q", got)
	}
	if got := line.Get("telemetry_name").String(); got != "test_lifecycle" {
		t.Errorf("telemetry_name = %q", got)
	}
	if got := line.Get("run_id").String(); got != "r1" {
		t.Errorf("run_id = %q", got)
	}
	if got := line.Get("num_users").Int(); got != 7 {
		t.Errorf("num_users = %d", got)
	}
}

func TestSinkNilSafety(t *testing.T) {
	var sink *Sink
	sink.Write("event", "x", nil, nil) // must not panic
	NewSink(nil).Write("event", "x", nil, nil)
}
