package logrec

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/platform-crew/loadfire/internal/config"
	"github.com/platform-crew/loadfire/internal/harness"
	"github.com/platform-crew/loadfire/internal/logging"
	"github.com/platform-crew/loadfire/internal/stats"
	"github.com/platform-crew/loadfire/internal/sysres"
	"github.com/platform-crew/loadfire/internal/transport"
)

// captureSink returns a sink whose JSON output lands in the buffer,
// one line per emission.
func captureSink(buf *bytes.Buffer) *logging.Sink {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		MessageKey:  "message",
		LevelKey:    "level",
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(buf), zapcore.InfoLevel)
	return logging.NewSink(zap.New(core))
}

func lines(buf *bytes.Buffer) []gjson.Result {
	var out []gjson.Result
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line != "" {
			out = append(out, gjson.Parse(line))
		}
	}
	return out
}

func find(rows []gjson.Result, name string) []gjson.Result {
	var out []gjson.Result
	for _, row := range rows {
		if row.Get("telemetry_name").String() == name {
			out = append(out, row)
		}
	}
	return out
}

func newPrimaryProcess(agg *stats.Aggregator) *harness.Process {
	cfg := &config.Config{Testplan: "checkout-flow"}
	proc := harness.NewProcess(harness.Primary(), cfg, harness.NewEvents(), transport.NewLoopback(), agg, nil)
	proc.Metadata.Replace(map[string]string{
		harness.MetaRunID:    "run-7",
		harness.MetaTestplan: "checkout-flow",
	})
	return proc
}

func TestPrimaryRunStartedRow(t *testing.T) {
	var buf bytes.Buffer
	proc := newPrimaryProcess(stats.NewAggregator())
	NewPrimaryRecorder(proc, captureSink(&buf))

	proc.Events.Fire(harness.EventRunStart, harness.RunInfo{NumUsers: 12, Profile: "default"})

	rows := find(lines(&buf), "test_lifecycle")
	if len(rows) != 1 {
		t.Fatalf("%d lifecycle rows, want 1", len(rows))
	}
	row := rows[0]
	if got := row.Get("event").String(); got != "run started" {
		t.Fatalf("event = %q", got)
	}
	if got := row.Get("num_users").Int(); got != 12 {
		t.Fatalf("num_users = %d, want 12", got)
	}
	if got := row.Get("run_id").String(); got != "run-7" {
		t.Fatalf("run_id = %q", got)
	}
	if got := row.Get("role").String(); got != "primary" {
		t.Fatalf("role = %q", got)
	}
	if got := row.Get("recorder").String(); got != "log" {
		t.Fatalf("recorder = %q", got)
	}
}

func TestPrimaryRunStopFlushesTables(t *testing.T) {
	var buf bytes.Buffer
	agg := stats.NewAggregator()
	agg.Record(stats.EntryKey{Name: "/login", Method: "POST"}, 120, "")
	agg.Record(stats.EntryKey{Name: "/login", Method: "POST"}, 95, "connection reset")
	agg.Record(stats.EntryKey{Name: "/cart", Method: "GET"}, 40, "")
	agg.SetUserCount(3)

	proc := newPrimaryProcess(agg)
	NewPrimaryRecorder(proc, captureSink(&buf))
	proc.Events.Fire(harness.EventRunStart, harness.RunInfo{NumUsers: 3})
	proc.Events.Fire(harness.EventRunStop, nil)
	proc.Events.Fire(harness.EventRunStop, nil)

	rows := lines(&buf)
	if got := len(find(rows, "endpoint_stats")); got != 2 {
		t.Fatalf("%d endpoint stats rows, want 2", got)
	}
	errRows := find(rows, "endpoint_errors")
	if len(errRows) != 1 {
		t.Fatalf("%d endpoint error rows, want 1", len(errRows))
	}
	if got := errRows[0].Get("error").String(); got != "connection reset" {
		t.Fatalf("error = %q", got)
	}

	// The final CURRENT sample carries percentiles and user count.
	statRows := find(rows, "request_stats")
	if len(statRows) == 0 {
		t.Fatal("no aggregate stats rows")
	}
	last := statRows[len(statRows)-1]
	if got := last.Get("user_count").Int(); got != 3 {
		t.Fatalf("user_count = %d, want 3", got)
	}
	if !last.Get("p95_ms").Exists() || !last.Get("p99_ms").Exists() {
		t.Fatal("aggregate row missing percentile fields")
	}

	// Exactly one "run stopped" despite the duplicated run-stop event.
	var stopped int
	for _, row := range find(rows, "test_lifecycle") {
		if row.Get("event").String() == "run stopped" {
			stopped++
		}
	}
	if stopped != 1 {
		t.Fatalf("%d run-stopped rows, want 1", stopped)
	}
}

func TestPrimaryConsecutiveRuns(t *testing.T) {
	var buf bytes.Buffer
	proc := newPrimaryProcess(stats.NewAggregator())
	NewPrimaryRecorder(proc, captureSink(&buf))

	proc.Events.Fire(harness.EventRunStart, harness.RunInfo{NumUsers: 1})
	proc.Events.Fire(harness.EventRunStop, nil)
	proc.Events.Fire(harness.EventRunStart, harness.RunInfo{NumUsers: 1})
	proc.Events.Fire(harness.EventRunStop, nil)

	var started, stopped int
	for _, row := range find(lines(&buf), "test_lifecycle") {
		switch row.Get("event").String() {
		case "run started":
			started++
		case "run stopped":
			stopped++
		}
	}
	if started != 2 || stopped != 2 {
		t.Fatalf("started=%d stopped=%d, want 2 of each", started, stopped)
	}
}

func TestPrimaryRampUpRow(t *testing.T) {
	var buf bytes.Buffer
	proc := newPrimaryProcess(stats.NewAggregator())
	NewPrimaryRecorder(proc, captureSink(&buf))

	proc.Events.Fire(harness.EventRampUpComplete, 8)

	rows := find(lines(&buf), "test_lifecycle")
	if len(rows) != 1 {
		t.Fatalf("%d lifecycle rows, want 1", len(rows))
	}
	if got := rows[0].Get("user_count").Int(); got != 8 {
		t.Fatalf("user_count = %d, want 8", got)
	}
	if got := rows[0].Get("text").String(); got != "checkout-flow ramp-up complete with 8 users" {
		t.Fatalf("text = %q", got)
	}
}

func TestAgentRequestRow(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{Testplan: "checkout-flow"}
	proc := harness.NewProcess(harness.Agent(1), cfg, harness.NewEvents(), transport.NewLoopback(), nil, nil)
	NewAgentRecorder(proc, captureSink(&buf))

	proc.Events.Fire(harness.EventRequest, harness.RequestResult{
		Endpoint: "/cart", Method: "GET", DurationMs: 52.5, Failed: false,
	})

	rows := find(lines(&buf), "request_duration")
	if len(rows) != 1 {
		t.Fatalf("%d request rows, want 1", len(rows))
	}
	row := rows[0]
	if got := row.Get("value").Float(); got != 52.5 {
		t.Fatalf("value = %v, want 52.5", got)
	}
	if got := row.Get("endpoint").String(); got != "/cart" {
		t.Fatalf("endpoint = %q", got)
	}
	if row.Get("failed").Bool() {
		t.Fatal("failed = true, want false")
	}
	if got := row.Get("role").String(); got != "agent-1" {
		t.Fatalf("role = %q", got)
	}
	// Run id unassigned before metadata arrives; the row still emits.
	if got := row.Get("run_id").String(); got != "" {
		t.Fatalf("run_id = %q, want empty before propagation", got)
	}
}

func TestAgentUsageRows(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{Testplan: "checkout-flow", SampleInterval: 10 * time.Millisecond}
	res := sysres.Static{CPU: 42.5, RSS: 64 << 20}
	proc := harness.NewProcess(harness.Agent(0), cfg, harness.NewEvents(), transport.NewLoopback(), nil, res)
	NewAgentRecorder(proc, captureSink(&buf))

	// Run-stop waits for the sampler loop, which runs a first pass
	// before it can observe the cancellation.
	proc.Events.Fire(harness.EventRunStart, harness.RunInfo{})
	proc.Events.Fire(harness.EventRunStop, nil)

	rows := lines(&buf)
	cpuRows := find(rows, "cpu_usage")
	if len(cpuRows) == 0 {
		t.Fatal("no cpu usage rows")
	}
	if got := cpuRows[0].Get("value").Float(); got != 42.5 {
		t.Fatalf("cpu value = %v, want 42.5", got)
	}
	memRows := find(rows, "memory_usage")
	if len(memRows) == 0 {
		t.Fatal("no memory usage rows")
	}
	if got := memRows[0].Get("value").Float(); got != 64 {
		t.Fatalf("memory value = %v MiB, want 64", got)
	}
}

func TestPluginLoadsAgentThroughSink(t *testing.T) {
	var buf bytes.Buffer
	p := NewWithSink(captureSink(&buf))
	cfg := &config.Config{Testplan: "checkout-flow"}
	proc := harness.NewProcess(harness.Agent(0), cfg, harness.NewEvents(), transport.NewLoopback(), nil, nil)

	if err := p.LoadAgent(proc); err != nil {
		t.Fatalf("load agent: %v", err)
	}
	proc.Events.Fire(harness.EventRequest, harness.RequestResult{
		Endpoint: "/ping", Method: "GET", DurationMs: 5,
	})

	if got := len(find(lines(&buf), "request_duration")); got != 1 {
		t.Fatalf("%d request rows, want 1", got)
	}
}

func TestAgentCPUWarningRow(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{Testplan: "checkout-flow"}
	proc := harness.NewProcess(harness.Agent(0), cfg, harness.NewEvents(), transport.NewLoopback(), nil, nil)
	NewAgentRecorder(proc, captureSink(&buf))

	proc.Events.Fire(harness.EventCPUWarning, harness.CPUWarning{Usage: 91.2, Message: "CPU usage above 90%"})

	rows := find(lines(&buf), "cpu_warning")
	if len(rows) != 1 {
		t.Fatalf("%d warning rows, want 1", len(rows))
	}
	if got := rows[0].Get("cpu_usage").Float(); got != 91.2 {
		t.Fatalf("cpu_usage = %v", got)
	}
}
