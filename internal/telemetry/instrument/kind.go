// Package instrument holds the per-process metric-instrument registry:
// a table mapping metric kinds to live instruments (counters,
// histograms, sampled gauges) created through the export backend's
// meter, with the sampling callbacks attached to them.
package instrument

// Kind identifies one metric instrument within a process.
type Kind string

const (
	TestLifecycle   Kind = "test_lifecycle"
	RequestDuration Kind = "request_duration"
	RequestStats    Kind = "request_stats"
	EndpointStats   Kind = "endpoint_stats"
	EndpointErrors  Kind = "endpoint_errors"
	CPUUsage        Kind = "cpu_usage"
	MemoryUsage     Kind = "memory_usage"
	NetworkBytes    Kind = "network_bytes"
	ActiveUserCount Kind = "active_user_count"
	CPUWarning      Kind = "cpu_warning"
)

// Shape selects the underlying instrument type.
type Shape string

const (
	ShapeCounter   Shape = "counter"
	ShapeHistogram Shape = "histogram"
	ShapeGauge     Shape = "gauge"
)

type definition struct {
	name        string
	description string
}

var definitions = map[Kind]definition{
	TestLifecycle:   {"loadfire.test.events", "Test lifecycle event timestamps"},
	RequestDuration: {"loadfire.requests.duration", "Request duration distributions"},
	RequestStats:    {"loadfire.requests.count", "Cumulative count of executed requests"},
	EndpointStats:   {"loadfire.requests.endpoint.count", "Per-endpoint request counts"},
	EndpointErrors:  {"loadfire.requests.endpoint.errors", "Per-endpoint error occurrences"},
	CPUUsage:        {"loadfire.cpu.usage", "CPU utilization percentage of the process"},
	MemoryUsage:     {"loadfire.memory.usage", "Resident memory usage (RSS) of the process"},
	NetworkBytes:    {"loadfire.network.bytes", "Bytes sent and received over the network"},
	ActiveUserCount: {"loadfire.users.count", "Number of active simulated users"},
	CPUWarning:      {"loadfire.test.cpu_warning", "CPU warning events with usage annotation"},
}

// MetricName returns the exported metric name for the kind. Unknown
// kinds fall back to their raw value.
func (k Kind) MetricName() string {
	if def, ok := definitions[k]; ok {
		return def.name
	}
	return string(k)
}

// Description returns the human-readable metric description.
func (k Kind) Description() string {
	return definitions[k].description
}
