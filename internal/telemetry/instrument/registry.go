package instrument

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrAlreadyRegistered is returned when a kind is registered twice
	// without an intervening Deregister.
	ErrAlreadyRegistered = errors.New("instrument already registered")
	// ErrNotRegistered is returned for operations on a kind with no
	// live instrument.
	ErrNotRegistered = errors.New("instrument not registered")
	// ErrShapeMismatch is returned when an operation does not apply to
	// the instrument's shape, such as recording into a gauge.
	ErrShapeMismatch = errors.New("operation not supported for instrument shape")
)

// Observation is a single sampled value with its attributes, produced
// by a gauge callback at collection time.
type Observation struct {
	Value float64
	Attrs map[string]any
}

// Callback produces the current observations for a sampled gauge. It
// runs on the metric reader's collection goroutine.
type Callback func() []Observation

type entry struct {
	shape        Shape
	counter      metric.Float64Counter
	histogram    metric.Float64Histogram
	gauge        metric.Float64ObservableGauge
	callbacks    []Callback
	registration metric.Registration
}

// Registry tracks the live instruments of one process. Registration
// and sampling can race with the reader's collection pass, so all
// state changes hold the registry lock.
type Registry struct {
	meter metric.Meter

	mu      sync.Mutex
	entries map[Kind]*entry
}

// NewRegistry returns an empty registry creating instruments through
// the given meter.
func NewRegistry(meter metric.Meter) *Registry {
	return &Registry{
		meter:   meter,
		entries: make(map[Kind]*entry),
	}
}

// Register creates the instrument for the kind. Gauge kinds accept
// sampling callbacks; when at least one callback is supplied the gauge
// starts sampling immediately. Registering an already-registered kind
// returns ErrAlreadyRegistered.
func (r *Registry) Register(kind Kind, unit string, shape Shape, callbacks ...Callback) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[kind]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, kind)
	}

	e := &entry{shape: shape}
	var err error
	switch shape {
	case ShapeCounter:
		e.counter, err = r.meter.Float64Counter(kind.MetricName(),
			metric.WithDescription(kind.Description()),
			metric.WithUnit(unit))
	case ShapeHistogram:
		e.histogram, err = r.meter.Float64Histogram(kind.MetricName(),
			metric.WithDescription(kind.Description()),
			metric.WithUnit(unit))
	case ShapeGauge:
		e.gauge, err = r.meter.Float64ObservableGauge(kind.MetricName(),
			metric.WithDescription(kind.Description()),
			metric.WithUnit(unit))
	default:
		return fmt.Errorf("unknown instrument shape %q", shape)
	}
	if err != nil {
		return fmt.Errorf("create %s instrument: %w", kind, err)
	}

	r.entries[kind] = e
	if shape == ShapeGauge && len(callbacks) > 0 {
		e.callbacks = append(e.callbacks, callbacks...)
		if err := r.activateLocked(kind, e); err != nil {
			delete(r.entries, kind)
			return err
		}
	}
	return nil
}

// AddCallbacks attaches sampling callbacks to a registered gauge. If
// the gauge was idle it starts sampling.
func (r *Registry) AddCallbacks(kind Kind, callbacks ...Callback) error {
	if len(callbacks) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, kind)
	}
	if e.shape != ShapeGauge {
		return fmt.Errorf("%w: %s is a %s", ErrShapeMismatch, kind, e.shape)
	}

	e.callbacks = append(e.callbacks, callbacks...)
	if e.registration == nil {
		return r.activateLocked(kind, e)
	}
	return nil
}

// RemoveCallbacks detaches all sampling callbacks from a registered
// gauge and stops its collection. The gauge stays registered and can
// resume sampling through AddCallbacks.
func (r *Registry) RemoveCallbacks(kind Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, kind)
	}
	if e.shape != ShapeGauge {
		return fmt.Errorf("%w: %s is a %s", ErrShapeMismatch, kind, e.shape)
	}

	e.callbacks = nil
	return r.deactivateLocked(e)
}

// Deregister removes the kind's instrument, stopping any gauge
// sampling first. It reports whether an instrument was removed;
// deregistering a missing kind is a no-op.
func (r *Registry) Deregister(kind Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[kind]
	if !ok {
		return false
	}
	_ = r.deactivateLocked(e)
	delete(r.entries, kind)
	return true
}

// Registered reports whether the kind currently has a live instrument.
func (r *Registry) Registered(kind Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[kind]
	return ok
}

// Kinds returns the currently registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]Kind, 0, len(r.entries))
	for k := range r.entries {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Record writes a synchronous measurement into the kind's counter or
// histogram. Gauges are sampled, not recorded into, and return
// ErrShapeMismatch.
func (r *Registry) Record(ctx context.Context, kind Kind, value float64, attrs map[string]any) error {
	r.mu.Lock()
	e, ok := r.entries[kind]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, kind)
	}

	opt := metric.WithAttributes(Attributes(attrs)...)
	switch e.shape {
	case ShapeCounter:
		e.counter.Add(ctx, value, opt)
	case ShapeHistogram:
		e.histogram.Record(ctx, value, opt)
	default:
		return fmt.Errorf("%w: %s is a %s", ErrShapeMismatch, kind, e.shape)
	}
	return nil
}

// Close deregisters every remaining instrument.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for kind, e := range r.entries {
		_ = r.deactivateLocked(e)
		delete(r.entries, kind)
	}
}

func (r *Registry) activateLocked(kind Kind, e *entry) error {
	reg, err := r.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		r.mu.Lock()
		callbacks := make([]Callback, len(e.callbacks))
		copy(callbacks, e.callbacks)
		r.mu.Unlock()
		for _, cb := range callbacks {
			for _, obs := range cb() {
				o.ObserveFloat64(e.gauge, obs.Value, metric.WithAttributes(Attributes(obs.Attrs)...))
			}
		}
		return nil
	}, e.gauge)
	if err != nil {
		return fmt.Errorf("start sampling %s: %w", kind, err)
	}
	e.registration = reg
	return nil
}

func (r *Registry) deactivateLocked(e *entry) error {
	if e.registration == nil {
		return nil
	}
	err := e.registration.Unregister()
	e.registration = nil
	return err
}

// Attributes converts a loosely typed attribute map into OTel
// attributes with deterministic key order.
func Attributes(attrs map[string]any) []attribute.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kvs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		switch v := attrs[k].(type) {
		case string:
			kvs = append(kvs, attribute.String(k, v))
		case bool:
			kvs = append(kvs, attribute.Bool(k, v))
		case int:
			kvs = append(kvs, attribute.Int(k, v))
		case int64:
			kvs = append(kvs, attribute.Int64(k, v))
		case uint64:
			kvs = append(kvs, attribute.Int64(k, int64(v)))
		case float64:
			kvs = append(kvs, attribute.Float64(k, v))
		default:
			kvs = append(kvs, attribute.String(k, fmt.Sprint(v)))
		}
	}
	return kvs
}
