package harness

import "sync"

// Lifecycle and run event names fired by the harness.
const (
	EventInit           = "init"
	EventRunStart       = "run_start"
	EventRunStop        = "run_stop"
	EventRampUpComplete = "ramp_up_complete"
	EventRequest        = "request"
	EventCPUWarning     = "cpu_warning"
)

// RunInfo is the payload of EventRunStart.
type RunInfo struct {
	NumUsers int
	Profile  string
}

// RequestResult is the payload of EventRequest: one completed request.
// Headers carries the trace context stamped onto the request, empty
// when injection is off.
type RequestResult struct {
	Endpoint   string
	Method     string
	DurationMs float64
	Failed     bool
	Headers    map[string]string
}

// CPUWarning is the payload of EventCPUWarning.
type CPUWarning struct {
	Usage   float64
	Message string
}

// Handler receives the payload fired with an event.
type Handler func(payload any)

// HandlerID identifies a subscription for later removal.
type HandlerID int

// Events is the per-process lifecycle event bus. Handlers for one event
// run sequentially, in subscription order, on the firing goroutine.
// Handlers subscribed while an event is being dispatched are invoked in
// that same dispatch; this lets a run-start handler construct recorders
// whose own run-start handlers still observe the current run.
type Events struct {
	mu       sync.Mutex
	nextID   HandlerID
	handlers map[string][]subscription
}

type subscription struct {
	id HandlerID
	fn Handler
}

// NewEvents creates an empty event bus.
func NewEvents() *Events {
	return &Events{handlers: make(map[string][]subscription)}
}

// Subscribe registers a handler for the named event and returns its id.
func (e *Events) Subscribe(name string, fn Handler) HandlerID {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.handlers[name] = append(e.handlers[name], subscription{id: e.nextID, fn: fn})
	return e.nextID
}

// Unsubscribe removes the handler with the given id from the named event.
// Unknown ids are ignored.
func (e *Events) Unsubscribe(name string, id HandlerID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	subs := e.handlers[name]
	for i, sub := range subs {
		if sub.id == id {
			e.handlers[name] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Fire invokes all handlers for the named event in order. The handler
// list is re-read between invocations so handlers added during dispatch
// still run.
func (e *Events) Fire(name string, payload any) {
	for i := 0; ; i++ {
		e.mu.Lock()
		subs := e.handlers[name]
		if i >= len(subs) {
			e.mu.Unlock()
			return
		}
		fn := subs[i].fn
		e.mu.Unlock()
		fn(payload)
	}
}
