// Package transport provides the one-way asynchronous message channel
// between the primary and its agents. The primary broadcasts typed
// messages; agents dispatch them to registered handlers. There is no
// acknowledgement protocol: sends are fire-and-forget.
package transport

import "sync"

// Handler receives the payload of one message of a registered type.
type Handler func(payload []byte)

// Bus is the message channel surface consumed by the telemetry
// coordinator: Send broadcasts from the primary, RegisterHandler
// subscribes on the receiving side.
type Bus interface {
	Send(msgType string, payload []byte) error
	RegisterHandler(msgType string, fn Handler)
}

// Loopback is an in-process Bus: Send dispatches synchronously to the
// handlers registered on the same instance. It backs single-process
// runs and tests; a primary and agent sharing a Loopback behave like a
// two-process deployment with zero propagation delay.
type Loopback struct {
	mu       sync.Mutex
	handlers map[string][]Handler
}

// NewLoopback creates an empty loopback bus.
func NewLoopback() *Loopback {
	return &Loopback{handlers: make(map[string][]Handler)}
}

// Send dispatches the payload to every handler registered for msgType.
func (l *Loopback) Send(msgType string, payload []byte) error {
	l.mu.Lock()
	fns := append([]Handler(nil), l.handlers[msgType]...)
	l.mu.Unlock()
	for _, fn := range fns {
		fn(payload)
	}
	return nil
}

// RegisterHandler subscribes a handler for msgType.
func (l *Loopback) RegisterHandler(msgType string, fn Handler) {
	l.mu.Lock()
	l.handlers[msgType] = append(l.handlers[msgType], fn)
	l.mu.Unlock()
}
