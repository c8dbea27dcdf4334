// Package sampler runs a periodic collection function on its own
// goroutine, surviving errors and panics in the function.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned by Start when the sampler has a live
// collection loop.
var ErrAlreadyRunning = errors.New("sampler already running")

// Func is one collection pass. A returned error is logged and the loop
// continues with the next tick.
type Func func() error

// Sampler owns one background collection loop. Start and Stop pair up;
// Stop waits for the loop to exit before returning.
type Sampler struct {
	log *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a stopped sampler logging through log.
func New(log *zap.Logger) *Sampler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sampler{log: log}
}

// Start launches the collection loop. fn runs once immediately, then
// on every interval tick until Stop. Starting a running sampler
// returns ErrAlreadyRunning.
func (s *Sampler) Start(interval time.Duration, fn Func) error {
	if interval <= 0 {
		return fmt.Errorf("sample interval must be positive, got %s", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go s.run(ctx, done, interval, fn)
	return nil
}

// Stop cancels the loop and waits for it to finish. Stopping a stopped
// sampler is a no-op.
func (s *Sampler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a collection loop is live.
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Sampler) run(ctx context.Context, done chan struct{}, interval time.Duration, fn Func) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.collect(fn)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.collect(fn)
		}
	}
}

func (s *Sampler) collect(fn Func) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("sample collection panicked", zap.Any("panic", r))
		}
	}()
	if err := fn(); err != nil {
		s.log.Error("sample collection failed", zap.Error(err))
	}
}
