package sampler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	s := New(zap.NewNop())

	var calls atomic.Int64
	err := s.Start(5*time.Millisecond, func() error {
		calls.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.After(time.Second)
	for calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d collection passes before deadline", calls.Load())
		case <-time.After(time.Millisecond):
		}
	}

	s.Stop()
	if s.Running() {
		t.Fatal("sampler still running after Stop")
	}
	settled := calls.Load()
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != settled {
		t.Fatal("collection continued after Stop returned")
	}
}

func TestStartWhileRunningFails(t *testing.T) {
	s := New(zap.NewNop())
	if err := s.Start(time.Hour, func() error { return nil }); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	if err := s.Start(time.Hour, func() error { return nil }); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(zap.NewNop())
	s.Stop()

	if err := s.Start(time.Hour, func() error { return nil }); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Stop()
	s.Stop()

	// The sampler can start again after a full stop.
	if err := s.Start(time.Hour, func() error { return nil }); err != nil {
		t.Fatalf("restart: %v", err)
	}
	s.Stop()
}

func TestLoopSurvivesFailuresAndPanics(t *testing.T) {
	s := New(zap.NewNop())

	var calls atomic.Int64
	err := s.Start(5*time.Millisecond, func() error {
		switch calls.Add(1) {
		case 1:
			return errors.New("collection failed")
		case 2:
			panic("collection panicked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	deadline := time.After(time.Second)
	for calls.Load() < 4 {
		select {
		case <-deadline:
			t.Fatalf("loop did not survive failures, %d passes", calls.Load())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestStartRejectsNonPositiveInterval(t *testing.T) {
	s := New(zap.NewNop())
	if err := s.Start(0, func() error { return nil }); err == nil {
		t.Fatal("expected error for zero interval")
	}
}
