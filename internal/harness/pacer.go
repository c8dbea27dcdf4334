package harness

import (
	"context"
	"math"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/platform-crew/loadfire/internal/config"
	"github.com/platform-crew/loadfire/internal/stats"
)

// Scheduler drives the demo load loop: it ramps simulated users, paces
// synthetic requests against the scenario endpoints, records them with
// the statistics collaborator, and fires the harness request events the
// agent recorders consume. Telemetry itself never depends on it; it
// exists so a single binary can exercise the full lifecycle.
type Scheduler struct {
	cfg     *config.Config
	proc    *Process
	limiter *rate.Limiter
	rnd     *rand.Rand
	inject  func(ctx context.Context) map[string]string
}

// NewScheduler creates a demo scheduler for the process.
func NewScheduler(proc *Process, seed int64) *Scheduler {
	cfg := proc.Config
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.Rate > 0 {
		burst := int(math.Ceil(float64(cfg.Rate)))
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}
	return &Scheduler{
		cfg:     cfg,
		proc:    proc,
		limiter: limiter,
		rnd:     rand.New(rand.NewSource(seed)),
	}
}

// SetHeaderInjection installs a generator whose headers are stamped
// onto every generated request, typically W3C trace context.
func (s *Scheduler) SetHeaderInjection(fn func(ctx context.Context) map[string]string) {
	s.inject = fn
}

// Run executes the load loop until the configured duration elapses or
// ctx is cancelled. It fires EventRampUpComplete once all simulated
// users are active.
func (s *Scheduler) Run(ctx context.Context) error {
	endpoints := s.cfg.Scenario.Endpoints
	if len(endpoints) == 0 {
		endpoints = []config.Endpoint{{Name: "/", Method: "GET", MeanLatency: 50 * time.Millisecond}}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Duration)
	defer cancel()

	// Ramp users up over the first tenth of the run, one step per user.
	rampStep := s.cfg.Duration / 10 / time.Duration(maxInt(s.cfg.NumUsers, 1))
	users := 0
	nextRamp := time.Now()

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil // duration elapsed or cancelled
		}
		if ctx.Err() != nil {
			return nil
		}

		if users < s.cfg.NumUsers && !time.Now().Before(nextRamp) {
			users++
			if s.proc.Stats != nil {
				s.proc.Stats.SetUserCount(users)
			}
			nextRamp = time.Now().Add(rampStep)
			if users == s.cfg.NumUsers {
				s.proc.Events.Fire(EventRampUpComplete, users)
			}
		}

		ep := endpoints[s.rnd.Intn(len(endpoints))]
		result := s.simulate(ctx, ep)
		if s.proc.Stats != nil {
			errText := ""
			if result.Failed {
				errText = "simulated failure"
			}
			s.proc.Stats.Record(stats.EntryKey{Name: ep.Name, Method: ep.Method}, result.DurationMs, errText)
		}
		s.proc.Events.Fire(EventRequest, result)
	}
}

// simulate produces one synthetic request outcome for an endpoint.
func (s *Scheduler) simulate(ctx context.Context, ep config.Endpoint) RequestResult {
	var headers map[string]string
	if s.inject != nil {
		headers = s.inject(ctx)
	}

	mean := ep.MeanLatency
	if mean <= 0 {
		mean = 50 * time.Millisecond
	}
	latency := time.Duration(s.rnd.ExpFloat64() * float64(mean))
	if latency > 5*time.Second {
		latency = 5 * time.Second
	}

	timer := time.NewTimer(latency)
	select {
	case <-ctx.Done():
		timer.Stop()
	case <-timer.C:
	}

	return RequestResult{
		Endpoint:   ep.Name,
		Method:     ep.Method,
		DurationMs: float64(latency) / float64(time.Millisecond),
		Failed:     s.rnd.Float64() < ep.FailureRate,
		Headers:    headers,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
