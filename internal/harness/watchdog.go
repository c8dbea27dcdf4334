package harness

import (
	"context"
	"fmt"
	"time"
)

// CPUWarningThreshold is the process CPU percentage above which the
// harness fires EventCPUWarning.
const CPUWarningThreshold = 90.0

// WatchCPU polls the process CPU usage on the given interval and fires
// EventCPUWarning whenever it exceeds the threshold. It returns when
// ctx is cancelled, and immediately when the process has no resource
// sampler.
func WatchCPU(ctx context.Context, proc *Process, interval time.Duration) {
	if proc.Resources == nil || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			usage, err := proc.Resources.CPUPercent()
			if err != nil || usage < CPUWarningThreshold {
				continue
			}
			proc.Events.Fire(EventCPUWarning, CPUWarning{
				Usage:   usage,
				Message: fmt.Sprintf("CPU usage %.1f%% exceeds %.0f%%", usage, CPUWarningThreshold),
			})
		}
	}
}
