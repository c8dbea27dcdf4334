// Package sysres is the resource-sampling collaborator: current process
// CPU percentage, resident memory, and cumulative network I/O, consumed
// by the agent recorders' sampled gauges.
package sysres

import (
	"fmt"
	"os"

	gopsnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

// NetworkCounters holds cumulative network I/O for the host.
type NetworkCounters struct {
	BytesSent uint64
	BytesRecv uint64
}

// Sampler exposes point-in-time resource readings for the current process.
type Sampler interface {
	CPUPercent() (float64, error)
	MemoryRSS() (uint64, error)
	Network() (NetworkCounters, error)
}

// ProcessSampler samples the running process via gopsutil.
type ProcessSampler struct {
	proc *process.Process
}

// NewProcessSampler creates a sampler bound to the current process. The
// first CPUPercent reading after creation reports 0; callers sampling on
// an interval get meaningful values from the second reading on.
func NewProcessSampler() (*ProcessSampler, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("resolving current process: %w", err)
	}
	// Prime the CPU counter so interval readings have a baseline.
	_, _ = p.CPUPercent()
	return &ProcessSampler{proc: p}, nil
}

// CPUPercent returns the process CPU utilization percentage since the
// previous reading.
func (s *ProcessSampler) CPUPercent() (float64, error) {
	return s.proc.CPUPercent()
}

// MemoryRSS returns the resident set size in bytes.
func (s *ProcessSampler) MemoryRSS() (uint64, error) {
	info, err := s.proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return info.RSS, nil
}

// Network returns host-wide cumulative network byte counters.
func (s *ProcessSampler) Network() (NetworkCounters, error) {
	counters, err := gopsnet.IOCounters(false)
	if err != nil {
		return NetworkCounters{}, err
	}
	if len(counters) == 0 {
		return NetworkCounters{}, fmt.Errorf("no network counters available")
	}
	return NetworkCounters{BytesSent: counters[0].BytesSent, BytesRecv: counters[0].BytesRecv}, nil
}

// Static returns fixed values; it is the test double for Sampler.
type Static struct {
	CPU float64
	RSS uint64
	Net NetworkCounters
	Err error
}

func (s Static) CPUPercent() (float64, error) {
	return s.CPU, s.Err
}

func (s Static) MemoryRSS() (uint64, error) {
	return s.RSS, s.Err
}

func (s Static) Network() (NetworkCounters, error) {
	return s.Net, s.Err
}
