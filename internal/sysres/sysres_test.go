package sysres

import (
	"errors"
	"testing"
)

func TestProcessSamplerReportsOwnProcess(t *testing.T) {
	s, err := NewProcessSampler()
	if err != nil {
		t.Skipf("process sampling unavailable: %v", err)
	}

	rss, err := s.MemoryRSS()
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if rss == 0 {
		t.Error("RSS = 0 for a running process")
	}

	if _, err := s.CPUPercent(); err != nil {
		t.Fatalf("cpu: %v", err)
	}
}

func TestStaticSampler(t *testing.T) {
	s := Static{CPU: 42, RSS: 1024, Net: NetworkCounters{BytesSent: 1, BytesRecv: 2}}

	if v, err := s.CPUPercent(); err != nil || v != 42 {
		t.Errorf("CPUPercent = %v, %v", v, err)
	}
	if v, err := s.MemoryRSS(); err != nil || v != 1024 {
		t.Errorf("MemoryRSS = %v, %v", v, err)
	}
	if n, err := s.Network(); err != nil || n.BytesSent != 1 || n.BytesRecv != 2 {
		t.Errorf("Network = %+v, %v", n, err)
	}

	failing := Static{Err: errors.New("no permission")}
	if _, err := failing.CPUPercent(); err == nil {
		t.Error("expected error from failing sampler")
	}
}
