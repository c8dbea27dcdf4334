package main

import (
	"strings"
	"testing"
)

func TestRunHelp(t *testing.T) {
	if err := run([]string{"--help"}); err != nil {
		t.Fatalf("help run: %v", err)
	}
}

func TestRunRequiresTestplan(t *testing.T) {
	err := run([]string{"-d", "100ms"})
	if err == nil || !strings.Contains(err.Error(), "testplan") {
		t.Fatalf("expected testplan error, got %v", err)
	}
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	if err := run([]string{"--testplan", "x", "--bogus"}); err == nil {
		t.Fatal("expected unknown flag error")
	}
}

func TestRunStandaloneLifecycle(t *testing.T) {
	err := run([]string{
		"--testplan", "smoke",
		"-u", "2",
		"-d", "200ms",
		"--sample-interval", "50ms",
		"--enable-recorder", "log",
	})
	if err != nil {
		t.Fatalf("standalone run: %v", err)
	}
}

func TestRunRejectsBadRole(t *testing.T) {
	err := run([]string{"--testplan", "x", "--role", "observer"})
	if err == nil || !strings.Contains(err.Error(), "role") {
		t.Fatalf("expected role error, got %v", err)
	}
}
