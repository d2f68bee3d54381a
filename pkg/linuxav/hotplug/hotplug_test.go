//go:build linux

package hotplug

import (
	"context"
	"errors"
	"testing"
)

func newMonitor(t *testing.T) *Monitor {
	t.Helper()
	m, err := NewMonitor(SubsystemVideo4Linux)
	if err != nil {
		t.Skipf("netlink unavailable: %v", err)
	}
	return m
}

func TestMonitorClose(t *testing.T) {
	m := newMonitor(t)
	if err := m.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := m.Close(); err == nil {
		t.Error("expected error on second Close()")
	}
}

func TestMonitorRunCancellation(t *testing.T) {
	m := newMonitor(t)
	defer func() { _ = m.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := make(chan Event, 1)
	if err := m.Run(ctx, events); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if _, ok := <-events; ok {
		t.Error("events channel left open")
	}
}
