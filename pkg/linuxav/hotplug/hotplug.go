//go:build linux

package hotplug

import (
	"context"
	"errors"
	"syscall"
)

// netlinkKobjectUEvent is the netlink protocol for kernel object events.
const netlinkKobjectUEvent = 15

// Monitor listens for kernel device events of one subsystem.
type Monitor struct {
	fd        int
	subsystem string
}

// NewMonitor opens a netlink socket bound to the kernel broadcast group.
// An empty subsystem passes every event.
func NewMonitor(subsystem string) (*Monitor, error) {
	fd, err := syscall.Socket(syscall.AF_NETLINK, syscall.SOCK_DGRAM|syscall.SOCK_CLOEXEC, netlinkKobjectUEvent)
	if err != nil {
		return nil, err
	}

	addr := &syscall.SockaddrNetlink{Family: syscall.AF_NETLINK, Groups: 1}
	if err := syscall.Bind(fd, addr); err != nil {
		_ = syscall.Close(fd)
		return nil, err
	}

	// 1s receive timeout lets Run observe cancellation.
	tv := syscall.Timeval{Sec: 1}
	if err := syscall.SetsockoptTimeval(fd, syscall.SOL_SOCKET, syscall.SO_RCVTIMEO, &tv); err != nil {
		_ = syscall.Close(fd)
		return nil, err
	}

	return &Monitor{fd: fd, subsystem: subsystem}, nil
}

// Close releases the socket.
func (m *Monitor) Close() error {
	return syscall.Close(m.fd)
}

// Run delivers matching events until ctx is done or the socket fails.
// events is closed when Run returns.
func (m *Monitor) Run(ctx context.Context, events chan<- Event) error {
	defer close(events)

	buf := make([]byte, 8192)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, _, err := syscall.Recvfrom(m.fd, buf, 0)
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EINTR) {
				continue
			}
			return err
		}

		event := ParseUEvent(buf[:n])
		if event == nil || (m.subsystem != "" && event.Subsystem != m.subsystem) {
			continue
		}

		select {
		case events <- *event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func subscribe(ctx context.Context) <-chan Event {
	m, err := NewMonitor(SubsystemVideo4Linux)
	if err != nil {
		return nil
	}
	events := make(chan Event, 8)
	go func() {
		defer func() { _ = m.Close() }()
		_ = m.Run(ctx, events)
	}()
	return events
}
