package hotplug

import (
	"context"
	"os"
	"time"
)

// WaitForDevice blocks until node exists or ctx is done. Kernel add events
// wake it early; poll is the fallback when netlink is unavailable.
func WaitForDevice(ctx context.Context, node string, poll time.Duration) error {
	return waitFor(ctx, node, poll, subscribe)
}

func waitFor(ctx context.Context, node string, poll time.Duration, sub func(context.Context) <-chan Event) error {
	if exists(node) {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := sub(ctx)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			// by-id links appear after the node itself, so any add is a hint
			if ev.Action != ActionAdd {
				continue
			}
		}
		if exists(node) {
			return nil
		}
	}
}

func exists(node string) bool {
	_, err := os.Stat(node)
	return err == nil
}

// Watch streams video4linux events until ctx is done. The channel is nil when
// netlink is unavailable.
func Watch(ctx context.Context) <-chan Event {
	return subscribe(ctx)
}
