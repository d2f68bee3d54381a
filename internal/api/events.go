package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/sitemon/internal/events"
)

// registerSSERoutes registers the event stream.
func (s *Server) registerSSERoutes() {
	if s.eventBus == nil {
		return
	}

	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of motion, capture, alert, state and device events. The first event is the current state.",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"motion-detected": events.MotionDetectedEvent{},
		"frames-captured": events.FramesCapturedEvent{},
		"capture-error":   events.CaptureErrorEvent{},
		"state-changed":   events.StateChangedEvent{},
		"alert-sent":      events.AlertSentEvent{},
		"device-changed":  events.DeviceChangedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.MotionDetectedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.FramesCapturedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CaptureErrorEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.AlertSentEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.DeviceChangedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// New clients learn the current state without waiting for a transition.
		if s.options.Monitor != nil {
			state := s.options.Monitor.Status().State
			if err := send.Data(events.StateChangedEvent{From: state, To: state, Timestamp: time.Now()}); err != nil {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
