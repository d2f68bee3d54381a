package events

import (
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan MotionDetectedEvent, 1)

	unsub := bus.Subscribe(func(e MotionDetectedEvent) {
		received <- e
	})
	defer unsub()

	event := MotionDetectedEvent{
		IncidentID: NewIncidentID(),
		DevicePath: "/dev/video0",
		Score:      12,
		Threshold:  5,
		Timestamp:  time.Now(),
	}
	bus.Publish(event)

	got := <-received
	if got.IncidentID != event.IncidentID {
		t.Errorf("Expected incident %s, got %s", event.IncidentID, got.IncidentID)
	}
	if got.Score != 12 {
		t.Errorf("Expected score 12, got %d", got.Score)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan StateChangedEvent, 1)
	received2 := make(chan StateChangedEvent, 1)

	unsub1 := bus.Subscribe(func(e StateChangedEvent) {
		received1 <- e
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(e StateChangedEvent) {
		received2 <- e
	})
	defer unsub2()

	bus.Publish(StateChangedEvent{From: "watching", To: "recording"})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan CaptureErrorEvent, 1)

	unsub := bus.Subscribe(func(e CaptureErrorEvent) {
		received <- e
	})

	bus.Publish(CaptureErrorEvent{DevicePath: "/dev/video0"})
	<-received

	unsub()

	bus.Publish(CaptureErrorEvent{DevicePath: "/dev/video1"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	motionReceived := make(chan bool, 1)
	alertReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ MotionDetectedEvent) {
		motionReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ AlertSentEvent) {
		alertReceived <- true
	})
	defer unsub2()

	bus.Publish(MotionDetectedEvent{DevicePath: "/dev/video0"})
	<-motionReceived

	select {
	case <-alertReceived:
		t.Fatal("Alert subscriber should NOT have received MotionDetectedEvent")
	case <-time.After(10 * time.Millisecond):
	}

	bus.Publish(AlertSentEvent{Channel: "sms", Success: true})
	<-alertReceived

	select {
	case <-motionReceived:
		t.Fatal("Motion subscriber should NOT have received AlertSentEvent")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ DeviceChangedEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(DeviceChangedEvent{
					Action:    "add",
					Timestamp: time.Now(),
				})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_AllEventTypes(t *testing.T) {
	bus := New()

	tests := []struct {
		name  string
		event Event
	}{
		{"MotionDetected", MotionDetectedEvent{DevicePath: "/dev/video0"}},
		{"FramesCaptured", FramesCapturedEvent{Paths: []string{"/var/lib/sitemon/1.jpeg"}}},
		{"CaptureError", CaptureErrorEvent{DevicePath: "/dev/video0"}},
		{"StateChanged", StateChangedEvent{From: "watching", To: "cooldown"}},
		{"AlertSent", AlertSentEvent{Channel: "mqtt"}},
		{"DeviceChanged", DeviceChangedEvent{Action: "remove"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(_ *testing.T) {
			received := make(chan Event, 1)

			var unsub func()
			switch tt.event.(type) {
			case MotionDetectedEvent:
				unsub = bus.Subscribe(func(e MotionDetectedEvent) { received <- e })
			case FramesCapturedEvent:
				unsub = bus.Subscribe(func(e FramesCapturedEvent) { received <- e })
			case CaptureErrorEvent:
				unsub = bus.Subscribe(func(e CaptureErrorEvent) { received <- e })
			case StateChangedEvent:
				unsub = bus.Subscribe(func(e StateChangedEvent) { received <- e })
			case AlertSentEvent:
				unsub = bus.Subscribe(func(e AlertSentEvent) { received <- e })
			case DeviceChangedEvent:
				unsub = bus.Subscribe(func(e DeviceChangedEvent) { received <- e })
			}
			defer unsub()

			bus.Publish(tt.event)
			<-received
		})
	}
}

func TestBus_UnknownHandler(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	if unsub == nil {
		t.Fatal("expected no-op unsubscribe for unknown handler type")
	}
	unsub()
}

func TestNewIncidentID(t *testing.T) {
	a, b := NewIncidentID(), NewIncidentID()
	if a == b {
		t.Errorf("incident ids collide: %s", a)
	}
	if len(a) != 36 {
		t.Errorf("unexpected incident id format %q", a)
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[FramesCapturedEvent](bus, ch)
	defer unsub()

	bus.Publish(FramesCapturedEvent{DevicePath: "/dev/video0", Paths: []string{"a.jpeg"}})

	received := <-ch
	captured, ok := received.(FramesCapturedEvent)
	if !ok {
		t.Fatalf("Expected FramesCapturedEvent, got %T", received)
	}
	if captured.DevicePath != "/dev/video0" {
		t.Errorf("Expected device_path /dev/video0, got %s", captured.DevicePath)
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any)

	unsub := SubscribeToChannel[StateChangedEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(StateChangedEvent{To: "watching"})
		done <- true
	}()

	<-done
}
