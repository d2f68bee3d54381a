package alert

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/smazurov/sitemon/internal/events"
	"github.com/smazurov/sitemon/internal/modem"
)

var errSend = errors.New("send failed")

type fakeSender struct {
	calls   []string
	sendErr error
	offErr  error
}

func (s *fakeSender) SetFunctionality(f modem.Functionality) error {
	if f == modem.FunctionalityFull {
		s.calls = append(s.calls, "cfun=1")
		return nil
	}
	s.calls = append(s.calls, "cfun=0")
	return s.offErr
}

func (s *fakeSender) SendMessage(dest, text string) error {
	s.calls = append(s.calls, "cmgs "+dest+": "+text)
	return s.sendErr
}

func testAlert() Alert {
	return Alert{
		IncidentID: "inc-1",
		DevicePath: "/dev/video0",
		Score:      12,
		Threshold:  5,
		Message:    "Motion detected",
		Timestamp:  time.Date(2024, 3, 1, 14, 5, 9, 0, time.UTC),
	}
}

func TestAlertText(t *testing.T) {
	if got, want := testAlert().Text(), "Motion detected at 2024-03-01 14:05:09 (score 12)"; got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
	if got := (Alert{Message: "hi"}).Text(); got != "hi" {
		t.Errorf("Text() without timestamp = %q", got)
	}
}

func TestSMSNotifier(t *testing.T) {
	tests := []struct {
		name      string
		sendErr   error
		offErr    error
		wantErr   bool
		wantCalls int
	}{
		{name: "sent", wantCalls: 3},
		{name: "send fails radio still off", sendErr: errSend, wantErr: true, wantCalls: 3},
		{name: "radio off fails", offErr: errSend, wantErr: true, wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{sendErr: tt.sendErr, offErr: tt.offErr}
			n := NewSMSNotifier(sender, "+15551234567", nil)

			err := n.Notify(context.Background(), testAlert())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Notify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(sender.calls) != tt.wantCalls {
				t.Fatalf("calls = %q", sender.calls)
			}
			if sender.calls[0] != "cfun=1" || sender.calls[2] != "cfun=0" {
				t.Errorf("radio not cycled around send: %q", sender.calls)
			}
			if !strings.HasPrefix(sender.calls[1], "cmgs +15551234567: Motion detected") {
				t.Errorf("send call = %q", sender.calls[1])
			}
			if tt.sendErr != nil && !errors.Is(err, tt.sendErr) {
				t.Errorf("error %v does not wrap send failure", err)
			}
		})
	}
}

func TestSMSNotifierCancelled(t *testing.T) {
	sender := &fakeSender{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewSMSNotifier(sender, "+1555", nil).Notify(ctx, testAlert()); !errors.Is(err, context.Canceled) {
		t.Fatalf("Notify() error = %v, want context.Canceled", err)
	}
	if len(sender.calls) != 0 {
		t.Errorf("modem touched after cancel: %q", sender.calls)
	}
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error { return t.err }

type fakePublisher struct {
	topic   string
	qos     byte
	payload []byte
	err     error
}

func (p *fakePublisher) Publish(topic string, qos byte, _ bool, payload any) mqtt.Token {
	p.topic = topic
	p.qos = qos
	p.payload, _ = payload.([]byte)
	return newFakeToken(p.err)
}

func TestMQTTNotifier(t *testing.T) {
	pub := &fakePublisher{}
	n := NewMQTTNotifier(MQTTOptions{Broker: "localhost:1883", Topic: "sitemon/alerts", ClientID: "test"}, nil)
	n.pub = pub

	if err := n.Notify(context.Background(), testAlert()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Notify() before connect error = %v, want ErrNotConnected", err)
	}

	n.setConnected(true)
	if err := n.Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if pub.topic != "sitemon/alerts" || pub.qos != mqttQoS {
		t.Errorf("published to %s qos %d", pub.topic, pub.qos)
	}
	var got Alert
	if err := json.Unmarshal(pub.payload, &got); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if got.IncidentID != "inc-1" || got.Score != 12 {
		t.Errorf("payload = %+v", got)
	}

	pub.err = errSend
	if err := n.Notify(context.Background(), testAlert()); !errors.Is(err, errSend) {
		t.Errorf("Notify() error = %v, want publish failure", err)
	}
}

func TestBrokerURL(t *testing.T) {
	for in, want := range map[string]string{
		"localhost:1883":      "tcp://localhost:1883",
		"ssl://broker:8883":   "ssl://broker:8883",
		"ws://broker:80/mqtt": "ws://broker:80/mqtt",
		"tcp://10.0.0.2:1883": "tcp://10.0.0.2:1883",
	} {
		if got := brokerURL(in); got != want {
			t.Errorf("brokerURL(%q) = %q, want %q", in, got, want)
		}
	}
}

type recordingNotifier struct {
	name string
	err  error
	mu   sync.Mutex
	got  []Alert
}

func (n *recordingNotifier) Name() string { return n.name }

func (n *recordingNotifier) Notify(_ context.Context, a Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, a)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.got)
}

type busRecorder struct {
	mu   sync.Mutex
	sent []events.AlertSentEvent
}

func (b *busRecorder) Publish(ev events.Event) {
	if e, ok := ev.(events.AlertSentEvent); ok {
		b.mu.Lock()
		b.sent = append(b.sent, e)
		b.mu.Unlock()
	}
}

func (b *busRecorder) snapshot() []events.AlertSentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.AlertSentEvent(nil), b.sent...)
}

func TestDispatcherRateLimit(t *testing.T) {
	now := time.Unix(1700000000, 0)
	d := NewDispatcher(DispatcherConfig{Message: "Motion detected", MinInterval: time.Minute}, nil, nil)
	d.now = func() time.Time { return now }

	steps := []struct {
		advance time.Duration
		want    bool
	}{
		{0, true},
		{30 * time.Second, false},
		{29 * time.Second, false},
		{time.Second, true},
		{2 * time.Minute, true},
	}
	for i, s := range steps {
		now = now.Add(s.advance)
		if got := d.Submit(events.MotionDetectedEvent{IncidentID: "x"}); got != s.want {
			t.Errorf("step %d: Submit() = %v, want %v", i, got, s.want)
		}
	}
	if len(d.queue) != 3 {
		t.Errorf("queued %d alerts, want 3", len(d.queue))
	}

	d.SetMinInterval(0)
	if !d.Submit(events.MotionDetectedEvent{IncidentID: "y"}) {
		t.Error("Submit() suppressed with zero interval")
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{}, nil, nil)
	for i := range queueSize {
		if !d.Submit(events.MotionDetectedEvent{}) {
			t.Fatalf("Submit() %d rejected before queue filled", i)
		}
	}
	if d.Submit(events.MotionDetectedEvent{}) {
		t.Error("Submit() accepted with full queue")
	}
}

func TestDispatcherDelivers(t *testing.T) {
	sms := &recordingNotifier{name: "sms", err: errSend}
	mq := &recordingNotifier{name: "mqtt"}
	bus := &busRecorder{}
	d := NewDispatcher(DispatcherConfig{Message: "Intruder"}, bus, nil, sms, mq)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.Submit(events.MotionDetectedEvent{IncidentID: "inc-7", DevicePath: "/dev/video0", Score: 9})

	deadline := time.Now().Add(time.Second)
	for len(bus.snapshot()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	sent := bus.snapshot()
	if len(sent) != 2 {
		t.Fatalf("AlertSentEvents = %d, want 2", len(sent))
	}
	if sent[0].Channel != "sms" || sent[0].Success || sent[0].Error == "" {
		t.Errorf("sms outcome = %+v", sent[0])
	}
	if sent[1].Channel != "mqtt" || !sent[1].Success || sent[1].IncidentID != "inc-7" {
		t.Errorf("mqtt outcome = %+v", sent[1])
	}
	if mq.count() != 1 || mq.got[0].Message != "Intruder" {
		t.Errorf("mqtt notifier got %+v", mq.got)
	}
}

func TestDispatcherAttach(t *testing.T) {
	bus := events.New()
	n := &recordingNotifier{name: "sms"}
	d := NewDispatcher(DispatcherConfig{MinInterval: time.Hour}, nil, nil, n)

	unsub := d.Attach(bus)
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	bus.Publish(events.MotionDetectedEvent{IncidentID: "a"})
	bus.Publish(events.MotionDetectedEvent{IncidentID: "b"})

	deadline := time.Now().Add(time.Second)
	for n.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	if got := n.count(); got != 1 {
		t.Errorf("notified %d times, want 1 within the interval", got)
	}
}
