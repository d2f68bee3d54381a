package alert

import (
	"context"
	"sync"
	"time"

	"github.com/smazurov/sitemon/internal/events"
	"github.com/smazurov/sitemon/internal/logging"
	"github.com/smazurov/sitemon/internal/metrics"
)

const (
	queueSize     = 8
	notifyTimeout = 2 * time.Minute
)

// Publisher receives alert outcomes.
type Publisher interface {
	Publish(ev events.Event)
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Message is the alert text.
	Message string
	// MinInterval suppresses incidents arriving sooner than this after the
	// last accepted one.
	MinInterval time.Duration
}

// Dispatcher rate-limits incidents and fans them out to notifiers.
type Dispatcher struct {
	notifiers []Notifier
	bus       Publisher
	logger    logging.Logger
	queue     chan Alert
	now       func() time.Time

	mu          sync.Mutex
	message     string
	minInterval time.Duration
	last        time.Time
}

// NewDispatcher creates a Dispatcher. bus may be nil.
func NewDispatcher(cfg DispatcherConfig, bus Publisher, logger logging.Logger, notifiers ...Notifier) *Dispatcher {
	if logger == nil {
		logger = logging.GetLogger("alert")
	}
	return &Dispatcher{
		notifiers:   notifiers,
		bus:         bus,
		logger:      logger,
		queue:       make(chan Alert, queueSize),
		now:         time.Now,
		message:     cfg.Message,
		minInterval: cfg.MinInterval,
	}
}

// Attach subscribes to motion events.
func (d *Dispatcher) Attach(bus *events.Bus) func() {
	return bus.Subscribe(func(e events.MotionDetectedEvent) {
		d.Submit(e)
	})
}

// SetMinInterval changes the rate limit.
func (d *Dispatcher) SetMinInterval(interval time.Duration) {
	d.mu.Lock()
	d.minInterval = interval
	d.mu.Unlock()
}

// Submit queues an alert for the motion event. It reports false when the
// incident was suppressed by the rate limit or a full queue.
func (d *Dispatcher) Submit(e events.MotionDetectedEvent) bool {
	d.mu.Lock()
	now := d.now()
	if !d.last.IsZero() && now.Sub(d.last) < d.minInterval {
		d.mu.Unlock()
		metrics.IncAlertSuppressed()
		d.logger.Debug("Alert suppressed by rate limit", "incident_id", e.IncidentID, "since_last", now.Sub(d.last))
		return false
	}
	d.last = now
	a := FromMotion(e, d.message)
	d.mu.Unlock()

	select {
	case d.queue <- a:
		return true
	default:
		metrics.IncAlertSuppressed()
		d.logger.Warn("Alert queue full, dropping incident", "incident_id", e.IncidentID)
		return false
	}
}

// Run delivers queued alerts until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("Alert dispatcher started", "notifiers", len(d.notifiers))
	for {
		select {
		case <-ctx.Done():
			return nil
		case a := <-d.queue:
			d.deliver(ctx, a)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, a Alert) {
	for _, n := range d.notifiers {
		nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		err := n.Notify(nctx, a)
		cancel()

		metrics.IncAlert(n.Name(), err == nil)
		ev := events.AlertSentEvent{
			IncidentID: a.IncidentID,
			Channel:    n.Name(),
			Success:    err == nil,
			Timestamp:  d.now(),
		}
		if err != nil {
			ev.Error = err.Error()
			d.logger.Error("Alert delivery failed", "channel", n.Name(), "incident_id", a.IncidentID, "error", err)
		}
		if d.bus != nil {
			d.bus.Publish(ev)
		}
	}
}
