// Package monitor runs the motion-watch loop: sense, record evidence on
// motion, rest, and recover the camera when it fails.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/smazurov/sitemon/internal/camera"
	"github.com/smazurov/sitemon/internal/events"
	"github.com/smazurov/sitemon/internal/evidence"
	"github.com/smazurov/sitemon/internal/logging"
	"github.com/smazurov/sitemon/internal/metrics"
	"github.com/smazurov/sitemon/pkg/linuxav/hotplug"
)

// Monitor states.
const (
	StateStarting   = "starting"
	StateWatching   = "watching"
	StateRecording  = "recording"
	StateCooldown   = "cooldown"
	StateRecovering = "recovering"
	StateStopped    = "stopped"
)

const (
	eventReady    = "ready"
	eventMotion   = "motion"
	eventRecorded = "recorded"
	eventRested   = "rested"
	eventFault    = "fault"
	eventStop     = "stop"
)

// Config drives the loop.
type Config struct {
	Device             string
	Threshold          uint64
	Interval           time.Duration
	Cooldown           time.Duration
	Frames             int
	RecoveryBackoff    time.Duration
	RecoveryMaxBackoff time.Duration
}

// Tuning holds the settings that can change while running.
type Tuning struct {
	Threshold uint64
	Interval  time.Duration
	Cooldown  time.Duration
}

// Publisher receives monitor events; *events.Bus satisfies it.
type Publisher interface {
	Publish(events.Event)
}

// Status is a point-in-time view of the monitor for the API.
type Status struct {
	State      string    `json:"state" enum:"starting,watching,recording,cooldown,recovering,stopped" doc:"Current monitor state"`
	Since      time.Time `json:"since" doc:"When the current state was entered"`
	Device     string    `json:"device" example:"/dev/video0" doc:"Capture device"`
	Format     string    `json:"format,omitempty" example:"640x480 GREY" doc:"Active capture format"`
	Threshold  uint64    `json:"threshold" doc:"Motion threshold"`
	LastScore  uint64    `json:"last_score" doc:"Score of the latest sensing cycle"`
	Cycles     uint64    `json:"cycles" doc:"Sensing cycles completed"`
	Incidents  uint64    `json:"incidents" doc:"Motion incidents detected"`
	Recoveries uint64    `json:"recoveries" doc:"Successful device recoveries"`
	LastMotion time.Time `json:"last_motion,omitzero" doc:"Time of the latest incident"`
	LastError  string    `json:"last_error,omitempty" doc:"Latest capture error"`
}

// Monitor owns the engine. Run must be called from one goroutine; Status and
// Tune are safe from any.
type Monitor struct {
	cfg        Config
	engine     *Engine
	store      *evidence.Store
	bus        Publisher
	logger     logging.Logger
	machine    *fsm.FSM
	waitDevice func(ctx context.Context, path string) error
	now        func() time.Time

	mu       sync.RWMutex
	tuning   Tuning
	status   Status
	incident string
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithDeviceWaiter replaces the hotplug wait used during recovery.
func WithDeviceWaiter(wait func(ctx context.Context, path string) error) Option {
	return func(m *Monitor) {
		m.waitDevice = wait
	}
}

// New creates a monitor in the starting state.
func New(cfg Config, engine *Engine, store *evidence.Store, bus Publisher, logger logging.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = logging.GetLogger("monitor")
	}
	m := &Monitor{
		cfg:    cfg,
		engine: engine,
		store:  store,
		bus:    bus,
		logger: logger,
		now:    time.Now,
		waitDevice: func(ctx context.Context, path string) error {
			return hotplug.WaitForDevice(ctx, path, time.Second)
		},
		tuning: Tuning{
			Threshold: cfg.Threshold,
			Interval:  cfg.Interval,
			Cooldown:  cfg.Cooldown,
		},
	}
	m.status = Status{
		State:     StateStarting,
		Since:     m.now(),
		Device:    cfg.Device,
		Threshold: cfg.Threshold,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.machine = fsm.NewFSM(
		StateStarting,
		fsm.Events{
			{Name: eventReady, Src: []string{StateStarting, StateRecovering}, Dst: StateWatching},
			{Name: eventMotion, Src: []string{StateWatching}, Dst: StateRecording},
			{Name: eventRecorded, Src: []string{StateRecording}, Dst: StateCooldown},
			{Name: eventRested, Src: []string{StateCooldown}, Dst: StateWatching},
			{Name: eventFault, Src: []string{StateStarting, StateWatching, StateRecording, StateCooldown}, Dst: StateRecovering},
			{Name: eventStop, Src: []string{StateStarting, StateWatching, StateRecording, StateCooldown, StateRecovering}, Dst: StateStopped},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				m.entered(e.Src, e.Dst)
			},
		},
	)
	metrics.SetState(StateStarting)
	metrics.SetMotionThreshold(cfg.Threshold)
	return m
}

// Status returns a snapshot.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Tune applies new live settings; the next cycle uses them.
func (m *Monitor) Tune(t Tuning) {
	m.mu.Lock()
	changed := m.tuning != t
	m.tuning = t
	m.status.Threshold = t.Threshold
	m.mu.Unlock()

	metrics.SetMotionThreshold(t.Threshold)
	if changed {
		m.logger.Info("Monitor tuning updated", "threshold", t.Threshold, "interval", t.Interval, "cooldown", t.Cooldown)
	}
}

// CurrentTuning returns the live settings.
func (m *Monitor) CurrentTuning() Tuning {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tuning
}

// Run drives the state machine until ctx is done. Cancellation is observed
// between cycles only. Errors that re-initializing cannot fix are returned.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.shutdown(ctx)

	if err := m.engine.Init(m.cfg.Device); err != nil {
		if ferr := m.fault(ctx, "init", err); ferr != nil {
			return ferr
		}
	} else {
		m.fire(ctx, eventReady)
	}

	backoff := m.cfg.RecoveryBackoff
	for ctx.Err() == nil {
		var err error
		switch m.machine.Current() {
		case StateWatching:
			err = m.watch(ctx)
		case StateRecording:
			err = m.record(ctx)
		case StateCooldown:
			if sleep(ctx, m.CurrentTuning().Cooldown) == nil {
				m.fire(ctx, eventRested)
			}
		case StateRecovering:
			err = m.recover(ctx, &backoff)
		default:
			return fmt.Errorf("monitor in unexpected state %q", m.machine.Current())
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Monitor) watch(ctx context.Context) error {
	t := m.CurrentTuning()
	motion, err := m.engine.DetectMotion(t.Threshold)
	if err != nil {
		return m.fault(ctx, "sense", err)
	}

	score := m.engine.LastScore()
	m.mu.Lock()
	m.status.Cycles++
	m.status.LastScore = score
	m.status.Format = m.engine.Format().String()
	m.mu.Unlock()

	if !motion {
		_ = sleep(ctx, t.Interval)
		return nil
	}

	now := m.now()
	incident := events.NewIncidentID()
	m.mu.Lock()
	m.incident = incident
	m.status.Incidents++
	m.status.LastMotion = now
	m.mu.Unlock()

	metrics.IncMotionEvents()
	m.logger.Info("Motion detected", "incident_id", incident, "score", score, "threshold", t.Threshold)
	m.publish(events.MotionDetectedEvent{
		IncidentID: incident,
		DevicePath: m.cfg.Device,
		Score:      score,
		Threshold:  t.Threshold,
		Timestamp:  now,
	})
	m.fire(ctx, eventMotion)
	return nil
}

func (m *Monitor) record(ctx context.Context) error {
	m.mu.RLock()
	incident := m.incident
	m.mu.RUnlock()

	paths, err := m.engine.CaptureFrames(m.store.Dir(), m.cfg.Frames)
	if len(paths) > 0 {
		m.logger.Info("Evidence captured", "incident_id", incident, "files", len(paths))
		m.publish(events.FramesCapturedEvent{
			IncidentID: incident,
			DevicePath: m.cfg.Device,
			Paths:      paths,
			Timestamp:  m.now(),
		})
		m.retain()
	}

	if err != nil {
		if !errors.Is(err, camera.ErrIO) {
			return m.fault(ctx, "record", err)
		}
		// the camera is fine; only the evidence write failed
		m.report("persist", err)
	}
	m.fire(ctx, eventRecorded)
	return nil
}

func (m *Monitor) retain() {
	removed, err := m.store.Prune()
	if err != nil {
		m.logger.Warn("Evidence pruning failed", "error", err)
	}
	if removed > 0 {
		metrics.AddEvidencePruned(removed)
	}
	if usage, err := m.store.Usage(); err == nil {
		metrics.SetEvidenceBytes(usage.Bytes)
	}
}

// recover waits for the device node, backs off and re-opens it. Failures
// double the backoff up to the configured maximum.
func (m *Monitor) recover(ctx context.Context, backoff *time.Duration) error {
	if err := m.engine.Close(); err != nil {
		m.logger.Debug("Closing failed session", "error", err)
	}

	if err := m.waitDevice(ctx, m.cfg.Device); err != nil {
		return nil
	}
	if sleep(ctx, *backoff) != nil {
		return nil
	}

	if err := m.engine.Init(m.cfg.Device); err != nil {
		if !camera.IsRecoverable(err) {
			m.report("init", err)
			return fmt.Errorf("recover %s: %w", m.cfg.Device, err)
		}
		next := min(*backoff*2, m.cfg.RecoveryMaxBackoff)
		m.logger.Warn("Device recovery failed", "error", err, "retry_in", next)
		*backoff = max(next, time.Millisecond)
		return nil
	}

	*backoff = m.cfg.RecoveryBackoff
	metrics.IncRecoveries()
	m.mu.Lock()
	m.status.Recoveries++
	m.mu.Unlock()
	m.logger.Info("Device recovered", "device", m.cfg.Device)
	m.fire(ctx, eventReady)
	return nil
}

// fault records err and moves to recovering, or returns it when
// re-initializing cannot help.
func (m *Monitor) fault(ctx context.Context, op string, err error) error {
	m.report(op, err)
	if !camera.IsRecoverable(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	m.fire(ctx, eventFault)
	return nil
}

func (m *Monitor) report(op string, err error) {
	m.logger.Error("Capture failed", "op", op, "error", err)
	metrics.IncCaptureError(errorKind(err))

	m.mu.Lock()
	m.status.LastError = err.Error()
	m.mu.Unlock()

	m.publish(events.CaptureErrorEvent{
		DevicePath: m.cfg.Device,
		Op:         op,
		Error:      err.Error(),
		Timestamp:  m.now(),
	})
}

func (m *Monitor) shutdown(ctx context.Context) {
	if err := m.engine.Close(); err != nil {
		m.logger.Warn("Closing capture session failed", "error", err)
	}
	m.fire(context.WithoutCancel(ctx), eventStop)
}

func (m *Monitor) fire(ctx context.Context, event string) {
	if err := m.machine.Event(ctx, event); err != nil {
		var noTransition fsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			m.logger.Warn("State transition rejected", "event", event, "state", m.machine.Current(), "error", err)
		}
	}
}

func (m *Monitor) entered(from, to string) {
	now := m.now()
	m.mu.Lock()
	m.status.State = to
	m.status.Since = now
	m.mu.Unlock()

	metrics.SetState(to)
	m.logger.Debug("Monitor state changed", "from", from, "to", to)
	m.publish(events.StateChangedEvent{From: from, To: to, Timestamp: now})
}

func (m *Monitor) publish(ev events.Event) {
	if m.bus != nil {
		m.bus.Publish(ev)
	}
}

// errorKind maps an error to a metrics label.
func errorKind(err error) string {
	for _, kind := range []error{
		camera.ErrDeviceUnavailable,
		camera.ErrUnsupportedDevice,
		camera.ErrFormatRejected,
		camera.ErrAllocationFailed,
		camera.ErrMappingFailed,
		camera.ErrDeviceIO,
		camera.ErrIO,
		camera.ErrStaleBuffer,
	} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "other"
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
