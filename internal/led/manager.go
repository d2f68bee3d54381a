package led

import (
	"sync"

	"github.com/smazurov/sitemon/internal/events"
	"github.com/smazurov/sitemon/internal/logging"
	"github.com/smazurov/sitemon/internal/monitor"
)

// setting is what the status LED shows for one monitor state.
type setting struct {
	enabled bool
	pattern string
}

var stateSettings = map[string]setting{
	monitor.StateStarting:   {true, PatternHeartbeat},
	monitor.StateWatching:   {true, PatternSolid},
	monitor.StateRecording:  {true, PatternBlink},
	monitor.StateCooldown:   {true, PatternSolid},
	monitor.StateRecovering: {true, PatternHeartbeat},
	monitor.StateStopped:    {false, ""},
}

// Manager mirrors monitor state transitions onto the status LED.
type Manager struct {
	controller  Controller
	eventBus    *events.Bus
	unsubscribe func()
	logger      logging.Logger

	mu      sync.Mutex
	current string
}

// NewManager creates a new LED manager.
func NewManager(controller Controller, eventBus *events.Bus, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.GetLogger("led")
	}
	return &Manager{
		controller: controller,
		eventBus:   eventBus,
		logger:     logger,
	}
}

// Start begins listening for state change events.
func (m *Manager) Start() {
	m.unsubscribe = m.eventBus.Subscribe(func(e events.StateChangedEvent) {
		m.handleState(e.To)
	})
	m.logger.Info("LED manager started")
}

// Stop unsubscribes and turns the LED off.
func (m *Manager) Stop() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.handleState(monitor.StateStopped)
	m.logger.Info("LED manager stopped")
}

func (m *Manager) handleState(state string) {
	s, ok := stateSettings[state]
	if !ok {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == state {
		return
	}
	m.current = state

	if err := m.controller.Set(Status, s.enabled, s.pattern); err != nil {
		m.logger.Warn("Failed to set status LED", "state", state, "pattern", s.pattern, "error", err)
		return
	}
	m.logger.Debug("Status LED updated", "state", state, "enabled", s.enabled, "pattern", s.pattern)
}

// Controller returns the underlying LED controller.
func (m *Manager) Controller() Controller {
	return m.controller
}
