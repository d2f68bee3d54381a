// Package systemd integrates with the service manager: readiness and
// watchdog notifications over sd_notify, and unit control over D-Bus.
package systemd

import (
	"context"

	"github.com/coreos/go-systemd/v22/dbus"
)

// ServiceName is the unit sitemon is installed as.
const ServiceName = "sitemon.service"

// Manager handles systemd service lifecycle operations via D-Bus.
type Manager struct {
	conn *dbus.Conn
}

// NewManager connects to the system bus, or the user bus when user is true.
func NewManager(ctx context.Context, user bool) (*Manager, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	if user {
		conn, err = dbus.NewUserConnectionContext(ctx)
	} else {
		conn, err = dbus.NewSystemConnectionContext(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &Manager{conn: conn}, nil
}

// ServiceStatus retrieves the ActiveState property of a unit.
func (m *Manager) ServiceStatus(ctx context.Context, unit string) (string, error) {
	prop, err := m.conn.GetUnitPropertyContext(ctx, unit, "ActiveState")
	if err != nil {
		return "", err
	}
	if state, ok := prop.Value.Value().(string); ok {
		return state, nil
	}
	return prop.Value.String(), nil
}

// RestartService queues a restart of unit in replace mode. It returns once
// the job is queued, which matters when unit is this process.
func (m *Manager) RestartService(ctx context.Context, unit string) error {
	_, err := m.conn.RestartUnitContext(ctx, unit, "replace", nil)
	return err
}

// Close cleanly closes the D-Bus connection.
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}
