// Package alert turns motion events into notifications. A Dispatcher
// rate-limits incidents and hands them to one or more Notifiers on its own
// goroutine so the camera loop never waits on a modem or a broker.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/smazurov/sitemon/internal/events"
)

// Alert is one incident to report.
type Alert struct {
	IncidentID string    `json:"incident_id"`
	DevicePath string    `json:"device_path"`
	Score      uint64    `json:"score"`
	Threshold  uint64    `json:"threshold"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// FromMotion builds the alert for a motion event.
func FromMotion(e events.MotionDetectedEvent, message string) Alert {
	return Alert{
		IncidentID: e.IncidentID,
		DevicePath: e.DevicePath,
		Score:      e.Score,
		Threshold:  e.Threshold,
		Message:    message,
		Timestamp:  e.Timestamp,
	}
}

// Text renders the alert for short-message channels.
func (a Alert) Text() string {
	if a.Timestamp.IsZero() {
		return a.Message
	}
	return fmt.Sprintf("%s at %s (score %d)", a.Message, a.Timestamp.Format("2006-01-02 15:04:05"), a.Score)
}

// Notifier delivers alerts over one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, a Alert) error
}
