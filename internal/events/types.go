package events

import (
	"time"

	"github.com/google/uuid"
)

// Event type constants for kelindar/event.
const (
	TypeMotionDetected uint32 = iota + 1
	TypeFramesCaptured
	TypeCaptureError
	TypeStateChanged
	TypeAlertSent
	TypeDeviceChanged
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// NewIncidentID returns a fresh identifier tying a motion event to the
// frames and alerts it produced.
func NewIncidentID() string {
	return uuid.NewString()
}

// MotionDetectedEvent is published when a sensing cycle crosses the threshold.
type MotionDetectedEvent struct {
	IncidentID string    `json:"incident_id" example:"5b1f6c1e-1d55-4a43-9f2a-0d7e0bc6a001" doc:"Incident identifier"`
	DevicePath string    `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Score      uint64    `json:"score" example:"12" doc:"Normalized difference of the compared frames"`
	Threshold  uint64    `json:"threshold" example:"5" doc:"Threshold the score exceeded"`
	Timestamp  time.Time `json:"timestamp" doc:"Detection time"`
}

// Type returns the event type identifier for MotionDetectedEvent.
func (e MotionDetectedEvent) Type() uint32 { return TypeMotionDetected }

// FramesCapturedEvent is published after a recording burst was persisted.
type FramesCapturedEvent struct {
	IncidentID string    `json:"incident_id" doc:"Incident identifier"`
	DevicePath string    `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Paths      []string  `json:"paths" doc:"Evidence files written"`
	Timestamp  time.Time `json:"timestamp" doc:"Capture completion time"`
}

// Type returns the event type identifier for FramesCapturedEvent.
func (e FramesCapturedEvent) Type() uint32 { return TypeFramesCaptured }

// CaptureErrorEvent is published when a capture or sensing cycle fails.
type CaptureErrorEvent struct {
	DevicePath string    `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Op         string    `json:"op" example:"dequeue" doc:"Failed operation"`
	Error      string    `json:"error" example:"dequeue: device i/o error: no such device" doc:"Detailed error description"`
	Timestamp  time.Time `json:"timestamp" doc:"Error time"`
}

// Type returns the event type identifier for CaptureErrorEvent.
func (e CaptureErrorEvent) Type() uint32 { return TypeCaptureError }

// StateChangedEvent is published on every monitor state transition.
type StateChangedEvent struct {
	From      string    `json:"from" example:"watching" doc:"Previous state"`
	To        string    `json:"to" example:"recording" doc:"New state"`
	Timestamp time.Time `json:"timestamp" doc:"Transition time"`
}

// Type returns the event type identifier for StateChangedEvent.
func (e StateChangedEvent) Type() uint32 { return TypeStateChanged }

// AlertSentEvent reports the outcome of one notification attempt.
type AlertSentEvent struct {
	IncidentID string    `json:"incident_id" doc:"Incident identifier"`
	Channel    string    `json:"channel" example:"sms" doc:"Notifier that handled the alert"`
	Success    bool      `json:"success" doc:"Whether delivery succeeded"`
	Error      string    `json:"error,omitempty" doc:"Failure reason"`
	Timestamp  time.Time `json:"timestamp" doc:"Attempt time"`
}

// Type returns the event type identifier for AlertSentEvent.
func (e AlertSentEvent) Type() uint32 { return TypeAlertSent }

// DeviceChangedEvent mirrors a video4linux hotplug uevent.
type DeviceChangedEvent struct {
	DevicePath string    `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Action     string    `json:"action" example:"add" doc:"Action type: add, remove, change"`
	Timestamp  time.Time `json:"timestamp" doc:"Event time"`
}

// Type returns the event type identifier for DeviceChangedEvent.
func (e DeviceChangedEvent) Type() uint32 { return TypeDeviceChanged }
