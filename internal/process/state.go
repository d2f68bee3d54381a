package process

import "time"

// State represents the current state of the on-motion command.
type State string

// Process states.
const (
	StateIdle     State = "idle"     // Not running
	StateRunning  State = "running"  // Active
	StateStopping State = "stopping" // Stop signal sent
	StateError    State = "error"    // Failed to start or exited non-zero
)

// RunnerInfo describes the on-motion command.
type RunnerInfo struct {
	Command    string    `json:"command" doc:"Configured command line"`
	State      State     `json:"state" doc:"idle, running, stopping or error"`
	PID        int       `json:"pid,omitempty" doc:"Process id while running"`
	StartedAt  time.Time `json:"started_at,omitzero" doc:"When the current or last run started"`
	StopAt     time.Time `json:"stop_at,omitzero" doc:"When the window ends unless motion extends it"`
	Runs       int       `json:"runs" doc:"Number of times the command was started"`
	LastExit   int       `json:"last_exit" doc:"Exit code of the last run"`
	LastError  string    `json:"last_error,omitempty" doc:"Start failure of the last run"`
	IncidentID string    `json:"incident_id,omitempty" doc:"Incident that started the current run"`
}
