// Package led drives the board status LED from the monitor state.
package led

// Patterns understood by every controller.
const (
	PatternSolid     = "solid"
	PatternBlink     = "blink"
	PatternHeartbeat = "heartbeat"
)

// Status is the LED role the manager drives. Boards map it to their own LED.
const Status = "status"

// Controller abstracts LED hardware control across different SBC boards.
type Controller interface {
	// Set switches an LED on or off with an optional pattern. An empty
	// pattern leaves the current trigger alone.
	Set(ledType string, enabled bool, pattern string) error

	// Available returns the LED types supported by this controller.
	Available() []string

	// Patterns returns the patterns supported by this controller.
	Patterns() []string
}
