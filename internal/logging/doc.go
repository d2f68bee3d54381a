// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stdout when a terminal, pipe, or file is connected
//   - Logs to both when both are available
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",      // Global log level: debug, info, warn, error
//		Format: "text",      // Output format: text or json
//		Modules: map[string]string{
//			"monitor": "debug",  // Per-module overrides
//			"modem":   "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("mymodule")
//	logger.Info("Starting up", "port", 8080)
//	logger.Debug("Details", "config", cfg)
//	logger.Warn("Something unusual", "error", err)
//	logger.Error("Failed", "error", err)
//
// Add contextual attributes:
//
//	logger := logging.GetLogger("monitor").With("incident_id", id)
//	logger.Info("Recording burst started")  // Includes incident_id in all logs
//
// # Log Levels
//
//	debug - Verbose debugging information
//	info  - General operational messages
//	warn  - Warning conditions
//	error - Error conditions
//
// # Output Destinations
//
// The system automatically detects available outputs:
//
//	Journal available + stdout available → MultiHandler (both)
//	Journal available only              → JournalHandler
//	Stdout available only               → TextHandler or JSONHandler
//
// Journal availability is checked via [github.com/coreos/go-systemd/v22/journal.Enabled].
//
// # Viewing Logs
//
// When running as a systemd service or on a system with journald:
//
//	journalctl -t sitemon              # All sitemon logs
//	journalctl -t sitemon -f           # Follow live
//	journalctl -t sitemon --since "5m" # Last 5 minutes
//	journalctl -t sitemon -p err       # Errors only
//
// Filter by structured fields:
//
//	journalctl -t sitemon MODULE=monitor
//	journalctl -t sitemon INCIDENT_ID=<uuid>
//
// # History
//
// Every handler chain also feeds an in-memory ring of the last 1000 entries,
// served by the status API at /api/logs. [History] returns it.
//
// # Configuration
//
// Log levels can be set globally or per-module. Module-specific levels
// override the global level for that module only. [SetLevels] applies new
// levels at runtime, which the config watcher uses on reload.
//
//	[logging]
//	level = "info"
//	format = "text"
//	monitor = "debug"
//	modem = "warn"
package logging
