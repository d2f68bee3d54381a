package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

const historySize = 1000

// Logger is the subset of *slog.Logger that packages depend on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var (
	mutex       sync.RWMutex
	loggers     = make(map[string]*slog.Logger)
	levels      = make(map[string]*slog.LevelVar)
	globalLevel = &slog.LevelVar{}
	current     Config
	initialized bool
	history     *RingBuffer
)

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

// levelFor resolves the effective level of module under cfg.
func (cfg Config) levelFor(module string) slog.Level {
	level, ok := parseLevel(cfg.Level)
	if !ok {
		level = slog.LevelInfo
	}
	if override, exists := cfg.Modules[module]; exists {
		if parsed, ok := parseLevel(override); ok {
			level = parsed
		}
	}
	return level
}

// Initialize sets up handlers and levels. Loggers handed out earlier keep
// their pointer identity; their handlers are rebuilt in place.
func Initialize(cfg Config) {
	mutex.Lock()
	defer mutex.Unlock()

	current = cfg
	initialized = true
	if history == nil {
		history = NewRingBuffer(historySize)
	}

	globalLevel.Set(cfg.levelFor(""))
	for module, levelVar := range levels {
		levelVar.Set(cfg.levelFor(module))
		*loggers[module] = *slog.New(createHandler(cfg.Format, levelVar)).With("module", module)
	}

	slog.SetDefault(slog.New(createHandler(cfg.Format, globalLevel)))
}

// SetLevels changes levels at runtime without touching handlers or format.
func SetLevels(level string, modules map[string]string) {
	mutex.Lock()
	defer mutex.Unlock()

	current.Level = level
	current.Modules = modules
	globalLevel.Set(current.levelFor(""))
	for module, levelVar := range levels {
		levelVar.Set(current.levelFor(module))
	}
}

// History returns the in-memory log history, nil before Initialize.
func History() *RingBuffer {
	mutex.RLock()
	defer mutex.RUnlock()
	return history
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	logger, ok := loggers[module]
	mutex.RUnlock()
	if ok {
		return logger
	}

	mutex.Lock()
	defer mutex.Unlock()
	if logger, ok := loggers[module]; ok {
		return logger
	}

	levelVar := &slog.LevelVar{}
	format := "text"
	if initialized {
		levelVar.Set(current.levelFor(module))
		format = current.Format
	}

	logger = slog.New(createHandler(format, levelVar)).With("module", module)
	loggers[module] = logger
	levels[module] = levelVar
	return logger
}

// createHandler fans out to stdout, the journal when present, and history.
func createHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdout slog.Handler
	if format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, stdout)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, NewBufferHandler(level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

// isStdoutAvailable reports false when stdout is /dev/null or closed.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&os.ModeCharDevice != 0 || mode&os.ModeNamedPipe != 0 || mode&os.ModeSocket != 0 || mode.IsRegular()
}

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}
