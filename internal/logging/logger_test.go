package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func resetState(t *testing.T) {
	t.Helper()
	mutex.Lock()
	loggers = make(map[string]*slog.Logger)
	levels = make(map[string]*slog.LevelVar)
	current = Config{}
	initialized = false
	history = nil
	mutex.Unlock()
}

func TestModuleLevelOverride(t *testing.T) {
	resetState(t)
	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"monitor": "debug",
			"modem":   "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"monitor", true, true, true},
		{"modem", false, false, true},
		{"other", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			handler := GetLogger(tt.module).Handler()
			ctx := context.Background()

			if got := handler.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("Debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := handler.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("Info enabled = %v, want %v", got, tt.wantInfo)
			}
			if got := handler.Enabled(ctx, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("Warn enabled = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	resetState(t)

	before := GetLogger("camera")
	if before.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger created before Initialize should default to info")
	}

	Initialize(Config{Level: "info", Format: "text", Modules: map[string]string{"camera": "debug"}})

	after := GetLogger("camera")
	if before != after {
		t.Error("logger should keep its identity across Initialize")
	}
	if !before.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("cached logger should pick up the debug override")
	}
}

func TestSetLevels(t *testing.T) {
	resetState(t)
	Initialize(Config{Level: "info", Format: "text"})
	logger := GetLogger("alert")
	ctx := context.Background()

	if logger.Handler().Enabled(ctx, slog.LevelDebug) {
		t.Fatal("debug enabled before SetLevels")
	}
	SetLevels("warn", map[string]string{"alert": "debug"})
	if !logger.Handler().Enabled(ctx, slog.LevelDebug) {
		t.Error("alert should log debug after SetLevels")
	}
	if GetLogger("api").Handler().Enabled(ctx, slog.LevelInfo) {
		t.Error("api should follow the new global warn level")
	}
}

func TestHistoryCapturesEntries(t *testing.T) {
	resetState(t)
	Initialize(Config{Level: "debug", Format: "text"})

	logger := GetLogger("monitor").With("incident_id", "abc")
	logger.WithGroup("cycle").Info("Motion detected", "score", 12, "delay", 250*time.Millisecond, "error", errors.New("boom"))

	entries := History().Last(1)
	if len(entries) != 1 {
		t.Fatalf("history has %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Module != "monitor" || e.Level != "info" || e.Message != "Motion detected" {
		t.Errorf("unexpected entry %+v", e)
	}
	want := map[string]any{
		"incident_id": "abc",
		"cycle.score": int64(12),
		"cycle.delay": "250ms",
		"cycle.error": "boom",
	}
	for k, v := range want {
		if e.Attributes[k] != v {
			t.Errorf("attribute %s = %#v, want %#v", k, e.Attributes[k], v)
		}
	}
}

func TestRingBufferWraps(t *testing.T) {
	rb := NewRingBuffer(3)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		rb.Write(LogEntry{Message: msg})
	}
	if rb.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", rb.Count())
	}
	var got []string
	for _, e := range rb.ReadAll() {
		got = append(got, e.Message)
	}
	if strings.Join(got, "") != "cde" {
		t.Errorf("ReadAll() = %v, want [c d e]", got)
	}
	if last := rb.Last(2); len(last) != 2 || last[1].Message != "e" {
		t.Errorf("Last(2) = %+v", last)
	}
	if NewRingBuffer(2).ReadAll() != nil {
		t.Error("empty buffer should read nil")
	}
}

func TestMultiHandlerDebugOutput(t *testing.T) {
	var buf bytes.Buffer
	debugHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	infoHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(NewMultiHandler(debugHandler, infoHandler)).With("module", "test")
	logger.Debug("debug only message")
	logger.Info("both")

	output := buf.String()
	if n := strings.Count(output, "debug only message"); n != 1 {
		t.Errorf("debug message written %d times, want 1. Output: %s", n, output)
	}
	if n := strings.Count(output, "msg=both"); n != 2 {
		t.Errorf("info message written %d times, want 2", n)
	}
}

func TestParseLevelValues(t *testing.T) {
	tests := []struct {
		input  string
		want   slog.Level
		wantOK bool
	}{
		{"debug", slog.LevelDebug, true},
		{"DEBUG", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"invalid", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := parseLevel(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("parseLevel(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
