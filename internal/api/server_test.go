package api

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/sitemon/internal/api/models"
	"github.com/smazurov/sitemon/internal/events"
	"github.com/smazurov/sitemon/internal/evidence"
	"github.com/smazurov/sitemon/internal/monitor"
	"github.com/smazurov/sitemon/internal/process"
)

type fakeMonitor struct {
	mu     sync.Mutex
	tuning monitor.Tuning
}

func (f *fakeMonitor) Status() monitor.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return monitor.Status{State: monitor.StateWatching, Device: "/dev/video0", Threshold: f.tuning.Threshold}
}

func (f *fakeMonitor) CurrentTuning() monitor.Tuning {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tuning
}

func (f *fakeMonitor) Tune(t monitor.Tuning) {
	f.mu.Lock()
	f.tuning = t
	f.mu.Unlock()
}

type fakeOnMotion struct{}

func (fakeOnMotion) Info() process.RunnerInfo {
	return process.RunnerInfo{Command: "stream --live", State: process.StateRunning, Runs: 1}
}

type fakeService struct {
	restarted string
	fail      bool
}

func (f *fakeService) ServiceStatus(_ context.Context, _ string) (string, error) {
	if f.fail {
		return "", errors.New("dbus unavailable")
	}
	return "active", nil
}

func (f *fakeService) RestartService(_ context.Context, unit string) error {
	f.restarted = unit
	return nil
}

type testEnv struct {
	ts      *httptest.Server
	bus     *events.Bus
	monitor *fakeMonitor
	service *fakeService
	dir     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		bus: events.New(),
		monitor: &fakeMonitor{tuning: monitor.Tuning{
			Threshold: 5,
			Interval:  0,
			Cooldown:  30 * time.Second,
		}},
		service: &fakeService{},
		dir:     dir,
	}
	server := NewServer(&Options{
		AuthUsername:   "admin",
		AuthPassword:   "secret",
		EventBus:       env.bus,
		Monitor:        env.monitor,
		Evidence:       evidence.NewStore(dir, 0, nil),
		OnMotion:       fakeOnMotion{},
		SystemdManager: env.service,
		PrometheusHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "sitemon_up 1\n")
		}),
	})
	env.ts = httptest.NewServer(server.Handler())
	t.Cleanup(env.ts.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, auth bool) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.SetBasicAuth("admin", "secret")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		path   string
		auth   bool
		status int
	}{
		{name: "health is public", path: "/api/health", status: http.StatusOK},
		{name: "version is public", path: "/api/version", status: http.StatusOK},
		{name: "metrics is public", path: "/metrics", status: http.StatusOK},
		{name: "status requires credentials", path: "/api/status", status: http.StatusUnauthorized},
		{name: "status with credentials", path: "/api/status", auth: true, status: http.StatusOK},
		{name: "evidence requires credentials", path: "/api/evidence", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, tt.path, "", tt.auth)
			if resp.StatusCode != tt.status {
				t.Fatalf("GET %s = %d, want %d", tt.path, resp.StatusCode, tt.status)
			}
			if tt.status == http.StatusUnauthorized && resp.Header.Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestAuthQueryParameter(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		creds  string
		status int
	}{
		{creds: "admin:secret", status: http.StatusOK},
		{creds: "admin:wrong", status: http.StatusUnauthorized},
		{creds: "nocolon", status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.creds, func(t *testing.T) {
			encoded := base64.StdEncoding.EncodeToString([]byte(tt.creds))
			resp := env.do(t, http.MethodGet, "/api/status?auth="+encoded, "", false)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/status", "", true)
	status := decode[monitor.Status](t, resp)
	if status.State != monitor.StateWatching || status.Device != "/dev/video0" {
		t.Errorf("status = %+v", status)
	}
}

func TestTuning(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/tuning", "", true)
	got := decode[models.TuningData](t, resp)
	if got.Threshold != 5 || got.Cooldown != "30s" || got.Interval != "0s" {
		t.Fatalf("tuning = %+v", got)
	}

	resp = env.do(t, http.MethodPatch, "/api/tuning", `{"threshold": 9, "interval": "500ms"}`, true)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("PATCH = %d: %s", resp.StatusCode, body)
	}
	got = decode[models.TuningData](t, resp)
	if got.Threshold != 9 || got.Interval != "500ms" || got.Cooldown != "30s" {
		t.Errorf("tuning after patch = %+v", got)
	}
	if tuning := env.monitor.CurrentTuning(); tuning.Interval != 500*time.Millisecond {
		t.Errorf("monitor interval = %v, want 500ms", tuning.Interval)
	}

	for _, body := range []string{`{"cooldown": "soon"}`, `{"interval": "-1s"}`} {
		resp = env.do(t, http.MethodPatch, "/api/tuning", body, true)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("PATCH %s = %d, want 400", body, resp.StatusCode)
		}
	}
	if tuning := env.monitor.CurrentTuning(); tuning.Threshold != 9 || tuning.Cooldown != 30*time.Second {
		t.Errorf("rejected patch changed tuning: %+v", tuning)
	}
}

func TestOnMotion(t *testing.T) {
	env := newTestEnv(t)

	info := decode[process.RunnerInfo](t, env.do(t, http.MethodGet, "/api/on-motion", "", true))
	if info.State != process.StateRunning || info.Runs != 1 {
		t.Errorf("on-motion = %+v", info)
	}
}

func TestNewServerSchemaNames(t *testing.T) {
	server := NewServer(&Options{
		EventBus: events.New(),
		Monitor:  &fakeMonitor{},
		OnMotion: fakeOnMotion{},
	})

	schemas := server.API().OpenAPI().Components.Schemas.Map()
	for _, name := range []string{"Info", "RunnerInfo", "Status"} {
		if _, ok := schemas[name]; !ok {
			t.Errorf("schema %q not registered", name)
		}
	}
}

func writeEvidence(t *testing.T, dir, name, content string, age time.Duration) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	mtime := time.Now().Add(-age)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func TestEvidence(t *testing.T) {
	env := newTestEnv(t)
	writeEvidence(t, env.dir, "1700000000.pgm", "P5\n1 1\n255\n\x00", 2*time.Minute)
	writeEvidence(t, env.dir, "1700000060.jpeg", "\xff\xd8jpeg\xff\xd9", time.Minute)
	writeEvidence(t, env.dir, "notes.txt", "ignored", 0)

	list := decode[models.EvidenceListData](t, env.do(t, http.MethodGet, "/api/evidence?limit=1", "", true))
	if list.Total != 2 || list.Count != 1 {
		t.Fatalf("list = %+v", list)
	}
	if list.Files[0].Name != "1700000060.jpeg" {
		t.Errorf("newest = %s, want 1700000060.jpeg", list.Files[0].Name)
	}

	usage := decode[evidence.Usage](t, env.do(t, http.MethodGet, "/api/evidence/usage", "", true))
	if usage.Files != 2 {
		t.Errorf("usage = %+v", usage)
	}

	tests := []struct {
		name        string
		status      int
		contentType string
	}{
		{name: "1700000060.jpeg", status: http.StatusOK, contentType: "image/jpeg"},
		{name: "1700000000.pgm", status: http.StatusOK, contentType: "image/x-portable-graymap"},
		{name: "notes.txt", status: http.StatusNotFound},
		{name: "1700000099.pgm", status: http.StatusNotFound},
		{name: "..%2F1700000000.pgm", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, "/api/evidence/"+tt.name, "", true)
			if resp.StatusCode != tt.status {
				t.Fatalf("GET %s = %d, want %d", tt.name, resp.StatusCode, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}
			if ct := resp.Header.Get("Content-Type"); ct != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", ct, tt.contentType)
			}
			want, _ := os.ReadFile(filepath.Join(env.dir, tt.name))
			got, _ := io.ReadAll(resp.Body)
			if string(got) != string(want) {
				t.Errorf("body = %q, want %q", got, want)
			}
		})
	}
}

func TestLogs(t *testing.T) {
	env := newTestEnv(t)

	logs := decode[models.LogsData](t, env.do(t, http.MethodGet, "/api/logs?limit=5", "", true))
	if logs.Count != len(logs.Entries) || logs.Count > 5 {
		t.Errorf("logs count = %d with %d entries", logs.Count, len(logs.Entries))
	}
}

func TestServiceRoutes(t *testing.T) {
	env := newTestEnv(t)

	status := decode[models.SystemdServiceStatus](t, env.do(t, http.MethodGet, "/api/service/status", "", true))
	if status.Status != "active" || status.Service != "sitemon.service" {
		t.Errorf("service status = %+v", status)
	}

	action := decode[models.SystemdServiceAction](t, env.do(t, http.MethodPost, "/api/service/restart", "", true))
	if !action.Success || env.service.restarted != "sitemon.service" {
		t.Errorf("restart = %+v, restarted %q", action, env.service.restarted)
	}

	env.service.fail = true
	if resp := env.do(t, http.MethodGet, "/api/service/status", "", true); resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("failing status = %d, want 500", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodOptions, "/api/status", "", false)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("OPTIONS = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing Access-Control-Allow-Origin")
	}
}

func TestSSEEvents(t *testing.T) {
	env := newTestEnv(t)

	credentials := base64.StdEncoding.EncodeToString([]byte("admin:secret"))
	resp, err := http.Get(fmt.Sprintf("%s/api/events?auth=%s", env.ts.URL, credentials))
	if err != nil {
		t.Fatalf("Failed to connect to SSE: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("Expected SSE content type, got %s", resp.Header.Get("Content-Type"))
	}

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				lines <- line
			}
		}
	}()

	next := func() string {
		t.Helper()
		select {
		case line := <-lines:
			return line
		case <-time.After(2 * time.Second):
			t.Fatal("Timeout waiting for SSE line")
			return ""
		}
	}

	if line := next(); line != "event: state-changed" {
		t.Errorf("first event line = %q", line)
	}
	if line := next(); !strings.Contains(line, `"to":"watching"`) {
		t.Errorf("first data line = %q", line)
	}

	env.bus.Publish(events.MotionDetectedEvent{
		IncidentID: "incident-1",
		DevicePath: "/dev/video0",
		Score:      12,
		Threshold:  5,
		Timestamp:  time.Now(),
	})

	if line := next(); line != "event: motion-detected" {
		t.Errorf("event line = %q", line)
	}
	if line := next(); !strings.Contains(line, "incident-1") {
		t.Errorf("data line = %q", line)
	}
}

func TestStatusPage(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/", "", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "EventSource") {
		t.Error("status page missing event stream client")
	}

	if resp := env.do(t, http.MethodGet, "/api/nope", "", true); resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /api/nope = %d, want 404", resp.StatusCode)
	}
}
