package process

import (
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/smazurov/sitemon/internal/events"
)

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) record(_, state State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, state)
}

func (l *stateLog) snapshot() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

// waitState polls until the runner reports want.
func waitState(t *testing.T, r *Runner, want State, timeout time.Duration) RunnerInfo {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if info := r.Info(); info.State == want {
			return info
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("runner state = %s, want %s", r.Info().State, want)
	return RunnerInfo{}
}

func loopCommand() string {
	return `sh -c "trap 'exit 0' QUIT; while :; do sleep 0.05; done"`
}

func TestRunnerStopsAfterWindow(t *testing.T) {
	states := &stateLog{}
	r := NewRunner(RunnerOptions{
		Command:       loopCommand(),
		Window:        150 * time.Millisecond,
		Signal:        syscall.SIGQUIT,
		Grace:         time.Second,
		OnStateChange: states.record,
		Logger:        testLogger(),
	})
	defer r.Close()

	r.Trigger("incident-1")
	info := waitState(t, r, StateRunning, time.Second)
	if info.IncidentID != "incident-1" || info.Runs != 1 {
		t.Errorf("Info() = %+v", info)
	}

	info = waitState(t, r, StateIdle, 2*time.Second)
	if info.LastExit != 0 {
		t.Errorf("LastExit = %d, want 0", info.LastExit)
	}

	got := states.snapshot()
	want := []State{StateRunning, StateStopping, StateIdle}
	if len(got) != len(want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("states = %v, want %v", got, want)
		}
	}
}

func TestRunnerTriggerExtendsWindow(t *testing.T) {
	r := NewRunner(RunnerOptions{
		Command: loopCommand(),
		Window:  200 * time.Millisecond,
		Signal:  syscall.SIGQUIT,
		Logger:  testLogger(),
	})
	defer r.Close()

	r.Trigger("a")
	waitState(t, r, StateRunning, time.Second)

	for range 3 {
		time.Sleep(100 * time.Millisecond)
		r.Trigger("b")
	}
	info := r.Info()
	if info.State != StateRunning {
		t.Fatalf("state = %s after extensions, want running", info.State)
	}
	if info.Runs != 1 {
		t.Errorf("Runs = %d, want 1", info.Runs)
	}
	if info.IncidentID != "a" {
		t.Errorf("IncidentID = %q, want the starting incident", info.IncidentID)
	}

	waitState(t, r, StateIdle, 2*time.Second)
}

func TestRunnerCommandFailure(t *testing.T) {
	r := NewRunner(RunnerOptions{
		Command: "/nonexistent/on-motion",
		Window:  time.Second,
		Logger:  testLogger(),
	})
	defer r.Close()

	r.Trigger("x")
	info := waitState(t, r, StateError, time.Second)
	if info.LastError == "" {
		t.Error("LastError empty after start failure")
	}

	r.Trigger("y")
	waitState(t, r, StateError, time.Second)
	if runs := r.Info().Runs; runs != 2 {
		t.Errorf("Runs = %d, want 2", runs)
	}
}

func TestRunnerCloseStopsCommand(t *testing.T) {
	r := NewRunner(RunnerOptions{
		Command: loopCommand(),
		Window:  time.Hour,
		Signal:  syscall.SIGQUIT,
		Logger:  testLogger(),
	})

	r.Trigger("x")
	waitState(t, r, StateRunning, time.Second)

	start := time.Now()
	r.Close()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Close took %v", elapsed)
	}
	if info := r.Info(); info.State != StateIdle {
		t.Errorf("state after Close = %s, want idle", info.State)
	}

	r.Trigger("after close")
	if runs := r.Info().Runs; runs != 1 {
		t.Errorf("Trigger after Close started a run")
	}
}

func TestRunnerAttach(t *testing.T) {
	bus := events.New()
	r := NewRunner(RunnerOptions{
		Command: "true",
		Window:  time.Second,
		Logger:  testLogger(),
	})
	defer r.Close()

	unsub := r.Attach(bus)
	defer unsub()

	bus.Publish(events.MotionDetectedEvent{IncidentID: "from-bus", DevicePath: "/dev/video0"})

	deadline := time.Now().Add(time.Second)
	for r.Info().Runs == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	info := waitState(t, r, StateIdle, time.Second)
	if info.IncidentID != "from-bus" {
		t.Errorf("IncidentID = %q, want from-bus", info.IncidentID)
	}
}
