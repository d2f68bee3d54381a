package process

import (
	"context"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/sitemon/internal/events"
	"github.com/smazurov/sitemon/internal/logging"
)

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	// Command is the command line started on motion (required).
	Command string
	// Window is how long the command runs after the last motion.
	Window time.Duration
	// Signal stops the command when the window ends. Default SIGINT.
	Signal syscall.Signal
	// Grace is the wait after Signal before SIGKILL. Default 5s.
	Grace time.Duration
	// OnStateChange is called on every state transition (optional). It runs
	// with the runner locked and must not call back into it.
	OnStateChange func(old, new State)
	// Logger for runner operations. If nil, uses the "process" module logger.
	Logger logging.Logger
}

// Runner keeps at most one on-motion command alive. Motion while it runs
// extends the window instead of starting a second copy.
type Runner struct {
	opts   RunnerOptions
	logger logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	info   RunnerInfo
	extend chan struct{}
}

// NewRunner creates a Runner. Nothing starts until Trigger.
func NewRunner(opts RunnerOptions) *Runner {
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("process")
	}
	if opts.Signal == 0 {
		opts.Signal = syscall.SIGINT
	}
	if opts.Grace <= 0 {
		opts.Grace = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		opts:   opts,
		logger: opts.Logger,
		ctx:    ctx,
		cancel: cancel,
		info:   RunnerInfo{Command: opts.Command, State: StateIdle},
	}
}

// Attach subscribes the runner to motion events and returns the unsubscribe
// function.
func (r *Runner) Attach(bus *events.Bus) func() {
	return bus.Subscribe(func(e events.MotionDetectedEvent) {
		r.Trigger(e.IncidentID)
	})
}

// Trigger starts the command, or pushes the end of the running window out.
func (r *Runner) Trigger(incidentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx.Err() != nil {
		return
	}
	if r.info.State == StateRunning {
		r.info.StopAt = time.Now().Add(r.opts.Window)
		select {
		case r.extend <- struct{}{}:
		default:
		}
		r.logger.Debug("On-motion window extended", "incident_id", incidentID, "stop_at", r.info.StopAt)
		return
	}
	if r.info.State == StateStopping {
		r.logger.Debug("On-motion command still stopping, trigger ignored", "incident_id", incidentID)
		return
	}

	r.extend = make(chan struct{}, 1)
	r.info.IncidentID = incidentID
	r.info.StartedAt = time.Now()
	r.info.StopAt = r.info.StartedAt.Add(r.opts.Window)
	r.info.LastError = ""
	r.info.Runs++
	r.setState(StateRunning)

	proc := NewProcess(fmt.Sprintf("on-motion-%d", r.info.Runs), r.opts.Command, r.logger)
	proc.SetStopSignal(r.opts.Signal)
	proc.SetGracePeriod(r.opts.Grace)

	r.wg.Add(1)
	go r.run(proc, r.extend)
}

func (r *Runner) run(proc *Process, extend <-chan struct{}) {
	defer r.wg.Done()

	ctx, cancel := context.WithCancel(r.ctx)
	defer cancel()

	type result struct {
		code int
		err  error
	}
	done := make(chan result, 1)
	go func() {
		code, err := proc.Run(ctx)
		done <- result{code, err}
	}()

	timer := time.NewTimer(r.opts.Window)
	defer timer.Stop()

	for {
		select {
		case pid := <-proc.Started():
			r.mu.Lock()
			r.info.PID = pid
			r.mu.Unlock()
		case <-extend:
			timer.Reset(r.opts.Window)
		case <-timer.C:
			r.logger.Info("On-motion window elapsed, stopping command", "signal", r.opts.Signal.String())
			r.mu.Lock()
			r.setState(StateStopping)
			r.mu.Unlock()
			cancel()
		case res := <-done:
			r.finish(res.code, res.err)
			return
		}
	}
}

func (r *Runner) finish(code int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stopping := r.info.State == StateStopping || r.ctx.Err() != nil
	r.info.PID = 0
	r.info.LastExit = code
	switch {
	case err != nil:
		r.info.LastError = err.Error()
		r.setState(StateError)
	case code != 0 && !stopping:
		r.setState(StateError)
	default:
		r.setState(StateIdle)
	}
}

// setState must be called with mu held.
func (r *Runner) setState(state State) {
	old := r.info.State
	r.info.State = state
	if old != state && r.opts.OnStateChange != nil {
		r.opts.OnStateChange(old, state)
	}
}

// Info returns a snapshot of the command state.
func (r *Runner) Info() RunnerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info
}

// Close stops a running command and waits for it to exit.
func (r *Runner) Close() {
	r.cancel()
	r.wg.Wait()
}
