package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/smazurov/sitemon/internal/logging"
)

// exitKilled is reported when the process had to be killed.
const exitKilled = 137

// OutputHandler receives output lines from the subprocess.
type OutputHandler interface {
	HandleLine(source, line string)
}

// Process manages the lifecycle of one subprocess run.
type Process struct {
	id            string
	command       string
	cmd           *exec.Cmd
	logger        logging.Logger
	processLogger logging.Logger // logger for process output (nil = use logger)
	outputHandler OutputHandler
	stopSignal    syscall.Signal
	gracefulTime  time.Duration // wait after stopSignal before SIGKILL
	killTimeout   time.Duration // wait after SIGKILL before giving up
	started       chan int      // receives the pid once started
}

// NewProcess creates a process stopped with SIGINT.
func NewProcess(id, command string, logger logging.Logger) *Process {
	if logger == nil {
		logger = logging.GetLogger("process")
	}
	return &Process{
		id:           id,
		command:      command,
		logger:       logger,
		stopSignal:   syscall.SIGINT,
		gracefulTime: 5 * time.Second,
		killTimeout:  5 * time.Second,
		started:      make(chan int, 1),
	}
}

// SetStopSignal sets the signal sent when the run context ends.
func (p *Process) SetStopSignal(sig syscall.Signal) {
	p.stopSignal = sig
}

// SetGracePeriod sets how long the process may take to exit after the stop
// signal before it is killed.
func (p *Process) SetGracePeriod(d time.Duration) {
	p.gracefulTime = d
}

// SetOutput routes process output to logger and, when non-nil, handler.
func (p *Process) SetOutput(logger logging.Logger, handler OutputHandler) {
	p.processLogger = logger
	p.outputHandler = handler
}

// Started delivers the pid once the process is running.
func (p *Process) Started() <-chan int {
	return p.started
}

// runningProcess holds channels for monitoring a running subprocess.
type runningProcess struct {
	processDone <-chan error
	outputDone  chan struct{} // receives twice, once per output stream
}

// start parses the command, starts the subprocess, and returns channels for monitoring.
func (p *Process) start() (*runningProcess, error) {
	args, err := parseCommand(p.command)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}

	p.cmd = exec.Command(args[0], args[1:]...)
	// own process group so shell wrappers pass the stop signal on
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := p.cmd.Start(); err != nil {
		return nil, err
	}

	pid := p.cmd.Process.Pid
	p.logger.Info("Process started", "id", p.id, "pid", pid, "command", p.command)
	p.started <- pid

	outputDone := make(chan struct{}, 2)
	go func() {
		p.streamOutput(stdout, "stdout")
		outputDone <- struct{}{}
	}()
	go func() {
		p.streamOutput(stderr, "stderr")
		outputDone <- struct{}{}
	}()

	processDone := make(chan error, 1)
	go func() {
		// output must drain before Wait closes the pipes
		<-outputDone
		<-outputDone
		processDone <- p.cmd.Wait()
	}()

	return &runningProcess{processDone: processDone, outputDone: outputDone}, nil
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}

// Run starts the subprocess and blocks until it exits or ctx ends, in which
// case the stop signal is sent. It returns the exit code, and an error when
// the process could not be started.
func (p *Process) Run(ctx context.Context) (int, error) {
	rp, err := p.start()
	if err != nil {
		p.logger.Error("Failed to start process", "id", p.id, "command", p.command, "error", err)
		return 1, err
	}

	select {
	case <-ctx.Done():
		p.signal(p.stopSignal)
		return p.waitForExit(rp.processDone), nil
	case processErr := <-rp.processDone:
		exitCode := exitCodeFromError(processErr)
		p.logger.Info("Process exited", "id", p.id, "exit_code", exitCode)
		return exitCode, nil
	}
}

// signal delivers sig to the process group.
func (p *Process) signal(sig syscall.Signal) {
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	pid := p.cmd.Process.Pid
	p.logger.Info("Signalling process", "id", p.id, "pid", pid, "signal", sig.String())
	if err := syscall.Kill(-pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Warn("Failed to signal process", "pid", pid, "error", err)
	}
}

// waitForExit waits out the grace period, force-killing if needed.
func (p *Process) waitForExit(processDone <-chan error) int {
	select {
	case err := <-processDone:
		exitCode := exitCodeFromError(err)
		p.logger.Info("Process stopped", "id", p.id, "exit_code", exitCode)
		return exitCode
	case <-time.After(p.gracefulTime):
		p.logger.Warn("Graceful shutdown timeout, forcing kill", "id", p.id, "timeout", p.gracefulTime)
		p.signal(syscall.SIGKILL)
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.logger.Error("Failed to kill process", "error", err)
		}
		select {
		case <-processDone:
		case <-time.After(p.killTimeout):
			p.logger.Error("Process did not exit after kill signal", "id", p.id)
		}
		return exitKilled
	}
}

// streamOutput logs each output line at info level, or warn for stderr.
func (p *Process) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)

	logger := p.processLogger
	if logger == nil {
		logger = p.logger
	}

	for scanner.Scan() {
		line := scanner.Text()
		if p.outputHandler != nil {
			p.outputHandler.HandleLine(source, line)
		}
		if source == "stderr" {
			logger.Warn(line, "id", p.id)
		} else {
			logger.Info(line, "id", p.id)
		}
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading output", "source", source, "error", err)
	}
}

// parseCommand parses a command string into arguments
// Handles quoted strings and basic escaping.
func parseCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	runes := []rune(strings.TrimSpace(command))

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case (r == ' ' || r == '\t') && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}
	if inQuote {
		return nil, errors.New("unclosed quote in command")
	}
	return args, nil
}
