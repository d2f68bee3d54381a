// Package process runs the on-motion command.
//
// Process wraps os/exec for one subprocess:
//   - Stops with a configurable signal delivered to the process group
//   - Force kill with SIGKILL if the stop grace period runs out
//   - Output lines logged through the process logger
//
// Runner starts a Process when motion is detected and stops it once the
// configured window has passed without new motion:
//
//	runner := process.NewRunner(process.RunnerOptions{
//	    Command: "go2rtc -config /etc/go2rtc.yaml",
//	    Window:  5 * time.Minute,
//	    Signal:  syscall.SIGQUIT,
//	})
//	unsub := runner.Attach(bus)
//	defer unsub()
//	defer runner.Close()
package process
