package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/sitemon/cmd"
	"github.com/smazurov/sitemon/internal/alert"
	"github.com/smazurov/sitemon/internal/api"
	"github.com/smazurov/sitemon/internal/config"
	"github.com/smazurov/sitemon/internal/events"
	"github.com/smazurov/sitemon/internal/evidence"
	"github.com/smazurov/sitemon/internal/led"
	"github.com/smazurov/sitemon/internal/logging"
	"github.com/smazurov/sitemon/internal/metrics"
	"github.com/smazurov/sitemon/internal/monitor"
	"github.com/smazurov/sitemon/internal/process"
	"github.com/smazurov/sitemon/internal/systemd"
	"github.com/smazurov/sitemon/pkg/linuxav/hotplug"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var root *cobra.Command

	// The callback runs before every subcommand; only OnStart touches hardware.
	cli := humacli.New(func(hooks humacli.Hooks, opts *config.Options) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		hooks.OnStart(func() {
			defer close(done)
			if err := run(ctx, opts, root); err != nil {
				fmt.Fprintln(os.Stderr, "sitemon:", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			cancel()
			select {
			case <-done:
			case <-time.After(2 * shutdownTimeout):
				fmt.Fprintln(os.Stderr, "sitemon: shutdown timed out")
			}
		})
	})

	root = cli.Root()
	root.Use = "sitemon"
	root.Short = "Motion-triggered camera monitor with SMS and MQTT alerts"

	root.AddCommand(
		cmd.CreateDevicesCmd(),
		cmd.CreateDetectCmd(),
		cmd.CreateCaptureCmd(),
		cmd.CreateNotifyCmd(),
		cmd.CreateVersionCmd(),
	)

	cli.Run()
}

// run wires every component and blocks until ctx is cancelled or the monitor
// fails.
func run(ctx context.Context, opts *config.Options, root *cobra.Command) error {
	// Flags set on the command line win over the file and env.
	configErr := config.LoadConfig(opts, root)

	if configErr != nil {
		// Still honour the [logging] section so the failure is reported properly.
		logging.Initialize(config.LoadLoggingConfig(opts.Config))
	} else {
		logging.Initialize(logging.Config{
			Level:   opts.LoggingLevel,
			Format:  opts.LoggingFormat,
			Modules: opts.LoggingModules(),
		})
	}
	logger := logging.GetLogger("main")

	if configErr != nil {
		logger.Error("Failed to load config", "path", opts.Config, "error", configErr)
		return fmt.Errorf("load config %s: %w", opts.Config, configErr)
	}
	settings, err := opts.Settings()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	eventBus := events.New()

	store := evidence.NewStore(settings.EvidenceDir, settings.EvidenceMaxFiles, nil)
	if err := store.Ensure(); err != nil {
		return err
	}

	engine := monitor.NewEngine(monitor.EngineConfig{
		Width:         settings.Width,
		Height:        settings.Height,
		SenseBuffers:  settings.SenseBuffers,
		RecordBuffers: settings.RecordBuffers,
		SenseDelay:    settings.SenseDelay,
		Slots:         settings.Slots,
	}, nil)
	mon := monitor.New(monitor.Config{
		Device:             settings.Device,
		Threshold:          settings.Threshold,
		Interval:           settings.Interval,
		Cooldown:           settings.Cooldown,
		Frames:             settings.EvidenceFrames,
		RecoveryBackoff:    settings.RecoveryBackoff,
		RecoveryMaxBackoff: settings.RecoveryMaxBackoff,
	}, engine, store, eventBus, nil)

	notifiers, closeNotifiers := cmd.BuildNotifiers(ctx, settings, logger)
	defer closeNotifiers()
	if len(notifiers) == 0 {
		logger.Warn("No alert channels configured, motion will only be recorded")
	}

	// Background work outlives ctx until the deferred teardown below.
	var wg sync.WaitGroup
	bgCtx, stopBackground := context.WithCancel(context.WithoutCancel(ctx))
	defer func() {
		stopBackground()
		wg.Wait()
	}()

	dispatcher := alert.NewDispatcher(alert.DispatcherConfig{
		Message:     settings.AlertMessage,
		MinInterval: settings.AlertMinInterval,
	}, eventBus, nil, notifiers...)
	defer dispatcher.Attach(eventBus)()
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = dispatcher.Run(bgCtx)
	}()

	var runner *process.Runner
	if settings.OnMotionCommand != "" {
		sig, err := process.ParseSignal(settings.OnMotionSignal)
		if err != nil {
			return fmt.Errorf("on_motion.signal: %w", err)
		}
		runner = process.NewRunner(process.RunnerOptions{
			Command: settings.OnMotionCommand,
			Window:  settings.OnMotionWindow,
			Signal:  sig,
		})
		defer runner.Close()
		defer runner.Attach(eventBus)()
	}

	var ledController led.Controller
	if opts.FeaturesLEDControl {
		logger.Info("LED control enabled, initializing")
		ledController = led.New(nil)
		ledManager := led.NewManager(ledController, eventBus, nil)
		ledManager.Start()
		defer ledManager.Stop()
	}

	// The monitor still runs without a system bus, e.g. in a container.
	systemdManager, err := systemd.NewManager(ctx, false)
	if err != nil {
		logger.Debug("systemd D-Bus unavailable, service routes disabled", "error", err)
	} else {
		defer systemdManager.Close()
	}

	if opts.Port != "" {
		apiOpts := &api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			EventBus:          eventBus,
			Monitor:           mon,
			Evidence:          store,
			PrometheusHandler: metrics.Handler(),
		}
		if runner != nil {
			apiOpts.OnMotion = runner
		}
		if ledController != nil {
			apiOpts.LEDController = ledController
		}
		if systemdManager != nil {
			apiOpts.SystemdManager = systemdManager
		}
		server := api.NewServer(apiOpts)
		go func() {
			if err := server.Start(opts.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server failed", "error", err)
			}
		}()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Stop(stopCtx); err != nil {
				logger.Error("Error stopping HTTP server", "error", err)
			}
		}()
	}

	watcher := config.NewConfigWatcher(opts.Config, config.Load, nil)
	watcher.OnReload(func(o config.Options) {
		reloaded, err := o.Settings()
		if err != nil {
			logger.Warn("Ignoring invalid config reload", "error", err)
			return
		}
		mon.Tune(monitor.Tuning{
			Threshold: reloaded.Threshold,
			Interval:  reloaded.Interval,
			Cooldown:  reloaded.Cooldown,
		})
		dispatcher.SetMinInterval(reloaded.AlertMinInterval)
		logging.SetLevels(o.LoggingLevel, o.LoggingModules())
		logger.Info("Applied config reload", "threshold", reloaded.Threshold, "cooldown", reloaded.Cooldown)
	})
	if err := watcher.Start(bgCtx); err != nil {
		logger.Warn("Config file will not be watched", "path", opts.Config, "error", err)
	} else {
		defer func() { _ = watcher.Stop() }()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		forwardDeviceEvents(bgCtx, eventBus)
	}()

	notifier := systemd.NewNotifier(nil)
	wg.Add(1)
	go func() {
		defer wg.Done()
		notifier.RunWatchdog(bgCtx, func() bool {
			return mon.Status().State != monitor.StateStopped
		})
	}()
	notifier.Ready()
	notifier.Status("watching " + settings.Device)
	defer notifier.Stopping()

	logger.Info("Monitor starting", "device", settings.Device, "threshold", settings.Threshold, "evidence", settings.EvidenceDir)
	if err := mon.Run(ctx); err != nil {
		notifier.Status("failed: " + err.Error())
		return err
	}
	logger.Info("Shutting down")
	return nil
}

// forwardDeviceEvents republishes video4linux hotplug events on the bus.
func forwardDeviceEvents(ctx context.Context, bus *events.Bus) {
	ch := hotplug.Watch(ctx)
	if ch == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Subsystem != hotplug.SubsystemVideo4Linux {
				continue
			}
			bus.Publish(events.DeviceChangedEvent{
				DevicePath: ev.DeviceNode(),
				Action:     ev.Action,
				Timestamp:  time.Now(),
			})
		}
	}
}
