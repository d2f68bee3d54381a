// Package cmd holds the sitemon subcommands used for bench testing a site:
// listing cameras, running single sensing or recording cycles, and sending
// test alerts.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/sitemon/internal/alert"
	"github.com/smazurov/sitemon/internal/config"
	"github.com/smazurov/sitemon/internal/logging"
	"github.com/smazurov/sitemon/internal/modem"
	"github.com/smazurov/sitemon/internal/monitor"
)

const defaultConfigPath = "/etc/sitemon/config.toml"

// addConfigFlag registers --config on c.
func addConfigFlag(c *cobra.Command) {
	c.Flags().StringP("config", "c", defaultConfigPath, "Path to configuration file")
	c.Flags().BoolP("verbose", "v", false, "Log at debug level")
}

// loadSettings reads the file named by --config and applies env overrides.
func loadSettings(c *cobra.Command) (config.Options, config.Settings, error) {
	path, _ := c.Flags().GetString("config")
	verbose, _ := c.Flags().GetBool("verbose")

	opts, err := config.Load(path)
	if err != nil {
		return config.Options{}, config.Settings{}, err
	}
	if verbose {
		opts.LoggingLevel = "debug"
	}
	logging.Initialize(logging.Config{
		Level:   opts.LoggingLevel,
		Format:  opts.LoggingFormat,
		Modules: opts.LoggingModules(),
	})

	if device, _ := c.Flags().GetString("device"); device != "" {
		opts.CameraDevice = device
	}
	settings, err := opts.Settings()
	if err != nil {
		return config.Options{}, config.Settings{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return opts, settings, nil
}

// newEngine builds and initializes a capture engine for s.
func newEngine(s config.Settings) (*monitor.Engine, error) {
	engine := monitor.NewEngine(monitor.EngineConfig{
		Width:         s.Width,
		Height:        s.Height,
		SenseBuffers:  s.SenseBuffers,
		RecordBuffers: s.RecordBuffers,
		SenseDelay:    s.SenseDelay,
		Slots:         s.Slots,
	}, nil)
	if err := engine.Init(s.Device); err != nil {
		return nil, err
	}
	return engine, nil
}

// BuildNotifiers opens the alert channels configured in s. A channel that
// cannot be opened is logged and left out. The returned function closes
// every opened channel.
func BuildNotifiers(ctx context.Context, s config.Settings, logger logging.Logger) ([]alert.Notifier, func()) {
	var notifiers []alert.Notifier
	var closers []func()

	if s.ModemPort != "" {
		m, err := modem.Open(s.ModemPort, s.ModemBaud, s.ModemTimeout, nil)
		if err != nil {
			logger.Error("SMS alerts disabled", "port", s.ModemPort, "error", err)
		} else {
			notifiers = append(notifiers, alert.NewSMSNotifier(m, s.AlertDestination, nil))
			closers = append(closers, func() { _ = m.Close() })
		}
	}

	if s.MQTTBroker != "" {
		n := alert.NewMQTTNotifier(alert.MQTTOptions{
			Broker:   s.MQTTBroker,
			Topic:    s.MQTTTopic,
			ClientID: s.MQTTClientID,
			Username: s.MQTTUsername,
			Password: s.MQTTPassword,
		}, nil)
		if err := n.Connect(ctx); err != nil {
			logger.Warn("MQTT broker unreachable, retrying in background", "broker", s.MQTTBroker, "error", err)
		}
		notifiers = append(notifiers, n)
		closers = append(closers, n.Close)
	}

	return notifiers, func() {
		for _, c := range closers {
			c()
		}
	}
}
