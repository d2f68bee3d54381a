package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/sitemon/internal/alert"
	"github.com/smazurov/sitemon/internal/events"
	"github.com/smazurov/sitemon/internal/logging"
)

// CreateNotifyCmd creates the notify command.
func CreateNotifyCmd() *cobra.Command {
	var message string
	var timeout time.Duration

	c := &cobra.Command{
		Use:   "notify",
		Short: "Send a test alert on every configured channel",
		Long:  `Sends one alert through the SMS modem and MQTT broker from the configuration, bypassing the rate limit.`,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			_, settings, err := loadSettings(c)
			if err != nil {
				return err
			}
			if message == "" {
				message = settings.AlertMessage + " (test)"
			}

			ctx, cancel := context.WithTimeout(c.Context(), timeout)
			defer cancel()

			notifiers, closeAll := BuildNotifiers(ctx, settings, logging.GetLogger("alert"))
			defer closeAll()
			if len(notifiers) == 0 {
				return errors.New("no alert channel configured (set modem.port or mqtt.broker)")
			}

			a := alert.FromMotion(events.MotionDetectedEvent{
				IncidentID: events.NewIncidentID(),
				DevicePath: settings.Device,
				Threshold:  settings.Threshold,
				Timestamp:  time.Now(),
			}, message)

			var errs []error
			for _, n := range notifiers {
				if err := n.Notify(ctx, a); err != nil {
					fmt.Printf("%s: failed: %v\n", n.Name(), err)
					errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
					continue
				}
				fmt.Printf("%s: sent\n", n.Name())
			}
			return errors.Join(errs...)
		},
	}
	addConfigFlag(c)
	c.Flags().StringVarP(&message, "message", "m", "", "Alert text (default alert.message)")
	c.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Give up after this long")
	return c
}
