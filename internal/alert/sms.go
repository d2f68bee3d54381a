package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/smazurov/sitemon/internal/logging"
	"github.com/smazurov/sitemon/internal/modem"
)

// Sender is the part of *modem.Modem the SMS notifier drives.
type Sender interface {
	SetFunctionality(f modem.Functionality) error
	SendMessage(destination, text string) error
}

// SMSNotifier sends alerts as text messages. The radio is powered up for
// each message and put back to minimum functionality afterwards.
type SMSNotifier struct {
	sender      Sender
	destination string
	logger      logging.Logger
}

// NewSMSNotifier creates a notifier sending to destination.
func NewSMSNotifier(sender Sender, destination string, logger logging.Logger) *SMSNotifier {
	if logger == nil {
		logger = logging.GetLogger("alert")
	}
	return &SMSNotifier{sender: sender, destination: destination, logger: logger}
}

// Name implements Notifier.
func (n *SMSNotifier) Name() string { return "sms" }

// Notify implements Notifier. The modem calls are not interruptible, so ctx
// is only checked before the radio is powered up.
func (n *SMSNotifier) Notify(ctx context.Context, a Alert) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.sender.SetFunctionality(modem.FunctionalityFull); err != nil {
		return fmt.Errorf("radio on: %w", err)
	}
	defer func() {
		if offErr := n.sender.SetFunctionality(modem.FunctionalityMinimum); offErr != nil {
			n.logger.Warn("Failed to power down radio", "error", offErr)
			err = errors.Join(err, fmt.Errorf("radio off: %w", offErr))
		}
	}()

	if err := n.sender.SendMessage(n.destination, a.Text()); err != nil {
		return fmt.Errorf("send to %s: %w", n.destination, err)
	}
	n.logger.Info("SMS alert sent", "incident_id", a.IncidentID, "destination", n.destination)
	return nil
}
