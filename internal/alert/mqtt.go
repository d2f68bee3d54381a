package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/smazurov/sitemon/internal/logging"
)

const (
	mqttQoS            = 1
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 5 * time.Second
)

// ErrNotConnected is returned by Notify while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt not connected")

// MQTTOptions configures an MQTTNotifier.
type MQTTOptions struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
}

// publisher is the slice of mqtt.Client used for delivery.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
}

// MQTTNotifier publishes alerts as JSON to a broker topic.
type MQTTNotifier struct {
	opts   MQTTOptions
	client mqtt.Client
	pub    publisher
	logger logging.Logger

	mu        sync.RWMutex
	connected bool
}

// NewMQTTNotifier creates the client. Call Connect before Notify.
func NewMQTTNotifier(opts MQTTOptions, logger logging.Logger) *MQTTNotifier {
	if logger == nil {
		logger = logging.GetLogger("alert")
	}
	n := &MQTTNotifier{opts: opts, logger: logger}

	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(brokerURL(opts.Broker))
	clientOpts.SetClientID(opts.ClientID)
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectRetry(true)
	clientOpts.SetConnectRetryInterval(2 * time.Second)
	clientOpts.SetMaxReconnectInterval(30 * time.Second)
	clientOpts.OnConnect = func(mqtt.Client) {
		n.setConnected(true)
		n.logger.Info("MQTT connection established", "broker", opts.Broker, "client_id", opts.ClientID)
	}
	clientOpts.OnConnectionLost = func(_ mqtt.Client, err error) {
		n.setConnected(false)
		n.logger.Warn("MQTT connection lost, will auto-reconnect", "broker", opts.Broker, "error", err)
	}

	n.client = mqtt.NewClient(clientOpts)
	n.pub = n.client
	return n
}

// brokerURL adds the tcp scheme to bare host:port addresses.
func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Connect dials the broker. With connect-retry enabled the client keeps
// trying in the background after a timeout here.
func (n *MQTTNotifier) Connect(ctx context.Context) error {
	n.logger.Info("Connecting to MQTT broker", "broker", n.opts.Broker)

	token := n.client.Connect()
	timeout := mqttConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	n.setConnected(true)
	return nil
}

// Name implements Notifier.
func (n *MQTTNotifier) Name() string { return "mqtt" }

// Notify implements Notifier.
func (n *MQTTNotifier) Notify(ctx context.Context, a Alert) error {
	if !n.isConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	token := n.pub.Publish(n.opts.Topic, mqttQoS, false, payload)
	select {
	case <-token.Done():
	case <-time.After(mqttPublishTimeout):
		return fmt.Errorf("publish timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	n.logger.Debug("MQTT alert published", "topic", n.opts.Topic, "incident_id", a.IncidentID, "size", len(payload))
	return nil
}

// Close disconnects with a short grace period.
func (n *MQTTNotifier) Close() {
	if n.client != nil && n.client.IsConnected() {
		n.client.Disconnect(250)
		n.logger.Info("MQTT disconnected")
	}
	n.setConnected(false)
}

func (n *MQTTNotifier) setConnected(v bool) {
	n.mu.Lock()
	n.connected = v
	n.mu.Unlock()
}

func (n *MQTTNotifier) isConnected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connected
}
