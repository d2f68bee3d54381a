package config

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/smazurov/sitemon/internal/camera"
)

// Options for the CLI - flat structure with toml mapping.
// Durations are strings in Go duration syntax ("250ms", "5m").
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"/etc/sitemon/config.toml"`

	// Camera settings
	CameraDevice        string `help:"V4L2 capture device" short:"d" default:"/dev/video0" toml:"camera.device" env:"CAMERA_DEVICE"`
	CameraWidth         int    `help:"Requested capture width" default:"640" toml:"camera.width" env:"CAMERA_WIDTH"`
	CameraHeight        int    `help:"Requested capture height" default:"480" toml:"camera.height" env:"CAMERA_HEIGHT"`
	CameraSenseBuffers  int    `help:"Buffers per sensing cycle" default:"3" toml:"camera.sense_buffers" env:"CAMERA_SENSE_BUFFERS"`
	CameraRecordBuffers int    `help:"Buffers per recording burst" default:"3" toml:"camera.record_buffers" env:"CAMERA_RECORD_BUFFERS"`

	// Motion settings
	MotionThreshold int    `help:"Normalized difference that counts as motion" short:"t" default:"5" toml:"motion.threshold" env:"MOTION_THRESHOLD"`
	MotionDelay     string `help:"Delay between sensing frames" default:"250ms" toml:"motion.delay" env:"MOTION_DELAY"`
	MotionSlots     string `help:"Slots compared, negative counts from the end" default:"1,-1" toml:"motion.slots" env:"MOTION_SLOTS"`
	MotionInterval  string `help:"Pause between sensing cycles" default:"0s" toml:"motion.interval" env:"MOTION_INTERVAL"`
	MotionCooldown  string `help:"Quiet period after a recording burst" default:"30s" toml:"motion.cooldown" env:"MOTION_COOLDOWN"`

	// Evidence settings
	EvidenceDir      string `help:"Directory for captured frames" short:"o" default:"/var/lib/sitemon/evidence" toml:"evidence.dir" env:"EVIDENCE_DIR"`
	EvidenceFrames   int    `help:"Frames persisted per motion event" default:"3" toml:"evidence.frames" env:"EVIDENCE_FRAMES"`
	EvidenceMaxFiles int    `help:"Evidence files kept, 0 keeps all" default:"1000" toml:"evidence.max_files" env:"EVIDENCE_MAX_FILES"`

	// Alert settings
	AlertDestination string `help:"SMS destination number" default:"" toml:"alert.destination" env:"ALERT_DESTINATION"`
	AlertMessage     string `help:"Alert text" default:"Motion detected" toml:"alert.message" env:"ALERT_MESSAGE"`
	AlertMinInterval string `help:"Minimum time between alerts" default:"5m" toml:"alert.min_interval" env:"ALERT_MIN_INTERVAL"`

	// Modem settings
	ModemPort    string `help:"Modem serial port, empty disables SMS" default:"" toml:"modem.port" env:"MODEM_PORT"`
	ModemBaud    int    `help:"Modem baud rate" default:"115200" toml:"modem.baud" env:"MODEM_BAUD"`
	ModemTimeout string `help:"Modem response timeout" default:"5s" toml:"modem.timeout" env:"MODEM_TIMEOUT"`

	// MQTT settings
	MQTTBroker   string `help:"MQTT broker URL, empty disables MQTT alerts" default:"" toml:"mqtt.broker" env:"MQTT_BROKER"`
	MQTTTopic    string `help:"MQTT alert topic" default:"sitemon/alerts" toml:"mqtt.topic" env:"MQTT_TOPIC"`
	MQTTClientID string `help:"MQTT client id" default:"sitemon" toml:"mqtt.client_id" env:"MQTT_CLIENT_ID"`
	MQTTUsername string `help:"MQTT username" default:"" toml:"mqtt.username" env:"MQTT_USERNAME"`
	MQTTPassword string `help:"MQTT password" default:"" toml:"mqtt.password" env:"MQTT_PASSWORD"`

	// On-motion command settings
	OnMotionCommand string `help:"Command started when motion is detected" default:"" toml:"on_motion.command" env:"ON_MOTION_COMMAND"`
	OnMotionWindow  string `help:"How long the on-motion command runs" default:"5m" toml:"on_motion.window" env:"ON_MOTION_WINDOW"`
	OnMotionSignal  string `help:"Signal that stops the on-motion command" default:"SIGQUIT" toml:"on_motion.signal" env:"ON_MOTION_SIGNAL"`

	// Recovery settings
	RecoveryBackoff    string `help:"Initial device recovery backoff" default:"1s" toml:"recovery.backoff" env:"RECOVERY_BACKOFF"`
	RecoveryMaxBackoff string `help:"Maximum device recovery backoff" default:"1m" toml:"recovery.max_backoff" env:"RECOVERY_MAX_BACKOFF"`

	// Server settings
	Port         string `help:"Status API listen address, empty disables" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Features settings
	FeaturesLEDControl bool `help:"Enable status LED" default:"false" toml:"features.led_control_enabled" env:"FEATURES_LED_CONTROL"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCamera  string `help:"Camera logging level" default:"info" toml:"logging.camera" env:"LOGGING_CAMERA"`
	LoggingMonitor string `help:"Monitor logging level" default:"info" toml:"logging.monitor" env:"LOGGING_MONITOR"`
	LoggingAlert   string `help:"Alert logging level" default:"info" toml:"logging.alert" env:"LOGGING_ALERT"`
	LoggingModem   string `help:"Modem logging level" default:"info" toml:"logging.modem" env:"LOGGING_MODEM"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

// Settings is Options with durations and enumerations parsed.
type Settings struct {
	Device        string
	Width         uint32
	Height        uint32
	SenseBuffers  int
	RecordBuffers int

	Threshold  uint64
	SenseDelay time.Duration
	Slots      camera.SlotPair
	Interval   time.Duration
	Cooldown   time.Duration

	EvidenceDir      string
	EvidenceFrames   int
	EvidenceMaxFiles int

	AlertDestination string
	AlertMessage     string
	AlertMinInterval time.Duration

	ModemPort    string
	ModemBaud    int
	ModemTimeout time.Duration

	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string

	OnMotionCommand string
	OnMotionWindow  time.Duration
	OnMotionSignal  string

	RecoveryBackoff    time.Duration
	RecoveryMaxBackoff time.Duration
}

// Defaults returns Options populated from the default tags.
func Defaults() Options {
	var opts Options
	v := reflect.ValueOf(&opts).Elem()
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		if def, ok := t.Field(i).Tag.Lookup("default"); ok && def != "" {
			_ = setFieldValueFromString(v.Field(i), def)
		}
	}
	return opts
}

// Load reads path over the defaults and applies env overrides. It is the
// loader used for live reloads, where CLI flags no longer apply.
func Load(path string) (Options, error) {
	opts := Defaults()
	opts.Config = path
	if err := LoadConfig(&opts, nil); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Settings validates the options and parses them.
func (o *Options) Settings() (Settings, error) {
	var errs []error

	duration := func(name, value string) time.Duration {
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return 0
		}
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s: negative duration %s", name, value))
		}
		return d
	}
	positive := func(name string, value int) {
		if value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, value))
		}
	}

	positive("camera.width", o.CameraWidth)
	positive("camera.height", o.CameraHeight)
	positive("camera.sense_buffers", o.CameraSenseBuffers)
	positive("camera.record_buffers", o.CameraRecordBuffers)
	positive("evidence.frames", o.EvidenceFrames)
	positive("modem.baud", o.ModemBaud)
	if o.MotionThreshold < 0 {
		errs = append(errs, fmt.Errorf("motion.threshold must not be negative, got %d", o.MotionThreshold))
	}
	if o.EvidenceMaxFiles < 0 {
		errs = append(errs, fmt.Errorf("evidence.max_files must not be negative, got %d", o.EvidenceMaxFiles))
	}
	if o.CameraDevice == "" {
		errs = append(errs, errors.New("camera.device is required"))
	}

	slots, err := camera.ParseSlotPair(o.MotionSlots)
	if err != nil {
		errs = append(errs, fmt.Errorf("motion.slots: %w", err))
	} else if _, _, err := slots.Resolve(o.CameraSenseBuffers); err != nil && o.CameraSenseBuffers > 0 {
		errs = append(errs, fmt.Errorf("motion.slots: %w", err))
	}

	s := Settings{
		Device:        o.CameraDevice,
		Width:         uint32(max(o.CameraWidth, 0)),
		Height:        uint32(max(o.CameraHeight, 0)),
		SenseBuffers:  o.CameraSenseBuffers,
		RecordBuffers: o.CameraRecordBuffers,

		Threshold:  uint64(max(o.MotionThreshold, 0)),
		SenseDelay: duration("motion.delay", o.MotionDelay),
		Slots:      slots,
		Interval:   duration("motion.interval", o.MotionInterval),
		Cooldown:   duration("motion.cooldown", o.MotionCooldown),

		EvidenceDir:      o.EvidenceDir,
		EvidenceFrames:   o.EvidenceFrames,
		EvidenceMaxFiles: o.EvidenceMaxFiles,

		AlertDestination: o.AlertDestination,
		AlertMessage:     o.AlertMessage,
		AlertMinInterval: duration("alert.min_interval", o.AlertMinInterval),

		ModemPort:    o.ModemPort,
		ModemBaud:    o.ModemBaud,
		ModemTimeout: duration("modem.timeout", o.ModemTimeout),

		MQTTBroker:   o.MQTTBroker,
		MQTTTopic:    o.MQTTTopic,
		MQTTClientID: o.MQTTClientID,
		MQTTUsername: o.MQTTUsername,
		MQTTPassword: o.MQTTPassword,

		OnMotionCommand: o.OnMotionCommand,
		OnMotionWindow:  duration("on_motion.window", o.OnMotionWindow),
		OnMotionSignal:  o.OnMotionSignal,

		RecoveryBackoff:    duration("recovery.backoff", o.RecoveryBackoff),
		RecoveryMaxBackoff: duration("recovery.max_backoff", o.RecoveryMaxBackoff),
	}

	if s.ModemPort != "" && s.AlertDestination == "" {
		errs = append(errs, errors.New("alert.destination is required when modem.port is set"))
	}

	if len(errs) > 0 {
		return Settings{}, errors.Join(errs...)
	}
	return s, nil
}

// LoggingModules maps module names to their configured levels.
func (o *Options) LoggingModules() map[string]string {
	return map[string]string{
		"camera":  o.LoggingCamera,
		"monitor": o.LoggingMonitor,
		"alert":   o.LoggingAlert,
		"modem":   o.LoggingModem,
		"api":     o.LoggingAPI,
	}
}
