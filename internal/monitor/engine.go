package monitor

import (
	"errors"
	"fmt"
	"time"

	"github.com/smazurov/sitemon/internal/camera"
	"github.com/smazurov/sitemon/internal/logging"
	"github.com/smazurov/sitemon/internal/metrics"
)

// EngineConfig sizes the two capture modes.
type EngineConfig struct {
	Width         uint32
	Height        uint32
	SenseBuffers  int
	RecordBuffers int
	SenseDelay    time.Duration
	Slots         camera.SlotPair
}

// DefaultEngineConfig is 640x480 with three buffers per mode, comparing slot
// 1 against the last slot 250ms apart.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Width:         640,
		Height:        480,
		SenseBuffers:  3,
		RecordBuffers: 3,
		SenseDelay:    250 * time.Millisecond,
		Slots:         camera.DefaultSlotPair,
	}
}

// Engine is the capture surface the monitor drives: it alternates GREY
// sensing cycles and MJPEG recording bursts on one session, switching
// formats as needed. It is owned by a single goroutine.
type Engine struct {
	cfg       EngineConfig
	opener    camera.Opener
	capOpts   []camera.CapturerOption
	logger    logging.Logger
	session   *camera.Session
	capturer  *camera.Capturer
	lastScore uint64
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithOpener replaces the V4L2 backend.
func WithOpener(opener camera.Opener) EngineOption {
	return func(e *Engine) {
		e.opener = opener
	}
}

// WithCapturerOptions passes options to every capturer the engine creates.
func WithCapturerOptions(opts ...camera.CapturerOption) EngineOption {
	return func(e *Engine) {
		e.capOpts = append(e.capOpts, opts...)
	}
}

// NewEngine creates an engine; call Init before capturing.
func NewEngine(cfg EngineConfig, logger logging.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = logging.GetLogger("monitor")
	}
	e := &Engine{
		cfg:    cfg,
		opener: camera.OpenV4L2,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Init opens devicePath, replacing any session already held.
func (e *Engine) Init(devicePath string) error {
	if err := e.Close(); err != nil {
		e.logger.Warn("Closing previous session failed", "error", err)
	}

	session, err := camera.OpenWith(e.opener, devicePath, e.logger)
	if err != nil {
		return err
	}
	e.session = session
	e.capturer = camera.NewCapturer(session, e.logger, e.capOpts...)
	e.logger.Info("Capture engine ready", "device", devicePath)
	return nil
}

// Ready reports whether a session is open.
func (e *Engine) Ready() bool {
	return e.session != nil
}

// Format is the session's active format, zero before the first cycle.
func (e *Engine) Format() camera.Format {
	if e.session == nil {
		return camera.Format{}
	}
	return e.session.Format()
}

// LastScore is the normalized difference of the latest sensing cycle.
func (e *Engine) LastScore() uint64 {
	return e.lastScore
}

// DetectMotion runs one GREY sensing cycle and reports whether the
// configured slot pair differs by more than threshold.
func (e *Engine) DetectMotion(threshold uint64) (bool, error) {
	a, b, area, err := e.sense()
	if err != nil {
		return false, err
	}
	return camera.DetectMotion(a, b, area, threshold), nil
}

// Sense runs one GREY sensing cycle and returns its score.
func (e *Engine) Sense() (uint64, error) {
	if _, _, _, err := e.sense(); err != nil {
		return 0, err
	}
	return e.lastScore, nil
}

// sense captures one cycle and returns the compared slots and the frame
// area. The slices alias driver memory until the next cycle.
func (e *Engine) sense() (a, b []byte, area int64, err error) {
	start := time.Now()
	pool, err := e.pool(camera.EncodingRawSensor, e.cfg.SenseBuffers)
	if err != nil {
		return nil, nil, 0, err
	}

	frames, err := e.capturer.Cycle(pool, e.cfg.SenseBuffers, e.cfg.SenseDelay)
	if err != nil {
		return nil, nil, 0, err
	}
	first, second, err := e.cfg.Slots.Resolve(len(frames))
	if err != nil {
		return nil, nil, 0, fmt.Errorf("compare slots: %w", err)
	}

	if a, err = frames[first].Bytes(); err != nil {
		return nil, nil, 0, err
	}
	if b, err = frames[second].Bytes(); err != nil {
		return nil, nil, 0, err
	}
	area = pool.Format().Area()

	e.lastScore = camera.Score(a, b, area)
	metrics.SetMotionScore(e.lastScore)
	metrics.ObserveCycle(metrics.ModeSense, time.Since(start))
	e.logger.Debug("Sensing cycle", "score", e.lastScore, "slots", e.cfg.Slots.String())
	return a, b, area, nil
}

// CaptureFrames runs one MJPEG recording burst of count frames and persists
// each into outputDir. The record pool grows to count when count exceeds
// RecordBuffers. Paths are returned in capture order. A persist failure
// stops the burst; paths written before it are still returned.
func (e *Engine) CaptureFrames(outputDir string, count int) ([]string, error) {
	start := time.Now()
	pool, err := e.pool(camera.EncodingEncodedWire, max(count, e.cfg.RecordBuffers))
	if err != nil {
		return nil, err
	}

	frames, err := e.capturer.Cycle(pool, count, 0)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(frames))
	for _, frame := range frames {
		path, err := e.capturer.Persist(frame, outputDir)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	metrics.AddEvidenceFiles(len(paths))
	metrics.ObserveCycle(metrics.ModeRecord, time.Since(start))
	return paths, nil
}

// pool returns the live pool for enc, switching formats when the session is
// on the other encoding or holds no pool.
func (e *Engine) pool(enc camera.Encoding, count int) (*camera.BufferPool, error) {
	if e.session == nil {
		return nil, &camera.Error{Kind: camera.ErrDeviceUnavailable, Op: "capture", Cause: errors.New("engine not initialized")}
	}
	if pool := e.session.Pool(); pool != nil && pool.Live() && pool.Format().Encoding == enc && pool.Requested() == count {
		return pool, nil
	}
	return e.session.SwitchFormat(enc, e.cfg.Width, e.cfg.Height, count)
}

// Close releases the session. It is safe to call repeatedly.
func (e *Engine) Close() error {
	if e.session == nil {
		return nil
	}
	err := e.session.Close()
	e.session = nil
	e.capturer = nil
	return err
}
