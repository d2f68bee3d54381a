package camera

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/smazurov/sitemon/internal/logging"
)

// maxNameCollisions bounds the -<n> suffix search for evidence files.
const maxNameCollisions = 1000

// Frame references a slot filled during one capture cycle.
type Frame struct {
	Handle    Handle
	BytesUsed uint32
	Sequence  uint32
	Format    Format
	pool      *BufferPool
}

// Slot is the pool slot the driver filled.
func (f Frame) Slot() int {
	return f.Handle.slot
}

// Bytes returns the full slot. It fails with ErrStaleBuffer once the pool
// has been released or the format changed.
func (f Frame) Bytes() ([]byte, error) {
	if f.pool == nil {
		return nil, newError(ErrStaleBuffer, "bytes", nil)
	}
	return f.pool.Bytes(f.Handle)
}

// Payload returns the bytes the driver reported as used, or the full slot
// when the driver reported none.
func (f Frame) Payload() ([]byte, error) {
	mem, err := f.Bytes()
	if err != nil {
		return nil, err
	}
	if f.BytesUsed == 0 || int(f.BytesUsed) > len(mem) {
		return mem, nil
	}
	return mem[:f.BytesUsed], nil
}

// Capturer runs capture cycles against a session and persists frames.
type Capturer struct {
	session *Session
	logger  logging.Logger
	sleep   func(time.Duration)
	now     func() time.Time
	open    func(name string, flag int, perm os.FileMode) (io.WriteCloser, error)
}

// CapturerOption configures a Capturer.
type CapturerOption func(*Capturer)

// WithSleep replaces the inter-frame sleep.
func WithSleep(sleep func(time.Duration)) CapturerOption {
	return func(c *Capturer) {
		c.sleep = sleep
	}
}

// WithClock replaces the clock used to name evidence files.
func WithClock(now func() time.Time) CapturerOption {
	return func(c *Capturer) {
		c.now = now
	}
}

// NewCapturer creates a capturer bound to session.
func NewCapturer(session *Session, logger logging.Logger, opts ...CapturerOption) *Capturer {
	if logger == nil {
		logger = logging.GetLogger("camera")
	}
	c := &Capturer{
		session: session,
		logger:  logger,
		sleep:   time.Sleep,
		now:     time.Now,
		open: func(name string, flag int, perm os.FileMode) (io.WriteCloser, error) {
			return os.OpenFile(name, flag, perm)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cycle turns streaming on, then queues slots 0,1,2... in order, blocking on
// dequeue after each, and turns streaming off. frameCount is clamped to the
// pool capacity. delay is slept between iterations, never after the last.
//
// Any device failure aborts the cycle with ErrDeviceIO and leaves the
// stream in whatever state the driver is in.
func (c *Capturer) Cycle(pool *BufferPool, frameCount int, delay time.Duration) ([]Frame, error) {
	if !pool.Live() || pool.session != c.session {
		return nil, newError(ErrStaleBuffer, "capture", errors.New("pool is not the session's current pool"))
	}

	n := min(frameCount, pool.Cap())
	if n <= 0 {
		return nil, nil
	}

	if err := c.session.SetStreaming(true); err != nil {
		return nil, err
	}

	frames := make([]Frame, 0, n)
	for i := 0; i < n; i++ {
		if err := c.session.dev.Queue(uint32(i)); err != nil {
			return nil, newError(ErrDeviceIO, "queue", fmt.Errorf("slot %d: %w", i, err))
		}

		info, err := c.session.dev.Dequeue()
		if err != nil {
			return nil, newError(ErrDeviceIO, "dequeue", err)
		}
		if int(info.Index) >= pool.Cap() {
			return nil, newError(ErrDeviceIO, "dequeue", fmt.Errorf("driver returned slot %d of %d", info.Index, pool.Cap()))
		}

		frames = append(frames, Frame{
			Handle:    Handle{slot: int(info.Index), generation: pool.generation},
			BytesUsed: info.BytesUsed,
			Sequence:  info.Sequence,
			Format:    pool.format,
			pool:      pool,
		})

		if delay > 0 && i < n-1 {
			c.sleep(delay)
		}
	}

	if err := c.session.SetStreaming(false); err != nil {
		return nil, err
	}

	c.logger.Debug("Capture cycle complete", "frames", len(frames), "format", pool.format.String())
	return frames, nil
}

// Persist writes frame into outputDir as <unix-seconds>.pgm for raw sensor
// frames or <unix-seconds>.jpeg for encoded frames. A frame landing in the
// same second as an existing file gets a -<n> suffix. Raw frames get a
// binary PGM header followed by exactly width*height samples; encoded
// frames are written verbatim.
func (c *Capturer) Persist(frame Frame, outputDir string) (string, error) {
	mem, err := frame.Bytes()
	if err != nil {
		return "", err
	}

	var body []byte
	switch frame.Format.Encoding {
	case EncodingRawSensor:
		body, err = pgm(frame.Format, mem)
		if err != nil {
			return "", newError(ErrIO, "persist", err)
		}
	default:
		body, err = frame.Payload()
		if err != nil {
			return "", err
		}
	}

	f, path, err := c.createUnique(outputDir, c.now().Unix(), frame.Format.Encoding.Extension())
	if err != nil {
		return "", newError(ErrIO, "persist", err)
	}

	if _, err := f.Write(body); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", newError(ErrIO, "persist", fmt.Errorf("write %s: %w", path, err))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", newError(ErrIO, "persist", fmt.Errorf("close %s: %w", path, err))
	}

	c.logger.Debug("Persisted frame", "path", path, "slot", frame.Slot(), "bytes", len(body))
	return path, nil
}

// pgm renders a binary greyscale image, dropping any row padding.
func pgm(format Format, mem []byte) ([]byte, error) {
	w, h := int(format.Width), int(format.Height)
	stride := int(format.BytesPerLine)
	if stride < w {
		stride = w
	}
	if need := stride*(h-1) + w; h > 0 && len(mem) < need {
		return nil, fmt.Errorf("buffer holds %d bytes, %dx%d frame needs %d", len(mem), w, h, need)
	}

	header := fmt.Sprintf("P5\n%d %d\n255\n", w, h)
	out := make([]byte, 0, len(header)+w*h)
	out = append(out, header...)
	for row := 0; row < h; row++ {
		out = append(out, mem[row*stride:row*stride+w]...)
	}
	return out, nil
}

// createUnique creates <dir>/<ts>.<ext>, or <dir>/<ts>-<n>.<ext> when that
// name is taken.
func (c *Capturer) createUnique(dir string, ts int64, ext string) (io.WriteCloser, string, error) {
	base := strconv.FormatInt(ts, 10)
	for n := 0; n < maxNameCollisions; n++ {
		name := base
		if n > 0 {
			name = base + "-" + strconv.Itoa(n)
		}
		path := filepath.Join(dir, name+"."+ext)

		f, err := c.open(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("no free file name for %s in %s", base, dir)
}
