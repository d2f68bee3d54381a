package camera

import (
	"errors"
	"fmt"

	"github.com/smazurov/sitemon/internal/logging"
)

// Session owns one open capture device together with its active format and
// buffer pool. A session is not safe for concurrent use; one goroutine owns
// it for its whole life.
type Session struct {
	dev        Device
	path       string
	caps       uint32
	format     Format
	generation uint64
	pool       *BufferPool
	logger     logging.Logger
}

// Open opens path with the V4L2 backend and verifies its capabilities.
func Open(path string, logger logging.Logger) (*Session, error) {
	return OpenWith(OpenV4L2, path, logger)
}

// OpenWith opens path through opener. The device is closed again if it
// turns out to be unusable.
func OpenWith(opener Opener, path string, logger logging.Logger) (*Session, error) {
	dev, err := opener(path)
	if err != nil {
		return nil, newError(ErrDeviceUnavailable, "open "+path, err)
	}

	s, err := NewSession(dev, path, logger)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	return s, nil
}

// NewSession wraps an already open device. It fails with
// ErrUnsupportedDevice unless the device reports single-planar capture
// and streaming I/O.
func NewSession(dev Device, path string, logger logging.Logger) (*Session, error) {
	if logger == nil {
		logger = logging.GetLogger("camera")
	}

	caps, err := dev.Capabilities()
	if err != nil {
		return nil, newError(ErrDeviceUnavailable, "querycap", err)
	}
	if caps&CapVideoCapture == 0 {
		return nil, newError(ErrUnsupportedDevice, "querycap", fmt.Errorf("%s is not a video capture device", path))
	}
	if caps&CapStreaming == 0 {
		return nil, newError(ErrUnsupportedDevice, "querycap", fmt.Errorf("%s does not support streaming i/o", path))
	}

	logger.Debug("Opened capture device", "path", path, "caps", fmt.Sprintf("0x%08x", caps))

	return &Session{
		dev:    dev,
		path:   path,
		caps:   caps,
		logger: logger,
	}, nil
}

// Path is the device node the session was opened on.
func (s *Session) Path() string {
	return s.path
}

// Caps returns the capability flags reported at open.
func (s *Session) Caps() uint32 {
	return s.caps
}

// Format returns the active negotiated format.
func (s *Session) Format() Format {
	return s.format
}

// Pool returns the currently mapped pool, or nil.
func (s *Session) Pool() *BufferPool {
	return s.pool
}

// Generation increments on every format change and buffer release.
func (s *Session) Generation() uint64 {
	return s.generation
}

// SetFormat negotiates a capture format and adopts whatever the device
// returns. The device may adjust width and height; substituting a different
// encoding is treated as a rejection. A mapped pool must be released first.
func (s *Session) SetFormat(enc Encoding, width, height uint32) (Format, error) {
	if s.pool != nil {
		return Format{}, newError(ErrFormatRejected, "set format", errors.New("buffers still mapped"))
	}

	got, err := s.dev.SetFormat(Format{Width: width, Height: height, Encoding: enc})
	if err != nil {
		return Format{}, newError(ErrFormatRejected, "set format", err)
	}
	if got.Encoding != enc {
		return Format{}, newError(ErrFormatRejected, "set format",
			fmt.Errorf("requested %s, device offered %s", enc, got.Encoding))
	}
	if got.BytesPerLine == 0 && enc == EncodingRawSensor {
		got.BytesPerLine = got.Width
	}

	if got.Width != width || got.Height != height {
		s.logger.Info("Device adjusted capture size",
			"requested", fmt.Sprintf("%dx%d", width, height),
			"negotiated", fmt.Sprintf("%dx%d", got.Width, got.Height))
	}

	s.format = got
	s.generation++
	return got, nil
}

// AllocateBuffers requests count mmap buffers and maps every one of them.
// Either all slots are mapped or none are: on any failure the slots mapped
// so far are unmapped and the device count is returned to zero.
func (s *Session) AllocateBuffers(count int) (*BufferPool, error) {
	if s.pool != nil {
		return nil, newError(ErrAllocationFailed, "request buffers", errors.New("pool already mapped"))
	}
	if count <= 0 {
		return nil, newError(ErrAllocationFailed, "request buffers", fmt.Errorf("invalid buffer count %d", count))
	}

	granted, err := s.dev.RequestBuffers(uint32(count))
	if err != nil {
		return nil, newError(ErrAllocationFailed, "request buffers", err)
	}
	if granted < uint32(count) {
		cause := fmt.Errorf("device granted %d of %d buffers", granted, count)
		if granted > 0 {
			if _, relErr := s.dev.RequestBuffers(0); relErr != nil {
				cause = errors.Join(cause, relErr)
			}
		}
		return nil, newError(ErrAllocationFailed, "request buffers", cause)
	}

	slots := make([]slot, 0, granted)
	for i := uint32(0); i < granted; i++ {
		info, err := s.dev.QueryBuffer(i)
		if err != nil {
			return nil, s.unwind(slots, fmt.Errorf("query buffer %d: %w", i, err))
		}

		mem, err := s.dev.Map(info.Offset, info.Length)
		if err != nil {
			return nil, s.unwind(slots, fmt.Errorf("map buffer %d: %w", i, err))
		}
		if uint32(len(mem)) != info.Length {
			unmapErr := s.dev.Unmap(mem)
			return nil, s.unwind(slots, errors.Join(
				fmt.Errorf("buffer %d mapped %d bytes, device reported %d", i, len(mem), info.Length),
				unmapErr))
		}

		slots = append(slots, slot{mem: mem, length: info.Length})
	}

	s.pool = &BufferPool{
		session:    s,
		generation: s.generation,
		format:     s.format,
		requested:  count,
		slots:      slots,
	}

	s.logger.Debug("Mapped buffers", "count", granted, "format", s.format.String())
	return s.pool, nil
}

// unwind undoes a partial allocation and returns the ErrMappingFailed to
// report.
func (s *Session) unwind(slots []slot, cause error) error {
	errs := []error{cause}
	for i := range slots {
		if err := s.dev.Unmap(slots[i].mem); err != nil {
			errs = append(errs, fmt.Errorf("unmap buffer %d: %w", i, err))
		}
		slots[i].mem = nil
	}
	if _, err := s.dev.RequestBuffers(0); err != nil {
		errs = append(errs, fmt.Errorf("release buffers: %w", err))
	}
	return newError(ErrMappingFailed, "map buffers", errors.Join(errs...))
}

// ReleaseBuffers unmaps every slot of pool and sets the device buffer count
// to zero. Calling it on a pool with nothing mapped is a no-op. Every
// handle into the pool is stale afterwards, whether or not release
// succeeded.
func (s *Session) ReleaseBuffers(pool *BufferPool) error {
	if pool == nil || pool.Mapped() == 0 {
		if s.pool == pool {
			s.pool = nil
		}
		return nil
	}
	if pool.session != s {
		return newError(ErrStaleBuffer, "release", errors.New("pool belongs to another session"))
	}

	var errs []error
	for i := range pool.slots {
		if pool.slots[i].mem == nil {
			continue
		}
		if err := s.dev.Unmap(pool.slots[i].mem); err != nil {
			errs = append(errs, fmt.Errorf("unmap buffer %d: %w", i, err))
		}
		pool.slots[i].mem = nil
	}
	if _, err := s.dev.RequestBuffers(0); err != nil {
		errs = append(errs, fmt.Errorf("release buffers: %w", err))
	}

	if s.pool == pool {
		s.pool = nil
	}
	s.generation++

	if len(errs) > 0 {
		return newError(ErrDeviceIO, "release", errors.Join(errs...))
	}
	return nil
}

// SetStreaming toggles STREAMON/STREAMOFF. The session does not track
// stream state; turning it off twice is left to the driver.
func (s *Session) SetStreaming(on bool) error {
	if on {
		if err := s.dev.StreamOn(); err != nil {
			return newError(ErrDeviceIO, "stream on", err)
		}
		return nil
	}
	if err := s.dev.StreamOff(); err != nil {
		return newError(ErrDeviceIO, "stream off", err)
	}
	return nil
}

// SwitchFormat stops streaming, releases the current pool, negotiates the
// new format and maps a fresh pool of count buffers. A release failure is
// returned rather than continuing with leaked kernel buffers.
func (s *Session) SwitchFormat(enc Encoding, width, height uint32, count int) (*BufferPool, error) {
	if s.pool != nil {
		if err := s.SetStreaming(false); err != nil {
			return nil, err
		}
		if err := s.ReleaseBuffers(s.pool); err != nil {
			return nil, err
		}
	}

	if _, err := s.SetFormat(enc, width, height); err != nil {
		return nil, err
	}
	return s.AllocateBuffers(count)
}

// Close releases any mapped pool and closes the device.
func (s *Session) Close() error {
	var errs []error
	if s.pool != nil {
		if err := s.ReleaseBuffers(s.pool); err != nil {
			errs = append(errs, err)
		}
	}
	if s.dev != nil {
		if err := s.dev.Close(); err != nil {
			errs = append(errs, newError(ErrDeviceIO, "close", err))
		}
		s.dev = nil
	}
	return errors.Join(errs...)
}
