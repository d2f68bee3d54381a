package camera

import (
	"fmt"
	"strings"
)

// Capability flags the session requires.
const (
	CapVideoCapture uint32 = 0x00000001
	CapStreaming    uint32 = 0x04000000
)

// Encoding is a V4L2 fourcc pixel encoding.
type Encoding uint32

const (
	// EncodingRawSensor is single-channel 8-bit greyscale, used for sensing.
	EncodingRawSensor Encoding = 0x59455247 // 'GREY'
	// EncodingEncodedWire is motion JPEG as delivered by the device, used for recording.
	EncodingEncodedWire Encoding = 0x47504A4D // 'MJPG'
)

func (e Encoding) String() string {
	switch e {
	case EncodingRawSensor:
		return "GREY"
	case EncodingEncodedWire:
		return "MJPEG"
	default:
		return fmt.Sprintf("0x%08X", uint32(e))
	}
}

// Extension is the evidence file extension for frames in this encoding.
func (e Encoding) Extension() string {
	if e == EncodingRawSensor {
		return "pgm"
	}
	return "jpeg"
}

// ParseEncoding accepts "grey" or "mjpeg" in any case.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "grey", "gray", "raw":
		return EncodingRawSensor, nil
	case "mjpeg", "mjpg", "jpeg":
		return EncodingEncodedWire, nil
	default:
		return 0, fmt.Errorf("unknown encoding %q", s)
	}
}

// Format is a negotiated capture format. Values read back from the device
// are authoritative.
type Format struct {
	Width        uint32
	Height       uint32
	Encoding     Encoding
	BytesPerLine uint32
	SizeImage    uint32
}

// Area is width times height.
func (f Format) Area() int64 {
	return int64(f.Width) * int64(f.Height)
}

func (f Format) String() string {
	return fmt.Sprintf("%dx%d %s", f.Width, f.Height, f.Encoding)
}

// BufferInfo describes a driver buffer as reported by QUERYBUF or DQBUF.
type BufferInfo struct {
	Index     uint32
	Length    uint32
	Offset    uint32
	BytesUsed uint32
	Sequence  uint32
}

// Device is the kernel boundary the session drives. The linux
// implementation wraps pkg/linuxav/v4l2; tests use camtest.Device.
type Device interface {
	Capabilities() (uint32, error)
	SetFormat(Format) (Format, error)
	RequestBuffers(count uint32) (uint32, error)
	QueryBuffer(index uint32) (BufferInfo, error)
	Map(offset, length uint32) ([]byte, error)
	Unmap(mem []byte) error
	Queue(index uint32) error
	Dequeue() (BufferInfo, error)
	StreamOn() error
	StreamOff() error
	Close() error
}

// Opener opens a device node.
type Opener func(path string) (Device, error)
