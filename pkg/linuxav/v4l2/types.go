//go:build linux

package v4l2

// DeviceInfo contains information about a V4L2 device.
type DeviceInfo struct {
	DevicePath string
	DeviceName string
	DeviceID   string // Stable identifier (from /dev/v4l/by-id/ or synthetic)
	Caps       uint32
}

// FormatInfo contains information about a supported pixel format.
type FormatInfo struct {
	PixelFormat uint32
	FormatName  string
	Emulated    bool
}

// Resolution represents a supported video resolution.
type Resolution struct {
	Width  uint32
	Height uint32
}

// Capability is the decoded result of VIDIOC_QUERYCAP.
type Capability struct {
	Driver  string
	Card    string
	BusInfo string
	// Caps holds the effective capability flags: device_caps when the
	// driver reports them, capabilities otherwise.
	Caps uint32
}

// Supports reports whether every bit of flags is set in the effective caps.
func (c Capability) Supports(flags uint32) bool {
	return c.Caps&flags == flags
}

// PixFormat is the single-planar capture format exchanged with VIDIOC_S_FMT.
type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
}

// Buffer describes one driver buffer as reported by QUERYBUF or DQBUF.
type Buffer struct {
	Index     uint32
	Length    uint32
	Offset    uint32 // opaque mmap offset token
	BytesUsed uint32
	Flags     uint32
	Sequence  uint32
}

// Capability flags.
const (
	CapVideoCapture = 0x00000001
	CapStreaming    = 0x04000000
	CapDeviceCaps   = 0x80000000
)

// Format flags.
const (
	fmtFlagEmulated = 0x0002
)

// Pixel formats.
const (
	PixelFmtGrey  = 0x59455247 // 'GREY'
	PixelFmtMJPEG = 0x47504A4D // 'MJPG'
	PixelFmtJPEG  = 0x4745504A // 'JPEG'
	PixelFmtYUYV  = 0x56595559 // 'YUYV'
	PixelFmtH264  = 0x34363248 // 'H264'
	PixelFmtNV12  = 0x3231564E // 'NV12'
)

// Frame size types.
const (
	frmsizeTypeDiscrete   = 1
	frmsizeTypeContinuous = 2
	frmsizeTypeStepwise   = 3
)

// Buffer type, memory and field values.
const (
	bufTypeVideoCapture = 1
	memoryMmap          = 1
	fieldNone           = 1
)
