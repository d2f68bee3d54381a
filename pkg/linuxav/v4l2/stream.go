//go:build linux

package v4l2

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Device is an open capture node used for memory-mapped streaming I/O.
// The descriptor is blocking so Dequeue waits for a filled buffer.
type Device struct {
	path string
	fd   int
}

// Open opens a capture node for streaming.
func Open(path string) (*Device, error) {
	fd, err := openBlocking(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Device{path: path, fd: fd}, nil
}

// Path returns the node the device was opened from.
func (d *Device) Path() string {
	return d.path
}

// Fd returns the underlying file descriptor.
func (d *Device) Fd() int {
	return d.fd
}

// Capability runs VIDIOC_QUERYCAP.
func (d *Device) Capability() (Capability, error) {
	return capabilityOf(d.fd)
}

// SetFormat requests a capture format and returns what the driver negotiated.
// Drivers may adjust any field, so callers must use the returned value.
func (d *Device) SetFormat(pix PixFormat) (PixFormat, error) {
	f := v4l2Format{typ: bufTypeVideoCapture}
	f.pix.width = pix.Width
	f.pix.height = pix.Height
	f.pix.pixelformat = pix.PixelFormat
	f.pix.field = pix.Field
	if f.pix.field == 0 {
		f.pix.field = fieldNone
	}

	if err := ioctl(d.fd, vidiocSFmt, unsafe.Pointer(&f)); err != nil {
		return PixFormat{}, err
	}

	return PixFormat{
		Width:        f.pix.width,
		Height:       f.pix.height,
		PixelFormat:  f.pix.pixelformat,
		Field:        f.pix.field,
		BytesPerLine: f.pix.bytesperline,
		SizeImage:    f.pix.sizeimage,
	}, nil
}

// RequestBuffers asks the driver for count mmap buffers and returns the
// number granted. A count of zero releases all buffers.
func (d *Device) RequestBuffers(count uint32) (uint32, error) {
	req := v4l2RequestBuffers{
		count:  count,
		typ:    bufTypeVideoCapture,
		memory: memoryMmap,
	}
	if err := ioctl(d.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return 0, err
	}
	return req.count, nil
}

// QueryBuffer reports the length and mmap offset of a driver buffer.
func (d *Device) QueryBuffer(index uint32) (Buffer, error) {
	buf := v4l2Buffer{
		index:  index,
		typ:    bufTypeVideoCapture,
		memory: memoryMmap,
	}
	if err := ioctl(d.fd, vidiocQuerybuf, unsafe.Pointer(&buf)); err != nil {
		return Buffer{}, err
	}
	return bufferOf(&buf), nil
}

// Map maps a driver buffer shared and read-write.
func (d *Device) Map(offset uint32, length uint32) ([]byte, error) {
	return unix.Mmap(d.fd, int64(offset), int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// Unmap releases a mapping returned by Map.
func (d *Device) Unmap(mem []byte) error {
	return unix.Munmap(mem)
}

// Queue hands a buffer to the driver for filling.
func (d *Device) Queue(index uint32) error {
	buf := v4l2Buffer{
		index:  index,
		typ:    bufTypeVideoCapture,
		memory: memoryMmap,
	}
	return ioctl(d.fd, vidiocQbuf, unsafe.Pointer(&buf))
}

// Dequeue blocks until the driver returns a filled buffer.
func (d *Device) Dequeue() (Buffer, error) {
	buf := v4l2Buffer{
		typ:    bufTypeVideoCapture,
		memory: memoryMmap,
	}
	if err := ioctl(d.fd, vidiocDqbuf, unsafe.Pointer(&buf)); err != nil {
		return Buffer{}, err
	}
	return bufferOf(&buf), nil
}

// StreamOn starts capture.
func (d *Device) StreamOn() error {
	typ := uint32(bufTypeVideoCapture)
	return ioctl(d.fd, vidiocStreamon, unsafe.Pointer(&typ))
}

// StreamOff stops capture and returns all buffers to the dequeued state.
func (d *Device) StreamOff() error {
	typ := uint32(bufTypeVideoCapture)
	return ioctl(d.fd, vidiocStreamoff, unsafe.Pointer(&typ))
}

// Close closes the descriptor. Mappings stay valid until unmapped.
func (d *Device) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := close(d.fd)
	d.fd = -1
	return err
}

func bufferOf(buf *v4l2Buffer) Buffer {
	return Buffer{
		Index:     buf.index,
		Length:    buf.length,
		Offset:    buf.offset(),
		BytesUsed: buf.bytesused,
		Flags:     buf.flags,
		Sequence:  buf.sequence,
	}
}
