//go:build linux

package camera

import (
	"github.com/smazurov/sitemon/pkg/linuxav/v4l2"
)

// v4l2Device adapts *v4l2.Device to Device.
type v4l2Device struct {
	dev *v4l2.Device
}

// OpenV4L2 opens a video node for streaming capture.
func OpenV4L2(path string) (Device, error) {
	dev, err := v4l2.Open(path)
	if err != nil {
		return nil, err
	}
	return &v4l2Device{dev: dev}, nil
}

func (d *v4l2Device) Capabilities() (uint32, error) {
	c, err := d.dev.Capability()
	if err != nil {
		return 0, err
	}
	return c.Caps, nil
}

func (d *v4l2Device) SetFormat(f Format) (Format, error) {
	pix, err := d.dev.SetFormat(v4l2.PixFormat{
		Width:       f.Width,
		Height:      f.Height,
		PixelFormat: uint32(f.Encoding),
	})
	if err != nil {
		return Format{}, err
	}
	return Format{
		Width:        pix.Width,
		Height:       pix.Height,
		Encoding:     Encoding(pix.PixelFormat),
		BytesPerLine: pix.BytesPerLine,
		SizeImage:    pix.SizeImage,
	}, nil
}

func (d *v4l2Device) RequestBuffers(count uint32) (uint32, error) {
	return d.dev.RequestBuffers(count)
}

func (d *v4l2Device) QueryBuffer(index uint32) (BufferInfo, error) {
	buf, err := d.dev.QueryBuffer(index)
	if err != nil {
		return BufferInfo{}, err
	}
	return bufferInfo(buf), nil
}

func (d *v4l2Device) Map(offset, length uint32) ([]byte, error) {
	return d.dev.Map(offset, length)
}

func (d *v4l2Device) Unmap(mem []byte) error {
	return d.dev.Unmap(mem)
}

func (d *v4l2Device) Queue(index uint32) error {
	return d.dev.Queue(index)
}

func (d *v4l2Device) Dequeue() (BufferInfo, error) {
	buf, err := d.dev.Dequeue()
	if err != nil {
		return BufferInfo{}, err
	}
	return bufferInfo(buf), nil
}

func (d *v4l2Device) StreamOn() error {
	return d.dev.StreamOn()
}

func (d *v4l2Device) StreamOff() error {
	return d.dev.StreamOff()
}

func (d *v4l2Device) Close() error {
	return d.dev.Close()
}

func bufferInfo(buf v4l2.Buffer) BufferInfo {
	return BufferInfo{
		Index:     buf.Index,
		Length:    buf.Length,
		Offset:    buf.Offset,
		BytesUsed: buf.BytesUsed,
		Sequence:  buf.Sequence,
	}
}
