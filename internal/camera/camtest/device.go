// Package camtest provides an in-memory capture device for tests.
package camtest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/smazurov/sitemon/internal/camera"
)

// ErrInjected is returned by operations configured to fail.
var ErrInjected = errors.New("injected failure")

// Device is a fake camera.Device. Buffers are plain byte slices; Fill is
// called on every dequeued slot so tests can script what the sensor sees.
type Device struct {
	mu sync.Mutex

	// Caps is returned by Capabilities.
	Caps uint32
	// Grant caps the number of buffers RequestBuffers hands out; zero grants
	// whatever is asked.
	Grant uint32
	// MinBuffers raises any nonzero request to at least this many buffers,
	// as drivers with a minimum queue depth do.
	MinBuffers uint32
	// BufferSize overrides the per-buffer length; zero uses the format's SizeImage.
	BufferSize uint32
	// ShortMapAt makes Map of that buffer index return one byte less than
	// reported. -1 disables.
	ShortMapAt int
	// BytesUsed is reported by Dequeue; zero reports the full buffer length.
	BytesUsed uint32
	// Adjust lets a test emulate driver format adjustment.
	Adjust func(camera.Format) camera.Format
	// Fill writes frame content into a slot when it is dequeued.
	Fill func(slot int, frame int, mem []byte)
	// Fail maps an operation name to the error it should return.
	// Names: querycap, setformat, reqbufs, querybuf, map, unmap, qbuf, dqbuf,
	// streamon, streamoff, close.
	Fail map[string]error
	// FailAfter maps an operation name to the number of calls that succeed
	// before Fail takes effect.
	FailAfter map[string]int

	format    camera.Format
	buffers   [][]byte
	mapped    map[*byte]bool
	queue     []uint32
	streaming bool
	closed    bool
	frames    int
	calls     map[string]int
	log       []string
}

// NewDevice returns a device advertising capture and streaming.
func NewDevice() *Device {
	return &Device{
		Caps:       camera.CapVideoCapture | camera.CapStreaming,
		ShortMapAt: -1,
		mapped:     make(map[*byte]bool),
		calls:      make(map[string]int),
	}
}

// Opener returns a camera.Opener that hands out d for any path.
func (d *Device) Opener() camera.Opener {
	return func(string) (camera.Device, error) {
		d.mu.Lock()
		d.closed = false
		d.mu.Unlock()
		return d, nil
	}
}

// Mapped is the number of live mappings.
func (d *Device) Mapped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mapped)
}

// Allocated is the number of buffers the device currently holds.
func (d *Device) Allocated() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

// Streaming reports the stream state.
func (d *Device) Streaming() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streaming
}

// Closed reports whether Close was called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Calls returns the operations performed, in order.
func (d *Device) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.log...)
}

// ResetCalls clears the recorded operations.
func (d *Device) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = nil
}

func (d *Device) record(op string) error {
	d.log = append(d.log, op)
	n := d.calls[op]
	d.calls[op] = n + 1
	err, ok := d.Fail[op]
	if !ok {
		return nil
	}
	if n < d.FailAfter[op] {
		return nil
	}
	return err
}

func (d *Device) Capabilities() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("querycap"); err != nil {
		return 0, err
	}
	return d.Caps, nil
}

func (d *Device) SetFormat(f camera.Format) (camera.Format, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("setformat"); err != nil {
		return camera.Format{}, err
	}
	if len(d.buffers) > 0 {
		return camera.Format{}, errors.New("device busy")
	}

	if d.Adjust != nil {
		f = d.Adjust(f)
	}
	if f.Encoding == camera.EncodingRawSensor && f.BytesPerLine == 0 {
		f.BytesPerLine = f.Width
	}
	if f.SizeImage == 0 {
		f.SizeImage = f.Width * f.Height
	}
	d.format = f
	return f, nil
}

func (d *Device) RequestBuffers(count uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("reqbufs"); err != nil {
		return 0, err
	}
	if count == 0 {
		d.buffers = nil
		d.queue = nil
		return 0, nil
	}
	if len(d.buffers) > 0 {
		return 0, errors.New("device busy")
	}
	if d.Grant > 0 && count > d.Grant {
		count = d.Grant
	}
	count = max(count, d.MinBuffers)
	size := d.BufferSize
	if size == 0 {
		size = d.format.SizeImage
	}
	d.buffers = make([][]byte, count)
	for i := range d.buffers {
		d.buffers[i] = make([]byte, size)
	}
	return count, nil
}

func (d *Device) QueryBuffer(index uint32) (camera.BufferInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("querybuf"); err != nil {
		return camera.BufferInfo{}, err
	}
	if int(index) >= len(d.buffers) {
		return camera.BufferInfo{}, fmt.Errorf("no buffer %d", index)
	}
	length := uint32(len(d.buffers[index]))
	return camera.BufferInfo{Index: index, Length: length, Offset: index * length}, nil
}

func (d *Device) Map(offset, length uint32) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("map"); err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, errors.New("zero length mapping")
	}
	index := int(offset / length)
	if index >= len(d.buffers) {
		return nil, fmt.Errorf("bad offset %d", offset)
	}
	mem := d.buffers[index]
	if index == d.ShortMapAt {
		mem = mem[:len(mem)-1]
	}
	d.mapped[&mem[0]] = true
	return mem, nil
}

func (d *Device) Unmap(mem []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("unmap"); err != nil {
		return err
	}
	if len(mem) == 0 || !d.mapped[&mem[0]] {
		return errors.New("not mapped")
	}
	delete(d.mapped, &mem[0])
	return nil
}

func (d *Device) Queue(index uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("qbuf"); err != nil {
		return err
	}
	if int(index) >= len(d.buffers) {
		return fmt.Errorf("no buffer %d", index)
	}
	d.queue = append(d.queue, index)
	return nil
}

func (d *Device) Dequeue() (camera.BufferInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("dqbuf"); err != nil {
		return camera.BufferInfo{}, err
	}
	if !d.streaming {
		return camera.BufferInfo{}, errors.New("not streaming")
	}
	if len(d.queue) == 0 {
		return camera.BufferInfo{}, errors.New("no buffer queued")
	}
	index := d.queue[0]
	d.queue = d.queue[1:]
	mem := d.buffers[index]
	if d.Fill != nil {
		d.Fill(int(index), d.frames, mem)
	}
	d.frames++

	used := d.BytesUsed
	if used == 0 {
		used = uint32(len(mem))
	}
	return camera.BufferInfo{
		Index:     index,
		Length:    uint32(len(mem)),
		BytesUsed: used,
		Sequence:  uint32(d.frames - 1),
	}, nil
}

func (d *Device) StreamOn() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("streamon"); err != nil {
		return err
	}
	d.streaming = true
	return nil
}

func (d *Device) StreamOff() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("streamoff"); err != nil {
		return err
	}
	d.streaming = false
	d.queue = nil
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("close"); err != nil {
		return err
	}
	d.closed = true
	return nil
}

// Solid fills every byte of a frame with v.
func Solid(v byte) func(slot, frame int, mem []byte) {
	return func(_, _ int, mem []byte) {
		for i := range mem {
			mem[i] = v
		}
	}
}

// PerFrame fills frame n with values[n % len(values)].
func PerFrame(values ...byte) func(slot, frame int, mem []byte) {
	return func(_, frame int, mem []byte) {
		v := values[frame%len(values)]
		for i := range mem {
			mem[i] = v
		}
	}
}
