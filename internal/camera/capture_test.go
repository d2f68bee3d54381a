package camera_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smazurov/sitemon/internal/camera"
	"github.com/smazurov/sitemon/internal/camera/camtest"
)

var fixedNow = func() time.Time { return time.Unix(1700000000, 0) }

func TestCycleEndToEnd(t *testing.T) {
	dev := camtest.NewDevice()
	dev.BufferSize = 100
	dev.Fill = func(slot, _ int, mem []byte) {
		for i := range mem {
			mem[i] = byte(slot*10 + i%10)
		}
	}
	s := openSession(t, dev)

	pool, err := s.SwitchFormat(camera.EncodingRawSensor, 10, 10, 3)
	if err != nil {
		t.Fatalf("SwitchFormat() error = %v", err)
	}

	var slept []time.Duration
	c := camera.NewCapturer(s, nil,
		camera.WithSleep(func(d time.Duration) { slept = append(slept, d) }),
		camera.WithClock(fixedNow))

	frames, err := c.Cycle(pool, 3, 0)
	if err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("Cycle() returned %d frames, want 3", len(frames))
	}
	for i, f := range frames {
		if f.Slot() != i {
			t.Errorf("frame %d slot = %d, want %d", i, f.Slot(), i)
		}
	}
	if len(slept) != 0 {
		t.Errorf("slept %v with zero delay", slept)
	}
	if dev.Streaming() {
		t.Error("stream left on after cycle")
	}

	dir := t.TempDir()
	path, err := c.Persist(frames[2], dir)
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if filepath.Base(path) != "1700000000.pgm" {
		t.Errorf("Persist() path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	header := []byte("P5\n10 10\n255\n")
	if len(data) != len(header)+100 {
		t.Fatalf("file size = %d, want %d", len(data), len(header)+100)
	}
	if !bytes.HasPrefix(data, header) {
		t.Errorf("header = %q", data[:len(header)])
	}
	if first := data[len(header)]; first != 20 || data[len(data)-1] != 29 {
		t.Errorf("pixel data not from slot 2: first=%d last=%d", first, data[len(data)-1])
	}
}

func TestCycleCallOrder(t *testing.T) {
	dev := camtest.NewDevice()
	s := openSession(t, dev)
	pool, err := s.SwitchFormat(camera.EncodingRawSensor, 4, 4, 3)
	if err != nil {
		t.Fatal(err)
	}
	dev.ResetCalls()

	var slept []time.Duration
	c := camera.NewCapturer(s, nil, camera.WithSleep(func(d time.Duration) { slept = append(slept, d) }))
	if _, err := c.Cycle(pool, 3, 250*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	want := []string{"streamon", "qbuf", "dqbuf", "qbuf", "dqbuf", "qbuf", "dqbuf", "streamoff"}
	got := dev.Calls()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
	if len(slept) != 2 {
		t.Errorf("slept %d times, want 2 (between iterations only)", len(slept))
	}
}

func TestCycleClampsToCapacity(t *testing.T) {
	dev := camtest.NewDevice()
	s := openSession(t, dev)
	pool, err := s.SwitchFormat(camera.EncodingEncodedWire, 4, 4, 3)
	if err != nil {
		t.Fatal(err)
	}
	c := camera.NewCapturer(s, nil)

	frames, err := c.Cycle(pool, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 3 {
		t.Errorf("Cycle() returned %d frames, want 3", len(frames))
	}

	frames, err = c.Cycle(pool, 0, 0)
	if err != nil || len(frames) != 0 {
		t.Errorf("Cycle(0) = %d frames, %v", len(frames), err)
	}
}

func TestCycleDeviceErrors(t *testing.T) {
	for _, op := range []string{"streamon", "qbuf", "dqbuf", "streamoff"} {
		t.Run(op, func(t *testing.T) {
			dev := camtest.NewDevice()
			s := openSession(t, dev)
			pool, err := s.SwitchFormat(camera.EncodingRawSensor, 4, 4, 3)
			if err != nil {
				t.Fatal(err)
			}
			dev.Fail = map[string]error{op: camtest.ErrInjected}

			c := camera.NewCapturer(s, nil)
			frames, err := c.Cycle(pool, 3, 0)
			if !errors.Is(err, camera.ErrDeviceIO) {
				t.Fatalf("Cycle() error = %v, want ErrDeviceIO", err)
			}
			if !errors.Is(err, camtest.ErrInjected) {
				t.Errorf("cause lost: %v", err)
			}
			if frames != nil {
				t.Errorf("frames returned with error: %d", len(frames))
			}
		})
	}
}

func TestCycleStalePool(t *testing.T) {
	dev := camtest.NewDevice()
	s := openSession(t, dev)
	pool, err := s.SwitchFormat(camera.EncodingRawSensor, 4, 4, 3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SwitchFormat(camera.EncodingEncodedWire, 4, 4, 3); err != nil {
		t.Fatal(err)
	}

	c := camera.NewCapturer(s, nil)
	if _, err := c.Cycle(pool, 3, 0); !errors.Is(err, camera.ErrStaleBuffer) {
		t.Fatalf("Cycle(stale) error = %v, want ErrStaleBuffer", err)
	}
}

func TestPersistPGMStripsStride(t *testing.T) {
	dev := camtest.NewDevice()
	dev.Adjust = func(f camera.Format) camera.Format {
		f.BytesPerLine = 8
		f.SizeImage = 8 * f.Height
		return f
	}
	dev.Fill = func(_, _ int, mem []byte) {
		for i := range mem {
			if i%8 < 6 {
				mem[i] = 0x80
			} else {
				mem[i] = 0xFF
			}
		}
	}
	s := openSession(t, dev)
	pool, err := s.SwitchFormat(camera.EncodingRawSensor, 6, 4, 3)
	if err != nil {
		t.Fatal(err)
	}
	c := camera.NewCapturer(s, nil, camera.WithClock(fixedNow))
	frames, err := c.Cycle(pool, 1, 0)
	if err != nil {
		t.Fatal(err)
	}

	path, err := c.Persist(frames[0], t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	header := "P5\n6 4\n255\n"
	if string(data[:len(header)]) != header {
		t.Fatalf("header = %q, want %q", data[:len(header)], header)
	}
	body := data[len(header):]
	if len(body) != 24 {
		t.Fatalf("body = %d bytes, want 24", len(body))
	}
	if bytes.IndexByte(body, 0xFF) >= 0 {
		t.Error("row padding written to file")
	}
}

func TestPersistJPEG(t *testing.T) {
	tests := []struct {
		name      string
		bytesUsed uint32
		wantSize  int
	}{
		{name: "bytesused honoured", bytesUsed: 7, wantSize: 7},
		{name: "zero bytesused writes full slot", bytesUsed: 0, wantSize: 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := camtest.NewDevice()
			dev.BufferSize = 32
			dev.BytesUsed = tt.bytesUsed
			s := openSession(t, dev)
			pool, err := s.SwitchFormat(camera.EncodingEncodedWire, 4, 4, 3)
			if err != nil {
				t.Fatal(err)
			}
			c := camera.NewCapturer(s, nil, camera.WithClock(fixedNow))
			frames, err := c.Cycle(pool, 3, 0)
			if err != nil {
				t.Fatal(err)
			}
			path, err := c.Persist(frames[len(frames)-1], t.TempDir())
			if err != nil {
				t.Fatal(err)
			}
			if filepath.Ext(path) != ".jpeg" {
				t.Errorf("extension = %s, want .jpeg", filepath.Ext(path))
			}
			info, err := os.Stat(path)
			if err != nil {
				t.Fatal(err)
			}
			if int(info.Size()) != tt.wantSize {
				t.Errorf("size = %d, want %d", info.Size(), tt.wantSize)
			}
		})
	}
}

func TestPersistNameCollision(t *testing.T) {
	dev := camtest.NewDevice()
	s := openSession(t, dev)
	pool, err := s.SwitchFormat(camera.EncodingEncodedWire, 4, 4, 3)
	if err != nil {
		t.Fatal(err)
	}
	c := camera.NewCapturer(s, nil, camera.WithClock(fixedNow))
	frames, err := c.Cycle(pool, 3, 0)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	want := []string{"1700000000.jpeg", "1700000000-1.jpeg", "1700000000-2.jpeg"}
	for i, f := range frames {
		path, err := c.Persist(f, dir)
		if err != nil {
			t.Fatal(err)
		}
		if filepath.Base(path) != want[i] {
			t.Errorf("frame %d path = %s, want %s", i, filepath.Base(path), want[i])
		}
	}
}

func TestPersistErrors(t *testing.T) {
	dev := camtest.NewDevice()
	s := openSession(t, dev)
	pool, err := s.SwitchFormat(camera.EncodingRawSensor, 4, 4, 3)
	if err != nil {
		t.Fatal(err)
	}
	c := camera.NewCapturer(s, nil, camera.WithClock(fixedNow))
	frames, err := c.Cycle(pool, 1, 0)
	if err != nil {
		t.Fatal(err)
	}

	missing := filepath.Join(t.TempDir(), "does", "not", "exist")
	if _, err := c.Persist(frames[0], missing); !errors.Is(err, camera.ErrIO) {
		t.Errorf("Persist(missing dir) error = %v, want ErrIO", err)
	}

	if err := s.ReleaseBuffers(pool); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Persist(frames[0], t.TempDir()); !errors.Is(err, camera.ErrStaleBuffer) {
		t.Errorf("Persist(released) error = %v, want ErrStaleBuffer", err)
	}
}

type failingWriter struct {
	io.WriteCloser
}

func (w failingWriter) Write(p []byte) (int, error) {
	n, _ := w.WriteCloser.Write(p[:len(p)/2])
	return n, errors.New("no space left on device")
}

func TestPersistRemovesPartialFile(t *testing.T) {
	dev := camtest.NewDevice()
	s := openSession(t, dev)
	pool, err := s.SwitchFormat(camera.EncodingRawSensor, 4, 4, 3)
	if err != nil {
		t.Fatal(err)
	}
	c := camera.NewCapturer(s, nil,
		camera.WithClock(fixedNow),
		camera.WithOpenFile(func(name string, flag int, perm os.FileMode) (io.WriteCloser, error) {
			f, err := os.OpenFile(name, flag, perm)
			if err != nil {
				return nil, err
			}
			return failingWriter{f}, nil
		}))
	frames, err := c.Cycle(pool, 1, 0)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	if _, err := c.Persist(frames[0], dir); !errors.Is(err, camera.ErrIO) {
		t.Fatalf("Persist() error = %v, want ErrIO", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("partial file left behind: %v", entries)
	}
}
