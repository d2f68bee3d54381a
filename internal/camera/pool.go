package camera

import "fmt"

// Handle refers to one slot of a BufferPool under one format generation.
type Handle struct {
	slot       int
	generation uint64
}

// Slot is the slot index the handle refers to.
func (h Handle) Slot() int {
	return h.slot
}

type slot struct {
	mem    []byte
	length uint32
}

// BufferPool is the ordered set of driver buffers mapped into the process.
// A pool is bound to the session generation it was allocated under; once the
// session releases it or changes format, every handle becomes stale.
type BufferPool struct {
	session    *Session
	generation uint64
	format     Format
	requested  int
	slots      []slot
}

// Cap is the number of slots granted by the device.
func (p *BufferPool) Cap() int {
	if p == nil {
		return 0
	}
	return len(p.slots)
}

// Requested is the buffer count asked for at allocation. Drivers may grant
// more, so Cap can exceed it.
func (p *BufferPool) Requested() int {
	if p == nil {
		return 0
	}
	return p.requested
}

// Mapped counts slots that still hold a mapping.
func (p *BufferPool) Mapped() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, s := range p.slots {
		if s.mem != nil {
			n++
		}
	}
	return n
}

// Format is the format the pool was sized for.
func (p *BufferPool) Format() Format {
	return p.format
}

// Generation is the session generation the pool was allocated under.
func (p *BufferPool) Generation() uint64 {
	return p.generation
}

// Live reports whether the pool is still the session's current pool.
func (p *BufferPool) Live() bool {
	return p != nil && p.session != nil &&
		p.session.pool == p &&
		p.session.generation == p.generation
}

// Handle returns a handle for slot i. Negative values count from the end,
// so -1 is the last slot.
func (p *BufferPool) Handle(i int) (Handle, error) {
	if !p.Live() {
		return Handle{}, newError(ErrStaleBuffer, "handle", nil)
	}
	idx := i
	if idx < 0 {
		idx += len(p.slots)
	}
	if idx < 0 || idx >= len(p.slots) {
		return Handle{}, newError(ErrStaleBuffer, "handle", fmt.Errorf("slot %d out of range for %d buffers", i, len(p.slots)))
	}
	return Handle{slot: idx, generation: p.generation}, nil
}

// Bytes returns the full mapped region behind h. The slice aliases memory
// shared with the driver and must not be retained past the next capture
// cycle or format change.
func (p *BufferPool) Bytes(h Handle) ([]byte, error) {
	if !p.Live() || h.generation != p.generation {
		return nil, newError(ErrStaleBuffer, "bytes", nil)
	}
	if h.slot < 0 || h.slot >= len(p.slots) || p.slots[h.slot].mem == nil {
		return nil, newError(ErrStaleBuffer, "bytes", fmt.Errorf("slot %d not mapped", h.slot))
	}
	return p.slots[h.slot].mem, nil
}
