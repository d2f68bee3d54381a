package camera

import (
	"fmt"
)

// Difference is the sum of absolute byte differences over the shorter of
// a and b.
func Difference(a, b []byte) uint64 {
	n := min(len(a), len(b))
	var sum uint64
	for i := 0; i < n; i++ {
		x, y := a[i], b[i]
		if x > y {
			sum += uint64(x - y)
		} else {
			sum += uint64(y - x)
		}
	}
	return sum
}

// Score is Difference normalized by pixel area with integer division.
// A non-positive area scores zero.
func Score(a, b []byte, area int64) uint64 {
	if area <= 0 {
		return 0
	}
	return Difference(a, b) / uint64(area)
}

// DetectMotion reports whether the normalized difference of a and b is
// strictly greater than threshold. Both samples must come from the same
// raw sensor capture cycle.
func DetectMotion(a, b []byte, area int64, threshold uint64) bool {
	if area <= 0 {
		return false
	}
	return Score(a, b, area) > threshold
}

// SlotPair names the two slots of a sensing cycle that are compared.
// Negative indices count from the end of the cycle.
type SlotPair struct {
	First  int
	Second int
}

// DefaultSlotPair compares the second frame against the last.
var DefaultSlotPair = SlotPair{First: 1, Second: -1}

func (p SlotPair) String() string {
	return fmt.Sprintf("%d,%d", p.First, p.Second)
}

// Resolve maps the pair onto a cycle of n frames.
func (p SlotPair) Resolve(n int) (int, int, error) {
	a, ok := resolveIndex(p.First, n)
	if !ok {
		return 0, 0, fmt.Errorf("slot %d out of range for %d frames", p.First, n)
	}
	b, ok := resolveIndex(p.Second, n)
	if !ok {
		return 0, 0, fmt.Errorf("slot %d out of range for %d frames", p.Second, n)
	}
	return a, b, nil
}

// ParseSlotPair parses "first,second", for example "1,-1".
func ParseSlotPair(s string) (SlotPair, error) {
	var p SlotPair
	if _, err := fmt.Sscanf(s, "%d,%d", &p.First, &p.Second); err != nil {
		return SlotPair{}, fmt.Errorf("invalid slot pair %q: %w", s, err)
	}
	return p, nil
}

func resolveIndex(i, n int) (int, bool) {
	if i < 0 {
		i += n
	}
	return i, i >= 0 && i < n
}
