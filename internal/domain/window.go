package domain

import "fmt"

// KlineWindow is a fixed-capacity ordered buffer of klines for one
// (symbol, interval) pair. Invariants: entries are strictly increasing by
// CloseTime, and the size never exceeds the configured capacity (oldest
// evicted first on overflow).
//
// The window is not safe for concurrent use; kline delivery per symbol is
// strictly sequential, so each window has a single writer.
type KlineWindow struct {
	capacity int
	klines   []Kline
}

// NewKlineWindow creates an empty window with the given capacity.
func NewKlineWindow(capacity int) (*KlineWindow, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("window capacity must be positive, got %d", capacity)
	}
	return &KlineWindow{
		capacity: capacity,
		klines:   make([]Kline, 0, capacity),
	}, nil
}

// Append adds a kline to the window, evicting the oldest entry when the
// capacity would be exceeded. A kline whose CloseTime is not after the last
// stored CloseTime is a duplicate or out-of-order delivery and is silently
// dropped; Append reports whether the kline was accepted.
func (w *KlineWindow) Append(k Kline) bool {
	if n := len(w.klines); n > 0 && !k.CloseTime.After(w.klines[n-1].CloseTime) {
		return false
	}
	w.klines = append(w.klines, k)
	if len(w.klines) > w.capacity {
		// Shift instead of re-slicing so the backing array does not pin
		// evicted entries and grow without bound.
		copy(w.klines, w.klines[1:])
		w.klines = w.klines[:w.capacity]
	}
	return true
}

// IsFull reports whether the window has reached its capacity.
func (w *KlineWindow) IsFull() bool {
	return len(w.klines) >= w.capacity
}

// Len returns the current number of klines in the window.
func (w *KlineWindow) Len() int {
	return len(w.klines)
}

// Capacity returns the configured maximum size.
func (w *KlineWindow) Capacity() int {
	return w.capacity
}

// Snapshot returns an ordered copy of the window contents. The internal
// storage never escapes.
func (w *KlineWindow) Snapshot() []Kline {
	out := make([]Kline, len(w.klines))
	copy(out, w.klines)
	return out
}
