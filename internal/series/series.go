// Package series implements the bounded rolling-window primitives the cyclic
// error filter and the kinematics estimator are built on: a plain FIFO
// series plus ordinary-least-squares and Theil-Sen regressions over it.
package series

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"ergomonitor/internal/numeric"
)

// maxAllocationCeiling is the hard cap on a Series' backing array, regardless
// of how large a caller asks maxLen to be. It keeps a misconfigured or
// stuck-stroke scenario (an unbounded logical window) from growing memory
// without limit.
const maxAllocationCeiling = 1000

// Series is a FIFO ring over a bounded number of samples. Its backing array
// starts empty and grows lazily: it doubles on each overflow until it
// reaches min(maxAllocationCapacity, maxAllocationCeiling), then grows by 10
// elements at a time until it reaches maxLen. Once warm (backing array at
// maxLen) pushes are allocation-free.
type Series struct {
	maxLen                int
	maxAllocationCapacity int
	buf                   []numeric.Float
	head, size            int
}

// New creates a Series bounded at maxLen samples.
func New(maxLen int) *Series {
	return NewWithAllocationCap(maxLen, maxAllocationCeiling)
}

// NewWithAllocationCap creates a Series bounded at maxLen samples whose
// backing array grows no faster than maxAllocationCapacity per the doubling
// schedule described above.
func NewWithAllocationCap(maxLen, maxAllocationCapacity int) *Series {
	if maxLen < 1 {
		maxLen = 1
	}
	if maxAllocationCapacity <= 0 || maxAllocationCapacity > maxAllocationCeiling {
		maxAllocationCapacity = maxAllocationCeiling
	}
	return &Series{maxLen: maxLen, maxAllocationCapacity: maxAllocationCapacity}
}

func (s *Series) nextCapacity(cur int) int {
	ceiling := s.maxAllocationCapacity
	if ceiling > maxAllocationCeiling {
		ceiling = maxAllocationCeiling
	}
	var next int
	switch {
	case cur == 0:
		next = 1
	case cur < ceiling:
		next = cur * 2
		if next > ceiling {
			next = ceiling
		}
	default:
		next = cur + 10
	}
	if next > s.maxLen {
		next = s.maxLen
	}
	return next
}

func (s *Series) grow() {
	newCap := s.nextCapacity(len(s.buf))
	if newCap <= len(s.buf) {
		return
	}
	newBuf := make([]numeric.Float, newCap)
	for i := 0; i < s.size; i++ {
		newBuf[i] = s.buf[(s.head+i)%len(s.buf)]
	}
	s.buf = newBuf
	s.head = 0
}

// Push appends v, evicting and returning the oldest sample if the series was
// already at capacity.
func (s *Series) Push(v numeric.Float) (evicted numeric.Float, wasEvicted bool) {
	if s.size < s.maxLen {
		if s.size == len(s.buf) {
			s.grow()
		}
		s.buf[(s.head+s.size)%len(s.buf)] = v
		s.size++
		return 0, false
	}
	evicted = s.buf[s.head]
	s.buf[s.head] = v
	s.head = (s.head + 1) % len(s.buf)
	return evicted, true
}

// Front returns the oldest sample.
func (s *Series) Front() (numeric.Float, bool) {
	if s.size == 0 {
		return 0, false
	}
	return s.buf[s.head], true
}

// Back returns the newest sample.
func (s *Series) Back() (numeric.Float, bool) {
	if s.size == 0 {
		return 0, false
	}
	return s.buf[(s.head+s.size-1)%len(s.buf)], true
}

// Size returns the number of samples currently held.
func (s *Series) Size() int { return s.size }

// MaxLen returns the configured FIFO bound.
func (s *Series) MaxLen() int { return s.maxLen }

// toSlice materializes the series in oldest-to-newest order.
func (s *Series) toSlice() []numeric.Float {
	out := make([]numeric.Float, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.buf[(s.head+i)%len(s.buf)]
	}
	return out
}

// Sum returns the sum of all held samples.
func (s *Series) Sum() numeric.Float {
	if s.size == 0 {
		return 0
	}
	return floats.Sum(s.toSlice())
}

// Average returns the mean of all held samples, 0 if empty.
func (s *Series) Average() numeric.Float {
	if s.size == 0 {
		return 0
	}
	return s.Sum() / numeric.Float(s.size)
}

// Median returns the median of all held samples, 0 if empty.
func (s *Series) Median() numeric.Float {
	if s.size == 0 {
		return 0
	}
	sorted := s.toSlice()
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// Reset clears all held samples without shrinking the backing array.
func (s *Series) Reset() {
	s.head = 0
	s.size = 0
}
