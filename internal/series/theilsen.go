package series

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"ergomonitor/internal/numeric"
)

// TSLinearSeries is a Theil-Sen linear regression over a bounded window of
// (x, y) pairs: the slope is the median of all pairwise slopes, robust to
// outliers in a way OLS is not. The upper-triangle of pairwise slopes is
// maintained incrementally: a Push inserts the new point's slope against
// every point already in the window into a kept-sorted multiset, and
// evicting the oldest point on overflow removes its slopes from that same
// multiset, rather than recomputing the full O(window^2) set from scratch
// on every read.
type TSLinearSeries struct {
	maxLen int
	xs, ys []numeric.Float // sliding window of raw samples, oldest first
	slopes []numeric.Float // every pairwise slope in the window, kept sorted ascending
}

// NewTSLinearSeries creates a Theil-Sen regression over a window of maxLen
// pairs.
func NewTSLinearSeries(maxLen int) *TSLinearSeries {
	if maxLen < 1 {
		maxLen = 1
	}
	return &TSLinearSeries{maxLen: maxLen}
}

// Push records a new (x, y) sample, evicting the oldest pair FIFO if the
// window is already full.
func (t *TSLinearSeries) Push(x, y numeric.Float) {
	if len(t.xs) == t.maxLen {
		t.evictOldest()
	}

	for i := range t.xs {
		dx := x - t.xs[i]
		if dx == 0 {
			continue
		}
		t.insertSlope((y - t.ys[i]) / dx)
	}
	t.xs = append(t.xs, x)
	t.ys = append(t.ys, y)
}

// evictOldest drops the window's oldest sample and removes every pairwise
// slope it contributed from the sorted multiset.
func (t *TSLinearSeries) evictOldest() {
	ox, oy := t.xs[0], t.ys[0]
	t.xs = t.xs[1:]
	t.ys = t.ys[1:]
	for i := range t.xs {
		dx := t.xs[i] - ox
		if dx == 0 {
			continue
		}
		t.removeSlope((t.ys[i] - oy) / dx)
	}
}

// insertSlope inserts v into the sorted slopes slice, keeping it ascending.
func (t *TSLinearSeries) insertSlope(v numeric.Float) {
	i := sort.Search(len(t.slopes), func(i int) bool { return t.slopes[i] >= v })
	t.slopes = append(t.slopes, 0)
	copy(t.slopes[i+1:], t.slopes[i:])
	t.slopes[i] = v
}

// removeSlope removes one occurrence of v from the sorted slopes slice.
// v is always a value that was previously inserted with an identical
// floating-point computation (same operand order), so the equality search
// below matches bit-for-bit.
func (t *TSLinearSeries) removeSlope(v numeric.Float) {
	i := sort.Search(len(t.slopes), func(i int) bool { return t.slopes[i] >= v })
	if i >= len(t.slopes) || t.slopes[i] != v {
		return
	}
	t.slopes = append(t.slopes[:i], t.slopes[i+1:]...)
}

// Size returns the number of pairs currently in the window.
func (t *TSLinearSeries) Size() int { return len(t.xs) }

// CoefficientA returns the median pairwise slope, 0 if fewer than 2 samples
// are held or all samples share the same x.
func (t *TSLinearSeries) CoefficientA() numeric.Float {
	if len(t.slopes) == 0 {
		return 0
	}
	return stat.Quantile(0.5, stat.Empirical, t.slopes, nil)
}

// CoefficientB returns the median intercept corresponding to CoefficientA.
// Unlike the pairwise slopes, the per-sample intercepts depend on the
// current median slope, so they cannot be cached across pushes and are
// recomputed from the window each call. O(window).
func (t *TSLinearSeries) CoefficientB() numeric.Float {
	n := len(t.xs)
	if n < 2 {
		return 0
	}
	slope := t.CoefficientA()
	intercepts := make([]numeric.Float, n)
	for i := 0; i < n; i++ {
		intercepts[i] = t.ys[i] - slope*t.xs[i]
	}
	sort.Float64s(intercepts)
	return stat.Quantile(0.5, stat.Empirical, intercepts, nil)
}

// Reset clears the window.
func (t *TSLinearSeries) Reset() {
	t.xs = nil
	t.ys = nil
	t.slopes = nil
}
