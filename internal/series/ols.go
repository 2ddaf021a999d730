package series

import "ergomonitor/internal/numeric"

// OLSLinearSeries is a rolling ordinary-least-squares regression over a
// bounded window of (x, y) pairs. Sums are maintained incrementally as
// samples are pushed and evicted, so Slope/Intercept/GoodnessOfFit are O(1).
type OLSLinearSeries struct {
	xs, ys                *Series
	sx, sy, sxx, sxy, syy numeric.Float
}

// NewOLSLinearSeries creates an OLS regression over a window of maxLen pairs.
func NewOLSLinearSeries(maxLen int) *OLSLinearSeries {
	return &OLSLinearSeries{xs: New(maxLen), ys: New(maxLen)}
}

// Push records a new (x, y) sample, evicting the oldest pair if the window
// is already full.
func (o *OLSLinearSeries) Push(x, y numeric.Float) {
	evictedX, wasX := o.xs.Push(x)
	evictedY, wasY := o.ys.Push(y)
	if wasX && wasY {
		o.sx -= evictedX
		o.sy -= evictedY
		o.sxx -= evictedX * evictedX
		o.sxy -= evictedX * evictedY
		o.syy -= evictedY * evictedY
	}
	o.sx += x
	o.sy += y
	o.sxx += x * x
	o.sxy += x * y
	o.syy += y * y
}

// Size returns the number of pairs currently in the window.
func (o *OLSLinearSeries) Size() int { return o.xs.Size() }

// Slope returns the OLS slope, 0 if fewer than 2 samples are held.
func (o *OLSLinearSeries) Slope() numeric.Float {
	n := numeric.Float(o.Size())
	if n < 2 {
		return 0
	}
	denom := n*o.sxx - o.sx*o.sx
	if denom == 0 {
		return 0
	}
	return (n*o.sxy - o.sx*o.sy) / denom
}

// Intercept returns the OLS intercept, 0 if fewer than 2 samples are held.
func (o *OLSLinearSeries) Intercept() numeric.Float {
	n := numeric.Float(o.Size())
	if n < 2 {
		return 0
	}
	return (o.sy - o.Slope()*o.sx) / n
}

// GoodnessOfFit returns the coefficient of determination (R^2) of the
// current slope/intercept against the held samples, 0 if fewer than 2
// samples are held or the samples have no variance.
func (o *OLSLinearSeries) GoodnessOfFit() numeric.Float {
	n := numeric.Float(o.Size())
	if n < 2 {
		return 0
	}
	slope, intercept := o.Slope(), o.Intercept()
	ssTot := o.syy - o.sy*o.sy/n
	if ssTot <= 0 {
		return 0
	}
	ssRes := o.syy - 2*slope*o.sxy - 2*intercept*o.sy + slope*slope*o.sxx +
		2*slope*intercept*o.sx + intercept*intercept*n
	r2 := 1 - ssRes/ssTot
	if r2 < 0 {
		return 0
	}
	if r2 > 1 {
		return 1
	}
	return r2
}

// Reset clears the window.
func (o *OLSLinearSeries) Reset() {
	o.xs.Reset()
	o.ys.Reset()
	o.sx, o.sy, o.sxx, o.sxy, o.syy = 0, 0, 0, 0, 0
}
