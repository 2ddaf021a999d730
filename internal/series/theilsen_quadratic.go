package series

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"ergomonitor/internal/numeric"
)

// TSQuadraticSeries is a Theil-Sen quadratic regression: for every distinct
// triple of samples in the window, the unique quadratic through them is
// solved via Cramer's rule on the Vandermonde system, and each coefficient
// (a, b, c of y = a*x^2 + b*x + c) is taken as the median across all
// triples. This is the kinematics estimator's source of angular
// acceleration, robust to the occasional outlier impulse that a single
// least-squares quadratic would not be.
//
// Unlike TSLinearSeries, the triple-combination set is not maintained
// incrementally: that would mean tracking an O(window^3) coefficient
// multiset, not O(window^2). Results are cached and recomputed from the
// current window on the next read after a Push invalidates them.
type TSQuadraticSeries struct {
	maxLen  int
	xs, ys  []numeric.Float
	dirty   bool
	a, b, c numeric.Float
}

// NewTSQuadraticSeries creates a Theil-Sen quadratic regression over a
// window of maxLen samples.
func NewTSQuadraticSeries(maxLen int) *TSQuadraticSeries {
	if maxLen < 1 {
		maxLen = 1
	}
	return &TSQuadraticSeries{maxLen: maxLen}
}

// Push records a new (x, y) sample, evicting the oldest FIFO if the window
// is already full.
func (q *TSQuadraticSeries) Push(x, y numeric.Float) {
	q.xs = append(q.xs, x)
	q.ys = append(q.ys, y)
	if len(q.xs) > q.maxLen {
		q.xs = q.xs[1:]
		q.ys = q.ys[1:]
	}
	q.dirty = true
}

// Size returns the number of samples currently in the window.
func (q *TSQuadraticSeries) Size() int { return len(q.xs) }

func det3(m [3][3]numeric.Float) numeric.Float {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// quadCoeffs solves for (a, b, c) of the quadratic through three points by
// Cramer's rule on the Vandermonde system [[x^2, x, 1]] * [a b c]' = [y].
func quadCoeffs(x1, y1, x2, y2, x3, y3 numeric.Float) (a, b, c numeric.Float, ok bool) {
	m := [3][3]numeric.Float{
		{x1 * x1, x1, 1},
		{x2 * x2, x2, 1},
		{x3 * x3, x3, 1},
	}
	denom := det3(m)
	if denom == 0 {
		return 0, 0, 0, false
	}
	ma := m
	ma[0][0], ma[1][0], ma[2][0] = y1, y2, y3
	mb := m
	mb[0][1], mb[1][1], mb[2][1] = y1, y2, y3
	mc := m
	mc[0][2], mc[1][2], mc[2][2] = y1, y2, y3
	return det3(ma) / denom, det3(mb) / denom, det3(mc) / denom, true
}

func (q *TSQuadraticSeries) recompute() {
	q.dirty = false
	n := len(q.xs)
	if n < 3 {
		q.a, q.b, q.c = 0, 0, 0
		return
	}
	var as, bs, cs []numeric.Float
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				a, b, c, ok := quadCoeffs(q.xs[i], q.ys[i], q.xs[j], q.ys[j], q.xs[k], q.ys[k])
				if !ok {
					continue
				}
				as = append(as, a)
				bs = append(bs, b)
				cs = append(cs, c)
			}
		}
	}
	if len(as) == 0 {
		q.a, q.b, q.c = 0, 0, 0
		return
	}
	sort.Float64s(as)
	sort.Float64s(bs)
	sort.Float64s(cs)
	q.a = stat.Quantile(0.5, stat.Empirical, as, nil)
	q.b = stat.Quantile(0.5, stat.Empirical, bs, nil)
	q.c = stat.Quantile(0.5, stat.Empirical, cs, nil)
}

func (q *TSQuadraticSeries) coeffs() (a, b, c numeric.Float) {
	if q.dirty {
		q.recompute()
	}
	return q.a, q.b, q.c
}

// FirstDerivativeAtPosition returns dy/dx = 2*a*x + b at x.
func (q *TSQuadraticSeries) FirstDerivativeAtPosition(x numeric.Float) numeric.Float {
	a, b, _ := q.coeffs()
	return 2*a*x + b
}

// SecondDerivativeAtPosition returns d2y/dx2 = 2*a. The argument is accepted
// for symmetry with FirstDerivativeAtPosition; a quadratic's curvature does
// not depend on x.
func (q *TSQuadraticSeries) SecondDerivativeAtPosition(_ numeric.Float) numeric.Float {
	a, _, _ := q.coeffs()
	return 2 * a
}

// GoodnessOfFit returns the coefficient of determination (R^2) of the
// median quadratic against the held samples.
func (q *TSQuadraticSeries) GoodnessOfFit() numeric.Float {
	n := len(q.xs)
	if n < 3 {
		return 0
	}
	a, b, c := q.coeffs()

	var sy, syy float64
	for _, y := range q.ys {
		sy += y
		syy += y * y
	}
	mean := sy / float64(n)
	ssTot := syy - float64(n)*mean*mean
	if ssTot <= 0 {
		return 0
	}
	var ssRes float64
	for i := range q.xs {
		pred := a*q.xs[i]*q.xs[i] + b*q.xs[i] + c
		diff := q.ys[i] - pred
		ssRes += diff * diff
	}
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
func (q *TSQuadraticSeries) Reset() {
	q.xs = nil
	q.ys = nil
	q.a, q.b, q.c = 0, 0, 0
	q.dirty = false
}
