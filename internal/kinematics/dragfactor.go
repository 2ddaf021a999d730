package kinematics

import (
	"ergomonitor/internal/numeric"
	"ergomonitor/internal/series"
)

// dragEstimator accumulates (t, 1/omega) observations over a recovery
// window and, when the window closes with a sufficiently linear fit,
// pushes the implied drag slope into a rolling median buffer. The median
// becomes the live drag coefficient k, so a single noisy recovery does not
// swing reported drag.
type dragEstimator struct {
	ols *series.OLSLinearSeries

	goodnessOfFitThreshold   numeric.Float
	lowerDragFactorThreshold numeric.Float // x1e-6
	upperDragFactorThreshold numeric.Float // x1e-6
	maxRecoverySeconds       numeric.Float // <= 0 means uncapped

	firstT, lastT numeric.Float
	haveT         bool

	medianBuf *series.Series
	k         numeric.Float
}

func newDragEstimator(windowLen int, r2Threshold, lowerThreshold, upperThreshold, maxRecoveryMs numeric.Float, medianLen int) *dragEstimator {
	return &dragEstimator{
		ols:                      series.NewOLSLinearSeries(windowLen),
		goodnessOfFitThreshold:   r2Threshold,
		lowerDragFactorThreshold: lowerThreshold,
		upperDragFactorThreshold: upperThreshold,
		maxRecoverySeconds:       maxRecoveryMs / 1000.0,
		medianBuf:                series.New(medianLen),
	}
}

func (d *dragEstimator) begin() {
	d.ols.Reset()
	d.haveT = false
}

func (d *dragEstimator) feed(totalTimeSeconds, omega numeric.Float) {
	if omega == 0 {
		return
	}
	if !d.haveT {
		d.firstT = totalTimeSeconds
		d.haveT = true
	}
	d.lastT = totalTimeSeconds
	d.ols.Push(totalTimeSeconds, 1/omega)
}

// end closes the window. Recoveries longer than the configured cap are
// not used for drag.
func (d *dragEstimator) end() {
	if d.ols.Size() < 2 {
		return
	}
	if d.maxRecoverySeconds > 0 && d.lastT-d.firstT > d.maxRecoverySeconds {
		return
	}
	r2 := d.ols.GoodnessOfFit()
	if r2 < d.goodnessOfFitThreshold {
		return
	}
	slope := d.ols.Slope()
	lower := d.lowerDragFactorThreshold * 1e-6
	upper := d.upperDragFactorThreshold * 1e-6
	if slope < lower || slope > upper {
		return
	}
	d.medianBuf.Push(slope)
	d.k = d.medianBuf.Median()
}

// Coefficient returns the live drag coefficient. It is preserved across
// invalid/insufficient recovery windows rather than reset to zero.
func (d *dragEstimator) Coefficient() numeric.Float { return d.k }

func (d *dragEstimator) reset() {
	d.ols.Reset()
	d.medianBuf.Reset()
	d.haveT = false
	d.k = 0
}
