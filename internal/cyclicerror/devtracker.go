package cyclicerror

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"ergomonitor/internal/numeric"
)

// devBufferSize is the depth of each slot's signed-deviation history used
// to decide whether its error is persistent enough to warrant a boost.
const devBufferSize = 5

// devTracker is a tiny fixed-size ring of a slot's recent signed
// corrections, used to compute a median and a mean sign without pulling in
// the general Series type (which does not expose raw elements).
type devTracker struct {
	devs  [devBufferSize]numeric.Float
	count int
	next  int
}

func (d *devTracker) push(dev numeric.Float) {
	d.devs[d.next] = dev
	d.next = (d.next + 1) % devBufferSize
	if d.count < devBufferSize {
		d.count++
	}
}

func (d *devTracker) full() bool { return d.count == devBufferSize }

func (d *devTracker) median() numeric.Float {
	if d.count == 0 {
		return 0
	}
	tmp := append([]numeric.Float(nil), d.devs[:d.count]...)
	sort.Float64s(tmp)
	return stat.Quantile(0.5, stat.Empirical, tmp, nil)
}

// meanSign returns the mean of sign(dev) across the held deviations, in
// [-1, 1]. A magnitude of 1 means every held deviation shares the same
// sign.
func (d *devTracker) meanSign() numeric.Float {
	if d.count == 0 {
		return 0
	}
	var sum numeric.Float
	for i := 0; i < d.count; i++ {
		switch {
		case d.devs[i] > 0:
			sum++
		case d.devs[i] < 0:
			sum--
		}
	}
	return sum / numeric.Float(d.count)
}

func (d *devTracker) reset() {
	*d = devTracker{}
}
