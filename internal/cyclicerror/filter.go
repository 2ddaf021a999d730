// Package cyclicerror learns a per-magnet multiplicative correction for
// the flywheel's impulse stream, compensating for uneven magnet spacing
// that would otherwise show up as periodic error at the magnet-count
// frequency.
package cyclicerror

import (
	"math"

	"ergomonitor/internal/numeric"
	"ergomonitor/internal/series"
)

const (
	maxClampFraction     = 0.02
	devMedianThreshold   = 0.001
	devMeanSignThreshold = 1.0
	boostDeviationNorm   = 0.004
	boostGain            = 4.0

	// volatilityMargin is the misalignment-detection threshold: the clean
	// fit is considered degraded once its R^2 falls below this fraction of
	// the raw fit's R^2. Empirical; tunable, shipped at 0.8.
	volatilityMargin = 0.8
	decayMin         = 0.1
	decayMax         = 0.5
)

type recordedSample struct {
	relativePos int
	absolutePos uint64
	rawDelta    numeric.Float
}

// Filter is the cyclic-error correction filter. N = numberOfSlots
// multiplicative factors c[0..N) are learned from a rolling regression fit
// over recorded (position, raw delta) samples, then applied to every
// incoming delta by its slot.
type Filter struct {
	n                int
	c                []numeric.Float
	filterSum        numeric.Float
	weightCorrection numeric.Float
	alpha            numeric.Float

	recordingCapacity int
	buffer            []recordedSample
	cursor            int
	isStabilized      bool

	// learnOLS fits dt_expected(absolutePosition) = slope*p + intercept
	// over the samples currently recorded; its coefficients are the
	// expected-delta model replayed through Update once stabilized.
	learnOLS *series.OLSLinearSeries

	rawOLS          *series.OLSLinearSeries
	cleanOLS        *series.OLSLinearSeries
	cumulativeRaw   numeric.Float
	cumulativeClean numeric.Float
	misaligned      bool

	slots []devTracker
}

// New creates a cyclic-error filter with n slots, a recording buffer of
// recordingCapacity samples per learning cycle, and learning aggressiveness
// alpha in [0, 1] (0 disables learning entirely).
func New(n, recordingCapacity int, alpha numeric.Float) *Filter {
	if n < 1 {
		n = 1
	}
	c := make([]numeric.Float, n)
	for i := range c {
		c[i] = 1
	}
	return &Filter{
		n:                 n,
		c:                 c,
		filterSum:         numeric.Float(n),
		weightCorrection:  1,
		alpha:             alpha,
		recordingCapacity: recordingCapacity,
		learnOLS:          series.NewOLSLinearSeries(recordingCapacity),
		rawOLS:            series.NewOLSLinearSeries(recordingCapacity),
		cleanOLS:          series.NewOLSLinearSeries(recordingCapacity),
		slots:             make([]devTracker, n),
	}
}

func (f *Filter) slotOf(relativePos int) int {
	s := relativePos % f.n
	if s < 0 {
		s += f.n
	}
	return s
}

// ApplyFilter returns the corrected delta for a sample at relativePos.
func (f *Filter) ApplyFilter(relativePos int, rawDelta numeric.Float) numeric.Float {
	return rawDelta * f.c[f.slotOf(relativePos)] * f.weightCorrection
}

// Process runs one raw sample through the filter: it applies the current
// correction, feeds the misalignment-detection regressions, and advances
// the learning state machine (recording while unstabilized, replaying one
// buffered sample per call once stabilized). It returns the clean delta.
func (f *Filter) Process(absolutePos uint64, relativePos int, rawDelta numeric.Float) numeric.Float {
	clean := f.ApplyFilter(relativePos, rawDelta)

	f.cumulativeRaw += rawDelta
	f.cumulativeClean += clean
	f.rawOLS.Push(f.cumulativeRaw, rawDelta)
	f.cleanOLS.Push(f.cumulativeClean, clean)
	f.checkMisalignment()

	if !f.isStabilized {
		f.record(relativePos, absolutePos, rawDelta)
	} else {
		f.processNextRawDatapoint()
	}
	return clean
}

func (f *Filter) record(relativePos int, absolutePos uint64, rawDelta numeric.Float) {
	if len(f.buffer) >= f.recordingCapacity {
		f.isStabilized = true
		return
	}
	f.buffer = append(f.buffer, recordedSample{relativePos: relativePos, absolutePos: absolutePos, rawDelta: rawDelta})
	f.learnOLS.Push(numeric.Float(absolutePos), rawDelta)
	if len(f.buffer) >= f.recordingCapacity {
		f.isStabilized = true
	}
}

// processNextRawDatapoint replays one recorded sample through Update.
// If the cursor has run past the end of the recorded buffer, the buffer is
// discarded and recording restarts from empty rather than wrapping the
// cursor back to the start; wrapping would reapply corrections already
// learned from those samples and double-count them.
func (f *Filter) processNextRawDatapoint() {
	if f.cursor >= len(f.buffer) {
		f.Restart()
		return
	}
	sample := f.buffer[f.cursor]
	f.cursor++

	slope := f.learnOLS.Slope()
	intercept := f.learnOLS.Intercept()
	r2 := f.learnOLS.GoodnessOfFit()
	perfect := slope*numeric.Float(sample.absolutePos) + intercept
	f.Update(sample.relativePos, sample.rawDelta, perfect, r2)

	if f.cursor >= len(f.buffer) {
		f.Restart()
	}
}

// Update folds one (raw, expected) observation into the slot's learned
// correction. perfect is the expected delta from a linear model over
// absolute position and rSquared is that model's goodness of fit; Process
// supplies both from the internally recorded regression, but a collaborator
// holding a better-conditioned model may call Update directly.
func (f *Filter) Update(relativePos int, raw, perfect, rSquared numeric.Float) {
	if raw == 0 || f.alpha == 0 {
		return
	}
	slot := f.slotOf(relativePos)
	old := f.c[slot]

	correction := perfect / raw
	low, high := old*(1-maxClampFraction), old*(1+maxClampFraction)
	clamped := correction
	if clamped < low {
		clamped = low
	}
	if clamped > high {
		clamped = high
	}

	effective := (clamped-1)*f.alpha + 1

	dev := (clamped - old) / old
	f.slots[slot].push(dev)

	boost := numeric.Float(1)
	if f.slots[slot].full() {
		median := f.slots[slot].median()
		meanSign := f.slots[slot].meanSign()
		absMedian, absMeanSign := math.Abs(median), math.Abs(meanSign)
		if absMedian >= devMedianThreshold && absMeanSign >= devMeanSignThreshold {
			ratio := absMedian / boostDeviationNorm
			if ratio > 1 {
				ratio = 1
			}
			boost = 1 + ratio*absMeanSign*boostGain
		}
	}

	weight := rSquared * boost
	if weight < 0 {
		weight = 0
	}
	if weight > 1 {
		weight = 1
	}

	newValue := old*(1-weight) + effective*weight

	// filterSum must be updated by delta before c[slot] is overwritten;
	// reordering leaves weightCorrection a sub-ulp off from a fresh
	// full-sum recomputation, and same-slot ratio comparisons between two
	// filter instances stop holding bit-for-bit.
	f.filterSum += newValue - old
	f.c[slot] = newValue
	f.weightCorrection = numeric.Float(f.n) / f.filterSum
}

func (f *Filter) checkMisalignment() {
	r2Raw := f.rawOLS.GoodnessOfFit()
	r2Clean := f.cleanOLS.GoodnessOfFit()
	if r2Raw <= 0 {
		f.misaligned = false
		return
	}
	if r2Clean >= volatilityMargin*r2Raw {
		f.misaligned = false
		return
	}
	f.misaligned = true

	lag := 1 - r2Clean/r2Raw
	decay := lag
	if decay < decayMin {
		decay = decayMin
	}
	if decay > decayMax {
		decay = decayMax
	}
	for i := range f.c {
		old := f.c[i]
		newValue := old + (1-old)*decay
		f.filterSum += newValue - old
		f.c[i] = newValue
	}
	f.weightCorrection = numeric.Float(f.n) / f.filterSum
}

// IsPotentiallyMisaligned reports whether the most recent sample triggered
// misalignment detection.
func (f *Filter) IsPotentiallyMisaligned() bool { return f.misaligned }

// WeightCorrection returns the current normalization factor N / sum(c).
func (f *Filter) WeightCorrection() numeric.Float { return f.weightCorrection }

// Correction returns the slot's current multiplicative factor.
func (f *Filter) Correction(relativePos int) numeric.Float {
	return f.c[f.slotOf(relativePos)]
}

// Restart clears the recording buffer and misalignment/learning
// regressions but preserves the learned c[] values.
func (f *Filter) Restart() {
	f.buffer = f.buffer[:0]
	f.cursor = 0
	f.isStabilized = false
	f.learnOLS.Reset()
	f.rawOLS.Reset()
	f.cleanOLS.Reset()
}

// Reset clears all learned state: c[i] = 1, weightCorrection = 1, slot
// deviation trackers and learning buffers empty.
func (f *Filter) Reset() {
	f.Restart()
	for i := range f.c {
		f.c[i] = 1
	}
	f.filterSum = numeric.Float(f.n)
	f.weightCorrection = 1
	for i := range f.slots {
		f.slots[i].reset()
	}
	f.rawOLS.Reset()
	f.cleanOLS.Reset()
	f.cumulativeRaw = 0
	f.cumulativeClean = 0
	f.misaligned = false
}
