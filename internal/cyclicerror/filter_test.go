package cyclicerror

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_ZeroAggressivenessIsIdentity(t *testing.T) {
	f := New(4, 20, 0)
	var pos uint64
	for i := 0; i < 100; i++ {
		raw := 100.0
		if i%4 == 0 {
			raw = 130.0
		}
		clean := f.Process(pos, int(pos), raw)
		assert.Equal(t, raw, clean, "alpha=0 must be a bitwise identity pass-through")
		pos++
	}
	for i := 0; i < 4; i++ {
		assert.Equal(t, 1.0, f.Correction(i))
	}
}

func TestFilter_SameSlotSameRatio(t *testing.T) {
	f := New(4, 10, 1.0)
	var pos uint64
	for i := 0; i < 50; i++ {
		f.Process(pos, int(pos), 100.0)
		pos++
	}
	r1 := f.ApplyFilter(0, 100) / 100
	r2 := f.ApplyFilter(8, 100) / 100
	assert.Equal(t, r1, r2, "two positions congruent mod N must receive the same ratio")
}

func TestFilter_ResetClearsLearnedCorrections(t *testing.T) {
	f := New(4, 10, 1.0)
	var pos uint64
	for i := 0; i < 60; i++ {
		raw := 100.0
		if pos%4 == 0 {
			raw = 120.0
		}
		f.Process(pos, int(pos%4), raw)
		pos++
	}
	f.Reset()
	for i := 0; i < 4; i++ {
		assert.Equal(t, 1.0, f.Correction(i))
	}
	assert.Equal(t, 1.0, f.WeightCorrection())
	assert.False(t, f.IsPotentiallyMisaligned())
}

func TestFilter_RestartPreservesLearnedCorrectionsButClearsBuffers(t *testing.T) {
	f := New(4, 10, 1.0)
	var pos uint64
	for i := 0; i < 40; i++ {
		raw := 100.0
		if pos%4 == 0 {
			raw = 120.0
		}
		f.Process(pos, int(pos%4), raw)
		pos++
	}
	before := make([]float64, 4)
	for i := range before {
		before[i] = f.Correction(i)
	}
	f.Restart()
	for i := range before {
		assert.Equal(t, before[i], f.Correction(i), "restart must preserve learned c[]")
	}
}

// TestFilter_LearnsAsymmetricBias drives Update with an externally
// supplied flat model (slope 0, intercept 100, high fit): slot 0 always
// reads 110ms against slots 1-3 at 100ms, so its correction must shrink
// below 1 until the corrected deltas of all four slots converge.
func TestFilter_LearnsAsymmetricBias(t *testing.T) {
	f := New(4, 20, 1.0)
	for i := 0; i < 20; i++ {
		slot := i % 4
		raw := 100.0
		if slot == 0 {
			raw = 110.0
		}
		f.Update(slot, raw, 100.0, 0.99)
	}
	require.Less(t, f.Correction(0), 1.0)
	slot0 := f.ApplyFilter(0, 110.0)
	slot1 := f.ApplyFilter(1, 100.0)
	assert.Less(t, slot0, 110.0)
	assert.Greater(t, slot0, 100.0)
	assert.Greater(t, slot1, 100.0)
	assert.InDelta(t, slot0, slot1, 2.0, "after learning, corrected deltas across slots should converge")
}

// TestFilter_BoostAcceleratesPersistentOneSignedError: a slot whose error
// is persistent and one-signed converges faster on a second identical
// training pass than on the first, because its deviation history fills and
// drives the boost above 1.
func TestFilter_BoostAcceleratesPersistentOneSignedError(t *testing.T) {
	first := New(4, 20, 1.0)
	for i := 0; i < 12; i++ {
		slot := i % 4
		raw := 100.0
		if slot == 0 {
			raw = 110.0
		}
		first.Update(slot, raw, 100.0, 0.5)
	}
	afterFirst := first.Correction(0)

	for i := 0; i < 12; i++ {
		slot := i % 4
		raw := 100.0
		if slot == 0 {
			raw = 110.0
		}
		first.Update(slot, raw, 100.0, 0.5)
	}
	afterSecond := first.Correction(0)

	movedFirst := 1.0 - afterFirst
	movedSecond := afterFirst - afterSecond
	assert.Greater(t, movedFirst, 0.0)
	assert.Greater(t, movedSecond, movedFirst,
		"a full deviation history must speed convergence up")
}

// TestFilter_MisalignmentDetectionAfterPatternShift trains strongly
// asymmetric corrections, then feeds a smooth ramp whose per-slot pattern
// no longer matches them: the raw stream fits a line well while the
// "corrected" stream zigzags, so the filter must flag misalignment and
// decay its corrections back toward identity.
func TestFilter_MisalignmentDetectionAfterPatternShift(t *testing.T) {
	f := New(2, 8, 1.0)
	for i := 0; i < 10; i++ {
		f.Update(0, 110.0, 100.0, 0.99)
		f.Update(1, 90.0, 100.0, 0.99)
	}
	require.Less(t, f.Correction(0), 0.95)
	require.Greater(t, f.Correction(1), 1.05)
	divergenceBefore := math.Abs(f.Correction(0)-1) + math.Abs(f.Correction(1)-1)

	sawMisaligned := false
	var pos uint64
	for i := 0; i < 40; i++ {
		raw := 100.0 + float64(i)
		f.Process(pos, int(pos%2), raw)
		pos++
		if f.IsPotentiallyMisaligned() {
			sawMisaligned = true
		}
	}
	assert.True(t, sawMisaligned, "a shifted magnet pattern must trigger misalignment detection")

	divergenceAfter := math.Abs(f.Correction(0)-1) + math.Abs(f.Correction(1)-1)
	assert.Less(t, divergenceAfter, divergenceBefore,
		"detected misalignment must decay corrections toward identity")
}
