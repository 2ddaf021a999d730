package kinematics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ergomonitor/internal/numeric"
)

func testConfig() Config {
	return Config{
		ImpulsesPerRevolution:    4,
		FlywheelInertia:          0.0293,
		SprocketRadius:           0.045,
		Concept2MagicNumber:      2.8,
		WindowLength:             40,
		GoodnessOfFitThreshold:   0.97,
		LowerDragFactorThreshold: 50,
		UpperDragFactorThreshold: 300,
		DragCoefficientsArrayLen: 5,
	}
}

func TestEstimator_UniformFlywheelConstantOmega(t *testing.T) {
	e := New(testConfig())
	var total numeric.Float
	var state State
	for i := 0; i < 40; i++ {
		total += 0.1 // 100ms between impulses
		state = e.Update(total)
	}
	expectedOmega := 2 * math.Pi / 4 / 0.1 // rad per impulse / seconds per impulse
	assert.InDelta(t, expectedOmega, state.AngularVelocity, 0.2)
}

func TestEstimator_AngularDisplacementTracksImpulseCount(t *testing.T) {
	e := New(testConfig())
	e.Update(0.1)
	e.Update(0.2)
	expected := 2 * 2 * math.Pi / 4
	assert.InDelta(t, expected, e.AngularDisplacement(), 1e-9)
}

func TestDragEstimator_ValidRecoveryUpdatesCoefficient(t *testing.T) {
	e := New(testConfig())
	require.Equal(t, numeric.Float(0), e.drag.Coefficient())

	const k = 120e-6
	e.BeginRecoveryWindow()
	omega := 20.0
	for i := 0; i < 20; i++ {
		tt := float64(i) * 0.05
		e.FeedRecoveryWindow(tt, omega)
		omega = 1 / (1/omega + k*0.05)
	}
	e.EndRecoveryWindow()
	assert.InDelta(t, k, e.drag.Coefficient(), k*0.2)
}

func TestDragEstimator_OverlongRecoveryDiscarded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxDragFactorRecoveryMs = 500
	e := New(cfg)

	const k = 120e-6
	e.BeginRecoveryWindow()
	omega := 20.0
	for i := 0; i < 20; i++ {
		tt := float64(i) * 0.1 // 1.9s span, past the 500ms cap
		e.FeedRecoveryWindow(tt, omega)
		omega = 1 / (1/omega + k*0.1)
	}
	e.EndRecoveryWindow()
	assert.Equal(t, numeric.Float(0), e.drag.Coefficient())
}

func TestDragEstimator_OutOfRangeSlopeDiscarded(t *testing.T) {
	e := New(testConfig())
	e.BeginRecoveryWindow()
	// A wildly steep 1/omega slope that falls outside the configured
	// threshold band.
	for i := 0; i < 10; i++ {
		tt := float64(i) * 0.05
		e.FeedRecoveryWindow(tt, 100.0/float64(i+1))
	}
	e.EndRecoveryWindow()
	assert.Equal(t, numeric.Float(0), e.drag.Coefficient())
}

func TestEstimator_Reset(t *testing.T) {
	e := New(testConfig())
	e.Update(0.1)
	e.Update(0.2)
	e.Reset()
	assert.Equal(t, numeric.Float(0), e.AngularDisplacement())
	assert.Equal(t, State{}, e.Last())
}
