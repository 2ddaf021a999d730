// Package kinematics turns a stream of cumulative (time, impulse count)
// observations into flywheel angular velocity, angular acceleration,
// instantaneous torque and drag factor, using rolling Theil-Sen
// regressions over angular position vs time and an OLS regression of
// 1/omega vs time for the drag factor.
package kinematics

import (
	"math"

	"ergomonitor/internal/numeric"
	"ergomonitor/internal/series"
)

// State is the flywheel's instantaneous dynamics as of the latest
// processed impulse.
type State struct {
	AngularVelocity     numeric.Float // rad/s
	AngularAcceleration numeric.Float // rad/s^2
	GoodnessOfFit       numeric.Float
	DragCoefficient     numeric.Float
	Torque              numeric.Float // N*m
}

// Estimator maintains the rolling regressions behind State and the
// machine geometry needed to convert angular quantities into the handle
// force and distance the rest of the pipeline reports.
type Estimator struct {
	impulsesPerRevolution int
	flywheelInertia       numeric.Float
	sprocketRadius        numeric.Float
	concept2Magic         numeric.Float

	angular *series.TSLinearSeries    // (t, theta) -> omega
	quad    *series.TSQuadraticSeries // (t, theta) -> alpha

	impulseCount uint64

	drag *dragEstimator

	last State
}

// Config bundles the machine geometry and window sizing an Estimator
// needs.
type Config struct {
	ImpulsesPerRevolution    int
	FlywheelInertia          numeric.Float
	SprocketRadius           numeric.Float
	Concept2MagicNumber      numeric.Float
	WindowLength             int
	GoodnessOfFitThreshold   numeric.Float
	LowerDragFactorThreshold numeric.Float // x1e-6
	UpperDragFactorThreshold numeric.Float // x1e-6
	MaxDragFactorRecoveryMs  numeric.Float // <= 0 means uncapped
	DragCoefficientsArrayLen int
}

// New creates an Estimator per cfg.
func New(cfg Config) *Estimator {
	return &Estimator{
		impulsesPerRevolution: cfg.ImpulsesPerRevolution,
		flywheelInertia:       cfg.FlywheelInertia,
		sprocketRadius:        cfg.SprocketRadius,
		concept2Magic:         cfg.Concept2MagicNumber,
		angular:               series.NewTSLinearSeries(cfg.WindowLength),
		quad:                  series.NewTSQuadraticSeries(cfg.WindowLength),
		drag: newDragEstimator(
			cfg.WindowLength,
			cfg.GoodnessOfFitThreshold,
			cfg.LowerDragFactorThreshold,
			cfg.UpperDragFactorThreshold,
			cfg.MaxDragFactorRecoveryMs,
			cfg.DragCoefficientsArrayLen,
		),
	}
}

// AngularDisplacement returns the cumulative angular position (radians)
// implied by the impulse count seen so far.
func (e *Estimator) AngularDisplacement() numeric.Float {
	return numeric.Float(e.impulseCount) * 2 * math.Pi / numeric.Float(e.impulsesPerRevolution)
}

// Update feeds one impulse's cumulative time (seconds) through the
// windowed regressions and recomputes the flywheel state.
func (e *Estimator) Update(totalTimeSeconds numeric.Float) State {
	e.impulseCount++
	theta := e.AngularDisplacement()

	e.angular.Push(totalTimeSeconds, theta)
	e.quad.Push(totalTimeSeconds, theta)

	omega := e.angular.CoefficientA()
	alpha := e.quad.SecondDerivativeAtPosition(totalTimeSeconds)
	r2 := e.quad.GoodnessOfFit()

	k := e.drag.Coefficient()
	torque := e.flywheelInertia*alpha + k*omega*omega

	e.last = State{
		AngularVelocity:     omega,
		AngularAcceleration: alpha,
		GoodnessOfFit:       r2,
		DragCoefficient:     k,
		Torque:              torque,
	}
	return e.last
}

// SmoothedAngularVelocity returns the quadratic fit's first derivative at
// t, a less-noisy alternative to the linear Theil-Sen slope when the
// quadratic fit is well-conditioned.
func (e *Estimator) SmoothedAngularVelocity(totalTimeSeconds numeric.Float) numeric.Float {
	return e.quad.FirstDerivativeAtPosition(totalTimeSeconds)
}

// Last returns the most recently computed state.
func (e *Estimator) Last() State { return e.last }

// HandleForce converts a torque sample into the force felt at the handle.
func (e *Estimator) HandleForce(torque numeric.Float) numeric.Float {
	return torque / e.sprocketRadius
}

// DistancePerRevolution returns the distance increment attributed to one
// full flywheel revolution at the current drag coefficient.
func (e *Estimator) DistancePerRevolution() numeric.Float {
	k := e.drag.Coefficient()
	if k <= 0 {
		return 0
	}
	return math.Cbrt(k/e.concept2Magic) * 2 * math.Pi * e.sprocketRadius
}

// BeginRecoveryWindow starts accumulating (t, 1/omega) samples for drag
// factor estimation.
func (e *Estimator) BeginRecoveryWindow() { e.drag.begin() }

// FeedRecoveryWindow records one (t, omega) observation during an open
// recovery window.
func (e *Estimator) FeedRecoveryWindow(totalTimeSeconds, omega numeric.Float) {
	e.drag.feed(totalTimeSeconds, omega)
}

// EndRecoveryWindow closes the recovery window and, if the accumulated
// regression is valid, updates the live drag coefficient.
func (e *Estimator) EndRecoveryWindow() { e.drag.end() }

// DragCoefficient returns the live drag coefficient, including any update
// from a recovery window closed since the last Update call.
func (e *Estimator) DragCoefficient() numeric.Float { return e.drag.Coefficient() }

// Reset clears all windowed state.
func (e *Estimator) Reset() {
	e.angular.Reset()
	e.quad.Reset()
	e.impulseCount = 0
	e.drag.reset()
	e.last = State{}
}
