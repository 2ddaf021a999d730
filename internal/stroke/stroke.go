// Package stroke implements the Stopped/Drive/Recovery state machine:
// given the flywheel's instantaneous torque and angular-velocity slope, it
// decides phase transitions, enforces minimum dwell times, and emits an
// Event on every Drive-to-Recovery handoff of a powered or
// capacity-forced drive.
package stroke

import (
	"math"

	"ergomonitor/internal/config"
	"ergomonitor/internal/kinematics"
	"ergomonitor/internal/numeric"
)

// Phase is one of the three stroke states.
type Phase int

const (
	Stopped Phase = iota
	Drive
	Recovery
)

func (p Phase) String() string {
	switch p {
	case Drive:
		return "Drive"
	case Recovery:
		return "Recovery"
	default:
		return "Stopped"
	}
}

// Event is a completed stroke: drive/recovery durations, average power
// over the drive, the drag factor measured from the preceding recovery,
// the frozen handle-force curve, and whether the transition was forced by
// the handle-force capacity cap rather than a torque/slope crossing.
type Event struct {
	DriveDuration    numeric.Float // s
	RecoveryDuration numeric.Float // s
	AvgStrokePower   numeric.Float // W
	DragFactor       numeric.Float
	HandleForces     []numeric.Float
	LastStrokeTime   numeric.Float
	Forced           bool
}

type powerSample struct {
	t     numeric.Float
	power numeric.Float
}

// Machine is the stroke state machine. It owns the current phase, dwell
// timers, the in-progress drive's handle-force vector and power samples,
// and drives the kinematics estimator's recovery-window drag regression.
type Machine struct {
	cfg config.StrokePhaseDetectionSettings

	phase          Phase
	phaseStartTime numeric.Float
	lastImpulse    numeric.Float
	haveImpulse    bool

	driveStart    numeric.Float
	recoveryStart numeric.Float

	handleForces []numeric.Float
	powerSamples []powerSample

	// powered is set once the in-progress drive sees torque above the
	// powered threshold. A drive that never did (the flywheel spinning
	// down through a phantom drive window) completes without emitting a
	// stroke event.
	powered bool

	// pendingRecoveryDuration/pendingDragFactor hold the just-finished
	// recovery's reductions between a Recovery->Drive transition and the
	// following Drive->Recovery transition, where they are attached to
	// the completed stroke's Event.
	pendingRecoveryDuration numeric.Float
	pendingDragFactor       numeric.Float

	estimator *kinematics.Estimator
}

// New creates a stroke state machine starting in Stopped, driven by the
// given kinematics estimator (for handle-force conversion and drag
// regression).
func New(cfg config.StrokePhaseDetectionSettings, estimator *kinematics.Estimator) *Machine {
	return &Machine{cfg: cfg, estimator: estimator}
}

// Phase returns the current stroke phase.
func (m *Machine) Phase() Phase { return m.phase }

// HandleForces returns the in-progress drive's handle-force vector
// (empty outside Drive).
func (m *Machine) HandleForces() []numeric.Float { return m.handleForces }

// OnImpulse advances the state machine by one impulse. now is cumulative
// time in seconds; state is the kinematics estimator's output for this
// same impulse. The angular-velocity slope consulted by slope-based
// detection is the acceleration (d omega/dt over the regression window).
// It returns a completed Event on a Drive->Recovery transition of a
// powered or capacity-forced drive, nil otherwise.
func (m *Machine) OnImpulse(now numeric.Float, st kinematics.State) *Event {
	m.lastImpulse = now
	m.haveImpulse = true

	switch m.phase {
	case Stopped:
		m.enterDrive(now)
		m.recordDriveSample(now, st)
		return nil

	case Drive:
		exit, forced := m.driveShouldExit(st.Torque, st.AngularAcceleration)
		minElapsed := now-m.phaseStartTime >= msToS(m.cfg.MinimumDriveTimeMs)
		if exit && minElapsed {
			event := m.finishDrive(now, forced)
			m.enterRecovery(now)
			m.feedRecoverySample(now, st.AngularVelocity)
			return event
		}
		m.recordDriveSample(now, st)
		return nil

	default: // Recovery
		enter := m.recoveryShouldEnterDrive(st.Torque, st.AngularAcceleration)
		minElapsed := now-m.phaseStartTime >= msToS(m.cfg.MinimumRecoveryTimeMs)
		if enter && minElapsed {
			m.finishRecovery(now)
			m.enterDrive(now)
			m.recordDriveSample(now, st)
			return nil
		}
		m.feedRecoverySample(now, st.AngularVelocity)
		return nil
	}
}

// CheckStoppedTimeout forces a transition to Stopped if no impulse has
// been seen for longer than the configured threshold. It does not itself
// emit a stroke event. Returns true if a transition occurred.
func (m *Machine) CheckStoppedTimeout(now numeric.Float, thresholdMs numeric.Float) bool {
	if m.phase == Stopped || !m.haveImpulse {
		return false
	}
	if now-m.lastImpulse <= msToS(thresholdMs) {
		return false
	}
	m.ForceStop(now)
	return true
}

// ForceStop transitions directly to Stopped, clearing the in-progress
// handle-force vector while preserving drag and counters. Unlike
// CheckStoppedTimeout it applies unconditionally; callers that track
// elapsed time in a different clock domain than OnImpulse's `now` (the
// pipeline ticks the main task on host time, not the corrected kinematic
// clock) call this directly instead.
func (m *Machine) ForceStop(now numeric.Float) {
	if m.phase == Stopped {
		return
	}
	m.phase = Stopped
	m.phaseStartTime = now
	m.handleForces = nil
	m.powerSamples = nil
}

func (m *Machine) enterDrive(now numeric.Float) {
	m.phase = Drive
	m.phaseStartTime = now
	m.driveStart = now
	m.handleForces = m.handleForces[:0]
	m.powerSamples = m.powerSamples[:0]
	m.powered = false
}

func (m *Machine) enterRecovery(now numeric.Float) {
	m.phase = Recovery
	m.phaseStartTime = now
	m.recoveryStart = now
	m.handleForces = m.handleForces[:0]
	m.estimator.BeginRecoveryWindow()
}

func (m *Machine) recordDriveSample(now numeric.Float, st kinematics.State) {
	if st.Torque > m.cfg.MinimumPoweredTorque {
		m.powered = true
	}
	if len(m.handleForces) >= m.cfg.DriveHandleForcesMaxCap {
		return
	}
	force := m.estimator.HandleForce(st.Torque)
	m.handleForces = append(m.handleForces, force)
	m.powerSamples = append(m.powerSamples, powerSample{t: now, power: st.Torque * st.AngularVelocity})
}

func (m *Machine) feedRecoverySample(now, omega numeric.Float) {
	m.estimator.FeedRecoveryWindow(now, omega)
}

// finishDrive closes the drive phase. A drive during which torque never
// rose above the powered threshold is not a stroke: the transition still
// happens but no event is emitted and the stroke count does not move.
func (m *Machine) finishDrive(now numeric.Float, forced bool) *Event {
	if !m.powered && !forced {
		return nil
	}
	duration := now - m.driveStart
	power := trapezoidalAverage(m.powerSamples, duration)
	event := &Event{
		DriveDuration:    duration,
		RecoveryDuration: m.pendingRecoveryDuration,
		AvgStrokePower:   power,
		DragFactor:       m.pendingDragFactor,
		HandleForces:     append([]numeric.Float(nil), m.handleForces...),
		LastStrokeTime:   now,
		Forced:           forced,
	}
	return event
}

// finishRecovery closes the recovery window just ended, recording its
// duration and the drag factor derived from it for attachment to the
// stroke Event emitted at the end of the drive that follows.
func (m *Machine) finishRecovery(now numeric.Float) {
	m.estimator.EndRecoveryWindow()
	m.pendingRecoveryDuration = now - m.recoveryStart
	m.pendingDragFactor = m.estimator.DragCoefficient()
}

func (m *Machine) driveShouldExit(torque, slope numeric.Float) (exit, forced bool) {
	if len(m.handleForces) >= m.cfg.DriveHandleForcesMaxCap {
		return true, true
	}
	switch m.cfg.DetectionType {
	case config.Torque:
		return torque < m.cfg.MinimumDragTorque, false
	case config.Slope:
		return slope <= m.cfg.MinimumRecoverySlope, false
	default: // Both: torque is primary, slope is consulted only when torque is inconclusive
		if math.Abs(torque-m.cfg.MinimumDragTorque) > m.cfg.MinimumRecoverySlopeMargin {
			return torque < m.cfg.MinimumDragTorque, false
		}
		return slope <= m.cfg.MinimumRecoverySlope, false
	}
}

func (m *Machine) recoveryShouldEnterDrive(torque, slope numeric.Float) bool {
	switch m.cfg.DetectionType {
	case config.Torque:
		return torque > m.cfg.MinimumPoweredTorque
	case config.Slope:
		return slope > 0
	default: // Both
		return torque > m.cfg.MinimumPoweredTorque || slope > 0
	}
}

func trapezoidalAverage(samples []powerSample, duration numeric.Float) numeric.Float {
	if len(samples) < 2 || duration <= 0 {
		return 0
	}
	var integral numeric.Float
	for i := 1; i < len(samples); i++ {
		dt := samples[i].t - samples[i-1].t
		integral += dt * (samples[i].power + samples[i-1].power) / 2
	}
	return integral / duration
}

func msToS(ms numeric.Float) numeric.Float { return ms / 1000.0 }

// Reset returns the machine to Stopped with no in-progress drive/recovery
// state. Configuration is preserved.
func (m *Machine) Reset() {
	m.phase = Stopped
	m.phaseStartTime = 0
	m.lastImpulse = 0
	m.haveImpulse = false
	m.driveStart = 0
	m.recoveryStart = 0
	m.handleForces = nil
	m.powerSamples = nil
	m.powered = false
	m.pendingRecoveryDuration = 0
	m.pendingDragFactor = 0
}
