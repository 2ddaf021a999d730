package stroke

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ergomonitor/internal/config"
	"ergomonitor/internal/kinematics"
	"ergomonitor/internal/numeric"
)

func testKinematics() *kinematics.Estimator {
	return kinematics.New(kinematics.Config{
		ImpulsesPerRevolution:    4,
		FlywheelInertia:          0.0293,
		SprocketRadius:           0.045,
		Concept2MagicNumber:      2.8,
		WindowLength:             40,
		GoodnessOfFitThreshold:   0.97,
		LowerDragFactorThreshold: 50,
		UpperDragFactorThreshold: 300,
		DragCoefficientsArrayLen: 5,
	})
}

func testStrokeSettings() config.StrokePhaseDetectionSettings {
	return config.StrokePhaseDetectionSettings{
		DetectionType:              config.Torque,
		MinimumPoweredTorque:       0.5,
		MinimumDragTorque:          0.2,
		MinimumRecoverySlope:       0,
		MinimumRecoverySlopeMargin: 0.05,
		MinimumRecoveryTimeMs:      800,
		MinimumDriveTimeMs:         400,
		ImpulseDataArrayLength:     40,
		DriveHandleForcesMaxCap:    300,
	}
}

func TestMachine_StoppedToDriveOnFirstImpulse(t *testing.T) {
	m := New(testStrokeSettings(), testKinematics())
	require.Equal(t, Stopped, m.Phase())
	event := m.OnImpulse(0.01, kinematics.State{Torque: 3})
	assert.Nil(t, event)
	assert.Equal(t, Drive, m.Phase())
}

func TestMachine_DriveToRecoveryOnTorqueDrop(t *testing.T) {
	m := New(testStrokeSettings(), testKinematics())

	now := 0.0
	// Rises to and holds 5 N*m for 500ms.
	for i := 0; i < 10; i++ {
		now += 0.05
		event := m.OnImpulse(now, kinematics.State{Torque: 5})
		assert.Nil(t, event)
	}
	require.Equal(t, Drive, m.Phase())

	// Drops below MinimumDragTorque for 200ms.
	var lastEvent *Event
	for i := 0; i < 4; i++ {
		now += 0.05
		lastEvent = m.OnImpulse(now, kinematics.State{Torque: 0.1})
		if lastEvent != nil {
			break
		}
	}
	require.NotNil(t, lastEvent, "exactly one stroke event should be emitted at the drop-below point")
	assert.InDelta(t, 0.5, lastEvent.DriveDuration, 0.06)
	assert.Equal(t, Recovery, m.Phase())
	assert.False(t, lastEvent.Forced)
}

func TestMachine_ForcedRecoveryOnHandleForceCapacity(t *testing.T) {
	settings := testStrokeSettings()
	settings.DriveHandleForcesMaxCap = 5
	m := New(settings, testKinematics())

	now := 0.0
	var lastEvent *Event
	for i := 0; i < 20; i++ {
		now += 0.05
		lastEvent = m.OnImpulse(now, kinematics.State{Torque: 5})
		if lastEvent != nil {
			break
		}
	}
	require.NotNil(t, lastEvent)
	assert.True(t, lastEvent.Forced)
	assert.Len(t, lastEvent.HandleForces, 5)
	assert.Equal(t, Recovery, m.Phase())
}

// TestMachine_UnpoweredDriveEmitsNoStroke: a flywheel coasting below every
// torque threshold walks Stopped -> Drive -> Recovery without ever
// counting a stroke.
func TestMachine_UnpoweredDriveEmitsNoStroke(t *testing.T) {
	m := New(testStrokeSettings(), testKinematics())

	now := 0.0
	for i := 0; i < 20; i++ {
		now += 0.1
		event := m.OnImpulse(now, kinematics.State{Torque: 0.05})
		assert.Nil(t, event, "constant sub-threshold torque must never produce a stroke event")
	}
	assert.Equal(t, Recovery, m.Phase())
}

func TestMachine_StoppedTimeoutClearsHandleForces(t *testing.T) {
	m := New(testStrokeSettings(), testKinematics())
	m.OnImpulse(0.01, kinematics.State{Torque: 5})
	require.Equal(t, Drive, m.Phase())
	require.NotEmpty(t, m.HandleForces())

	transitioned := m.CheckStoppedTimeout(10.0, 7000)
	assert.True(t, transitioned)
	assert.Equal(t, Stopped, m.Phase())
	assert.Empty(t, m.HandleForces())
}

func TestMachine_StoppedTimeoutDoesNotFireEarly(t *testing.T) {
	m := New(testStrokeSettings(), testKinematics())
	m.OnImpulse(0.01, kinematics.State{Torque: 5})
	transitioned := m.CheckStoppedTimeout(1.0, 7000)
	assert.False(t, transitioned)
	assert.Equal(t, Drive, m.Phase())
}

func TestMachine_RecoveryToDriveRequiresMinimumTime(t *testing.T) {
	settings := testStrokeSettings()
	m := New(settings, testKinematics())

	now := 0.0
	for i := 0; i < 10; i++ {
		now += 0.05
		m.OnImpulse(now, kinematics.State{Torque: 5})
	}
	// Force into recovery.
	var event *Event
	for i := 0; i < 4 && event == nil; i++ {
		now += 0.05
		event = m.OnImpulse(now, kinematics.State{Torque: 0.1})
	}
	require.NotNil(t, event)
	require.Equal(t, Recovery, m.Phase())

	// Powered torque returns almost immediately, before MinimumRecoveryTimeMs.
	now += 0.01
	e := m.OnImpulse(now, kinematics.State{Torque: 5})
	assert.Nil(t, e)
	assert.Equal(t, Recovery, m.Phase(), "minimum recovery time has not elapsed")
}

func TestTrapezoidalAverage(t *testing.T) {
	samples := []powerSample{{t: 0, power: 0}, {t: 1, power: 10}, {t: 2, power: 10}}
	avg := trapezoidalAverage(samples, 2)
	assert.InDelta(t, 7.5, avg, 1e-9)
}

func TestTrapezoidalAverage_InsufficientSamples(t *testing.T) {
	assert.Equal(t, numeric.Float(0), trapezoidalAverage(nil, 1))
	assert.Equal(t, numeric.Float(0), trapezoidalAverage([]powerSample{{t: 0, power: 1}}, 1))
}
