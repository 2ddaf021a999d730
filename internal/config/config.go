// Package config holds the runtime-adjustable settings for the rowing
// pipeline: machine geometry, sensor signal handling, drag-factor
// regression bounds and stroke-phase detection thresholds. Settings load
// from a KEY=VALUE text file and are validated once at the boundary so
// the pipeline itself never has to reject a bad value.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// StrokeDetectionType selects which signal the stroke state machine uses
// to decide Drive/Recovery transitions.
type StrokeDetectionType int

const (
	// Torque uses only the instantaneous torque threshold.
	Torque StrokeDetectionType = iota
	// Slope uses only the angular-velocity slope threshold.
	Slope
	// Both consults torque first and falls back to slope only when torque
	// is inconclusive.
	Both
)

func (t StrokeDetectionType) String() string {
	switch t {
	case Torque:
		return "TORQUE"
	case Slope:
		return "SLOPE"
	case Both:
		return "BOTH"
	default:
		return "UNKNOWN"
	}
}

func parseStrokeDetectionType(s string) (StrokeDetectionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TORQUE":
		return Torque, nil
	case "SLOPE":
		return Slope, nil
	case "BOTH":
		return Both, nil
	default:
		return Torque, fmt.Errorf("unknown STROKE_DETECTION_TYPE %q", s)
	}
}

// MachineSettings describes the physical flywheel and drivetrain.
type MachineSettings struct {
	ImpulsesPerRevolution int
	FlywheelInertia       float64 // kg*m^2
	SprocketRadius        float64 // meters
	Concept2MagicNumber   float64
}

// SensorSignalSettings controls impulse conditioning.
type SensorSignalSettings struct {
	EnableDebounceFilter    bool
	RotationDebounceTimeMin float64 // ms
	RowingStoppedThreshold  float64 // ms
}

// DragFactorSettings bounds the drag-factor regression.
type DragFactorSettings struct {
	GoodnessOfFitThreshold   float64
	MaxDragFactorRecoveryMs  float64
	LowerDragFactorThreshold float64 // x1e-6
	UpperDragFactorThreshold float64 // x1e-6
	DragCoefficientsArrayLen int
}

// StrokePhaseDetectionSettings governs the Drive/Recovery/Stopped state
// machine.
type StrokePhaseDetectionSettings struct {
	DetectionType              StrokeDetectionType
	MinimumPoweredTorque       float64
	MinimumDragTorque          float64
	MinimumRecoverySlope       float64
	MinimumRecoverySlopeMargin float64
	MinimumRecoveryTimeMs      float64
	MinimumDriveTimeMs         float64
	ImpulseDataArrayLength     int
	DriveHandleForcesMaxCap    int
}

// Settings bundles every runtime-configurable knob of the pipeline.
type Settings struct {
	Machine     MachineSettings
	Sensor      SensorSignalSettings
	DragFactor  DragFactorSettings
	StrokePhase StrokePhaseDetectionSettings
}

// Default returns settings matching a Concept2-like rowing ergometer:
// four magnets, standard sprocket radius, torque-primary stroke detection
// with a slope fallback (Both).
func Default() Settings {
	return Settings{
		Machine: MachineSettings{
			ImpulsesPerRevolution: 4,
			FlywheelInertia:       0.0293,
			SprocketRadius:        0.045,
			Concept2MagicNumber:   2.8,
		},
		Sensor: SensorSignalSettings{
			EnableDebounceFilter:    true,
			RotationDebounceTimeMin: 7,
			RowingStoppedThreshold:  7000,
		},
		DragFactor: DragFactorSettings{
			GoodnessOfFitThreshold:   0.97,
			MaxDragFactorRecoveryMs:  4000,
			LowerDragFactorThreshold: 50,
			UpperDragFactorThreshold: 300,
			DragCoefficientsArrayLen: 5,
		},
		StrokePhase: StrokePhaseDetectionSettings{
			DetectionType:              Both,
			MinimumPoweredTorque:       0.5,
			MinimumDragTorque:          0.2,
			MinimumRecoverySlope:       0,
			MinimumRecoverySlopeMargin: 0.05,
			MinimumRecoveryTimeMs:      300,
			MinimumDriveTimeMs:         300,
			ImpulseDataArrayLength:     40,
			DriveHandleForcesMaxCap:    300,
		},
	}
}

// Load reads a KEY=VALUE settings file, applying values on top of
// Default() and validating the result.
func Load(path string) (Settings, error) {
	file, err := os.Open(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return Settings{}, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if err := cfg.setValue(key, value); err != nil {
			return Settings{}, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return Settings{}, fmt.Errorf("error reading config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

func (c *Settings) setValue(key, value string) error {
	switch key {
	case "IMPULSES_PER_REVOLUTION":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("IMPULSES_PER_REVOLUTION: %w", err)
		}
		c.Machine.ImpulsesPerRevolution = n
	case "FLYWHEEL_INERTIA":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("FLYWHEEL_INERTIA: %w", err)
		}
		c.Machine.FlywheelInertia = f
	case "SPROCKET_RADIUS":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("SPROCKET_RADIUS: %w", err)
		}
		// The external key is documented in centimeters; MachineSettings
		// and every downstream formula (kinematics.HandleForce, distance
		// per revolution) work in meters.
		c.Machine.SprocketRadius = f / 100.0
	case "CONCEPT_2_MAGIC_NUMBER":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("CONCEPT_2_MAGIC_NUMBER: %w", err)
		}
		c.Machine.Concept2MagicNumber = f
	case "ENABLE_DEBOUNCE_FILTER":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("ENABLE_DEBOUNCE_FILTER: %w", err)
		}
		c.Sensor.EnableDebounceFilter = b
	case "ROTATION_DEBOUNCE_TIME_MIN":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("ROTATION_DEBOUNCE_TIME_MIN: %w", err)
		}
		c.Sensor.RotationDebounceTimeMin = f
	case "ROWING_STOPPED_THRESHOLD_PERIOD":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("ROWING_STOPPED_THRESHOLD_PERIOD: %w", err)
		}
		c.Sensor.RowingStoppedThreshold = f
	case "GOODNESS_OF_FIT_THRESHOLD":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("GOODNESS_OF_FIT_THRESHOLD: %w", err)
		}
		c.DragFactor.GoodnessOfFitThreshold = f
	case "MAX_DRAG_FACTOR_RECOVERY_PERIOD":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("MAX_DRAG_FACTOR_RECOVERY_PERIOD: %w", err)
		}
		c.DragFactor.MaxDragFactorRecoveryMs = f
	case "LOWER_DRAG_FACTOR_THRESHOLD":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("LOWER_DRAG_FACTOR_THRESHOLD: %w", err)
		}
		c.DragFactor.LowerDragFactorThreshold = f
	case "UPPER_DRAG_FACTOR_THRESHOLD":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("UPPER_DRAG_FACTOR_THRESHOLD: %w", err)
		}
		c.DragFactor.UpperDragFactorThreshold = f
	case "DRAG_COEFFICIENTS_ARRAY_LENGTH":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("DRAG_COEFFICIENTS_ARRAY_LENGTH: %w", err)
		}
		c.DragFactor.DragCoefficientsArrayLen = n
	case "STROKE_DETECTION_TYPE":
		dt, err := parseStrokeDetectionType(value)
		if err != nil {
			return err
		}
		c.StrokePhase.DetectionType = dt
	case "MINIMUM_POWERED_TORQUE":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("MINIMUM_POWERED_TORQUE: %w", err)
		}
		c.StrokePhase.MinimumPoweredTorque = f
	case "MINIMUM_DRAG_TORQUE":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("MINIMUM_DRAG_TORQUE: %w", err)
		}
		c.StrokePhase.MinimumDragTorque = f
	case "MINIMUM_RECOVERY_SLOPE":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("MINIMUM_RECOVERY_SLOPE: %w", err)
		}
		c.StrokePhase.MinimumRecoverySlope = f
	case "MINIMUM_RECOVERY_SLOPE_MARGIN":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("MINIMUM_RECOVERY_SLOPE_MARGIN: %w", err)
		}
		c.StrokePhase.MinimumRecoverySlopeMargin = f
	case "MINIMUM_RECOVERY_TIME":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("MINIMUM_RECOVERY_TIME: %w", err)
		}
		c.StrokePhase.MinimumRecoveryTimeMs = f
	case "MINIMUM_DRIVE_TIME":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("MINIMUM_DRIVE_TIME: %w", err)
		}
		c.StrokePhase.MinimumDriveTimeMs = f
	case "IMPULSE_DATA_ARRAY_LENGTH":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("IMPULSE_DATA_ARRAY_LENGTH: %w", err)
		}
		c.StrokePhase.ImpulseDataArrayLength = n
	case "DRIVE_HANDLE_FORCES_MAX_CAPACITY":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("DRIVE_HANDLE_FORCES_MAX_CAPACITY: %w", err)
		}
		c.StrokePhase.DriveHandleForcesMaxCap = n
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

// Validate rejects settings that would leave the pipeline in an undefined
// state. The core never sees an invalid configuration: this boundary is
// where a bad value is caught.
func (c *Settings) Validate() error {
	if c.Machine.ImpulsesPerRevolution < 1 {
		return fmt.Errorf("IMPULSES_PER_REVOLUTION must be >= 1")
	}
	if c.Machine.FlywheelInertia <= 0 {
		return fmt.Errorf("FLYWHEEL_INERTIA must be > 0")
	}
	if c.Machine.SprocketRadius <= 0 {
		return fmt.Errorf("SPROCKET_RADIUS must be > 0")
	}
	if c.Machine.Concept2MagicNumber <= 0 {
		return fmt.Errorf("CONCEPT_2_MAGIC_NUMBER must be > 0")
	}
	if c.Sensor.RotationDebounceTimeMin < 0 {
		return fmt.Errorf("ROTATION_DEBOUNCE_TIME_MIN must be >= 0")
	}
	if c.Sensor.RowingStoppedThreshold <= 0 {
		return fmt.Errorf("ROWING_STOPPED_THRESHOLD_PERIOD must be > 0")
	}
	if c.DragFactor.GoodnessOfFitThreshold < 0 || c.DragFactor.GoodnessOfFitThreshold > 1 {
		return fmt.Errorf("GOODNESS_OF_FIT_THRESHOLD must be in [0,1]")
	}
	if c.DragFactor.MaxDragFactorRecoveryMs <= 0 {
		return fmt.Errorf("MAX_DRAG_FACTOR_RECOVERY_PERIOD must be > 0")
	}
	if c.DragFactor.LowerDragFactorThreshold >= c.DragFactor.UpperDragFactorThreshold {
		return fmt.Errorf("LOWER_DRAG_FACTOR_THRESHOLD must be < UPPER_DRAG_FACTOR_THRESHOLD")
	}
	if c.DragFactor.DragCoefficientsArrayLen < 1 {
		return fmt.Errorf("DRAG_COEFFICIENTS_ARRAY_LENGTH must be >= 1")
	}
	if c.StrokePhase.MinimumRecoveryTimeMs < 0 || c.StrokePhase.MinimumDriveTimeMs < 0 {
		return fmt.Errorf("minimum phase times must be >= 0")
	}
	if c.StrokePhase.ImpulseDataArrayLength < 2 {
		return fmt.Errorf("IMPULSE_DATA_ARRAY_LENGTH must be >= 2")
	}
	if c.StrokePhase.DriveHandleForcesMaxCap < 1 {
		return fmt.Errorf("DRIVE_HANDLE_FORCES_MAX_CAPACITY must be >= 1")
	}
	return nil
}
