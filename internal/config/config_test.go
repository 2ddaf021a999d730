package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.conf")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_SprocketRadiusConvertsCentimetersToMeters(t *testing.T) {
	path := writeConfig(t, "SPROCKET_RADIUS=4.5\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.045, cfg.Machine.SprocketRadius, 1e-9)
}

func TestLoad_AppliesOnTopOfDefaults(t *testing.T) {
	path := writeConfig(t, "IMPULSES_PER_REVOLUTION=6\n# comment\n\nSTROKE_DETECTION_TYPE=SLOPE\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Machine.ImpulsesPerRevolution)
	assert.Equal(t, Slope, cfg.StrokePhase.DetectionType)
	// Untouched keys keep their Default() values.
	assert.InDelta(t, Default().Machine.FlywheelInertia, cfg.Machine.FlywheelInertia, 1e-12)
}

func TestLoad_RejectsUnknownKey(t *testing.T) {
	path := writeConfig(t, "NOT_A_REAL_KEY=1\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidResultingSettings(t *testing.T) {
	path := writeConfig(t, "SPROCKET_RADIUS=0\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_LowerMustBeBelowUpperDragThreshold(t *testing.T) {
	cfg := Default()
	cfg.DragFactor.LowerDragFactorThreshold = cfg.DragFactor.UpperDragFactorThreshold
	assert.Error(t, cfg.Validate())
}
