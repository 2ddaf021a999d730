package settings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ergomonitor/internal/config"
)

func TestStore_OpenMissingFileIsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Empty(t, s.List())
}

func TestStore_SaveAssignsUUIDAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.json")
	s, err := Open(path)
	require.NoError(t, err)

	p, err := s.Save("race-day", config.Default())
	require.NoError(t, err)
	assert.NotEqual(t, p.ID.String(), "")

	reopened, err := Open(path)
	require.NoError(t, err)
	got, ok := reopened.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, "race-day", got.Name)
	assert.Equal(t, p.Settings, got.Settings)
}

func TestStore_SaveRejectsInvalidSettings(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "profiles.json"))
	require.NoError(t, err)

	bad := config.Default()
	bad.Machine.FlywheelInertia = 0
	_, err = s.Save("bad", bad)
	assert.Error(t, err)
}

func TestStore_ReplacePreservesID(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "profiles.json"))
	require.NoError(t, err)

	p, err := s.Save("a", config.Default())
	require.NoError(t, err)

	updated := config.Default()
	updated.Machine.SprocketRadius = 0.05
	require.NoError(t, s.Replace(p.ID, updated))

	got, ok := s.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, 0.05, got.Settings.Machine.SprocketRadius)
}

func TestStore_DeleteRemovesProfile(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "profiles.json"))
	require.NoError(t, err)

	p, err := s.Save("a", config.Default())
	require.NoError(t, err)
	require.NoError(t, s.Delete(p.ID))

	_, ok := s.Get(p.ID)
	assert.False(t, ok)
}
