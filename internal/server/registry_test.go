package server

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegister(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := NewRegistry(clock)

	s, err := reg.Register("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", s.ID)
	assert.Nil(t, s.Latitude)
	assert.Nil(t, s.Longitude)
	assert.Equal(t, clock.Now(), s.ConnectedAt)
	assert.Equal(t, 1, reg.Count())
}

func TestRegistryRegisterDuplicate(t *testing.T) {
	reg := NewRegistry(clockwork.NewFakeClock())

	first, err := reg.Register("alpha")
	require.NoError(t, err)

	lat, lon := 52.2297, 21.0122
	_, err = reg.UpdateLocation("alpha", lat, lon)
	require.NoError(t, err)

	_, err = reg.Register("alpha")
	require.ErrorIs(t, err, ErrDuplicateSession)

	// The existing session must be untouched by the failed register.
	snap := reg.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, first.ID, snap[0].ID)
	require.NotNil(t, snap[0].Latitude)
	assert.Equal(t, lat, *snap[0].Latitude)
	assert.Equal(t, lon, *snap[0].Longitude)
}

func TestRegistryUpdateLocation(t *testing.T) {
	reg := NewRegistry(clockwork.NewFakeClock())
	_, err := reg.Register("alpha")
	require.NoError(t, err)

	s, err := reg.UpdateLocation("alpha", 52.2297, 21.0122)
	require.NoError(t, err)
	require.NotNil(t, s.Latitude)
	assert.Equal(t, 52.2297, *s.Latitude)
	assert.Equal(t, 21.0122, *s.Longitude)

	// A second report replaces the first.
	s, err = reg.UpdateLocation("alpha", 48.8566, 2.3522)
	require.NoError(t, err)
	assert.Equal(t, 48.8566, *s.Latitude)
	assert.Equal(t, 2.3522, *s.Longitude)
}

func TestRegistryUpdateLocationUnknownSession(t *testing.T) {
	reg := NewRegistry(clockwork.NewFakeClock())

	_, err := reg.UpdateLocation("ghost", 1, 2)
	require.ErrorIs(t, err, ErrUnknownSession)
	assert.Equal(t, 0, reg.Count())
}

func TestRegistryRemove(t *testing.T) {
	reg := NewRegistry(clockwork.NewFakeClock())
	_, err := reg.Register("alpha")
	require.NoError(t, err)

	s, err := reg.Remove("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", s.ID)
	assert.Equal(t, 0, reg.Count())

	// Duplicate removes surface the sentinel instead of crashing.
	_, err = reg.Remove("alpha")
	require.ErrorIs(t, err, ErrUnknownSession)
}

func TestRegistrySnapshotIsPointInTime(t *testing.T) {
	reg := NewRegistry(clockwork.NewFakeClock())
	_, err := reg.Register("alpha")
	require.NoError(t, err)
	_, err = reg.Register("beta")
	require.NoError(t, err)

	snap := reg.Snapshot()
	require.Len(t, snap, 2)

	// Later mutations must not leak into an already-taken snapshot.
	_, err = reg.UpdateLocation("alpha", 40.7128, -74.0060)
	require.NoError(t, err)
	_, err = reg.Remove("beta")
	require.NoError(t, err)

	for _, s := range snap {
		assert.Nil(t, s.Latitude)
		assert.Nil(t, s.Longitude)
	}
}

func TestRegistryConnectedAtUsesClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg := NewRegistry(clock)

	first, err := reg.Register("alpha")
	require.NoError(t, err)

	clock.Advance(3 * time.Minute)

	second, err := reg.Register("beta")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Minute, second.ConnectedAt.Sub(first.ConnectedAt))
}
