package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAfterUnregisterReclaimsSameSlot(t *testing.T) {
	store := NewMemStore()

	h1, err := Register(store, 4242, "worker-a", 30*time.Second)
	require.NoError(t, err)
	require.NoError(t, h1.Unregister())

	h2, err := Register(store, 4242, "worker-a-restarted", 45*time.Second)
	require.NoError(t, err)
	assert.Equal(t, h1.slot, h2.slot)
}

func TestRegisterFullReturnsRegistryFull(t *testing.T) {
	store := NewMemStore()

	for i := 0; i < Capacity; i++ {
		_, err := Register(store, i+1, "w", time.Second)
		require.NoError(t, err)
	}

	_, err := Register(store, Capacity+1, "overflow", time.Second)
	assert.ErrorIs(t, err, ErrRegistryFull)
}

func TestBeatUpdatesLastBeatWithoutLocking(t *testing.T) {
	store := NewMemStore()
	h, err := Register(store, 99, "beater", 10*time.Second)
	require.NoError(t, err)

	rec, err := store.Read(h.slot)
	require.NoError(t, err)
	before := rec.LastBeat

	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, h.Beat())

	rec, err = store.Read(h.slot)
	require.NoError(t, err)
	assert.Greater(t, rec.LastBeat, before)
}

func TestUnregisterZeroesSlot(t *testing.T) {
	store := NewMemStore()
	h, err := Register(store, 7, "goner", time.Second)
	require.NoError(t, err)

	require.NoError(t, h.Unregister())

	rec, err := store.Read(h.slot)
	require.NoError(t, err)
	assert.Equal(t, int32(0), rec.PID)
}

func TestEveryOccupiedSlotHasLivePIDInvariant(t *testing.T) {
	store := NewMemStore()
	h, err := Register(store, 123, "p", time.Second)
	require.NoError(t, err)

	rec, err := store.Read(h.slot)
	require.NoError(t, err)
	assert.True(t, rec.PID == 0 || rec.PID == 123)
}
