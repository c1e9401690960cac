package reaper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datacenterhub/idcbus/internal/registry"
)

type fakeSignaler struct {
	alive       map[int]bool
	terminated  []int
	killed      []int
	dieOnTerm   bool // process exits as soon as Terminate is called
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{alive: make(map[int]bool)}
}

func (f *fakeSignaler) Probe(pid int) error {
	if f.alive[pid] {
		return nil
	}
	return assert.AnError
}

func (f *fakeSignaler) Terminate(pid int) error {
	f.terminated = append(f.terminated, pid)
	if f.dieOnTerm {
		f.alive[pid] = false
	}
	return nil
}

func (f *fakeSignaler) Kill(pid int) error {
	f.killed = append(f.killed, pid)
	f.alive[pid] = false
	return nil
}

func TestScanOnceZeroesSlotOfDeadProcess(t *testing.T) {
	store := registry.NewMemStore()
	h, err := registry.Register(store, 111, "gone", 30*time.Second)
	require.NoError(t, err)

	sig := newFakeSignaler() // 111 not marked alive -> Probe fails
	r := New(store, sig, nil)
	r.sleep = func(time.Duration) {}

	r.ScanOnce()

	rec, err := store.Read(h.Slot())
	require.NoError(t, err)
	assert.Equal(t, int32(0), rec.PID)
}

func TestScanOnceIgnoresFreshHeartbeat(t *testing.T) {
	store := registry.NewMemStore()
	h, err := registry.Register(store, 222, "fresh", 30*time.Second)
	require.NoError(t, err)

	sig := newFakeSignaler()
	sig.alive[222] = true
	r := New(store, sig, nil)
	r.sleep = func(time.Duration) {}

	r.ScanOnce()

	rec, err := store.Read(h.Slot())
	require.NoError(t, err)
	assert.Equal(t, int32(222), rec.PID)
}

func TestScanOnceEscalatesToKillWhenTimedOutAndUnresponsive(t *testing.T) {
	store := registry.NewMemStore()
	h, err := registry.Register(store, 333, "stuck", 1*time.Second)
	require.NoError(t, err)

	// force timeout by backdating last beat directly
	rec, _ := store.Read(h.Slot())
	rec.LastBeat -= 100
	store.Write(h.Slot(), rec)

	sig := newFakeSignaler()
	sig.alive[333] = true // stays alive through the poll window
	r := New(store, sig, nil)
	r.sleep = func(time.Duration) {}

	r.ScanOnce()

	assert.Contains(t, sig.terminated, 333)
	assert.Contains(t, sig.killed, 333)

	rec, err = store.Read(h.Slot())
	require.NoError(t, err)
	assert.Equal(t, int32(0), rec.PID)
}

func TestScanOnceSkipsKillWhenProcessExitsAfterTerminate(t *testing.T) {
	store := registry.NewMemStore()
	h, err := registry.Register(store, 444, "cooperative", 1*time.Second)
	require.NoError(t, err)

	rec, _ := store.Read(h.Slot())
	rec.LastBeat -= 100
	store.Write(h.Slot(), rec)

	sig := newFakeSignaler()
	sig.alive[444] = true
	sig.dieOnTerm = true
	r := New(store, sig, nil)
	r.sleep = func(time.Duration) {}

	r.ScanOnce()

	assert.Contains(t, sig.terminated, 444)
	assert.Empty(t, sig.killed)
}
