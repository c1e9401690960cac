// Package registry implements the heartbeat registry (spec §4.2): a
// fixed-capacity table mapping pid -> {name, timeout, last-beat}, shared
// across every long-running process and guarded by a single named lock,
// plus the reaper's view over it.
//
// Grounded on original_source/project/public/_public.cpp's CPActive
// (AddPInfo/UptATime/~CPActive) and struct st_procinfo: a fixed MAXNUMP=1000
// array of {pid int32, pname[51]byte, timeout int32, atime int64} in a named
// System V shared-memory segment guarded by a named semaphore. The Go
// rendition keeps the record layout (spec §6's "Persisted state (shared
// memory registry)") but backs it with an mmap'd file + flock instead of
// sysvipc shm+sem, since that is the portable equivalent available from the
// standard library plus golang.org/x/sys/unix without depending on cgo.
package registry

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Capacity is the fixed number of heartbeat slots, matching spec §3's
// default of 1000.
const Capacity = 1000

// recordSize is the packed record layout from spec §6: 32-bit pid, 51-byte
// name, 32-bit timeout, 64-bit epoch seconds.
const recordSize = 4 + 51 + 4 + 8

// Record is one heartbeat slot, decoded from its packed on-disk form.
type Record struct {
	PID     int32
	Name    string
	Timeout int32
	LastBeat int64 // unix epoch seconds
}

func (r Record) occupied() bool { return r.PID != 0 }

// Store is the backing byte array for Capacity records, plus the named
// mutual-exclusion primitive keyed identically (spec §3's invariant: "slot
// allocation and mutation happen under a named mutual-exclusion primitive
// keyed by the same name as the region").
//
// Store is an interface so the platform can run against a real shared
// memory-backed region in production and an in-process fallback in tests
// and single-binary builds, per spec §9's design note that inter-process
// heartbeat "can be kept as-is where the runtime supports it, OR replaced
// by a small local supervisor."
type Store interface {
	// Lock acquires the named mutex. Unlock releases it.
	Lock() error
	Unlock() error
	// Read decodes the record at slot index i.
	Read(i int) (Record, error)
	// Write encodes rec into slot index i.
	Write(i int, rec Record) error
	// Close detaches from the region.
	Close() error
}

// Handle is a registered process's handle on its own heartbeat slot.
type Handle struct {
	store Store
	slot  int
	pid   int32
}

// Slot returns the index this handle owns, mainly useful for tests and
// diagnostics.
func (h *Handle) Slot() int { return h.slot }

// ErrRegistryFull is returned by Register when every slot is occupied by a
// live pid.
var ErrRegistryFull = fmt.Errorf("registry: full")

// Register claims a slot for the current process under name with the given
// timeout, per spec §4.2's register algorithm: first reuse a slot already
// bearing this pid (pid-recycling case), else claim the first free slot.
func Register(store Store, pid int, name string, timeout time.Duration) (*Handle, error) {
	if err := store.Lock(); err != nil {
		return nil, fmt.Errorf("registry.Register: lock: %w", err)
	}
	defer store.Unlock()

	p32 := int32(pid)
	slot := -1

	for i := 0; i < Capacity; i++ {
		rec, err := store.Read(i)
		if err != nil {
			return nil, fmt.Errorf("registry.Register: read slot %d: %w", i, err)
		}
		if rec.PID == p32 {
			slot = i
			break
		}
	}

	if slot == -1 {
		for i := 0; i < Capacity; i++ {
			rec, err := store.Read(i)
			if err != nil {
				return nil, fmt.Errorf("registry.Register: read slot %d: %w", i, err)
			}
			if !rec.occupied() {
				slot = i
				break
			}
		}
	}

	if slot == -1 {
		return nil, ErrRegistryFull
	}

	rec := Record{
		PID:      p32,
		Name:     truncName(name),
		Timeout:  int32(timeout / time.Second),
		LastBeat: time.Now().Unix(),
	}
	if err := store.Write(slot, rec); err != nil {
		return nil, fmt.Errorf("registry.Register: write slot %d: %w", slot, err)
	}

	return &Handle{store: store, slot: slot, pid: p32}, nil
}

// Beat writes the current time into the owned slot's last-beat field. No
// locking is required: spec §4.2 only requires the slot's owner ever write
// this field.
func (h *Handle) Beat() error {
	rec, err := h.store.Read(h.slot)
	if err != nil {
		return fmt.Errorf("registry.Beat: %w", err)
	}
	rec.LastBeat = time.Now().Unix()
	return h.store.Write(h.slot, rec)
}

// Unregister zeroes the owned slot on graceful exit, per spec §4.2.
func (h *Handle) Unregister() error {
	if err := h.store.Lock(); err != nil {
		return fmt.Errorf("registry.Unregister: lock: %w", err)
	}
	defer h.store.Unlock()
	return h.store.Write(h.slot, Record{})
}

func truncName(name string) string {
	if len(name) > 50 {
		return name[:50]
	}
	return name
}

// encode/decode are shared by every Store implementation for the packed
// on-disk record layout.

func encode(buf []byte, rec Record) {
	binary.BigEndian.PutUint32(buf[0:4], uint32(rec.PID))
	var nameBuf [51]byte
	copy(nameBuf[:], rec.Name)
	copy(buf[4:55], nameBuf[:])
	binary.BigEndian.PutUint32(buf[55:59], uint32(rec.Timeout))
	binary.BigEndian.PutUint64(buf[59:67], uint64(rec.LastBeat))
}

func decode(buf []byte) Record {
	pid := int32(binary.BigEndian.Uint32(buf[0:4]))
	nameEnd := 4
	for nameEnd < 55 && buf[nameEnd] != 0 {
		nameEnd++
	}
	name := string(buf[4:nameEnd])
	timeout := int32(binary.BigEndian.Uint32(buf[55:59]))
	lastBeat := int64(binary.BigEndian.Uint64(buf[59:67]))
	return Record{PID: pid, Name: name, Timeout: timeout, LastBeat: lastBeat}
}
