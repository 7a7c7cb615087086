// Package arena implements a generational slab allocator: stable
// (index, generation) handles over a growable slice, with free-list reuse
// and insert_at support for restoring persisted identifiers.
package arena

import "fmt"

// ID is a stable handle into an Arena. Two IDs compare equal iff both the
// index and the generation match.
type ID struct {
	Index      uint32
	Generation uint32
}

// String renders the handle for logs and error messages.
func (id ID) String() string {
	return fmt.Sprintf("%d@%d", id.Index, id.Generation)
}

// entry is either a free slot (threaded into the singly-linked free list)
// or an occupied slot holding a value and the generation it was inserted
// with.
type entry struct {
	occupied   bool
	nextFree   int32 // -1 means "no next"; only meaningful when !occupied
	generation uint32
	value      interface{}
}

const noNext = -1

// Arena is a generic slab. Values are stored as interface{} and the caller
// is expected to wrap Arena behind typed accessors (as package tree does
// with GetDevice/GetGroup and its DeviceID/GroupID handles) rather than use
// it directly across package boundaries.
type Arena struct {
	items        []entry
	generation   uint32
	freeListHead int32 // -1 when empty
	len          int
}

// New creates an empty arena seeded with a starting generation.
func New(generation uint32) *Arena {
	return &Arena{
		generation:   generation,
		freeListHead: noNext,
	}
}

// WithMaxIndex preallocates an arena with all slots up to maxIndex free,
// threaded into the free list in ascending order.
func WithMaxIndex(maxIndex int, generation uint32) *Arena {
	a := &Arena{
		generation:   generation,
		freeListHead: noNext,
		items:        make([]entry, maxIndex+1),
	}
	for i := 0; i <= maxIndex; i++ {
		next := int32(noNext)
		if i < maxIndex {
			next = int32(i + 1)
		}
		a.items[i] = entry{occupied: false, nextFree: next}
	}
	if maxIndex >= 0 && len(a.items) > 0 {
		a.freeListHead = 0
	}
	return a
}

// Generation returns the arena-wide generation counter.
func (a *Arena) Generation() uint32 { return a.generation }

// SeedGeneration raises the arena-wide generation counter to at least g. It
// never lowers the counter, so it is safe to call with a value read back
// from a persisted snapshot before any new Insert/Remove on this arena:
// future-minted generations then always pick up where the snapshot left
// off instead of restarting at 0.
func (a *Arena) SeedGeneration(g uint32) {
	if g > a.generation {
		a.generation = g
	}
}

// Len returns the number of occupied slots.
func (a *Arena) Len() int { return a.len }

// Insert allocates a slot (reusing the free list when possible, growing
// otherwise) and stamps it with the arena's current generation. It never
// mutates any other slot.
func (a *Arena) Insert(value interface{}) ID {
	if a.freeListHead != noNext {
		idx := a.freeListHead
		if a.items[idx].occupied {
			// Corrupt free list: a supposedly-free slot is occupied.
			// Rebuild by linear scan and retry rather than crash.
			a.rebuildFreeList()
			return a.Insert(value)
		}
		a.freeListHead = a.items[idx].nextFree
		a.items[idx] = entry{occupied: true, generation: a.generation, value: value}
		a.len++
		return ID{Index: uint32(idx), Generation: a.generation}
	}

	// No free slots: grow by doubling (minimum 1 new slot).
	oldLen := len(a.items)
	grow := oldLen
	if grow == 0 {
		grow = 1
	}
	for i := 0; i < grow; i++ {
		idx := int32(oldLen + i)
		next := int32(noNext)
		if i < grow-1 {
			next = idx + 1
		}
		a.items = append(a.items, entry{occupied: false, nextFree: next})
	}
	a.freeListHead = int32(oldLen)
	return a.Insert(value)
}

func (a *Arena) rebuildFreeList() {
	newHead := int32(noNext)
	for i := len(a.items) - 1; i >= 0; i-- {
		if !a.items[i].occupied {
			a.items[i].nextFree = newHead
			newHead = int32(i)
		}
	}
	a.freeListHead = newHead
}

// SlotOccupiedError is returned by InsertAt when the target slot is already
// occupied, whatever generation it holds. It signals data corruption in the
// restore path and must be surfaced to the operator.
type SlotOccupiedError struct {
	Tried ID
	There ID
}

func (e *SlotOccupiedError) Error() string {
	return fmt.Sprintf("cannot insert %s because %s has that slot", e.Tried, e.There)
}

// InsertAt restores a value at a specific (index, generation), expanding
// the arena as needed. Used only by persistence-restore routines. Fails if
// the target slot is already occupied.
func (a *Arena) InsertAt(id ID, value interface{}) error {
	index := int(id.Index)

	if index >= len(a.items) {
		start := len(a.items)
		oldHead := a.freeListHead
		for i := start; i <= index; i++ {
			next := int32(noNext)
			if i == index {
				next = oldHead
			} else {
				next = int32(i + 1)
			}
			a.items = append(a.items, entry{occupied: false, nextFree: next})
		}
		a.freeListHead = int32(start)
	}

	if a.items[index].occupied {
		return &SlotOccupiedError{
			Tried: id,
			There: ID{Index: id.Index, Generation: a.items[index].generation},
		}
	}

	a.removeFromFreeList(index)
	a.items[index] = entry{occupied: true, generation: id.Generation, value: value}
	a.len++
	return nil
}

func (a *Arena) removeFromFreeList(target int) {
	if a.freeListHead == int32(target) {
		a.freeListHead = a.items[target].nextFree
		return
	}
	current := a.freeListHead
	for current != noNext {
		next := a.items[current].nextFree
		if next == int32(target) {
			a.items[current].nextFree = a.items[target].nextFree
			return
		}
		current = next
	}
}

// Remove validates the generation and frees the slot, bumping the
// arena-wide generation so a stale handle into this slot is never valid
// again. Returns the removed value, or nil if the id was stale or missing.
func (a *Arena) Remove(id ID) interface{} {
	index := int(id.Index)
	if index >= len(a.items) || !a.items[index].occupied || a.items[index].generation != id.Generation {
		return nil
	}

	value := a.items[index].value
	a.items[index] = entry{occupied: false, nextFree: a.freeListHead}
	a.generation++
	a.freeListHead = int32(index)
	a.len--
	return value
}

// Get returns the value for id, or nil if it is stale or out of range.
func (a *Arena) Get(id ID) interface{} {
	index := int(id.Index)
	if index >= len(a.items) {
		return nil
	}
	e := a.items[index]
	if !e.occupied || e.generation != id.Generation {
		return nil
	}
	return e.value
}

// Set overwrites the value stored at id in place, without touching
// generation or occupancy. Returns false if id is stale.
func (a *Arena) Set(id ID, value interface{}) bool {
	index := int(id.Index)
	if index >= len(a.items) {
		return false
	}
	e := &a.items[index]
	if !e.occupied || e.generation != id.Generation {
		return false
	}
	e.value = value
	return true
}

// Iter calls fn for every occupied slot in index order. fn may not mutate
// the arena.
func (a *Arena) Iter(fn func(id ID, value interface{})) {
	for i := range a.items {
		if a.items[i].occupied {
			fn(ID{Index: uint32(i), Generation: a.items[i].generation}, a.items[i].value)
		}
	}
}
