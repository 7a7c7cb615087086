// Package tree implements the authoritative in-memory Device Tree: the
// generationally-indexed store of Extensions, Devices, Entities, and
// Groups described in the data model (Extensions own Devices, Devices own
// Entities, Entities carry Components; Groups are named Device sets).
//
// The tree's fields are unexported. Apart from Restore (snapshot.go), the
// only way to mutate it is through the methods in mutation.go, each of
// which validates, mutates, persists (if durable), and dispatches an event
// — matching the single-writer shape the rest of the system depends on.
// Read access goes through the accessors in read.go and the filters in
// package filter.
package tree

import (
	"sync/atomic"
	"time"

	"hubd/arena"
	"hubd/component"
)

// DeviceID is a generational handle into the device arena.
type DeviceID arena.ID

// GroupID is a generational handle into the group arena.
type GroupID arena.ID

// ExtensionIndex is an ephemeral arena slot, valid only while the
// extension is attached.
type ExtensionIndex arena.ID

// ExtensionID is the stable, string-like identifier an extension carries
// across restarts (persisted on its owned devices).
type ExtensionID string

// EntityIndex is a dense, monotonic position of an Entity within its
// owning Device. It is stable for the device's lifetime.
type EntityIndex int

// Writer is the per-extension outbound handle the core uses to push IPC
// writes. A single attempt; WouldBlock is fatal for that extension (§5,
// §7).
type Writer interface {
	WriteFrame(payload []byte) error
}

// Extension is an attached external integration.
type Extension struct {
	ID           ExtensionID
	Index        ExtensionIndex
	Writer       Writer
	MSIC         uint16
	MinorVersion uint8
	Devices      map[DeviceID]struct{}
}

// Entity is a sub-unit of a Device, identified positionally.
type Entity struct {
	Name        string
	Components  []component.Component
	indices     [component.MaxComponentTypes + 1]uint8
	LastUpdated time.Time
}

// newEntity returns an Entity with every component-type slot marked absent.
func newEntity(name string) *Entity {
	e := &Entity{Name: name}
	for i := range e.indices {
		e.indices[i] = component.Absent
	}
	return e
}

// IndexOf returns the offset into Components for t, and whether t is
// present at all.
func (e *Entity) IndexOf(t component.Type) (int, bool) {
	off := e.indices[t]
	if off == component.Absent {
		return 0, false
	}
	return int(off), true
}

// Device is owned by exactly one Extension.
type Device struct {
	Name        string
	Owner       ExtensionID
	OwnerRef    *ExtensionIndex // nil when the owning extension is detached
	Presence    Presence
	compToEnt   [component.MaxComponentTypes + 1][]EntityIndex
	Entities    []*Entity
	entityByName map[string]EntityIndex
	Groups      map[GroupID]struct{}
	LastUpdated time.Time
}

// EntityByName looks up an entity index by name.
func (d *Device) EntityByName(name string) (EntityIndex, bool) {
	idx, ok := d.entityByName[name]
	return idx, ok
}

// CompToEntity returns the inverted index of entity indices that have a
// component of type t set (§3 invariant: may contain duplicates, but never
// misses an entry).
func (d *Device) CompToEntity(t component.Type) []EntityIndex {
	return d.compToEnt[t]
}

// Group is a named, user-defined collection of Devices.
type Group struct {
	Name    string
	Devices map[DeviceID]struct{}
}

// Dispatcher receives a strongly-typed event after every mutation. Defined
// here (rather than imported from package dispatch) so the tree package
// has no dependency on dispatch; package dispatch implements this
// interface.
type Dispatcher interface {
	Dispatch(Event)
}

// Persister durably stores the subset of state §6.3 calls out: devices,
// groups, and their arena generation counters. Defined here for the same
// reason as Dispatcher; package persist implements it.
type Persister interface {
	PersistDevices(snapshot DeviceSnapshot) error
	PersistGroups(snapshot GroupSnapshot) error
}

// Tree is the authoritative store. Zero value is not usable; construct
// with New.
type Tree struct {
	devices    *arena.Arena
	groups     *arena.Arena
	extensions *arena.Arena // ephemeral, keyed by ExtensionIndex
	extByID    map[ExtensionID]ExtensionIndex

	dispatcher Dispatcher
	persister  Persister

	nextWatcherID uint64
}

// New constructs an empty Tree wired to the given dispatcher and
// persister.
func New(d Dispatcher, p Persister) *Tree {
	return &Tree{
		devices:    arena.New(0),
		groups:     arena.New(0),
		extensions: arena.New(0),
		extByID:    make(map[ExtensionID]ExtensionIndex),
		dispatcher: d,
		persister:  p,
	}
}

// NextWatcherID mints a process-unique watcher identifier.
func (t *Tree) NextWatcherID() uint64 {
	return atomic.AddUint64(&t.nextWatcherID, 1)
}

// idOf converts any of the tree's generational handle types to the
// underlying arena.ID.
func idOf(id interface{ arenaID() arena.ID }) arena.ID {
	return id.arenaID()
}

func (id DeviceID) arenaID() arena.ID       { return arena.ID(id) }
func (id GroupID) arenaID() arena.ID        { return arena.ID(id) }
func (id ExtensionIndex) arenaID() arena.ID { return arena.ID(id) }
