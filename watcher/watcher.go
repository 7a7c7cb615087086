// Package watcher implements the stateful watcher kinds admitted by a
// query with a Watch* action (§4.6): metadata, component, group,
// extension, and entity watchers. Each maintains its own working set and
// emits incremental Updates on the transitions relevant to its kind.
package watcher

import (
	"hubd/component"
	"hubd/subscriber"
	"hubd/tree"
)

// UpdateKind discriminates the payload carried by an Update.
type UpdateKind int

const (
	UpdateMetadataSnapshot UpdateKind = iota
	UpdateMetadataDeviceCreated
	UpdateMetadataDeviceRenamed
	UpdateMetadataDeviceDeleted
	UpdateMetadataGroupCreated
	UpdateMetadataGroupRenamed
	UpdateMetadataGroupDeleted
	UpdateMetadataGroupDeviceAdded
	UpdateMetadataGroupDeviceRemoved
	UpdateMetadataExtAttached
	UpdateMetadataExtDetached

	UpdateComponentValue

	UpdateGroupName
	UpdateGroupMembership

	UpdateExtensionState

	UpdateEntityRegistered
	UpdateEntityMembershipChanged
)

// Update is one incremental message a watcher pushes to its client. Only
// the fields relevant to Kind are populated.
type Update struct {
	Kind UpdateKind

	DeviceID    tree.DeviceID
	DeviceName  string
	EntityIndex tree.EntityIndex
	EntityName  string

	ComponentType  component.Type
	ComponentValue component.Component

	GroupID   tree.GroupID
	GroupName string

	ExtensionID ExtensionID
	Attached    bool

	Snapshot *MetadataSnapshot
}

// ExtensionID mirrors tree.ExtensionID to keep this package's public API
// free of an import cycle back through ipc.
type ExtensionID = tree.ExtensionID

// Sink is where a watcher pushes its Updates; the client connection
// handler on the other end serializes them to the wire (§6.2).
type Sink interface {
	Send(Update)
}

// Watcher is the capability-set interface every watcher kind satisfies.
// Event methods for kinds a given watcher never subscribes to are
// defensive no-ops (§4.7) — Base supplies those defaults.
type Watcher interface {
	ID() subscriber.WatcherID

	OnExtAttached(tree.Event)
	OnExtDetached(tree.Event)
	OnDeviceCreated(tree.Event)
	OnDeviceDeleted(tree.Event)
	OnDeviceRenamed(tree.Event)
	OnEntityRegistered(tree.Event)
	OnComponentPut(tree.Event)
	OnComponentSet(tree.Event)
	OnGroupCreated(tree.Event)
	OnGroupDeleted(tree.Event)
	OnGroupRenamed(tree.Event)
	OnGroupDeviceAdded(tree.Event)
	OnGroupDeviceRemoved(tree.Event)
}

// Base gives every concrete watcher no-op defaults for the full event
// vocabulary; each kind embeds Base and overrides only what it
// subscribes to.
type Base struct {
	WID subscriber.WatcherID
}

func (b *Base) ID() subscriber.WatcherID { return b.WID }

func (b *Base) OnExtAttached(tree.Event)      {}
func (b *Base) OnExtDetached(tree.Event)      {}
func (b *Base) OnDeviceCreated(tree.Event)    {}
func (b *Base) OnDeviceDeleted(tree.Event)    {}
func (b *Base) OnDeviceRenamed(tree.Event)    {}
func (b *Base) OnEntityRegistered(tree.Event) {}
func (b *Base) OnComponentPut(tree.Event)     {}
func (b *Base) OnComponentSet(tree.Event)     {}
func (b *Base) OnGroupCreated(tree.Event)     {}
func (b *Base) OnGroupDeleted(tree.Event)     {}
func (b *Base) OnGroupRenamed(tree.Event)     {}
func (b *Base) OnGroupDeviceAdded(tree.Event) {}
func (b *Base) OnGroupDeviceRemoved(tree.Event) {}
