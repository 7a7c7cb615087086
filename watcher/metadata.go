package watcher

import (
	"hubd/subscriber"
	"hubd/tree"
)

// MetadataSnapshot is the batched snapshot a MetadataWatcher emits on
// admission: every device, group, and extension's metadata (names and
// memberships, never component values).
type MetadataSnapshot struct {
	Devices    []DeviceMeta
	Groups     []GroupMeta
	Extensions []ExtensionMeta
}

// DeviceMeta is one device's metadata.
type DeviceMeta struct {
	ID     tree.DeviceID
	Name   string
	Owner  tree.ExtensionID
	Groups []tree.GroupID
}

// GroupMeta is one group's metadata.
type GroupMeta struct {
	ID      tree.GroupID
	Name    string
	Devices []tree.DeviceID
}

// ExtensionMeta is one attached extension's metadata.
type ExtensionMeta struct {
	ID    tree.ExtensionID
	Index tree.ExtensionIndex
}

// MetadataWatcher mirrors the full set of device/group/extension metadata.
// Per §4.6 it may never carry a limit, and it never sees component
// set/put events.
type MetadataWatcher struct {
	Base
	sink Sink
}

// NewMetadataWatcher constructs a metadata watcher, subscribes it to every
// metadata-affecting event family, and emits the initial batched snapshot.
func NewMetadataWatcher(id subscriber.WatcherID, t *tree.Tree, idx *subscriber.Index, sink Sink) *MetadataWatcher {
	w := &MetadataWatcher{Base: Base{WID: id}, sink: sink}

	idx.SubscribeDeviceCreatedAll(id)
	idx.SubscribeDeviceDeletedAll(id)
	idx.SubscribeDeviceRenamedAll(id)
	idx.SubscribeGroupCreatedAll(id)
	idx.SubscribeGroupDeletedAll(id)
	idx.SubscribeGroupRenamedAll(id)
	idx.SubscribeGroupDeviceAddedAll(id)
	idx.SubscribeGroupDeviceRemovedAll(id)
	idx.SubscribeExtAttachedAll(id)
	idx.SubscribeExtDetachedAll(id)

	sink.Send(Update{Kind: UpdateMetadataSnapshot, Snapshot: snapshotOf(t)})
	return w
}

func snapshotOf(t *tree.Tree) *MetadataSnapshot {
	snap := &MetadataSnapshot{}
	t.IterDevices(func(id tree.DeviceID, d *tree.Device) {
		dm := DeviceMeta{ID: id, Name: d.Name, Owner: d.Owner}
		for gid := range d.Groups {
			dm.Groups = append(dm.Groups, gid)
		}
		snap.Devices = append(snap.Devices, dm)
	})
	t.IterGroups(func(id tree.GroupID, g *tree.Group) {
		gm := GroupMeta{ID: id, Name: g.Name}
		for did := range g.Devices {
			gm.Devices = append(gm.Devices, did)
		}
		snap.Groups = append(snap.Groups, gm)
	})
	t.IterExtensions(func(idx tree.ExtensionIndex, e *tree.Extension) {
		snap.Extensions = append(snap.Extensions, ExtensionMeta{ID: e.ID, Index: idx})
	})
	return snap
}

func (w *MetadataWatcher) OnDeviceCreated(ev tree.Event) {
	w.sink.Send(Update{Kind: UpdateMetadataDeviceCreated, DeviceID: ev.DeviceID, DeviceName: ev.Name})
}

func (w *MetadataWatcher) OnDeviceDeleted(ev tree.Event) {
	w.sink.Send(Update{Kind: UpdateMetadataDeviceDeleted, DeviceID: ev.DeviceID})
}

func (w *MetadataWatcher) OnDeviceRenamed(ev tree.Event) {
	w.sink.Send(Update{Kind: UpdateMetadataDeviceRenamed, DeviceID: ev.DeviceID, DeviceName: ev.Name})
}

func (w *MetadataWatcher) OnGroupCreated(ev tree.Event) {
	w.sink.Send(Update{Kind: UpdateMetadataGroupCreated, GroupID: ev.GroupID, GroupName: ev.Name})
}

func (w *MetadataWatcher) OnGroupDeleted(ev tree.Event) {
	w.sink.Send(Update{Kind: UpdateMetadataGroupDeleted, GroupID: ev.GroupID})
}

func (w *MetadataWatcher) OnGroupRenamed(ev tree.Event) {
	w.sink.Send(Update{Kind: UpdateMetadataGroupRenamed, GroupID: ev.GroupID, GroupName: ev.Name})
}

func (w *MetadataWatcher) OnGroupDeviceAdded(ev tree.Event) {
	w.sink.Send(Update{Kind: UpdateMetadataGroupDeviceAdded, GroupID: ev.GroupID, DeviceID: ev.DeviceID})
}

func (w *MetadataWatcher) OnGroupDeviceRemoved(ev tree.Event) {
	w.sink.Send(Update{Kind: UpdateMetadataGroupDeviceRemoved, GroupID: ev.GroupID, DeviceID: ev.DeviceID})
}

func (w *MetadataWatcher) OnExtAttached(ev tree.Event) {
	w.sink.Send(Update{Kind: UpdateMetadataExtAttached, ExtensionID: ev.ExtensionID, Attached: true})
}

func (w *MetadataWatcher) OnExtDetached(ev tree.Event) {
	w.sink.Send(Update{Kind: UpdateMetadataExtDetached, ExtensionID: ev.ExtensionID, Attached: false})
}
