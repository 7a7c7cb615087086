package tree

import (
	"hubd/arena"
	"hubd/treeerr"
)

// GetDevice returns the device for id, or ErrDeviceStale when no live
// device holds that handle.
func (t *Tree) GetDevice(id DeviceID) (*Device, error) {
	v := t.devices.Get(arena.ID(id))
	if v == nil {
		return nil, treeerr.ErrDeviceStale
	}
	return v.(*Device), nil
}

// GetGroup returns the group for id, or ErrGroupStale.
func (t *Tree) GetGroup(id GroupID) (*Group, error) {
	v := t.groups.Get(arena.ID(id))
	if v == nil {
		return nil, treeerr.ErrGroupStale
	}
	return v.(*Group), nil
}

// GetExtension returns the attached extension at idx, or
// ErrExtensionDetached.
func (t *Tree) GetExtension(idx ExtensionIndex) (*Extension, error) {
	v := t.extensions.Get(arena.ID(idx))
	if v == nil {
		return nil, treeerr.ErrExtensionDetached
	}
	return v.(*Extension), nil
}

// GetExtensionByID looks up an attached extension by its persistent ID.
func (t *Tree) GetExtensionByID(id ExtensionID) (*Extension, error) {
	idx, ok := t.extByID[id]
	if !ok {
		return nil, treeerr.ErrExtensionUnknown
	}
	return t.GetExtension(idx)
}

// IterDevices calls fn for every occupied device slot, in arena index
// order (the "fallback" path of §4.4's device iteration strategy).
func (t *Tree) IterDevices(fn func(id DeviceID, d *Device)) {
	t.devices.Iter(func(id arena.ID, v interface{}) {
		fn(DeviceID(id), v.(*Device))
	})
}

// IterGroups calls fn for every occupied group slot.
func (t *Tree) IterGroups(fn func(id GroupID, g *Group)) {
	t.groups.Iter(func(id arena.ID, v interface{}) {
		fn(GroupID(id), v.(*Group))
	})
}

// IterExtensions calls fn for every attached extension.
func (t *Tree) IterExtensions(fn func(idx ExtensionIndex, e *Extension)) {
	t.extensions.Iter(func(id arena.ID, v interface{}) {
		fn(ExtensionIndex(id), v.(*Extension))
	})
}

// DeviceGeneration returns the device arena's generation counter, for
// persistence (§6.3).
func (t *Tree) DeviceGeneration() uint32 { return t.devices.Generation() }

// GroupGeneration returns the group arena's generation counter.
func (t *Tree) GroupGeneration() uint32 { return t.groups.Generation() }
