package tree

import (
	"time"

	"hubd/arena"
	"hubd/component"
	"hubd/treeerr"
)

// Every routine in this file has the same shape (§4.3): validate IDs
// against the invariants in §3, mutate, persist if the change is durable,
// then call the dispatcher with a strongly-typed event. Apart from Restore
// (snapshot.go), these are the only functions in the package that write to
// a Tree's arenas.

// AttachExtension links a just-handshaken extension into the tree. If
// devices were previously persisted under this ExtensionID, they are
// re-linked (owner_ref populated) per §3's attach lifecycle rule. Not
// durable: linkage only.
func (t *Tree) AttachExtension(id ExtensionID, w Writer, msic uint16, minor uint8) ExtensionIndex {
	ext := &Extension{
		ID:           id,
		Writer:       w,
		MSIC:         msic,
		MinorVersion: minor,
		Devices:      make(map[DeviceID]struct{}),
	}
	raw := t.extensions.Insert(ext)
	idx := ExtensionIndex(raw)
	ext.Index = idx
	t.extByID[id] = idx

	t.IterDevices(func(did DeviceID, d *Device) {
		if d.Owner == id {
			ref := idx
			d.OwnerRef = &ref
			ext.Devices[did] = struct{}{}
		}
	})

	t.dispatcher.Dispatch(Event{Kind: EventExtAttached, ExtensionID: id, ExtensionIndex: idx})
	return idx
}

// DetachExtension unlinks an attached extension. Owned devices keep their
// persistent Owner but lose their cached OwnerRef. Not durable.
func (t *Tree) DetachExtension(idx ExtensionIndex) error {
	v := t.extensions.Remove(arena.ID(idx))
	if v == nil {
		return treeerr.ErrExtensionDetached
	}
	ext := v.(*Extension)
	delete(t.extByID, ext.ID)

	for did := range ext.Devices {
		if d, err := t.GetDevice(did); err == nil {
			d.OwnerRef = nil
		}
	}

	t.dispatcher.Dispatch(Event{Kind: EventExtDetached, ExtensionID: ext.ID, ExtensionIndex: idx})
	return nil
}

// CreateDevice creates a new device owned by the given attached extension.
// Durable.
func (t *Tree) CreateDevice(owner ExtensionIndex, name string) (DeviceID, error) {
	ext, err := t.GetExtension(owner)
	if err != nil {
		return DeviceID{}, err
	}

	d := &Device{
		Name:         name,
		Owner:        ext.ID,
		Groups:       make(map[GroupID]struct{}),
		entityByName: make(map[string]EntityIndex),
	}
	ref := owner
	d.OwnerRef = &ref

	raw := t.devices.Insert(d)
	id := DeviceID(raw)
	ext.Devices[id] = struct{}{}

	if err := t.persister.PersistDevices(t.Snapshot()); err != nil {
		t.devices.Remove(raw)
		delete(ext.Devices, id)
		return DeviceID{}, err
	}

	t.dispatcher.Dispatch(Event{Kind: EventDeviceCreated, DeviceID: id, Name: name})
	return id, nil
}

// DeleteDevice removes a device and its mirrors (extension/group
// membership). Durable.
func (t *Tree) DeleteDevice(id DeviceID) error {
	d, err := t.GetDevice(id)
	if err != nil {
		return err
	}

	for gid := range d.Groups {
		if g, gerr := t.GetGroup(gid); gerr == nil {
			delete(g.Devices, id)
		}
	}
	if d.OwnerRef != nil {
		if ext, eerr := t.GetExtension(*d.OwnerRef); eerr == nil {
			delete(ext.Devices, id)
		}
	}

	t.devices.Remove(arena.ID(id))

	if err := t.persister.PersistDevices(t.Snapshot()); err != nil {
		return err
	}

	t.dispatcher.Dispatch(Event{Kind: EventDeviceDeleted, DeviceID: id})
	return nil
}

// RenameDevice changes a device's display name. Durable.
func (t *Tree) RenameDevice(id DeviceID, name string) error {
	d, err := t.GetDevice(id)
	if err != nil {
		return err
	}
	d.Name = name

	if err := t.persister.PersistDevices(t.Snapshot()); err != nil {
		return err
	}

	t.dispatcher.Dispatch(Event{Kind: EventDeviceRenamed, DeviceID: id, Name: name})
	return nil
}

// RegisterEntity appends a new entity to a device. expectedIndex must
// equal the device's current entity count (protocol error otherwise); a
// duplicate entity name is likewise rejected without mutating, so an
// extension retrying a registration after a dropped reply can't silently
// create a second entity under the same name. Partially durable: identity
// is persisted, component values are not.
func (t *Tree) RegisterEntity(id DeviceID, name string, expectedIndex EntityIndex) (EntityIndex, error) {
	d, err := t.GetDevice(id)
	if err != nil {
		return 0, err
	}
	if int(expectedIndex) != len(d.Entities) {
		return 0, treeerr.ErrEntityIndexMismatch
	}
	if _, exists := d.entityByName[name]; exists {
		return 0, treeerr.ErrDuplicateEntityName
	}

	ent := newEntity(name)
	ent.LastUpdated = time.Now()
	idx := EntityIndex(len(d.Entities))
	d.Entities = append(d.Entities, ent)
	d.entityByName[name] = idx
	d.LastUpdated = ent.LastUpdated

	if err := t.persister.PersistDevices(t.Snapshot()); err != nil {
		return 0, err
	}

	t.dispatcher.Dispatch(Event{Kind: EventEntityRegistered, DeviceID: id, EntityIndex: idx, Name: name})
	return idx, nil
}

// WriteComponents applies a batch of component writes to one entity. Each
// component is validated against the owning extension's negotiated MSIC
// before any of the batch is applied (the resolved open question: reject
// the whole call rather than partially apply it). Per component it
// distinguishes "put" (new type for this entity) from "set" (value
// replacement), updating presence and the inverted index only on put, and
// stamps last_updated on both device and entity. Not durable: component
// values are ephemeral (§2, §6.3).
func (t *Tree) WriteComponents(id DeviceID, entIdx EntityIndex, comps []component.Component) error {
	d, err := t.GetDevice(id)
	if err != nil {
		return err
	}
	if entIdx < 0 || int(entIdx) >= len(d.Entities) {
		return treeerr.ErrEntityNotFound
	}
	ent := d.Entities[entIdx]

	if d.OwnerRef != nil {
		if ext, eerr := t.GetExtension(*d.OwnerRef); eerr == nil {
			for _, c := range comps {
				if uint16(c.Type) > ext.MSIC {
					return treeerr.ErrComponentPastMSIC
				}
			}
		}
	}

	now := time.Now()
	for _, c := range comps {
		off, present := ent.IndexOf(c.Type)
		if present {
			ent.Components[off] = c
			t.dispatcher.Dispatch(Event{
				Kind: EventComponentSet, DeviceID: id, EntityIndex: entIdx,
				ComponentType: c.Type, Component: c,
			})
		} else {
			ent.Components = append(ent.Components, c)
			newOff := len(ent.Components) - 1
			ent.setIndex(c.Type, newOff)
			d.Presence.Set(c.Type)
			d.compToEnt[c.Type] = append(d.compToEnt[c.Type], entIdx)
			t.dispatcher.Dispatch(Event{
				Kind: EventComponentPut, DeviceID: id, EntityIndex: entIdx,
				ComponentType: c.Type, Component: c,
			})
		}
	}
	ent.LastUpdated = now
	d.LastUpdated = now
	return nil
}

func (e *Entity) setIndex(t component.Type, offset int) {
	e.indices[t] = uint8(offset)
}

// CreateGroup creates a new, empty, named group. Durable.
func (t *Tree) CreateGroup(name string) (GroupID, error) {
	g := &Group{Name: name, Devices: make(map[DeviceID]struct{})}
	raw := t.groups.Insert(g)
	id := GroupID(raw)

	if err := t.persister.PersistGroups(t.GroupSnapshotNow()); err != nil {
		t.groups.Remove(raw)
		return GroupID{}, err
	}

	t.dispatcher.Dispatch(Event{Kind: EventGroupCreated, GroupID: id, Name: name})
	return id, nil
}

// DeleteGroup removes a group and clears it from every member device's
// mirror set. Durable.
func (t *Tree) DeleteGroup(id GroupID) error {
	g, err := t.GetGroup(id)
	if err != nil {
		return err
	}
	for did := range g.Devices {
		if d, derr := t.GetDevice(did); derr == nil {
			delete(d.Groups, id)
		}
	}
	t.groups.Remove(arena.ID(id))

	if err := t.persister.PersistGroups(t.GroupSnapshotNow()); err != nil {
		return err
	}

	t.dispatcher.Dispatch(Event{Kind: EventGroupDeleted, GroupID: id})
	return nil
}

// RenameGroup changes a group's name. Durable.
func (t *Tree) RenameGroup(id GroupID, name string) error {
	g, err := t.GetGroup(id)
	if err != nil {
		return err
	}
	g.Name = name

	if err := t.persister.PersistGroups(t.GroupSnapshotNow()); err != nil {
		return err
	}

	t.dispatcher.Dispatch(Event{Kind: EventGroupRenamed, GroupID: id, Name: name})
	return nil
}

// AddDeviceToGroup adds a device to a group, maintaining the mutual mirror
// (§3, §8 property 3). Durable.
func (t *Tree) AddDeviceToGroup(gid GroupID, did DeviceID) error {
	g, err := t.GetGroup(gid)
	if err != nil {
		return err
	}
	d, err := t.GetDevice(did)
	if err != nil {
		return err
	}

	g.Devices[did] = struct{}{}
	d.Groups[gid] = struct{}{}

	if err := t.persister.PersistGroups(t.GroupSnapshotNow()); err != nil {
		delete(g.Devices, did)
		delete(d.Groups, gid)
		return err
	}
	if err := t.persister.PersistDevices(t.Snapshot()); err != nil {
		return err
	}

	t.dispatcher.Dispatch(Event{Kind: EventGroupDeviceAdded, GroupID: gid, DeviceID: did})
	return nil
}

// RemoveDeviceFromGroup removes a device from a group, maintaining the
// mutual mirror. Durable.
func (t *Tree) RemoveDeviceFromGroup(gid GroupID, did DeviceID) error {
	g, err := t.GetGroup(gid)
	if err != nil {
		return err
	}
	d, err := t.GetDevice(did)
	if err != nil {
		return err
	}

	delete(g.Devices, did)
	delete(d.Groups, gid)

	if err := t.persister.PersistGroups(t.GroupSnapshotNow()); err != nil {
		return err
	}
	if err := t.persister.PersistDevices(t.Snapshot()); err != nil {
		return err
	}

	t.dispatcher.Dispatch(Event{Kind: EventGroupDeviceRemoved, GroupID: gid, DeviceID: did})
	return nil
}
