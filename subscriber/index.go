// Package subscriber implements the Subscriber Index (§4.6): a family of
// sparse multi-dimensional maps from (event kind, subject keys) to the
// watcher IDs that must be notified. Every family is keyed coarse-to-fine
// so a dispatch only has to touch the watcher lists actually affected by
// one mutation.
package subscriber

import (
	"hubd/component"
	"hubd/tree"
)

// WatcherID is a process-unique handle minted by tree.Tree.NextWatcherID.
type WatcherID uint64

// componentSetKey addresses an exact (device, entity, component type)
// triple; component_set events are always exact (§4.6).
type componentSetKey struct {
	Device tree.DeviceID
	Entity tree.EntityIndex
	Type   component.Type
}

// byEntity holds the put-event subscriptions scoped to one entity: "all"
// plus a per-type breakout.
type byEntity struct {
	all  map[WatcherID]struct{}
	byCT map[component.Type]map[WatcherID]struct{}
}

// byDevice holds the put-event subscriptions scoped to one device: "all",
// a per-type breakout, and a per-entity breakout.
type byDevice struct {
	all      map[WatcherID]struct{}
	byCT     map[component.Type]map[WatcherID]struct{}
	byEntity map[tree.EntityIndex]*byEntity
}

// byGroup holds group_device_{added,removed} subscriptions scoped to one
// group: "all" plus a per-device breakout.
type byGroup struct {
	all      map[WatcherID]struct{}
	byDevice map[tree.DeviceID]map[WatcherID]struct{}
}

// Index is the Subscriber Index. Zero value is ready to use.
type Index struct {
	componentSet map[componentSetKey]map[WatcherID]struct{}

	componentPutAll  map[WatcherID]struct{}
	componentPutByCT map[component.Type]map[WatcherID]struct{}
	componentPutByD  map[tree.DeviceID]*byDevice

	deviceCreatedAll map[WatcherID]struct{}
	deviceCreatedByD map[tree.DeviceID]map[WatcherID]struct{}
	deviceRenamedAll map[WatcherID]struct{}
	deviceRenamedByD map[tree.DeviceID]map[WatcherID]struct{}
	deviceDeletedAll map[WatcherID]struct{}
	deviceDeletedByD map[tree.DeviceID]map[WatcherID]struct{}

	entityRegisteredAll map[WatcherID]struct{}
	entityRegisteredByD map[tree.DeviceID]map[WatcherID]struct{}

	groupCreatedAll map[WatcherID]struct{}
	groupCreatedByG map[tree.GroupID]map[WatcherID]struct{}
	groupRenamedAll map[WatcherID]struct{}
	groupRenamedByG map[tree.GroupID]map[WatcherID]struct{}
	groupDeletedAll map[WatcherID]struct{}
	groupDeletedByG map[tree.GroupID]map[WatcherID]struct{}

	groupDeviceAddedAll   map[WatcherID]struct{}
	groupDeviceAddedByG   map[tree.GroupID]*byGroup
	groupDeviceRemovedAll map[WatcherID]struct{}
	groupDeviceRemovedByG map[tree.GroupID]*byGroup

	extAttachedAll  map[WatcherID]struct{}
	extAttachedByID map[tree.ExtensionID]map[WatcherID]struct{}
	extDetachedAll  map[WatcherID]struct{}
	extDetachedByID map[tree.ExtensionID]map[WatcherID]struct{}

	// subject records every key a watcher is registered under, so
	// Unsubscribe can retract in O(subscriptions) rather than walking
	// every family.
	subjects map[WatcherID][]func(*Index)
}

// New returns an empty Subscriber Index.
func New() *Index {
	return &Index{
		componentSet:          make(map[componentSetKey]map[WatcherID]struct{}),
		componentPutByCT:      make(map[component.Type]map[WatcherID]struct{}),
		componentPutByD:       make(map[tree.DeviceID]*byDevice),
		deviceCreatedByD:      make(map[tree.DeviceID]map[WatcherID]struct{}),
		deviceRenamedByD:      make(map[tree.DeviceID]map[WatcherID]struct{}),
		deviceDeletedByD:      make(map[tree.DeviceID]map[WatcherID]struct{}),
		entityRegisteredByD:   make(map[tree.DeviceID]map[WatcherID]struct{}),
		groupCreatedByG:       make(map[tree.GroupID]map[WatcherID]struct{}),
		groupRenamedByG:       make(map[tree.GroupID]map[WatcherID]struct{}),
		groupDeletedByG:       make(map[tree.GroupID]map[WatcherID]struct{}),
		groupDeviceAddedByG:   make(map[tree.GroupID]*byGroup),
		groupDeviceRemovedByG: make(map[tree.GroupID]*byGroup),
		extAttachedByID:       make(map[tree.ExtensionID]map[WatcherID]struct{}),
		extDetachedByID:       make(map[tree.ExtensionID]map[WatcherID]struct{}),
		subjects:              make(map[WatcherID][]func(*Index)),
	}
}

func addTo(m *map[WatcherID]struct{}, w WatcherID) {
	if *m == nil {
		*m = make(map[WatcherID]struct{})
	}
	(*m)[w] = struct{}{}
}

func remFrom(m map[WatcherID]struct{}, w WatcherID) {
	delete(m, w)
}

func (idx *Index) track(w WatcherID, retract func(*Index)) {
	idx.subjects[w] = append(idx.subjects[w], retract)
}

// --- component_set: exact key ---

// SubscribeComponentSet registers w for value-replacement events on one
// exact (device, entity, type) address.
func (idx *Index) SubscribeComponentSet(w WatcherID, d tree.DeviceID, e tree.EntityIndex, t component.Type) {
	key := componentSetKey{Device: d, Entity: e, Type: t}
	if idx.componentSet[key] == nil {
		idx.componentSet[key] = make(map[WatcherID]struct{})
	}
	idx.componentSet[key][w] = struct{}{}
	idx.track(w, func(i *Index) {
		if m, ok := i.componentSet[key]; ok {
			delete(m, w)
			if len(m) == 0 {
				delete(i.componentSet, key)
			}
		}
	})
}

// AffectedComponentSet returns the watcher IDs subscribed to the exact
// address a component_set event fired on.
func (idx *Index) AffectedComponentSet(d tree.DeviceID, e tree.EntityIndex, t component.Type) []WatcherID {
	key := componentSetKey{Device: d, Entity: e, Type: t}
	return keys(idx.componentSet[key])
}

// --- component_put: hierarchical ---

func (idx *Index) deviceBucket(d tree.DeviceID) *byDevice {
	b, ok := idx.componentPutByD[d]
	if !ok {
		b = &byDevice{byCT: make(map[component.Type]map[WatcherID]struct{}), byEntity: make(map[tree.EntityIndex]*byEntity)}
		idx.componentPutByD[d] = b
	}
	return b
}

func (b *byDevice) entityBucket(e tree.EntityIndex) *byEntity {
	eb, ok := b.byEntity[e]
	if !ok {
		eb = &byEntity{byCT: make(map[component.Type]map[WatcherID]struct{})}
		b.byEntity[e] = eb
	}
	return eb
}

// SubscribeComponentPutAll registers w for every put event.
func (idx *Index) SubscribeComponentPutAll(w WatcherID) {
	addTo(&idx.componentPutAll, w)
	idx.track(w, func(i *Index) { remFrom(i.componentPutAll, w) })
}

// SubscribeComponentPutByType registers w for put events of type t on any
// device.
func (idx *Index) SubscribeComponentPutByType(w WatcherID, t component.Type) {
	if idx.componentPutByCT[t] == nil {
		idx.componentPutByCT[t] = make(map[WatcherID]struct{})
	}
	idx.componentPutByCT[t][w] = struct{}{}
	idx.track(w, func(i *Index) {
		if m, ok := i.componentPutByCT[t]; ok {
			delete(m, w)
		}
	})
}

// SubscribeComponentPutByDevice registers w for every put event on device d.
func (idx *Index) SubscribeComponentPutByDevice(w WatcherID, d tree.DeviceID) {
	b := idx.deviceBucket(d)
	addTo(&b.all, w)
	idx.track(w, func(i *Index) {
		if b, ok := i.componentPutByD[d]; ok {
			remFrom(b.all, w)
		}
	})
}

// SubscribeComponentPutByDeviceType registers w for put events of type t on
// device d.
func (idx *Index) SubscribeComponentPutByDeviceType(w WatcherID, d tree.DeviceID, t component.Type) {
	b := idx.deviceBucket(d)
	if b.byCT[t] == nil {
		b.byCT[t] = make(map[WatcherID]struct{})
	}
	b.byCT[t][w] = struct{}{}
	idx.track(w, func(i *Index) {
		if b, ok := i.componentPutByD[d]; ok {
			if m, ok := b.byCT[t]; ok {
				delete(m, w)
			}
		}
	})
}

// SubscribeComponentPutByEntity registers w for every put event on one
// entity.
func (idx *Index) SubscribeComponentPutByEntity(w WatcherID, d tree.DeviceID, e tree.EntityIndex) {
	eb := idx.deviceBucket(d).entityBucket(e)
	addTo(&eb.all, w)
	idx.track(w, func(i *Index) {
		if b, ok := i.componentPutByD[d]; ok {
			if eb, ok := b.byEntity[e]; ok {
				remFrom(eb.all, w)
			}
		}
	})
}

// SubscribeComponentPutByEntityType registers w for put events of type t on
// one entity.
func (idx *Index) SubscribeComponentPutByEntityType(w WatcherID, d tree.DeviceID, e tree.EntityIndex, t component.Type) {
	eb := idx.deviceBucket(d).entityBucket(e)
	if eb.byCT[t] == nil {
		eb.byCT[t] = make(map[WatcherID]struct{})
	}
	eb.byCT[t][w] = struct{}{}
	idx.track(w, func(i *Index) {
		if b, ok := i.componentPutByD[d]; ok {
			if eb, ok := b.byEntity[e]; ok {
				if m, ok := eb.byCT[t]; ok {
					delete(m, w)
				}
			}
		}
	})
}

// AffectedComponentPut returns every watcher subscribed, at any
// granularity, to a put event of type t on (d, e). Pre-sized to the sum of
// its contributing cardinalities (§4.6); duplicates are allowed.
func (idx *Index) AffectedComponentPut(d tree.DeviceID, e tree.EntityIndex, t component.Type) []WatcherID {
	n := len(idx.componentPutAll) + len(idx.componentPutByCT[t])
	b, hasDevice := idx.componentPutByD[d]
	var eb *byEntity
	hasEntity := false
	if hasDevice {
		n += len(b.all) + len(b.byCT[t])
		if eb, hasEntity = b.byEntity[e]; hasEntity {
			n += len(eb.all) + len(eb.byCT[t])
		}
	}
	out := make([]WatcherID, 0, n)
	out = appendKeys(out, idx.componentPutAll)
	out = appendKeys(out, idx.componentPutByCT[t])
	if hasDevice {
		out = appendKeys(out, b.all)
		out = appendKeys(out, b.byCT[t])
		if hasEntity {
			out = appendKeys(out, eb.all)
			out = appendKeys(out, eb.byCT[t])
		}
	}
	return out
}

// --- device_{created,renamed,deleted}: all ∪ by_device_id ---

// SubscribeDeviceCreatedAll registers w for device_created on every device;
// SubscribeDeviceCreatedByID below narrows it to one device.
func (idx *Index) SubscribeDeviceCreatedAll(w WatcherID) {
	addTo(&idx.deviceCreatedAll, w)
	idx.track(w, func(i *Index) { remFrom(i.deviceCreatedAll, w) })
}

func (idx *Index) SubscribeDeviceCreatedByID(w WatcherID, d tree.DeviceID) {
	subByDevice(idx.deviceCreatedByD, d, w)
	idx.track(w, func(i *Index) { unsubByDevice(i.deviceCreatedByD, d, w) })
}

func (idx *Index) AffectedDeviceCreated(d tree.DeviceID) []WatcherID {
	return combine(idx.deviceCreatedAll, idx.deviceCreatedByD[d])
}

func (idx *Index) SubscribeDeviceRenamedAll(w WatcherID) {
	addTo(&idx.deviceRenamedAll, w)
	idx.track(w, func(i *Index) { remFrom(i.deviceRenamedAll, w) })
}

func (idx *Index) SubscribeDeviceRenamedByID(w WatcherID, d tree.DeviceID) {
	subByDevice(idx.deviceRenamedByD, d, w)
	idx.track(w, func(i *Index) { unsubByDevice(i.deviceRenamedByD, d, w) })
}

func (idx *Index) AffectedDeviceRenamed(d tree.DeviceID) []WatcherID {
	return combine(idx.deviceRenamedAll, idx.deviceRenamedByD[d])
}

func (idx *Index) SubscribeDeviceDeletedAll(w WatcherID) {
	addTo(&idx.deviceDeletedAll, w)
	idx.track(w, func(i *Index) { remFrom(i.deviceDeletedAll, w) })
}

func (idx *Index) SubscribeDeviceDeletedByID(w WatcherID, d tree.DeviceID) {
	subByDevice(idx.deviceDeletedByD, d, w)
	idx.track(w, func(i *Index) { unsubByDevice(i.deviceDeletedByD, d, w) })
}

func (idx *Index) AffectedDeviceDeleted(d tree.DeviceID) []WatcherID {
	return combine(idx.deviceDeletedAll, idx.deviceDeletedByD[d])
}

// --- entity_registered: all ∪ by_device_id ---

func (idx *Index) SubscribeEntityRegisteredAll(w WatcherID) {
	addTo(&idx.entityRegisteredAll, w)
	idx.track(w, func(i *Index) { remFrom(i.entityRegisteredAll, w) })
}

func (idx *Index) SubscribeEntityRegisteredByID(w WatcherID, d tree.DeviceID) {
	subByDevice(idx.entityRegisteredByD, d, w)
	idx.track(w, func(i *Index) { unsubByDevice(i.entityRegisteredByD, d, w) })
}

func (idx *Index) AffectedEntityRegistered(d tree.DeviceID) []WatcherID {
	return combine(idx.entityRegisteredAll, idx.entityRegisteredByD[d])
}

// --- group_{created,renamed,deleted}: all ∪ by_group_id ---

func (idx *Index) SubscribeGroupCreatedAll(w WatcherID) {
	addTo(&idx.groupCreatedAll, w)
	idx.track(w, func(i *Index) { remFrom(i.groupCreatedAll, w) })
}

func (idx *Index) SubscribeGroupCreatedByID(w WatcherID, g tree.GroupID) {
	subByGroupID(idx.groupCreatedByG, g, w)
	idx.track(w, func(i *Index) { unsubByGroupID(i.groupCreatedByG, g, w) })
}

func (idx *Index) AffectedGroupCreated(g tree.GroupID) []WatcherID {
	return combine(idx.groupCreatedAll, idx.groupCreatedByG[g])
}

func (idx *Index) SubscribeGroupRenamedAll(w WatcherID) {
	addTo(&idx.groupRenamedAll, w)
	idx.track(w, func(i *Index) { remFrom(i.groupRenamedAll, w) })
}

func (idx *Index) SubscribeGroupRenamedByID(w WatcherID, g tree.GroupID) {
	subByGroupID(idx.groupRenamedByG, g, w)
	idx.track(w, func(i *Index) { unsubByGroupID(i.groupRenamedByG, g, w) })
}

func (idx *Index) AffectedGroupRenamed(g tree.GroupID) []WatcherID {
	return combine(idx.groupRenamedAll, idx.groupRenamedByG[g])
}

func (idx *Index) SubscribeGroupDeletedAll(w WatcherID) {
	addTo(&idx.groupDeletedAll, w)
	idx.track(w, func(i *Index) { remFrom(i.groupDeletedAll, w) })
}

func (idx *Index) SubscribeGroupDeletedByID(w WatcherID, g tree.GroupID) {
	subByGroupID(idx.groupDeletedByG, g, w)
	idx.track(w, func(i *Index) { unsubByGroupID(i.groupDeletedByG, g, w) })
}

func (idx *Index) AffectedGroupDeleted(g tree.GroupID) []WatcherID {
	return combine(idx.groupDeletedAll, idx.groupDeletedByG[g])
}

// --- group_device_{added,removed}: all ∪ nested by_group_id.{all, by_device_id} ---

func (idx *Index) groupBucket(m map[tree.GroupID]*byGroup, g tree.GroupID) *byGroup {
	b, ok := m[g]
	if !ok {
		b = &byGroup{byDevice: make(map[tree.DeviceID]map[WatcherID]struct{})}
		m[g] = b
	}
	return b
}

func (idx *Index) SubscribeGroupDeviceAddedAll(w WatcherID) {
	addTo(&idx.groupDeviceAddedAll, w)
	idx.track(w, func(i *Index) { remFrom(i.groupDeviceAddedAll, w) })
}

func (idx *Index) SubscribeGroupDeviceAddedByGroup(w WatcherID, g tree.GroupID) {
	b := idx.groupBucket(idx.groupDeviceAddedByG, g)
	addTo(&b.all, w)
	idx.track(w, func(i *Index) {
		if b, ok := i.groupDeviceAddedByG[g]; ok {
			remFrom(b.all, w)
		}
	})
}

func (idx *Index) SubscribeGroupDeviceAddedByGroupDevice(w WatcherID, g tree.GroupID, d tree.DeviceID) {
	b := idx.groupBucket(idx.groupDeviceAddedByG, g)
	subByDevice(b.byDevice, d, w)
	idx.track(w, func(i *Index) {
		if b, ok := i.groupDeviceAddedByG[g]; ok {
			unsubByDevice(b.byDevice, d, w)
		}
	})
}

func (idx *Index) AffectedGroupDeviceAdded(g tree.GroupID, d tree.DeviceID) []WatcherID {
	out := appendKeys(nil, idx.groupDeviceAddedAll)
	if b, ok := idx.groupDeviceAddedByG[g]; ok {
		out = appendKeys(out, b.all)
		out = appendKeys(out, b.byDevice[d])
	}
	return out
}

func (idx *Index) SubscribeGroupDeviceRemovedAll(w WatcherID) {
	addTo(&idx.groupDeviceRemovedAll, w)
	idx.track(w, func(i *Index) { remFrom(i.groupDeviceRemovedAll, w) })
}

func (idx *Index) SubscribeGroupDeviceRemovedByGroup(w WatcherID, g tree.GroupID) {
	b := idx.groupBucket(idx.groupDeviceRemovedByG, g)
	addTo(&b.all, w)
	idx.track(w, func(i *Index) {
		if b, ok := i.groupDeviceRemovedByG[g]; ok {
			remFrom(b.all, w)
		}
	})
}

func (idx *Index) SubscribeGroupDeviceRemovedByGroupDevice(w WatcherID, g tree.GroupID, d tree.DeviceID) {
	b := idx.groupBucket(idx.groupDeviceRemovedByG, g)
	subByDevice(b.byDevice, d, w)
	idx.track(w, func(i *Index) {
		if b, ok := i.groupDeviceRemovedByG[g]; ok {
			unsubByDevice(b.byDevice, d, w)
		}
	})
}

func (idx *Index) AffectedGroupDeviceRemoved(g tree.GroupID, d tree.DeviceID) []WatcherID {
	out := appendKeys(nil, idx.groupDeviceRemovedAll)
	if b, ok := idx.groupDeviceRemovedByG[g]; ok {
		out = appendKeys(out, b.all)
		out = appendKeys(out, b.byDevice[d])
	}
	return out
}

// --- ext_{attached,detached}: all ∪ by_extension_id ---
//
// Only these two granularities have a subscriber: every caller (the
// metadata watcher) admits via *All, and the only narrower lookup ever
// performed is *ByID. A by-extension-index and a by-device-id granularity
// were scaffolded here but never reached a Subscribe method or a caller,
// so they were dropped rather than kept as permanently-empty dead state.

func (idx *Index) SubscribeExtAttachedAll(w WatcherID) {
	addTo(&idx.extAttachedAll, w)
	idx.track(w, func(i *Index) { remFrom(i.extAttachedAll, w) })
}

func (idx *Index) SubscribeExtAttachedByID(w WatcherID, x tree.ExtensionID) {
	if idx.extAttachedByID[x] == nil {
		idx.extAttachedByID[x] = make(map[WatcherID]struct{})
	}
	idx.extAttachedByID[x][w] = struct{}{}
	idx.track(w, func(i *Index) {
		if m, ok := i.extAttachedByID[x]; ok {
			delete(m, w)
		}
	})
}

func (idx *Index) AffectedExtAttached(x tree.ExtensionID) []WatcherID {
	out := appendKeys(nil, idx.extAttachedAll)
	out = appendKeys(out, idx.extAttachedByID[x])
	return out
}

func (idx *Index) SubscribeExtDetachedAll(w WatcherID) {
	addTo(&idx.extDetachedAll, w)
	idx.track(w, func(i *Index) { remFrom(i.extDetachedAll, w) })
}

func (idx *Index) SubscribeExtDetachedByID(w WatcherID, x tree.ExtensionID) {
	if idx.extDetachedByID[x] == nil {
		idx.extDetachedByID[x] = make(map[WatcherID]struct{})
	}
	idx.extDetachedByID[x][w] = struct{}{}
	idx.track(w, func(i *Index) {
		if m, ok := i.extDetachedByID[x]; ok {
			delete(m, w)
		}
	})
}

func (idx *Index) AffectedExtDetached(x tree.ExtensionID) []WatcherID {
	out := appendKeys(nil, idx.extDetachedAll)
	out = appendKeys(out, idx.extDetachedByID[x])
	return out
}

// Unsubscribe retracts every entry registered under w, across every
// family. An inner map left empty is pruned for exact component_set keys
// and for the per-device and per-group maps of the device, entity, group
// and group-membership families; the component_put per-type map and its
// per-device/per-entity buckets, the group-membership per-group buckets
// and the per-extension-id maps stay in place, empty. Idempotent: calling it twice, or on a
// watcher that never subscribed, is a no-op.
func (idx *Index) Unsubscribe(w WatcherID) {
	for _, retract := range idx.subjects[w] {
		retract(idx)
	}
	delete(idx.subjects, w)
}

func subByDevice(m map[tree.DeviceID]map[WatcherID]struct{}, d tree.DeviceID, w WatcherID) {
	if m[d] == nil {
		m[d] = make(map[WatcherID]struct{})
	}
	m[d][w] = struct{}{}
}

func unsubByDevice(m map[tree.DeviceID]map[WatcherID]struct{}, d tree.DeviceID, w WatcherID) {
	if s, ok := m[d]; ok {
		delete(s, w)
		if len(s) == 0 {
			delete(m, d)
		}
	}
}

func subByGroupID(m map[tree.GroupID]map[WatcherID]struct{}, g tree.GroupID, w WatcherID) {
	if m[g] == nil {
		m[g] = make(map[WatcherID]struct{})
	}
	m[g][w] = struct{}{}
}

func unsubByGroupID(m map[tree.GroupID]map[WatcherID]struct{}, g tree.GroupID, w WatcherID) {
	if s, ok := m[g]; ok {
		delete(s, w)
		if len(s) == 0 {
			delete(m, g)
		}
	}
}

func keys(m map[WatcherID]struct{}) []WatcherID {
	return appendKeys(nil, m)
}

func appendKeys(out []WatcherID, m map[WatcherID]struct{}) []WatcherID {
	for w := range m {
		out = append(out, w)
	}
	return out
}

func combine(all map[WatcherID]struct{}, by map[WatcherID]struct{}) []WatcherID {
	out := appendKeys(nil, all)
	out = appendKeys(out, by)
	return out
}
