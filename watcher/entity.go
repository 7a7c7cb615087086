package watcher

import (
	"hubd/filter"
	"hubd/subscriber"
	"hubd/tree"
)

// EntityWatcher tracks entities matching a filter, emitting on entity
// registration and on component puts that change whether an entity
// belongs to the working set (e.g. a filter requiring a component type
// that has just been put for the first time).
type EntityWatcher struct {
	Base
	tree    *tree.Tree
	df      *filter.DeviceFilter
	ef      *filter.EntityFilter
	sink    Sink
	working map[componentKey]struct{}
}

// NewEntityWatcher resolves the initial working set and subscribes to
// entity_registered plus, if ef names a required component type, the
// matching component_put family.
func NewEntityWatcher(id subscriber.WatcherID, t *tree.Tree, idx *subscriber.Index, df *filter.DeviceFilter, ef *filter.EntityFilter, sink Sink) *EntityWatcher {
	w := &EntityWatcher{
		Base: Base{WID: id}, tree: t, df: df, ef: ef, sink: sink,
		working: make(map[componentKey]struct{}),
	}

	idx.SubscribeEntityRegisteredAll(id)
	if ef != nil && ef.HasComp {
		idx.SubscribeComponentPutByType(id, ef.CompType)
	}

	filter.IterDevices(t, df, func(did tree.DeviceID, d *tree.Device) bool {
		filter.IterEntities(d, ef, func(eidx tree.EntityIndex, e *tree.Entity) bool {
			w.working[componentKey{Device: did, Entity: eidx}] = struct{}{}
			return true
		})
		return true
	})
	return w
}

func (w *EntityWatcher) OnEntityRegistered(ev tree.Event) {
	d, err := w.tree.GetDevice(ev.DeviceID)
	if err != nil || !w.df.Matches(ev.DeviceID, d) {
		return
	}
	if int(ev.EntityIndex) >= len(d.Entities) || !w.ef.Matches(ev.EntityIndex, d.Entities[ev.EntityIndex]) {
		return
	}
	key := componentKey{Device: ev.DeviceID, Entity: ev.EntityIndex}
	if _, ok := w.working[key]; ok {
		return
	}
	w.working[key] = struct{}{}
	w.sink.Send(Update{Kind: UpdateEntityRegistered, DeviceID: ev.DeviceID, EntityIndex: ev.EntityIndex, EntityName: ev.Name})
}

func (w *EntityWatcher) OnComponentPut(ev tree.Event) {
	if w.ef == nil || !w.ef.HasComp || ev.ComponentType != w.ef.CompType {
		return
	}
	key := componentKey{Device: ev.DeviceID, Entity: ev.EntityIndex}
	if _, ok := w.working[key]; ok {
		return
	}
	d, err := w.tree.GetDevice(ev.DeviceID)
	if err != nil || !w.df.Matches(ev.DeviceID, d) {
		return
	}
	w.working[key] = struct{}{}
	w.sink.Send(Update{Kind: UpdateEntityMembershipChanged, DeviceID: ev.DeviceID, EntityIndex: ev.EntityIndex})
}
