package watcher

import (
	"hubd/component"
	"hubd/filter"
	"hubd/subscriber"
	"hubd/tree"
)

type componentKey struct {
	Device tree.DeviceID
	Entity tree.EntityIndex
}

// ComponentWatcher tracks the (device, entity) pairs matching a filter for
// one ComponentType, plus each pair's current value, and emits on every
// set (not just the first) per S4.
type ComponentWatcher struct {
	Base
	t       *tree.Tree
	idx     *subscriber.Index
	df      *filter.DeviceFilter
	ef      *filter.EntityFilter
	ct      component.Type
	sink    Sink
	working map[componentKey]struct{}
}

// NewComponentWatcher resolves the initial working set against t, wires
// subscriptions for both discovering new matches (component_put) and
// tracking known ones (component_set, by exact address), and returns the
// watcher ready for dispatch.
func NewComponentWatcher(id subscriber.WatcherID, t *tree.Tree, idx *subscriber.Index, df *filter.DeviceFilter, ef *filter.EntityFilter, ct component.Type, sink Sink) *ComponentWatcher {
	w := &ComponentWatcher{
		Base:    Base{WID: id},
		t:       t,
		idx:     idx,
		df:      df,
		ef:      ef,
		ct:      ct,
		sink:    sink,
		working: make(map[componentKey]struct{}),
	}

	idx.SubscribeComponentPutByType(id, ct)
	idx.SubscribeDeviceDeletedAll(id)

	compEf := mergeComponentFilter(ef, ct)
	filter.IterDevices(t, df, func(did tree.DeviceID, d *tree.Device) bool {
		filter.IterEntities(d, compEf, func(eidx tree.EntityIndex, e *tree.Entity) bool {
			w.addMatch(did, eidx)
			return true
		})
		return true
	})
	return w
}

func mergeComponentFilter(ef *filter.EntityFilter, ct component.Type) *filter.EntityFilter {
	out := filter.EntityFilter{HasComp: true, CompType: ct}
	if ef != nil {
		out.Name = ef.Name
		out.HasName = ef.HasName
	}
	return &out
}

func (w *ComponentWatcher) addMatch(did tree.DeviceID, eidx tree.EntityIndex) {
	key := componentKey{Device: did, Entity: eidx}
	if _, ok := w.working[key]; ok {
		return
	}
	w.working[key] = struct{}{}
	w.idx.SubscribeComponentSet(w.WID, did, eidx, w.ct)
}

func (w *ComponentWatcher) matchesDeviceEntity(t *tree.Tree, did tree.DeviceID, eidx tree.EntityIndex) bool {
	d, err := t.GetDevice(did)
	if err != nil || !w.df.Matches(did, d) {
		return false
	}
	if int(eidx) >= len(d.Entities) {
		return false
	}
	return w.ef.Matches(eidx, d.Entities[eidx])
}

// OnComponentPut is invoked for every put of w.ct anywhere in the tree
// (coarse subscription); it re-checks full filter membership before
// admitting the address to the working set, then emits the initial value.
func (w *ComponentWatcher) OnComponentPut(ev tree.Event) {
	if ev.ComponentType != w.ct {
		return
	}
	key := componentKey{Device: ev.DeviceID, Entity: ev.EntityIndex}
	if _, ok := w.working[key]; ok {
		return
	}
	if !w.matchesDeviceEntity(w.t, ev.DeviceID, ev.EntityIndex) {
		return
	}
	w.addMatch(ev.DeviceID, ev.EntityIndex)
	w.sink.Send(Update{
		Kind: UpdateComponentValue, DeviceID: ev.DeviceID, EntityIndex: ev.EntityIndex,
		ComponentType: ev.ComponentType, ComponentValue: ev.Component,
	})
}

// OnComponentSet fires on every value replacement for a tracked address,
// unconditionally (S4: the component watcher emits on every set).
func (w *ComponentWatcher) OnComponentSet(ev tree.Event) {
	key := componentKey{Device: ev.DeviceID, Entity: ev.EntityIndex}
	if _, ok := w.working[key]; !ok {
		return
	}
	w.sink.Send(Update{
		Kind: UpdateComponentValue, DeviceID: ev.DeviceID, EntityIndex: ev.EntityIndex,
		ComponentType: ev.ComponentType, ComponentValue: ev.Component,
	})
}

// OnDeviceDeleted drops every tracked address on the deleted device.
func (w *ComponentWatcher) OnDeviceDeleted(ev tree.Event) {
	for k := range w.working {
		if k.Device == ev.DeviceID {
			delete(w.working, k)
		}
	}
}
