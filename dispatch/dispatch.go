// Package dispatch implements §4.7: for each mutation event it queries the
// Subscriber Index for affected watchers and invokes the matching on_*
// method on each, deduplicating within one event's fan-out.
package dispatch

import (
	"hubd/subscriber"
	"hubd/tree"
	"hubd/watcher"
)

// Dispatcher implements tree.Dispatcher. It owns the Subscriber Index and
// the live watcher registry; both the query engine and the IPC layer
// share one Dispatcher so that mutation -> event -> watcher callback runs
// synchronously, on the single event-loop goroutine (§5).
type Dispatcher struct {
	idx       *subscriber.Index
	watchers  map[subscriber.WatcherID]watcher.Watcher
	mutations map[tree.EventKind]uint64 // counters for metrics

	// OnDispatch, if set, is called after every event with the event kind
	// and how many watchers it reached, for metrics.Registry.ObserveMutation.
	OnDispatch func(kind tree.EventKind, fanout int)
}

// New constructs an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{
		idx:       subscriber.New(),
		watchers:  make(map[subscriber.WatcherID]watcher.Watcher),
		mutations: make(map[tree.EventKind]uint64),
	}
}

// Index returns the Subscriber Index, so watcher constructors (which need
// to register subscriptions at admission time) and the query engine can
// share it with this Dispatcher.
func (d *Dispatcher) Index() *subscriber.Index { return d.idx }

// Register adds w to the live registry. Called once per watcher, right
// after its constructor has wired its subscriptions into d.Index().
func (d *Dispatcher) Register(w watcher.Watcher) {
	d.watchers[w.ID()] = w
}

// Cancel retracts w's subscriptions and drops its working state. Per §5
// there is no half-torn-down watcher window: both steps happen before the
// next event is dispatched, because Dispatch never yields.
func (d *Dispatcher) Cancel(id subscriber.WatcherID) {
	d.idx.Unsubscribe(id)
	delete(d.watchers, id)
}

// MutationCount returns how many events of kind k have been dispatched,
// for the mutations-applied-by-kind metric.
func (d *Dispatcher) MutationCount(k tree.EventKind) uint64 { return d.mutations[k] }

// Dispatch implements tree.Dispatcher. It is synchronous end to end:
// index lookup, every watcher callback, all on the calling goroutine.
func (d *Dispatcher) Dispatch(ev tree.Event) {
	d.mutations[ev.Kind]++

	var affected []subscriber.WatcherID
	switch ev.Kind {
	case tree.EventExtAttached:
		affected = d.idx.AffectedExtAttached(ev.ExtensionID)
	case tree.EventExtDetached:
		affected = d.idx.AffectedExtDetached(ev.ExtensionID)
	case tree.EventDeviceCreated:
		affected = d.idx.AffectedDeviceCreated(ev.DeviceID)
	case tree.EventDeviceDeleted:
		affected = d.idx.AffectedDeviceDeleted(ev.DeviceID)
	case tree.EventDeviceRenamed:
		affected = d.idx.AffectedDeviceRenamed(ev.DeviceID)
	case tree.EventEntityRegistered:
		affected = d.idx.AffectedEntityRegistered(ev.DeviceID)
	case tree.EventComponentPut:
		affected = d.idx.AffectedComponentPut(ev.DeviceID, ev.EntityIndex, ev.ComponentType)
	case tree.EventComponentSet:
		affected = d.idx.AffectedComponentSet(ev.DeviceID, ev.EntityIndex, ev.ComponentType)
	case tree.EventGroupCreated:
		affected = d.idx.AffectedGroupCreated(ev.GroupID)
	case tree.EventGroupDeleted:
		affected = d.idx.AffectedGroupDeleted(ev.GroupID)
	case tree.EventGroupRenamed:
		affected = d.idx.AffectedGroupRenamed(ev.GroupID)
	case tree.EventGroupDeviceAdded:
		affected = d.idx.AffectedGroupDeviceAdded(ev.GroupID, ev.DeviceID)
	case tree.EventGroupDeviceRemoved:
		affected = d.idx.AffectedGroupDeviceRemoved(ev.GroupID, ev.DeviceID)
	}

	delivered := make(map[subscriber.WatcherID]struct{}, len(affected))
	for _, wid := range affected {
		if _, done := delivered[wid]; done {
			continue
		}
		delivered[wid] = struct{}{}
		w, ok := d.watchers[wid]
		if !ok {
			continue
		}
		deliver(w, ev)
	}

	if d.OnDispatch != nil {
		d.OnDispatch(ev.Kind, len(delivered))
	}
}

func deliver(w watcher.Watcher, ev tree.Event) {
	switch ev.Kind {
	case tree.EventExtAttached:
		w.OnExtAttached(ev)
	case tree.EventExtDetached:
		w.OnExtDetached(ev)
	case tree.EventDeviceCreated:
		w.OnDeviceCreated(ev)
	case tree.EventDeviceDeleted:
		w.OnDeviceDeleted(ev)
	case tree.EventDeviceRenamed:
		w.OnDeviceRenamed(ev)
	case tree.EventEntityRegistered:
		w.OnEntityRegistered(ev)
	case tree.EventComponentPut:
		w.OnComponentPut(ev)
	case tree.EventComponentSet:
		w.OnComponentSet(ev)
	case tree.EventGroupCreated:
		w.OnGroupCreated(ev)
	case tree.EventGroupDeleted:
		w.OnGroupDeleted(ev)
	case tree.EventGroupRenamed:
		w.OnGroupRenamed(ev)
	case tree.EventGroupDeviceAdded:
		w.OnGroupDeviceAdded(ev)
	case tree.EventGroupDeviceRemoved:
		w.OnGroupDeviceRemoved(ev)
	}
}
