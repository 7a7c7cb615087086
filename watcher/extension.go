package watcher

import (
	"hubd/subscriber"
	"hubd/tree"
)

// ExtensionWatcher subscribes to attach/detach for a selected set of
// ExtensionIDs.
type ExtensionWatcher struct {
	Base
	ids  map[tree.ExtensionID]struct{}
	sink Sink
}

// NewExtensionWatcher subscribes id to attach/detach events for every
// extension ID in ids.
func NewExtensionWatcher(wid subscriber.WatcherID, idx *subscriber.Index, ids []tree.ExtensionID, sink Sink) *ExtensionWatcher {
	set := make(map[tree.ExtensionID]struct{}, len(ids))
	for _, x := range ids {
		set[x] = struct{}{}
		idx.SubscribeExtAttachedByID(wid, x)
		idx.SubscribeExtDetachedByID(wid, x)
	}
	return &ExtensionWatcher{Base: Base{WID: wid}, ids: set, sink: sink}
}

func (w *ExtensionWatcher) OnExtAttached(ev tree.Event) {
	if _, ok := w.ids[ev.ExtensionID]; !ok {
		return
	}
	w.sink.Send(Update{Kind: UpdateExtensionState, ExtensionID: ev.ExtensionID, Attached: true})
}

func (w *ExtensionWatcher) OnExtDetached(ev tree.Event) {
	if _, ok := w.ids[ev.ExtensionID]; !ok {
		return
	}
	w.sink.Send(Update{Kind: UpdateExtensionState, ExtensionID: ev.ExtensionID, Attached: false})
}
