package watcher

import (
	"hubd/subscriber"
	"hubd/tree"
)

// GroupWatchMode selects which narrow slice of group events a GroupWatcher
// subscribes to (§4.6).
type GroupWatchMode int

const (
	// WatchName subscribes only to renames of the selected group.
	WatchName GroupWatchMode = iota
	// WatchMembership subscribes only to device add/remove on the
	// selected group.
	WatchMembership
)

// GroupWatcher watches one group in one of two narrow sub-modes.
type GroupWatcher struct {
	Base
	mode GroupWatchMode
	sink Sink
}

// NewGroupWatcher subscribes id to exactly the events mode calls for on g.
func NewGroupWatcher(id subscriber.WatcherID, idx *subscriber.Index, g tree.GroupID, mode GroupWatchMode, sink Sink) *GroupWatcher {
	w := &GroupWatcher{Base: Base{WID: id}, mode: mode, sink: sink}
	switch mode {
	case WatchName:
		idx.SubscribeGroupRenamedByID(id, g)
	case WatchMembership:
		idx.SubscribeGroupDeviceAddedByGroup(id, g)
		idx.SubscribeGroupDeviceRemovedByGroup(id, g)
	}
	return w
}

func (w *GroupWatcher) OnGroupRenamed(ev tree.Event) {
	w.sink.Send(Update{Kind: UpdateGroupName, GroupID: ev.GroupID, GroupName: ev.Name})
}

func (w *GroupWatcher) OnGroupDeviceAdded(ev tree.Event) {
	w.sink.Send(Update{Kind: UpdateGroupMembership, GroupID: ev.GroupID, DeviceID: ev.DeviceID, Attached: true})
}

func (w *GroupWatcher) OnGroupDeviceRemoved(ev tree.Event) {
	w.sink.Send(Update{Kind: UpdateGroupMembership, GroupID: ev.GroupID, DeviceID: ev.DeviceID, Attached: false})
}
