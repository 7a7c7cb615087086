package watcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hubd/component"
	"hubd/dispatch"
	"hubd/filter"
	"hubd/tree"
)

func newTestTree(disp *dispatch.Dispatcher) *tree.Tree {
	return tree.New(disp, noopPersister{})
}

type noopPersister struct{}

func (noopPersister) PersistDevices(tree.DeviceSnapshot) error { return nil }
func (noopPersister) PersistGroups(tree.GroupSnapshot) error   { return nil }

type fakeWriter struct{}

func (fakeWriter) WriteFrame([]byte) error { return nil }

type recordingSink struct {
	updates []Update
}

func (s *recordingSink) Send(u Update) { s.updates = append(s.updates, u) }

func TestComponentWatcherEmitsOnEverySet(t *testing.T) {
	disp := dispatch.New()
	tr := newTestTree(disp)
	ext := tr.AttachExtension("ext-1", fakeWriter{}, 1000, 0)
	d1, _ := tr.CreateDevice(ext, "lamp")
	e1, _ := tr.RegisterEntity(d1, "bulb", 0)
	require.NoError(t, tr.WriteComponents(d1, e1, []component.Component{
		{Type: component.TypeSwitch, Bool: true},
	}))

	sink := &recordingSink{}
	w := NewComponentWatcher(1, tr, disp.Index(), &filter.DeviceFilter{}, &filter.EntityFilter{}, component.TypeSwitch, sink)
	disp.Register(w)

	require.NoError(t, tr.WriteComponents(d1, e1, []component.Component{
		{Type: component.TypeSwitch, Bool: false},
	}))
	require.Len(t, sink.updates, 1)
	assert.Equal(t, UpdateComponentValue, sink.updates[0].Kind)
	assert.Equal(t, d1, sink.updates[0].DeviceID)
	assert.False(t, sink.updates[0].ComponentValue.Bool)
}

func TestComponentWatcherDiscoversNewMatchViaPut(t *testing.T) {
	disp := dispatch.New()
	tr := newTestTree(disp)
	ext := tr.AttachExtension("ext-1", fakeWriter{}, 1000, 0)
	d1, _ := tr.CreateDevice(ext, "lamp")
	e1, _ := tr.RegisterEntity(d1, "bulb", 0)

	sink := &recordingSink{}
	w := NewComponentWatcher(1, tr, disp.Index(), &filter.DeviceFilter{}, &filter.EntityFilter{}, component.TypeSwitch, sink)
	disp.Register(w)

	// No component of this type exists yet, so admission emits nothing.
	assert.Empty(t, sink.updates)

	require.NoError(t, tr.WriteComponents(d1, e1, []component.Component{
		{Type: component.TypeSwitch, Bool: true},
	}))
	require.Len(t, sink.updates, 1)
	assert.Equal(t, UpdateComponentValue, sink.updates[0].Kind)
	assert.True(t, sink.updates[0].ComponentValue.Bool)
}

func TestComponentWatcherDropsAddressesOnDeviceDeleted(t *testing.T) {
	disp := dispatch.New()
	tr := newTestTree(disp)
	ext := tr.AttachExtension("ext-1", fakeWriter{}, 1000, 0)
	d1, _ := tr.CreateDevice(ext, "lamp")
	e1, _ := tr.RegisterEntity(d1, "bulb", 0)
	require.NoError(t, tr.WriteComponents(d1, e1, []component.Component{
		{Type: component.TypeSwitch, Bool: true},
	}))

	sink := &recordingSink{}
	w := NewComponentWatcher(1, tr, disp.Index(), &filter.DeviceFilter{}, &filter.EntityFilter{}, component.TypeSwitch, sink)
	disp.Register(w)

	require.NoError(t, tr.DeleteDevice(d1))
	assert.Empty(t, sink.updates)
	assert.Empty(t, w.working)
}

func TestComponentWatcherPutOutsideDeviceFilterScopeProducesNoUpdate(t *testing.T) {
	disp := dispatch.New()
	tr := newTestTree(disp)
	ext := tr.AttachExtension("ext-1", fakeWriter{}, 1000, 0)
	inGroup, _ := tr.CreateDevice(ext, "in-group")
	eIn, _ := tr.RegisterEntity(inGroup, "bulb", 0)
	outGroup, _ := tr.CreateDevice(ext, "out-of-group")
	eOut, _ := tr.RegisterEntity(outGroup, "bulb", 0)

	g1, _ := tr.CreateGroup("kitchen")
	require.NoError(t, tr.AddDeviceToGroup(g1, inGroup))

	scoped := filter.NewGroupIn(g1)
	sink := &recordingSink{}
	w := NewComponentWatcher(1, tr, disp.Index(), &filter.DeviceFilter{Group: &scoped}, &filter.EntityFilter{}, component.TypeSwitch, sink)
	disp.Register(w)
	assert.Empty(t, sink.updates)

	// A put on a device outside the watcher's group filter must never be
	// admitted to its working set, even though SubscribeComponentPutByType
	// is a tree-wide, type-only subscription.
	require.NoError(t, tr.WriteComponents(outGroup, eOut, []component.Component{
		{Type: component.TypeSwitch, Bool: true},
	}))
	assert.Empty(t, sink.updates)

	require.NoError(t, tr.WriteComponents(inGroup, eIn, []component.Component{
		{Type: component.TypeSwitch, Bool: true},
	}))
	require.Len(t, sink.updates, 1)
	assert.Equal(t, inGroup, sink.updates[0].DeviceID)
}

func TestMetadataWatcherEmitsSnapshotThenDeviceCreated(t *testing.T) {
	disp := dispatch.New()
	tr := newTestTree(disp)
	ext := tr.AttachExtension("ext-1", fakeWriter{}, 1000, 0)
	tr.CreateDevice(ext, "lamp")

	sink := &recordingSink{}
	w := NewMetadataWatcher(1, tr, disp.Index(), sink)
	disp.Register(w)

	require.Len(t, sink.updates, 1)
	assert.Equal(t, UpdateMetadataSnapshot, sink.updates[0].Kind)
	assert.Len(t, sink.updates[0].Snapshot.Devices, 1)

	tr.CreateDevice(ext, "switch")
	require.Len(t, sink.updates, 2)
	assert.Equal(t, UpdateMetadataDeviceCreated, sink.updates[1].Kind)
}

func TestGroupWatcherMembershipModeIgnoresRename(t *testing.T) {
	disp := dispatch.New()
	tr := newTestTree(disp)
	ext := tr.AttachExtension("ext-1", fakeWriter{}, 1000, 0)
	d1, _ := tr.CreateDevice(ext, "d1")
	g1, _ := tr.CreateGroup("g1")

	sink := &recordingSink{}
	w := NewGroupWatcher(1, disp.Index(), g1, WatchMembership, sink)
	disp.Register(w)

	require.NoError(t, tr.RenameGroup(g1, "renamed"))
	assert.Empty(t, sink.updates)

	require.NoError(t, tr.AddDeviceToGroup(g1, d1))
	require.Len(t, sink.updates, 1)
	assert.Equal(t, UpdateGroupMembership, sink.updates[0].Kind)
	assert.True(t, sink.updates[0].Attached)
}

func TestGroupWatcherNameModeIgnoresMembership(t *testing.T) {
	disp := dispatch.New()
	tr := newTestTree(disp)
	ext := tr.AttachExtension("ext-1", fakeWriter{}, 1000, 0)
	d1, _ := tr.CreateDevice(ext, "d1")
	g1, _ := tr.CreateGroup("g1")

	sink := &recordingSink{}
	w := NewGroupWatcher(1, disp.Index(), g1, WatchName, sink)
	disp.Register(w)

	require.NoError(t, tr.AddDeviceToGroup(g1, d1))
	assert.Empty(t, sink.updates)

	require.NoError(t, tr.RenameGroup(g1, "renamed"))
	require.Len(t, sink.updates, 1)
	assert.Equal(t, UpdateGroupName, sink.updates[0].Kind)
	assert.Equal(t, "renamed", sink.updates[0].GroupName)
}
