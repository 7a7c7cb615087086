package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hubd/component"
)

type recordingDispatcher struct {
	events []Event
}

func (r *recordingDispatcher) Dispatch(ev Event) {
	r.events = append(r.events, ev)
}

type noopPersister struct{}

func (noopPersister) PersistDevices(DeviceSnapshot) error { return nil }
func (noopPersister) PersistGroups(GroupSnapshot) error   { return nil }

func newTestTree() (*Tree, *recordingDispatcher) {
	disp := &recordingDispatcher{}
	return New(disp, noopPersister{}), disp
}

type fakeWriter struct{ blocked bool }

func (w *fakeWriter) WriteFrame(p []byte) error {
	if w.blocked {
		return assertErrWouldBlock
	}
	return nil
}

var assertErrWouldBlock = assertErr("would block")

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestAttachCreateRegisterWrite(t *testing.T) {
	tr, disp := newTestTree()

	extIdx := tr.AttachExtension("ext-1", &fakeWriter{}, 1000, 0)
	devID, err := tr.CreateDevice(extIdx, "lamp")
	require.NoError(t, err)

	entIdx, err := tr.RegisterEntity(devID, "main", 0)
	require.NoError(t, err)

	err = tr.WriteComponents(devID, entIdx, []component.Component{
		{Type: component.TypeSwitch, Bool: true},
	})
	require.NoError(t, err)

	d, err := tr.GetDevice(devID)
	require.NoError(t, err)
	assert.True(t, d.Presence.Has(component.TypeSwitch))
	assert.Contains(t, d.CompToEntity(component.TypeSwitch), entIdx)

	var kinds []EventKind
	for _, ev := range disp.events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, EventComponentPut)
}

func TestPutThenSetDoesNotDuplicateIndex(t *testing.T) {
	tr, _ := newTestTree()
	extIdx := tr.AttachExtension("ext-1", &fakeWriter{}, 1000, 0)
	devID, _ := tr.CreateDevice(extIdx, "lamp")
	entIdx, _ := tr.RegisterEntity(devID, "main", 0)

	require.NoError(t, tr.WriteComponents(devID, entIdx, []component.Component{
		{Type: component.TypeDimmer, Real: 0.1},
	}))
	require.NoError(t, tr.WriteComponents(devID, entIdx, []component.Component{
		{Type: component.TypeDimmer, Real: 0.5},
	}))

	d, _ := tr.GetDevice(devID)
	assert.Len(t, d.CompToEntity(component.TypeDimmer), 1, "set must not append to the inverted index again")

	off, present := d.Entities[entIdx].IndexOf(component.TypeDimmer)
	require.True(t, present)
	assert.Equal(t, float64(0.5), d.Entities[entIdx].Components[off].Real)
}

func TestWriteComponentPastMSICRejected(t *testing.T) {
	tr, _ := newTestTree()
	extIdx := tr.AttachExtension("ext-1", &fakeWriter{}, uint16(component.TypeSwitch)-1, 0)
	devID, _ := tr.CreateDevice(extIdx, "lamp")
	entIdx, _ := tr.RegisterEntity(devID, "main", 0)

	err := tr.WriteComponents(devID, entIdx, []component.Component{
		{Type: component.TypeSwitch, Bool: true},
	})
	require.Error(t, err)

	d, _ := tr.GetDevice(devID)
	assert.False(t, d.Presence.Has(component.TypeSwitch), "rejected batch must not mutate")
}

func TestRegisterEntityMismatchAndDuplicate(t *testing.T) {
	tr, _ := newTestTree()
	extIdx := tr.AttachExtension("ext-1", &fakeWriter{}, 1000, 0)
	devID, _ := tr.CreateDevice(extIdx, "lamp")

	_, err := tr.RegisterEntity(devID, "main", 1)
	require.Error(t, err, "expected_index must equal current entity count")

	_, err = tr.RegisterEntity(devID, "main", 0)
	require.NoError(t, err)

	_, err = tr.RegisterEntity(devID, "main", 1)
	require.Error(t, err, "duplicate entity name is a protocol error")
}

func TestGroupDeviceMirrorInvariant(t *testing.T) {
	tr, _ := newTestTree()
	extIdx := tr.AttachExtension("ext-1", &fakeWriter{}, 1000, 0)
	d1, _ := tr.CreateDevice(extIdx, "d1")
	d2, _ := tr.CreateDevice(extIdx, "d2")
	g, _ := tr.CreateGroup("g1")

	require.NoError(t, tr.AddDeviceToGroup(g, d1))
	require.NoError(t, tr.AddDeviceToGroup(g, d2))

	grp, _ := tr.GetGroup(g)
	dev1, _ := tr.GetDevice(d1)
	_, inGroup := dev1.Groups[g]
	_, inDevices := grp.Devices[d1]
	assert.True(t, inGroup)
	assert.True(t, inDevices)

	require.NoError(t, tr.RemoveDeviceFromGroup(g, d1))
	_, inGroup = dev1.Groups[g]
	_, inDevices = grp.Devices[d1]
	assert.False(t, inGroup)
	assert.False(t, inDevices)
}

func TestDeleteDeviceClearsMirrors(t *testing.T) {
	tr, _ := newTestTree()
	extIdx := tr.AttachExtension("ext-1", &fakeWriter{}, 1000, 0)
	d1, _ := tr.CreateDevice(extIdx, "d1")
	g, _ := tr.CreateGroup("g1")
	require.NoError(t, tr.AddDeviceToGroup(g, d1))

	require.NoError(t, tr.DeleteDevice(d1))

	_, err := tr.GetDevice(d1)
	assert.Error(t, err, "stale handle must miss after delete")

	grp, _ := tr.GetGroup(g)
	assert.NotContains(t, grp.Devices, d1)

	ext, _ := tr.GetExtension(extIdx)
	assert.NotContains(t, ext.Devices, d1)
}

func TestDetachClearsOwnerRefNotOwner(t *testing.T) {
	tr, _ := newTestTree()
	extIdx := tr.AttachExtension("ext-1", &fakeWriter{}, 1000, 0)
	d1, _ := tr.CreateDevice(extIdx, "d1")

	require.NoError(t, tr.DetachExtension(extIdx))

	dev, err := tr.GetDevice(d1)
	require.NoError(t, err, "device itself is not removed on detach")
	assert.Nil(t, dev.OwnerRef)
	assert.Equal(t, ExtensionID("ext-1"), dev.Owner)
}

func TestRestoreStableHandles(t *testing.T) {
	tr, _ := newTestTree()
	extIdx := tr.AttachExtension("ext-1", &fakeWriter{}, 1000, 0)
	d1, _ := tr.CreateDevice(extIdx, "d1")
	g1, _ := tr.CreateGroup("g1")
	require.NoError(t, tr.AddDeviceToGroup(g1, d1))

	devSnap := tr.Snapshot()
	groupSnap := tr.GroupSnapshotNow()

	restored, _ := newTestTree()
	require.NoError(t, restored.Restore(devSnap, groupSnap))

	d, err := restored.GetDevice(d1)
	require.NoError(t, err)
	assert.Equal(t, "d1", d.Name)

	g, err := restored.GetGroup(g1)
	require.NoError(t, err)
	assert.Contains(t, g.Devices, d1)
}
