package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hubd/component"
	"hubd/dispatch"
	"hubd/tree"
)

func newTestTree() *tree.Tree {
	return tree.New(dispatch.New(), noopPersister{})
}

type noopPersister struct{}

func (noopPersister) PersistDevices(tree.DeviceSnapshot) error { return nil }
func (noopPersister) PersistGroups(tree.GroupSnapshot) error   { return nil }

type fakeWriter struct{}

func (fakeWriter) WriteFrame([]byte) error { return nil }

func TestIterDevicesExactIDDriver(t *testing.T) {
	tr := newTestTree()
	extIdx := tr.AttachExtension("ext-1", fakeWriter{}, 1000, 0)
	d1, _ := tr.CreateDevice(extIdx, "d1")
	tr.CreateDevice(extIdx, "d2")

	f := &DeviceFilter{ID: &IDFilter{Is: d1}}
	var got []tree.DeviceID
	IterDevices(tr, f, func(id tree.DeviceID, d *tree.Device) bool {
		got = append(got, id)
		return true
	})
	assert.Equal(t, []tree.DeviceID{d1}, got)
}

func TestIterDevicesOwnerDriver(t *testing.T) {
	tr := newTestTree()
	ext1 := tr.AttachExtension("ext-1", fakeWriter{}, 1000, 0)
	ext2 := tr.AttachExtension("ext-2", fakeWriter{}, 1000, 0)
	d1, _ := tr.CreateDevice(ext1, "d1")
	tr.CreateDevice(ext2, "d2")

	f := &DeviceFilter{Owner: &OwnerFilter{Is: "ext-1"}}
	var got []tree.DeviceID
	IterDevices(tr, f, func(id tree.DeviceID, d *tree.Device) bool {
		got = append(got, id)
		return true
	})
	assert.Equal(t, []tree.DeviceID{d1}, got)
}

func TestIterDevicesGroupAllIntersection(t *testing.T) {
	tr := newTestTree()
	ext := tr.AttachExtension("ext-1", fakeWriter{}, 1000, 0)
	d1, _ := tr.CreateDevice(ext, "d1")
	d2, _ := tr.CreateDevice(ext, "d2")
	g1, _ := tr.CreateGroup("g1")
	g2, _ := tr.CreateGroup("g2")

	require.NoError(t, tr.AddDeviceToGroup(g1, d1))
	require.NoError(t, tr.AddDeviceToGroup(g2, d1))
	require.NoError(t, tr.AddDeviceToGroup(g1, d2))

	gm := NewGroupInAll([]tree.GroupID{g1, g2})
	f := &DeviceFilter{Group: &gm}
	var got []tree.DeviceID
	IterDevices(tr, f, func(id tree.DeviceID, d *tree.Device) bool {
		got = append(got, id)
		return true
	})
	assert.Equal(t, []tree.DeviceID{d1}, got)
}

func TestIterDevicesFallbackScanWithEntityCount(t *testing.T) {
	tr := newTestTree()
	ext := tr.AttachExtension("ext-1", fakeWriter{}, 1000, 0)
	d1, _ := tr.CreateDevice(ext, "lamp")
	tr.RegisterEntity(d1, "main", 0)
	d2, _ := tr.CreateDevice(ext, "switch")

	f := &DeviceFilter{HasEntityCount: true, MinEntityCount: 1}
	var got []tree.DeviceID
	IterDevices(tr, f, func(id tree.DeviceID, d *tree.Device) bool {
		got = append(got, id)
		return true
	})
	assert.Equal(t, []tree.DeviceID{d1}, got)
	assert.NotContains(t, got, d2)
}

func TestDeviceFilterNotAndOr(t *testing.T) {
	tr := newTestTree()
	ext := tr.AttachExtension("ext-1", fakeWriter{}, 1000, 0)
	d1, _ := tr.CreateDevice(ext, "d1")
	dev, _ := tr.GetDevice(d1)

	byOwner := &DeviceFilter{Owner: &OwnerFilter{Is: "ext-1"}}
	not := &DeviceFilter{Not: byOwner}
	assert.False(t, not.Matches(d1, dev))

	other := &DeviceFilter{Owner: &OwnerFilter{Is: "ext-2"}}
	or := &DeviceFilter{Or: []*DeviceFilter{other, byOwner}}
	assert.True(t, or.Matches(d1, dev))
}

func TestIterEntitiesUsesInvertedIndex(t *testing.T) {
	tr := newTestTree()
	ext := tr.AttachExtension("ext-1", fakeWriter{}, 1000, 0)
	d1, _ := tr.CreateDevice(ext, "lamp")
	e1, _ := tr.RegisterEntity(d1, "bulb", 0)
	tr.RegisterEntity(d1, "sensor", 1)

	require.NoError(t, tr.WriteComponents(d1, e1, []component.Component{
		{Type: component.TypeSwitch, Bool: true},
	}))

	dev, _ := tr.GetDevice(d1)
	ef := &EntityFilter{HasComp: true, CompType: component.TypeSwitch}
	var got []tree.EntityIndex
	IterEntities(dev, ef, func(idx tree.EntityIndex, e *tree.Entity) bool {
		got = append(got, idx)
		return true
	})
	assert.Equal(t, []tree.EntityIndex{e1}, got)
}
