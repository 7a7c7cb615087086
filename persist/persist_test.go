package persist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hubd/dispatch"
	"hubd/tree"
)

type fakeWriter struct{}

func (fakeWriter) WriteFrame([]byte) error { return nil }

func TestLoadWithNothingOnDiskReportsNotOK(t *testing.T) {
	s := NewStore(t.TempDir())
	_, _, ok, err := s.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPersistDevicesThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	disp := dispatch.New()
	tr := tree.New(disp, s)
	ext := tr.AttachExtension("ext-1", fakeWriter{}, 63, 0)
	d1, err := tr.CreateDevice(ext, "lamp")
	require.NoError(t, err)
	_, err = tr.RegisterEntity(d1, "bulb", 0)
	require.NoError(t, err)
	g1, err := tr.CreateGroup("kitchen")
	require.NoError(t, err)
	require.NoError(t, tr.AddDeviceToGroup(g1, d1))

	devs, groups, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, devs.Devices, 1)
	assert.Equal(t, "lamp", devs.Devices[0].Name)
	require.Len(t, devs.Devices[0].Entities, 1)
	assert.Equal(t, "bulb", devs.Devices[0].Entities[0].Name)
	require.Len(t, groups.Groups, 1)
	assert.Equal(t, "kitchen", groups.Groups[0].Name)
}

func TestRestorePreservesOriginalHandles(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	disp1 := dispatch.New()
	tr1 := tree.New(disp1, s)
	ext := tr1.AttachExtension("ext-1", fakeWriter{}, 63, 0)
	d1, err := tr1.CreateDevice(ext, "lamp")
	require.NoError(t, err)

	disp2 := dispatch.New()
	tr2 := tree.New(disp2, s)
	require.NoError(t, Restore(tr2, s))

	restored, err := tr2.GetDevice(d1)
	require.NoError(t, err)
	assert.Equal(t, "lamp", restored.Name)
}

func TestRestoreWithNoPersistedStateIsNoop(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	disp := dispatch.New()
	tr := tree.New(disp, s)

	require.NoError(t, Restore(tr, s))

	n := 0
	tr.IterDevices(func(tree.DeviceID, *tree.Device) { n++ })
	assert.Zero(t, n)
}

func TestWriteAtomicIsCrashSafeAcrossOverwrites(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	disp := dispatch.New()
	tr := tree.New(disp, s)
	ext := tr.AttachExtension("ext-1", fakeWriter{}, 63, 0)

	tr.CreateDevice(ext, "d1")
	tr.CreateDevice(ext, "d2")

	devs, _, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, devs.Devices, 2)
}
