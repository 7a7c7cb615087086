package subscriber

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hubd/component"
	"hubd/tree"
)

func dev(i uint32) tree.DeviceID { return tree.DeviceID{Index: i} }
func grp(i uint32) tree.GroupID  { return tree.GroupID{Index: i} }

func TestAffectedComponentSetExactAddressOnly(t *testing.T) {
	idx := New()
	idx.SubscribeComponentSet(1, dev(10), 0, component.TypeSwitch)
	idx.SubscribeComponentSet(2, dev(10), 1, component.TypeSwitch)

	got := idx.AffectedComponentSet(dev(10), 0, component.TypeSwitch)
	assert.ElementsMatch(t, []WatcherID{1}, got)

	assert.Empty(t, idx.AffectedComponentSet(dev(10), 0, component.TypeDimmer))
}

func TestAffectedComponentPutCombinesAllGranularities(t *testing.T) {
	idx := New()
	idx.SubscribeComponentPutAll(1)
	idx.SubscribeComponentPutByType(2, component.TypeSwitch)
	idx.SubscribeComponentPutByDevice(3, dev(10))
	idx.SubscribeComponentPutByDeviceType(4, dev(10), component.TypeSwitch)
	idx.SubscribeComponentPutByEntity(5, dev(10), 0)
	idx.SubscribeComponentPutByEntityType(6, dev(10), 0, component.TypeSwitch)

	got := idx.AffectedComponentPut(dev(10), 0, component.TypeSwitch)
	assert.ElementsMatch(t, []WatcherID{1, 2, 3, 4, 5, 6}, got)

	// A different device should not pick up the device/entity-scoped ones.
	got2 := idx.AffectedComponentPut(dev(11), 0, component.TypeSwitch)
	assert.ElementsMatch(t, []WatcherID{1, 2}, got2)
}

func TestAffectedDeviceCreatedAllPlusByID(t *testing.T) {
	idx := New()
	idx.SubscribeDeviceCreatedAll(1)
	idx.SubscribeDeviceCreatedByID(2, dev(10))

	assert.ElementsMatch(t, []WatcherID{1, 2}, idx.AffectedDeviceCreated(dev(10)))
	assert.ElementsMatch(t, []WatcherID{1}, idx.AffectedDeviceCreated(dev(11)))
}

func TestAffectedGroupDeviceAddedNestedBucket(t *testing.T) {
	idx := New()
	idx.SubscribeGroupDeviceAddedAll(1)
	idx.SubscribeGroupDeviceAddedByGroup(2, grp(100))
	idx.SubscribeGroupDeviceAddedByGroupDevice(3, grp(100), dev(10))

	assert.ElementsMatch(t, []WatcherID{1, 2, 3}, idx.AffectedGroupDeviceAdded(grp(100), dev(10)))
	assert.ElementsMatch(t, []WatcherID{1, 2}, idx.AffectedGroupDeviceAdded(grp(100), dev(11)))
	assert.ElementsMatch(t, []WatcherID{1}, idx.AffectedGroupDeviceAdded(grp(101), dev(10)))
}

func TestAffectedExtAttachedAllPlusByID(t *testing.T) {
	idx := New()
	idx.SubscribeExtAttachedAll(1)
	idx.SubscribeExtAttachedByID(2, "ext-a")

	got := idx.AffectedExtAttached("ext-a")
	assert.ElementsMatch(t, []WatcherID{1, 2}, got)

	got2 := idx.AffectedExtAttached("ext-b")
	assert.ElementsMatch(t, []WatcherID{1}, got2)
}

func TestUnsubscribeRetractsEveryFamily(t *testing.T) {
	idx := New()
	idx.SubscribeDeviceCreatedAll(1)
	idx.SubscribeComponentPutByDevice(1, dev(10))
	idx.SubscribeComponentSet(1, dev(10), 0, component.TypeSwitch)
	idx.SubscribeGroupDeviceAddedByGroupDevice(1, grp(100), dev(10))

	idx.Unsubscribe(1)

	assert.Empty(t, idx.AffectedDeviceCreated(dev(0)))
	assert.Empty(t, idx.AffectedComponentPut(dev(10), 0, component.TypeSwitch))
	assert.Empty(t, idx.AffectedComponentSet(dev(10), 0, component.TypeSwitch))
	assert.Empty(t, idx.AffectedGroupDeviceAdded(grp(100), dev(10)))
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	idx := New()
	idx.SubscribeDeviceCreatedAll(1)
	idx.Unsubscribe(1)
	assert.NotPanics(t, func() { idx.Unsubscribe(1) })
}
