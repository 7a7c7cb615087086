package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerationSoundness(t *testing.T) {
	a := New(0)

	id1 := a.Insert("v1")
	removed := a.Remove(id1)
	require.Equal(t, "v1", removed)

	id2 := a.Insert("v2")

	assert.NotEqual(t, id1, id2, "reused slot must mint a new generation")
	assert.Nil(t, a.Get(id1), "stale handle must miss")
	assert.Equal(t, "v2", a.Get(id2))
}

func TestInsertAtRoundTrip(t *testing.T) {
	a := New(0)

	ids := []ID{
		{Index: 5, Generation: 2},
		{Index: 1, Generation: 0},
		{Index: 9, Generation: 7},
	}
	for i, id := range ids {
		require.NoError(t, a.InsertAt(id, i))
	}
	for i, id := range ids {
		assert.Equal(t, i, a.Get(id))
	}

	err := a.InsertAt(ids[0], "collide")
	require.Error(t, err)
	var occErr *SlotOccupiedError
	require.ErrorAs(t, err, &occErr)
	assert.Equal(t, ids[0], occErr.Tried)
}

func TestInsertGrowsAndReusesFreeList(t *testing.T) {
	a := New(0)

	var ids []ID
	for i := 0; i < 5; i++ {
		ids = append(ids, a.Insert(i))
	}
	assert.Equal(t, 5, a.Len())

	a.Remove(ids[2])
	assert.Equal(t, 4, a.Len())

	id := a.Insert("reused")
	assert.Equal(t, uint32(2), id.Index, "free list should hand back the most recently freed slot")
	assert.Equal(t, 5, a.Len())
}

func TestWithMaxIndexPreallocatesFreeList(t *testing.T) {
	a := WithMaxIndex(3, 0)
	assert.Equal(t, 0, a.Len())

	for i := 0; i < 4; i++ {
		a.Insert(i)
	}
	assert.Equal(t, 4, a.Len())
}

func TestCorruptFreeListSelfHeals(t *testing.T) {
	a := New(0)
	id := a.Insert("a")

	// Simulate a bug-induced inconsistency: the free-list head points at
	// an occupied slot. insert must rebuild the list rather than corrupt
	// state further.
	a.freeListHead = 0
	a.items[0].occupied = true
	_ = id

	newID := a.Insert("b")
	assert.NotNil(t, a.Get(newID))
}

func TestIterOccupiedOnly(t *testing.T) {
	a := New(0)
	id1 := a.Insert("a")
	a.Insert("b")
	a.Remove(id1)

	var got []interface{}
	a.Iter(func(id ID, v interface{}) {
		got = append(got, v)
	})
	assert.Equal(t, []interface{}{"b"}, got)
}
