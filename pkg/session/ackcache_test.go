package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onboardlink/sdk/pkg/arena"
)

func TestAckCacheReplaysOnExactMatch(t *testing.T) {
	c := NewAckCache()
	c.Store(5, arena.ExtentID(7), 42, nil)

	ext, ok := c.Lookup(5, 42)
	require.True(t, ok)
	require.Equal(t, arena.ExtentID(7), ext)
}

func TestAckCacheMissesOnDifferentSequence(t *testing.T) {
	c := NewAckCache()
	c.Store(5, arena.ExtentID(7), 42, nil)

	_, ok := c.Lookup(5, 43)
	require.False(t, ok)
}

func TestAckCacheSupersedesPreviousExtent(t *testing.T) {
	c := NewAckCache()
	var freed []arena.ExtentID
	free := func(id arena.ExtentID) { freed = append(freed, id) }

	c.Store(5, arena.ExtentID(1), 1, free)
	c.Store(5, arena.ExtentID(2), 2, free)

	require.Equal(t, []arena.ExtentID{1}, freed)
	ext, ok := c.Lookup(5, 2)
	require.True(t, ok)
	require.Equal(t, arena.ExtentID(2), ext)
}

func TestAckCacheClearFreesExtent(t *testing.T) {
	c := NewAckCache()
	var freed []arena.ExtentID
	c.Store(5, arena.ExtentID(9), 1, nil)
	c.Clear(5, func(id arena.ExtentID) { freed = append(freed, id) })

	require.Equal(t, []arena.ExtentID{9}, freed)
	_, ok := c.Lookup(5, 1)
	require.False(t, ok)
}
