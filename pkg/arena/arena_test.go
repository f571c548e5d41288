package arena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocFreeBasic(t *testing.T) {
	a := New(1024, DefaultTableSize)
	id, err := a.Alloc(100)
	require.NoError(t, err)
	require.Equal(t, 100, a.LiveSize())

	b, err := a.Bytes(id)
	require.NoError(t, err)
	require.Len(t, b, 100)

	require.NoError(t, a.Free(id))
	require.Equal(t, 0, a.LiveSize())
}

func TestAllocRejectsOversized(t *testing.T) {
	a := New(1024, DefaultTableSize)
	_, err := a.Alloc(2000)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestAllocOutOfMemory(t *testing.T) {
	a := New(100, DefaultTableSize)
	_, err := a.Alloc(60)
	require.NoError(t, err)
	_, err = a.Alloc(60)
	require.ErrorIs(t, err, ErrOutOfMemory)
}

func TestSentinelsAreNotFreeable(t *testing.T) {
	a := New(1024, DefaultTableSize)
	require.NoError(t, a.Free(ExtentID(0)))
	require.NoError(t, a.Free(ExtentID(DefaultTableSize-1)))
}

// TestAllocReusesFreedGapAfterFragmentation follows spec scenario §8.6:
// allocate A (500B), B (400B), C (100B); free A; request 500B must
// succeed. In this 1000-byte arena the gap A leaves behind fits the
// request exactly, so best-fit places it there without compacting B and C.
func TestAllocReusesFreedGapAfterFragmentation(t *testing.T) {
	a := New(1000, DefaultTableSize)

	idA, err := a.Alloc(500)
	require.NoError(t, err)
	idB, err := a.Alloc(400)
	require.NoError(t, err)
	idC, err := a.Alloc(100)
	require.NoError(t, err)

	require.NoError(t, a.Free(idA))

	idD, err := a.Alloc(500)
	require.NoError(t, err, "the 500-byte gap left by A should take the request")

	bB, err := a.Bytes(idB)
	require.NoError(t, err)
	require.Len(t, bB, 400)
	bC, err := a.Bytes(idC)
	require.NoError(t, err)
	require.Len(t, bC, 100)
	bD, err := a.Bytes(idD)
	require.NoError(t, err)
	require.Len(t, bD, 500)

	require.Equal(t, 1000, a.LiveSize())
}

func TestCompactionPreservesBytes(t *testing.T) {
	a := New(300, DefaultTableSize)
	idA, err := a.Alloc(100)
	require.NoError(t, err)
	_, _ = a.Bytes(idA)

	idB, err := a.Alloc(100)
	require.NoError(t, err)
	bB, _ := a.Bytes(idB)
	for i := range bB {
		bB[i] = byte(200 + i)
	}

	require.NoError(t, a.Free(idA))
	// Remaining gaps (sentinel..B, B..sentinel) are 100 each; neither fits
	// 150 bytes alone, but the cumulative free space (200) does, forcing
	// compaction of B leftward before the new extent is placed.
	_, err = a.Alloc(150)
	require.NoError(t, err)

	bB, err = a.Bytes(idB)
	require.NoError(t, err)
	for i := range bB {
		require.Equal(t, byte(200+i), bB[i])
	}
}

func TestBestFitPicksSmallestAdequateGap(t *testing.T) {
	a := New(1000, DefaultTableSize)

	idA, err := a.Alloc(100)
	require.NoError(t, err)
	idB, err := a.Alloc(100)
	require.NoError(t, err)
	idC, err := a.Alloc(100)
	require.NoError(t, err)

	require.NoError(t, a.Free(idB))
	_, err = a.Alloc(700)
	require.NoError(t, err)

	_, err = a.Bytes(idA)
	require.NoError(t, err)
	_, err = a.Bytes(idC)
	require.NoError(t, err)
}
