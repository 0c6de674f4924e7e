package network

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nullbyte-dev/rudt/protocol"
)

func TestLossListInsertOrdersByDistance(t *testing.T) {
	l := newLossList()
	require.True(t, l.Insert(10))
	require.True(t, l.Insert(3))
	require.True(t, l.Insert(7))
	require.False(t, l.Insert(3)) // duplicate

	require.Equal(t, []protocol.Sequence{3, 7, 10}, l.Snapshot())
}

func TestLossListPopMinDrainsInOrder(t *testing.T) {
	l := newLossList()
	l.Insert(20)
	l.Insert(5)
	l.Insert(15)

	s1, ok := l.PopMin()
	require.True(t, ok)
	require.Equal(t, protocol.Sequence(5), s1)

	s2, ok := l.PopMin()
	require.True(t, ok)
	require.Equal(t, protocol.Sequence(15), s2)

	s3, ok := l.PopMin()
	require.True(t, ok)
	require.Equal(t, protocol.Sequence(20), s3)

	_, ok = l.PopMin()
	require.False(t, ok)
}

func TestLossListRemove(t *testing.T) {
	l := newLossList()
	l.Insert(1)
	l.Insert(2)

	require.True(t, l.Remove(1))
	require.False(t, l.Remove(1))
	require.True(t, l.Contains(2))
	require.Equal(t, 1, l.Len())
}

func TestLossListRemoveRange(t *testing.T) {
	l := newLossList()
	for _, s := range []protocol.Sequence{1, 2, 3, 4, 5} {
		l.Insert(s)
	}
	l.RemoveRange(2, 4)
	require.Equal(t, []protocol.Sequence{1, 5}, l.Snapshot())
}

func TestLossListHandlesWrapAround(t *testing.T) {
	l := newLossList()
	near := protocol.Sequence(protocol.SequenceMask - 1)
	l.Insert(near)
	l.Insert(near.Next())
	l.Insert(near.Next().Next())

	require.Equal(t, []protocol.Sequence{near, near.Next(), near.Next().Next()}, l.Snapshot())
}
