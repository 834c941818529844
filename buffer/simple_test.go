package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSimpleEmpty(t *testing.T) {
	s := NewSimple(0)
	require.True(t, s.Empty())

	s2 := NewSimple(4)
	require.False(t, s2.Empty())
}

func TestSimpleResizePreservesPrefix(t *testing.T) {
	s := NewSimpleFromBytes([]byte("hello"))
	s.Resize(3)
	require.Equal(t, []byte("hel"), s.Bytes())

	s.Resize(5)
	require.Equal(t, 5, s.Size())
	require.Equal(t, []byte("hel"), s.Bytes()[:3])
}

func TestSimpleResizeDropData(t *testing.T) {
	s := NewSimpleFromBytes([]byte("hello"))
	s.ResizeDropData(2)
	require.Equal(t, 2, s.Size())
}

func TestSimpleTakeLeavesSourceEmpty(t *testing.T) {
	s := NewSimpleFromBytes([]byte("data"))
	moved := s.Take()

	require.Equal(t, []byte("data"), moved.Bytes())
	require.Equal(t, 0, s.Size())
	require.Equal(t, 0, s.Cap())
	require.True(t, s.Empty())
}

func TestSimpleGrowReallocates(t *testing.T) {
	s := NewSimple(2)
	oldCap := s.Cap()
	s.Resize(oldCap + 100)
	require.Equal(t, oldCap+100, s.Size())
	require.GreaterOrEqual(t, s.Cap(), oldCap+100)
}
