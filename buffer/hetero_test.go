package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstSliceBuffer(t *testing.T) {
	b := ConstSliceBuffer{Data: []byte("abc")}
	require.Equal(t, 3, b.Size())
	_, ok := b.MutableBytes()
	require.False(t, ok)
	_, ok = b.ExtractSimple()
	require.False(t, ok)
}

func TestOwnedBufferExtract(t *testing.T) {
	s := NewSimpleFromBytes([]byte("owned"))
	b := OwnedBuffer{Buf: s}
	got, ok := b.ExtractSimple()
	require.True(t, ok)
	require.Same(t, s, got)
}

func TestSharedBufferRefCountGatesMutability(t *testing.T) {
	s := NewSimpleFromBytes([]byte("shared"))
	h1 := NewShared(s)
	h2 := h1.Clone()

	_, ok := h1.MutableBytes()
	require.False(t, ok, "shared buffer with >1 ref must not be mutable")

	h2.Release()
	_, ok = h1.MutableBytes()
	require.True(t, ok, "sole remaining reference should be mutable")

	_, ok = h1.ExtractSimple()
	require.True(t, ok)
}

func TestAdjustableBufferRunsOnce(t *testing.T) {
	s := NewSimpleFromBytes([]byte{0, 0, 0, 0})
	calls := 0
	b := NewAdjustable(s, func(data []byte) {
		calls++
		data[0] = 0xFF
	})

	require.Equal(t, byte(0xFF), b.ConstBytes()[0])
	_, _ = b.MutableBytes()
	require.Equal(t, 1, calls, "adjuster must run exactly once")
}
