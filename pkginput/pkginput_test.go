package pkginput

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ngrodzitski/opnet/buffer"
	"github.com/ngrodzitski/opnet/header"
)

func appendBytes(t *testing.T, s *Stream, b []byte) {
	t.Helper()
	s.Append(buffer.NewSimpleFromBytes(append([]byte(nil), b...)))
}

func TestAppendAndViewHeaderAcrossBoundaries(t *testing.T) {
	s := New(DefaultRingSize)
	hdr := header.NewFrame(header.Header{PkgContentType: header.Message, HeaderSizeDwords: 4, ContentSize: 3})
	// split the 16-byte header across three appended chunks.
	appendBytes(t, s, hdr[:5])
	appendBytes(t, s, hdr[5:11])
	appendBytes(t, s, hdr[11:])
	appendBytes(t, s, []byte("abc"))

	require.Equal(t, 19, s.TotalSize())
	got, err := s.ViewHeader()
	require.NoError(t, err)
	require.Equal(t, header.Message, got.PkgContentType)
	require.Equal(t, uint32(3), got.ContentSize)
}

func TestViewHeaderNeedsMore(t *testing.T) {
	s := New(DefaultRingSize)
	appendBytes(t, s, []byte("short"))
	_, err := s.ViewHeader()
	require.ErrorIs(t, err, ErrNeedMore)
}

func TestSkipDropsExhaustedBuffers(t *testing.T) {
	s := New(DefaultRingSize)
	appendBytes(t, s, []byte("hello"))
	appendBytes(t, s, []byte("world"))
	require.NoError(t, s.Skip(7))
	require.Equal(t, 3, s.TotalSize())

	dst := make([]byte, 3)
	require.NoError(t, s.ReadBuffer(dst))
	require.Equal(t, "rld", string(dst))
	require.Equal(t, 0, s.TotalSize())
}

func TestSkipRejectsUnderflow(t *testing.T) {
	s := New(DefaultRingSize)
	appendBytes(t, s, []byte("ab"))
	require.ErrorIs(t, s.Skip(10), ErrUnderflow)
}

func TestRingCoalescesWhenFull(t *testing.T) {
	s := New(2)
	appendBytes(t, s, []byte("aa"))
	appendBytes(t, s, []byte("bb"))
	appendBytes(t, s, []byte("cc")) // ring full: coalesced onto tail, not a 3rd entry

	require.Len(t, s.bufs, 2)
	require.Equal(t, 6, s.TotalSize())
	dst := make([]byte, 6)
	require.NoError(t, s.ReadBuffer(dst))
	require.Equal(t, "aabbcc", string(dst))
}

func TestSourceServesOneSegmentAtATimeAndCommitsOnNextNext(t *testing.T) {
	s := New(DefaultRingSize)
	appendBytes(t, s, []byte("abc"))
	appendBytes(t, s, []byte("defg"))

	src := s.NewSource(7)
	seg1, ok := src.Next()
	require.True(t, ok)
	require.Equal(t, "abc", string(seg1))

	seg2, ok := src.Next()
	require.True(t, ok)
	require.Equal(t, "defg", string(seg2))

	_, ok = src.Next()
	require.False(t, ok)
	require.Equal(t, int64(7), src.ByteCount())

	// reading via Source never mutates the stream's own cursor.
	require.Equal(t, 7, s.TotalSize())
}

func TestSourceBackUp(t *testing.T) {
	s := New(DefaultRingSize)
	appendBytes(t, s, []byte("abcdef"))

	src := s.NewSource(6)
	seg, ok := src.Next()
	require.True(t, ok)
	require.Equal(t, "abcdef", string(seg))

	src.BackUp(2)
	seg2, ok := src.Next()
	require.True(t, ok)
	require.Equal(t, "ef", string(seg2))
	require.Equal(t, int64(6), src.ByteCount())
}

func TestSourceSkipBytes(t *testing.T) {
	s := New(DefaultRingSize)
	appendBytes(t, s, []byte("abcdef"))

	src := s.NewSource(6)
	require.True(t, src.SkipBytes(3))
	seg, ok := src.Next()
	require.True(t, ok)
	require.Equal(t, "def", string(seg))

	require.False(t, src.SkipBytes(10))
}

func TestReSegmentationInvariance(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")

	readAll := func(chunkSize int) string {
		s := New(DefaultRingSize)
		for i := 0; i < len(payload); i += chunkSize {
			end := i + chunkSize
			if end > len(payload) {
				end = len(payload)
			}
			appendBytes(t, s, payload[i:end])
		}
		out := make([]byte, len(payload))
		require.NoError(t, s.ReadBuffer(out))
		return string(out)
	}

	want := readAll(1)
	require.Equal(t, string(payload), want)
	require.Equal(t, want, readAll(3))
	require.Equal(t, want, readAll(len(payload)))
}
