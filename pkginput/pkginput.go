// Package pkginput implements the package input stream from spec.md §4.2:
// a bounded ring of appended read buffers exposing a read-once cursor
// compatible with a length-delimited, zero-copy message decoder, plus
// view_header/read_buffer/skip operations used by the protocol entry's
// parse loop.
package pkginput

import (
	"errors"

	"github.com/ngrodzitski/opnet/buffer"
	"github.com/ngrodzitski/opnet/header"
)

// DefaultRingSize is N from spec.md §3 ("ring of up to N=8 appended
// buffers; N configurable").
const DefaultRingSize = 8

// ErrNeedMore indicates the stream does not yet hold enough bytes to
// satisfy the request; the caller should wait for more input.
var ErrNeedMore = errors.New("pkginput: need more bytes")

// ErrUnderflow indicates a Skip/ReadBuffer asked for more bytes than the
// stream currently holds; this signals a caller bug, since entry code must
// size-check with total_size first.
var ErrUnderflow = errors.New("pkginput: requested more bytes than available")

// Stream is the ring of appended input buffers. The zero value is not
// usable; construct with New.
type Stream struct {
	bufs        []*buffer.Simple
	firstOffset int
	totalSize   int
	maxRing     int
}

// New constructs a Stream with the given ring size (DefaultRingSize is the
// spec default).
func New(ringSize int) *Stream {
	if ringSize <= 0 {
		ringSize = DefaultRingSize
	}
	return &Stream{maxRing: ringSize}
}

// TotalSize returns the number of unserved bytes currently buffered.
func (s *Stream) TotalSize() int { return s.totalSize }

// Append adds buf's bytes to the stream. When the ring is not full, buf is
// pushed as a new ring entry (zero copy). When the ring is full, buf's
// bytes are copied onto the tail buffer instead of growing the ring,
// bounding the ring's length at the cost of an extra copy, per spec.md
// §4.2.
func (s *Stream) Append(buf *buffer.Simple) {
	if buf == nil || buf.Size() == 0 {
		return
	}
	if len(s.bufs) < s.maxRing {
		s.bufs = append(s.bufs, buf)
		s.totalSize += buf.Size()
		return
	}
	tail := s.bufs[len(s.bufs)-1]
	oldSize := tail.Size()
	tail.Resize(oldSize + buf.Size())
	copy(tail.Bytes()[oldSize:], buf.Bytes())
	s.totalSize += buf.Size()
}

// ViewHeader decodes the 16-byte header at the front of the stream without
// consuming it. Its precondition is TotalSize() >= header.Size; callers
// should check that (or handle ErrNeedMore) before calling.
func (s *Stream) ViewHeader() (header.Header, error) {
	if s.totalSize < header.Size {
		return header.Header{}, ErrNeedMore
	}
	var tmp [header.Size]byte
	collected := 0
	idx := 0
	off := s.firstOffset
	for collected < header.Size {
		buf := s.bufs[idx]
		avail := buf.Size() - off
		n := avail
		if want := header.Size - collected; n > want {
			n = want
		}
		copy(tmp[collected:collected+n], buf.Bytes()[off:off+n])
		collected += n
		idx++
		off = 0
	}
	return header.Decode(tmp[:]), nil
}

// Skip advances the read cursor by exactly n bytes, dropping any buffer
// that becomes fully consumed from the head of the ring.
func (s *Stream) Skip(n int) error {
	if n < 0 {
		return ErrUnderflow
	}
	if n > s.totalSize {
		return ErrUnderflow
	}
	remaining := n
	for remaining > 0 {
		buf := s.bufs[0]
		avail := buf.Size() - s.firstOffset
		if avail <= remaining {
			remaining -= avail
			s.bufs = s.bufs[1:]
			s.firstOffset = 0
		} else {
			s.firstOffset += remaining
			remaining = 0
		}
	}
	s.totalSize -= n
	return nil
}

// ReadBuffer copies exactly len(dst) bytes into dst, crossing buffer
// boundaries as needed, and advances the read cursor by that amount.
func (s *Stream) ReadBuffer(dst []byte) error {
	n := len(dst)
	if n > s.totalSize {
		return ErrUnderflow
	}
	written := 0
	for written < n {
		buf := s.bufs[0]
		avail := buf.Size() - s.firstOffset
		want := n - written
		step := avail
		if step > want {
			step = want
		}
		copy(dst[written:written+step], buf.Bytes()[s.firstOffset:s.firstOffset+step])
		written += step
		if step == avail {
			s.bufs = s.bufs[1:]
			s.firstOffset = 0
		} else {
			s.firstOffset += step
		}
	}
	s.totalSize -= n
	return nil
}

// NewSource returns a zero-copy, read-only cursor bounded to at most
// maxLen bytes, starting at the stream's current read position. Reading
// through the Source never mutates the Stream's ring — entry.Entry is
// responsible for calling Skip/ReadBuffer afterward to actually remove the
// consumed frame. This mirrors spec.md §4.2's `byte_count`, which is
// explicitly distinct from total_size.
func (s *Stream) NewSource(maxLen int) *Source {
	return &Source{stream: s, bufIdx: 0, bufOff: s.firstOffset, remaining: maxLen}
}

// Source is the protobuf-decoder-compatible zero-copy adapter described in
// spec.md §4.2: Next/BackUp/SkipBytes/ByteCount. It satisfies the shape of
// a ZeroCopyInputStream so any generated parser (protobuf or otherwise) can
// be driven by it directly.
type Source struct {
	stream    *Stream
	bufIdx    int
	bufOff    int
	remaining int
	served    int
	byteCount int64
}

// Next serves the largest contiguous unserved segment available, always
// within a single physical buffer. A subsequent call to Next (without an
// intervening BackUp) implicitly commits the previously served segment.
// It returns (nil, false) once remaining reaches zero or the ring runs
// out of data.
func (src *Source) Next() ([]byte, bool) {
	if src.served > 0 {
		src.commit(src.served)
		src.served = 0
	}
	if src.remaining <= 0 {
		return nil, false
	}
	for {
		if src.bufIdx >= len(src.stream.bufs) {
			return nil, false
		}
		buf := src.stream.bufs[src.bufIdx]
		avail := buf.Size() - src.bufOff
		if avail <= 0 {
			src.bufIdx++
			src.bufOff = 0
			continue
		}
		n := avail
		if n > src.remaining {
			n = src.remaining
		}
		segment := buf.Bytes()[src.bufOff : src.bufOff+n]
		src.served = n
		return segment, true
	}
}

// BackUp undoes the last k bytes of the most recently served segment; k
// must be <= the length returned by the last Next call.
func (src *Source) BackUp(k int) {
	if k < 0 || k > src.served {
		k = src.served
	}
	src.served -= k
}

// SkipBytes drops n bytes from the current position, committing any
// pending served segment first. It returns false if fewer than n bytes
// were available to skip.
func (src *Source) SkipBytes(n int) bool {
	if src.served > 0 {
		src.commit(src.served)
		src.served = 0
	}
	if n > src.remaining {
		return false
	}
	toSkip := n
	for toSkip > 0 {
		if src.bufIdx >= len(src.stream.bufs) {
			return false
		}
		buf := src.stream.bufs[src.bufIdx]
		avail := buf.Size() - src.bufOff
		if avail <= 0 {
			src.bufIdx++
			src.bufOff = 0
			continue
		}
		step := avail
		if step > toSkip {
			step = toSkip
		}
		src.commit(step)
		toSkip -= step
	}
	return true
}

// ByteCount returns the cumulative number of bytes served by this Source,
// distinct from the owning Stream's TotalSize.
func (src *Source) ByteCount() int64 { return src.byteCount + int64(src.served) }

func (src *Source) commit(n int) {
	src.bufOff += n
	src.remaining -= n
	src.byteCount += int64(n)
}
