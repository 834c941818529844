// Package buffer implements the byte containers that flow through a
// connection's read and write paths: a plain owned byte vector (Simple) and
// a small sum type of output-side containers (OutputBuffer) that lets
// borrowed, owned, shared, and adjustable-on-read data travel through one
// write queue without an extra copy.
package buffer

// Simple is an owned byte vector whose logical size is tracked separately
// from the backing array's capacity, so a shrink can be undone without
// reallocating.
type Simple struct {
	data []byte
	size int
}

// NewSimple allocates a Simple buffer with the given logical size; its
// capacity may be larger.
func NewSimple(size int) *Simple {
	return &Simple{data: make([]byte, size), size: size}
}

// NewSimpleFromBytes wraps an existing slice as a Simple buffer, taking
// ownership of it.
func NewSimpleFromBytes(b []byte) *Simple {
	return &Simple{data: b, size: len(b)}
}

// Bytes returns the logical content as a slice aliasing the backing array.
func (s *Simple) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.data[:s.size]
}

// Size returns the logical size.
func (s *Simple) Size() int {
	if s == nil {
		return 0
	}
	return s.size
}

// ConstBytes mirrors Bytes, so *Simple satisfies the same const-view method
// sequence's write queue calls on every OutputBuffer variant: SimpleDriver
// is Driver[*Simple, *Simple], so the queue needs this from *Simple too.
func (s *Simple) ConstBytes() []byte { return s.Bytes() }

// MutableBytes mirrors Bytes, always succeeding: a *Simple is always
// uniquely owned, unlike a SharedBuffer with more than one reference.
func (s *Simple) MutableBytes() ([]byte, bool) { return s.Bytes(), true }

// Cap returns the capacity of the backing array.
func (s *Simple) Cap() int {
	if s == nil {
		return 0
	}
	return cap(s.data)
}

// Empty reports whether the buffer carries no bytes.
//
// The original C++ source inverts this predicate (`0 != size`); spec.md §9
// flags it as likely a bug, so this port implements the corrected version.
func (s *Simple) Empty() bool {
	return s.Size() == 0
}

// Resize changes the logical size to n, preserving the first
// min(n, old_size) bytes and growing the backing array if necessary.
func (s *Simple) Resize(n int) {
	if n <= cap(s.data) {
		s.data = s.data[:cap(s.data)]
		s.size = n
		return
	}
	grown := make([]byte, n)
	copy(grown, s.data[:s.size])
	s.data = grown
	s.size = n
}

// ResizeDropData changes the logical size to n without preserving any
// prior content; it reallocates only if the current capacity is
// insufficient.
func (s *Simple) ResizeDropData(n int) {
	if n <= cap(s.data) {
		s.data = s.data[:cap(s.data)]
		s.size = n
		return
	}
	s.data = make([]byte, n)
	s.size = n
}

// Take moves the contents of s out, leaving s at {size:0, cap:0} as the
// source-side state after a move in spec.md §3.
func (s *Simple) Take() *Simple {
	out := &Simple{data: s.data, size: s.size}
	s.data = nil
	s.size = 0
	return out
}
