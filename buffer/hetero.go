package buffer

import "sync"

// OutputBuffer is the heterogeneous output-side container from spec.md §3
// ("HeterogeneousBuffer"). Go does not need an inline-storage tagged union
// to avoid allocating a box per variant (the garbage collector already
// erases that concern — see SPEC_FULL.md §9), so the sum type is realized
// directly as an interface with four implementations.
type OutputBuffer interface {
	// ConstBytes returns a read-only view of the buffer's content. It never
	// fails.
	ConstBytes() []byte
	// Size returns len(ConstBytes()).
	Size() int
	// MutableBytes returns a writable view, or (nil, false) when the
	// variant cannot offer one (ConstSlice, and a Shared buffer with more
	// than one reference).
	MutableBytes() ([]byte, bool)
	// ExtractSimple reports whether this variant is, or uniquely owns, a
	// *Simple buffer, returning it so a caller (typically
	// reallocate_output) can recycle the backing array instead of
	// allocating fresh.
	ExtractSimple() (*Simple, bool)
}

// ConstSliceBuffer borrows a byte slice without taking ownership of it; the
// caller must keep the backing array alive for as long as the buffer is
// queued.
type ConstSliceBuffer struct {
	Data []byte
}

func (b ConstSliceBuffer) ConstBytes() []byte { return b.Data }
func (b ConstSliceBuffer) Size() int          { return len(b.Data) }
func (b ConstSliceBuffer) MutableBytes() ([]byte, bool) {
	return nil, false
}
func (b ConstSliceBuffer) ExtractSimple() (*Simple, bool) { return nil, false }

// OwnedBuffer wraps a uniquely-owned *Simple buffer.
type OwnedBuffer struct {
	Buf *Simple
}

func (b OwnedBuffer) ConstBytes() []byte { return b.Buf.Bytes() }
func (b OwnedBuffer) Size() int          { return b.Buf.Size() }
func (b OwnedBuffer) MutableBytes() ([]byte, bool) {
	return b.Buf.Bytes(), true
}
func (b OwnedBuffer) ExtractSimple() (*Simple, bool) { return b.Buf, true }

// SharedBuffer wraps a reference-counted *Simple buffer so several queue
// entries (e.g. a multicast-style fan-out of the same attached binary) can
// share one allocation. The write queue never calls Release on a queued
// handle, not even after its sequence completes; only the handle's owner
// drops a reference, by calling Release.
type SharedBuffer struct {
	shared *sharedSimple
}

type sharedSimple struct {
	mu   sync.Mutex
	refs int
	buf  *Simple
}

// NewShared creates a new shared buffer with one reference.
func NewShared(buf *Simple) SharedBuffer {
	return SharedBuffer{shared: &sharedSimple{refs: 1, buf: buf}}
}

// Clone returns a new handle to the same underlying data, incrementing the
// reference count.
func (b SharedBuffer) Clone() SharedBuffer {
	b.shared.mu.Lock()
	b.shared.refs++
	b.shared.mu.Unlock()
	return b
}

// Release drops this handle's reference; it is safe to call at most once
// per handle returned by NewShared/Clone.
func (b SharedBuffer) Release() {
	b.shared.mu.Lock()
	b.shared.refs--
	b.shared.mu.Unlock()
}

func (b SharedBuffer) refCount() int {
	b.shared.mu.Lock()
	defer b.shared.mu.Unlock()
	return b.shared.refs
}

func (b SharedBuffer) ConstBytes() []byte { return b.shared.buf.Bytes() }
func (b SharedBuffer) Size() int          { return b.shared.buf.Size() }
func (b SharedBuffer) MutableBytes() ([]byte, bool) {
	if b.refCount() > 1 {
		return nil, false
	}
	return b.shared.buf.Bytes(), true
}
func (b SharedBuffer) ExtractSimple() (*Simple, bool) {
	if b.refCount() > 1 {
		return nil, false
	}
	return b.shared.buf, true
}

// Adjuster rewrites a buffer's bytes the moment they are about to be read
// off the queue (e.g. to patch in a length field computed only once the
// rest of a batch is known).
type Adjuster func(data []byte)

// AdjustableBuffer wraps a *Simple buffer plus a function invoked exactly
// once, right before the bytes are handed to the writer.
type AdjustableBuffer struct {
	Buf      *Simple
	Adjust   Adjuster
	adjusted bool
}

// NewAdjustable creates an AdjustableBuffer. Adjust runs lazily, the first
// time ConstBytes or MutableBytes is called.
func NewAdjustable(buf *Simple, adjust Adjuster) *AdjustableBuffer {
	return &AdjustableBuffer{Buf: buf, Adjust: adjust}
}

func (b *AdjustableBuffer) runAdjust() {
	if !b.adjusted && b.Adjust != nil {
		b.Adjust(b.Buf.Bytes())
		b.adjusted = true
	}
}

func (b *AdjustableBuffer) ConstBytes() []byte {
	b.runAdjust()
	return b.Buf.Bytes()
}
func (b *AdjustableBuffer) Size() int { return b.Buf.Size() }
func (b *AdjustableBuffer) MutableBytes() ([]byte, bool) {
	b.runAdjust()
	return b.Buf.Bytes(), true
}
func (b *AdjustableBuffer) ExtractSimple() (*Simple, bool) {
	b.runAdjust()
	return b.Buf, true
}
