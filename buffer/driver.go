package buffer

// Driver parameterizes a connection over the concrete input/output buffer
// types it uses, per spec.md §4.1. Two drivers are provided: Simple (both
// sides are *Simple) and Heterogeneous (input is *Simple, output is
// OutputBuffer). conn.Conn is itself generic over In/Out and holds a Driver
// as a field, so read-buffer allocation/shrink and output-buffer recycling
// flow through whichever instantiation it is constructed with.
type Driver[In any, Out any] interface {
	AllocateInput(n int) In
	ReallocateInput(buf In, n int) In
	ReduceSizeInput(buf In, n int) In

	AllocateOutput(n int) Out
	ReallocateOutput(buf Out, n int) Out

	ConstSlice(Out) []byte
	MutableSlice(In) []byte
	Size(Out) int
}

// OutputDriver is the subset of Driver the write queue's
// concat_small_buffers needs; every Driver[In, Out] satisfies
// OutputDriver[Out] structurally, so conn.Conn passes its driver field
// straight through without a cast.
type OutputDriver[Out any] interface {
	AllocateOutput(n int) Out
	ReallocateOutput(buf Out, n int) Out
}

// SimpleDriver implements Driver with *Simple on both the input and the
// output side.
type SimpleDriver struct{}

func (SimpleDriver) AllocateInput(n int) *Simple { return NewSimple(n) }

func (SimpleDriver) ReallocateInput(buf *Simple, n int) *Simple {
	if buf == nil {
		return NewSimple(n)
	}
	buf.ResizeDropData(n)
	return buf
}

func (SimpleDriver) ReduceSizeInput(buf *Simple, n int) *Simple {
	if buf == nil {
		return NewSimple(n)
	}
	buf.Resize(n)
	return buf
}

func (SimpleDriver) AllocateOutput(n int) *Simple { return NewSimple(n) }

func (SimpleDriver) ReallocateOutput(buf *Simple, n int) *Simple {
	if buf != nil && buf.Cap() >= n {
		buf.ResizeDropData(n)
		return buf
	}
	return NewSimple(n)
}

func (SimpleDriver) ConstSlice(buf *Simple) []byte   { return buf.Bytes() }
func (SimpleDriver) MutableSlice(buf *Simple) []byte { return buf.Bytes() }
func (SimpleDriver) Size(buf *Simple) int            { return buf.Size() }

// HeterogeneousDriver implements Driver with *Simple input and
// OutputBuffer output. ReallocateOutput first tries to recycle an owned or
// uniquely-referenced shared buffer via ExtractSimple before falling back
// to a fresh allocation, per spec.md §4.1.
type HeterogeneousDriver struct{}

func (HeterogeneousDriver) AllocateInput(n int) *Simple { return NewSimple(n) }

func (HeterogeneousDriver) ReallocateInput(buf *Simple, n int) *Simple {
	if buf == nil {
		return NewSimple(n)
	}
	buf.ResizeDropData(n)
	return buf
}

func (HeterogeneousDriver) ReduceSizeInput(buf *Simple, n int) *Simple {
	if buf == nil {
		return NewSimple(n)
	}
	buf.Resize(n)
	return buf
}

func (HeterogeneousDriver) AllocateOutput(n int) OutputBuffer {
	return OwnedBuffer{Buf: NewSimple(n)}
}

func (HeterogeneousDriver) ReallocateOutput(buf OutputBuffer, n int) OutputBuffer {
	if buf != nil {
		if simple, ok := buf.ExtractSimple(); ok && simple.Cap() >= n {
			simple.ResizeDropData(n)
			return OwnedBuffer{Buf: simple}
		}
	}
	return OwnedBuffer{Buf: NewSimple(n)}
}

func (HeterogeneousDriver) ConstSlice(buf OutputBuffer) []byte { return buf.ConstBytes() }
func (HeterogeneousDriver) MutableSlice(buf *Simple) []byte    { return buf.Bytes() }
func (HeterogeneousDriver) Size(buf OutputBuffer) int          { return buf.Size() }
