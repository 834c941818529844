package conn

import "github.com/ngrodzitski/opnet/buffer"

// MaxIOV is the maximum number of buffers in one WritableSequence,
// spec.md §3's "typically 16, always ≤ platform iov max, ≥ 16 and even".
const MaxIOV = 16

// ConcatMax is the default CONCAT_MAX from spec.md §4.3.1: the running-sum
// threshold under which concat_small_buffers fuses consecutive buffers
// into a single allocation.
const ConcatMax = 16 * 1024

// sequenceBuf is the subset of an output buffer the write queue itself
// needs. buffer.OutputBuffer satisfies it (HeterogeneousDriver's Out), and
// so does *buffer.Simple (SimpleDriver's Out), so sequence and Conn can
// share one implementation across both driver instantiations instead of
// special-casing either.
type sequenceBuf interface {
	ConstBytes() []byte
	MutableBytes() ([]byte, bool)
	Size() int
}

// sequence is one WritableSequence: up to MaxIOV buffers consumed by a
// single scatter write, plus the completion callbacks attached to the
// batch as a whole.
type sequence[Out sequenceBuf] struct {
	bufs      []Out
	callbacks []SendCallback

	// finished guards against finishSequence (the async-write completion
	// path) and onWriteTimeout (the watchdog-fire path) both running this
	// sequence's callbacks: there is no happens-before edge between a
	// socket-write syscall returning and a timer firing, so only the first
	// of the two to observe finished=false may proceed. Set/checked while
	// the owning Conn's locker is held.
	finished bool
}

func newSequence[Out sequenceBuf]() *sequence[Out] {
	return &sequence[Out]{}
}

func (s *sequence[Out]) full() bool {
	return len(s.bufs) >= MaxIOV
}

func (s *sequence[Out]) empty() bool {
	return len(s.bufs) == 0
}

func (s *sequence[Out]) append(buf Out) {
	s.bufs = append(s.bufs, buf)
}

func (s *sequence[Out]) addCallback(cb SendCallback) {
	if cb != nil {
		s.callbacks = append(s.callbacks, cb)
	}
}

func (s *sequence[Out]) size() int {
	total := 0
	for _, b := range s.bufs {
		total += b.Size()
	}
	return total
}

// iovecs returns a scatter-write view of this sequence's buffers. The
// returned slices alias the buffers' own storage; truncating
// vecs[0] (as tailIovec does) never mutates the buffer pool itself, only
// the borrowed view, per spec.md §4.3.2.
func (s *sequence[Out]) iovecs() [][]byte {
	vecs := make([][]byte, len(s.bufs))
	for i, b := range s.bufs {
		vecs[i] = b.ConstBytes()
	}
	return vecs
}

// runCallbacks invokes every completion callback attached to this sequence
// with result, then clears them so they are not invoked twice.
func (s *sequence[Out]) runCallbacks(result SendResult) {
	for _, cb := range s.callbacks {
		cb(result)
	}
	s.callbacks = nil
}

// concatSmallBuffers fuses consecutive buffers whose running sum is <=
// concatMax into one buffer, freeing iovec slots, per spec.md §3/§4.3.1.
// The merged buffer is built via driver, per spec.md §4.1: reallocate_output
// is tried first against the run's leading buffer so an owned (or
// uniquely-referenced shared) *Simple's backing array is recycled instead
// of allocating fresh; allocate_output is the fallback when that variant
// declines (borrowed data, or a still-shared buffer).
func (s *sequence[Out]) concatSmallBuffers(driver buffer.OutputDriver[Out], concatMax int) {
	if len(s.bufs) < 2 {
		return
	}
	out := make([]Out, 0, len(s.bufs))
	i := 0
	for i < len(s.bufs) {
		sum := s.bufs[i].Size()
		j := i + 1
		for j < len(s.bufs) && sum+s.bufs[j].Size() <= concatMax {
			sum += s.bufs[j].Size()
			j++
		}
		if j-i > 1 {
			// Snapshot every source slice before reallocating: when
			// ReallocateOutput recycles s.bufs[i]'s own backing array,
			// s.bufs[i].ConstBytes() would otherwise observe the buffer's
			// post-recycle (grown) size instead of its original content.
			srcs := make([][]byte, j-i)
			for k := i; k < j; k++ {
				srcs[k-i] = s.bufs[k].ConstBytes()
			}
			merged := driver.ReallocateOutput(s.bufs[i], sum)
			dst, ok := merged.MutableBytes()
			if !ok {
				merged = driver.AllocateOutput(sum)
				dst, _ = merged.MutableBytes()
			}
			off := 0
			for _, src := range srcs {
				off += copy(dst[off:], src)
			}
			out = append(out, merged)
		} else {
			out = append(out, s.bufs[i])
		}
		i = j
	}
	s.bufs = out
}

// tailIovec computes the remaining scatter-write view after k bytes have
// already been transferred: whole leading buffers whose cumulative size
// <= k are dropped, and the first remaining buffer is resliced in place.
func tailIovec(vecs [][]byte, k int) [][]byte {
	for len(vecs) > 0 && k > 0 {
		if len(vecs[0]) <= k {
			k -= len(vecs[0])
			vecs = vecs[1:]
		} else {
			vecs[0] = vecs[0][k:]
			k = 0
		}
	}
	return vecs
}
