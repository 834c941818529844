package conn

import "sync"

// Locker is the pluggable mutex trait spec.md §4.3.1/§9 requires for the
// "aggressive dispatch" fast path: a foreign goroutine may enqueue bytes
// and, while no write is in flight, skip the round trip through the
// connection's loop goroutine entirely. The same Locker also guards the
// write queue's normal mutation path, so the two can never race.
type Locker interface {
	Lock()
	Unlock()
}

// noopLocker is a Locker whose Lock/Unlock do nothing. Per spec.md §9's
// Open Question, when the configured Locker is noop, aggressive dispatch
// degrades to the normal post-to-loop path rather than risk an
// unsynchronized queue mutation.
type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

// NoopLocker is the sentinel Locker that disables the aggressive-dispatch
// fast path.
var NoopLocker Locker = noopLocker{}

func isNoopLocker(l Locker) bool {
	_, ok := l.(noopLocker)
	return ok
}

// NewMutexLocker returns a real, cross-goroutine-safe Locker backed by
// sync.Mutex — the default used when no Locker is configured.
func NewMutexLocker() Locker {
	return &sync.Mutex{}
}
