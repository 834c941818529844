// Package conn implements the single-connection write-queue/read-loop
// engine described by spec.md §3/§4: one cooperative "strand" per TCP
// connection realized as a command-processing goroutine, a parallel
// blocking-read goroutine, and a pluggable-locked write queue that lets a
// foreign goroutine skip straight to the socket when nothing is in flight.
package conn

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/sagernet/sing/common/bufio"
	"github.com/sirupsen/logrus"

	"github.com/ngrodzitski/opnet/buffer"
	"github.com/ngrodzitski/opnet/tcpnet"
	"github.com/ngrodzitski/opnet/watchdog"
)

// OutputBuffer is a local alias for buffer.OutputBuffer so a Conn
// instantiated with it (the common case) reads without a second import
// alias at every call site.
type OutputBuffer = buffer.OutputBuffer

// HeterogeneousConn is the connection instantiation product code uses:
// input reads into *buffer.Simple, output flows through the OutputBuffer
// sum type. Construct it with New[*buffer.Simple, OutputBuffer] and a
// buffer.HeterogeneousDriver.
type HeterogeneousConn = Conn[*buffer.Simple, OutputBuffer]

// SimpleConn is the connection instantiation backed entirely by
// *buffer.Simple on both sides, via buffer.SimpleDriver — for protocols
// that never need OutputBuffer's borrowed/shared/adjustable variants.
type SimpleConn = Conn[*buffer.Simple, *buffer.Simple]

// ShutdownReason enumerates why a Conn tore itself down, spec.md §3's
// DestructionReason generalized to the connection layer (the entry layer
// adds its own protocol-level reasons on top, see entry.ShutdownReason).
type ShutdownReason int

const (
	ShutdownUserInitiated ShutdownReason = iota
	ShutdownIOError
	ShutdownEOF
	ShutdownWriteTimeout
)

func (r ShutdownReason) String() string {
	switch r {
	case ShutdownUserInitiated:
		return "user-initiated"
	case ShutdownIOError:
		return "io-error"
	case ShutdownEOF:
		return "eof"
	case ShutdownWriteTimeout:
		return "write-timeout"
	default:
		return "unknown"
	}
}

// SendResult is spec.md §3's SendResult: the outcome reported to a
// completion callback attached via ScheduleSendWithCallback.
type SendResult int

const (
	SendSuccess SendResult = iota
	SendIOError
	SendDidntSend
	SendRejectedScheduleSend
)

func (r SendResult) String() string {
	switch r {
	case SendSuccess:
		return "success"
	case SendIOError:
		return "io-error"
	case SendDidntSend:
		return "didnt-send"
	case SendRejectedScheduleSend:
		return "rejected-schedule-send"
	default:
		return "unknown"
	}
}

// SendCallback is invoked, at most once, with the final outcome of a
// scheduled send.
type SendCallback func(SendResult)

// ZeroCopySource is the subset of pkginput.Source the conn layer depends
// on; declared locally so this package does not import pkginput (the entry
// layer owns the Stream/Source and receives bytes through its InputHandler).
type ZeroCopySource interface {
	Next() ([]byte, bool)
	BackUp(int)
	SkipBytes(int) bool
	ByteCount() int64
}

// InputHandler is invoked once per successful read, with the raw bytes
// just read off the socket; the entry layer is the canonical consumer,
// appending them to its pkginput.Stream and running its parse loop. The
// returned nextReadSize is spec.md §4.3.3's "next_read_buffer" hint: a
// positive value resizes the buffer used for the following Read, zero
// keeps the current size unchanged.
type InputHandler[In any, Out sequenceBuf] func(c *Conn[In, Out], data []byte) (nextReadSize int)

// ShutdownHandler is invoked exactly once when a Conn tears down.
type ShutdownHandler[In any, Out sequenceBuf] func(c *Conn[In, Out], reason ShutdownReason, err error)

// Conn is spec.md §3's Connection: one TCP socket, one write queue of
// WritableSequences, one watchdog, wrapped in a single-goroutine command
// loop so every mutation of connection state (other than the
// Locker-guarded queue itself) is race-free by construction. It is
// generic over buffer.Driver[In, Out], per spec.md §4.1: the read path
// allocates/shrinks/reallocates its receive buffer through the driver, and
// the write path's concat_small_buffers recycles output buffers through
// it, so either of the package's two driver instantiations (Simple,
// Heterogeneous) can supply the concrete In/Out types.
type Conn[In any, Out sequenceBuf] struct {
	ID     uuid.UUID
	socket net.Conn
	cfg    Config
	stats  Stats
	locker Locker
	log    *logrus.Entry

	driver buffer.Driver[In, Out]

	inputHandler    InputHandler[In, Out]
	shutdownHandler ShutdownHandler[In, Out]

	cmds chan func(*Conn[In, Out])
	done chan struct{}

	wd *watchdog.Watchdog

	// queue state; mutated only while locker is held.
	queue         []*sequence[Out]
	writeInFlight bool

	readEnabled  bool
	readStarted  bool
	shutdownOnce sync.Once
	shutdownErr  error
	closed       chan struct{}
}

// New constructs a Conn over an already-connected socket, backed by
// driver. Reading does not start until StartReading is called.
func New[In any, Out sequenceBuf](socket net.Conn, cfg Config, stats Stats, locker Locker, log *logrus.Entry, driver buffer.Driver[In, Out], inputHandler InputHandler[In, Out], shutdownHandler ShutdownHandler[In, Out]) *Conn[In, Out] {
	if stats == nil {
		stats = NoopStats{}
	}
	if locker == nil {
		locker = NewMutexLocker()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Conn[In, Out]{
		ID:              uuid.New(),
		socket:          socket,
		cfg:             cfg,
		stats:           stats,
		locker:          locker,
		log:             log.WithField("conn_id", "pending"),
		driver:          driver,
		inputHandler:    inputHandler,
		shutdownHandler: shutdownHandler,
		cmds:            make(chan func(*Conn[In, Out]), 64),
		done:            make(chan struct{}),
		closed:          make(chan struct{}),
	}
	c.log = log.WithField("conn_id", c.ID.String())
	c.wd = watchdog.New()
	go c.loop()
	return c
}

// loop is the connection's single command-processing goroutine: every
// state mutation outside the write queue happens here, so callers never
// need their own locking for anything but the queue itself.
func (c *Conn[In, Out]) loop() {
	for {
		select {
		case cmd := <-c.cmds:
			cmd(c)
		case <-c.done:
			return
		}
	}
}

// RunOnLoop serializes fn onto the connection's command-processing
// goroutine — the same goroutine InputHandler calls and write-completion
// bookkeeping run on. Collaborators layered on top of Conn (the entry
// protocol layer) use this to keep their own state race-free without a
// second lock.
func (c *Conn[In, Out]) RunOnLoop(fn func()) {
	c.post(func(*Conn[In, Out]) { fn() })
}

func (c *Conn[In, Out]) post(cmd func(*Conn[In, Out])) {
	select {
	case c.cmds <- cmd:
	case <-c.done:
	}
}

// StartReading spawns the blocking-read goroutine. Idempotent.
func (c *Conn[In, Out]) StartReading() {
	c.post(func(c *Conn[In, Out]) {
		if c.readStarted {
			return
		}
		c.readStarted = true
		c.readEnabled = true
		go c.readLoop()
	})
}

// StopReading disables delivery of further InputHandler calls; in-flight
// reads already blocked in the kernel still complete, but their bytes are
// discarded instead of dispatched.
func (c *Conn[In, Out]) StopReading() {
	c.post(func(c *Conn[In, Out]) {
		c.readEnabled = false
	})
}

// UpdateSocketOptions applies opts to the underlying socket, spec.md §5's
// update_socket_options connection operation. Like every other operation
// exposed here, it is posted onto the loop goroutine rather than applied
// inline, so a caller on a foreign goroutine never races the read/write
// loops over the socket handle. Non-TCP sockets (e.g. a test pipe) make
// this a no-op.
func (c *Conn[In, Out]) UpdateSocketOptions(opts tcpnet.SocketOptions) {
	c.post(func(c *Conn[In, Out]) {
		tcpConn, ok := c.socket.(*net.TCPConn)
		if !ok {
			return
		}
		if err := tcpnet.ApplySocketOptions(tcpConn, opts); err != nil {
			c.log.WithError(err).Warn("update socket options")
		}
	})
}

// maxReadBufferSize is the adaptive-sizing ceiling from spec.md §4.6.1:
// the next-read-buffer hint never grows the buffer past 32 MiB.
const maxReadBufferSize = 32 * 1024 * 1024

// readLoop is the connection's blocking-read goroutine. rx is the
// connection-owned receive buffer the socket reads into directly; it is
// never itself handed to inputHandler (the entry layer retains whatever it
// is given for the lifetime of a frame, so rx must stay safe to reuse for
// the next Read). Per spec.md §4.1/§4.3.3, every resize of rx flows
// through the driver: reduce_size_input shrinks it, capacity preserved,
// when a read returns fewer bytes than requested, and reallocate_input
// resets it to the next read's size (recycling rx's capacity when it
// already satisfies the request). The delivered copy is a fresh
// allocate_input of exactly n bytes.
func (c *Conn[In, Out]) readLoop() {
	size := c.cfg.InputBufferSize
	rx := c.driver.AllocateInput(size)
	for {
		mut := c.driver.MutableSlice(rx)
		n, err := c.socket.Read(mut)
		if n > 0 {
			if n < len(mut) {
				rx = c.driver.ReduceSizeInput(rx, n)
			}
			deliver := c.driver.AllocateInput(n)
			copy(c.driver.MutableSlice(deliver), c.driver.MutableSlice(rx))
			data := c.driver.MutableSlice(deliver)

			type result struct {
				enabled bool
				next    int
			}
			res := make(chan result, 1)
			c.post(func(c *Conn[In, Out]) {
				if !c.readEnabled || c.inputHandler == nil {
					res <- result{enabled: c.readEnabled}
					return
				}
				c.stats.AddBytesRxSync(len(data))
				next := c.inputHandler(c, data)
				res <- result{enabled: true, next: next}
			})
			r := <-res
			if !r.enabled {
				continue
			}
			next := size
			if r.next > 0 {
				next = r.next
				if next > maxReadBufferSize {
					next = maxReadBufferSize
				}
			}
			size = next
			rx = c.driver.ReallocateInput(rx, size)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.Shutdown(ShutdownEOF, nil)
			} else {
				select {
				case <-c.done:
				default:
					c.Shutdown(ShutdownIOError, err)
				}
			}
			return
		}
	}
}

// ScheduleSend enqueues a buffer for writing with no completion callback.
func (c *Conn[In, Out]) ScheduleSend(bufs ...Out) {
	c.ScheduleSendWithCallback(nil, bufs...)
}

// ScheduleSendWithCallback enqueues bufs as (part of) a WritableSequence,
// invoking cb exactly once with the eventual outcome. It always goes
// through the loop goroutine; use ScheduleSendAggressiveDispatch to skip
// that hop when nothing is in flight.
func (c *Conn[In, Out]) ScheduleSendWithCallback(cb SendCallback, bufs ...Out) {
	c.post(func(c *Conn[In, Out]) {
		if c.shutdownErrSet() {
			if cb != nil {
				cb(SendRejectedScheduleSend)
			}
			return
		}
		c.locker.Lock()
		c.appendToQueueLocked(bufs, cb)
		startNeeded := !c.writeInFlight
		c.locker.Unlock()
		if startNeeded {
			// Run off the command loop so a slow write never delays
			// processing of other queued commands (StartReading, further
			// ScheduleSend calls, ...).
			go c.startWrite()
		}
	})
}

// ScheduleSendAggressiveDispatch implements spec.md §4.3.1/§9's fast path:
// a foreign goroutine may append directly to the queue and, if nothing is
// in flight, start the write itself, entirely skipping the command-loop
// round trip — but only when a real Locker is configured. With
// NoopLocker, it degrades to the safe ScheduleSendWithCallback path, per
// the spec's Open Question resolution recorded in SPEC_FULL.md.
func (c *Conn[In, Out]) ScheduleSendAggressiveDispatch(cb SendCallback, bufs ...Out) {
	if isNoopLocker(c.locker) {
		c.ScheduleSendWithCallback(cb, bufs...)
		return
	}
	c.locker.Lock()
	if c.shutdownErrSet() {
		c.locker.Unlock()
		if cb != nil {
			cb(SendRejectedScheduleSend)
		}
		return
	}
	c.appendToQueueLocked(bufs, cb)
	startNeeded := !c.writeInFlight
	c.locker.Unlock()
	if startNeeded {
		c.startWrite()
	}
}

func (c *Conn[In, Out]) shutdownErrSet() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// appendToQueueLocked appends each buffer to the tail sequence, opening a
// new sequence whenever the tail is full, attaches cb to the tail, and then
// runs concatSmallBuffers on the tail. Caller must hold c.locker.
func (c *Conn[In, Out]) appendToQueueLocked(bufs []Out, cb SendCallback) {
	for _, b := range bufs {
		var tail *sequence[Out]
		if len(c.queue) > 0 {
			tail = c.queue[len(c.queue)-1]
		}
		if tail == nil || tail.full() {
			tail = newSequence[Out]()
			c.queue = append(c.queue, tail)
		}
		tail.append(b)
	}
	if cb != nil && len(c.queue) > 0 {
		c.queue[len(c.queue)-1].addCallback(cb)
	}
	if len(c.queue) > 0 {
		c.queue[len(c.queue)-1].concatSmallBuffers(c.driver, ConcatMax)
	}
}

// freezeHeadLocked removes and returns the queue's head sequence, leaving
// the rest of the queue for the next startWrite. Caller must hold c.locker.
func (c *Conn[In, Out]) freezeHeadLocked() *sequence[Out] {
	if len(c.queue) == 0 {
		return nil
	}
	head := c.queue[0]
	c.queue = c.queue[1:]
	return head
}

// startWrite begins draining the queue: one head sequence at a time,
// first via a single non-blocking syscall attempt (the
// QuickSyncWriteHeuristic fast path), falling back to the async scatter
// writer when that would block or the batch is large.
func (c *Conn[In, Out]) startWrite() {
	c.locker.Lock()
	if c.writeInFlight {
		c.locker.Unlock()
		return
	}
	head := c.freezeHeadLocked()
	if head == nil {
		c.locker.Unlock()
		return
	}
	c.writeInFlight = true
	c.locker.Unlock()

	c.driveSequence(head)
}

// driveSequence writes one sequence to completion (including partial
// writes and the async fallback), then either starts the next queued
// sequence or clears writeInFlight.
func (c *Conn[In, Out]) driveSequence(seq *sequence[Out]) {
	size := seq.size()
	wdKey := c.wd.StartWatch(c.cfg.MakeWriteTimeoutPerBuffer(size), func(key watchdog.Key) {
		c.post(func(c *Conn[In, Out]) {
			if c.wd.IsCurrent(key) {
				c.onWriteTimeout(seq)
			}
		})
	})

	vecs := seq.iovecs()
	total := 0
	for _, v := range vecs {
		total += len(v)
	}

	if total <= QuickSyncWriteHeuristic {
		n, wouldBlock, err := trySyncWriteVecs(c.socket, vecs)
		if err != nil {
			c.finishSequence(seq, wdKey, SendIOError, err)
			return
		}
		if !wouldBlock {
			c.stats.AddBytesTxSync(n)
			if n >= total {
				c.finishSequence(seq, wdKey, SendSuccess, nil)
				return
			}
			vecs = tailIovec(vecs, n)
		} else {
			c.stats.IncWouldBlock()
		}
	}

	c.asyncWrite(seq, vecs, wdKey)
}

// asyncWrite drains the remainder of a sequence via sagernet/sing's
// vectorised writer (falling back to plain net.Conn.Write when the
// platform offers no vectorised path), the same approach the teacher's
// sendLoop uses for its own scatter-gather frames.
func (c *Conn[In, Out]) asyncWrite(seq *sequence[Out], vecs [][]byte, wdKey watchdog.Key) {
	if bw, ok := bufio.CreateVectorisedWriter(c.socket); ok {
		n, err := bufio.WriteVectorised(bw, vecs)
		if err != nil {
			c.finishSequence(seq, wdKey, SendIOError, err)
			return
		}
		c.stats.AddBytesTxAsync(n)
		c.finishSequence(seq, wdKey, SendSuccess, nil)
		return
	}

	written := 0
	for _, v := range vecs {
		n, err := c.socket.Write(v)
		written += n
		if err != nil {
			c.stats.AddBytesTxAsync(written)
			c.finishSequence(seq, wdKey, SendIOError, err)
			return
		}
	}
	c.stats.AddBytesTxAsync(written)
	c.finishSequence(seq, wdKey, SendSuccess, nil)
}

// markFinished reports whether this is the first call to reach a terminal
// state for seq. finishSequence (the async-write completion path, which
// can run on an arbitrary goroutine) and onWriteTimeout (dispatched onto
// the loop goroutine when the watchdog fires) race to get here with no
// happens-before edge between a socket-write syscall returning and a timer
// firing, so only the winner may run seq's callbacks.
func (c *Conn[In, Out]) markFinished(seq *sequence[Out]) bool {
	c.locker.Lock()
	defer c.locker.Unlock()
	if seq.finished {
		return false
	}
	seq.finished = true
	return true
}

func (c *Conn[In, Out]) finishSequence(seq *sequence[Out], wdKey watchdog.Key, result SendResult, err error) {
	c.wd.CancelWatch()
	if c.markFinished(seq) {
		seq.runCallbacks(result)
	}

	if result == SendIOError {
		c.post(func(c *Conn[In, Out]) {
			c.locker.Lock()
			c.writeInFlight = false
			c.locker.Unlock()
		})
		c.Shutdown(ShutdownIOError, err)
		return
	}

	c.post(func(c *Conn[In, Out]) {
		c.locker.Lock()
		c.writeInFlight = false
		c.locker.Unlock()
		go c.startWrite()
	})
}

func (c *Conn[In, Out]) onWriteTimeout(seq *sequence[Out]) {
	c.log.Warn("write timed out")
	c.locker.Lock()
	c.writeInFlight = false
	c.locker.Unlock()
	if c.markFinished(seq) {
		seq.runCallbacks(SendIOError)
	}
	c.Shutdown(ShutdownWriteTimeout, errors.New("write timeout"))
}

// Shutdown tears the connection down exactly once, draining any queued
// sequences' callbacks with SendDidntSend and invoking the configured
// ShutdownHandler, per spec.md §3's destruction-order rules.
func (c *Conn[In, Out]) Shutdown(reason ShutdownReason, err error) {
	c.shutdownOnce.Do(func() {
		c.shutdownErr = err
		close(c.done)
		c.wd.CancelWatch()
		_ = c.socket.Close()

		c.locker.Lock()
		pending := c.queue
		c.queue = nil
		c.locker.Unlock()
		for _, seq := range pending {
			seq.runCallbacks(SendDidntSend)
		}

		if c.shutdownHandler != nil {
			c.shutdownHandler(c, reason, err)
		}
		close(c.closed)
	})
}

// Closed returns a channel closed once Shutdown has fully run.
func (c *Conn[In, Out]) Closed() <-chan struct{} {
	return c.closed
}

// Err returns the error Shutdown was called with, if any. It is only
// meaningful after Closed() has fired.
func (c *Conn[In, Out]) Err() error {
	return c.shutdownErr
}

// RemoteAddr exposes the underlying socket's remote address.
func (c *Conn[In, Out]) RemoteAddr() net.Addr { return c.socket.RemoteAddr() }

// LocalAddr exposes the underlying socket's local address.
func (c *Conn[In, Out]) LocalAddr() net.Addr { return c.socket.LocalAddr() }
