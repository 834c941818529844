// Package entry implements the protocol entry from spec.md §4.6: a
// framing-aware wrapper around a conn.Conn that parses the package
// header, dispatches message payloads to a consumer, and drives the
// heartbeat liveness protocol. Grounded on
// original_source/proto_entry/include/opio/proto_entry/entry_base.hpp,
// with dispatch-by-tag styled after SagerNet-smux's hdr.Cmd() switch in
// recvLoop.
package entry

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ngrodzitski/opnet/buffer"
	"github.com/ngrodzitski/opnet/conn"
	"github.com/ngrodzitski/opnet/header"
	"github.com/ngrodzitski/opnet/message"
	"github.com/ngrodzitski/opnet/pkginput"
	"github.com/ngrodzitski/opnet/watchdog"
)

// Entry is spec.md §3's Entry: a conn.Conn plus a PackageInput stream, a
// heartbeat state machine, and message dispatch by content_specific_value
// tag.
type Entry struct {
	ID   uuid.UUID
	Conn *conn.HeterogeneousConn

	cfg      Config
	stream   *pkginput.Stream
	registry *message.Registry
	consumer message.Consumer
	msgStats MessageStats
	log      *logrus.Entry

	shutdownHandler ShutdownHandler
	shutdownOnce    sync.Once
	active          atomic.Bool

	defaultReadSize int
	readSize        int

	lastInputAt        time.Time
	heartbeatSentCount int
	hbWD               *watchdog.Watchdog
}

// New constructs an Entry around an already-connected socket, starts
// reading immediately, and schedules the first heartbeat check, per
// spec.md §4.6.1.
func New(socket net.Conn, cfg Config, connCfg conn.Config, registry *message.Registry, consumer message.Consumer, connStats conn.Stats, msgStats MessageStats, log *logrus.Entry, shutdownHandler ShutdownHandler) *Entry {
	if msgStats == nil {
		msgStats = NoopMessageStats{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if registry == nil {
		registry = message.NewRegistry()
	}

	e := &Entry{
		ID:              uuid.New(),
		cfg:             cfg,
		stream:          pkginput.New(pkginput.DefaultRingSize),
		registry:        registry,
		consumer:        consumer,
		msgStats:        msgStats,
		shutdownHandler: shutdownHandler,
		defaultReadSize: connCfg.InputBufferSize,
		readSize:        connCfg.InputBufferSize,
		hbWD:            watchdog.New(),
	}
	e.active.Store(true)
	e.log = log.WithField("entry_id", e.ID.String())

	e.Conn = conn.New[*buffer.Simple, buffer.OutputBuffer](socket, connCfg, connStats, nil, e.log, buffer.HeterogeneousDriver{}, e.handleInput, e.handleConnShutdown)
	e.lastInputAt = time.Now()
	e.Conn.StartReading()
	e.scheduleHeartbeatCheck(e.cfg.InitiateHeartbeatTimeout)
	return e
}

// handleInput is conn.InputHandler: it runs on the connection's own
// command-processing goroutine (conn.New wires it in directly), so
// Entry's own state needs no additional lock.
func (e *Entry) handleInput(c *conn.HeterogeneousConn, data []byte) int {
	full := len(data) >= e.readSize

	e.lastInputAt = time.Now()
	e.heartbeatSentCount = 0

	e.stream.Append(buffer.NewSimpleFromBytes(data))
	e.runParseLoop()

	switch {
	case full:
		next := e.readSize * 2
		if next > maxAdaptiveReadBufferSize {
			next = maxAdaptiveReadBufferSize
		}
		e.readSize = next
		return next
	case len(data) < e.defaultReadSize && e.readSize != e.defaultReadSize:
		e.readSize = e.defaultReadSize
		return e.defaultReadSize
	default:
		return 0
	}
}

// runParseLoop implements spec.md §4.6.2's parse loop: dispatch by
// pkg_content_type until the stream runs dry or a handler signals it
// could not fully consume a frame.
func (e *Entry) runParseLoop() {
	for {
		if !e.active.Load() {
			return
		}
		if e.stream.TotalSize() < header.Size {
			return
		}
		h, err := e.stream.ViewHeader()
		if err != nil {
			return
		}
		var consumed bool
		switch h.PkgContentType {
		case header.Message:
			consumed = e.handleMessagePkg(h)
		case header.HeartbeatRequest:
			consumed = e.handleHeartbeatRequest(h)
		case header.HeartbeatReply:
			consumed = e.handleHeartbeatReply(h)
		default:
			e.shutdownProtocol(ShutdownUnknownPkgContentType, fmt.Errorf("unknown pkg_content_type %d", h.PkgContentType))
			return
		}
		if !consumed {
			return
		}
	}
}

// handleMessagePkg implements spec.md §4.6.2's MESSAGE validation and
// dispatch. It returns true iff the frame was fully consumed and the
// parse loop should continue.
func (e *Entry) handleMessagePkg(h header.Header) bool {
	if h.ContentSize > e.cfg.MaxValidPackageSize {
		e.shutdownProtocol(ShutdownInvalidInputPackageSize, fmt.Errorf("content_size %d exceeds max_valid_package_size %d", h.ContentSize, e.cfg.MaxValidPackageSize))
		return false
	}
	if h.FrameSize() > e.stream.TotalSize() {
		return false // NeedMore
	}

	if err := e.stream.Skip(h.AdvertisedSize()); err != nil {
		e.shutdownProtocol(ShutdownUnexpectedInputPackageSize, err)
		return false
	}

	msg, ok := e.registry.New(h.ContentSpecificValue)
	if !ok {
		// Still drop exactly content_size+attached_binary_size bytes so a
		// caller inspecting the shutdown reason sees a clean frame boundary,
		// not a stream left mid-frame.
		_ = e.stream.Skip(int(h.ContentSize) + int(h.AttachedBinarySize))
		e.shutdownProtocol(ShutdownInvalidInputPackage, fmt.Errorf("no deserializer registered for tag %d", h.ContentSpecificValue))
		return false
	}

	src := e.stream.NewSource(int(h.ContentSize))
	parsedOK := msg.ParseFromZeroCopy(src)
	if !parsedOK || src.ByteCount() != int64(h.ContentSize) {
		_ = e.stream.Skip(int(h.ContentSize) + int(h.AttachedBinarySize))
		e.shutdownProtocol(ShutdownInvalidInputPackage, fmt.Errorf("parser consumed %d of %d content bytes (ok=%v)", src.ByteCount(), h.ContentSize, parsedOK))
		return false
	}
	if err := e.stream.Skip(int(h.ContentSize)); err != nil {
		e.shutdownProtocol(ShutdownUnexpectedInputPackageSize, err)
		return false
	}

	var attached []byte
	if h.AttachedBinarySize > 0 {
		attached = make([]byte, h.AttachedBinarySize)
		if err := e.stream.ReadBuffer(attached); err != nil {
			e.shutdownProtocol(ShutdownUnexpectedInputPackageSize, err)
			return false
		}
	}

	e.msgStats.IncMessageIn(h.ContentSpecificValue)
	e.dispatchSafely(message.Carrier{Tag: h.ContentSpecificValue, Msg: msg, AttachedBinary: attached})
	return true
}

// dispatchSafely implements spec.md §7's "input-parse exceptions ...
// caught, logged, and converted to ExceptionHandlingInput" for the
// consumer callback itself, since a panicking handler is the Go analogue
// of a throwing one.
func (e *Entry) dispatchSafely(carrier message.Carrier) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("panic", r).Error("message consumer panicked")
			e.shutdownProtocol(ShutdownExceptionHandlingInput, fmt.Errorf("consumer panic: %v", r))
		}
	}()
	if e.consumer != nil {
		e.consumer.OnMessage(carrier, e)
	}
}

func (e *Entry) handleHeartbeatRequest(h header.Header) bool {
	if h.ContentSize != 0 || h.AttachedBinarySize != 0 {
		e.shutdownProtocol(ShutdownInvalidHeartbeatPackage, fmt.Errorf("heartbeat request carries a non-empty body"))
		return false
	}
	if err := e.stream.Skip(h.AdvertisedSize()); err != nil {
		e.shutdownProtocol(ShutdownUnexpectedInputPackageSize, err)
		return false
	}
	e.Conn.ScheduleSend(buffer.ConstSliceBuffer{Data: header.HeartbeatFrame(header.HeartbeatReply)})
	return true
}

func (e *Entry) handleHeartbeatReply(h header.Header) bool {
	if h.ContentSize != 0 || h.AttachedBinarySize != 0 {
		e.shutdownProtocol(ShutdownInvalidHeartbeatPackage, fmt.Errorf("heartbeat reply carries a non-empty body"))
		return false
	}
	if err := e.stream.Skip(h.AdvertisedSize()); err != nil {
		e.shutdownProtocol(ShutdownUnexpectedInputPackageSize, err)
		return false
	}
	// No further effect: lastInputAt/heartbeatSentCount were already reset
	// at the top of handleInput, which is all spec.md §4.6.2 requires of a
	// reply.
	return true
}
