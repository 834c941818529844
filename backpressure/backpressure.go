// Package backpressure implements the back-pressure extension from
// spec.md's optional add-on set: a per-stream "single slot" sender that
// drops all but the most recent buffer while a previous send to that
// stream is still in flight. Grounded on
// original_source/proto_entry/include/opio/proto_entry/ext/back_pressure.hpp,
// ported from template-on-Entry inheritance to composition over a
// *conn.Conn, since Go has no mixin-by-inheritance idiom for extending a
// concrete type.
package backpressure

import (
	"github.com/sirupsen/logrus"

	"github.com/ngrodzitski/opnet/buffer"
	"github.com/ngrodzitski/opnet/conn"
)

// periodOfWayTooMuchDrops mirrors back_pressure.hpp's
// period_of_way_too_much_drops: past the first two warnings, one more is
// logged every 128 drops.
const periodOfWayTooMuchDrops = 128

// streamContext is back_pressure.hpp's stream_context_t: in_flight is 0 or
// 1 (the "single slot" is really a boolean, kept as an int to mirror the
// original's ++/-- bookkeeping), memorizedBuf is the latest buffer that
// arrived while a send was outstanding, and droppedBufs counts how many
// buffers were discarded in favor of a newer one before that slot was
// finally sent.
type streamContext struct {
	inFlight     int
	droppedBufs  int
	memorizedBuf []buffer.OutputBuffer
	hasMemorized bool
}

// Controller is bp_entry_t narrowed to its back-pressure responsibility:
// it wraps a *conn.Conn and a set of per-tag stream_context_t slots, all
// state changes serialized onto the connection's own loop via
// conn.Conn.RunOnLoop instead of a dedicated asio strand.
type Controller[Tag comparable] struct {
	c       *conn.HeterogeneousConn
	log     *logrus.Entry
	streams map[Tag]*streamContext
}

// New wraps c with back-pressure bookkeeping. log may be nil, in which
// case the standard logrus logger is used.
func New[Tag comparable](c *conn.HeterogeneousConn, log *logrus.Entry) *Controller[Tag] {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Controller[Tag]{
		c:       c,
		log:     log.WithField("component", "backpressure"),
		streams: make(map[Tag]*streamContext),
	}
}

// Send is bp_send_raw_buf: it schedules buf for tag if no send for that
// tag is currently in flight, or replaces (and counts as dropped) any
// buffer already memorized for a later send otherwise. It is safe to call
// from any goroutine; the actual state mutation always runs on the
// connection's loop.
func (bp *Controller[Tag]) Send(tag Tag, buf ...buffer.OutputBuffer) {
	bp.c.RunOnLoop(func() {
		bp.sendLocked(tag, buf)
	})
}

func (bp *Controller[Tag]) sendLocked(tag Tag, buf []buffer.OutputBuffer) {
	ctx, ok := bp.streams[tag]
	if !ok {
		ctx = &streamContext{}
		bp.streams[tag] = ctx
	}

	if ctx.inFlight < 1 {
		bp.log.WithField("tag", tag).Trace("buffer will be sent right away")
		ctx.inFlight++
		bp.dispatchSend(tag, ctx, buf)
		return
	}

	if ctx.hasMemorized {
		ctx.droppedBufs++
	}

	entry := bp.log.WithField("tag", tag).WithField("dropped_before", ctx.droppedBufs)
	logDrop := entry.Trace
	if ctx.droppedBufs == 1 || ctx.droppedBufs == 10 ||
		(ctx.droppedBufs != 0 && ctx.droppedBufs%periodOfWayTooMuchDrops == 0) {
		logDrop = entry.Warn
	}
	logDrop("substitute memorized buffer")

	ctx.memorizedBuf = buf
	ctx.hasMemorized = true
}

func (bp *Controller[Tag]) dispatchSend(tag Tag, ctx *streamContext, buf []buffer.OutputBuffer) {
	bp.c.ScheduleSendWithCallback(func(res conn.SendResult) {
		if res != conn.SendSuccess {
			return
		}
		bp.log.WithField("tag", tag).Trace("buffer was sent")
		bp.c.RunOnLoop(func() { bp.sendFinished(tag) })
	}, buf...)
}

// sendFinished is send_finished: either the memorized buffer (if any) is
// sent next and the drop counter resets, or the slot goes idle.
func (bp *Controller[Tag]) sendFinished(tag Tag) {
	ctx, ok := bp.streams[tag]
	if !ok {
		return
	}

	if ctx.hasMemorized {
		bp.log.WithField("tag", tag).Trace("sending latest memorized buffer")
		buf := ctx.memorizedBuf
		ctx.memorizedBuf = nil
		ctx.hasMemorized = false
		bp.dispatchSend(tag, ctx, buf)
		ctx.droppedBufs = 0
		return
	}

	bp.log.WithField("tag", tag).Trace("nothing to follow up")
	ctx.inFlight--
}
