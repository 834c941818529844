package entry

import (
	"time"

	"github.com/ngrodzitski/opnet/buffer"
	"github.com/ngrodzitski/opnet/header"
	"github.com/ngrodzitski/opnet/watchdog"
)

// scheduleHeartbeatCheck arms the heartbeat watchdog for d, dispatching
// the fire back onto the connection's loop so state reads/writes stay
// race-free, and filtering stale fires via watchdog.Key exactly as
// spec.md §4.4 prescribes for the write watchdog.
func (e *Entry) scheduleHeartbeatCheck(d time.Duration) {
	e.hbWD.StartWatch(d, func(key watchdog.Key) {
		e.Conn.RunOnLoop(func() {
			if e.hbWD.IsCurrent(key) {
				e.onHeartbeatTick()
			}
		})
	})
}

// onHeartbeatTick implements spec.md §4.6.4's state machine: Idle (any
// input resets it, handled in handleInput), Probe-pending (emit a
// heartbeat_request once initiate_timeout has elapsed since the last
// input), and Dead (shut down once await_reply_timeout has elapsed since
// a probe was sent without a reply).
func (e *Entry) onHeartbeatTick() {
	if !e.active.Load() {
		return
	}
	since := time.Since(e.lastInputAt)

	if e.heartbeatSentCount > 0 && since >= e.cfg.AwaitHeartbeatReplyTimeout {
		e.shutdownProtocol(ShutdownHeartbeatReplyTimeout, nil)
		return
	}

	if since >= e.cfg.InitiateHeartbeatTimeout {
		e.Conn.ScheduleSend(buffer.ConstSliceBuffer{Data: header.HeartbeatFrame(header.HeartbeatRequest)})
		e.heartbeatSentCount++

		next := e.cfg.InitiateHeartbeatTimeout
		if remainingAwait := e.cfg.AwaitHeartbeatReplyTimeout - since; remainingAwait > 0 && remainingAwait < next {
			next = remainingAwait
		}
		e.scheduleHeartbeatCheck(next)
		return
	}

	// False wake: less time has passed than initiate_timeout (the timer
	// was armed before lastInputAt last advanced); reschedule for the
	// remainder.
	remainder := e.cfg.InitiateHeartbeatTimeout - since
	if remainder <= 0 {
		remainder = time.Millisecond
	}
	e.scheduleHeartbeatCheck(remainder)
}
