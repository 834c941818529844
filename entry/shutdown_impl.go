package entry

import "github.com/ngrodzitski/opnet/conn"

// Shutdown is the user-initiated entry point, spec.md §4.6.5's
// UserInitiated reason.
func (e *Entry) Shutdown() {
	e.shutdownProtocol(ShutdownUserInitiated, nil)
}

// shutdownProtocol is used by internal protocol logic (invalid frames,
// heartbeat timeout, a panicking consumer, ...): it fires the entry's own
// shutdown handler and tears down the underlying connection, which in
// turn calls handleConnShutdown — already a no-op the second time around
// because shutdownOnce only runs once.
func (e *Entry) shutdownProtocol(reason ShutdownReason, err error) {
	e.fireShutdown(reason, conn.ShutdownUserInitiated, err)
	e.Conn.Shutdown(conn.ShutdownUserInitiated, err)
}

// handleConnShutdown is wired in as the underlying conn.Conn's
// ShutdownHandler: an IO error, EOF, or write timeout detected below the
// entry layer wraps into ShutdownUnderlyingConnection per spec.md §4.6.5.
func (e *Entry) handleConnShutdown(c *conn.HeterogeneousConn, reason conn.ShutdownReason, err error) {
	e.fireShutdown(ShutdownUnderlyingConnection, reason, err)
}

func (e *Entry) fireShutdown(reason ShutdownReason, underlying conn.ShutdownReason, err error) {
	e.shutdownOnce.Do(func() {
		e.active.Store(false)
		e.hbWD.CancelWatch()
		if e.shutdownHandler != nil {
			e.shutdownHandler(e, reason, underlying, err)
		}
	})
}

// IsActive reports whether the entry has not yet shut down; the parse
// loop consults it to suppress further dispatch once a shutdown reason
// has fired, per spec.md §3's connection_is_active flag.
func (e *Entry) IsActive() bool {
	return e.active.Load()
}
