package entry

import "github.com/ngrodzitski/opnet/conn"

// ShutdownReason is spec.md §4.6.5's entry-level shutdown taxonomy: it
// wraps the underlying conn.ShutdownReason plus adds protocol-level
// causes the entry detects on its own.
type ShutdownReason int

const (
	ShutdownUnderlyingConnection ShutdownReason = iota
	ShutdownUserInitiated
	ShutdownExceptionHandlingInput
	ShutdownInvalidInputPackage
	ShutdownUnexpectedInputPackageSize
	ShutdownInvalidInputPackageSize
	ShutdownInvalidHeartbeatPackage
	ShutdownUnknownPkgContentType
	ShutdownHeartbeatReplyTimeout
)

func (r ShutdownReason) String() string {
	switch r {
	case ShutdownUnderlyingConnection:
		return "underlying-connection"
	case ShutdownUserInitiated:
		return "user-initiated"
	case ShutdownExceptionHandlingInput:
		return "exception-handling-input"
	case ShutdownInvalidInputPackage:
		return "invalid-input-package"
	case ShutdownUnexpectedInputPackageSize:
		return "unexpected-input-package-size"
	case ShutdownInvalidInputPackageSize:
		return "invalid-input-package-size"
	case ShutdownInvalidHeartbeatPackage:
		return "invalid-heartbeat-package"
	case ShutdownUnknownPkgContentType:
		return "unknown-pkg-content-type"
	case ShutdownHeartbeatReplyTimeout:
		return "heartbeat-reply-timeout"
	default:
		return "unknown"
	}
}

// ShutdownHandler is invoked at most once when an Entry tears down.
type ShutdownHandler func(e *Entry, reason ShutdownReason, underlying conn.ShutdownReason, err error)
