package tcpnet

import (
	"context"
	"net"
)

// ErrorHandler reports a listener-lifecycle failure; phase is "accept" or
// "apply-socket-options". This plays the role of the source's
// on_openclose_cb_t, collapsed to a single reporting hook since Go's
// net.Listener has no separate open/close error path to wrap.
type ErrorHandler func(phase string, err error)

// Acceptor listens on one TCP endpoint and hands each accepted socket to a
// factory, applying SocketOptions first. Grounded on
// original_source/net/include/opio/net/tcp/acceptor.hpp's accept_next/
// on_connection loop, re-expressed as a single blocking Serve call instead
// of asio's callback-chain re-arming.
type Acceptor struct {
	Listener *net.TCPListener
	Options  SocketOptions
	OnError  ErrorHandler
}

// Listen opens a TCP listener on addr (e.g. ":9000") and wraps it in an
// Acceptor.
func Listen(addr string, opts SocketOptions) (*Acceptor, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, err
	}
	return &Acceptor{Listener: ln, Options: opts}, nil
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed, invoking onAccept for each one after socket options are
// applied. It blocks until accepting stops.
func (a *Acceptor) Serve(ctx context.Context, onAccept func(net.Conn)) {
	go func() {
		<-ctx.Done()
		_ = a.Listener.Close()
	}()

	for {
		conn, err := a.Listener.AcceptTCP()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if a.OnError != nil {
				a.OnError("accept", err)
			}
			return
		}
		if err := ApplySocketOptions(conn, a.Options); err != nil {
			if a.OnError != nil {
				a.OnError("apply-socket-options", err)
			}
		}
		onAccept(conn)
	}
}

// Close stops the listener.
func (a *Acceptor) Close() error {
	return a.Listener.Close()
}

// Addr returns the listener's bound address.
func (a *Acceptor) Addr() net.Addr {
	return a.Listener.Addr()
}
