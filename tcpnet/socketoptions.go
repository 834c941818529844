// Package tcpnet provides the thin listening/outbound-connect helpers
// spec.md §4 treats as external collaborators: an Acceptor, a Connector,
// and the socket-option table from spec.md §6, grounded on
// original_source/net/include/opio/net/tcp/{acceptor,connector}.hpp.
package tcpnet

import "net"

// SocketOptions is spec.md §6's endpoint.socket_options table. Every
// field is a pointer so "unset" (leave the OS default) is distinguishable
// from an explicit false/zero.
type SocketOptions struct {
	NoDelay           *bool
	KeepAlive         *bool
	LingerSeconds     *int
	ReceiveBufferSize *int
	SendBufferSize    *int
}

// ApplySocketOptions sets every configured option on conn. Every knob here
// is already exposed directly by net.TCPConn, so no third-party socket
// library is pulled in for this concern (see DESIGN.md).
func ApplySocketOptions(conn *net.TCPConn, opts SocketOptions) error {
	if opts.NoDelay != nil {
		if err := conn.SetNoDelay(*opts.NoDelay); err != nil {
			return err
		}
	}
	if opts.KeepAlive != nil {
		if err := conn.SetKeepAlive(*opts.KeepAlive); err != nil {
			return err
		}
	}
	if opts.LingerSeconds != nil {
		if err := conn.SetLinger(*opts.LingerSeconds); err != nil {
			return err
		}
	}
	if opts.ReceiveBufferSize != nil {
		if err := conn.SetReadBuffer(*opts.ReceiveBufferSize); err != nil {
			return err
		}
	}
	if opts.SendBufferSize != nil {
		if err := conn.SetWriteBuffer(*opts.SendBufferSize); err != nil {
			return err
		}
	}
	return nil
}
