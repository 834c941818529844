package tcpnet

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"
)

// Protocol is spec.md §6's endpoint.protocol enum.
type Protocol int

const (
	ProtocolV4 Protocol = iota
	ProtocolV6
)

func (p Protocol) network() string {
	if p == ProtocolV6 {
		return "tcp6"
	}
	return "tcp4"
}

// Endpoint is spec.md §6's endpoint.* configuration group.
type Endpoint struct {
	Host     string
	Port     uint16
	Protocol Protocol
	Options  SocketOptions
}

// resolveHost implements spec.md §6: "", 127.0.0.1, and 0.0.0.0 are
// treated as os.Hostname() rather than literal bind/dial targets.
func resolveHost(host string) (string, error) {
	switch host {
	case "", "127.0.0.1", "0.0.0.0":
		return os.Hostname()
	default:
		return host, nil
	}
}

// Connector resolves an Endpoint and dials it, applying SocketOptions to
// the connected socket, mirroring
// original_source/net/include/opio/net/tcp/connector.hpp's resolve/
// connect/apply-options/on_connect chain as a single synchronous call.
type Connector struct{}

// Dial resolves ep and connects once.
func (Connector) Dial(ctx context.Context, ep Endpoint) (net.Conn, error) {
	host, err := resolveHost(ep.Host)
	if err != nil {
		return nil, err
	}
	addr := fmt.Sprintf("%s:%d", host, ep.Port)

	var d net.Dialer
	conn, err := d.DialContext(ctx, ep.Protocol.network(), addr)
	if err != nil {
		return nil, err
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if ok {
		if err := ApplySocketOptions(tcpConn, ep.Options); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// DialWithRetry retries Dial with a fixed back-off (spec.md §6's
// reconnect_timeout_msec, default 10s) until it succeeds or ctx is
// cancelled.
func DialWithRetry(ctx context.Context, ep Endpoint, backoff time.Duration) (net.Conn, error) {
	if backoff <= 0 {
		backoff = 10 * time.Second
	}
	var c Connector
	for {
		conn, err := c.Dial(ctx, ep)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}
