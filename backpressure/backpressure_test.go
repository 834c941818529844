package backpressure

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngrodzitski/opnet/buffer"
	"github.com/ngrodzitski/opnet/conn"
)

func tcpPipe(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var server net.Conn
	accepted := make(chan struct{})
	go func() {
		server, _ = ln.Accept()
		close(accepted)
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	<-accepted
	require.NotNil(t, server)
	return client, server
}

func TestSendDeliversSingleBuffer(t *testing.T) {
	client, server := tcpPipe(t)
	defer client.Close()

	c := conn.New[*buffer.Simple, buffer.OutputBuffer](server, conn.DefaultConfig(), conn.NoopStats{}, nil, nil, buffer.HeterogeneousDriver{}, nil, nil)
	t.Cleanup(func() { c.Shutdown(conn.ShutdownUserInitiated, nil) })

	bp := New[string](c, nil)
	bp.Send("stream-a", buffer.ConstSliceBuffer{Data: []byte("hello")})

	buf := make([]byte, 5)
	_, err := io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

// TestLatestValueWinsUnderBackPressure mirrors back_pressure.hpp's
// single-slot semantics: while the first buffer for a tag is in flight,
// only the most recently substituted buffer is ever actually written.
func TestLatestValueWinsUnderBackPressure(t *testing.T) {
	client, server := tcpPipe(t)
	defer client.Close()

	c := conn.New[*buffer.Simple, buffer.OutputBuffer](server, conn.DefaultConfig(), conn.NoopStats{}, nil, nil, buffer.HeterogeneousDriver{}, nil, nil)
	t.Cleanup(func() { c.Shutdown(conn.ShutdownUserInitiated, nil) })

	bp := New[int](c, nil)

	done := make(chan struct{})
	c.RunOnLoop(func() {
		bp.sendLocked(1, []buffer.OutputBuffer{buffer.ConstSliceBuffer{Data: []byte("first")}})
		bp.sendLocked(1, []buffer.OutputBuffer{buffer.ConstSliceBuffer{Data: []byte("second")}})
		bp.sendLocked(1, []buffer.OutputBuffer{buffer.ConstSliceBuffer{Data: []byte("third")}})
		close(done)
	})
	<-done

	buf := make([]byte, len("first")+len("third"))
	_, err := io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "firstthird", string(buf))
}

func TestSendAfterPreviousCompletesGoesStraightThrough(t *testing.T) {
	client, server := tcpPipe(t)
	defer client.Close()

	c := conn.New[*buffer.Simple, buffer.OutputBuffer](server, conn.DefaultConfig(), conn.NoopStats{}, nil, nil, buffer.HeterogeneousDriver{}, nil, nil)
	t.Cleanup(func() { c.Shutdown(conn.ShutdownUserInitiated, nil) })

	bp := New[string](c, nil)
	bp.Send("s", buffer.ConstSliceBuffer{Data: []byte("one")})

	buf := make([]byte, 3)
	_, err := io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "one", string(buf))

	// Give sendFinished a chance to run before the next Send, so this
	// reaches the in_flight<1 fast path rather than the memorization path.
	time.Sleep(50 * time.Millisecond)

	bp.Send("s", buffer.ConstSliceBuffer{Data: []byte("two")})
	buf2 := make([]byte, 3)
	_, err = io.ReadFull(client, buf2)
	require.NoError(t, err)
	assert.Equal(t, "two", string(buf2))
}
