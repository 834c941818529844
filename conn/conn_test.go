package conn

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngrodzitski/opnet/buffer"
	"github.com/ngrodzitski/opnet/tcpnet"
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

func newTestConn(t *testing.T, socket net.Conn, inputHandler InputHandler[*buffer.Simple, OutputBuffer]) *HeterogeneousConn {
	t.Helper()
	c := New[*buffer.Simple, OutputBuffer](socket, DefaultConfig(), NoopStats{}, nil, nil, buffer.HeterogeneousDriver{}, inputHandler, nil)
	t.Cleanup(func() { c.Shutdown(ShutdownUserInitiated, nil) })
	return c
}

func TestScheduleSendDeliversExactBytes(t *testing.T) {
	client, server := tcpPipe(t)
	defer client.Close()

	c := newTestConn(t, server, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	c.ScheduleSendWithCallback(func(r SendResult) {
		assert.Equal(t, SendSuccess, r)
		wg.Done()
	}, buffer.ConstSliceBuffer{Data: []byte("hello ")}, buffer.ConstSliceBuffer{Data: []byte("world")})

	buf := make([]byte, 11)
	_, err := io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(buf))

	wg.Wait()
}

func TestAggressiveDispatchDeliversBytes(t *testing.T) {
	client, server := tcpPipe(t)
	defer client.Close()

	c := newTestConn(t, server, nil)

	done := make(chan SendResult, 1)
	c.ScheduleSendAggressiveDispatch(func(r SendResult) { done <- r }, buffer.ConstSliceBuffer{Data: []byte("fast")})

	buf := make([]byte, 4)
	_, err := io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "fast", string(buf))
	assert.Equal(t, SendSuccess, <-done)
}

func TestAggressiveDispatchDegradesWithNoopLocker(t *testing.T) {
	client, server := tcpPipe(t)
	defer client.Close()

	c := New[*buffer.Simple, OutputBuffer](server, DefaultConfig(), NoopStats{}, NoopLocker, nil, buffer.HeterogeneousDriver{}, nil, nil)
	t.Cleanup(func() { c.Shutdown(ShutdownUserInitiated, nil) })

	done := make(chan SendResult, 1)
	c.ScheduleSendAggressiveDispatch(func(r SendResult) { done <- r }, buffer.ConstSliceBuffer{Data: []byte("slow")})

	buf := make([]byte, 4)
	_, err := io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "slow", string(buf))
	assert.Equal(t, SendSuccess, <-done)
}

func TestOnlyOneWriteInFlightAtATime(t *testing.T) {
	client, server := tcpPipe(t)
	defer client.Close()

	c := newTestConn(t, server, nil)

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		c.ScheduleSendWithCallback(func(r SendResult) {
			assert.Equal(t, SendSuccess, r)
			wg.Done()
		}, buffer.ConstSliceBuffer{Data: []byte{byte(i)}})
	}

	total := make([]byte, n)
	_, err := io.ReadFull(client, total)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		assert.Equal(t, byte(i), total[i])
	}
	wg.Wait()
}

func TestShutdownIsIdempotentAndDrainsQueue(t *testing.T) {
	client, server := tcpPipe(t)
	defer client.Close()

	c := New[*buffer.Simple, OutputBuffer](server, DefaultConfig(), NoopStats{}, nil, nil, buffer.HeterogeneousDriver{}, nil, nil)

	done := make(chan SendResult, 1)
	c.ScheduleSendWithCallback(func(r SendResult) { done <- r }, buffer.ConstSliceBuffer{Data: []byte("x")})

	c.Shutdown(ShutdownUserInitiated, nil)
	c.Shutdown(ShutdownUserInitiated, nil) // must not panic or double-close

	select {
	case r := <-done:
		assert.Contains(t, []SendResult{SendSuccess, SendDidntSend}, r)
	case <-time.After(time.Second):
		t.Fatal("callback never invoked")
	}

	<-c.Closed()
}

func TestUpdateSocketOptionsRunsOnLoop(t *testing.T) {
	client, server := tcpPipe(t)
	defer client.Close()

	c := newTestConn(t, server, nil)

	noDelay := true
	done := make(chan struct{})
	c.RunOnLoop(func() {}) // warm the loop before racing UpdateSocketOptions against it
	c.UpdateSocketOptions(tcpnet.SocketOptions{NoDelay: &noDelay})
	c.RunOnLoop(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("UpdateSocketOptions never reached the loop")
	}
}

func TestSimpleDriverInstantiationRoundTrips(t *testing.T) {
	client, server := tcpPipe(t)
	defer client.Close()

	received := make(chan string, 1)
	inputHandler := func(c *SimpleConn, data []byte) int {
		received <- string(data)
		return 0
	}
	c := New[*buffer.Simple, *buffer.Simple](server, DefaultConfig(), NoopStats{}, nil, nil, buffer.SimpleDriver{}, inputHandler, nil)
	t.Cleanup(func() { c.Shutdown(ShutdownUserInitiated, nil) })
	c.StartReading()

	c.ScheduleSend(buffer.NewSimpleFromBytes([]byte("simple driver")))

	buf := make([]byte, len("simple driver"))
	_, err := io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "simple driver", string(buf))

	_, err = client.Write([]byte("hi back"))
	require.NoError(t, err)

	select {
	case text := <-received:
		assert.Equal(t, "hi back", text)
	case <-time.After(2 * time.Second):
		t.Fatal("SimpleDriver-backed conn never delivered a read")
	}
}

func TestReadEOFTriggersShutdown(t *testing.T) {
	client, server := tcpPipe(t)

	var shutdownReason ShutdownReason
	shutdownCh := make(chan struct{})
	c := New[*buffer.Simple, OutputBuffer](server, DefaultConfig(), NoopStats{}, nil, nil, buffer.HeterogeneousDriver{}, nil, func(c *HeterogeneousConn, reason ShutdownReason, err error) {
		shutdownReason = reason
		close(shutdownCh)
	})
	c.StartReading()

	client.Close()

	select {
	case <-shutdownCh:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown handler never called")
	}
	assert.Equal(t, ShutdownEOF, shutdownReason)
}
