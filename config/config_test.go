package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngrodzitski/opnet/tcpnet"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "opnet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, "endpoint:\n  port: 9000\n")

	l := New()
	require.NoError(t, l.ReadFile(path))
	raw, err := l.Load()
	require.NoError(t, err)

	assert.EqualValues(t, 9000, raw.Endpoint.Port)
	assert.Equal(t, "localhost", raw.Endpoint.Host)
	assert.EqualValues(t, 10_000, raw.InitiateHeartbeatTimeoutMsec)
	assert.EqualValues(t, 20_000, raw.AwaitHeartbeatReplyTimeoutMsec)
	assert.EqualValues(t, 100*1024*1024, raw.MaxValidPackageSize)
	assert.EqualValues(t, 256*1024, raw.InputBufferSize)
	assert.EqualValues(t, 1_000, raw.WriteTimeoutPer1MBMsec)

	ep, err := raw.BuildEndpoint()
	require.NoError(t, err)
	assert.Equal(t, tcpnet.ProtocolV4, ep.Protocol)
	assert.EqualValues(t, 9000, ep.Port)

	assert.Equal(t, 10*time.Second, raw.ReconnectTimeout())
	assert.Equal(t, time.Second, raw.ConnConfig().WriteTimeoutPerMB)
	assert.Equal(t, 10*time.Second, raw.EntryConfig().InitiateHeartbeatTimeout)
}

func TestLoadRejectsMissingPort(t *testing.T) {
	path := writeConfigFile(t, "endpoint:\n  host: example.com\n")

	l := New()
	require.NoError(t, l.ReadFile(path))
	_, err := l.Load()
	assert.Error(t, err)
}

func TestLoadOverridesAndSocketOptions(t *testing.T) {
	path := writeConfigFile(t, `
endpoint:
  port: 7777
  host: 127.0.0.1
  protocol: v6
  socket_options:
    no_delay: true
    linger: 5
reconnect_timeout_msec: 2500
`)

	l := New()
	require.NoError(t, l.ReadFile(path))
	raw, err := l.Load()
	require.NoError(t, err)

	ep, err := raw.BuildEndpoint()
	require.NoError(t, err)
	assert.Equal(t, tcpnet.ProtocolV6, ep.Protocol)
	require.NotNil(t, ep.Options.NoDelay)
	assert.True(t, *ep.Options.NoDelay)
	require.NotNil(t, ep.Options.LingerSeconds)
	assert.Equal(t, 5, *ep.Options.LingerSeconds)
	assert.Nil(t, ep.Options.KeepAlive)

	assert.Equal(t, 2500*time.Millisecond, raw.ReconnectTimeout())
}
