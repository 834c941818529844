// Package config loads the spec.md §6 configuration table with
// github.com/spf13/viper, grounded on nabbar-golib's viper-backed
// component config readers (_examples/nabbar-golib/config/components/...),
// and translates the result into the driver types conn, entry, and tcpnet
// already expect.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ngrodzitski/opnet/conn"
	"github.com/ngrodzitski/opnet/entry"
	"github.com/ngrodzitski/opnet/tcpnet"
)

// Raw is the spec.md §6 configuration table, unmarshaled verbatim from
// whatever source viper was pointed at (file, env, flags). Socket-option
// fields are pointers so "absent from the file" is distinguishable from
// an explicit zero/false, mirroring tcpnet.SocketOptions.
type Raw struct {
	Endpoint struct {
		Port          uint16 `mapstructure:"port"`
		Host          string `mapstructure:"host"`
		Protocol      string `mapstructure:"protocol"`
		SocketOptions struct {
			NoDelay           *bool `mapstructure:"no_delay"`
			KeepAlive         *bool `mapstructure:"keep_alive"`
			Linger            *int  `mapstructure:"linger"`
			ReceiveBufferSize *int  `mapstructure:"receive_buffer_size"`
			SendBufferSize    *int  `mapstructure:"send_buffer_size"`
		} `mapstructure:"socket_options"`
	} `mapstructure:"endpoint"`

	ReconnectTimeoutMsec           uint32 `mapstructure:"reconnect_timeout_msec"`
	InitiateHeartbeatTimeoutMsec   uint32 `mapstructure:"initiate_heartbeat_timeout_msec"`
	AwaitHeartbeatReplyTimeoutMsec uint32 `mapstructure:"await_heartbeat_reply_timeout_msec"`
	MaxValidPackageSize            uint32 `mapstructure:"max_valid_package_size"`
	InputBufferSize                uint32 `mapstructure:"input_buffer_size"`
	WriteTimeoutPer1MBMsec         uint32 `mapstructure:"write_timeout_per_1mb_msec"`
}

// defaults are spec.md §6's documented defaults, installed with
// viper.SetDefault so an absent key in the source falls back to them
// rather than zero-valuing the field.
var defaults = map[string]any{
	"endpoint.host":                      "localhost",
	"endpoint.protocol":                  "v4",
	"reconnect_timeout_msec":             10_000,
	"initiate_heartbeat_timeout_msec":    10_000,
	"await_heartbeat_reply_timeout_msec": 20_000,
	"max_valid_package_size":             100 * 1024 * 1024,
	"input_buffer_size":                  256 * 1024,
	"write_timeout_per_1mb_msec":         1_000,
}

// Loader wraps a *viper.Viper configured with this package's defaults and
// environment-variable binding, mirroring the thin per-component wrapper
// nabbar-golib builds over viper for each config section.
type Loader struct {
	v *viper.Viper
}

// New constructs a Loader with spec.md §6's defaults pre-populated and
// OPNET_-prefixed environment variables bound, with the dots of nested keys
// written as underscores (e.g. OPNET_ENDPOINT_HOST). Load sees an
// environment value only for a key that has a default or appears in the
// loaded file.
func New() *Loader {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix("opnet")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// ReadFile points the loader at a JSON/YAML/TOML config file (format
// inferred from its extension by viper) and reads it.
func (l *Loader) ReadFile(path string) error {
	l.v.SetConfigFile(path)
	return l.v.ReadInConfig()
}

// Load unmarshals the currently loaded configuration into a Raw, applying
// spec.md §6's validation (endpoint.port is required).
func (l *Loader) Load() (*Raw, error) {
	var raw Raw
	if err := l.v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if raw.Endpoint.Port == 0 {
		return nil, fmt.Errorf("config: endpoint.port is required")
	}
	return &raw, nil
}

// BuildEndpoint builds a tcpnet.Endpoint from the raw endpoint.* group.
func (r *Raw) BuildEndpoint() (tcpnet.Endpoint, error) {
	proto, err := parseProtocol(r.Endpoint.Protocol)
	if err != nil {
		return tcpnet.Endpoint{}, err
	}
	return tcpnet.Endpoint{
		Host:     r.Endpoint.Host,
		Port:     r.Endpoint.Port,
		Protocol: proto,
		Options: tcpnet.SocketOptions{
			NoDelay:           r.Endpoint.SocketOptions.NoDelay,
			KeepAlive:         r.Endpoint.SocketOptions.KeepAlive,
			LingerSeconds:     r.Endpoint.SocketOptions.Linger,
			ReceiveBufferSize: r.Endpoint.SocketOptions.ReceiveBufferSize,
			SendBufferSize:    r.Endpoint.SocketOptions.SendBufferSize,
		},
	}, nil
}

func parseProtocol(s string) (tcpnet.Protocol, error) {
	switch s {
	case "", "v4":
		return tcpnet.ProtocolV4, nil
	case "v6":
		return tcpnet.ProtocolV6, nil
	default:
		return 0, fmt.Errorf("config: endpoint.protocol: unknown value %q", s)
	}
}

// ReconnectTimeout is reconnect_timeout_msec as a time.Duration.
func (r *Raw) ReconnectTimeout() time.Duration {
	return time.Duration(r.ReconnectTimeoutMsec) * time.Millisecond
}

// ConnConfig builds the conn.Config driving write-watchdog budgeting and
// the initial read-buffer size.
func (r *Raw) ConnConfig() conn.Config {
	return conn.Config{
		InputBufferSize:   int(r.InputBufferSize),
		WriteTimeoutPerMB: time.Duration(r.WriteTimeoutPer1MBMsec) * time.Millisecond,
	}
}

// EntryConfig builds the entry.Config driving heartbeat timing and the
// max_valid_package_size bound.
func (r *Raw) EntryConfig() entry.Config {
	return entry.Config{
		MaxValidPackageSize:        r.MaxValidPackageSize,
		InitiateHeartbeatTimeout:   time.Duration(r.InitiateHeartbeatTimeoutMsec) * time.Millisecond,
		AwaitHeartbeatReplyTimeout: time.Duration(r.AwaitHeartbeatReplyTimeoutMsec) * time.Millisecond,
	}
}
