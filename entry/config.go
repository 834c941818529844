package entry

import "time"

// Config is spec.md §3's EntryCfg.
type Config struct {
	MaxValidPackageSize        uint32
	InitiateHeartbeatTimeout   time.Duration
	AwaitHeartbeatReplyTimeout time.Duration
}

// DefaultConfig returns spec.md §6's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxValidPackageSize:        100 * 1024 * 1024,
		InitiateHeartbeatTimeout:   10 * time.Second,
		AwaitHeartbeatReplyTimeout: 20 * time.Second,
	}
}

// maxAdaptiveReadBufferSize is spec.md §4.6.1's 32 MiB ceiling on the
// next-read-buffer hint.
const maxAdaptiveReadBufferSize = 32 * 1024 * 1024
