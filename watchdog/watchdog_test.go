package watchdog

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartWatchFiresAfterDuration(t *testing.T) {
	w := New()
	fired := make(chan Key, 1)
	w.StartWatch(20*time.Millisecond, func(k Key) { fired <- k })

	select {
	case <-fired:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("watchdog never fired")
	}
}

func TestCancelWatchSuppressesFire(t *testing.T) {
	w := New()
	var fired atomic.Bool
	w.StartWatch(20*time.Millisecond, func(Key) { fired.Store(true) })
	w.CancelWatch()

	time.Sleep(80 * time.Millisecond)
	require.False(t, fired.Load())
}

func TestReArmingInvalidatesOldKeyForStaleFireFiltering(t *testing.T) {
	w := New()
	k1 := w.StartWatch(time.Hour, func(Key) {})
	k2 := w.StartWatch(time.Hour, func(Key) {})

	require.NotEqual(t, k1, k2)
	require.True(t, w.IsCurrent(k2))
	require.False(t, w.IsCurrent(k1))
}
