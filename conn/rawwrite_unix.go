//go:build !windows

package conn

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// trySyncWriteVecs attempts exactly one non-blocking scatter write, the
// QUICK_SYNC_WRITE_HEURISTIC fast path from spec.md §4.3.1. It never
// blocks the calling goroutine: raw.Control invokes its callback once,
// synchronously, on the already-non-blocking file descriptor Go's runtime
// maintains for every net.Conn, so an EAGAIN from the kernel surfaces
// immediately as wouldBlock=true instead of parking on the netpoller (the
// way (*syscall.RawConn).Write would).
func trySyncWriteVecs(c net.Conn, vecs [][]byte) (n int, wouldBlock bool, err error) {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return 0, true, nil
	}
	raw, rerr := sc.SyscallConn()
	if rerr != nil {
		return 0, true, nil
	}

	var written int
	var sysErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		w, werr := unix.Writev(int(fd), vecs)
		written = w
		sysErr = werr
	})
	if ctrlErr != nil {
		return 0, false, ctrlErr
	}
	if sysErr != nil {
		if sysErr == unix.EAGAIN || sysErr == unix.EWOULDBLOCK {
			return 0, true, nil
		}
		return written, false, sysErr
	}
	return written, false, nil
}
