//go:build windows

package conn

import "net"

// trySyncWriteVecs on platforms without unix.Writev always reports
// would-block so startWrite falls straight through to the async scatter
// write path, mirroring hayabusa-cloud-framer's internal/bo per-platform
// file split (a Unix-only syscall behind a build tag, with a trivial
// same-signature fallback for the rest).
func trySyncWriteVecs(c net.Conn, vecs [][]byte) (n int, wouldBlock bool, err error) {
	return 0, true, nil
}
