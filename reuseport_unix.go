//go:build !windows

package hover

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reusePortControl sets SO_REUSEPORT on the multicast receive socket so
// multiple processes on the same host can each bind the discovery port
// (spec.md §4.4). Multiple hover nodes on one machine is the common local
// development / test topology (spec.md §8 scenario 2 depends on it).
func reusePortControl(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
