//go:build windows

package hover

import "syscall"

// reusePortControl is a no-op on Windows, which has no direct SO_REUSEPORT
// equivalent for UDP multicast receive sockets; SO_REUSEADDR (the default
// net.ListenConfig behavior) is close enough for the single-host,
// multi-process discovery scenario spec.md §8 scenario 2 describes.
func reusePortControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
