//go:build linux || darwin || freebsd || netbsd || openbsd

package ingest

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// listenConfig lets several listeners share a port, as instrument networks
// often broadcast to one port that other software also listens on.
func listenConfig() net.ListenConfig {
	return net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var serr error
			err := c.Control(func(fd uintptr) {
				if serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); serr != nil {
					return
				}
				serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return serr
		},
	}
}
