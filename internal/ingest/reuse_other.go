//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package ingest

import "net"

func listenConfig() net.ListenConfig {
	return net.ListenConfig{}
}
