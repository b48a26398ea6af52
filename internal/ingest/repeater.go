package ingest

import (
	"fmt"
	"io"
	"net"
	"sync/atomic"
)

type udpConn interface {
	io.Writer
	io.Closer
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)
type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

// Repeater forwards accepted sentences to a UDP destination, such as a
// chart plotter on another port or host.
type Repeater struct {
	dest string
	conn udpConn
	sent atomic.Uint64
}

func NewRepeater(dest string) (*Repeater, error) {
	return newRepeater(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		// DialUDP selects a suitable local address automatically.
		return net.DialUDP(network, laddr, raddr)
	})
}

func newRepeater(dest string, resolve resolveFunc, dial dialFunc) (*Repeater, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	return &Repeater{dest: dest, conn: conn}, nil
}

// Send writes one sentence as a CRLF-terminated datagram.
func (r *Repeater) Send(line string) error {
	if r == nil || line == "" {
		return nil
	}
	if _, err := r.conn.Write([]byte(line + "\r\n")); err != nil {
		return err
	}
	r.sent.Add(1)
	return nil
}

func (r *Repeater) Dest() string {
	if r == nil {
		return ""
	}
	return r.dest
}

func (r *Repeater) Sent() uint64 {
	if r == nil {
		return 0
	}
	return r.sent.Load()
}

func (r *Repeater) Close() error {
	if r == nil || r.conn == nil {
		return nil
	}
	return r.conn.Close()
}
