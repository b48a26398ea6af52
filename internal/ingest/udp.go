package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const maxDatagram = 65535

type Source struct {
	Name        string
	Port        int
	Enabled     bool
	Description string
}

type UDPConfig struct {
	BindAddress string
	Sources     []Source
	Logger      *slog.Logger
}

// UDPListener reads datagrams from one socket per enabled source.
type UDPListener struct {
	cfg UDPConfig
	log *slog.Logger

	socks []*udpSocket
	wg    sync.WaitGroup

	closed atomic.Bool
	cancel context.CancelFunc
}

type udpSocket struct {
	src  Source
	conn net.PacketConn

	packets  atomic.Uint64
	lines    atomic.Uint64
	lastSeen atomic.Int64
}

// ListenUDP binds every enabled source and starts reading. A source that
// fails to bind is logged and skipped; it is an error only when none bind.
func ListenUDP(ctx context.Context, cfg UDPConfig, h Handler) (*UDPListener, error) {
	if h == nil {
		return nil, fmt.Errorf("udp handler is nil")
	}
	if cfg.BindAddress == "" {
		cfg.BindAddress = "0.0.0.0"
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	l := &UDPListener{cfg: cfg, log: log.With("component", "udp")}

	lc := listenConfig()
	for _, src := range cfg.Sources {
		if !src.Enabled {
			l.log.Info("source disabled", "source", src.Name, "port", src.Port)
			continue
		}
		addr := net.JoinHostPort(cfg.BindAddress, strconv.Itoa(src.Port))
		conn, err := lc.ListenPacket(ctx, "udp4", addr)
		if err != nil {
			l.log.Error("bind failed", "source", src.Name, "addr", addr, "err", err)
			continue
		}
		l.socks = append(l.socks, &udpSocket{src: src, conn: conn})
		l.log.Info("listening", "addr", conn.LocalAddr().String(), "source", src.Name, "description", src.Description)
	}
	if len(l.socks) == 0 {
		return nil, errors.New("no UDP listeners started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	for _, s := range l.socks {
		l.wg.Add(1)
		go func(s *udpSocket) {
			defer l.wg.Done()
			l.readLoop(runCtx, s, h)
		}(s)
	}
	// Closing the sockets unblocks ReadFrom when ctx ends.
	go func() {
		<-runCtx.Done()
		for _, s := range l.socks {
			_ = s.conn.Close()
		}
	}()
	return l, nil
}

func (l *UDPListener) readLoop(ctx context.Context, s *udpSocket, h Handler) {
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			l.log.Warn("read failed", "source", s.src.Name, "err", err)
			continue
		}
		s.packets.Add(1)
		s.lastSeen.Store(time.Now().UnixNano())

		sender := ""
		if ua, ok := from.(*net.UDPAddr); ok {
			sender = ua.IP.String()
		} else if from != nil {
			sender = from.String()
		}
		for _, line := range SplitDatagram(buf[:n]) {
			s.lines.Add(1)
			h(s.src.Name, sender, line)
		}
	}
}

// Addrs returns the bound local address of each source by name.
func (l *UDPListener) Addrs() map[string]net.Addr {
	out := make(map[string]net.Addr, len(l.socks))
	for _, s := range l.socks {
		out[s.src.Name] = s.conn.LocalAddr()
	}
	return out
}

func (l *UDPListener) Snapshot() []SourceSnapshot {
	if l == nil {
		return nil
	}
	state := "listening"
	if l.closed.Load() {
		state = "stopped"
	}
	out := make([]SourceSnapshot, 0, len(l.socks))
	for _, s := range l.socks {
		var seen time.Time
		if ns := s.lastSeen.Load(); ns != 0 {
			seen = time.Unix(0, ns)
		}
		out = append(out, SourceSnapshot{
			Name:        s.src.Name,
			Kind:        "udp",
			Addr:        s.conn.LocalAddr().String(),
			State:       state,
			LastSeenUTC: formatSeen(seen),
			Packets:     s.packets.Load(),
			Lines:       s.lines.Load(),
		})
	}
	return out
}

// Close stops all sockets and waits for the readers to exit.
func (l *UDPListener) Close() {
	if l == nil || l.closed.Swap(true) {
		return
	}
	l.cancel()
	l.wg.Wait()
}
