package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// TCPConfig describes an NMEA multiplexer that serves sentences over TCP.
type TCPConfig struct {
	Name string
	Addr string

	ReconnectDelay time.Duration
	MaxLineBytes   int
	DialTimeout    time.Duration

	Logger *slog.Logger
}

// TCPClient reads newline-delimited sentences from a TCP endpoint and
// reconnects when the connection drops.
type TCPClient struct {
	cfg TCPConfig
	log *slog.Logger

	started atomic.Bool
	closed  atomic.Bool

	mu       sync.RWMutex
	state    string
	lastErr  string
	lastSeen time.Time
	count    uint64

	cancel context.CancelFunc
	done   chan struct{}
}

func NewTCPClient(cfg TCPConfig) (*TCPClient, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("tcp source name is required")
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("tcp source addr is required")
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = 4096
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &TCPClient{
		cfg:   cfg,
		log:   log.With("component", "tcp", "source", cfg.Name),
		state: "stopped",
		done:  make(chan struct{}),
	}, nil
}

// Start connects in the background. h is called for every sentence line.
func (c *TCPClient) Start(ctx context.Context, h Handler) error {
	if c == nil {
		return fmt.Errorf("tcp client is nil")
	}
	if c.closed.Load() {
		return fmt.Errorf("tcp client is closed")
	}
	if h == nil {
		return fmt.Errorf("tcp handler is nil")
	}
	if c.started.Swap(true) {
		return fmt.Errorf("tcp client already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.setState("connecting", "")

	go func() {
		defer close(c.done)
		c.runLoop(runCtx, h)
	}()
	return nil
}

func (c *TCPClient) Close() {
	if c == nil || c.closed.Swap(true) {
		return
	}
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *TCPClient) Snapshot() SourceSnapshot {
	if c == nil {
		return SourceSnapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return SourceSnapshot{
		Name:        c.cfg.Name,
		Kind:        "tcp",
		Addr:        c.cfg.Addr,
		State:       c.state,
		LastError:   c.lastErr,
		LastSeenUTC: formatSeen(c.lastSeen),
		Lines:       c.count,
	}
}

func (c *TCPClient) runLoop(ctx context.Context, h Handler) {
	dialer := &net.Dialer{Timeout: c.cfg.DialTimeout}

	for {
		if ctx.Err() != nil {
			c.setState("stopped", "")
			return
		}

		c.setState("connecting", "")
		conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
		if err != nil {
			c.setState("error", err.Error())
			if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
				c.setState("stopped", "")
				return
			}
			continue
		}

		c.setState("connected", "")
		c.log.Info("connected", "addr", c.cfg.Addr)
		c.readConn(ctx, conn, h)
		_ = conn.Close()

		if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
			c.setState("stopped", "")
			return
		}
	}
}

func (c *TCPClient) readConn(ctx context.Context, conn net.Conn, h Handler) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	sender := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(sender); err == nil {
		sender = host
	}

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 1024), c.cfg.MaxLineBytes)
	for sc.Scan() {
		line := cleanLine(sc.Text())
		if line == "" {
			continue
		}
		h(c.cfg.Name, sender, line)

		c.mu.Lock()
		c.lastSeen = time.Now().UTC()
		c.count++
		c.mu.Unlock()
	}

	err := sc.Err()
	switch {
	case ctx.Err() != nil:
	case err == nil, errors.Is(err, net.ErrClosed):
		c.setState("disconnected", "")
		c.log.Warn("disconnected", "addr", c.cfg.Addr)
	default:
		c.setState("disconnected", err.Error())
		c.log.Warn("disconnected", "addr", c.cfg.Addr, "err", err)
	}
}

func (c *TCPClient) setState(state string, lastErr string) {
	c.mu.Lock()
	c.state = state
	if lastErr != "" {
		c.lastErr = lastErr
	} else if state == "connected" || state == "connecting" || state == "stopped" {
		c.lastErr = ""
	}
	c.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
