package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBaud is the NMEA 0183 rate. AIS receivers usually talk at 38400.
const DefaultBaud = 4800

type SerialConfig struct {
	Name   string
	Device string
	Baud   int

	ReopenDelay time.Duration
	Logger      *slog.Logger
}

// SerialClient reads sentences from a serial port, reopening it when the
// device disappears (USB adapters come and go).
type SerialClient struct {
	cfg SerialConfig
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

// openPort is replaced in tests.
var openPort = func(device string, baud int) (io.ReadCloser, error) {
	return openSerial(device, baud)
}

func NewSerialClient(cfg SerialConfig) (*SerialClient, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("serial source name is required")
	}
	if cfg.Device == "" {
		return nil, fmt.Errorf("serial source device is required")
	}
	if cfg.Baud == 0 {
		cfg.Baud = DefaultBaud
	}
	if cfg.ReopenDelay <= 0 {
		cfg.ReopenDelay = 5 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &SerialClient{
		cfg:   cfg,
		log:   log.With("component", "serial", "source", cfg.Name),
		state: "stopped",
		done:  make(chan struct{}),
	}, nil
}

func (c *SerialClient) Start(ctx context.Context, h Handler) error {
	if c.closed.Load() {
		return fmt.Errorf("serial client is closed")
	}
	if h == nil {
		return fmt.Errorf("serial handler is nil")
	}
	if c.started.Swap(true) {
		return fmt.Errorf("serial client already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go func() {
		defer close(c.done)
		c.runLoop(runCtx, h)
	}()
	return nil
}

func (c *SerialClient) Close() {
	if c == nil || c.closed.Swap(true) || c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *SerialClient) Snapshot() SourceSnapshot {
	if c == nil {
		return SourceSnapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return SourceSnapshot{
		Name:        c.cfg.Name,
		Kind:        "serial",
		Addr:        fmt.Sprintf("%s@%d", c.cfg.Device, c.cfg.Baud),
		State:       c.state,
		LastError:   c.lastErr,
		LastSeenUTC: formatSeen(c.lastSeen),
		Lines:       c.count,
	}
}

func (c *SerialClient) runLoop(ctx context.Context, h Handler) {
	for ctx.Err() == nil {
		c.setState("opening", "")
		port, err := openPort(c.cfg.Device, c.cfg.Baud)
		if err != nil {
			c.setState("error", err.Error())
			c.log.Warn("open failed", "device", c.cfg.Device, "baud", c.cfg.Baud, "err", err)
		} else {
			c.setState("open", "")
			c.log.Info("serial open", "device", c.cfg.Device, "baud", c.cfg.Baud)
			c.readPort(ctx, port, h)
			_ = port.Close()
		}
		if !sleepCtx(ctx, c.cfg.ReopenDelay) {
			break
		}
	}
	c.setState("stopped", "")
}

func (c *SerialClient) readPort(ctx context.Context, port io.ReadCloser, h Handler) {
	stop := context.AfterFunc(ctx, func() { _ = port.Close() })
	defer stop()

	sc := bufio.NewScanner(port)
	// Sentences are at most 82 chars; leave headroom for proprietary ones.
	sc.Buffer(make([]byte, 0, 256), 4096)
	for sc.Scan() {
		line := cleanLine(sc.Text())
		if line == "" {
			continue
		}
		h(c.cfg.Name, c.cfg.Device, line)

		c.mu.Lock()
		c.lastSeen = time.Now().UTC()
		c.count++
		c.mu.Unlock()
	}
	if ctx.Err() != nil {
		return
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	c.setState("closed", err.Error())
	c.log.Warn("serial read stopped", "device", c.cfg.Device, "err", err)
}

func (c *SerialClient) setState(state string, lastErr string) {
	c.mu.Lock()
	c.state = state
	if lastErr != "" {
		c.lastErr = lastErr
	} else if state == "open" || state == "stopped" {
		c.lastErr = ""
	}
	c.mu.Unlock()
}
