package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Dial connects to NATS, opens the retention bucket when configured and
// announces the bridge. It keeps retrying until ConnectTimeout elapses.
func Dial(ctx context.Context, cfg Config) (*Publisher, error) {
	cfg = cfg.withDefaults()
	if cfg.URL == "" {
		return nil, errors.New("publish: nats url is required")
	}
	p := New(nil, nil, cfg)

	opts := []nats.Option{
		nats.Name(cfg.ClientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				p.log.Warn("nats disconnected, will retry", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			if !p.ready.Load() {
				return
			}
			p.log.Info("nats reconnected", "url", nc.ConnectedUrl())
			actx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := p.Announce(actx); err != nil {
				p.log.Warn("re-announce failed", "err", err)
			}
		}),
	}
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	p.log.Info("connecting to NATS", "url", cfg.URL, "client", cfg.ClientName)
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("publish: connect: %w", err)
	}
	if err := waitConnected(ctx, nc, cfg.ConnectTimeout); err != nil {
		nc.Close()
		return nil, err
	}
	p.mu.Lock()
	p.conn = nc
	p.mu.Unlock()
	p.close = func() error {
		if err := nc.FlushTimeout(2 * time.Second); err != nil {
			nc.Close()
			return err
		}
		return nc.Drain()
	}

	if cfg.KVBucket != "" {
		kv, err := openBucket(ctx, nc, cfg.KVBucket)
		if err != nil {
			nc.Close()
			return nil, err
		}
		p.mu.Lock()
		p.kv = kv
		p.mu.Unlock()
	}

	if err := p.Announce(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	p.ready.Store(true)
	p.log.Info("connected to NATS", "url", nc.ConnectedUrl())
	return p, nil
}

func waitConnected(ctx context.Context, nc *nats.Conn, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	t := time.NewTicker(500 * time.Millisecond)
	defer t.Stop()
	for !nc.IsConnected() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("publish: not connected to NATS after %s: %w", timeout, ctx.Err())
		case <-t.C:
		}
	}
	return nil
}

// openBucket gets the bucket, creating it on first use.
func openBucket(ctx context.Context, nc *nats.Conn, name string) (jetstream.KeyValue, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("publish: jetstream: %w", err)
	}
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, fmt.Errorf("publish: open bucket %s: %w", name, err)
	}
	kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: "retained nmea-bridge state",
		History:     1,
	})
	if err != nil {
		if errors.Is(err, jetstream.ErrBucketExists) {
			return js.KeyValue(ctx, name)
		}
		return nil, fmt.Errorf("publish: create bucket %s: %w", name, err)
	}
	return kv, nil
}
