package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"nmea-bridge/internal/ais"
	"nmea-bridge/internal/bridge"
	"nmea-bridge/internal/config"
	"nmea-bridge/internal/ingest"
	"nmea-bridge/internal/led"
	"nmea-bridge/internal/nmea"
	"nmea-bridge/internal/publish"
	"nmea-bridge/internal/throttle"
	"nmea-bridge/internal/web"
)

const shutdownTimeout = 5 * time.Second

func publishConfig(cfg config.Config, log *slog.Logger) publish.Config {
	return publish.Config{
		URL:             cfg.NATS.URL,
		ClientName:      cfg.NATS.ClientName,
		Username:        cfg.NATS.Username,
		Password:        cfg.NATS.Password,
		TopicPrefix:     cfg.NATS.TopicPrefix,
		DiscoveryPrefix: cfg.NATS.DiscoveryPrefix,
		KVBucket:        cfg.NATS.KVBucket,
		ConnectTimeout:  cfg.NATS.ConnectTimeout,
		Device: publish.Device{
			Identifiers:  cfg.Device.Identifiers,
			Name:         cfg.Device.Name,
			Manufacturer: cfg.Device.Manufacturer,
			Model:        cfg.Device.Model,
		},
		Logger: log,
	}
}

func bridgeConfig(cfg config.Config, log *slog.Logger, reg prometheus.Registerer, onEvent func(bridge.Event)) bridge.Config {
	return bridge.Config{
		Throttle: throttle.Config{
			Intervals: cfg.Sensors.ThrottleIntervals(),
			Tracker:   cfg.Sensors.DeviceTracker.IsEnabled(),
		},
		AIS: ais.DecoderConfig{
			VesselTimeout:    cfg.AIS.VesselTimeout,
			MultipartTimeout: cfg.AIS.MultipartTimeout,
			MaxVessels:       cfg.AIS.MaxVessels,
			Logger:           log,
		},
		Logger:     log,
		Registerer: reg,
		OnEvent:    onEvent,
	}
}

func udpConfig(cfg config.Config, log *slog.Logger) (ingest.UDPConfig, bool) {
	out := ingest.UDPConfig{BindAddress: cfg.UDP.BindAddress, Logger: log}
	enabled := false
	for _, s := range cfg.UDP.Sources {
		out.Sources = append(out.Sources, ingest.Source{
			Name:        s.Name,
			Port:        s.Port,
			Enabled:     s.IsEnabled(),
			Description: s.Description,
		})
		enabled = enabled || s.IsEnabled()
	}
	return out, enabled
}

// lineSink fans one received line out to the side outputs and the bridge.
type lineSink struct {
	ctx      context.Context
	bridge   *bridge.Bridge
	led      *led.Indicator
	repeater *ingest.Repeater
	log      *slog.Logger
}

func (s *lineSink) handle(source, sender, line string) {
	if nmea.ValidChecksum(line) {
		s.led.Pulse()
		if err := s.repeater.Send(line); err != nil {
			s.log.Debug("repeat failed", "dest", s.repeater.Dest(), "err", err)
		}
	}
	s.bridge.HandleLine(s.ctx, source, sender, line)
}

func runBridge(ctx context.Context, cfg config.Config, log *slog.Logger, logs *web.LogBuffer) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pub, err := publish.Dial(ctx, publishConfig(cfg, log))
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := pub.Close(cctx); err != nil {
			log.Warn("publisher close failed", "err", err)
		}
	}()

	events := web.NewEventBroadcaster()
	b, err := bridge.New(pub, bridgeConfig(cfg, log, reg, events.Publish))
	if err != nil {
		return err
	}

	ind, err := led.Open(cfg.LED.GPIO, cfg.LED.Hold)
	if err != nil {
		log.Warn("activity led unavailable", "gpio", cfg.LED.GPIO, "err", err)
		ind = nil
	}
	defer ind.Close()

	var rep *ingest.Repeater
	if cfg.UDP.Forward != "" {
		rep, err = ingest.NewRepeater(cfg.UDP.Forward)
		if err != nil {
			return fmt.Errorf("udp forward: %w", err)
		}
		defer rep.Close()
		log.Info("repeating sentences", "dest", cfg.UDP.Forward)
	}

	sink := &lineSink{ctx: ctx, bridge: b, led: ind, repeater: rep, log: log}

	var udp *ingest.UDPListener
	if ucfg, ok := udpConfig(cfg, log); ok {
		udp, err = ingest.ListenUDP(ctx, ucfg, sink.handle)
		if err != nil {
			return err
		}
		defer udp.Close()
	}

	var tcpClients []*ingest.TCPClient
	for _, s := range cfg.TCP.Sources {
		if !s.IsEnabled() {
			continue
		}
		c, err := ingest.NewTCPClient(ingest.TCPConfig{
			Name:           s.Name,
			Addr:           s.Addr,
			ReconnectDelay: s.ReconnectDelay,
			Logger:         log,
		})
		if err != nil {
			return err
		}
		if err := c.Start(ctx, sink.handle); err != nil {
			return err
		}
		defer c.Close()
		tcpClients = append(tcpClients, c)
	}
	var serialClients []*ingest.SerialClient
	for _, s := range cfg.Serial.Sources {
		if !s.IsEnabled() {
			continue
		}
		c, err := ingest.NewSerialClient(ingest.SerialConfig{
			Name:   s.Name,
			Device: s.Device,
			Baud:   s.Baud,
			Logger: log,
		})
		if err != nil {
			return err
		}
		if err := c.Start(ctx, sink.handle); err != nil {
			return err
		}
		defer c.Close()
		serialClients = append(serialClients, c)
	}
	if udp == nil && len(tcpClients) == 0 && len(serialClients) == 0 {
		return errors.New("no sources started")
	}

	if cfg.Web.Listen != "" {
		status := web.NewStatus(b)
		status.SetStatic(cfg.NATS.URL, cfg.NATS.TopicPrefix)
		status.SetConnected(pub.Connected)
		status.SetSources(func() []ingest.SourceSnapshot {
			out := udp.Snapshot()
			for _, c := range tcpClients {
				out = append(out, c.Snapshot())
			}
			for _, c := range serialClients {
				out = append(out, c.Snapshot())
			}
			return out
		})
		h := web.Handler(web.Options{
			Status:   status,
			Logs:     logs,
			Events:   events,
			Gatherer: reg,
			Logger:   log,
			Version:  version,
		})
		go func() {
			log.Info("web listening", "addr", cfg.Web.Listen)
			if err := web.Serve(ctx, cfg.Web.Listen, h); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("web server stopped", "err", err)
			}
		}()
	}

	sweep := time.NewTicker(cfg.AIS.CleanupInterval)
	defer sweep.Stop()
	stats := time.NewTicker(cfg.Stats.Interval)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			b.LogStats()
			return nil
		case now := <-sweep.C:
			if removed := b.Sweep(ctx, now); len(removed) > 0 {
				log.Info("removed stale vessels", "count", len(removed))
			}
		case <-stats.C:
			b.LogStats()
		}
	}
}
