package bridge

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	received  *prometheus.CounterVec
	parsed    *prometheus.CounterVec
	rejected  prometheus.Counter
	published prometheus.Counter
	errors    prometheus.Counter
	aisGated  prometheus.Counter
	vessels   prometheus.Gauge
	evicted   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nmea_bridge",
			Subsystem: "input",
			Name:      "sentences_received_total",
			Help:      "Lines received per source",
		}, []string{"source"}),
		parsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nmea_bridge",
			Subsystem: "input",
			Name:      "sentences_parsed_total",
			Help:      "Sentences accepted per sentence type",
		}, []string{"type"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nmea_bridge",
			Subsystem: "input",
			Name:      "sentences_rejected_total",
			Help:      "Lines dropped for bad checksum, too few fields or unsupported type",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nmea_bridge",
			Subsystem: "output",
			Name:      "messages_published_total",
			Help:      "Messages handed to the publisher",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nmea_bridge",
			Subsystem: "output",
			Name:      "publish_errors_total",
			Help:      "Publisher calls that returned an error",
		}),
		aisGated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nmea_bridge",
			Subsystem: "ais",
			Name:      "packets_throttled_total",
			Help:      "AIS packets decoded but not forwarded because of the stream interval",
		}),
		vessels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nmea_bridge",
			Subsystem: "ais",
			Name:      "vessels",
			Help:      "Vessels currently tracked",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nmea_bridge",
			Subsystem: "ais",
			Name:      "vessels_evicted_total",
			Help:      "Vessels removed after the inactivity timeout",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.received, m.parsed, m.rejected, m.published, m.errors, m.aisGated, m.vessels, m.evicted} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
