package link

import "github.com/prometheus/client_golang/prometheus"

// metrics are the core's Prometheus instruments, registered at
// construction against whatever Registerer the embedder supplies
// (prometheus.DefaultRegisterer if none), mirroring how the
// kstaniek-go-ampio-server example pairs a tarm/serial link with
// client_golang counters.
type metrics struct {
	framesSent    prometheus.Counter
	framesAcked   prometheus.Counter
	framesTimeout prometheus.Counter
	unexpectedAck prometheus.Counter
	resyncs       prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &metrics{
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "onboardlink_frames_sent_total",
			Help: "Frames handed to the byte pipe for transmission.",
		}),
		framesAcked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "onboardlink_frames_acked_total",
			Help: "Reliable sessions that completed with a matching ack.",
		}),
		framesTimeout: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "onboardlink_frames_timeout_total",
			Help: "Reliable sessions that exhausted their retries without an ack.",
		}),
		unexpectedAck: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "onboardlink_unexpected_acks_total",
			Help: "Ack frames dropped for referring to an unknown session or sequence.",
		}),
		resyncs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "onboardlink_deframer_resyncs_total",
			Help: "Cumulative count of stream deframer resynchronisations.",
		}),
	}
	for _, c := range []prometheus.Collector{m.framesSent, m.framesAcked, m.framesTimeout, m.unexpectedAck, m.resyncs} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				// A non-duplicate registration error just means this
				// counter won't be scraped; it never blocks the link.
				continue
			}
		}
	}
	return m
}
