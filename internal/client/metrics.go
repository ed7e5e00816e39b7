package client

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports command and liveness metrics to Prometheus.
type Metrics struct {
	commands *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	online   *prometheus.GaugeVec
	probes   *prometheus.CounterVec
}

// NewMetrics registers the client collectors on reg. If reg is nil the
// default registerer is used. Collectors that are already registered are
// reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smarthome_commands_total",
		Help: "Commands sent, by command and outcome",
	}, []string{"command", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "smarthome_command_latency_seconds",
		Help:    "Time between command publish and its terminal outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"command", "outcome"})
	online := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "smarthome_device_online",
		Help: "1 if the device is considered online",
	}, []string{"device_id"})
	probes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smarthome_probes_total",
		Help: "Liveness probes, by outcome",
	}, []string{"outcome"})

	var err error
	if commands, err = register(reg, commands); err != nil {
		return nil, err
	}
	if latency, err = register(reg, latency); err != nil {
		return nil, err
	}
	if online, err = register(reg, online); err != nil {
		return nil, err
	}
	if probes, err = register(reg, probes); err != nil {
		return nil, err
	}

	return &Metrics{commands: commands, latency: latency, online: online, probes: probes}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// CommandResolved counts a terminal command outcome.
func (m *Metrics) CommandResolved(res Result) {
	outcome := res.Outcome()
	m.commands.WithLabelValues(string(res.Command), outcome).Inc()
	if res.Latency > 0 {
		m.latency.WithLabelValues(string(res.Command), outcome).Observe(res.Latency.Seconds())
	}
}

// DeviceOnline sets the online gauge for a device.
func (m *Metrics) DeviceOnline(deviceID string, online bool) {
	v := 0.0
	if online {
		v = 1
	}
	m.online.WithLabelValues(deviceID).Set(v)
}

// Probe counts one probe outcome.
func (m *Metrics) Probe(err error) {
	m.probes.WithLabelValues(Reason(err)).Inc()
}
