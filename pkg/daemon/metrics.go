package daemon

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the daemon's prometheus collectors.
type Metrics struct {
	controllerOps *prometheus.CounterVec
	requests      *prometheus.CounterVec
	fanTarget     *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg, if given.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		controllerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smcctl",
			Name:      "controller_operations_total",
			Help:      "Controller operations performed by the daemon, by outcome.",
		}, []string{"op", "result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smcctl",
			Name:      "rpc_requests_total",
			Help:      "RPC requests served, by route and status code.",
		}, []string{"method", "route", "code"}),
		fanTarget: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "smcctl",
			Name:      "fan_target_rpm",
			Help:      "Last target speed written to each fan. Zero means automatic.",
		}, []string{"fan"}),
	}
	if reg != nil {
		reg.MustRegister(m.controllerOps, m.requests, m.fanTarget)
	}
	return m
}

func (m *Metrics) observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.controllerOps.WithLabelValues(op, result).Inc()
}

func (m *Metrics) observeRequest(method, route string, code int) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

func (m *Metrics) setFanTarget(index, rpm int) {
	m.fanTarget.WithLabelValues(strconv.Itoa(index)).Set(float64(rpm))
}
