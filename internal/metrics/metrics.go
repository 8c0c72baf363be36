package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nkiryanov/agonauth/internal/service/auth"
)

const namespace = "agonauth"

// FlowMetrics counts auth flows by outcome and observes how long they take
type FlowMetrics struct {
	flows    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewFlowMetrics(reg prometheus.Registerer) (*FlowMetrics, error) {
	m := &FlowMetrics{
		flows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_flows_total",
			Help:      "Completed auth flows by flow and outcome.",
		}, []string{"flow", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "auth_flow_duration_seconds",
			Help:      "Auth flow duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"flow"}),
	}

	for _, c := range []prometheus.Collector{m.flows, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *FlowMetrics) FlowCompleted(flow auth.Flow, outcome auth.Outcome, elapsed time.Duration) {
	m.flows.WithLabelValues(string(flow), string(outcome)).Inc()
	m.duration.WithLabelValues(string(flow)).Observe(elapsed.Seconds())
}

// Registry with flow metrics plus go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler exposes everything gathered by reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
