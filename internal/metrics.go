package internal

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ingenico/entity"
	"ingenico/gateway"
)

// Metrics counts gateway calls and payment transitions. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	transitions *prometheus.CounterVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingenico",
			Name:      "gateway_requests_total",
			Help:      "Gateway requests by kind and result.",
		}, []string{"kind", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ingenico",
			Name:      "gateway_request_duration_seconds",
			Help:      "Gateway round trip time.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 100},
		}, []string{"kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingenico",
			Name:      "payment_transitions_total",
			Help:      "Persisted payment state changes.",
		}, []string{"from", "to"}),
	}
	registerer.MustRegister(m.requests, m.duration, m.transitions)
	return m
}

func (m *Metrics) observeRequest(kind gateway.RequestKind, started time.Time, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(string(kind)).Observe(time.Since(started).Seconds())
	m.requests.WithLabelValues(string(kind), resultLabel(err)).Inc()
}

func (m *Metrics) observeTransition(from, to entity.PaymentState) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, gateway.ErrDeclined):
		return "declined"
	case errors.Is(err, gateway.ErrVerification):
		return "unverified"
	case errors.Is(err, gateway.ErrConfiguration):
		return "configuration"
	default:
		return "transport"
	}
}
