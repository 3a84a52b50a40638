package session

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records session lifecycle counters. A nil *Metrics is a no-op.
type Metrics struct {
	issued       prometheus.Counter
	validations  *prometheus.CounterVec
	refreshed    prometheus.Counter
	revoked      prometheus.Counter
	swept        prometheus.Counter
	storeLatency *prometheus.HistogramVec
}

// NewMetrics creates the session metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessiond_sessions_issued_total",
			Help: "Sessions issued by login or register",
		}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessiond_session_validations_total",
			Help: "Token validations by result",
		}, []string{"result"}),
		refreshed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessiond_sessions_refreshed_total",
			Help: "Successful session refreshes",
		}),
		revoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessiond_sessions_revoked_total",
			Help: "Sessions removed by logout or revoke-all",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessiond_sessions_swept_total",
			Help: "Expired sessions removed by the janitor",
		}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sessiond_session_store_duration_seconds",
			Help:    "Session store operation latency",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"op"}),
	}

	reg.MustRegister(m.issued, m.validations, m.refreshed, m.revoked, m.swept, m.storeLatency)
	return m
}

func (m *Metrics) recordIssued() {
	if m != nil {
		m.issued.Inc()
	}
}

func (m *Metrics) recordValidation(err error) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(validationResult(err)).Inc()
}

func (m *Metrics) recordRefreshed() {
	if m != nil {
		m.refreshed.Inc()
	}
}

func (m *Metrics) recordRevoked(n int) {
	if m != nil && n > 0 {
		m.revoked.Add(float64(n))
	}
}

func (m *Metrics) recordSwept(n int) {
	if m != nil && n > 0 {
		m.swept.Add(float64(n))
	}
}

func (m *Metrics) observeStore(op string, start time.Time) {
	if m != nil {
		m.storeLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func validationResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidToken):
		return "invalid"
	case errors.Is(err, ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, ErrSessionExpired):
		return "expired"
	default:
		return "error"
	}
}
