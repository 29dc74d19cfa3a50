package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"finitefield.org/admin-console/internal/admin/login"
)

const (
	outcomeSuccess  = "success"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

var loginDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.3, 0.5, 1, 2, 5}

// Metrics tracks login attempts per backend.
type Metrics struct {
	Duration *prometheus.HistogramVec
	Attempts *prometheus.CounterVec
}

// NewMetrics registers the login collectors with reg. A nil reg uses the
// default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "login_duration_seconds",
				Help:      "Latency of console login attempts by backend and outcome",
				Buckets:   loginDurationBuckets,
			},
			[]string{"backend", "outcome"},
		),
		Attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "login_attempts_total",
				Help:      "Count of console login attempts by backend and outcome",
			},
			[]string{"backend", "outcome"},
		),
	}
}

// Instrumented wraps an Authenticator and records every attempt.
type Instrumented struct {
	next    Authenticator
	backend string
	metrics *Metrics
	now     func() time.Time
}

// Instrument decorates next with metrics labelled by backend.
func Instrument(next Authenticator, backend string, metrics *Metrics) *Instrumented {
	if next == nil {
		panic("gateway: authenticator is required")
	}
	if metrics == nil {
		panic("gateway: metrics are required")
	}
	return &Instrumented{next: next, backend: backend, metrics: metrics, now: time.Now}
}

// Authenticate implements Authenticator.
func (i *Instrumented) Authenticate(ctx context.Context, creds login.Credentials) (*Identity, error) {
	start := i.now()
	identity, err := i.next.Authenticate(ctx, creds)
	outcome := outcomeSuccess
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		outcome = outcomeRejected
	case err != nil:
		outcome = outcomeError
	}
	i.metrics.Duration.WithLabelValues(i.backend, outcome).Observe(i.now().Sub(start).Seconds())
	i.metrics.Attempts.WithLabelValues(i.backend, outcome).Inc()
	return identity, err
}
