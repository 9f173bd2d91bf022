package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
)

const (
	OutcomeOK                 = "ok"
	OutcomeInvalidArgument    = "invalid_argument"
	OutcomeNotFound           = "not_found"
	OutcomePermissionDenied   = "permission_denied"
	OutcomeBackendUnavailable = "backend_unavailable"
	OutcomeDeadlineExceeded   = "deadline_exceeded"
	OutcomeUnknown            = "unknown"
)

// BackendMetrics tracks calls to quota stores, usage backends and the
// expiration registry. A nil *BackendMetrics is a valid no-op.
type BackendMetrics struct {
	callDuration    *prometheus.HistogramVec
	callErrors      *prometheus.CounterVec
	expiredProjects prometheus.Gauge
	sweeps          *prometheus.CounterVec
	lockWait        *prometheus.HistogramVec
}

var (
	backendMetricsOnce sync.Once
	backendMetrics     *BackendMetrics
)

// Backend returns the singleton backend metrics registered on the default registerer.
func Backend() *BackendMetrics {
	return BackendWithConfig(Config{})
}

// BackendWithConfig returns the singleton backend metrics using config labels.
func BackendWithConfig(cfg Config) *BackendMetrics {
	backendMetricsOnce.Do(func() {
		backendMetrics = NewBackendMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return backendMetrics
}

// NewBackendMetrics registers a fresh set of collectors on registerer.
func NewBackendMetrics(registerer prometheus.Registerer, cfg Config) *BackendMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "quotaledger"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	callDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "quotaledger_backend_call_duration_seconds",
		Help:        "Latency of quota, usage and expiration backend calls.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"backend", "operation", "outcome"})
	callErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "quotaledger_backend_call_errors_total",
		Help:        "Failed backend calls by low-cardinality outcome.",
		ConstLabels: constLabels,
	}, []string{"backend", "operation", "outcome"})
	expiredProjects := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "quotaledger_expired_projects",
		Help:        "Projects whose expiration date is before today, as of the last sweep.",
		ConstLabels: constLabels,
	})
	sweeps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "quotaledger_expiration_sweeps_total",
		Help:        "Expiration sweeps by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "quotaledger_lock_wait_seconds",
		Help:        "Time spent waiting for exclusive write sections.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	}, []string{"resource"})

	registerer.MustRegister(callDuration, callErrors, expiredProjects, sweeps, lockWait)

	return &BackendMetrics{
		callDuration:    callDuration,
		callErrors:      callErrors,
		expiredProjects: expiredProjects,
		sweeps:          sweeps,
		lockWait:        lockWait,
	}
}

// ObserveCall records the latency and outcome of one backend call.
func (m *BackendMetrics) ObserveCall(backend, operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := Outcome(err)
	m.callDuration.WithLabelValues(backend, operation, outcome).Observe(time.Since(started).Seconds())
	if err != nil {
		m.callErrors.WithLabelValues(backend, operation, outcome).Inc()
	}
}

// SetExpiredProjects publishes the expired project count from the last sweep.
func (m *BackendMetrics) SetExpiredProjects(n int) {
	if m == nil {
		return
	}
	m.expiredProjects.Set(float64(n))
}

// IncSweep counts a finished expiration sweep.
func (m *BackendMetrics) IncSweep(err error) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(Outcome(err)).Inc()
}

// ObserveLockWait records how long a caller waited for an exclusive section.
func (m *BackendMetrics) ObserveLockWait(resource string, wait time.Duration) {
	if m == nil {
		return
	}
	if wait < 0 {
		wait = 0
	}
	m.lockWait.WithLabelValues(resource).Observe(wait.Seconds())
}

// Outcome maps an error to a low-cardinality label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeDeadlineExceeded
	case errors.Is(err, quotadomain.ErrInvalidArgument):
		return OutcomeInvalidArgument
	case errors.Is(err, quotadomain.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, quotadomain.ErrPermissionDenied):
		return OutcomePermissionDenied
	case errors.Is(err, quotadomain.ErrBackendUnavailable):
		return OutcomeBackendUnavailable
	default:
		return OutcomeUnknown
	}
}
