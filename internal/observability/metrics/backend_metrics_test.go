package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
)

func TestOutcome(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "ok", err: nil, want: OutcomeOK},
		{name: "deadline", err: fmt.Errorf("count: %w", context.DeadlineExceeded), want: OutcomeDeadlineExceeded},
		{name: "invalid", err: quotadomain.ErrInvalidLimit, want: OutcomeInvalidArgument},
		{name: "not_found", err: quotadomain.ErrNotFound, want: OutcomeNotFound},
		{name: "permission", err: fmt.Errorf("%w: sudo", quotadomain.ErrPermissionDenied), want: OutcomePermissionDenied},
		{name: "unavailable", err: fmt.Errorf("%w: exit 2", quotadomain.ErrBackendUnavailable), want: OutcomeBackendUnavailable},
		{name: "unknown", err: errors.New("boom"), want: OutcomeUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Outcome(tc.err); got != tc.want {
				t.Fatalf("expected outcome %q, got %q", tc.want, got)
			}
		})
	}
}

func TestObserveCallCountsErrors(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewBackendMetrics(registry, Config{ServiceName: "quotaledger", Environment: "test"})

	m.ObserveCall("command", "quota_get", time.Now(), nil)
	m.ObserveCall("command", "quota_get", time.Now(), quotadomain.ErrBackendUnavailable)

	got := testutil.ToFloat64(m.callErrors.WithLabelValues("command", "quota_get", OutcomeBackendUnavailable))
	if got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	if n := testutil.CollectAndCount(m.callDuration); n != 2 {
		t.Fatalf("expected 2 duration series, got %d", n)
	}
}

func TestSetExpiredProjects(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewBackendMetrics(registry, Config{})

	m.SetExpiredProjects(4)
	if got := testutil.ToFloat64(m.expiredProjects); got != 4 {
		t.Fatalf("expected gauge 4, got %v", got)
	}
}

func TestBackendMetricsNilSafe(t *testing.T) {
	var m *BackendMetrics
	m.ObserveCall("database", "quota_set", time.Now(), nil)
	m.SetExpiredProjects(1)
	m.IncSweep(nil)
	m.ObserveLockWait("expiration_file", time.Second)
}
