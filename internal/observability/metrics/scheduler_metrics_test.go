package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/creditmeter/pkg/db"
)

func TestIncJobErrorUsesReason(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSchedulerMetrics(registry, Config{
		ServiceName: "creditmeter",
		Environment: "test",
	})

	m.IncJobError("registry_warm_refresh", context.DeadlineExceeded)
	m.IncJobError("registry_warm_refresh", &pgconn.PgError{Code: "55P03"})
	m.IncJobError("registry_warm_refresh", errors.New("boom"))
	m.IncJobError("registry_warm_refresh", nil)

	cases := map[string]float64{
		db.ReasonDeadlineExceeded: 1,
		db.ReasonLockTimeout:      1,
		db.ReasonUnknown:          1,
	}
	for reason, want := range cases {
		got := testutil.ToFloat64(m.jobErrors.WithLabelValues("registry_warm_refresh", reason))
		if got != want {
			t.Fatalf("reason %s: expected %v, got %v", reason, want, got)
		}
	}
}

func TestJobRunCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSchedulerMetrics(registry, Config{})

	m.IncJobRun("registry_warm_refresh")
	m.IncJobRun("registry_warm_refresh")

	if got := testutil.ToFloat64(m.jobRuns.WithLabelValues("registry_warm_refresh")); got != 2 {
		t.Fatalf("expected 2 runs, got %v", got)
	}
}

func TestNilSchedulerMetricsIsSafe(t *testing.T) {
	var m *SchedulerMetrics
	m.IncJobRun("x")
	m.IncJobError("x", errors.New("boom"))
	m.ObserveRunLoopLag(-1)
}
