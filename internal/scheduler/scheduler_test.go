package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditmeter/internal/clock"
	"github.com/smallbiznis/creditmeter/internal/config"
	eventdomain "github.com/smallbiznis/creditmeter/internal/eventdef/domain"
	plandomain "github.com/smallbiznis/creditmeter/internal/plandef/domain"
	"go.uber.org/zap"
)

type fakeEvents struct {
	eventdomain.Service
	refresh func(ctx context.Context) error
	calls   int
}

func (f *fakeEvents) Refresh(ctx context.Context) error {
	f.calls++
	if f.refresh != nil {
		return f.refresh(ctx)
	}
	return nil
}

type fakePlans struct {
	plandomain.Service
	err   error
	calls int
}

func (f *fakePlans) Refresh(context.Context) error {
	f.calls++
	return f.err
}

func newTestScheduler(t *testing.T, events *fakeEvents, plans *fakePlans, cfg config.SchedulerConfig) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	s, err := New(Params{
		Log:    zap.NewNop(),
		Clock:  clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		GenID:  node,
		Events: events,
		Plans:  plans,
		Cfg:    config.Config{Scheduler: cfg},
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	// nil metrics are inert; keeps the default registry clean across tests
	s.metrics = nil
	return s
}

func TestRunOnceRefreshesBothRegistries(t *testing.T) {
	events, plans := &fakeEvents{}, &fakePlans{}
	s := newTestScheduler(t, events, plans, config.SchedulerConfig{})

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if events.calls != 1 || plans.calls != 1 {
		t.Fatalf("expected one refresh each, got events=%d plans=%d", events.calls, plans.calls)
	}
}

func TestRunOnceReportsRegistryFailure(t *testing.T) {
	storeErr := errors.New("store down")
	events, plans := &fakeEvents{}, &fakePlans{err: storeErr}
	s := newTestScheduler(t, events, plans, config.SchedulerConfig{})

	err := s.RunOnce(context.Background())
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
	if events.calls != 1 {
		t.Fatalf("event registry refresh must still run, got %d calls", events.calls)
	}
}

func TestRunJobTimeoutIsSoft(t *testing.T) {
	events := &fakeEvents{refresh: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	s := newTestScheduler(t, events, &fakePlans{}, config.SchedulerConfig{JobTimeout: 5 * time.Millisecond})

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected timeout to be swallowed, got %v", err)
	}
}

func TestDisabledByDefault(t *testing.T) {
	s := newTestScheduler(t, &fakeEvents{}, &fakePlans{}, config.SchedulerConfig{})
	if s.Enabled() {
		t.Fatal("zero interval must disable the job")
	}
	// returns immediately
	s.RunForever(context.Background())
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	if _, err := New(Params{Log: zap.NewNop()}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
