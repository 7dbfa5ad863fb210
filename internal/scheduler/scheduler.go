package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditmeter/internal/clock"
	"github.com/smallbiznis/creditmeter/internal/config"
	eventdomain "github.com/smallbiznis/creditmeter/internal/eventdef/domain"
	obsmetrics "github.com/smallbiznis/creditmeter/internal/observability/metrics"
	plandomain "github.com/smallbiznis/creditmeter/internal/plandef/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobRegistryWarmRefresh = "registry_warm_refresh"

	defaultJobTimeout = 30 * time.Second
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	GenID   *snowflake.Node
	Events  eventdomain.Service
	Plans   plandomain.Service
	Cfg     config.Config
	Metrics *obsmetrics.SchedulerMetrics `optional:"true"`
}

// Scheduler keeps the definition registries warm so request paths rarely pay for a reload.
type Scheduler struct {
	log      *zap.Logger
	clock    clock.Clock
	genID    *snowflake.Node
	events   eventdomain.Service
	plans    plandomain.Service
	interval time.Duration
	timeout  time.Duration
	metrics  *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.GenID == nil || p.Events == nil || p.Plans == nil {
		return nil, ErrInvalidConfig
	}
	timeout := p.Cfg.Scheduler.JobTimeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	metrics := p.Metrics
	if metrics == nil {
		metrics = obsmetrics.Scheduler()
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		clock:    p.Clock,
		genID:    p.GenID,
		events:   p.Events,
		plans:    p.Plans,
		interval: p.Cfg.Scheduler.WarmRefreshInterval,
		timeout:  timeout,
		metrics:  metrics,
	}, nil
}

func (s *Scheduler) Enabled() bool {
	return s != nil && s.interval > 0
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.startJobRun(ctx, name)
	s.logJobStart(ctx, run)
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick retries
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	s.metrics.IncJobError(name, err)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, JobRegistryWarmRefresh, s.timeout, s.WarmRefreshJob)
}

// WarmRefreshJob reloads both registries. A failed reload keeps the previous snapshot.
func (s *Scheduler) WarmRefreshJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	var err error
	if e := s.events.Refresh(ctx); e != nil {
		err = errors.Join(err, fmt.Errorf("event registry: %w", e))
	} else {
		run.AddProcessed(1)
	}
	if e := s.plans.Refresh(ctx); e != nil {
		err = errors.Join(err, fmt.Errorf("plan registry: %w", e))
	} else {
		run.AddProcessed(1)
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if lag := s.clock.Now().Sub(nextRun); lag > 0 {
			s.metrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.interval)
	}
}
