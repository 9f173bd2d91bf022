package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotaledger/internal/clock"
	expirationdomain "github.com/smallbiznis/quotaledger/internal/expiration/domain"
	obsmetrics "github.com/smallbiznis/quotaledger/internal/observability/metrics"
	"github.com/smallbiznis/quotaledger/internal/scheduler/guard"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

const jobExpirationSweep = "expiration_sweep"

type Params struct {
	fx.In

	Registry expirationdomain.Registry
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Metrics  *obsmetrics.BackendMetrics `optional:"true"`
	Config   Config                     `optional:"true"`
}

// Scheduler periodically reports projects past their expiration date.
// It only observes; nothing is deleted or disabled.
type Scheduler struct {
	registry expirationdomain.Registry
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	metrics  *obsmetrics.BackendMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Registry == nil || p.Log == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		registry: p.Registry,
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		metrics:  p.Metrics,
	}, nil
}

// SweepResult summarizes one pass over the registry.
type SweepResult struct {
	Total     int
	Expired   []string
	Malformed int
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, jobExpirationSweep, s.cfg.SweepTimeout, func(ctx context.Context) error {
		_, err := s.SweepExpired(ctx)
		return err
	})
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}

	err := fn(ctx)
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick retries
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// SweepExpired counts projects whose expiration date is before today and
// publishes the count.
func (s *Scheduler) SweepExpired(ctx context.Context) (SweepResult, error) {
	ctx, run, owner := s.ensureJobRun(ctx, jobExpirationSweep)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	records, err := s.registry.GetAll(ctx)
	if err != nil {
		s.metrics.IncSweep(err)
		s.logSchedulerError(ctx, run, "scheduler.sweep.read_failed", err)
		return SweepResult{}, err
	}

	now := s.clock.Now()
	result := SweepResult{Total: len(records)}
	for projectID, date := range records {
		expired, err := guard.IsExpired(date, now)
		if err != nil {
			result.Malformed++
			s.logger(ctx).Warn("scheduler.project.malformed_date",
				zap.String("project_id", projectID),
				zap.String("expires_on", date),
			)
			continue
		}
		if !expired {
			continue
		}
		result.Expired = append(result.Expired, projectID)
		s.logger(ctx).Debug("scheduler.project.expired",
			zap.String("project_id", projectID),
			zap.String("expires_on", date),
		)
	}
	sort.Strings(result.Expired)
	run.AddProcessed(result.Total)

	s.metrics.SetExpiredProjects(len(result.Expired))
	s.metrics.IncSweep(nil)
	s.logger(ctx).Info("scheduler.sweep.done",
		zap.Int("projects", result.Total),
		zap.Int("expired", len(result.Expired)),
		zap.Int("malformed", result.Malformed),
	)
	return result, nil
}
