package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/clock"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/disbursement"
	obsmetrics "github.com/mygitzaki/zylike-creator-platform-sub001/internal/observability/metrics"
	payoutdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/payout/domain"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/scheduler/guard"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	PayoutSvc  payoutdomain.Service
	Dispatcher disbursement.Dispatcher
	Locker     *Locker `optional:"true"`
	Config     Config  `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	payoutSvc  payoutdomain.Service
	dispatcher disbursement.Dispatcher
	locker     *Locker

	mu         sync.Mutex
	lastRunDay time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.PayoutSvc == nil || p.Dispatcher == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		payoutSvc:  p.PayoutSvc,
		dispatcher: p.Dispatcher,
		locker:     p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// Deadline is a soft timeout: unclaimed work is picked up next tick.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{JobPayoutBatch, s.isJobEnabled(JobPayoutBatch), func(ctx context.Context) error {
			return s.runJob(ctx, JobPayoutBatch, s.cfg.BatchConcurrency, s.cfg.JobTimeout, s.PayoutBatchJob)
		}},
		{JobDispatchRecovery, s.isJobEnabled(JobDispatchRecovery), func(ctx context.Context) error {
			return s.runJob(ctx, JobDispatchRecovery, s.cfg.RecoveryBatchSize, s.cfg.JobTimeout, s.DispatchRecoveryJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// Empty means every job runs in this process.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// PayoutBatchJob runs the scheduled batch at most once per payout day in
// this process, and once across replicas when a Locker is configured.
func (s *Scheduler) PayoutBatchJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobPayoutBatch, s.cfg.BatchConcurrency)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	now := s.clock.Now()
	schedMetrics := obsmetrics.Scheduler()

	s.mu.Lock()
	lastRunDay := s.lastRunDay
	s.mu.Unlock()
	if err := guard.EnsureBatchCanRun(now, lastRunDay); err != nil {
		reason := obsmetrics.SchedulerBatchDeferredReasonNotPayDay
		if errors.Is(err, guard.ErrBatchAlreadyRan) {
			reason = obsmetrics.SchedulerBatchDeferredReasonAlreadyRan
		}
		schedMetrics.IncBatchDeferred(JobPayoutBatch, reason)
		return nil
	}

	if s.locker.Enabled() {
		token, ok, err := s.locker.TryLock(ctx, payoutBatchLockKey, s.cfg.RunLockTTL)
		if err != nil {
			return fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			schedMetrics.IncBatchDeferred(JobPayoutBatch, obsmetrics.SchedulerBatchDeferredReasonRunLocked)
			return nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), payoutBatchLockKey, token); err != nil {
				s.logger(ctx).Warn("release run lock failed", zap.Error(err))
			}
		}()
	}

	result, err := s.RunScheduledBatch(ctx, now)
	if err != nil {
		return err
	}
	run.AddProcessed(result.ProcessedCount)

	s.mu.Lock()
	s.lastRunDay = guard.DayOf(now)
	s.mu.Unlock()

	if len(result.Failures) > 0 {
		errs := make([]error, 0, len(result.Failures))
		for _, f := range result.Failures {
			errs = append(errs, fmt.Errorf("creator %s: %w", f.CreatorID, f.Err))
		}
		return errors.Join(errs...)
	}
	return nil
}
