package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	obscontext "github.com/mygitzaki/zylike-creator-platform-sub001/internal/observability/context"
	obslogger "github.com/mygitzaki/zylike-creator-platform-sub001/internal/observability/logger"
	obsmetrics "github.com/mygitzaki/zylike-creator-platform-sub001/internal/observability/metrics"
	payoutdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/payout/domain"
)

type jobRun struct {
	mu             sync.Mutex
	job            string
	runID          string
	batchSize      int
	startedAt      time.Time
	processedCount int
	errorCount     int
}

type jobRunKey struct{}

func (r *jobRun) AddProcessed(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processedCount += count
}

func (r *jobRun) IncError() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorCount++
}

func (s *Scheduler) ensureJobRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing := jobRunFromContext(ctx); existing != nil {
		return ctx, existing, false
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: time.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithRunID(ctx, run.runID)
	ctx = s.withLogContext(ctx, 0)
	return ctx, run, true
}

func jobRunFromContext(ctx context.Context) *jobRun {
	if ctx == nil {
		return nil
	}
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok {
		return run
	}
	return nil
}

func (s *Scheduler) withLogContext(ctx context.Context, creatorID snowflake.ID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if actorType, _ := obscontext.ActorFromContext(ctx); actorType == "" {
		ctx = obscontext.WithActor(ctx, "system", "scheduler")
	}
	if creatorID != 0 {
		ctx = obscontext.WithCreatorID(ctx, creatorID.String())
	}
	return ctx
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int("batch_size", run.batchSize),
	)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", time.Since(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processedCount),
		zap.Int("error_count", run.errorCount),
	}
	log := s.logger(ctx)
	if run.errorCount > 0 {
		log.Warn("scheduler.job.finish", fields...)
		return
	}
	log.Info("scheduler.job.finish", fields...)
}

func (s *Scheduler) logSchedulerError(ctx context.Context, run *jobRun, msg string, job string, creatorID snowflake.ID, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	if run != nil {
		run.IncError()
	}
	ctx = s.withLogContext(ctx, creatorID)
	baseFields := []zap.Field{
		zap.String("job", job),
		zap.String("creator_id", idString(creatorID)),
		zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
		zap.String("error", err.Error()),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
	}
	s.logger(ctx).Error(msg, append(baseFields, fields...)...)
}

func (s *Scheduler) logPayoutDispatched(ctx context.Context, payout *payoutdomain.Payout, method string) {
	ctx = s.withLogContext(ctx, payout.CreatorID)
	s.logger(ctx).Info("payout.dispatched",
		zap.String("payout_id", idString(payout.ID)),
		zap.String("creator_id", idString(payout.CreatorID)),
		zap.String("reason", string(payout.Reason)),
		zap.String("total_amount", payout.TotalAmount.StringFixed(2)),
		zap.String("method", method),
	)
}

func (s *Scheduler) logCreatorBlocked(ctx context.Context, blocked payoutdomain.BlockedCreator) {
	ctx = s.withLogContext(ctx, blocked.CreatorID)
	s.logger(ctx).Warn("scheduler.creator.blocked",
		zap.String("creator_id", idString(blocked.CreatorID)),
		zap.String("reason", string(blocked.Reason)),
	)
}

func idString(id snowflake.ID) string {
	if id == 0 {
		return ""
	}
	return id.String()
}
