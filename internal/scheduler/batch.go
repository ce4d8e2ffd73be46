package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/disbursement"
	obscontext "github.com/mygitzaki/zylike-creator-platform-sub001/internal/observability/context"
	obsmetrics "github.com/mygitzaki/zylike-creator-platform-sub001/internal/observability/metrics"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/observability/tracing"
	payoutdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/payout/domain"
)

// Failure is a creator whose unit did not complete in a run.
type Failure struct {
	CreatorID snowflake.ID
	PayoutID  snowflake.ID
	Stage     string
	Err       error
}

// RunResult summarizes a scheduled or manual run.
type RunResult struct {
	RunID                 string
	ProcessedCount        int
	TotalAmount           decimal.Decimal
	Failures              []Failure
	Blocked               []payoutdomain.BlockedCreator
	SkippedBelowThreshold []snowflake.ID
	Payouts               []payoutdomain.Payout
}

// RunScheduledBatch pays every creator that qualifies at now. Creators are
// processed in parallel up to BatchConcurrency; one creator's failure never
// aborts the others. Running it twice is safe: claimed rows are skipped.
func (s *Scheduler) RunScheduledBatch(ctx context.Context, now time.Time) (RunResult, error) {
	now = now.UTC()
	ctx, runID := s.withRun(ctx)
	ctx, span := tracing.Tracer().Start(ctx, "scheduler.RunScheduledBatch")
	defer span.End()

	result := RunResult{RunID: runID, TotalAmount: decimal.Zero}
	plan, err := s.payoutSvc.BuildBatch(ctx, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build batch")
		return result, fmt.Errorf("build batch: %w", err)
	}

	schedMetrics := obsmetrics.Scheduler()
	result.Blocked = plan.Blocked
	result.SkippedBelowThreshold = plan.SkippedBelowThreshold
	for _, blocked := range plan.Blocked {
		schedMetrics.IncPayoutBlocked(string(blocked.Reason))
		s.logCreatorBlocked(ctx, blocked)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchConcurrency)
	for _, intent := range plan.Intents {
		g.Go(func() error {
			payout, failure := s.processIntent(gctx, intent, now)
			mu.Lock()
			defer mu.Unlock()
			if payout != nil {
				result.ProcessedCount++
				result.TotalAmount = result.TotalAmount.Add(payout.TotalAmount)
				result.Payouts = append(result.Payouts, *payout)
			}
			if failure != nil {
				result.Failures = append(result.Failures, *failure)
			}
			return nil
		})
	}
	_ = g.Wait()

	sortResult(&result)
	schedMetrics.AddBatchProcessed(JobPayoutBatch, "payouts", result.ProcessedCount)
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.Int("payouts", result.ProcessedCount),
		attribute.Int("failures", len(result.Failures)),
		attribute.Int("blocked", len(result.Blocked)),
	)

	s.logger(ctx).Info("scheduler.batch.finished",
		zap.String("run_id", runID),
		zap.Int("processed_count", result.ProcessedCount),
		zap.String("total_amount", result.TotalAmount.StringFixed(2)),
		zap.Int("failure_count", len(result.Failures)),
		zap.Int("blocked_count", len(result.Blocked)),
		zap.Int("skipped_below_threshold", len(result.SkippedBelowThreshold)),
	)
	return result, nil
}

// RunManualPayout pays one creator immediately regardless of the minimum.
func (s *Scheduler) RunManualPayout(ctx context.Context, creatorID snowflake.ID, actorID, notes string) (RunResult, error) {
	if actorID != "" {
		ctx = obscontext.WithActor(ctx, "admin", actorID)
	}
	ctx, runID := s.withRun(ctx)
	ctx, span := tracing.Tracer().Start(ctx, "scheduler.RunManualPayout")
	defer span.End()
	span.SetAttributes(attribute.String("creator_id", creatorID.String()))

	result := RunResult{RunID: runID, TotalAmount: decimal.Zero}
	now := s.clock.Now()
	intent, err := s.payoutSvc.BuildManualIntent(ctx, creatorID, now, actorID, notes)
	if err != nil {
		if errors.Is(err, payoutdomain.ErrPayoutBlocked) {
			blocked := payoutdomain.BlockedCreator{CreatorID: creatorID, Reason: payoutdomain.BlockedReasonMissingDestination}
			result.Blocked = append(result.Blocked, blocked)
			obsmetrics.Scheduler().IncPayoutBlocked(string(blocked.Reason))
			s.logCreatorBlocked(ctx, blocked)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "build manual intent")
		return result, err
	}

	payout, failure := s.processIntent(ctx, *intent, now)
	if payout != nil {
		result.ProcessedCount = 1
		result.TotalAmount = payout.TotalAmount
		result.Payouts = append(result.Payouts, *payout)
	}
	if failure != nil {
		result.Failures = append(result.Failures, *failure)
		if payout == nil {
			return result, failure.Err
		}
	}
	return result, nil
}

// processIntent materializes and hands off one creator's payout. A payout
// that was materialized but not handed off is still returned; the recovery
// sweep dispatches it later.
func (s *Scheduler) processIntent(ctx context.Context, intent payoutdomain.PayoutIntent, now time.Time) (*payoutdomain.Payout, *Failure) {
	ctx = s.withLogContext(ctx, intent.CreatorID)
	ctx, span := tracing.Tracer().Start(ctx, "scheduler.processIntent")
	defer span.End()
	span.SetAttributes(
		attribute.String("creator_id", intent.CreatorID.String()),
		attribute.String("reason", string(intent.Reason)),
	)

	schedMetrics := obsmetrics.Scheduler()
	run := jobRunFromContext(ctx)

	payout, err := s.payoutSvc.Materialize(ctx, intent, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "materialize")
		schedMetrics.IncPayoutFailure(obsmetrics.PayoutStageMaterialize, err)
		s.logSchedulerError(ctx, run, "payout materialize failed", JobPayoutBatch, intent.CreatorID, err)
		return nil, &Failure{CreatorID: intent.CreatorID, Stage: obsmetrics.PayoutStageMaterialize, Err: err}
	}
	amount, _ := payout.TotalAmount.Float64()
	schedMetrics.AddPayoutAmount(string(payout.Reason), amount)

	dispatched, err := s.dispatch(ctx, payout, intent.PayoutMethod, intent.Destination)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch")
		schedMetrics.IncPayoutFailure(obsmetrics.PayoutStageDispatch, err)
		s.logSchedulerError(ctx, run, "payout dispatch failed", JobPayoutBatch, intent.CreatorID, err,
			zap.String("payout_id", payout.ID.String()),
		)
		return payout, &Failure{CreatorID: intent.CreatorID, PayoutID: payout.ID, Stage: obsmetrics.PayoutStageDispatch, Err: err}
	}
	return dispatched, nil
}

// dispatch hands a PENDING payout to its rail and records the hand-off.
func (s *Scheduler) dispatch(ctx context.Context, payout *payoutdomain.Payout, method, destination string) (*payoutdomain.Payout, error) {
	req := disbursement.Request{
		PayoutID:    payout.ID,
		CreatorID:   payout.CreatorID,
		Amount:      payout.TotalAmount,
		Currency:    payout.Currency,
		Method:      method,
		Destination: destination,
	}
	if err := s.dispatcher.Dispatch(ctx, req); err != nil {
		return nil, fmt.Errorf("dispatch payout %s: %w", payout.ID, err)
	}
	updated, err := s.payoutSvc.MarkDispatched(ctx, payout.ID)
	if err != nil {
		return nil, fmt.Errorf("mark payout %s dispatched: %w", payout.ID, err)
	}
	s.logPayoutDispatched(ctx, updated, method)
	return updated, nil
}

// withRun reuses the job run id when called from runJob and mints one for
// direct calls.
func (s *Scheduler) withRun(ctx context.Context) (context.Context, string) {
	ctx = s.withLogContext(ctx, 0)
	if runID := obscontext.RunIDFromContext(ctx); runID != "" {
		return ctx, runID
	}
	runID := s.genID.Generate().String()
	return obscontext.WithRunID(ctx, runID), runID
}

func sortResult(result *RunResult) {
	sort.Slice(result.Payouts, func(i, j int) bool {
		return result.Payouts[i].CreatorID < result.Payouts[j].CreatorID
	})
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].CreatorID < result.Failures[j].CreatorID
	})
}
