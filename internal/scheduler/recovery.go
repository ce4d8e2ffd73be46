package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	obsmetrics "github.com/mygitzaki/zylike-creator-platform-sub001/internal/observability/metrics"
	payoutdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/payout/domain"
	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/scheduler/guard"
)

// DispatchRecoveryJob re-dispatches PENDING payouts whose hand-off never
// completed. Each leased payout is skipped by other replicas until the
// recovery threshold passes again.
func (s *Scheduler) DispatchRecoveryJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobDispatchRecovery, s.cfg.RecoveryBatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	schedMetrics := obsmetrics.Scheduler()
	cutoff := s.clock.Now().Add(-s.cfg.RecoveryThreshold)

	leaseStart := time.Now()
	payouts, err := s.payoutSvc.LeaseUndispatched(ctx, cutoff, s.cfg.RecoveryBatchSize)
	schedMetrics.ObserveDBLockWait(obsmetrics.LockResourceUndispatchedPayouts, time.Since(leaseStart))
	if err != nil {
		return err
	}

	var jobErr error
	for i := range payouts {
		payout := &payouts[i]
		if err := s.redispatch(ctx, payout); err != nil {
			jobErr = errors.Join(jobErr, err)
			schedMetrics.IncPayoutFailure(obsmetrics.PayoutStageRecovery, err)
			s.logSchedulerError(ctx, run, "payout recovery failed", JobDispatchRecovery, payout.CreatorID, err,
				zap.String("payout_id", payout.ID.String()),
			)
			continue
		}
		run.AddProcessed(1)
	}
	schedMetrics.AddBatchProcessed(JobDispatchRecovery, "payouts", len(payouts))
	return jobErr
}

func (s *Scheduler) redispatch(ctx context.Context, payout *payoutdomain.Payout) error {
	profile, err := s.payoutSvc.GetPayoutProfile(ctx, payout.CreatorID)
	if err != nil {
		return err
	}
	if err := guard.EnsurePayoutCanDispatch(*payout, profile); err != nil {
		return err
	}
	_, err = s.dispatch(ctx, payout, profile.PayoutMethod, *profile.PayoutDestination)
	return err
}
