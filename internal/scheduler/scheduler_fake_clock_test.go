package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	obsmetrics "github.com/mygitzaki/zylike-creator-platform-sub001/internal/observability/metrics"
	"github.com/mygitzaki/zylike-creator-platform-sub001/pkg/db/dbtest"
)

func deferredLabels(reason string) map[string]string {
	return map[string]string{
		"service": "creatorpay",
		"env":     "unknown",
		"job":     JobPayoutBatch,
		"reason":  reason,
	}
}

func TestPayoutBatchJobRunsOncePerPayoutDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creatorID := snowflake.ID(2001)
	f.withDestination(t, creatorID)
	f.earn(t, creatorID, "30.00", 20)

	require.NoError(t, f.sched.PayoutBatchJob(ctx))
	assert.EqualValues(t, 1, dbtest.Count(t, f.db, "payouts", "creator_id = ?", creatorID))

	// A later earning that qualifies the same day waits for the next cycle.
	f.earn(t, creatorID, "30.00", 20)
	f.clock.Advance(6 * time.Hour)
	require.NoError(t, f.sched.PayoutBatchJob(ctx))
	assert.EqualValues(t, 1, dbtest.Count(t, f.db, "payouts", "creator_id = ?", creatorID))
	assert.Equal(t, float64(1), getCounterValue(t, f.registry, "creatorpay_scheduler_batch_deferred_total",
		deferredLabels(obsmetrics.SchedulerBatchDeferredReasonAlreadyRan)))

	f.clock.AdvanceDays(1)
	require.NoError(t, f.sched.PayoutBatchJob(ctx))
	assert.EqualValues(t, 1, dbtest.Count(t, f.db, "payouts", "creator_id = ?", creatorID))
	assert.Equal(t, float64(1), getCounterValue(t, f.registry, "creatorpay_scheduler_batch_deferred_total",
		deferredLabels(obsmetrics.SchedulerBatchDeferredReasonNotPayDay)))

	f.clock.Set(time.Date(2025, time.April, 30, 0, 10, 0, 0, time.UTC))
	require.NoError(t, f.sched.PayoutBatchJob(ctx))
	assert.EqualValues(t, 2, dbtest.Count(t, f.db, "payouts", "creator_id = ?", creatorID))
}

func TestRunOnceRunsEnabledJobsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creatorID := snowflake.ID(2101)
	f.withDestination(t, creatorID)
	f.earn(t, creatorID, "30.00", 20)

	f.sched.cfg.EnabledJobs = []string{JobDispatchRecovery}
	require.NoError(t, f.sched.RunOnce(ctx))
	assert.EqualValues(t, 0, dbtest.Count(t, f.db, "payouts", ""))

	f.sched.cfg.EnabledJobs = nil
	require.NoError(t, f.sched.RunOnce(ctx))
	assert.EqualValues(t, 1, dbtest.Count(t, f.db, "payouts", ""))
	assert.Equal(t, 1, f.dispatcher.count())
}

func TestPayoutBatchJobOnFebruaryMonthEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.clock.Set(time.Date(2025, time.February, 28, 8, 0, 0, 0, time.UTC))
	creatorID := snowflake.ID(2201)
	f.withDestination(t, creatorID)
	f.earn(t, creatorID, "30.00", 20)

	require.NoError(t, f.sched.PayoutBatchJob(ctx))
	assert.EqualValues(t, 1, dbtest.Count(t, f.db, "payouts", "creator_id = ?", creatorID))
}
