package scheduler

import (
	"time"

	"github.com/mygitzaki/zylike-creator-platform-sub001/internal/config"
)

const (
	JobPayoutBatch      = "payout_batch"
	JobDispatchRecovery = "dispatch_recovery"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval       time.Duration
	BatchConcurrency  int
	JobTimeout        time.Duration
	RecoveryThreshold time.Duration
	RecoveryBatchSize int
	RunLockTTL        time.Duration
	EnabledJobs       []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:       time.Minute,
		BatchConcurrency:  4,
		JobTimeout:        10 * time.Minute,
		RecoveryThreshold: 15 * time.Minute,
		RecoveryBatchSize: 100,
		RunLockTTL:        15 * time.Minute,
	}
}

// ProvideConfig maps the env settings onto the scheduler config.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:       cfg.Scheduler.RunInterval,
		BatchConcurrency:  cfg.Scheduler.BatchConcurrency,
		JobTimeout:        cfg.Scheduler.JobTimeout,
		RecoveryThreshold: cfg.Scheduler.DispatchRecoveryThreshold,
		EnabledJobs:       cfg.Scheduler.EnabledJobs,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = defaults.BatchConcurrency
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.RecoveryThreshold <= 0 {
		c.RecoveryThreshold = defaults.RecoveryThreshold
	}
	if c.RecoveryBatchSize <= 0 {
		c.RecoveryBatchSize = defaults.RecoveryBatchSize
	}
	if c.RunLockTTL <= 0 {
		c.RunLockTTL = c.JobTimeout + time.Minute
	}
	return c
}
