package scheduler

import (
	"time"

	"github.com/smallbiznis/bizbooks/internal/config"
)

// Config controls sweep intervals, lock lease and batch sizes.
type Config struct {
	RunInterval       time.Duration
	LockTTL           time.Duration
	RecoveryThreshold time.Duration
	BatchSize         int
	JobTimeout        time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:       15 * time.Minute,
		LockTTL:           10 * time.Minute,
		RecoveryThreshold: 15 * time.Minute,
		BatchSize:         100,
		JobTimeout:        5 * time.Minute,
	}
}

// ProvideConfig maps the application integrity settings onto the scheduler.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Integrity.SweepInterval,
		LockTTL:     cfg.Integrity.LockTTL,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.RecoveryThreshold <= 0 {
		c.RecoveryThreshold = defaults.RecoveryThreshold
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
