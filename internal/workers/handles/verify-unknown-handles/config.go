// internal/workers/handles/verify-unknown-handles/config.go
package verifyunknownhandles

import (
	"time"

	"rating-notifier/internal/common/config"
)

type Config struct {
	BatchSize int
	Timeout   time.Duration
}

// LoadConfig derives the run settings from the job's scheduler entry. A run
// must finish inside its lease.
func LoadConfig(job config.JobConfig) *Config {
	cfg := &Config{
		BatchSize: job.BatchSize,
		Timeout:   config.GetDuration(job.LockTTL),
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = config.DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return cfg
}
