package scheduler

import (
	"time"

	"github.com/smallbiznis/quotaledger/internal/config"
)

// Config controls the expiration sweep.
type Config struct {
	Enabled       bool
	SweepInterval time.Duration
	SweepTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		SweepInterval: time.Hour,
		SweepTimeout:  30 * time.Second,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:       cfg.Scheduler.Enabled,
		SweepInterval: cfg.Scheduler.SweepInterval,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaults.SweepInterval
	}
	if c.SweepTimeout <= 0 {
		c.SweepTimeout = defaults.SweepTimeout
	}
	return c
}
