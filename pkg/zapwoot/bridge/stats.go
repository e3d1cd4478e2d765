// Package bridge – stats.go holds the bridge's forwarding counters and the
// cron-driven reporter that logs them periodically.
package bridge

import (
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

// Stats tracks forwarding activity since process start.
type Stats struct {
	forwarded  atomic.Int64
	dropped    atomic.Int64
	mediaSaved atomic.Int64
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() map[string]int64 {
	return map[string]int64{
		"forwarded":   s.forwarded.Load(),
		"dropped":     s.dropped.Load(),
		"media_saved": s.mediaSaved.Load(),
	}
}

// StatsConfig configures the periodic stats reporter.
type StatsConfig struct {
	// Enabled turns the reporter on/off.
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron spec (robfig/cron syntax, e.g. "@every 1m").
	Schedule string `yaml:"schedule"`
}

// DefaultStatsConfig returns sensible defaults.
func DefaultStatsConfig() StatsConfig {
	return StatsConfig{
		Enabled:  true,
		Schedule: "@every 1m",
	}
}

// startStatsReporter schedules periodic stats logging. Returns the cron
// runner so the caller can stop it, or nil when disabled or misconfigured.
func startStatsReporter(cfg StatsConfig, stats *Stats, status func() string, logger *slog.Logger) *cron.Cron {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultStatsConfig().Schedule
	}

	c := cron.New()
	_, err := c.AddFunc(cfg.Schedule, func() {
		snap := stats.Snapshot()
		logger.Info("bridge stats",
			"connection", status(),
			"forwarded", snap["forwarded"],
			"dropped", snap["dropped"],
			"media_saved", snap["media_saved"])
	})
	if err != nil {
		logger.Warn("invalid stats schedule, reporter disabled",
			"schedule", cfg.Schedule, "error", err)
		return nil
	}

	c.Start()
	return c
}
