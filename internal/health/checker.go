// Package health runs periodic checks over the engine's dependencies and
// attempts recovery where a recovery exists.
package health

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/learnquest/learnquest/internal/infra/metrics"
)

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	Recovered bool      `json:"recovered,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	log      logrus.FieldLogger
}

// NewChecker creates a checker running checks every interval.
func NewChecker(interval time.Duration, log logrus.FieldLogger, checks ...Check) *Checker {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Checker{interval: interval, log: log, checks: checks}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	// Run immediately on start
	c.RunOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce runs every check once and stores the results.
func (c *Checker) RunOnce(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{Name: check.Name, CheckedAt: time.Now()}
		err := check.CheckFn(ctx)
		if err != nil && check.RecoverFn != nil {
			if rerr := check.RecoverFn(ctx); rerr == nil {
				if err = check.CheckFn(ctx); err == nil {
					s.Recovered = true
					metrics.HealthRecoveries.WithLabelValues(check.Name).Inc()
					c.log.WithField("check", check.Name).Info("health check recovered")
				}
			}
		}
		if err != nil {
			s.Error = err.Error()
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(0)
			c.log.WithError(err).WithField("check", check.Name).Warn("health check failed")
		} else {
			s.Healthy = true
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(1)
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

// Pinger is satisfied by *sqlite.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// SQLiteCheck pings the database. SQLite recovers through its WAL on its
// own, so there is no recovery action.
func SQLiteCheck(db Pinger) Check {
	return Check{Name: "sqlite", CheckFn: db.PingContext}
}

// DataDirCheck verifies dir is a writable directory and recreates it when
// it has gone missing.
func DataDirCheck(dir string) Check {
	return Check{
		Name: "data_dir",
		CheckFn: func(context.Context) error {
			return checkWritableDir(dir)
		},
		RecoverFn: func(context.Context) error {
			return os.MkdirAll(dir, 0o755)
		},
	}
}

// RedisCheck pings Redis through ping, typically
// func(ctx) error { return client.Ping(ctx).Err() }.
func RedisCheck(ping func(ctx context.Context) error) Check {
	return Check{Name: "redis", CheckFn: ping}
}

// BacklogCheck fails when more than max follow-ups are waiting for retry.
func BacklogCheck(pending func() int, max int) Check {
	return Check{
		Name: "followup_backlog",
		CheckFn: func(context.Context) error {
			if n := pending(); n > max {
				return fmt.Errorf("%d follow-ups pending retry (max %d)", n, max)
			}
			return nil
		},
	}
}

func checkWritableDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data path %s is not a directory", dir)
	}
	f, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return fmt.Errorf("data dir not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
