package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/learnquest/learnquest/internal/api"
	"github.com/learnquest/learnquest/internal/app/completion"
	"github.com/learnquest/learnquest/internal/app/engagement"
	"github.com/learnquest/learnquest/internal/app/ledger"
	"github.com/learnquest/learnquest/internal/domain"
	"github.com/learnquest/learnquest/internal/health"
	"github.com/learnquest/learnquest/internal/infra/redis"
	"github.com/learnquest/learnquest/internal/infra/scheduler"
	"github.com/learnquest/learnquest/internal/infra/sqlite"
)

// Daemon is the LearnQuest runtime. It wires together all services.
type Daemon struct {
	Config Config
	Log    *logrus.Logger
	DB     *sqlite.DB
	Redis  *goredis.Client

	Levels       *engagement.LevelProgression
	Ledger       *ledger.Ledger
	Streaks      *engagement.StreakTracker
	Goals        *engagement.GoalTracker
	Badges       *engagement.BadgeEngine
	Notifier     *engagement.NotificationEmitter
	Retries      *scheduler.RetryQueue
	Orchestrator *completion.Orchestrator

	Health *health.Checker
	Server *api.Server

	logFile io.Closer
	cancel  context.CancelFunc
}

// New creates and initializes a Daemon from the config file.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (_ *Daemon, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Daemon{Config: cfg}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	out, closer, err := openLogOutput(cfg.Logging.File)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	d.logFile = closer
	if d.Log, err = NewLogger(cfg.Logging, out); err != nil {
		return nil, err
	}

	// Open SQLite
	dataDir := cfg.DataDir()
	if d.DB, err = sqlite.Open(dataDir); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx := context.Background()
	if err := d.wireEngagement(ctx); err != nil {
		return nil, err
	}

	// Cross-process pieces
	var locker completion.Locker = completion.NewLocalLocker()
	var sinks []engagement.NotificationSink
	if cfg.Redis.Enabled {
		rcfg := redis.DefaultConfig()
		rcfg.Addr = cfg.Redis.Addr
		rcfg.Password = cfg.Redis.Password
		rcfg.DB = cfg.Redis.DB
		if d.Redis, err = redis.NewClient(ctx, rcfg); err != nil {
			return nil, err
		}
		ttl := parseDuration(cfg.Redis.LockTTL, 30*time.Second)
		locker = completion.ChainLocker{locker, redis.NewLocker(d.Redis, ttl, 0, d.Log)}
		sinks = append(sinks, redis.NewPubSubSink(d.Redis))
	}

	policy := domain.NotificationPolicy{MaxPerDay: cfg.Notifications.MaxPerDay}
	d.Notifier = engagement.NewNotificationEmitter(d.DB, policy, cfg.Location(), sinks...)

	retryCfg := scheduler.DefaultRetryConfig()
	retryCfg.MaxRetries = cfg.Rewards.MaxFollowUpRetries
	d.Retries = scheduler.NewRetryQueue(retryCfg)

	d.Orchestrator = completion.New(
		completion.Config{LockTimeout: parseDuration(cfg.Rewards.LockTimeout, 3*time.Second)},
		completion.Deps{
			DB:       d.DB,
			Stats:    d.DB,
			Locker:   locker,
			Levels:   d.Levels,
			Ledger:   d.Ledger,
			Streaks:  d.Streaks,
			Goals:    d.Goals,
			Badges:   d.Badges,
			Notifier: d.Notifier,
			Retries:  d.Retries,
			Log:      d.Log,
		},
	)

	// Health checker
	checks := []health.Check{
		health.SQLiteCheck(d.DB),
		health.DataDirCheck(dataDir),
		health.BacklogCheck(d.Retries.Len, cfg.Telemetry.MaxBacklog),
	}
	if d.Redis != nil {
		client := d.Redis
		checks = append(checks, health.RedisCheck(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
	}
	d.Health = health.NewChecker(parseDuration(cfg.Telemetry.HealthInterval, time.Minute), d.Log, checks...)

	// Initialize API server
	d.Server = api.NewServer(api.Deps{
		DB:        d.DB,
		Completer: d.Orchestrator,
		Levels:    d.Levels,
		Streaks:   d.Streaks,
		Goals:     d.Goals,
		Health:    d.Health,
		Log:       d.Log,
	})
	d.Server.SetTimeout(parseDuration(cfg.API.RequestTimeout, 30*time.Second))
	if cfg.Telemetry.Prometheus {
		d.Server.EnableMetrics()
	}

	return d, nil
}

// wireEngagement builds the reward components and seeds the badge catalog.
func (d *Daemon) wireEngagement(ctx context.Context) error {
	levels, err := engagement.NewLevelProgression(d.Config.LevelTable())
	if err != nil {
		return err
	}
	d.Levels = levels
	d.Ledger = ledger.New(levels)

	loc := d.Config.Location()
	d.Streaks = engagement.NewStreakTracker(engagement.StreakConfig{
		Location:       loc,
		InitialFreezes: d.Config.Streak.InitialFreezes,
		MaxFreezes:     d.Config.Streak.MaxFreezes,
	})
	d.Goals = engagement.NewGoalTracker(engagement.DefaultGoalCatalog(), loc)

	badges := engagement.DefaultBadges()
	if err := engagement.SeedBadges(ctx, d.DB, badges); err != nil {
		return fmt.Errorf("seed badges: %w", err)
	}
	d.Badges = engagement.NewBadgeEngine(d.DB, d.DB)
	for _, b := range badges {
		if keys := d.Badges.UnknownConditionKeys(b); len(keys) > 0 {
			d.Log.WithFields(logrus.Fields{"badge": b.ID, "keys": keys}).Warn("badge has unknown condition keys and can never be earned")
		}
	}
	return nil
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)
	go d.runFollowUpRetries(ctx, parseDuration(d.Config.Rewards.FollowUpRetryInterval, 10*time.Second))

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
	}()

	d.Log.WithFields(logrus.Fields{
		"addr":    addr,
		"data":    d.Config.DataDir(),
		"redis":   d.Redis != nil,
		"metrics": d.Config.Telemetry.Prometheus,
	}).Info("LearnQuest serving")

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// runFollowUpRetries drains the follow-up retry queue every interval.
func (d *Daemon) runFollowUpRetries(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := d.Orchestrator.RetryFollowUps(ctx); n > 0 {
				d.Log.WithField("count", n).Debug("follow-up retries attempted")
			}
		}
	}
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
	if d.logFile != nil {
		_ = d.logFile.Close()
	}
}
