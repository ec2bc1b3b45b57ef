// Package completion turns learning-completion events into rewards.
//
// ProcessCompletion validates the event, computes its reward and applies
// experience, coins, streaks and goals in one transaction under a per-user
// lock. Badges and notifications follow as best-effort work: their failures
// are logged and retried later, never rolled back into the core reward.
package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/learnquest/learnquest/internal/app/engagement"
	"github.com/learnquest/learnquest/internal/app/ledger"
	"github.com/learnquest/learnquest/internal/domain"
	"github.com/learnquest/learnquest/internal/infra/metrics"
	"github.com/learnquest/learnquest/internal/infra/scheduler"
	"github.com/learnquest/learnquest/internal/infra/sqlite"
)

// ─── Collaborators ──────────────────────────────────────────────────────────

// Transactor runs fn inside one write transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(tx *sqlite.Tx) error) error
}

// StatsProvider aggregates a user's statistics for badge evaluation.
type StatsProvider interface {
	StatsSnapshot(ctx context.Context, userID int64) (domain.StatsSnapshot, error)
}

// StreakRecorder is implemented by *engagement.StreakTracker.
type StreakRecorder interface {
	RecordActivity(ctx context.Context, store engagement.StreakStore, userID int64, streakType domain.StreakType, now time.Time) (domain.StreakUpdate, error)
}

// GoalProgresser is implemented by *engagement.GoalTracker.
type GoalProgresser interface {
	ApplyProgress(ctx context.Context, store engagement.GoalStore, userID int64, period domain.GoalPeriod, deltas map[domain.GoalCategory]int64, now time.Time) ([]domain.GoalCompletion, error)
}

// BadgeEvaluator is implemented by *engagement.BadgeEngine.
type BadgeEvaluator interface {
	Evaluate(ctx context.Context, userID int64, snapshot domain.StatsSnapshot) ([]domain.BadgeAward, error)
}

// Notifier is implemented by *engagement.NotificationEmitter.
type Notifier interface {
	Emit(ctx context.Context, n domain.Notification) (bool, error)
}

// Deps wires an Orchestrator. Notifier and Retries are optional.
type Deps struct {
	DB       Transactor
	Stats    StatsProvider
	Locker   Locker
	Levels   *engagement.LevelProgression
	Ledger   *ledger.Ledger
	Streaks  StreakRecorder
	Goals    GoalProgresser
	Badges   BadgeEvaluator
	Notifier Notifier
	Retries  *scheduler.RetryQueue
	Log      logrus.FieldLogger
	Now      func() time.Time
}

// Config tunes the orchestrator.
type Config struct {
	// LockTimeout bounds a user's critical section end to end: the lock
	// wait, the wait for the store's single write connection and the
	// transaction itself.
	LockTimeout time.Duration
}

// DefaultConfig returns a 3-second lock timeout.
func DefaultConfig() Config {
	return Config{LockTimeout: 3 * time.Second}
}

// Orchestrator processes completion events.
type Orchestrator struct {
	cfg  Config
	deps Deps
}

// New creates an orchestrator.
func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultConfig().LockTimeout
	}
	if deps.Locker == nil {
		deps.Locker = NewLocalLocker()
	}
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Orchestrator{cfg: cfg, deps: deps}
}

// ─── Critical Section ───────────────────────────────────────────────────────

// outcome collects what the critical section did, for the result and the
// follow-up stage. Metrics are recorded only after commit.
type outcome struct {
	startLevel  int
	total       int64
	experience  []domain.ExperienceAwarded
	coins       map[domain.RewardSource]int64
	streaks     []domain.StreakUpdate
	goals       []domain.GoalCompletion
	completedAt time.Time
}

func (o *outcome) addExperience(ev domain.ExperienceAwarded) {
	o.experience = append(o.experience, ev)
	o.total = ev.NewTotal
	if ev.LevelUp != nil {
		o.coins[domain.SourceLevelUp] += ev.LevelUp.Coins
	}
}

// ProcessCompletion applies one completion event and returns its result.
// Errors: *domain.ValidationError before any state is touched,
// domain.ErrLockTimeout or domain.ErrConcurrencyConflict (retryable), and
// domain.ErrPersistence when the transaction failed and was rolled back.
func (o *Orchestrator) ProcessCompletion(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	start := time.Now()
	defer func() { metrics.CompletionLatency.Observe(time.Since(start).Seconds()) }()

	if err := req.Validate(); err != nil {
		metrics.CompletionsProcessed.WithLabelValues("invalid").Inc()
		return domain.CompletionResult{}, err
	}

	reward := ledger.RewardFor(req.Score, req.TimeSpent)
	now := o.deps.Now()
	log := o.deps.Log.WithFields(logrus.Fields{"user_id": req.UserID, "activity_ref": req.ActivityRef})

	var out *outcome
	err := o.withUserLock(ctx, req.UserID, func(ctx context.Context) error {
		return o.deps.DB.WithTx(ctx, func(tx *sqlite.Tx) error {
			var err error
			out, err = o.critical(ctx, tx, req, reward, now)
			return err
		})
	})
	if err != nil {
		label, err := classify(err)
		metrics.CompletionsProcessed.WithLabelValues(label).Inc()
		log.WithError(err).Warn("completion rejected")
		return domain.CompletionResult{}, err
	}
	metrics.CompletionsProcessed.WithLabelValues("ok").Inc()
	o.recordCommitted(out)

	awards, badgeXP := o.followUp(ctx, req.UserID, nil, log)
	for _, ev := range badgeXP {
		out.addExperience(ev)
	}
	o.notify(ctx, req.UserID, out, awards, log)

	result := o.result(req, reward, out, awards)
	log.WithFields(logrus.Fields{
		"experience": result.ExperienceAwarded,
		"coins":      result.CoinsAwarded,
		"level":      result.Level.Level,
		"goals":      len(result.GoalsCompleted),
		"badges":     len(result.NewBadges),
	}).Debug("completion processed")
	return result, nil
}

func (o *Orchestrator) critical(ctx context.Context, tx *sqlite.Tx, req domain.CompletionRequest, reward ledger.Reward, now time.Time) (*outcome, error) {
	out := &outcome{coins: make(map[domain.RewardSource]int64), completedAt: now}

	_, err := tx.InsertCompletion(ctx, domain.CompletionRecord{
		UserID:      req.UserID,
		ActivityRef: req.ActivityRef,
		TimeSpent:   req.TimeSpent,
		Score:       req.Score,
		Experience:  reward.Experience,
		Coins:       reward.Coins,
		CreatedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("record completion: %w", err)
	}

	xp, err := o.deps.Ledger.AwardExperience(ctx, tx, req.UserID, reward.Experience, domain.SourceCompletion)
	if err != nil {
		return nil, err
	}
	out.startLevel = xp.PreviousLevel
	out.addExperience(xp)

	if _, err := o.deps.Ledger.AddCoins(ctx, tx, req.UserID, reward.Coins, "Completed "+req.ActivityRef, domain.SourceCompletion); err != nil {
		return nil, err
	}
	out.coins[domain.SourceCompletion] += reward.Coins

	learning, err := o.deps.Streaks.RecordActivity(ctx, tx, req.UserID, domain.StreakLearning, now)
	if err != nil {
		return nil, err
	}
	out.streaks = append(out.streaks, learning)
	if req.Score == 100 {
		perfect, err := o.deps.Streaks.RecordActivity(ctx, tx, req.UserID, domain.StreakPerfectScore, now)
		if err != nil {
			return nil, err
		}
		out.streaks = append(out.streaks, perfect)
	}

	deltas := engagement.CompletionDeltas(req.TimeSpent, req.Score, reward.Experience)
	for _, period := range domain.AllPeriods {
		done, err := o.deps.Goals.ApplyProgress(ctx, tx, req.UserID, period, deltas, now)
		if err != nil {
			return nil, err
		}
		out.goals = append(out.goals, done...)
	}

	// Goal rewards go through the ledger in the same transaction. Their
	// experience does not feed back into experience goals.
	for _, gc := range out.goals {
		if gc.RewardXP > 0 {
			ev, err := o.deps.Ledger.AwardExperience(ctx, tx, req.UserID, gc.RewardXP, domain.SourceGoal)
			if err != nil {
				return nil, fmt.Errorf("goal %d reward: %w", gc.GoalID, err)
			}
			out.addExperience(ev)
		}
		if gc.RewardCoins > 0 {
			if _, err := o.deps.Ledger.AddCoins(ctx, tx, req.UserID, gc.RewardCoins, "Goal: "+gc.Title, domain.SourceGoal); err != nil {
				return nil, fmt.Errorf("goal %d reward: %w", gc.GoalID, err)
			}
			out.coins[domain.SourceGoal] += gc.RewardCoins
		}
	}
	return out, nil
}

func (o *Orchestrator) recordCommitted(out *outcome) {
	for _, ev := range out.experience {
		metrics.ExperienceAwarded.WithLabelValues(string(ev.Source)).Add(float64(ev.Amount))
		if ev.LevelUp != nil {
			metrics.LevelUps.Inc()
		}
	}
	for src, n := range out.coins {
		metrics.CoinsAwarded.WithLabelValues(string(src)).Add(float64(n))
	}
	for _, upd := range out.streaks {
		metrics.StreakTransitions.WithLabelValues(string(upd.Streak.Type), string(upd.Transition)).Inc()
	}
	for _, gc := range out.goals {
		metrics.GoalsCompleted.WithLabelValues(string(gc.Period)).Inc()
	}
}

func (o *Orchestrator) withUserLock(ctx context.Context, userID int64, fn func(ctx context.Context) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, o.cfg.LockTimeout)
	defer cancel()

	waitStart := time.Now()
	unlock, err := o.deps.Locker.Lock(lockCtx, userID)
	metrics.LockWait.Observe(time.Since(waitStart).Seconds())
	if err != nil {
		if errors.Is(err, domain.ErrLockTimeout) {
			metrics.LockTimeouts.Inc()
		}
		return err
	}
	defer unlock()

	err = fn(lockCtx)
	if err != nil && !errors.Is(err, domain.ErrLockTimeout) &&
		errors.Is(lockCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%w: %w", domain.ErrLockTimeout, err)
	}
	if errors.Is(err, domain.ErrLockTimeout) {
		metrics.LockTimeouts.Inc()
	}
	return err
}

// classify maps a critical-section error onto the error taxonomy and a
// metrics label. Anything not already a domain error is a persistence
// failure.
func classify(err error) (string, error) {
	switch {
	case errors.Is(err, domain.ErrLockTimeout):
		return "lock_timeout", err
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return "conflict", err
	case errors.Is(err, domain.ErrValidation):
		return "invalid", err
	case errors.Is(err, domain.ErrPersistence):
		return "error", err
	}
	return "error", fmt.Errorf("%w: %w", domain.ErrPersistence, err)
}

// ─── Result ─────────────────────────────────────────────────────────────────

func (o *Orchestrator) result(req domain.CompletionRequest, reward ledger.Reward, out *outcome, awards []domain.BadgeAward) domain.CompletionResult {
	res := domain.CompletionResult{
		UserID:            req.UserID,
		ActivityRef:       req.ActivityRef,
		ExperienceAwarded: reward.Experience,
		CoinsAwarded:      reward.Coins,
		GoalsCompleted:    out.goals,
		NewBadges:         awards,
	}
	if res.GoalsCompleted == nil {
		res.GoalsCompleted = []domain.GoalCompletion{}
	}
	if res.NewBadges == nil {
		res.NewBadges = []domain.BadgeAward{}
	}

	// The total is non-negative by construction, so For cannot fail here.
	res.Level, _ = o.deps.Levels.For(out.total)
	if res.Level.Level > out.startLevel {
		lvl := res.Level.Level
		res.NewLevel = &lvl
		lu := &domain.LevelUpEvent{UserID: req.UserID, PreviousLevel: out.startLevel, NewLevel: lvl}
		for _, ev := range out.experience {
			if ev.LevelUp != nil {
				lu.Coins += ev.LevelUp.Coins
			}
		}
		res.LevelUp = lu
	}

	learning := out.streaks[0]
	res.StreakUpdated = learning.Changed()
	res.Streak = learning.Streak
	return res
}
