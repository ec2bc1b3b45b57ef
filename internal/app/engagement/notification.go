package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/learnquest/learnquest/internal/domain"
)

// NotificationSink delivers a stored notification somewhere else, such as
// a pub/sub channel. n.ID is already assigned.
type NotificationSink interface {
	Deliver(ctx context.Context, n *domain.Notification) error
}

// NotificationStore persists notifications. The daily cap is checked and
// the row inserted in one statement, so concurrent emitters for the same
// user cannot exceed max. max <= 0 disables the cap.
type NotificationStore interface {
	InsertNotificationCapped(ctx context.Context, n domain.Notification, since time.Time, max int) (int64, bool, error)
}

// NotificationEmitter applies the per-day cap, stores the notification and
// fans it out to every sink. Emission is fire-and-forget for the caller:
// errors are returned for logging, never for rollback.
type NotificationEmitter struct {
	store  NotificationStore
	sinks  []NotificationSink
	policy domain.NotificationPolicy
	loc    *time.Location
	now    func() time.Time
}

// NewNotificationEmitter creates an emitter. Day boundaries for the cap
// are calendar days in loc (nil means UTC).
func NewNotificationEmitter(store NotificationStore, policy domain.NotificationPolicy, loc *time.Location, sinks ...NotificationSink) *NotificationEmitter {
	if loc == nil {
		loc = time.UTC
	}
	return &NotificationEmitter{
		store:  store,
		sinks:  sinks,
		policy: policy,
		loc:    loc,
		now:    time.Now,
	}
}

// Policy returns the active notification policy.
func (e *NotificationEmitter) Policy() domain.NotificationPolicy {
	return e.policy
}

// Emit stores n and sends it to every sink unless the user's daily cap is
// reached. Returns whether it was stored; a capped notification is dropped
// silently. Sink errors are returned after a successful store.
func (e *NotificationEmitter) Emit(ctx context.Context, n domain.Notification) (bool, error) {
	now := e.now()
	y, m, d := now.In(e.loc).Date()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, e.loc)

	n.CreatedAt = now
	n.IsRead = false

	id, stored, err := e.store.InsertNotificationCapped(ctx, n, startOfDay, e.policy.MaxPerDay)
	if err != nil {
		return false, fmt.Errorf("store notification: %w", err)
	}
	if !stored {
		return false, nil
	}
	n.ID = id

	var errs []error
	for _, sink := range e.sinks {
		if err := sink.Deliver(ctx, &n); err != nil {
			errs = append(errs, err)
		}
	}
	return true, errors.Join(errs...)
}

// ─── Notification Builders ──────────────────────────────────────────────────

// LevelUpNotification announces a level-up and its coin reward.
func LevelUpNotification(ev domain.LevelUpEvent, info domain.LevelInfo) domain.Notification {
	return domain.Notification{
		UserID:  ev.UserID,
		Type:    domain.NotifyLevelUp,
		Title:   fmt.Sprintf("Level %d reached!", ev.NewLevel),
		Message: fmt.Sprintf("You are now %s and earned %d coins.", info.Name, ev.Coins),
		Icon:    info.Icon,
	}
}

// StreakMilestoneNotification celebrates a streak milestone.
func StreakMilestoneNotification(upd domain.StreakUpdate) domain.Notification {
	msg := fmt.Sprintf("%d days in a row. Keep it going!", upd.Streak.CurrentStreak)
	if upd.FreezeGranted {
		msg += " You earned a streak freeze."
	}
	return domain.Notification{
		UserID:  upd.Streak.UserID,
		Type:    domain.NotifyStreakMilestone,
		Title:   fmt.Sprintf("%d-day streak!", upd.Streak.CurrentStreak),
		Message: msg,
		Icon:    "🔥",
	}
}

// GoalCompletedNotification announces a completed goal.
func GoalCompletedNotification(userID int64, gc domain.GoalCompletion) domain.Notification {
	return domain.Notification{
		UserID:  userID,
		Type:    domain.NotifyGoalCompleted,
		Title:   fmt.Sprintf("%s goal completed", capitalize(string(gc.Period))),
		Message: fmt.Sprintf("%s: +%d XP, +%d coins.", gc.Title, gc.RewardXP, gc.RewardCoins),
		Icon:    "🥅",
	}
}

// BadgeEarnedNotification announces a new badge.
func BadgeEarnedNotification(userID int64, a domain.BadgeAward) domain.Notification {
	msg := fmt.Sprintf("You earned the %s badge: +%d XP, +%d coins", a.Name, a.XPReward, a.CoinsReward)
	if a.GemsReward > 0 {
		msg += fmt.Sprintf(", +%d gems", a.GemsReward)
	}
	return domain.Notification{
		UserID:  userID,
		Type:    domain.NotifyBadgeEarned,
		Title:   "New badge: " + a.Name,
		Message: msg + ".",
		Icon:    a.Icon,
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
