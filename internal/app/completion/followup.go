package completion

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/learnquest/learnquest/internal/app/engagement"
	"github.com/learnquest/learnquest/internal/domain"
	"github.com/learnquest/learnquest/internal/infra/metrics"
	"github.com/learnquest/learnquest/internal/infra/scheduler"
	"github.com/learnquest/learnquest/internal/infra/sqlite"
)

// ─── Follow-up ──────────────────────────────────────────────────────────────
// Everything below runs after the core transaction committed. Failures are
// logged and queued for retry; they never undo the committed reward.

// followUp applies any pending badge rewards from prev, evaluates badges
// against fresh statistics and applies the rewards of new awards. It
// returns the awards whose rewards were applied and the experience events
// those rewards produced.
func (o *Orchestrator) followUp(ctx context.Context, userID int64, prev *scheduler.RetryEntry, log logrus.FieldLogger) ([]domain.BadgeAward, []domain.ExperienceAwarded) {
	entry := scheduler.RetryEntry{UserID: userID}
	if prev != nil {
		entry = *prev
	}

	var applied []domain.BadgeAward
	var events []domain.ExperienceAwarded

	if len(entry.PendingAwards) > 0 {
		done, evs, err := o.applyAwards(ctx, userID, entry.PendingAwards)
		applied = append(applied, done...)
		events = append(events, evs...)
		if err != nil {
			entry.PendingAwards = entry.PendingAwards[len(done):]
			o.deferFollowUp(entry, "reward", err, log)
			return applied, events
		}
		entry.PendingAwards = nil
	}

	snap, err := o.deps.Stats.StatsSnapshot(ctx, userID)
	if err != nil {
		o.deferFollowUp(entry, "stats", err, log)
		return applied, events
	}
	// A failed evaluation may still have inserted some awards; their
	// rewards are owed either way.
	awards, evalErr := o.deps.Badges.Evaluate(ctx, userID, snap)
	for _, a := range awards {
		metrics.BadgesAwarded.WithLabelValues(string(a.Rarity)).Inc()
	}

	done, evs, err := o.applyAwards(ctx, userID, awards)
	applied = append(applied, done...)
	events = append(events, evs...)
	switch {
	case err != nil:
		entry.PendingAwards = awards[len(done):]
		o.deferFollowUp(entry, "reward", errors.Join(err, evalErr), log)
	case evalErr != nil:
		o.deferFollowUp(entry, "evaluate", evalErr, log)
	}
	return applied, events
}

// applyAwards pays each award in its own transaction, stopping at the first
// failure. The returned slice is the applied prefix of awards.
func (o *Orchestrator) applyAwards(ctx context.Context, userID int64, awards []domain.BadgeAward) ([]domain.BadgeAward, []domain.ExperienceAwarded, error) {
	var events []domain.ExperienceAwarded
	for i, a := range awards {
		ev, err := o.applyAward(ctx, userID, a)
		if err != nil {
			return awards[:i], events, fmt.Errorf("badge %s: %w", a.BadgeID, err)
		}
		if ev != nil {
			events = append(events, *ev)
		}
	}
	return awards, events, nil
}

func (o *Orchestrator) applyAward(ctx context.Context, userID int64, a domain.BadgeAward) (*domain.ExperienceAwarded, error) {
	var ev *domain.ExperienceAwarded
	err := o.withUserLock(ctx, userID, func(ctx context.Context) error {
		return o.deps.DB.WithTx(ctx, func(tx *sqlite.Tx) error {
			ev = nil
			if a.XPReward > 0 {
				xp, err := o.deps.Ledger.AwardExperience(ctx, tx, userID, a.XPReward, domain.SourceBadge)
				if err != nil {
					return err
				}
				ev = &xp
			}
			reason := "Badge: " + a.Name
			if a.CoinsReward > 0 {
				if _, err := o.deps.Ledger.AddCoins(ctx, tx, userID, a.CoinsReward, reason, domain.SourceBadge); err != nil {
					return err
				}
			}
			if a.GemsReward > 0 {
				if _, err := o.deps.Ledger.AddGems(ctx, tx, userID, a.GemsReward, reason, domain.SourceBadge); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if ev != nil {
		metrics.ExperienceAwarded.WithLabelValues(string(domain.SourceBadge)).Add(float64(ev.Amount))
		if ev.LevelUp != nil {
			metrics.LevelUps.Inc()
			metrics.CoinsAwarded.WithLabelValues(string(domain.SourceLevelUp)).Add(float64(ev.LevelUp.Coins))
		}
	}
	if a.CoinsReward > 0 {
		metrics.CoinsAwarded.WithLabelValues(string(domain.SourceBadge)).Add(float64(a.CoinsReward))
	}
	return ev, nil
}

func (o *Orchestrator) deferFollowUp(entry scheduler.RetryEntry, stage string, err error, log logrus.FieldLogger) {
	metrics.FollowUpFailures.WithLabelValues(stage).Inc()
	log = log.WithError(err).WithField("stage", stage)
	if o.deps.Retries == nil {
		log.Error("follow-up failed, no retry queue configured")
		return
	}
	entry.Error = err.Error()
	if !o.deps.Retries.ScheduleRetry(entry) {
		log.WithField("pending_awards", len(entry.PendingAwards)).Error("follow-up retries exhausted")
	} else {
		log.WithField("attempt", entry.Attempt+1).Warn("follow-up failed, retry scheduled")
	}
	metrics.FollowUpRetriesPending.Set(float64(o.deps.Retries.Len()))
}

// RetryFollowUps runs every follow-up whose backoff has elapsed and
// returns how many were attempted. Failures are rescheduled.
func (o *Orchestrator) RetryFollowUps(ctx context.Context) int {
	if o.deps.Retries == nil {
		return 0
	}
	ready := o.deps.Retries.DrainReady()
	for i := range ready {
		entry := ready[i]
		log := o.deps.Log.WithFields(logrus.Fields{"user_id": entry.UserID, "attempt": entry.Attempt})
		awards, events := o.followUp(ctx, entry.UserID, &entry, log)
		o.notify(ctx, entry.UserID, &outcome{experience: events}, awards, log)
		if len(awards) > 0 {
			log.WithField("badges", len(awards)).Info("follow-up retry applied badge rewards")
		}
	}
	metrics.FollowUpRetriesPending.Set(float64(o.deps.Retries.Len()))
	return len(ready)
}

// ─── Notifications ──────────────────────────────────────────────────────────

func (o *Orchestrator) notify(ctx context.Context, userID int64, out *outcome, awards []domain.BadgeAward, log logrus.FieldLogger) {
	if o.deps.Notifier == nil {
		return
	}

	var batch []domain.Notification
	for _, ev := range out.experience {
		if ev.LevelUp == nil {
			continue
		}
		info, err := o.deps.Levels.For(ev.NewTotal)
		if err != nil {
			continue
		}
		batch = append(batch, engagement.LevelUpNotification(*ev.LevelUp, info))
	}
	for _, upd := range out.streaks {
		if upd.Milestone {
			batch = append(batch, engagement.StreakMilestoneNotification(upd))
		}
	}
	for _, gc := range out.goals {
		batch = append(batch, engagement.GoalCompletedNotification(userID, gc))
	}
	for _, a := range awards {
		batch = append(batch, engagement.BadgeEarnedNotification(userID, a))
	}

	for _, n := range batch {
		sent, err := o.deps.Notifier.Emit(ctx, n)
		switch {
		case err != nil:
			metrics.NotificationsEmitted.WithLabelValues(string(n.Type), "error").Inc()
			metrics.FollowUpFailures.WithLabelValues("notify").Inc()
			log.WithError(err).WithField("type", n.Type).Warn("notification delivery failed")
		case sent:
			metrics.NotificationsEmitted.WithLabelValues(string(n.Type), "sent").Inc()
		default:
			metrics.NotificationsEmitted.WithLabelValues(string(n.Type), "capped").Inc()
		}
	}
}
