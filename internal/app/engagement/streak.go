// Package engagement implements the LearnQuest reward components:
// levels, streaks, goals, badges and notifications.
// Services here never open transactions; callers pass the store to act on.
package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/learnquest/learnquest/internal/domain"
)

// StreakStore is the persistence a StreakTracker needs.
// Satisfied by *sqlite.DB and *sqlite.Tx.
type StreakStore interface {
	GetStreak(ctx context.Context, userID int64, streakType domain.StreakType) (*domain.Streak, error)
	SaveStreak(ctx context.Context, st domain.Streak, now time.Time) error
}

// StreakConfig tunes streak bookkeeping.
type StreakConfig struct {
	// Location defines calendar-day boundaries. Nil means UTC.
	Location *time.Location
	// InitialFreezes is granted when a streak row is first created.
	InitialFreezes int
	// MaxFreezes caps freezes_available; milestone grants stop at the cap.
	MaxFreezes int
	// MilestoneEvery is the milestone interval in days.
	MilestoneEvery int
}

// DefaultStreakConfig returns UTC days, 1 starting freeze, at most 3, milestones every 7 days.
func DefaultStreakConfig() StreakConfig {
	return StreakConfig{
		Location:       time.UTC,
		InitialFreezes: 1,
		MaxFreezes:     3,
		MilestoneEvery: 7,
	}
}

// StreakTracker advances per-user streak counters.
// A "day" is a calendar day in the configured location.
type StreakTracker struct {
	cfg StreakConfig
}

// NewStreakTracker creates a tracker. Zero-valued fields fall back to defaults.
func NewStreakTracker(cfg StreakConfig) *StreakTracker {
	def := DefaultStreakConfig()
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.MilestoneEvery <= 0 {
		cfg.MilestoneEvery = def.MilestoneEvery
	}
	if cfg.InitialFreezes < 0 {
		cfg.InitialFreezes = 0
	}
	if cfg.MaxFreezes < cfg.InitialFreezes {
		cfg.MaxFreezes = cfg.InitialFreezes
	}
	return &StreakTracker{cfg: cfg}
}

// Config returns the effective configuration.
func (t *StreakTracker) Config() StreakConfig {
	return t.cfg
}

// RecordActivity counts an activity at now against the user's streak.
//
//   - no row: start at 1
//   - same day (or a clock that went backwards): no-op
//   - next day: extend, update longest, maybe hit a milestone
//   - gap > 1 day: spend a freeze to keep the count, else reset to 1
func (t *StreakTracker) RecordActivity(ctx context.Context, store StreakStore, userID int64, streakType domain.StreakType, now time.Time) (domain.StreakUpdate, error) {
	existing, err := store.GetStreak(ctx, userID, streakType)
	if err != nil {
		return domain.StreakUpdate{}, fmt.Errorf("load %s streak: %w", streakType, err)
	}

	today := t.Day(now)
	var upd domain.StreakUpdate

	if existing == nil {
		upd.Streak = domain.Streak{
			UserID:           userID,
			Type:             streakType,
			CurrentStreak:    1,
			LongestStreak:    1,
			LastActivityDate: today,
			FreezesAvailable: t.cfg.InitialFreezes,
			FreezesGranted:   t.cfg.InitialFreezes,
		}
		upd.Transition = domain.StreakStarted
	} else {
		st := *existing
		gap := DaysBetween(st.LastActivityDate, today)

		switch {
		case gap <= 0:
			return domain.StreakUpdate{Streak: st, Transition: domain.StreakUnchanged}, nil

		case gap == 1:
			st.CurrentStreak++
			upd.Transition = domain.StreakExtended
			if st.CurrentStreak%t.cfg.MilestoneEvery == 0 {
				upd.Milestone = true
				if st.FreezesAvailable < t.cfg.MaxFreezes {
					st.FreezesAvailable++
					st.FreezesGranted++
					upd.FreezeGranted = true
				}
			}

		case st.FreezesAvailable > 0:
			// The freeze covers the whole gap; the count is kept, not advanced.
			st.FreezesAvailable--
			st.FreezesUsed++
			upd.Transition = domain.StreakFrozen

		default:
			st.CurrentStreak = 1
			upd.Transition = domain.StreakReset
		}

		st.LastActivityDate = today
		if st.CurrentStreak > st.LongestStreak {
			st.LongestStreak = st.CurrentStreak
		}
		upd.Streak = st
	}

	if err := store.SaveStreak(ctx, upd.Streak, now); err != nil {
		return domain.StreakUpdate{}, fmt.Errorf("save %s streak: %w", streakType, err)
	}
	return upd, nil
}

// ─── Read Side ──────────────────────────────────────────────────────────────

// StreakState is the implicit state a stored streak is in at a point in time.
type StreakState string

const (
	StateNoStreak StreakState = "none"
	StateActive   StreakState = "active"  // activity recorded today
	StateAtRisk   StreakState = "at_risk" // last activity yesterday, or a freeze would cover the gap
	StateBroken   StreakState = "broken"  // the next activity resets to 1
)

// State derives the streak state at now without modifying anything.
func (t *StreakTracker) State(st *domain.Streak, now time.Time) StreakState {
	if st == nil || st.CurrentStreak == 0 {
		return StateNoStreak
	}
	gap := DaysBetween(st.LastActivityDate, t.Day(now))
	switch {
	case gap <= 0:
		return StateActive
	case gap == 1, st.FreezesAvailable > 0:
		return StateAtRisk
	default:
		return StateBroken
	}
}

// Day returns the calendar day of now in the tracker's location,
// as midnight UTC of that date.
func (t *StreakTracker) Day(now time.Time) time.Time {
	y, m, d := now.In(t.cfg.Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b, using the
// date components of each as given. Negative when b is before a.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
