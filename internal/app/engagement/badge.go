package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/learnquest/learnquest/internal/domain"
)

// BadgeCatalog supplies badge definitions. The catalog is read on every
// evaluation so edits to the backing table take effect without a restart.
type BadgeCatalog interface {
	ListBadges(ctx context.Context) ([]domain.Badge, error)
}

// BadgeStore records awards. AwardBadge must report true only for the
// caller whose insert created the row.
type BadgeStore interface {
	OwnedBadgeIDs(ctx context.Context, userID int64) (map[string]bool, error)
	AwardBadge(ctx context.Context, userID int64, badgeID string, now time.Time) (bool, error)
}

// StaticBadgeCatalog is an in-memory BadgeCatalog.
type StaticBadgeCatalog []domain.Badge

// ListBadges returns the catalog.
func (c StaticBadgeCatalog) ListBadges(context.Context) ([]domain.Badge, error) {
	return c, nil
}

// StatMatcher decides whether a snapshot value satisfies a threshold.
type StatMatcher func(value, threshold int64) bool

func atLeast(value, threshold int64) bool { return value >= threshold }

// DefaultMatchers returns the matcher for every known statistic.
// All current statistics are counters compared with >=.
func DefaultMatchers() map[domain.StatKey]StatMatcher {
	m := make(map[domain.StatKey]StatMatcher, len(domain.KnownStatKeys))
	for _, k := range domain.KnownStatKeys {
		m[k] = atLeast
	}
	return m
}

// BadgeEngine awards catalog badges whose conditions a user's stats meet.
type BadgeEngine struct {
	catalog  BadgeCatalog
	store    BadgeStore
	matchers map[domain.StatKey]StatMatcher
	now      func() time.Time
}

// NewBadgeEngine creates a badge engine with the default matchers.
func NewBadgeEngine(catalog BadgeCatalog, store BadgeStore) *BadgeEngine {
	return &BadgeEngine{
		catalog:  catalog,
		store:    store,
		matchers: DefaultMatchers(),
		now:      time.Now,
	}
}

// Matches reports whether every condition of b holds for snapshot.
// A condition on an unknown key, or on a key absent from the snapshot,
// fails. A badge without conditions never matches.
func (e *BadgeEngine) Matches(b domain.Badge, snapshot domain.StatsSnapshot) bool {
	if len(b.Conditions) == 0 {
		return false
	}
	for key, threshold := range b.Conditions {
		match, ok := e.matchers[key]
		if !ok {
			return false
		}
		value, ok := snapshot.Get(key)
		if !ok || !match(value, threshold) {
			return false
		}
	}
	return true
}

// Evaluate awards every unowned badge the snapshot satisfies and returns
// the awards this call created. Concurrent evaluations for the same user
// are safe: the uniqueness constraint decides the single winner and the
// others see no award.
func (e *BadgeEngine) Evaluate(ctx context.Context, userID int64, snapshot domain.StatsSnapshot) ([]domain.BadgeAward, error) {
	badges, err := e.catalog.ListBadges(ctx)
	if err != nil {
		return nil, fmt.Errorf("load badge catalog: %w", err)
	}
	owned, err := e.store.OwnedBadgeIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load owned badges: %w", err)
	}

	var awards []domain.BadgeAward
	for _, b := range badges {
		if owned[b.ID] || !e.Matches(b, snapshot) {
			continue
		}
		created, err := e.store.AwardBadge(ctx, userID, b.ID, e.now())
		if err != nil {
			return awards, fmt.Errorf("award %s: %w", b.ID, err)
		}
		if !created {
			continue // lost the race
		}
		awards = append(awards, domain.BadgeAward{
			BadgeID:     b.ID,
			Name:        b.Name,
			Icon:        b.Icon,
			Rarity:      b.Rarity,
			XPReward:    b.XPReward,
			CoinsReward: b.CoinsReward,
			GemsReward:  b.Rarity.GemReward(),
		})
	}
	return awards, nil
}

// UnknownConditionKeys lists condition keys in b that no matcher handles.
// Such badges can never be earned; callers log them at startup.
func (e *BadgeEngine) UnknownConditionKeys(b domain.Badge) []domain.StatKey {
	var unknown []domain.StatKey
	for k := range b.Conditions {
		if _, ok := e.matchers[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	return unknown
}

// ─── Badge Seeding ──────────────────────────────────────────────────────────

// BadgeSeeder persists catalog entries.
type BadgeSeeder interface {
	UpsertBadge(ctx context.Context, b domain.Badge) error
}

// SeedBadges writes the given badges into the catalog store.
func SeedBadges(ctx context.Context, store BadgeSeeder, badges []domain.Badge) error {
	for _, b := range badges {
		if err := store.UpsertBadge(ctx, b); err != nil {
			return fmt.Errorf("seed badge %s: %w", b.ID, err)
		}
	}
	return nil
}

// ─── Badge Definitions ──────────────────────────────────────────────────────

type conds = map[domain.StatKey]int64

// DefaultBadges returns the built-in badge catalog.
func DefaultBadges() []domain.Badge {
	return []domain.Badge{
		// ── Getting started ────────────────────────────────────────────
		{
			ID: "first_steps", Name: "First Steps", Icon: "👣", Rarity: domain.RarityCommon,
			Description: "Complete your first lesson",
			Conditions:  conds{domain.StatLessonsCompleted: 1},
			XPReward:    10,
			CoinsReward: 5,
		},
		{
			ID: "explorer", Name: "Explorer", Icon: "🧭", Rarity: domain.RarityCommon,
			Description: "Try 5 different activities",
			Conditions:  conds{domain.StatDistinctActivities: 5},
			XPReward:    25,
			CoinsReward: 10,
		},
		{
			ID: "dedicated", Name: "Dedicated", Icon: "📚", Rarity: domain.RarityRare,
			Description: "Complete 50 lessons",
			Conditions:  conds{domain.StatLessonsCompleted: 50},
			XPReward:    100,
			CoinsReward: 50,
		},

		// ── Accuracy ───────────────────────────────────────────────────
		{
			ID: "perfectionist", Name: "Perfectionist", Icon: "💯", Rarity: domain.RarityCommon,
			Description: "Score 100% on a lesson",
			Conditions:  conds{domain.StatPerfectScores: 1},
			XPReward:    20,
			CoinsReward: 10,
		},
		{
			ID: "flawless_ten", Name: "Flawless Ten", Icon: "🎯", Rarity: domain.RarityEpic,
			Description: "Score 100% ten times",
			Conditions:  conds{domain.StatPerfectScores: 10},
			XPReward:    150,
			CoinsReward: 75,
		},

		// ── Time ───────────────────────────────────────────────────────
		{
			ID: "hour_of_focus", Name: "Hour of Focus", Icon: "⏱️", Rarity: domain.RarityCommon,
			Description: "Study for 60 minutes in total",
			Conditions:  conds{domain.StatStudyMinutes: 60},
			XPReward:    20,
			CoinsReward: 10,
		},
		{
			ID: "marathon", Name: "Marathon", Icon: "🏃", Rarity: domain.RarityRare,
			Description: "Study for 1000 minutes in total",
			Conditions:  conds{domain.StatStudyMinutes: 1000},
			XPReward:    100,
			CoinsReward: 50,
		},

		// ── Streaks ────────────────────────────────────────────────────
		{
			ID: "week_warrior", Name: "Week Warrior", Icon: "🔥", Rarity: domain.RarityRare,
			Description: "Keep a 7-day learning streak",
			Conditions:  conds{domain.StatCurrentStreak: 7},
			XPReward:    70,
			CoinsReward: 35,
		},
		{
			ID: "monthly_machine", Name: "Monthly Machine", Icon: "💪", Rarity: domain.RarityEpic,
			Description: "Keep a 30-day learning streak",
			Conditions:  conds{domain.StatCurrentStreak: 30},
			XPReward:    300,
			CoinsReward: 150,
		},
		{
			ID: "centurion", Name: "Centurion", Icon: "🏛️", Rarity: domain.RarityLegendary,
			Description: "Reach a 100-day learning streak",
			Conditions:  conds{domain.StatLongestStreak: 100},
			XPReward:    1000,
			CoinsReward: 500,
		},

		// ── Progression ────────────────────────────────────────────────
		{
			ID: "rising_star", Name: "Rising Star", Icon: "🌅", Rarity: domain.RarityRare,
			Description: "Reach level 5",
			Conditions:  conds{domain.StatLevel: 5},
			XPReward:    50,
			CoinsReward: 25,
		},
		{
			ID: "goal_getter", Name: "Goal Getter", Icon: "🥅", Rarity: domain.RarityRare,
			Description: "Complete 10 goals",
			Conditions:  conds{domain.StatGoalsCompleted: 10},
			XPReward:    75,
			CoinsReward: 40,
		},
		{
			ID: "scholar_supreme", Name: "Scholar Supreme", Icon: "👑", Rarity: domain.RarityLegendary,
			Description: "Reach level 15 with 200 lessons completed",
			Conditions:  conds{domain.StatLevel: 15, domain.StatLessonsCompleted: 200},
			XPReward:    2000,
			CoinsReward: 1000,
		},
	}
}
