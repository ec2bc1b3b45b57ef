package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/learnquest/learnquest/internal/domain"
)

// GoalStore is the persistence a GoalTracker needs.
type GoalStore interface {
	EnsureGoals(ctx context.Context, userID int64, periodDate string, templates []domain.GoalTemplate, now time.Time) error
	OpenGoals(ctx context.Context, userID int64, period domain.GoalPeriod, periodDate string) ([]domain.Goal, error)
	AdvanceGoal(ctx context.Context, id, delta int64, now time.Time) (progress int64, completedNow bool, err error)
}

// GoalLister reads goals for the dashboard projection.
type GoalLister interface {
	EnsureGoals(ctx context.Context, userID int64, periodDate string, templates []domain.GoalTemplate, now time.Time) error
	ListGoals(ctx context.Context, userID int64, period domain.GoalPeriod, periodDate string) ([]domain.Goal, error)
}

// GoalCatalog supplies the templates instantiated for each period.
type GoalCatalog interface {
	Templates(period domain.GoalPeriod) []domain.GoalTemplate
}

// StaticGoalCatalog is a GoalCatalog backed by a fixed template list.
type StaticGoalCatalog []domain.GoalTemplate

// Templates returns the templates for one period.
func (c StaticGoalCatalog) Templates(period domain.GoalPeriod) []domain.GoalTemplate {
	var out []domain.GoalTemplate
	for _, t := range c {
		if t.Period == period {
			out = append(out, t)
		}
	}
	return out
}

// DefaultGoalCatalog returns the built-in daily, weekly and monthly goals.
func DefaultGoalCatalog() StaticGoalCatalog {
	return StaticGoalCatalog{
		{Period: domain.PeriodDaily, Category: domain.GoalLessons, Title: "Complete a lesson", Target: 1, RewardXP: 10, RewardCoins: 5},
		{Period: domain.PeriodDaily, Category: domain.GoalMinutes, Title: "Study for 15 minutes", Target: 15, RewardXP: 15, RewardCoins: 5},

		{Period: domain.PeriodWeekly, Category: domain.GoalLessons, Title: "Complete 5 lessons", Target: 5, RewardXP: 50, RewardCoins: 20},
		{Period: domain.PeriodWeekly, Category: domain.GoalMinutes, Title: "Study for 60 minutes", Target: 60, RewardXP: 50, RewardCoins: 20},
		{Period: domain.PeriodWeekly, Category: domain.GoalExperience, Title: "Earn 500 XP", Target: 500, RewardXP: 75, RewardCoins: 25},

		{Period: domain.PeriodMonthly, Category: domain.GoalLessons, Title: "Complete 20 lessons", Target: 20, RewardXP: 200, RewardCoins: 100},
		{Period: domain.PeriodMonthly, Category: domain.GoalPerfectScores, Title: "Score 100% five times", Target: 5, RewardXP: 250, RewardCoins: 100},
	}
}

// GoalTracker accumulates per-period progress and reports completions.
// It never touches the wallet: rewards travel back in the completions.
type GoalTracker struct {
	catalog GoalCatalog
	loc     *time.Location
}

// NewGoalTracker creates a goal tracker. Period boundaries are calendar
// dates in loc (nil means UTC).
func NewGoalTracker(catalog GoalCatalog, loc *time.Location) *GoalTracker {
	if loc == nil {
		loc = time.UTC
	}
	return &GoalTracker{catalog: catalog, loc: loc}
}

// ApplyProgress adds deltas to the user's open goals for the period that
// contains now. Goals for the period are created on first access.
// Each goal whose progress reaches its target is returned exactly once.
func (g *GoalTracker) ApplyProgress(ctx context.Context, store GoalStore, userID int64, period domain.GoalPeriod, deltas map[domain.GoalCategory]int64, now time.Time) ([]domain.GoalCompletion, error) {
	if !period.Valid() {
		return nil, fmt.Errorf("period %q: %w", period, domain.ErrInvalidArgument)
	}

	periodDate := PeriodDate(period, now.In(g.loc))
	if err := store.EnsureGoals(ctx, userID, periodDate, g.catalog.Templates(period), now); err != nil {
		return nil, fmt.Errorf("ensure %s goals: %w", period, err)
	}

	open, err := store.OpenGoals(ctx, userID, period, periodDate)
	if err != nil {
		return nil, fmt.Errorf("list %s goals: %w", period, err)
	}

	var completed []domain.GoalCompletion
	for _, goal := range open {
		delta := deltas[goal.Category]
		if delta <= 0 {
			continue
		}
		_, done, err := store.AdvanceGoal(ctx, goal.ID, delta, now)
		if err != nil {
			return nil, fmt.Errorf("advance goal %d: %w", goal.ID, err)
		}
		if done {
			completed = append(completed, domain.GoalCompletion{
				GoalID:      goal.ID,
				Period:      goal.Period,
				Category:    goal.Category,
				Title:       goal.Title,
				Target:      goal.TargetValue,
				RewardXP:    goal.RewardXP,
				RewardCoins: goal.RewardCoins,
			})
		}
	}
	return completed, nil
}

// Goals returns the user's goals for the period containing now,
// creating them if this is the first access.
func (g *GoalTracker) Goals(ctx context.Context, store GoalLister, userID int64, period domain.GoalPeriod, now time.Time) ([]domain.Goal, error) {
	if !period.Valid() {
		return nil, fmt.Errorf("period %q: %w", period, domain.ErrInvalidArgument)
	}
	periodDate := PeriodDate(period, now.In(g.loc))
	if err := store.EnsureGoals(ctx, userID, periodDate, g.catalog.Templates(period), now); err != nil {
		return nil, fmt.Errorf("ensure %s goals: %w", period, err)
	}
	return store.ListGoals(ctx, userID, period, periodDate)
}

// CompletionDeltas maps one completion onto goal categories.
func CompletionDeltas(timeSpent, score int, experience int64) map[domain.GoalCategory]int64 {
	deltas := map[domain.GoalCategory]int64{
		domain.GoalLessons:    1,
		domain.GoalMinutes:    int64(timeSpent),
		domain.GoalExperience: experience,
	}
	if score == 100 {
		deltas[domain.GoalPerfectScores] = 1
	}
	return deltas
}

// PeriodDate returns the YYYY-MM-DD key of the period containing t,
// using t's own calendar date: the day itself, the Monday of its ISO
// week, or the first of its month.
func PeriodDate(period domain.GoalPeriod, t time.Time) string {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	switch period {
	case domain.PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		day = day.AddDate(0, 0, -offset)
	case domain.PeriodMonthly:
		day = time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	}
	return day.Format("2006-01-02")
}
