package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/learnquest/learnquest/internal/domain"
)

// ─── Goals ──────────────────────────────────────────────────────────────────

// EnsureGoals creates the period's goals from templates. Goals that already
// exist for (user, period, category, period_date) are left untouched.
func (s *Store) EnsureGoals(ctx context.Context, userID int64, periodDate string, templates []domain.GoalTemplate, now time.Time) error {
	for _, tmpl := range templates {
		_, err := s.q.ExecContext(ctx,
			`INSERT OR IGNORE INTO goals (user_id, period, category, title, target_value, current_progress,
			                              is_completed, period_date, reward_xp, reward_coins, created_at)
			 VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?, ?, ?)`,
			userID, string(tmpl.Period), string(tmpl.Category), tmpl.Title, tmpl.Target,
			periodDate, tmpl.RewardXP, tmpl.RewardCoins, now.Unix(),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// OpenGoals returns the not-yet-completed goals for one period date.
func (s *Store) OpenGoals(ctx context.Context, userID int64, period domain.GoalPeriod, periodDate string) ([]domain.Goal, error) {
	return s.queryGoals(ctx,
		`SELECT id, user_id, period, category, title, target_value, current_progress, is_completed,
		        period_date, completed_at, reward_xp, reward_coins
		 FROM goals WHERE user_id = ? AND period = ? AND period_date = ? AND is_completed = 0
		 ORDER BY id`,
		userID, string(period), periodDate,
	)
}

// ListGoals returns all goals for one period date, completed or not.
func (s *Store) ListGoals(ctx context.Context, userID int64, period domain.GoalPeriod, periodDate string) ([]domain.Goal, error) {
	return s.queryGoals(ctx,
		`SELECT id, user_id, period, category, title, target_value, current_progress, is_completed,
		        period_date, completed_at, reward_xp, reward_coins
		 FROM goals WHERE user_id = ? AND period = ? AND period_date = ?
		 ORDER BY id`,
		userID, string(period), periodDate,
	)
}

// GetGoal retrieves a goal by ID. Returns nil, nil if not found.
func (s *Store) GetGoal(ctx context.Context, id int64) (*domain.Goal, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, user_id, period, category, title, target_value, current_progress, is_completed,
		        period_date, completed_at, reward_xp, reward_coins
		 FROM goals WHERE id = ?`, id,
	)
	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

// AdvanceGoal adds delta to an open goal, clamped at its target. When the
// new progress reaches the target the goal is completed in the same
// statement. completedNow is true only for the call that flipped the flag;
// a goal that was already completed is not touched.
func (s *Store) AdvanceGoal(ctx context.Context, id, delta int64, now time.Time) (progress int64, completedNow bool, err error) {
	err = s.q.QueryRowContext(ctx,
		`UPDATE goals SET
			current_progress = MIN(current_progress + ?, target_value),
			is_completed     = CASE WHEN current_progress + ? >= target_value THEN 1 ELSE 0 END,
			completed_at     = CASE WHEN current_progress + ? >= target_value THEN ? ELSE NULL END
		 WHERE id = ? AND is_completed = 0
		 RETURNING current_progress, is_completed`,
		delta, delta, delta, now.Unix(), id,
	).Scan(&progress, &completedNow)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	return progress, completedNow, err
}

// CompletedGoalCount returns how many goals a user has ever completed.
func (s *Store) CompletedGoalCount(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM goals WHERE user_id = ? AND is_completed = 1`, userID,
	).Scan(&n)
	return n, err
}

func (s *Store) queryGoals(ctx context.Context, query string, args ...any) ([]domain.Goal, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var goals []domain.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, *g)
	}
	return goals, rows.Err()
}

func scanGoal(s scanner) (*domain.Goal, error) {
	var g domain.Goal
	var completedAt sql.NullInt64
	err := s.Scan(&g.ID, &g.UserID, &g.Period, &g.Category, &g.Title, &g.TargetValue,
		&g.CurrentProgress, &g.IsCompleted, &g.PeriodDate, &completedAt,
		&g.RewardXP, &g.RewardCoins)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		g.CompletedAt = &t
	}
	return &g, nil
}
