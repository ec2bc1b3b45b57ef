package sqlite

import (
	"context"
	"math"
	"time"

	"github.com/learnquest/learnquest/internal/domain"
)

// ─── Completions & Stats ────────────────────────────────────────────────────

// InsertCompletion appends a completion audit row.
func (s *Store) InsertCompletion(ctx context.Context, c domain.CompletionRecord) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO completions (user_id, activity_ref, time_spent, score, experience, coins, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.UserID, c.ActivityRef, c.TimeSpent, c.Score, c.Experience, c.Coins, c.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Completions returns a user's most recent completions, newest first.
func (s *Store) Completions(ctx context.Context, userID int64, limit int) ([]domain.CompletionRecord, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, user_id, activity_ref, time_spent, score, experience, coins, created_at
		 FROM completions WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CompletionRecord
	for rows.Next() {
		var c domain.CompletionRecord
		var created int64
		if err := rows.Scan(&c.ID, &c.UserID, &c.ActivityRef, &c.TimeSpent, &c.Score,
			&c.Experience, &c.Coins, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = time.Unix(created, 0)
		out = append(out, c)
	}
	return out, rows.Err()
}

// StatsSnapshot aggregates every known statistic for a user in one read.
// Missing rows contribute zeros.
func (s *Store) StatsSnapshot(ctx context.Context, userID int64) (domain.StatsSnapshot, error) {
	var (
		lessons, distinct, perfect, minutes int64
		totalMinutes                        float64
		xp, level                           int64
		current, longest                    int64
		coinsEarned, goals, badges          int64
	)
	err := s.q.QueryRowContext(ctx,
		`SELECT
			COUNT(*),
			COUNT(DISTINCT activity_ref),
			COALESCE(SUM(CASE WHEN score = 100 THEN 1 ELSE 0 END), 0),
			TOTAL(time_spent)
		 FROM completions WHERE user_id = ?`, userID,
	).Scan(&lessons, &distinct, &perfect, &totalMinutes)
	if err != nil {
		return nil, err
	}
	// TOTAL is floating point and cannot overflow; saturate on the way back.
	minutes = math.MaxInt64
	if totalMinutes < float64(math.MaxInt64) {
		minutes = int64(totalMinutes)
	}

	err = s.q.QueryRowContext(ctx,
		`SELECT
			COALESCE((SELECT total_experience FROM users WHERE id = ?), 0),
			COALESCE((SELECT level FROM users WHERE id = ?), 1),
			COALESCE((SELECT current_streak FROM streaks WHERE user_id = ? AND streak_type = ?), 0),
			COALESCE((SELECT longest_streak FROM streaks WHERE user_id = ? AND streak_type = ?), 0),
			COALESCE((SELECT total_earned FROM wallets WHERE user_id = ?), 0),
			(SELECT COUNT(*) FROM goals WHERE user_id = ? AND is_completed = 1),
			(SELECT COUNT(*) FROM user_badges WHERE user_id = ?)`,
		userID, userID,
		userID, string(domain.StreakLearning),
		userID, string(domain.StreakLearning),
		userID, userID, userID,
	).Scan(&xp, &level, &current, &longest, &coinsEarned, &goals, &badges)
	if err != nil {
		return nil, err
	}

	return domain.StatsSnapshot{
		domain.StatLessonsCompleted:   lessons,
		domain.StatDistinctActivities: distinct,
		domain.StatPerfectScores:      perfect,
		domain.StatStudyMinutes:       minutes,
		domain.StatTotalExperience:    xp,
		domain.StatLevel:              level,
		domain.StatCurrentStreak:      current,
		domain.StatLongestStreak:      longest,
		domain.StatCoinsEarned:        coinsEarned,
		domain.StatGoalsCompleted:     goals,
		domain.StatBadgesEarned:       badges,
	}, nil
}
