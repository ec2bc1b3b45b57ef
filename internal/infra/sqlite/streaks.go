package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/learnquest/learnquest/internal/domain"
)

// dateLayout is how calendar dates are stored.
const dateLayout = "2006-01-02"

// ─── Streaks ────────────────────────────────────────────────────────────────

// GetStreak loads one streak. Returns nil, nil if the user has none yet.
func (s *Store) GetStreak(ctx context.Context, userID int64, streakType domain.StreakType) (*domain.Streak, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT user_id, streak_type, current_streak, longest_streak, last_activity_date,
		        freezes_available, freezes_used, freezes_granted
		 FROM streaks WHERE user_id = ? AND streak_type = ?`,
		userID, string(streakType),
	)
	st, err := scanStreak(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return st, err
}

// SaveStreak inserts or replaces a streak row.
func (s *Store) SaveStreak(ctx context.Context, st domain.Streak, now time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO streaks (user_id, streak_type, current_streak, longest_streak, last_activity_date,
		                      freezes_available, freezes_used, freezes_granted, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, streak_type) DO UPDATE SET
			current_streak=excluded.current_streak,
			longest_streak=excluded.longest_streak,
			last_activity_date=excluded.last_activity_date,
			freezes_available=excluded.freezes_available,
			freezes_used=excluded.freezes_used,
			freezes_granted=excluded.freezes_granted,
			updated_at=excluded.updated_at`,
		st.UserID, string(st.Type), st.CurrentStreak, st.LongestStreak,
		st.LastActivityDate.Format(dateLayout),
		st.FreezesAvailable, st.FreezesUsed, st.FreezesGranted, now.Unix(),
	)
	return err
}

// ListStreaks returns every streak a user has.
func (s *Store) ListStreaks(ctx context.Context, userID int64) ([]domain.Streak, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT user_id, streak_type, current_streak, longest_streak, last_activity_date,
		        freezes_available, freezes_used, freezes_granted
		 FROM streaks WHERE user_id = ? ORDER BY streak_type`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var streaks []domain.Streak
	for rows.Next() {
		st, err := scanStreak(rows)
		if err != nil {
			return nil, err
		}
		streaks = append(streaks, *st)
	}
	return streaks, rows.Err()
}

func scanStreak(s scanner) (*domain.Streak, error) {
	var st domain.Streak
	var lastDate string
	err := s.Scan(&st.UserID, &st.Type, &st.CurrentStreak, &st.LongestStreak, &lastDate,
		&st.FreezesAvailable, &st.FreezesUsed, &st.FreezesGranted)
	if err != nil {
		return nil, err
	}
	st.LastActivityDate, err = time.Parse(dateLayout, lastDate)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
