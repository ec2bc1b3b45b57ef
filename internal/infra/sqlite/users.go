package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/learnquest/learnquest/internal/domain"
)

// ─── Users ──────────────────────────────────────────────────────────────────

// EnsureUser creates the user's engine row on first use.
func (s *Store) EnsureUser(ctx context.Context, userID int64, now time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (id, total_experience, level, created_at, updated_at)
		 VALUES (?, 0, 1, ?, ?)`,
		userID, now.Unix(), now.Unix(),
	)
	return err
}

// GetUser retrieves a user. Returns nil, nil when the user has no row yet.
func (s *Store) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	var u domain.User
	var createdAt, updatedAt int64
	err := s.q.QueryRowContext(ctx,
		`SELECT id, total_experience, level, created_at, updated_at FROM users WHERE id = ?`,
		userID,
	).Scan(&u.ID, &u.TotalExperience, &u.Level, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = time.Unix(createdAt, 0)
	u.UpdatedAt = time.Unix(updatedAt, 0)
	return &u, nil
}

// AddExperience increments total_experience and returns the totals before
// and after the increment. The user row must exist.
func (s *Store) AddExperience(ctx context.Context, userID, amount int64, now time.Time) (before, after int64, err error) {
	err = s.q.QueryRowContext(ctx,
		`UPDATE users SET total_experience = total_experience + ?, updated_at = ?
		 WHERE id = ? RETURNING total_experience`,
		amount, now.Unix(), userID,
	).Scan(&after)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, fmt.Errorf("user %d: %w", userID, domain.ErrUserNotFound)
	}
	if err != nil {
		return 0, 0, err
	}
	return after - amount, after, nil
}

// SetUserLevel stores the derived level for quick reads.
func (s *Store) SetUserLevel(ctx context.Context, userID int64, level int, now time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE users SET level = ?, updated_at = ? WHERE id = ?`,
		level, now.Unix(), userID,
	)
	return err
}
