package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/learnquest/learnquest/internal/domain"
)

// ─── Badges ─────────────────────────────────────────────────────────────────

// UpsertBadge inserts or replaces a badge catalog entry.
func (s *Store) UpsertBadge(ctx context.Context, b domain.Badge) error {
	conds, err := json.Marshal(b.Conditions)
	if err != nil {
		return fmt.Errorf("encode conditions for %s: %w", b.ID, err)
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO badges (id, name, description, icon, conditions, xp_reward, coins_reward, rarity)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, description=excluded.description, icon=excluded.icon,
			conditions=excluded.conditions, xp_reward=excluded.xp_reward,
			coins_reward=excluded.coins_reward, rarity=excluded.rarity`,
		b.ID, b.Name, b.Description, b.Icon, string(conds),
		b.XPReward, b.CoinsReward, string(b.Rarity),
	)
	return err
}

// ListBadges returns the whole badge catalog ordered by ID.
func (s *Store) ListBadges(ctx context.Context) ([]domain.Badge, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, name, description, icon, conditions, xp_reward, coins_reward, rarity
		 FROM badges ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var badges []domain.Badge
	for rows.Next() {
		var b domain.Badge
		var conds string
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Icon, &conds,
			&b.XPReward, &b.CoinsReward, &b.Rarity); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(conds), &b.Conditions); err != nil {
			return nil, fmt.Errorf("decode conditions for %s: %w", b.ID, err)
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

// OwnedBadgeIDs returns the set of badges a user already holds.
func (s *Store) OwnedBadgeIDs(ctx context.Context, userID int64) (map[string]bool, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT badge_id FROM user_badges WHERE user_id = ?`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	owned := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owned[id] = true
	}
	return owned, rows.Err()
}

// AwardBadge records a badge for a user. Returns true only if this call
// created the row; a second award of the same badge is a no-op.
func (s *Store) AwardBadge(ctx context.Context, userID int64, badgeID string, now time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_badges (user_id, badge_id, earned_at) VALUES (?, ?, ?)`,
		userID, badgeID, now.Unix(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListUserBadges returns a user's earned badges, oldest first.
func (s *Store) ListUserBadges(ctx context.Context, userID int64) ([]domain.UserBadge, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT user_id, badge_id, earned_at FROM user_badges
		 WHERE user_id = ? ORDER BY earned_at, badge_id`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UserBadge
	for rows.Next() {
		var ub domain.UserBadge
		var earned int64
		if err := rows.Scan(&ub.UserID, &ub.BadgeID, &earned); err != nil {
			return nil, err
		}
		ub.EarnedAt = time.Unix(earned, 0)
		out = append(out, ub)
	}
	return out, rows.Err()
}
