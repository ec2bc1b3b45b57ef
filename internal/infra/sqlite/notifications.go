package sqlite

import (
	"context"
	"time"

	"github.com/learnquest/learnquest/internal/domain"
)

// ─── Notifications ──────────────────────────────────────────────────────────

// InsertNotification stores a notification and returns its row ID.
func (s *Store) InsertNotification(ctx context.Context, n domain.Notification) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO notifications (user_id, type, title, message, icon, is_read, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		n.UserID, string(n.Type), n.Title, n.Message, n.Icon, n.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertNotificationCapped stores n unless the user already has max
// notifications created at or after since. Counting and inserting are a
// single statement. max <= 0 disables the cap. Returns false when capped.
func (s *Store) InsertNotificationCapped(ctx context.Context, n domain.Notification, since time.Time, max int) (int64, bool, error) {
	if max <= 0 {
		id, err := s.InsertNotification(ctx, n)
		return id, err == nil, err
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO notifications (user_id, type, title, message, icon, is_read, created_at)
		 SELECT ?, ?, ?, ?, ?, 0, ?
		 WHERE (SELECT COUNT(*) FROM notifications WHERE user_id = ? AND created_at >= ?) < ?`,
		n.UserID, string(n.Type), n.Title, n.Message, n.Icon, n.CreatedAt.Unix(),
		n.UserID, since.Unix(), max,
	)
	if err != nil {
		return 0, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if affected == 0 {
		return 0, false, nil
	}
	id, err := res.LastInsertId()
	return id, true, err
}

// ListNotifications returns a user's most recent notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID int64, limit int) ([]domain.Notification, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, user_id, type, title, message, icon, is_read, created_at
		 FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var created int64
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message,
			&n.Icon, &n.IsRead, &created); err != nil {
			return nil, err
		}
		n.CreatedAt = time.Unix(created, 0)
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead flags one notification as read. Returns false if
// it does not exist or belongs to another user.
func (s *Store) MarkNotificationRead(ctx context.Context, userID, id int64) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
