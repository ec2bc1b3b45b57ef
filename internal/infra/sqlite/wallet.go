package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/learnquest/learnquest/internal/domain"
)

// ─── Wallet ─────────────────────────────────────────────────────────────────

// EnsureWallet creates an empty wallet on first use.
func (s *Store) EnsureWallet(ctx context.Context, userID int64, now time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO wallets (user_id, coins, gems, total_earned, total_spent, updated_at)
		 VALUES (?, 0, 0, 0, 0, ?)`,
		userID, now.Unix(),
	)
	return err
}

// GetWallet returns the wallet projection. Returns nil, nil if none exists.
func (s *Store) GetWallet(ctx context.Context, userID int64) (*domain.Wallet, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT user_id, coins, gems, total_earned, total_spent, updated_at
		 FROM wallets WHERE user_id = ?`, userID,
	)
	w, err := scanWallet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return w, err
}

// ApplyWalletDelta moves the wallet balance for one currency by delta and
// returns the updated wallet. A negative delta that would overdraw the
// balance changes nothing and returns domain.ErrInsufficientFunds.
// Coin movements also update total_earned / total_spent.
func (s *Store) ApplyWalletDelta(ctx context.Context, userID int64, currency domain.Currency, delta int64, now time.Time) (domain.Wallet, error) {
	var query string
	var args []any
	switch currency {
	case domain.CurrencyCoins:
		query = `UPDATE wallets SET
				coins        = coins + ?,
				total_earned = total_earned + MAX(?, 0),
				total_spent  = total_spent + MAX(-?, 0),
				updated_at   = ?
			 WHERE user_id = ? AND coins + ? >= 0
			 RETURNING user_id, coins, gems, total_earned, total_spent, updated_at`
		args = []any{delta, delta, delta, now.Unix(), userID, delta}
	case domain.CurrencyGems:
		query = `UPDATE wallets SET gems = gems + ?, updated_at = ?
			 WHERE user_id = ? AND gems + ? >= 0
			 RETURNING user_id, coins, gems, total_earned, total_spent, updated_at`
		args = []any{delta, now.Unix(), userID, delta}
	default:
		return domain.Wallet{}, fmt.Errorf("currency %q: %w", currency, domain.ErrInvalidArgument)
	}

	w, err := scanWallet(s.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		// Either the wallet is missing or the guard rejected an overdraft.
		existing, gerr := s.GetWallet(ctx, userID)
		if gerr != nil {
			return domain.Wallet{}, gerr
		}
		if existing == nil {
			return domain.Wallet{}, fmt.Errorf("wallet for user %d: %w", userID, domain.ErrUserNotFound)
		}
		return domain.Wallet{}, fmt.Errorf("%s balance %d, change %d: %w",
			currency, balanceOf(existing, currency), delta, domain.ErrInsufficientFunds)
	}
	if err != nil {
		return domain.Wallet{}, err
	}
	return *w, nil
}

func balanceOf(w *domain.Wallet, c domain.Currency) int64 {
	if c == domain.CurrencyGems {
		return w.Gems
	}
	return w.Coins
}

func scanWallet(s scanner) (*domain.Wallet, error) {
	var w domain.Wallet
	var updatedAt int64
	if err := s.Scan(&w.UserID, &w.Coins, &w.Gems, &w.TotalEarned, &w.TotalSpent, &updatedAt); err != nil {
		return nil, err
	}
	w.UpdatedAt = time.Unix(updatedAt, 0)
	return &w, nil
}

// ─── Transaction Log ────────────────────────────────────────────────────────

// InsertTransaction appends an immutable transaction record.
func (s *Store) InsertTransaction(ctx context.Context, t domain.Transaction) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, kind, currency, amount, reason, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, string(t.Kind), string(t.Currency), t.Amount,
		t.Reason, string(t.Source), t.Timestamp.Unix(),
	)
	return err
}

// Transactions returns a user's most recent transactions, newest first.
func (s *Store) Transactions(ctx context.Context, userID int64, limit int) ([]domain.Transaction, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, user_id, kind, currency, amount, reason, source, created_at
		 FROM transactions WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var ts int64
		if err := rows.Scan(&t.ID, &t.UserID, &t.Kind, &t.Currency, &t.Amount,
			&t.Reason, &t.Source, &ts); err != nil {
			return nil, err
		}
		t.Timestamp = time.Unix(ts, 0)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// TransactionTotals sums earned and spent coin transactions for a user.
// Used to reconcile the wallet projection against the log.
func (s *Store) TransactionTotals(ctx context.Context, userID int64, currency domain.Currency) (earned, spent int64, err error) {
	err = s.q.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN kind = 'earned' THEN amount END), 0),
			COALESCE(SUM(CASE WHEN kind = 'spent'  THEN amount END), 0)
		 FROM transactions WHERE user_id = ? AND currency = ?`,
		userID, string(currency),
	).Scan(&earned, &spent)
	return earned, spent, err
}
