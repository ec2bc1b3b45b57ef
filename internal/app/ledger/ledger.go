// Package ledger applies experience and currency rewards.
// Every coin or gem movement appends an immutable transaction and updates
// the wallet projection in the same store call sequence; callers supply the
// transaction both run in.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/learnquest/learnquest/internal/app/engagement"
	"github.com/learnquest/learnquest/internal/domain"
)

// Store is the write side the ledger needs. Satisfied by *sqlite.Tx.
type Store interface {
	EnsureUser(ctx context.Context, userID int64, now time.Time) error
	EnsureWallet(ctx context.Context, userID int64, now time.Time) error
	AddExperience(ctx context.Context, userID, amount int64, now time.Time) (before, after int64, err error)
	SetUserLevel(ctx context.Context, userID int64, level int, now time.Time) error
	ApplyWalletDelta(ctx context.Context, userID int64, currency domain.Currency, delta int64, now time.Time) (domain.Wallet, error)
	InsertTransaction(ctx context.Context, t domain.Transaction) error
}

// Reader is the read side used by projections.
type Reader interface {
	GetWallet(ctx context.Context, userID int64) (*domain.Wallet, error)
	Transactions(ctx context.Context, userID int64, limit int) ([]domain.Transaction, error)
	TransactionTotals(ctx context.Context, userID int64, currency domain.Currency) (earned, spent int64, err error)
}

// Ledger applies rewards.
type Ledger struct {
	levels *engagement.LevelProgression
	now    func() time.Time
	newID  func() string
}

// New creates a ledger that derives levels from the given progression.
func New(levels *engagement.LevelProgression) *Ledger {
	return &Ledger{
		levels: levels,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// AwardExperience adds amount to the user's experience total. When the
// total crosses level breakpoints it emits a LevelUpEvent and pays its
// coins. Level-up rewards are coins only, so the pipeline
// ExperienceAwarded -> LevelUp -> CoinsAwarded never loops back.
func (l *Ledger) AwardExperience(ctx context.Context, tx Store, userID, amount int64, source domain.RewardSource) (domain.ExperienceAwarded, error) {
	if amount < 0 {
		return domain.ExperienceAwarded{}, fmt.Errorf("experience amount %d: %w", amount, domain.ErrInvalidArgument)
	}
	now := l.now()
	if err := tx.EnsureUser(ctx, userID, now); err != nil {
		return domain.ExperienceAwarded{}, fmt.Errorf("ensure user: %w", err)
	}

	before, after, err := tx.AddExperience(ctx, userID, amount, now)
	if err != nil {
		return domain.ExperienceAwarded{}, fmt.Errorf("add experience: %w", err)
	}

	ev := domain.ExperienceAwarded{
		UserID:        userID,
		Amount:        amount,
		Source:        source,
		PreviousTotal: before,
		NewTotal:      after,
		PreviousLevel: l.levels.LevelFor(before),
		NewLevel:      l.levels.LevelFor(after),
	}
	if ev.NewLevel <= ev.PreviousLevel {
		return ev, nil
	}

	if err := tx.SetUserLevel(ctx, userID, ev.NewLevel, now); err != nil {
		return domain.ExperienceAwarded{}, fmt.Errorf("set level: %w", err)
	}
	lu := &domain.LevelUpEvent{
		UserID:        userID,
		PreviousLevel: ev.PreviousLevel,
		NewLevel:      ev.NewLevel,
		Coins:         engagement.LevelUpCoinsBetween(ev.PreviousLevel, ev.NewLevel),
	}
	if lu.Coins > 0 {
		reason := fmt.Sprintf("Reached level %d", lu.NewLevel)
		if _, err := l.AddCoins(ctx, tx, userID, lu.Coins, reason, domain.SourceLevelUp); err != nil {
			return domain.ExperienceAwarded{}, fmt.Errorf("level-up coins: %w", err)
		}
	}
	ev.LevelUp = lu
	return ev, nil
}

// AddCoins appends a coin transaction and updates the wallet. Positive
// amounts are earned, negative are spent; a spend beyond the balance
// fails with domain.ErrInsufficientFunds and writes nothing.
func (l *Ledger) AddCoins(ctx context.Context, tx Store, userID, amount int64, reason string, source domain.RewardSource) (domain.Transaction, error) {
	return l.move(ctx, tx, userID, domain.CurrencyCoins, amount, reason, source)
}

// AddGems is AddCoins for the gem currency.
func (l *Ledger) AddGems(ctx context.Context, tx Store, userID, amount int64, reason string, source domain.RewardSource) (domain.Transaction, error) {
	return l.move(ctx, tx, userID, domain.CurrencyGems, amount, reason, source)
}

func (l *Ledger) move(ctx context.Context, tx Store, userID int64, currency domain.Currency, amount int64, reason string, source domain.RewardSource) (domain.Transaction, error) {
	if amount == 0 {
		return domain.Transaction{}, fmt.Errorf("%s amount must be non-zero: %w", currency, domain.ErrInvalidArgument)
	}
	now := l.now()
	if err := tx.EnsureWallet(ctx, userID, now); err != nil {
		return domain.Transaction{}, fmt.Errorf("ensure wallet: %w", err)
	}

	// The guarded update rejects overdrafts before anything is logged.
	if _, err := tx.ApplyWalletDelta(ctx, userID, currency, amount, now); err != nil {
		return domain.Transaction{}, err
	}

	t := domain.Transaction{
		ID:        l.newID(),
		UserID:    userID,
		Kind:      domain.TxEarned,
		Currency:  currency,
		Amount:    amount,
		Reason:    reason,
		Source:    source,
		Timestamp: now,
	}
	if amount < 0 {
		t.Kind = domain.TxSpent
		t.Amount = -amount
	}
	if err := tx.InsertTransaction(ctx, t); err != nil {
		return domain.Transaction{}, fmt.Errorf("append transaction: %w", err)
	}
	return t, nil
}

// ─── Read Side ──────────────────────────────────────────────────────────────

// Wallet returns the user's wallet, or an empty wallet if none exists yet.
func Wallet(ctx context.Context, r Reader, userID int64) (domain.Wallet, error) {
	w, err := r.GetWallet(ctx, userID)
	if err != nil {
		return domain.Wallet{}, err
	}
	if w == nil {
		return domain.Wallet{UserID: userID}, nil
	}
	return *w, nil
}

// History returns the user's most recent transactions, newest first.
func History(ctx context.Context, r Reader, userID int64, limit int) ([]domain.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return r.Transactions(ctx, userID, limit)
}

// Reconcile checks the wallet projection against the coin transaction log.
func Reconcile(ctx context.Context, r Reader, userID int64) error {
	w, err := Wallet(ctx, r, userID)
	if err != nil {
		return err
	}
	earned, spent, err := r.TransactionTotals(ctx, userID, domain.CurrencyCoins)
	if err != nil {
		return err
	}
	if earned != w.TotalEarned || spent != w.TotalSpent || earned-spent != w.Coins {
		return fmt.Errorf("wallet %d drifted: log earned=%d spent=%d, wallet coins=%d earned=%d spent=%d",
			userID, earned, spent, w.Coins, w.TotalEarned, w.TotalSpent)
	}
	return nil
}
