package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/learnquest/learnquest/internal/domain"
)

func TestApplyWalletDelta_Coins(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, 1)

	w, err := db.ApplyWalletDelta(ctx, 1, domain.CurrencyCoins, 40, time.Now())
	if err != nil {
		t.Fatalf("ApplyWalletDelta(+40) error: %v", err)
	}
	if w.Coins != 40 || w.TotalEarned != 40 {
		t.Errorf("wallet = %+v, want coins=40 earned=40", w)
	}

	w, err = db.ApplyWalletDelta(ctx, 1, domain.CurrencyCoins, -15, time.Now())
	if err != nil {
		t.Fatalf("ApplyWalletDelta(-15) error: %v", err)
	}
	if w.Coins != 25 || w.TotalSpent != 15 || w.TotalEarned != 40 {
		t.Errorf("wallet = %+v, want coins=25 spent=15 earned=40", w)
	}
}

func TestApplyWalletDelta_Overdraft(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, 1)
	db.ApplyWalletDelta(ctx, 1, domain.CurrencyCoins, 10, time.Now())

	_, err := db.ApplyWalletDelta(ctx, 1, domain.CurrencyCoins, -11, time.Now())
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("error = %v, want ErrInsufficientFunds", err)
	}
	w, _ := db.GetWallet(ctx, 1)
	if w.Coins != 10 {
		t.Errorf("Coins = %d, want 10 (overdraft must not change balance)", w.Coins)
	}
}

func TestApplyWalletDelta_Gems(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, 1)

	w, err := db.ApplyWalletDelta(ctx, 1, domain.CurrencyGems, 3, time.Now())
	if err != nil {
		t.Fatalf("ApplyWalletDelta() error: %v", err)
	}
	if w.Gems != 3 || w.Coins != 0 || w.TotalEarned != 0 {
		t.Errorf("wallet = %+v, want gems=3 only", w)
	}
	if _, err := db.ApplyWalletDelta(ctx, 1, domain.CurrencyGems, -4, time.Now()); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("gem overdraft error = %v, want ErrInsufficientFunds", err)
	}
}

func TestApplyWalletDelta_MissingWallet(t *testing.T) {
	db := newTestDB(t)
	_, err := db.ApplyWalletDelta(context.Background(), 9, domain.CurrencyCoins, 5, time.Now())
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("error = %v, want ErrUserNotFound", err)
	}
}

func TestApplyWalletDelta_UnknownCurrency(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, 1)
	_, err := db.ApplyWalletDelta(context.Background(), 1, domain.Currency("gold"), 5, time.Now())
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
}

// ─── Transaction Log ────────────────────────────────────────────────────────

func TestTransactions_NewestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 3; i++ {
		err := db.InsertTransaction(ctx, domain.Transaction{
			ID:        fmt.Sprintf("tx-%d", i),
			UserID:    1,
			Kind:      domain.TxEarned,
			Currency:  domain.CurrencyCoins,
			Amount:    int64(10 * (i + 1)),
			Reason:    "lesson",
			Source:    domain.SourceCompletion,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("InsertTransaction(%d) error: %v", i, err)
		}
	}

	txs, err := db.Transactions(ctx, 1, 2)
	if err != nil {
		t.Fatalf("Transactions() error: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("len = %d, want 2", len(txs))
	}
	if txs[0].ID != "tx-2" || txs[1].ID != "tx-1" {
		t.Errorf("order = [%s %s], want [tx-2 tx-1]", txs[0].ID, txs[1].ID)
	}
}

func TestTransactions_AppendOnly(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	db.InsertTransaction(ctx, domain.Transaction{
		ID: "tx-1", UserID: 1, Kind: domain.TxEarned, Currency: domain.CurrencyCoins,
		Amount: 5, Source: domain.SourceManual, Timestamp: time.Now(),
	})

	if _, err := db.db.Exec(`UPDATE transactions SET amount = 500 WHERE id = 'tx-1'`); err == nil {
		t.Error("UPDATE on transactions should be rejected")
	}
	if _, err := db.db.Exec(`DELETE FROM transactions WHERE id = 'tx-1'`); err == nil {
		t.Error("DELETE on transactions should be rejected")
	}
}

func TestTransactions_RejectsNonPositiveAmount(t *testing.T) {
	db := newTestDB(t)
	err := db.InsertTransaction(context.Background(), domain.Transaction{
		ID: "tx-0", UserID: 1, Kind: domain.TxEarned, Currency: domain.CurrencyCoins,
		Amount: 0, Source: domain.SourceManual, Timestamp: time.Now(),
	})
	if err == nil {
		t.Error("zero-amount transaction should violate CHECK")
	}
}

func TestTransactionTotals(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now()
	entries := []domain.Transaction{
		{ID: "a", UserID: 1, Kind: domain.TxEarned, Currency: domain.CurrencyCoins, Amount: 30, Source: domain.SourceCompletion, Timestamp: now},
		{ID: "b", UserID: 1, Kind: domain.TxEarned, Currency: domain.CurrencyCoins, Amount: 20, Source: domain.SourceGoal, Timestamp: now},
		{ID: "c", UserID: 1, Kind: domain.TxSpent, Currency: domain.CurrencyCoins, Amount: 15, Source: domain.SourceManual, Timestamp: now},
		{ID: "d", UserID: 1, Kind: domain.TxEarned, Currency: domain.CurrencyGems, Amount: 1, Source: domain.SourceBadge, Timestamp: now},
	}
	for _, e := range entries {
		if err := db.InsertTransaction(ctx, e); err != nil {
			t.Fatalf("InsertTransaction(%s) error: %v", e.ID, err)
		}
	}

	earned, spent, err := db.TransactionTotals(ctx, 1, domain.CurrencyCoins)
	if err != nil {
		t.Fatalf("TransactionTotals() error: %v", err)
	}
	if earned != 50 || spent != 15 {
		t.Errorf("totals = (%d, %d), want (50, 15)", earned, spent)
	}
}
