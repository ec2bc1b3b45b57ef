package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/learnquest/learnquest/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *DB, userID int64) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	if err := db.EnsureUser(ctx, userID, now); err != nil {
		t.Fatalf("EnsureUser() error: %v", err)
	}
	if err := db.EnsureWallet(ctx, userID, now); err != nil {
		t.Fatalf("EnsureWallet() error: %v", err)
	}
}

// ─── Database Lifecycle ─────────────────────────────────────────────────────

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, "learnquest.db")); os.IsNotExist(err) {
		t.Error("learnquest.db should exist")
	}
}

func TestOpen_Ping(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := db.EnsureUser(context.Background(), 7, time.Now()); err != nil {
		t.Fatalf("EnsureUser() error: %v", err)
	}
	db.Close()

	// Migrations must be idempotent and data must survive.
	db, err = Open(dir)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	defer db.Close()
	u, err := db.GetUser(context.Background(), 7)
	if err != nil || u == nil {
		t.Fatalf("GetUser() = %v, %v", u, err)
	}
}

// ─── Transactions ───────────────────────────────────────────────────────────

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *Tx) error {
		return tx.EnsureUser(ctx, 1, time.Now())
	})
	if err != nil {
		t.Fatalf("WithTx() error: %v", err)
	}
	u, _ := db.GetUser(ctx, 1)
	if u == nil {
		t.Fatal("user should exist after commit")
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithTx(ctx, func(tx *Tx) error {
		if err := tx.EnsureUser(ctx, 1, time.Now()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want boom", err)
	}
	u, _ := db.GetUser(ctx, 1)
	if u != nil {
		t.Error("user should not exist after rollback")
	}
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	func() {
		defer func() { _ = recover() }()
		_ = db.WithTx(ctx, func(tx *Tx) error {
			_ = tx.EnsureUser(ctx, 1, time.Now())
			panic("kaboom")
		})
	}()

	u, err := db.GetUser(ctx, 1)
	if err != nil {
		t.Fatalf("GetUser() error: %v", err)
	}
	if u != nil {
		t.Error("user should not exist after panic")
	}
}

func TestWithTx_ConnectionWaitTimesOut(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- db.WithTx(ctx, func(*Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	err := db.WithTx(waitCtx, func(*Tx) error {
		t.Error("fn must not run without a connection")
		return nil
	})
	if !errors.Is(err, domain.ErrLockTimeout) {
		t.Errorf("WithTx() = %v, want ErrLockTimeout", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("holder WithTx() error: %v", err)
	}
}

func TestClassify_Busy(t *testing.T) {
	err := classify(errors.New("database is locked (5) (SQLITE_BUSY)"))
	if !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Errorf("classify() = %v, want ErrConcurrencyConflict", err)
	}
	if !domain.IsRetryable(err) {
		t.Error("busy error should be retryable")
	}
	if classify(nil) != nil {
		t.Error("classify(nil) should be nil")
	}
	plain := errors.New("syntax error")
	if classify(plain) != plain {
		t.Error("unrelated errors should pass through")
	}
}

// ─── Users ──────────────────────────────────────────────────────────────────

func TestEnsureUser_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, 1)

	if _, _, err := db.AddExperience(ctx, 1, 50, time.Now()); err != nil {
		t.Fatalf("AddExperience() error: %v", err)
	}
	if err := db.EnsureUser(ctx, 1, time.Now()); err != nil {
		t.Fatalf("EnsureUser() error: %v", err)
	}
	u, _ := db.GetUser(ctx, 1)
	if u.TotalExperience != 50 {
		t.Errorf("TotalExperience = %d, want 50 (EnsureUser must not reset)", u.TotalExperience)
	}
	if u.Level != 1 {
		t.Errorf("Level = %d, want 1", u.Level)
	}
}

func TestAddExperience(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, 1)

	before, after, err := db.AddExperience(ctx, 1, 120, time.Now())
	if err != nil {
		t.Fatalf("AddExperience() error: %v", err)
	}
	if before != 0 || after != 120 {
		t.Errorf("AddExperience() = (%d, %d), want (0, 120)", before, after)
	}
	before, after, _ = db.AddExperience(ctx, 1, 30, time.Now())
	if before != 120 || after != 150 {
		t.Errorf("AddExperience() = (%d, %d), want (120, 150)", before, after)
	}
}

func TestAddExperience_UnknownUser(t *testing.T) {
	db := newTestDB(t)
	_, _, err := db.AddExperience(context.Background(), 99, 10, time.Now())
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("error = %v, want ErrUserNotFound", err)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	db := newTestDB(t)
	u, err := db.GetUser(context.Background(), 404)
	if err != nil {
		t.Fatalf("GetUser() error: %v", err)
	}
	if u != nil {
		t.Error("GetUser() should return nil for missing user")
	}
}

func TestSetUserLevel(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, 1)

	if err := db.SetUserLevel(ctx, 1, 4, time.Now()); err != nil {
		t.Fatalf("SetUserLevel() error: %v", err)
	}
	u, _ := db.GetUser(ctx, 1)
	if u.Level != 4 {
		t.Errorf("Level = %d, want 4", u.Level)
	}
}
