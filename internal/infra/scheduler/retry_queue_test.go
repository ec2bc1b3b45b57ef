package scheduler

import (
	"testing"
	"time"

	"github.com/learnquest/learnquest/internal/domain"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestQueue(cfg RetryConfig) (*RetryQueue, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)}
	rq := NewRetryQueue(cfg)
	rq.now = clock.now
	return rq, clock
}

// ─── Retry Queue Tests ──────────────────────────────────────────────────────

func TestRetryQueue_ScheduleAndDrain(t *testing.T) {
	rq, clock := newTestQueue(RetryConfig{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: time.Minute})

	if !rq.ScheduleRetry(RetryEntry{UserID: 1, Error: "badge store down"}) {
		t.Fatal("expected ScheduleRetry to succeed for first retry")
	}
	if rq.Len() != 1 {
		t.Fatalf("expected 1 pending retry, got %d", rq.Len())
	}

	if ready := rq.DrainReady(); len(ready) != 0 {
		t.Fatalf("expected nothing ready before backoff, got %d", len(ready))
	}

	clock.advance(time.Second)
	ready := rq.DrainReady()
	if len(ready) != 1 {
		t.Fatalf("expected 1 ready retry, got %d", len(ready))
	}
	if ready[0].UserID != 1 || ready[0].Attempt != 1 {
		t.Errorf("entry = %+v, want user 1 attempt 1", ready[0])
	}
	if rq.Len() != 0 {
		t.Errorf("queue should be empty after drain, got %d", rq.Len())
	}
}

func TestRetryQueue_MaxRetriesExhausted(t *testing.T) {
	rq, _ := newTestQueue(RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond})

	entry := RetryEntry{UserID: 1, Attempt: 2}
	if rq.ScheduleRetry(entry) {
		t.Error("expected ScheduleRetry to fail past MaxRetries")
	}
	stats := rq.RetryStats()
	if stats.TotalExhausted != 1 || stats.PendingRetries != 0 {
		t.Errorf("stats = %+v, want 1 exhausted, 0 pending", stats)
	}
}

func TestRetryQueue_ExponentialBackoff(t *testing.T) {
	rq, clock := newTestQueue(RetryConfig{MaxRetries: 10, BaseDelay: time.Second, MaxDelay: 5 * time.Second})
	start := clock.t

	rq.ScheduleRetry(RetryEntry{UserID: 1, Attempt: 2}) // third attempt: 4s
	entry := rq.heap[0].entry
	if got := entry.NextRetry.Sub(start); got != 4*time.Second {
		t.Errorf("delay = %v, want 4s", got)
	}

	rq.ScheduleRetry(RetryEntry{UserID: 2, Attempt: 6}) // capped
	for _, it := range rq.heap {
		if it.entry.UserID == 2 && it.entry.NextRetry.Sub(start) != 5*time.Second {
			t.Errorf("capped delay = %v, want 5s", it.entry.NextRetry.Sub(start))
		}
	}
}

func TestRetryQueue_OneEntryPerUser(t *testing.T) {
	rq, _ := newTestQueue(DefaultRetryConfig())

	rq.ScheduleRetry(RetryEntry{UserID: 1, PendingAwards: []domain.BadgeAward{{BadgeID: "a"}}})
	rq.ScheduleRetry(RetryEntry{UserID: 1, PendingAwards: []domain.BadgeAward{{BadgeID: "a"}, {BadgeID: "b"}}})

	if rq.Len() != 1 {
		t.Fatalf("Len = %d, want 1", rq.Len())
	}
	if got := rq.byUser[1].entry.PendingAwards; len(got) != 2 {
		t.Errorf("merged awards = %+v, want a and b", got)
	}
}

func TestRetryQueue_EarliestFirst(t *testing.T) {
	rq, clock := newTestQueue(RetryConfig{MaxRetries: 10, BaseDelay: time.Second, MaxDelay: time.Hour})

	rq.ScheduleRetry(RetryEntry{UserID: 1, Attempt: 3}) // 8s
	rq.ScheduleRetry(RetryEntry{UserID: 2})             // 1s
	rq.ScheduleRetry(RetryEntry{UserID: 3, Attempt: 1}) // 2s

	clock.advance(time.Minute)
	ready := rq.DrainReady()
	if len(ready) != 3 {
		t.Fatalf("ready = %d, want 3", len(ready))
	}
	order := []int64{ready[0].UserID, ready[1].UserID, ready[2].UserID}
	if order[0] != 2 || order[1] != 3 || order[2] != 1 {
		t.Errorf("order = %v, want [2 3 1]", order)
	}
}
