// Package scheduler holds the follow-up retry queue.
// Badge evaluation and reward application run after a completion commits;
// when that follow-up fails, the user is queued here and retried later with
// exponential backoff. A min-heap ordered by next retry time gives
// O(log n) insertion and extraction.
package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/learnquest/learnquest/internal/domain"
)

// RetryConfig configures the retry queue behavior.
type RetryConfig struct {
	MaxRetries int           // Maximum retry attempts before the entry is dropped
	BaseDelay  time.Duration // Initial backoff delay (doubles each retry)
	MaxDelay   time.Duration // Cap on backoff delay
}

// DefaultRetryConfig returns production retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		BaseDelay:  5 * time.Second,
		MaxDelay:   5 * time.Minute,
	}
}

// RetryEntry tracks one user's pending follow-up work.
type RetryEntry struct {
	UserID int64
	// PendingAwards were granted but their rewards were not applied yet.
	PendingAwards []domain.BadgeAward
	Attempt       int       // Retries scheduled so far
	NextRetry     time.Time // Earliest time this can be retried
	FailedAt      time.Time // When the last failure occurred
	Error         string    // Last failure reason
}

// RetryQueue schedules follow-up retries. There is at most one entry per
// user; scheduling a user already queued merges the pending awards.
type RetryQueue struct {
	mu     sync.Mutex
	config RetryConfig
	heap   retryHeap
	byUser map[int64]*retryItem
	now    func() time.Time

	// Stats
	totalRetries   int64
	totalExhausted int64 // Entries that exceeded MaxRetries
}

// NewRetryQueue creates an empty retry queue.
func NewRetryQueue(cfg RetryConfig) *RetryQueue {
	return &RetryQueue{
		config: cfg,
		byUser: make(map[int64]*retryItem),
		now:    time.Now,
	}
}

// ScheduleRetry queues entry with exponential backoff.
// Returns false if the entry has exceeded MaxRetries and was dropped.
func (rq *RetryQueue) ScheduleRetry(entry RetryEntry) bool {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if existing, ok := rq.byUser[entry.UserID]; ok {
		existing.entry.PendingAwards = mergeAwards(existing.entry.PendingAwards, entry.PendingAwards)
		if entry.Error != "" {
			existing.entry.Error = entry.Error
		}
		return true
	}

	entry.Attempt++
	if entry.Attempt > rq.config.MaxRetries {
		rq.totalExhausted++
		return false
	}

	// Exponential backoff: baseDelay * 2^(attempt-1)
	delay := rq.config.BaseDelay
	for i := 1; i < entry.Attempt; i++ {
		delay *= 2
		if delay > rq.config.MaxDelay {
			delay = rq.config.MaxDelay
			break
		}
	}

	now := rq.now()
	entry.FailedAt = now
	entry.NextRetry = now.Add(delay)

	item := &retryItem{entry: entry}
	heap.Push(&rq.heap, item)
	rq.byUser[entry.UserID] = item
	rq.totalRetries++
	return true
}

// NextReady returns the next entry whose NextRetry time has passed.
func (rq *RetryQueue) NextReady() (*RetryEntry, bool) {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if rq.heap.Len() == 0 {
		return nil, false
	}
	if rq.now().Before(rq.heap[0].entry.NextRetry) {
		return nil, false
	}
	item := heap.Pop(&rq.heap).(*retryItem)
	delete(rq.byUser, item.entry.UserID)
	return &item.entry, true
}

// DrainReady pops every ready entry, earliest first.
func (rq *RetryQueue) DrainReady() []RetryEntry {
	var ready []RetryEntry
	for {
		entry, ok := rq.NextReady()
		if !ok {
			break
		}
		ready = append(ready, *entry)
	}
	return ready
}

// Len returns the number of users pending retry.
func (rq *RetryQueue) Len() int {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.heap.Len()
}

// RetryStats holds retry queue statistics.
type RetryStats struct {
	PendingRetries int   `json:"pending_retries"`
	TotalRetries   int64 `json:"total_retries"`
	TotalExhausted int64 `json:"total_exhausted"` // Exceeded MaxRetries
}

// RetryStats returns current retry queue statistics.
func (rq *RetryQueue) RetryStats() RetryStats {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return RetryStats{
		PendingRetries: rq.heap.Len(),
		TotalRetries:   rq.totalRetries,
		TotalExhausted: rq.totalExhausted,
	}
}

func mergeAwards(have, add []domain.BadgeAward) []domain.BadgeAward {
	seen := make(map[string]bool, len(have))
	for _, a := range have {
		seen[a.BadgeID] = true
	}
	for _, a := range add {
		if !seen[a.BadgeID] {
			have = append(have, a)
			seen[a.BadgeID] = true
		}
	}
	return have
}

// ─── Heap ───────────────────────────────────────────────────────────────────

type retryItem struct {
	entry RetryEntry
	index int
}

// retryHeap implements heap.Interface ordered by NextRetry.
type retryHeap []*retryItem

func (h retryHeap) Len() int { return len(h) }

func (h retryHeap) Less(i, j int) bool {
	return h[i].entry.NextRetry.Before(h[j].entry.NextRetry)
}

func (h retryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *retryHeap) Push(x any) {
	item := x.(*retryItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}
