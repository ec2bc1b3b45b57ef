// Package metrics provides Prometheus metrics for LearnQuest.
// Counters, gauges and histograms for completions, rewards, locking,
// follow-up work and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Completions ────────────────────────────────────────────────────────────

// CompletionsProcessed counts completion events by outcome
// (ok, invalid, lock_timeout, conflict, error).
var CompletionsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "learnquest",
	Name:      "completions_total",
	Help:      "Completion events processed, by outcome.",
}, []string{"outcome"})

// CompletionLatency tracks end-to-end ProcessCompletion duration.
var CompletionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "learnquest",
	Name:      "completion_latency_seconds",
	Help:      "Duration of completion processing in seconds.",
	Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
})

// ─── Locking ────────────────────────────────────────────────────────────────

// LockWait tracks time spent waiting for a user's critical section.
var LockWait = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "learnquest",
	Name:      "user_lock_wait_seconds",
	Help:      "Time spent waiting for the per-user lock.",
	Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3},
})

// LockTimeouts counts lock acquisitions that gave up.
var LockTimeouts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "learnquest",
	Name:      "user_lock_timeouts_total",
	Help:      "Per-user lock acquisitions that timed out.",
})

// ─── Rewards ────────────────────────────────────────────────────────────────

// ExperienceAwarded counts experience granted, by source.
var ExperienceAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "learnquest",
	Name:      "experience_awarded_total",
	Help:      "Experience points awarded, by source.",
}, []string{"source"})

// CoinsAwarded counts coins granted, by source.
var CoinsAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "learnquest",
	Name:      "coins_awarded_total",
	Help:      "Coins awarded, by source.",
}, []string{"source"})

// LevelUps counts level-up events.
var LevelUps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "learnquest",
	Name:      "level_ups_total",
	Help:      "Level-up events emitted.",
})

// GoalsCompleted counts goal completions, by period.
var GoalsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "learnquest",
	Name:      "goals_completed_total",
	Help:      "Goals completed, by period.",
}, []string{"period"})

// BadgesAwarded counts badge awards, by rarity.
var BadgesAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "learnquest",
	Name:      "badges_awarded_total",
	Help:      "Badges awarded, by rarity.",
}, []string{"rarity"})

// StreakTransitions counts streak state changes, by type and transition.
var StreakTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "learnquest",
	Name:      "streak_transitions_total",
	Help:      "Streak transitions, by streak type and transition.",
}, []string{"streak_type", "transition"})

// ─── Follow-up ──────────────────────────────────────────────────────────────

// FollowUpFailures counts best-effort failures after commit, by stage
// (stats, badges, badge_rewards, notify).
var FollowUpFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "learnquest",
	Name:      "followup_failures_total",
	Help:      "Best-effort follow-up failures, by stage.",
}, []string{"stage"})

// FollowUpRetriesPending tracks users waiting in the retry queue.
var FollowUpRetriesPending = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "learnquest",
	Name:      "followup_retries_pending",
	Help:      "Users with follow-up work waiting for retry.",
})

// NotificationsEmitted counts notifications, by type and result (sent, capped, error).
var NotificationsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "learnquest",
	Name:      "notifications_total",
	Help:      "Notifications emitted, by type and result.",
}, []string{"type", "result"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "learnquest",
	Name:      "health_check_status",
	Help:      "Health check status (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries counts auto-recovery actions.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "learnquest",
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery actions.",
}, []string{"check"})
