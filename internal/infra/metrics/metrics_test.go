package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestCompletionMetrics(t *testing.T) {
	CompletionsProcessed.WithLabelValues("ok").Inc()
	CompletionLatency.Observe(0.02)
	LockWait.Observe(0.001)
	LockTimeouts.Inc()

	names := gatheredNames(t)
	expected := []string{
		"learnquest_completions_total",
		"learnquest_completion_latency_seconds",
		"learnquest_user_lock_wait_seconds",
		"learnquest_user_lock_timeouts_total",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("%s not found in gathered metrics", name)
		}
	}
}

func TestRewardMetrics(t *testing.T) {
	ExperienceAwarded.WithLabelValues("completion").Add(123)
	CoinsAwarded.WithLabelValues("completion").Add(24)
	LevelUps.Inc()
	GoalsCompleted.WithLabelValues("daily").Inc()
	BadgesAwarded.WithLabelValues("epic").Inc()
	StreakTransitions.WithLabelValues("learning", "extended").Inc()

	names := gatheredNames(t)
	expected := []string{
		"learnquest_experience_awarded_total",
		"learnquest_coins_awarded_total",
		"learnquest_level_ups_total",
		"learnquest_goals_completed_total",
		"learnquest_badges_awarded_total",
		"learnquest_streak_transitions_total",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("%s not found in gathered metrics", name)
		}
	}
}

func TestFollowUpAndHealthMetrics(t *testing.T) {
	FollowUpFailures.WithLabelValues("badges").Inc()
	FollowUpRetriesPending.Set(2)
	NotificationsEmitted.WithLabelValues("level_up", "sent").Inc()
	HealthCheckStatus.WithLabelValues("sqlite").Set(1)
	HealthRecoveries.WithLabelValues("sqlite").Inc()

	names := gatheredNames(t)
	expected := []string{
		"learnquest_followup_failures_total",
		"learnquest_followup_retries_pending",
		"learnquest_notifications_total",
		"learnquest_health_check_status",
		"learnquest_health_recoveries_total",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("%s not found in gathered metrics", name)
		}
	}
}
