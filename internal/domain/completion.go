package domain

import (
	"strings"
	"time"
)

// MaxActivityRefLen bounds the free-form activity reference.
const MaxActivityRefLen = 255

// MaxTimeSpentMinutes bounds a single completion's reported study time.
const MaxTimeSpentMinutes = 24 * 60

// CompletionRequest is one learning-completion event.
type CompletionRequest struct {
	UserID      int64  `json:"user_id"`
	ActivityRef string `json:"activity_ref"`
	TimeSpent   int    `json:"time_spent"` // minutes
	Score       int    `json:"score"`      // 0–100
}

// Validate rejects malformed requests before any state is touched.
func (r CompletionRequest) Validate() error {
	switch {
	case r.UserID <= 0:
		return &ValidationError{Field: "user_id", Reason: "must be a positive integer"}
	case strings.TrimSpace(r.ActivityRef) == "":
		return &ValidationError{Field: "activity_ref", Reason: "must not be empty"}
	case len(r.ActivityRef) > MaxActivityRefLen:
		return &ValidationError{Field: "activity_ref", Reason: "too long"}
	case r.TimeSpent < 0:
		return &ValidationError{Field: "time_spent", Reason: "must be >= 0"}
	case r.TimeSpent > MaxTimeSpentMinutes:
		return &ValidationError{Field: "time_spent", Reason: "must be at most one day of minutes"}
	case r.Score < 0 || r.Score > 100:
		return &ValidationError{Field: "score", Reason: "must be within [0,100]"}
	}
	return nil
}

// CompletionResult is the consolidated outcome returned to the caller.
type CompletionResult struct {
	UserID            int64            `json:"user_id"`
	ActivityRef       string           `json:"activity_ref"`
	ExperienceAwarded int64            `json:"experience_awarded"`
	CoinsAwarded      int64            `json:"coins_awarded"`
	NewLevel          *int             `json:"new_level,omitempty"`
	Level             LevelInfo        `json:"level"`
	LevelUp           *LevelUpEvent    `json:"level_up,omitempty"`
	StreakUpdated     bool             `json:"streak_updated"`
	Streak            Streak           `json:"streak"`
	GoalsCompleted    []GoalCompletion `json:"goals_completed"`
	NewBadges         []BadgeAward     `json:"new_badges"`
}

// CompletionRecord is the audit row written for every processed completion.
type CompletionRecord struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	ActivityRef string    `json:"activity_ref"`
	TimeSpent   int       `json:"time_spent"`
	Score       int       `json:"score"`
	Experience  int64     `json:"experience"`
	Coins       int64     `json:"coins"`
	CreatedAt   time.Time `json:"created_at"`
}
