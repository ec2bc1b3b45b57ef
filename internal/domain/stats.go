package domain

// StatKey names one aggregated learner statistic. Only the keys declared
// below are known to the badge engine; anything else fails a condition.
type StatKey string

const (
	StatLessonsCompleted   StatKey = "lessons_completed"
	StatDistinctActivities StatKey = "distinct_activities"
	StatPerfectScores      StatKey = "perfect_scores"
	StatStudyMinutes       StatKey = "study_minutes"
	StatTotalExperience    StatKey = "total_experience"
	StatLevel              StatKey = "level"
	StatCurrentStreak      StatKey = "current_streak"
	StatLongestStreak      StatKey = "longest_streak"
	StatCoinsEarned        StatKey = "coins_earned"
	StatGoalsCompleted     StatKey = "goals_completed"
	StatBadgesEarned       StatKey = "badges_earned"
)

// KnownStatKeys lists every statistic the snapshot provider computes.
var KnownStatKeys = []StatKey{
	StatLessonsCompleted,
	StatDistinctActivities,
	StatPerfectScores,
	StatStudyMinutes,
	StatTotalExperience,
	StatLevel,
	StatCurrentStreak,
	StatLongestStreak,
	StatCoinsEarned,
	StatGoalsCompleted,
	StatBadgesEarned,
}

// Known reports whether k is one of KnownStatKeys.
func (k StatKey) Known() bool {
	for _, known := range KnownStatKeys {
		if k == known {
			return true
		}
	}
	return false
}

// StatsSnapshot is a flat map of a user's aggregated statistics.
type StatsSnapshot map[StatKey]int64

// Get returns the value for k and whether it is present.
func (s StatsSnapshot) Get(k StatKey) (int64, bool) {
	v, ok := s[k]
	return v, ok
}
