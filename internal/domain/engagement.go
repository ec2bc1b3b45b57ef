// Package domain holds the pure types of the LearnQuest reward engine.
// Levels, wallets, streaks, goals, badges and notifications are defined
// here with no infrastructure dependency.
package domain

import "time"

// ─── Users & Levels ─────────────────────────────────────────────────────────

// User is the engine-owned slice of a learner profile.
// TotalExperience never decreases.
type User struct {
	ID              int64     `json:"id"`
	TotalExperience int64     `json:"total_experience"`
	Level           int       `json:"level"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// LevelInfo describes where a given experience total sits in the level table.
type LevelInfo struct {
	Level                     int     `json:"level"`
	Name                      string  `json:"name"`
	Icon                      string  `json:"icon"`
	TotalExperience           int64   `json:"total_experience"`
	ProgressToNext            float64 `json:"progress_to_next"` // 0–100
	ExperienceRequiredForNext int64   `json:"experience_required_for_next"`
}

// ─── Wallet & Transactions ──────────────────────────────────────────────────

// Currency identifies what a transaction moves.
type Currency string

const (
	CurrencyCoins Currency = "coins"
	CurrencyGems  Currency = "gems"
)

// TxKind is the direction of a wallet transaction.
type TxKind string

const (
	TxEarned TxKind = "earned"
	TxSpent  TxKind = "spent"
)

// RewardSource categorizes why experience or currency was granted.
type RewardSource string

const (
	SourceCompletion RewardSource = "completion"
	SourceLevelUp    RewardSource = "level_up"
	SourceGoal       RewardSource = "goal"
	SourceBadge      RewardSource = "badge"
	SourceManual     RewardSource = "manual"
)

// Transaction is an immutable wallet log entry. Amount is always positive;
// Kind carries the sign.
type Transaction struct {
	ID        string       `json:"id"`
	UserID    int64        `json:"user_id"`
	Kind      TxKind       `json:"kind"`
	Currency  Currency     `json:"currency"`
	Amount    int64        `json:"amount"`
	Reason    string       `json:"reason"`
	Source    RewardSource `json:"source"`
	Timestamp time.Time    `json:"timestamp"`
}

// Wallet is the materialized projection of a user's transaction log.
type Wallet struct {
	UserID      int64     `json:"user_id"`
	Coins       int64     `json:"coins"`
	Gems        int64     `json:"gems"`
	TotalEarned int64     `json:"total_earned"`
	TotalSpent  int64     `json:"total_spent"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ExperienceAwarded is the first stage of the reward pipeline.
type ExperienceAwarded struct {
	UserID        int64         `json:"user_id"`
	Amount        int64         `json:"amount"`
	Source        RewardSource  `json:"source"`
	PreviousTotal int64         `json:"previous_total"`
	NewTotal      int64         `json:"new_total"`
	PreviousLevel int           `json:"previous_level"`
	NewLevel      int           `json:"new_level"`
	LevelUp       *LevelUpEvent `json:"level_up,omitempty"`
}

// LevelUpEvent is emitted when experience crosses one or more level
// breakpoints. Its only reward is coins.
type LevelUpEvent struct {
	UserID        int64 `json:"user_id"`
	PreviousLevel int   `json:"previous_level"`
	NewLevel      int   `json:"new_level"`
	Coins         int64 `json:"coins"`
}

// ─── Streaks ────────────────────────────────────────────────────────────────

// StreakType distinguishes independent streak counters for one user.
type StreakType string

const (
	StreakLearning     StreakType = "learning"
	StreakPerfectScore StreakType = "perfect_score"
)

// Streak tracks consecutive calendar days of activity.
type Streak struct {
	UserID           int64      `json:"user_id"`
	Type             StreakType `json:"streak_type"`
	CurrentStreak    int        `json:"current_streak"`
	LongestStreak    int        `json:"longest_streak"`
	LastActivityDate time.Time  `json:"last_activity_date"`
	FreezesAvailable int        `json:"freezes_available"`
	FreezesUsed      int        `json:"freezes_used"`
	FreezesGranted   int        `json:"freezes_granted"`
}

// StreakTransition names what a recorded activity did to a streak.
type StreakTransition string

const (
	StreakStarted   StreakTransition = "started"
	StreakExtended  StreakTransition = "extended"
	StreakFrozen    StreakTransition = "freeze_used"
	StreakReset     StreakTransition = "reset"
	StreakUnchanged StreakTransition = "unchanged"
)

// StreakUpdate is the result of recording one activity.
type StreakUpdate struct {
	Streak        Streak           `json:"streak"`
	Transition    StreakTransition `json:"transition"`
	Milestone     bool             `json:"milestone"`
	FreezeGranted bool             `json:"freeze_granted"`
}

// Changed reports whether the activity moved the streak state.
func (u StreakUpdate) Changed() bool {
	return u.Transition != StreakUnchanged
}

// ─── Goals ──────────────────────────────────────────────────────────────────

// GoalPeriod is the window a goal accumulates over.
type GoalPeriod string

const (
	PeriodDaily   GoalPeriod = "daily"
	PeriodWeekly  GoalPeriod = "weekly"
	PeriodMonthly GoalPeriod = "monthly"
)

// AllPeriods lists goal periods in the order they are applied.
var AllPeriods = []GoalPeriod{PeriodDaily, PeriodWeekly, PeriodMonthly}

// Valid reports whether p is a known period.
func (p GoalPeriod) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	}
	return false
}

// GoalCategory is the quantity a goal counts.
type GoalCategory string

const (
	GoalLessons       GoalCategory = "lessons"
	GoalMinutes       GoalCategory = "minutes"
	GoalExperience    GoalCategory = "experience"
	GoalPerfectScores GoalCategory = "perfect_scores"
)

// GoalTemplate defines a goal created for every user at the start of a period.
type GoalTemplate struct {
	Period      GoalPeriod   `json:"period"`
	Category    GoalCategory `json:"category"`
	Title       string       `json:"title"`
	Target      int64        `json:"target"`
	RewardXP    int64        `json:"reward_xp"`
	RewardCoins int64        `json:"reward_coins"`
}

// Goal is a per-user, per-period progress accumulator.
// Immutable once IsCompleted is set.
type Goal struct {
	ID              int64        `json:"id"`
	UserID          int64        `json:"user_id"`
	Period          GoalPeriod   `json:"period"`
	Category        GoalCategory `json:"category"`
	Title           string       `json:"title"`
	TargetValue     int64        `json:"target_value"`
	CurrentProgress int64        `json:"current_progress"`
	IsCompleted     bool         `json:"is_completed"`
	PeriodDate      string       `json:"period_date"` // YYYY-MM-DD
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	RewardXP        int64        `json:"reward_xp"`
	RewardCoins     int64        `json:"reward_coins"`
}

// ProgressPct returns completion percentage (0-100).
func (g Goal) ProgressPct() float64 {
	if g.TargetValue <= 0 {
		return 100.0
	}
	pct := float64(g.CurrentProgress) / float64(g.TargetValue) * 100.0
	if pct > 100.0 {
		pct = 100.0
	}
	return pct
}

// GoalCompletion is returned by the goal tracker when a goal transitions to
// completed. The orchestrator applies the rewards.
type GoalCompletion struct {
	GoalID      int64        `json:"goal_id"`
	Period      GoalPeriod   `json:"period"`
	Category    GoalCategory `json:"category"`
	Title       string       `json:"title"`
	Target      int64        `json:"target"`
	RewardXP    int64        `json:"reward_xp"`
	RewardCoins int64        `json:"reward_coins"`
}

// ─── Badges ─────────────────────────────────────────────────────────────────

// Rarity grades a badge.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// GemReward returns the gems granted alongside a badge of this rarity.
func (r Rarity) GemReward() int64 {
	switch r {
	case RarityEpic:
		return 1
	case RarityLegendary:
		return 3
	}
	return 0
}

// Badge is a catalog entry. Every condition must hold (AND semantics).
type Badge struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Icon        string            `json:"icon"`
	Conditions  map[StatKey]int64 `json:"conditions"`
	XPReward    int64             `json:"xp_reward"`
	CoinsReward int64             `json:"coins_reward"`
	Rarity      Rarity            `json:"rarity"`
}

// UserBadge records that a user earned a badge. Created once, never modified.
type UserBadge struct {
	UserID   int64     `json:"user_id"`
	BadgeID  string    `json:"badge_id"`
	EarnedAt time.Time `json:"earned_at"`
}

// BadgeAward is a newly granted badge with the rewards to apply.
type BadgeAward struct {
	BadgeID     string `json:"badge_id"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Rarity      Rarity `json:"rarity"`
	XPReward    int64  `json:"xp_reward"`
	CoinsReward int64  `json:"coins_reward"`
	GemsReward  int64  `json:"gems_reward"`
}

// ─── Notifications ──────────────────────────────────────────────────────────

// NotificationType categorizes notifications.
type NotificationType string

const (
	NotifyLevelUp         NotificationType = "level_up"
	NotifyStreakMilestone NotificationType = "streak_milestone"
	NotifyGoalCompleted   NotificationType = "goal_completed"
	NotifyBadgeEarned     NotificationType = "badge_earned"
)

// Notification is a user-facing message produced by the engine.
type Notification struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Icon      string           `json:"icon"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}

// NotificationPolicy limits how many notifications a user receives.
type NotificationPolicy struct {
	MaxPerDay int `json:"max_per_day"`
}

// DefaultNotificationPolicy returns the default policy.
func DefaultNotificationPolicy() NotificationPolicy {
	return NotificationPolicy{MaxPerDay: 20}
}
