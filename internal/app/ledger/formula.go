package ledger

// ─── Completion Reward Formula ──────────────────────────────────────────────
// experience = floor(score*1.2) + floor(min(minutes,120)*0.3) + score bonus + time bonus
// coins      = experience / 5, at least 1

const (
	// MaxRewardedMinutes caps the minutes that count toward experience.
	MaxRewardedMinutes = 120
	// TimeBonusMinutes is the session length that earns the time bonus.
	TimeBonusMinutes = 15
	timeBonus        = 5
)

// Reward is the experience and coins one completion earns.
type Reward struct {
	Experience int64 `json:"experience"`
	Coins      int64 `json:"coins"`
}

// RewardFor computes the reward for a validated completion.
// Integer arithmetic keeps the floors exact.
func RewardFor(score, timeSpent int) Reward {
	minutes := timeSpent
	if minutes > MaxRewardedMinutes {
		minutes = MaxRewardedMinutes
	}

	xp := int64(score*12/10) + int64(minutes*3/10) + scoreBonus(score)
	if timeSpent >= TimeBonusMinutes {
		xp += timeBonus
	}

	coins := xp / 5
	if coins < 1 {
		coins = 1
	}
	return Reward{Experience: xp, Coins: coins}
}

func scoreBonus(score int) int64 {
	switch {
	case score == 100:
		return 25
	case score >= 90:
		return 15
	case score >= 80:
		return 10
	}
	return 0
}
