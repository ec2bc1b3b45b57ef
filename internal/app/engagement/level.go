package engagement

import (
	"fmt"

	"github.com/learnquest/learnquest/internal/domain"
)

// LevelDef is one row of a level table. Level numbers are implied by
// position: the first entry is level 1.
type LevelDef struct {
	Name          string `json:"name" toml:"name"`
	Icon          string `json:"icon" toml:"icon"`
	MinExperience int64  `json:"min_experience" toml:"min_experience"`
}

// LevelTable is an ordered list of experience breakpoints.
type LevelTable []LevelDef

// DefaultLevelTable returns the 20-level progression.
func DefaultLevelTable() LevelTable {
	return LevelTable{
		{Name: "Newcomer", Icon: "🌱", MinExperience: 0},
		{Name: "Curious Mind", Icon: "🔍", MinExperience: 100},
		{Name: "Apprentice", Icon: "📘", MinExperience: 250},
		{Name: "Student", Icon: "✏️", MinExperience: 450},
		{Name: "Explorer", Icon: "🧭", MinExperience: 700},
		{Name: "Practitioner", Icon: "🛠️", MinExperience: 1000},
		{Name: "Achiever", Icon: "🎯", MinExperience: 1400},
		{Name: "Scholar", Icon: "🎓", MinExperience: 1900},
		{Name: "Specialist", Icon: "🔬", MinExperience: 2500},
		{Name: "Adept", Icon: "⚡", MinExperience: 3200},
		{Name: "Expert", Icon: "🏅", MinExperience: 4000},
		{Name: "Mentor", Icon: "🤝", MinExperience: 5000},
		{Name: "Master", Icon: "🥋", MinExperience: 6200},
		{Name: "Sage", Icon: "🦉", MinExperience: 7600},
		{Name: "Virtuoso", Icon: "🎻", MinExperience: 9200},
		{Name: "Luminary", Icon: "💡", MinExperience: 11000},
		{Name: "Champion", Icon: "🏆", MinExperience: 13000},
		{Name: "Grandmaster", Icon: "👑", MinExperience: 15500},
		{Name: "Legend", Icon: "🌟", MinExperience: 18500},
		{Name: "Polymath", Icon: "🧠", MinExperience: 22000},
	}
}

// Validate checks that the table is non-empty, starts at 0 and strictly increases.
func (t LevelTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("empty table: %w", domain.ErrInvalidLevelTable)
	}
	if t[0].MinExperience != 0 {
		return fmt.Errorf("level 1 starts at %d: %w", t[0].MinExperience, domain.ErrInvalidLevelTable)
	}
	for i := 1; i < len(t); i++ {
		if t[i].MinExperience <= t[i-1].MinExperience {
			return fmt.Errorf("level %d (%d xp) does not exceed level %d (%d xp): %w",
				i+1, t[i].MinExperience, i, t[i-1].MinExperience, domain.ErrInvalidLevelTable)
		}
	}
	return nil
}

// LevelProgression maps experience totals to levels. It is pure and safe
// for concurrent use; the table is copied on construction.
type LevelProgression struct {
	table LevelTable
}

// NewLevelProgression creates a progression over a validated table.
func NewLevelProgression(table LevelTable) (*LevelProgression, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	cp := make(LevelTable, len(table))
	copy(cp, table)
	return &LevelProgression{table: cp}, nil
}

// MaxLevel returns the capped maximum level.
func (p *LevelProgression) MaxLevel() int {
	return len(p.table)
}

// Table returns a copy of the level table (for display).
func (p *LevelProgression) Table() LevelTable {
	cp := make(LevelTable, len(p.table))
	copy(cp, p.table)
	return cp
}

// LevelFor returns just the level number for an experience total.
// Binary search over the breakpoints; monotonic in xp.
func (p *LevelProgression) LevelFor(xp int64) int {
	lo, hi := 0, len(p.table)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if p.table[mid].MinExperience <= xp {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1
}

// For describes where totalExperience sits in the table.
func (p *LevelProgression) For(totalExperience int64) (domain.LevelInfo, error) {
	if totalExperience < 0 {
		return domain.LevelInfo{}, fmt.Errorf("experience %d: %w", totalExperience, domain.ErrInvalidArgument)
	}

	level := p.LevelFor(totalExperience)
	cur := p.table[level-1]
	info := domain.LevelInfo{
		Level:           level,
		Name:            cur.Name,
		Icon:            cur.Icon,
		TotalExperience: totalExperience,
	}

	if level >= len(p.table) {
		info.ProgressToNext = 100.0
		return info, nil
	}

	next := p.table[level]
	span := next.MinExperience - cur.MinExperience
	info.ExperienceRequiredForNext = next.MinExperience - totalExperience
	info.ProgressToNext = float64(totalExperience-cur.MinExperience) / float64(span) * 100.0
	return info, nil
}

// LevelUpCoins returns the coin reward for reaching a level.
func LevelUpCoins(level int) int64 {
	return int64(10 * level)
}

// LevelUpCoinsBetween sums LevelUpCoins for every level above from up to
// and including to. Returns 0 when to <= from.
func LevelUpCoinsBetween(from, to int) int64 {
	var total int64
	for l := from + 1; l <= to; l++ {
		total += LevelUpCoins(l)
	}
	return total
}
