package sqlite

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/learnquest/learnquest/internal/domain"
)

// ─── Streaks ────────────────────────────────────────────────────────────────

func TestStreak_SaveAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	got, err := db.GetStreak(ctx, 1, domain.StreakLearning)
	if err != nil || got != nil {
		t.Fatalf("GetStreak() on empty = %v, %v; want nil, nil", got, err)
	}

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	st := domain.Streak{
		UserID: 1, Type: domain.StreakLearning,
		CurrentStreak: 6, LongestStreak: 9, LastActivityDate: day,
		FreezesAvailable: 1, FreezesUsed: 1, FreezesGranted: 2,
	}
	if err := db.SaveStreak(ctx, st, time.Now()); err != nil {
		t.Fatalf("SaveStreak() error: %v", err)
	}

	st.CurrentStreak = 7
	if err := db.SaveStreak(ctx, st, time.Now()); err != nil {
		t.Fatalf("SaveStreak() update error: %v", err)
	}

	got, err = db.GetStreak(ctx, 1, domain.StreakLearning)
	if err != nil {
		t.Fatalf("GetStreak() error: %v", err)
	}
	if got.CurrentStreak != 7 || got.LongestStreak != 9 {
		t.Errorf("streak = %d/%d, want 7/9", got.CurrentStreak, got.LongestStreak)
	}
	if !got.LastActivityDate.Equal(day) {
		t.Errorf("LastActivityDate = %v, want %v", got.LastActivityDate, day)
	}
	if got.FreezesGranted != 2 {
		t.Errorf("FreezesGranted = %d, want 2", got.FreezesGranted)
	}
}

func TestStreak_CheckConstraints(t *testing.T) {
	db := newTestDB(t)
	err := db.SaveStreak(context.Background(), domain.Streak{
		UserID: 1, Type: domain.StreakLearning,
		CurrentStreak: 5, LongestStreak: 3, LastActivityDate: time.Now(),
	}, time.Now())
	if err == nil {
		t.Error("longest < current should violate CHECK")
	}
}

func TestListStreaks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for _, typ := range []domain.StreakType{domain.StreakPerfectScore, domain.StreakLearning} {
		db.SaveStreak(ctx, domain.Streak{UserID: 1, Type: typ, CurrentStreak: 1, LongestStreak: 1, LastActivityDate: time.Now()}, time.Now())
	}
	streaks, err := db.ListStreaks(ctx, 1)
	if err != nil {
		t.Fatalf("ListStreaks() error: %v", err)
	}
	if len(streaks) != 2 || streaks[0].Type != domain.StreakLearning {
		t.Errorf("ListStreaks() = %+v, want learning first", streaks)
	}
}

// ─── Goals ──────────────────────────────────────────────────────────────────

var testTemplates = []domain.GoalTemplate{
	{Period: domain.PeriodDaily, Category: domain.GoalLessons, Title: "Complete 2 lessons", Target: 2, RewardXP: 20, RewardCoins: 5},
	{Period: domain.PeriodDaily, Category: domain.GoalMinutes, Title: "Study 15 minutes", Target: 15, RewardXP: 15, RewardCoins: 5},
}

func TestEnsureGoals_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := db.EnsureGoals(ctx, 1, "2026-03-14", testTemplates, time.Now()); err != nil {
			t.Fatalf("EnsureGoals() error: %v", err)
		}
	}
	goals, err := db.ListGoals(ctx, 1, domain.PeriodDaily, "2026-03-14")
	if err != nil {
		t.Fatalf("ListGoals() error: %v", err)
	}
	if len(goals) != 2 {
		t.Errorf("len = %d, want 2 (no duplicates)", len(goals))
	}

	// A new period date gets fresh goals.
	db.EnsureGoals(ctx, 1, "2026-03-15", testTemplates, time.Now())
	next, _ := db.ListGoals(ctx, 1, domain.PeriodDaily, "2026-03-15")
	if len(next) != 2 || next[0].CurrentProgress != 0 {
		t.Errorf("next-day goals = %+v, want 2 fresh goals", next)
	}
}

func TestAdvanceGoal_CompletesOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	db.EnsureGoals(ctx, 1, "2026-03-14", testTemplates, time.Now())
	open, _ := db.OpenGoals(ctx, 1, domain.PeriodDaily, "2026-03-14")
	lessons := open[0]

	progress, done, err := db.AdvanceGoal(ctx, lessons.ID, 1, time.Now())
	if err != nil {
		t.Fatalf("AdvanceGoal() error: %v", err)
	}
	if progress != 1 || done {
		t.Errorf("AdvanceGoal() = (%d, %v), want (1, false)", progress, done)
	}

	progress, done, _ = db.AdvanceGoal(ctx, lessons.ID, 5, time.Now())
	if progress != 2 || !done {
		t.Errorf("AdvanceGoal() = (%d, %v), want (2, true) clamped at target", progress, done)
	}

	// Completed goals are immutable.
	progress, done, _ = db.AdvanceGoal(ctx, lessons.ID, 1, time.Now())
	if progress != 0 || done {
		t.Errorf("AdvanceGoal() on completed goal = (%d, %v), want (0, false)", progress, done)
	}

	g, _ := db.GetGoal(ctx, lessons.ID)
	if !g.IsCompleted || g.CompletedAt == nil || g.CurrentProgress != 2 {
		t.Errorf("goal = %+v, want completed at 2", g)
	}

	open, _ = db.OpenGoals(ctx, 1, domain.PeriodDaily, "2026-03-14")
	if len(open) != 1 {
		t.Errorf("open goals = %d, want 1", len(open))
	}
	n, _ := db.CompletedGoalCount(ctx, 1)
	if n != 1 {
		t.Errorf("CompletedGoalCount() = %d, want 1", n)
	}
}

func TestGetGoal_NotFound(t *testing.T) {
	db := newTestDB(t)
	g, err := db.GetGoal(context.Background(), 12345)
	if err != nil || g != nil {
		t.Errorf("GetGoal() = %v, %v; want nil, nil", g, err)
	}
}

// ─── Badges ─────────────────────────────────────────────────────────────────

func TestBadges_CatalogRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	b := domain.Badge{
		ID: "first_steps", Name: "First Steps", Icon: "👣",
		Conditions: map[domain.StatKey]int64{domain.StatLessonsCompleted: 1},
		XPReward: 10, CoinsReward: 5, Rarity: domain.RarityCommon,
	}
	if err := db.UpsertBadge(ctx, b); err != nil {
		t.Fatalf("UpsertBadge() error: %v", err)
	}
	b.Name = "First Steps!"
	db.UpsertBadge(ctx, b)

	badges, err := db.ListBadges(ctx)
	if err != nil {
		t.Fatalf("ListBadges() error: %v", err)
	}
	if len(badges) != 1 {
		t.Fatalf("len = %d, want 1", len(badges))
	}
	if badges[0].Name != "First Steps!" || badges[0].Conditions[domain.StatLessonsCompleted] != 1 {
		t.Errorf("badge = %+v", badges[0])
	}
}

func TestAwardBadge_OnlyOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, err := db.AwardBadge(ctx, 1, "first_steps", time.Now())
	if err != nil || !first {
		t.Fatalf("first AwardBadge() = %v, %v; want true", first, err)
	}
	again, err := db.AwardBadge(ctx, 1, "first_steps", time.Now())
	if err != nil || again {
		t.Errorf("second AwardBadge() = %v, %v; want false", again, err)
	}

	owned, _ := db.OwnedBadgeIDs(ctx, 1)
	if !owned["first_steps"] || len(owned) != 1 {
		t.Errorf("OwnedBadgeIDs() = %v", owned)
	}
	list, _ := db.ListUserBadges(ctx, 1)
	if len(list) != 1 {
		t.Errorf("ListUserBadges() len = %d, want 1", len(list))
	}
}

// ─── Notifications ──────────────────────────────────────────────────────────

func TestNotifications(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	for i, typ := range []domain.NotificationType{domain.NotifyLevelUp, domain.NotifyBadgeEarned} {
		_, err := db.InsertNotification(ctx, domain.Notification{
			UserID: 1, Type: typ, Title: "t", Message: "m",
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("InsertNotification() error: %v", err)
		}
	}

	capped := domain.Notification{UserID: 1, Type: domain.NotifyGoalCompleted, CreatedAt: now}
	if _, ok, err := db.InsertNotificationCapped(ctx, capped, now.Add(-time.Hour), 2); err != nil || ok {
		t.Errorf("InsertNotificationCapped(at cap) = %v, %v; want dropped", ok, err)
	}
	if id, ok, err := db.InsertNotificationCapped(ctx, capped, now.Add(time.Hour), 2); err != nil || !ok || id == 0 {
		t.Errorf("InsertNotificationCapped(new window) = %d, %v, %v; want stored", id, ok, err)
	}
	if _, ok, err := db.InsertNotificationCapped(ctx, capped, now.Add(-time.Hour), 0); err != nil || !ok {
		t.Errorf("InsertNotificationCapped(no cap) = %v, %v; want stored", ok, err)
	}

	list, err := db.ListNotifications(ctx, 1, 10)
	if err != nil {
		t.Fatalf("ListNotifications() error: %v", err)
	}
	if len(list) != 2 || list[0].Type != domain.NotifyBadgeEarned {
		t.Fatalf("ListNotifications() = %+v, want newest first", list)
	}

	ok, _ := db.MarkNotificationRead(ctx, 2, list[0].ID)
	if ok {
		t.Error("another user must not mark the notification read")
	}
	ok, _ = db.MarkNotificationRead(ctx, 1, list[0].ID)
	if !ok {
		t.Error("MarkNotificationRead() should succeed for owner")
	}
}

// ─── Completions & Stats ────────────────────────────────────────────────────

func TestStatsSnapshot_Empty(t *testing.T) {
	db := newTestDB(t)
	stats, err := db.StatsSnapshot(context.Background(), 1)
	if err != nil {
		t.Fatalf("StatsSnapshot() error: %v", err)
	}
	for _, k := range domain.KnownStatKeys {
		if _, ok := stats.Get(k); !ok {
			t.Errorf("snapshot missing %s", k)
		}
	}
	if stats[domain.StatLevel] != 1 {
		t.Errorf("level = %d, want 1", stats[domain.StatLevel])
	}
}

func TestStatsSnapshot_Aggregates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now()
	seedUser(t, db, 1)

	recs := []domain.CompletionRecord{
		{UserID: 1, ActivityRef: "lesson:1", TimeSpent: 10, Score: 100, Experience: 157, Coins: 31, CreatedAt: now},
		{UserID: 1, ActivityRef: "lesson:1", TimeSpent: 20, Score: 85, Experience: 123, Coins: 24, CreatedAt: now},
		{UserID: 1, ActivityRef: "lesson:2", TimeSpent: 5, Score: 40, Experience: 49, Coins: 9, CreatedAt: now},
	}
	for _, r := range recs {
		if _, err := db.InsertCompletion(ctx, r); err != nil {
			t.Fatalf("InsertCompletion() error: %v", err)
		}
	}
	db.AddExperience(ctx, 1, 329, now)
	db.ApplyWalletDelta(ctx, 1, domain.CurrencyCoins, 64, now)
	db.SaveStreak(ctx, domain.Streak{UserID: 1, Type: domain.StreakLearning, CurrentStreak: 3, LongestStreak: 5, LastActivityDate: now}, now)
	db.AwardBadge(ctx, 1, "first_steps", now)

	stats, err := db.StatsSnapshot(ctx, 1)
	if err != nil {
		t.Fatalf("StatsSnapshot() error: %v", err)
	}
	want := map[domain.StatKey]int64{
		domain.StatLessonsCompleted:   3,
		domain.StatDistinctActivities: 2,
		domain.StatPerfectScores:      1,
		domain.StatStudyMinutes:       35,
		domain.StatTotalExperience:    329,
		domain.StatCurrentStreak:      3,
		domain.StatLongestStreak:      5,
		domain.StatCoinsEarned:        64,
		domain.StatBadgesEarned:       1,
		domain.StatGoalsCompleted:     0,
	}
	for k, v := range want {
		if stats[k] != v {
			t.Errorf("%s = %d, want %d", k, stats[k], v)
		}
	}

	recent, _ := db.Completions(ctx, 1, 1)
	if len(recent) != 1 || recent[0].ActivityRef != "lesson:2" {
		t.Errorf("Completions() = %+v, want newest lesson:2", recent)
	}
}

func TestStatsSnapshot_StudyMinutesSaturate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now()
	seedUser(t, db, 1)

	for _, ref := range []string{"lesson:1", "lesson:2", "lesson:3"} {
		rec := domain.CompletionRecord{UserID: 1, ActivityRef: ref, TimeSpent: math.MaxInt64, Score: 85, CreatedAt: now}
		if _, err := db.InsertCompletion(ctx, rec); err != nil {
			t.Fatalf("InsertCompletion() error: %v", err)
		}
	}

	stats, err := db.StatsSnapshot(ctx, 1)
	if err != nil {
		t.Fatalf("StatsSnapshot() error: %v", err)
	}
	if got := stats[domain.StatStudyMinutes]; got != math.MaxInt64 {
		t.Errorf("study_minutes = %d, want saturated %d", got, int64(math.MaxInt64))
	}
	if got := stats[domain.StatLessonsCompleted]; got != 3 {
		t.Errorf("lessons_completed = %d, want 3", got)
	}
}
