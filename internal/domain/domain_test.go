package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
)

// ─── Completion Request Tests ───────────────────────────────────────────────

func TestCompletionRequest_Validate(t *testing.T) {
	valid := CompletionRequest{UserID: 1, ActivityRef: "lesson-1", TimeSpent: 20, Score: 85}
	tests := []struct {
		name  string
		edit  func(r *CompletionRequest)
		field string
	}{
		{"valid", func(r *CompletionRequest) {}, ""},
		{"zero minutes", func(r *CompletionRequest) { r.TimeSpent = 0 }, ""},
		{"perfect", func(r *CompletionRequest) { r.Score = 100 }, ""},
		{"zero user", func(r *CompletionRequest) { r.UserID = 0 }, "user_id"},
		{"negative user", func(r *CompletionRequest) { r.UserID = -4 }, "user_id"},
		{"blank ref", func(r *CompletionRequest) { r.ActivityRef = "   " }, "activity_ref"},
		{"long ref", func(r *CompletionRequest) { r.ActivityRef = strings.Repeat("x", MaxActivityRefLen+1) }, "activity_ref"},
		{"negative minutes", func(r *CompletionRequest) { r.TimeSpent = -1 }, "time_spent"},
		{"full day", func(r *CompletionRequest) { r.TimeSpent = MaxTimeSpentMinutes }, ""},
		{"over a day", func(r *CompletionRequest) { r.TimeSpent = MaxTimeSpentMinutes + 1 }, "time_spent"},
		{"huge minutes", func(r *CompletionRequest) { r.TimeSpent = math.MaxInt64 }, "time_spent"},
		{"score above 100", func(r *CompletionRequest) { r.Score = 101 }, "score"},
		{"negative score", func(r *CompletionRequest) { r.Score = -1 }, "score"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.edit(&r)
			err := r.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() = %v, want *ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
			if !errors.Is(err, ErrValidation) {
				t.Error("ValidationError should match ErrValidation")
			}
		})
	}
}

// ─── Error Tests ────────────────────────────────────────────────────────────

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrLockTimeout, true},
		{fmt.Errorf("user 3: %w", ErrConcurrencyConflict), true},
		{ErrPersistence, false},
		{&ValidationError{Field: "score"}, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

// ─── Enum Tests ─────────────────────────────────────────────────────────────

func TestGoalPeriod_Valid(t *testing.T) {
	for _, p := range AllPeriods {
		if !p.Valid() {
			t.Errorf("%s should be valid", p)
		}
	}
	if GoalPeriod("yearly").Valid() {
		t.Error("yearly should not be valid")
	}
}

func TestStatKey_Known(t *testing.T) {
	seen := make(map[StatKey]bool)
	for _, k := range KnownStatKeys {
		if seen[k] {
			t.Errorf("duplicate StatKey: %s", k)
		}
		seen[k] = true
		if !k.Known() {
			t.Errorf("%s should be known", k)
		}
	}
	if StatKey("lessons").Known() {
		t.Error("unknown key reported as known")
	}
}

func TestStreakUpdate_Changed(t *testing.T) {
	if (StreakUpdate{Transition: StreakUnchanged}).Changed() {
		t.Error("unchanged update reported as changed")
	}
	for _, tr := range []StreakTransition{StreakStarted, StreakExtended, StreakFrozen, StreakReset} {
		if !(StreakUpdate{Transition: tr}).Changed() {
			t.Errorf("%s should count as changed", tr)
		}
	}
}
