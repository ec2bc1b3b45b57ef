package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/learnquest/learnquest/internal/daemon"
	"github.com/learnquest/learnquest/internal/domain"
)

func init() {
	completeCmd.Flags().Int64Var(&completeUser, "user", 0, "User ID")
	completeCmd.Flags().StringVar(&completeActivity, "activity", "", "Activity reference (lesson id)")
	completeCmd.Flags().IntVar(&completeScore, "score", 0, "Score from 0 to 100")
	completeCmd.Flags().IntVar(&completeMinutes, "minutes", 0, "Minutes spent")
	completeCmd.Flags().BoolVar(&completeJSON, "json", false, "Print the raw result as JSON")
	_ = completeCmd.MarkFlagRequired("user")
	_ = completeCmd.MarkFlagRequired("activity")
	rootCmd.AddCommand(completeCmd)
}

var (
	completeUser     int64
	completeActivity string
	completeScore    int
	completeMinutes  int
	completeJSON     bool
)

var completeCmd = &cobra.Command{
	Use:   "complete",
	Short: "Record a completed activity and print the rewards",
	Example: `  learnquest complete --user 1 --activity lesson-42 --score 85 --minutes 20`,
	RunE: runComplete,
}

func runComplete(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Orchestrator.ProcessCompletion(cmd.Context(), domain.CompletionRequest{
		UserID:      completeUser,
		ActivityRef: completeActivity,
		TimeSpent:   completeMinutes,
		Score:       completeScore,
	})
	if err != nil {
		return err
	}

	if completeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printResult(os.Stdout, res)
	return nil
}

func printResult(w io.Writer, res domain.CompletionResult) {
	fmt.Fprintf(w, "+%d XP, +%d coins\n", res.ExperienceAwarded, res.CoinsAwarded)
	if res.LevelUp != nil {
		fmt.Fprintf(w, "Level up! %d -> %d (+%d coins)\n", res.LevelUp.PreviousLevel, res.LevelUp.NewLevel, res.LevelUp.Coins)
	}
	fmt.Fprintf(w, "Level %d %s %s (%.0f%% to next)\n", res.Level.Level, res.Level.Icon, res.Level.Name, res.Level.ProgressToNext)
	fmt.Fprintf(w, "Streak: %d day(s)\n", res.Streak.CurrentStreak)
	for _, g := range res.GoalsCompleted {
		fmt.Fprintf(w, "Goal completed: %s (%s) +%d XP, +%d coins\n", g.Title, g.Period, g.RewardXP, g.RewardCoins)
	}
	for _, b := range res.NewBadges {
		fmt.Fprintf(w, "Badge earned: %s %s\n", b.Icon, b.Name)
	}
}
