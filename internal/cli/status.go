package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/learnquest/learnquest/internal/app/engagement"
	"github.com/learnquest/learnquest/internal/app/ledger"
	"github.com/learnquest/learnquest/internal/daemon"
	"github.com/learnquest/learnquest/internal/domain"
)

func init() {
	statusCmd.Flags().Int64Var(&statusUser, "user", 0, "User ID")
	_ = statusCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(levelsCmd)
}

var statusUser int64

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a user's level, wallet, streaks and goals",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()
	ctx := cmd.Context()

	u, err := d.DB.GetUser(ctx, statusUser)
	if err != nil {
		return err
	}
	var xp int64
	if u != nil {
		xp = u.TotalExperience
	}
	info, err := d.Levels.For(xp)
	if err != nil {
		return err
	}
	wallet, err := ledger.Wallet(ctx, d.DB, statusUser)
	if err != nil {
		return err
	}

	fmt.Printf("Level %d %s %s: %d XP (%d to next)\n", info.Level, info.Icon, info.Name, info.TotalExperience, info.ExperienceRequiredForNext)
	fmt.Printf("Wallet: %d coins, %d gems\n", wallet.Coins, wallet.Gems)

	now := time.Now()
	streaks, err := d.DB.ListStreaks(ctx, statusUser)
	if err != nil {
		return err
	}
	for i := range streaks {
		st := &streaks[i]
		fmt.Printf("Streak %s: %d (best %d, %d freezes) %s\n",
			st.Type, st.CurrentStreak, st.LongestStreak, st.FreezesAvailable, d.Streaks.State(st, now))
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nPERIOD\tGOAL\tPROGRESS\tDONE")
	for _, period := range domain.AllPeriods {
		goals, err := d.Goals.Goals(ctx, d.DB, statusUser, period, now)
		if err != nil {
			return err
		}
		for _, g := range goals {
			fmt.Fprintf(w, "%s\t%s\t%d/%d\t%v\n", g.Period, g.Title, g.CurrentProgress, g.TargetValue, g.IsCompleted)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	badges, err := d.DB.ListUserBadges(ctx, statusUser)
	if err != nil {
		return err
	}
	fmt.Printf("\nBadges earned: %d\n", len(badges))
	return nil
}

var levelsCmd = &cobra.Command{
	Use:   "levels",
	Short: "Print the level table",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := daemon.New()
		if err != nil {
			return err
		}
		defer d.Close()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "LEVEL\tNAME\tMIN XP\tLEVEL-UP COINS")
		for i, l := range d.Levels.Table() {
			var coins int64
			if i > 0 {
				coins = engagement.LevelUpCoins(i + 1)
			}
			fmt.Fprintf(w, "%d\t%s %s\t%d\t%d\n", i+1, l.Icon, l.Name, l.MinExperience, coins)
		}
		return w.Flush()
	},
}
