// Package cli implements the LearnQuest command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "learnquest",
	Short: "LearnQuest: rewards for learning",
	Long: `LearnQuest turns completed lessons into experience, levels, coins,
streaks, goals and badges.

Run 'learnquest serve' to start the HTTP API, or record a completion
directly with 'learnquest complete'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
