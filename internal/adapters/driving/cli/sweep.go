package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Mark abandoned uploads as failed",
	Long: `Moves documents that have been processing for longer than
pipeline.stale_after to status "error", so they can be deleted or re-uploaded.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	if sweepService == nil {
		return errors.New("sweep service not configured")
	}

	swept, err := sweepService.Sweep(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to sweep: %w", err)
	}

	if len(swept) == 0 {
		cmd.Println("No stale uploads found.")
		return nil
	}

	for i := range swept {
		cmd.Printf("  %s  %s (processing since %s)\n",
			swept[i].ID, swept[i].Name, swept[i].CreatedAt.Format(timeLayout))
	}
	cmd.Printf("Marked %d stale uploads as failed.\n", len(swept))
	return nil
}
