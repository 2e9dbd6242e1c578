package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/DevanshuBrahmbhatt/Social-agents/internal/agent"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one cycle for one user immediately",
	Long: `Execute one cycle for one user immediately, outside the schedule.
With --dry-run, every stage runs except publishing and no published
record is written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetInt64("user")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if userID <= 0 {
			return fmt.Errorf("--user is required")
		}
		return runOnce(userID, dryRun)
	},
}

func init() {
	runCmd.Flags().Int64("user", 0, "user id")
	runCmd.Flags().Bool("dry-run", false, "run all stages except publishing")
}

func runOnce(userID int64, dryRun bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := a.service.RunOnce(ctx, userID, dryRun)
	if err != nil {
		if errors.Is(err, agent.ErrOverlapSkip) {
			return fmt.Errorf("user %d already has an active run", userID)
		}
		return err
	}

	fmt.Printf("run %s: %s (stage %s)\n", run.ID, run.Outcome, run.Stage)
	if run.Story != nil {
		fmt.Printf("story: %s\n", run.Story.Title)
	}
	if run.Outcome != pipeline.OutcomeDone {
		return fmt.Errorf("cycle %s: %s", run.Outcome, run.Err)
	}
	return nil
}
