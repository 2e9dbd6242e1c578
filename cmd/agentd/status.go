package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/DevanshuBrahmbhatt/Social-agents/internal/agent"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show schedule and recent runs for one user",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetInt64("user")
		if userID <= 0 {
			return fmt.Errorf("--user is required")
		}
		return showStatus(userID)
	},
}

func init() {
	statusCmd.Flags().Int64("user", 0, "user id")
}

func showStatus(userID int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	u, err := a.store.User(ctx, userID)
	if err != nil {
		return fmt.Errorf("user %d: %w", userID, err)
	}

	fmt.Printf("user %d (%s)\n", u.ID, u.Username)
	fmt.Printf("  enabled:  %v\n", u.Enabled)
	fmt.Printf("  timezone: %s\n", u.Timezone)
	fmt.Printf("  times:    %s\n", strings.Join(u.ScheduleTimes, ", "))
	fmt.Printf("  targets:  %s\n", strings.Join(u.Targets, ", "))

	if u.Enabled {
		if next, err := nextTrigger(u.ScheduleTimes, u.Timezone); err == nil {
			fmt.Printf("  next:     %s\n", next.Format(time.RFC1123))
		}
	}

	runs, err := a.store.RecentRuns(ctx, userID, 10)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("  no runs recorded")
		return nil
	}
	fmt.Println("recent runs:")
	for _, r := range runs {
		line := fmt.Sprintf("  %s  %-8s %-12s", r.StartedAt.Format("2006-01-02 15:04"), r.Outcome, r.Stage)
		if r.DryRun {
			line += "  (dry run)"
		}
		if r.Error != "" {
			line += "  " + r.Error
		}
		fmt.Println(line)
	}
	return nil
}

// nextTrigger computes the earliest upcoming trigger in the user's timezone.
func nextTrigger(times []string, timezone string) (time.Time, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, err
	}
	now := time.Now().In(loc)

	var next time.Time
	for _, t := range times {
		if _, err := agent.CronSpec(timezone, t); err != nil {
			continue
		}
		var hh, mm int
		if _, err := fmt.Sscanf(t, "%d:%d", &hh, &mm); err != nil {
			continue
		}
		candidate := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, loc)
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		if next.IsZero() || candidate.Before(next) {
			next = candidate
		}
	}
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("no valid trigger times")
	}
	return next, nil
}
