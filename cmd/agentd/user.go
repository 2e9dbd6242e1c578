package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/DevanshuBrahmbhatt/Social-agents/internal/agent"
	"github.com/DevanshuBrahmbhatt/Social-agents/internal/store"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users and their schedules",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create or update a user",
	Long: `Create or update a user. With --id, an existing user is updated
in place; omitted fields keep their stored values empty.

Examples:
  agentd user add --username alice --times 09:00,17:00 --timezone Europe/Berlin
  agentd user add --id 3 --targets twitter,linkedin --llm-key sk-...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return userAdd(cmd)
	},
}

var userEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable a user's schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetInt64("id")
		return userSetEnabled(id, true)
	},
}

var userDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable a user's schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetInt64("id")
		return userSetEnabled(id, false)
	},
}

func init() {
	f := userAddCmd.Flags()
	f.Int64("id", 0, "existing user id to update")
	f.String("username", "", "display name")
	f.String("times", "09:00", "comma-separated trigger times (HH:MM, user-local)")
	f.String("timezone", "America/Los_Angeles", "IANA timezone")
	f.String("targets", "twitter", "comma-separated publish targets, primary first")
	f.String("style", "", "voice/style instruction for synthesis")
	f.String("llm-key", "", "per-user LLM API key")
	f.String("research-key", "", "per-user research API key")
	f.String("twitter-consumer-key", "", "")
	f.String("twitter-consumer-secret", "", "")
	f.String("twitter-access-token", "", "")
	f.String("twitter-access-secret", "", "")
	f.String("linkedin-token", "", "")
	f.String("linkedin-urn", "", "")
	f.String("telegram-token", "", "")
	f.Int64("telegram-chat", 0, "")

	userEnableCmd.Flags().Int64("id", 0, "user id")
	userDisableCmd.Flags().Int64("id", 0, "user id")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userEnableCmd)
	userCmd.AddCommand(userDisableCmd)
}

func userAdd(cmd *cobra.Command) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	id, _ := cmd.Flags().GetInt64("id")

	var u *store.User
	if id > 0 {
		u, err = a.store.User(ctx, id)
		if err != nil {
			return fmt.Errorf("user %d: %w", id, err)
		}
	} else {
		u = &store.User{Enabled: true}
	}

	setStr := func(flag string, dst *string) {
		if cmd.Flags().Changed(flag) {
			v, _ := cmd.Flags().GetString(flag)
			*dst = v
		}
	}
	setStr("username", &u.Username)
	setStr("style", &u.Style)
	setStr("llm-key", &u.LLMAPIKey)
	setStr("research-key", &u.ResearchAPIKey)
	setStr("twitter-consumer-key", &u.TwitterConsumerKey)
	setStr("twitter-consumer-secret", &u.TwitterConsumerSecret)
	setStr("twitter-access-token", &u.TwitterAccessToken)
	setStr("twitter-access-secret", &u.TwitterAccessSecret)
	setStr("linkedin-token", &u.LinkedInAccessToken)
	setStr("linkedin-urn", &u.LinkedInPersonURN)
	setStr("telegram-token", &u.TelegramBotToken)
	if cmd.Flags().Changed("telegram-chat") {
		u.TelegramChatID, _ = cmd.Flags().GetInt64("telegram-chat")
	}

	if cmd.Flags().Changed("times") || id == 0 {
		raw, _ := cmd.Flags().GetString("times")
		u.ScheduleTimes = splitList(raw)
	}
	if cmd.Flags().Changed("timezone") || id == 0 {
		u.Timezone, _ = cmd.Flags().GetString("timezone")
	}
	if cmd.Flags().Changed("targets") || id == 0 {
		raw, _ := cmd.Flags().GetString("targets")
		u.Targets = splitList(raw)
	}

	// Reject bad schedules here rather than at trigger registration.
	for _, t := range u.ScheduleTimes {
		if _, err := agent.CronSpec(u.Timezone, t); err != nil {
			return err
		}
	}
	if _, err := time.LoadLocation(u.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", u.Timezone, err)
	}

	newID, err := a.store.UpsertUser(ctx, u)
	if err != nil {
		return err
	}
	fmt.Printf("user %d saved\n", newID)
	return nil
}

func userSetEnabled(id int64, enabled bool) error {
	if id <= 0 {
		return errors.New("--id is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	u, err := a.store.User(ctx, id)
	if err != nil {
		return fmt.Errorf("user %d: %w", id, err)
	}
	u.Enabled = enabled
	if _, err := a.store.UpsertUser(ctx, u); err != nil {
		return err
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("user %d %s\n", id, state)
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
