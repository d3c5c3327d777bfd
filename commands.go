package main

import (
	"fmt"
	"time"

	"github.com/pathakanu/impact/internal/display"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one commitment check and send due reminders",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		reminderBot, err := newBot(cmd.Context(), st)
		if err != nil {
			return err
		}

		res, err := reminderBot.CheckCommitments(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		display.SuccessMsg(out, "checked %d commitments: %d due, %d sent", res.Evaluated, res.Due, res.Sent)
		if res.Failed > 0 {
			display.ErrorMsg(cmd.ErrOrStderr(), "%d commitments failed, see log", res.Failed)
		}
		return nil
	},
}

var processRepliesCmd = &cobra.Command{
	Use:   "process-replies",
	Short: "Poll the inbox once and reconcile reminder replies",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		reminderBot, err := newBot(cmd.Context(), st)
		if err != nil {
			return err
		}

		res, err := reminderBot.PollInbox(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		display.SuccessMsg(out, "processed %d messages: %d summarized, %d replied, %d skipped",
			res.Fetched, res.Summarized, res.Replied, res.Skipped)
		if res.Failed > 0 {
			display.ErrorMsg(cmd.ErrOrStderr(), "%d messages left unread after errors", res.Failed)
		}
		return nil
	},
}

var sendTestCmd = &cobra.Command{
	Use:   "send-test [COMMITMENT_ID]",
	Short: "Send a reminder now, ignoring the schedule",
	Long: `Run the send protocol for one commitment regardless of whether it is due.
Without an argument the first active commitment is used. The commitment's
last-sent time is updated as for a scheduled reminder.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore()
		if err != nil {
			return err
		}
		reminderBot, err := newBot(ctx, st)
		if err != nil {
			return err
		}

		var id string
		if len(args) == 1 {
			id = args[0]
		} else {
			active, err := st.ListActiveCommitments(ctx)
			if err != nil {
				return err
			}
			if len(active) == 0 {
				return fmt.Errorf("no active commitments; run 'impact seed' first")
			}
			id = active[0].ID
		}

		c, err := st.GetCommitment(ctx, id)
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("commitment %q not found", id)
		}

		if err := reminderBot.SendReminder(ctx, *c, time.Now()); err != nil {
			return err
		}
		display.SuccessMsg(cmd.OutOrStdout(), "reminder sent for %s", c.Name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(processRepliesCmd)
	rootCmd.AddCommand(sendTestCmd)
}
