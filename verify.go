package main

import (
	"context"
	"fmt"

	"github.com/pathakanu/impact/internal/display"
	"github.com/pathakanu/impact/internal/gmail"
	"github.com/pathakanu/impact/internal/token"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the database, Gmail and OpenAI credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		errOut := cmd.ErrOrStderr()
		failed := 0

		if err := cfg.Validate(); err != nil {
			display.ErrorMsg(errOut, "configuration: %v", err)
			failed++
		}

		st, err := openStore()
		if err != nil {
			display.ErrorMsg(errOut, "database: %v", err)
			failed++
		} else if active, err := st.ListActiveCommitments(ctx); err != nil {
			display.ErrorMsg(errOut, "database: %v", err)
			failed++
		} else {
			display.SuccessMsg(out, "database: %d active commitments", len(active))
		}

		if n, err := unreadReplies(ctx); err != nil {
			display.ErrorMsg(errOut, "gmail: %v", err)
			failed++
		} else {
			display.SuccessMsg(out, "gmail: %d unread reminder replies", n)
		}

		summary, err := newSummarizer().Summarize(ctx, "This is a test message for Impact summarization.", nil, "")
		if err != nil {
			display.ErrorMsg(errOut, "openai: %v", err)
			failed++
		} else {
			display.SuccessMsg(out, "openai: %q", summary)
		}

		if failed > 0 {
			return fmt.Errorf("%d checks failed", failed)
		}
		return nil
	},
}

func unreadReplies(ctx context.Context) (int, error) {
	mailer, err := gmail.New(ctx, gmail.Credentials{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		RedirectURI:  cfg.GmailRedirectURI,
		RefreshToken: cfg.GmailRefreshToken,
	})
	if err != nil {
		return 0, err
	}
	msgs, err := mailer.ListUnread(ctx, token.Prefix)
	return len(msgs), err
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
