package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pathakanu/impact/internal/display"
	"github.com/pathakanu/impact/internal/model"
	"github.com/spf13/cobra"
)

var (
	statusLimit int
	statusJSON  bool
)

type statusOutput struct {
	Commitments []model.Commitment     `json:"commitments"`
	Records     []model.ReminderRecord `json:"records"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"st"},
	Short:   "Show commitments and the latest reminder records",
	Example: `  impact status
  impact status -n 20
  impact status --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		commitments, err := st.ListCommitments(ctx)
		if err != nil {
			return err
		}
		records, err := st.RecentRecords(ctx, statusLimit)
		if err != nil {
			return err
		}

		if statusJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(statusOutput{Commitments: commitments, Records: records})
		}
		renderStatus(cmd.OutOrStdout(), commitments, records, time.Now().In(cfg.LocalTimezone))
		return nil
	},
}

func renderStatus(w io.Writer, commitments []model.Commitment, records []model.ReminderRecord, now time.Time) {
	display.Header(w, "Impact Status")
	fmt.Fprintln(w)

	names := make(map[string]string, len(commitments))
	fmt.Fprintf(w, "  Commitments (%d)\n", len(commitments))
	if len(commitments) == 0 {
		fmt.Fprintf(w, "    %s\n", display.Dim.Render("none yet, run 'impact seed'"))
	}
	for _, c := range commitments {
		names[c.ID] = c.Name
		var lastSent time.Time
		if c.LastSent != nil {
			lastSent = *c.LastSent
		}
		fmt.Fprintf(w, "    %-28s %-9s %5s  %s  %s\n",
			display.Truncate(c.Name, 28),
			c.Cadence,
			c.TriggerTime,
			display.ActiveLabel(c.Active),
			display.Dim.Render("last sent "+display.TimeAgo(lastSent, now)),
		)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Recent reminders (%d)\n", len(records))
	for _, r := range records {
		name := names[r.CommitmentID]
		if name == "" {
			name = r.CommitmentID
		}
		detail := r.Summary
		if detail == "" {
			detail = r.Reply
		}
		detail = display.Truncate(detail, 60)
		if r.Orphaned() {
			detail = display.ErrStyle.Render("send failed")
		}
		fmt.Fprintf(w, "    %s %-24s %-10s %s\n",
			display.StatusDot(r.Status),
			display.Truncate(name, 24),
			display.Dim.Render(display.TimeAgo(r.CreatedAt, now)),
			detail,
		)
	}
}

func init() {
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 10, "Number of recent reminder records to show")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(statusCmd)
}
