package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	clierrors "github.com/colony-launcher/colony/internal/errors"
	"github.com/colony-launcher/colony/internal/journal"
	"github.com/colony-launcher/colony/internal/output"
	"github.com/colony-launcher/colony/internal/prompt"
)

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the request journal",
		Long:  `Inspect and prune the sqlite journal of envelopes served by 'colony serve'.`,
	}

	cmd.AddCommand(newJournalListCmd())
	cmd.AddCommand(newJournalShowCmd())
	cmd.AddCommand(newJournalPruneCmd())

	return cmd
}

// journalRow is the JSON shape of one request in 'journal list'.
type journalRow struct {
	RequestID   string     `json:"request_id"`
	APIVersion  int        `json:"api_version"`
	Origin      string     `json:"origin"`
	Destination string     `json:"destination"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
}

func newJournalListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journaled requests, newest first",
		Long:  `Display journaled requests with their origin, destination, and timing. Open requests have no end time.`,
		Example: `  colony journal list
  colony journal list --limit 5 --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			e, err := loadEnv(cmd.Context())
			if err != nil {
				return err
			}

			j, err := e.openJournal(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = j.Close() }()

			records, err := j.Requests(cmd.Context(), limit)
			if err != nil {
				return clierrors.JournalOpenFailed(j.Path(), err)
			}

			if out.JSON {
				rows := make([]journalRow, 0, len(records))
				for _, r := range records {
					rows = append(rows, journalRow{
						RequestID:   r.RequestID.String(),
						APIVersion:  r.APIVersion,
						Origin:      r.Origin,
						Destination: r.Destination,
						StartTime:   r.StartTime,
						EndTime:     r.EndTime,
					})
				}

				return out.PrintJSON(rows)
			}

			if len(records) == 0 {
				out.Muted("No journaled requests.")
				return nil
			}

			table := output.NewTable("REQUEST", "ORIGIN", "DESTINATION", "STARTED", "ENDED")

			for _, r := range records {
				ended := "open"
				if r.Resolved() {
					ended = r.EndTime.Local().Format(time.DateTime)
				}

				table.Row(r.RequestID.String(), r.Origin, r.Destination, r.StartTime.Local().Format(time.DateTime), ended)
			}

			return out.Table(table)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of requests to show (0 for all)")

	return cmd
}

func newJournalShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <request-id>",
		Short: "Show one request and its log rows",
		Long:  `Display the stored request payload followed by every log row recorded for it, including the response.`,
		Example: `  colony journal show 0b6e3c1c-6f5e-4a61-9d8e-0d7f0d3a5c21`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			id, err := uuid.Parse(args[0])
			if err != nil {
				return clierrors.New(clierrors.ExitUsage, fmt.Sprintf("Invalid request id: %s", args[0])).
					WithHint("Request ids are UUIDs; run 'colony journal list' to see them")
			}

			e, err := loadEnv(cmd.Context())
			if err != nil {
				return err
			}

			j, err := e.openJournal(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = j.Close() }()

			rec, err := j.Request(cmd.Context(), id)
			if errors.Is(err, journal.ErrNotFound) {
				return clierrors.New(clierrors.ExitGeneral, fmt.Sprintf("Request not found: %s", id)).
					WithHint("Run 'colony journal list' to see journaled requests")
			}

			if err != nil {
				return clierrors.JournalOpenFailed(j.Path(), err)
			}

			logs, err := j.Logs(cmd.Context(), id)
			if err != nil {
				return clierrors.JournalOpenFailed(j.Path(), err)
			}

			out.Print("%s  %s -> %s\n", rec.RequestID, rec.Origin, rec.Destination)
			out.Print("  request: %s\n", rec.Payload)

			for _, l := range logs {
				line := l.Raw
				if l.Payload != nil {
					line += " " + *l.Payload
				}

				out.Print("  %s [%s] %s\n", l.Time.Local().Format(time.DateTime), l.Stream, line)
			}

			return nil
		},
	}
}

func newJournalPruneCmd() *cobra.Command {
	var (
		olderThan string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete resolved requests older than a duration",
		Long:  `Delete every resolved request whose end time is older than the retention window, together with its log rows. Open requests are kept.`,
		Example: `  colony journal prune
  colony journal prune --older-than 168h --force`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			e, err := loadEnv(cmd.Context())
			if err != nil {
				return err
			}

			window := e.cfg.JournalRetention()
			if olderThan != "" {
				d, err := time.ParseDuration(olderThan)
				if err != nil {
					return clierrors.New(clierrors.ExitUsage, fmt.Sprintf("Invalid duration for --older-than: %s", olderThan)).
						WithHint("Use a Go duration such as 72h or 30m")
				}

				window = d
			}

			if !force {
				prompter := prompt.New(out)
				if !prompter.CanPrompt() {
					return clierrors.New(clierrors.ExitUsage, "Cannot confirm prune in non-interactive mode").
						WithHint("Use --force to skip confirmation")
				}

				confirmed, err := prompter.Confirm(fmt.Sprintf("Delete resolved requests older than %s?", window), false)
				if err != nil {
					return clierrors.Wrap(clierrors.ExitGeneral, "Failed to read confirmation", err)
				}

				if !confirmed {
					out.Info("Prune canceled")
					return nil
				}
			}

			j, err := e.openJournal(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = j.Close() }()

			res, err := j.PruneArchived(cmd.Context(), time.Now().Add(-window))
			if err != nil {
				return clierrors.JournalOpenFailed(j.Path(), err)
			}

			if out.JSON {
				return out.PrintJSON(res)
			}

			out.Success("Removed %d request(s) and %d log row(s)", res.Requests, res.Logs)

			return nil
		},
	}

	cmd.Flags().StringVar(&olderThan, "older-than", "", "Override retention window (example: 168h)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}
