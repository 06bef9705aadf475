package main

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	clierrors "github.com/colony-launcher/colony/internal/errors"
	"github.com/colony-launcher/colony/internal/output"
	"github.com/colony-launcher/colony/internal/paths"
	"github.com/colony-launcher/colony/internal/termrender"
	"github.com/colony-launcher/colony/internal/transcript"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse recorded job output",
		Long: `Browse the raw output transcripts recorded for container jobs. Recording is
enabled with jobs.transcripts.`,
	}

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryPruneCmd())

	return cmd
}

func historyDir() (string, error) {
	dir, err := paths.HistoryDir()
	if err != nil {
		return "", clierrors.PersistenceDirUnavailable(err)
	}

	return dir, nil
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded jobs, newest first",
		Long:  `Display recorded jobs with their command, container, start time, and exit code.`,
		Example: `  colony history list
  colony history list --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			dir, err := historyDir()
			if err != nil {
				return err
			}

			entries, err := transcript.List(dir)
			if err != nil {
				return fmt.Errorf("list transcripts: %w", err)
			}

			if out.JSON {
				metas := make([]transcript.Meta, 0, len(entries))
				for _, e := range entries {
					metas = append(metas, e.Meta)
				}

				return out.PrintJSON(metas)
			}

			if len(entries) == 0 {
				out.Muted("No recorded jobs.")
				return nil
			}

			table := output.NewTable("JOB", "STARTED", "EXIT", "CONTAINER", "COMMAND")
			table.MaxCellWidth = 60

			for _, e := range entries {
				exit := "running"
				if e.ExitCode != nil {
					exit = strconv.Itoa(*e.ExitCode)
				}

				table.Row(e.JobID, e.StartedAt.Local().Format(time.DateTime), exit, e.Container, strings.Join(e.Command, " "))
			}

			return out.Table(table)
		},
	}
}

func newHistoryShowCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Print the output of a recorded job",
		Long: `Replay a recorded job's output through the line renderer and print the
resulting lines. --raw writes the recorded bytes unchanged, escape sequences
included.`,
		Example: `  colony history show 42
  colony history show 42 --raw > job.log`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			dir, err := historyDir()
			if err != nil {
				return err
			}

			data, err := transcript.ReadOutput(dir, args[0])
			if errors.Is(err, fs.ErrNotExist) {
				return clierrors.JobNotFound(args[0])
			}

			if err != nil {
				return fmt.Errorf("read transcript: %w", err)
			}

			if raw {
				_, err := out.Write(data)
				return err
			}

			buf := termrender.NewBuffer()
			rend := termrender.New(buf, termrender.Options{Kind: termrender.KindAutomaton})

			if err := termrender.Pump(bytes.NewReader(data), rend, buf); err != nil {
				return fmt.Errorf("render transcript: %w", err)
			}

			for _, line := range buf.Snapshot() {
				out.Println(line)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Write recorded bytes without rendering")

	return cmd
}

func newHistoryPruneCmd() *cobra.Command {
	var olderThan string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old job transcripts",
		Long:  `Delete transcripts of jobs that ended (or started, if never closed) before the retention window.`,
		Example: `  colony history prune
  colony history prune --older-than 24h`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			window := transcript.DefaultRetention()
			if olderThan != "" {
				d, err := time.ParseDuration(olderThan)
				if err != nil {
					return clierrors.New(clierrors.ExitUsage, fmt.Sprintf("Invalid duration for --older-than: %s", olderThan)).
						WithHint("Use a Go duration such as 72h or 30m")
				}

				window = d
			}

			dir, err := historyDir()
			if err != nil {
				return err
			}

			removed, err := transcript.PruneOlderThan(dir, time.Now().Add(-window))
			if err != nil {
				return fmt.Errorf("prune transcripts: %w", err)
			}

			out.Success("Removed %d transcript(s)", removed)

			return nil
		},
	}

	cmd.Flags().StringVar(&olderThan, "older-than", "", "Override retention window (example: 72h)")

	return cmd
}
