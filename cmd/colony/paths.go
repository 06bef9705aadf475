package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/colony-launcher/colony/internal/output"
	"github.com/colony-launcher/colony/internal/paths"
)

// PathsInfo holds all resolved paths for JSON output.
type PathsInfo struct {
	ConfigRoot     string `json:"config_root"`
	StateRoot      string `json:"state_root"`
	CacheRoot      string `json:"cache_root"`
	ConfigFile     string `json:"config_file"`
	PersistenceDir string `json:"persistence_dir"`
	Catalog        string `json:"catalog"`
	Journal        string `json:"journal"`
	LogFile        string `json:"log_file"`
	HistoryDir     string `json:"history_dir"`
	DownloadsDir   string `json:"downloads_dir"`
}

func newPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show where colony stores files",
		Long: `Display all file and directory paths used by colony.

The persistence directory holds the container catalog and the request journal.
It honours --persistence-dir and persistence.dir.`,
		Example: `  colony paths
  colony paths --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			info := PathsInfo{
				ConfigRoot:   resolveOrError(paths.ConfigRoot),
				StateRoot:    resolveOrError(paths.StateRoot),
				CacheRoot:    resolveOrError(paths.CacheRoot),
				LogFile:      resolveOrError(paths.DefaultLogFile),
				HistoryDir:   resolveOrError(paths.HistoryDir),
				DownloadsDir: resolveOrError(paths.DownloadsDir),
			}

			if root, err := paths.ConfigRoot(); err == nil {
				info.ConfigFile = filepath.Join(root, "config.yaml")
			} else {
				info.ConfigFile = "<error: config root unavailable>"
			}

			if e, err := loadEnv(cmd.Context()); err == nil {
				info.PersistenceDir = e.dir
				info.Catalog = paths.CatalogFile(e.dir)
				info.Journal = paths.JournalFile(e.dir)
			} else {
				info.PersistenceDir = fmt.Sprintf("<error: %v>", err)
			}

			if out.JSON {
				return out.PrintJSON(info)
			}

			out.Print("Config root:      %s\n", info.ConfigRoot)
			out.Print("State root:       %s\n", info.StateRoot)
			out.Print("Cache root:       %s\n", info.CacheRoot)
			out.Print("\n")
			out.Print("Config file:      %s\n", info.ConfigFile)
			out.Print("Persistence dir:  %s\n", info.PersistenceDir)
			out.Print("Catalog:          %s\n", info.Catalog)
			out.Print("Journal:          %s\n", info.Journal)
			out.Print("Log file:         %s\n", info.LogFile)
			out.Print("History dir:      %s\n", info.HistoryDir)
			out.Print("Downloads dir:    %s\n", info.DownloadsDir)

			return nil
		},
	}
}

func resolveOrError(fn func() (string, error)) string {
	val, err := fn()
	if err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}

	return val
}
