package main

import (
	"context"
	"errors"
	"log/slog"
	"runtime"

	"github.com/colony-launcher/colony/internal/catalog"
	"github.com/colony-launcher/colony/internal/config"
	clierrors "github.com/colony-launcher/colony/internal/errors"
	"github.com/colony-launcher/colony/internal/journal"
	"github.com/colony-launcher/colony/internal/observability"
	"github.com/colony-launcher/colony/internal/paths"
	"github.com/colony-launcher/colony/internal/singularity"
	"github.com/colony-launcher/colony/internal/supervisor"
	"github.com/colony-launcher/colony/internal/termrender"
)

type persistenceKey struct{}

func withPersistenceOverride(ctx context.Context, dir string) context.Context {
	return context.WithValue(ctx, persistenceKey{}, dir)
}

// env is what most commands need: configuration, the persistence directory,
// and the subsystem host.
type env struct {
	cfg    *config.Config
	dir    string
	host   singularity.Host
	logger *slog.Logger
}

func loadEnv(ctx context.Context) (*env, error) {
	cfg := config.Load()

	override, _ := ctx.Value(persistenceKey{}).(string)
	if override == "" {
		override = cfg.PersistenceDir()
	}

	dir, err := paths.PersistenceDir(override)
	if err != nil {
		return nil, clierrors.PersistenceDirUnavailable(err)
	}

	return &env{
		cfg:    cfg,
		dir:    dir,
		host:   singularity.NewHost(cfg.SubsystemWrapper(), runtime.GOOS),
		logger: observability.FromContext(ctx),
	}, nil
}

func (e *env) catalogPath() string {
	return paths.CatalogFile(e.dir)
}

func (e *env) loadCatalog() (*catalog.Catalog, error) {
	c, err := catalog.Load(e.catalogPath())
	if err != nil {
		return nil, clierrors.CatalogFailed("load", err)
	}

	return c, nil
}

func (e *env) openJournal(ctx context.Context) (*journal.Journal, error) {
	path := paths.JournalFile(e.dir)

	j, err := journal.Open(ctx, journal.Options{Path: path, Logger: e.logger})
	if err != nil {
		if errors.Is(err, journal.ErrSchemaMismatch) {
			return nil, clierrors.JournalSchemaMismatch(path, err)
		}

		return nil, clierrors.JournalOpenFailed(path, err)
	}

	return j, nil
}

// supervisor builds the job supervisor from the terminal and jobs settings.
func (e *env) supervisor() (*supervisor.Supervisor, error) {
	kind, err := termrender.ParseKind(e.cfg.Renderer())
	if err != nil {
		return nil, clierrors.InvalidRenderer(e.cfg.Renderer(), []string{string(termrender.KindAutomaton), string(termrender.KindScreen)})
	}

	rows, cols := e.cfg.TerminalSize()

	opts := supervisor.Options{
		Logger:   e.logger,
		Renderer: termrender.Options{Kind: kind, Rows: rows, Cols: cols},
		PTY:      e.cfg.JobsPTY(),
	}

	if e.cfg.JobsTranscripts() {
		if dir, err := paths.HistoryDir(); err == nil {
			opts.TranscriptDir = dir
		} else {
			e.logger.Warn("transcripts disabled", slog.String("error", err.Error()))
		}
	}

	return supervisor.New(opts), nil
}

// stopCommand shuts the subsystem distribution down. Hosts without a
// subsystem have nothing to stop.
func (e *env) stopCommand() *supervisor.Command {
	if runtime.GOOS != "windows" {
		return nil
	}

	return &supervisor.Command{Path: "wsl", Args: []string{"--terminate", e.cfg.Distribution()}}
}
