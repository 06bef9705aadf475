// Package observability builds the structured logger and the optional trace
// pipeline shared by every colony command.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const redactedValue = "[REDACTED]"

// ComponentKey is the attribute naming the subsystem that emitted a record.
const ComponentKey = "component"

// Attribute keys used across packages.
const (
	JobKey     = "job.id"
	RequestKey = "request.id"
)

type contextKey struct{}

// Config holds the configuration for the observability logger.
type Config struct {
	Level      string
	Format     string
	LogFile    string
	StderrMode string
	// FallbackFile receives records when stderr is off and LogFile is unset.
	// The launch stream owns stdout, so some sink must remain.
	FallbackFile   string
	InteractiveTTY bool
	SessionID      string
	CommandPath    string
	Version        string
	Commit         string
}

// WithLogger returns a new context carrying the given logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts the logger from ctx, falling back to slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}

	return slog.Default()
}

// Component returns logger tagged with a component name. A nil logger
// falls back to slog.Default.
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}

	return logger.With(slog.String(ComponentKey, name))
}

// NewLogger creates a structured logger from cfg. The returned cleanup closes
// any opened log file.
func NewLogger(cfg *Config) (*slog.Logger, func() error, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	stderrEnabled, err := shouldEnableStderr(cfg.StderrMode, cfg.InteractiveTTY)
	if err != nil {
		return nil, nil, err
	}

	file := strings.TrimSpace(cfg.LogFile)
	if !stderrEnabled && file == "" {
		file = strings.TrimSpace(cfg.FallbackFile)
	}

	if !stderrEnabled && file == "" {
		return nil, nil, fmt.Errorf("no log sinks configured: set --log-file or enable --log-stderr")
	}

	var (
		writers []io.Writer
		closer  io.Closer
	)

	if stderrEnabled {
		writers = append(writers, os.Stderr)
	}

	if file != "" {
		f, openErr := openLogFile(file)
		if openErr != nil {
			return nil, nil, openErr
		}

		writers = append(writers, f)
		closer = f
	}

	sink := io.MultiWriter(writers...)
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: redactAttr}

	var handler slog.Handler

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "json":
		handler = slog.NewJSONHandler(sink, opts)
	case "text":
		handler = slog.NewTextHandler(sink, opts)
	default:
		if closer != nil {
			_ = closer.Close()
		}

		return nil, nil, fmt.Errorf("invalid log format: %q (allowed: json, text)", cfg.Format)
	}

	logger := slog.New(handler).With(
		slog.String("session.id", cfg.SessionID),
		slog.String("command.path", cfg.CommandPath),
		slog.String("app.version", cfg.Version),
		slog.String("app.commit", cfg.Commit),
	)

	cleanup := func() error {
		if closer == nil {
			return nil
		}

		return closer.Close()
	}

	return logger, cleanup, nil
}

func openLogFile(path string) (*os.File, error) {
	clean := filepath.Clean(path)

	if err := os.MkdirAll(filepath.Dir(clean), 0o700); err != nil {
		return nil, fmt.Errorf("create log file directory: %w", err)
	}

	f, err := os.OpenFile(clean, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return f, nil
}

func shouldEnableStderr(mode string, interactiveTTY bool) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
		return !interactiveTTY, nil
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid --log-stderr value %q (allowed: auto, on, off)", mode)
	}
}

func parseLevel(level string) (slog.Leveler, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return nil, fmt.Errorf("invalid log level: %q (allowed: error, warn, info, debug)", level)
	}
}

// redactAttr hides credential values and the userinfo of logged URLs.
// Download requests carry basic-auth passwords in both places.
func redactAttr(_ []string, attr slog.Attr) slog.Attr {
	key := strings.ToLower(attr.Key)
	if isSensitiveKey(key) {
		return slog.String(attr.Key, redactedValue)
	}

	if attr.Value.Kind() == slog.KindString && (key == "url" || strings.HasSuffix(key, ".url")) {
		return slog.String(attr.Key, redactURL(attr.Value.String()))
	}

	return attr
}

func isSensitiveKey(key string) bool {
	if key == "authorization" {
		return true
	}

	for _, s := range []string{"password", "credential", "secret", "token"} {
		if strings.Contains(key, s) {
			return true
		}
	}

	return false
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}

	u.User = url.User(redactedValue)

	return u.String()
}
