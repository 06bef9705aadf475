// Package journal records every task-API request and its outcome in a local
// sqlite database.
//
// The journal is single-writer: one goroutine (the broker or the API handler
// chain) owns the write path. Readers such as `colony journal list` open the
// same file independently.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/colony-launcher/colony/internal/envelope"
	"github.com/colony-launcher/colony/internal/observability"
)

const driverName = "colony-sqlite"

func init() {
	sql.Register(driverName, &sqlite.Driver{})
}

var (
	// ErrUniqueViolation is returned when a request id is registered twice.
	ErrUniqueViolation = errors.New("request already registered")
	// ErrUnknownRequest is returned when a response or log names a request
	// that was never registered.
	ErrUnknownRequest = errors.New("unknown request")
)

// Stream tags a log row.
type Stream string

// Log streams.
const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
	Event  Stream = "event"
)

// RequestRecord is one row of the requests table.
type RequestRecord struct {
	RequestID   uuid.UUID
	APIVersion  int
	Origin      string
	Destination string
	Payload     string
	StartTime   time.Time
	EndTime     *time.Time
}

// Resolved reports whether the request has an end time.
func (r RequestRecord) Resolved() bool {
	return r.EndTime != nil
}

// LogRecord is one row of the logs table.
type LogRecord struct {
	ID        int64
	RequestID uuid.UUID
	Stream    Stream
	Time      time.Time
	Raw       string
	Payload   *string
}

// PruneResult counts rows removed by PruneArchived.
type PruneResult struct {
	Requests int64
	Logs     int64
}

// Options configures Open.
type Options struct {
	// Path is the database file. It is created along with its directory.
	Path   string
	Logger *slog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Journal is an open request journal.
type Journal struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// Open opens the journal at opts.Path, creating the schema when the file is
// new and returning ErrSchemaMismatch when an existing file has a different
// layout.
func Open(ctx context.Context, opts Options) (*Journal, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, errors.New("journal path is required")
	}

	// #nosec G301 -- the persistence directory is user-owned
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	dsn := "file:" + filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}

	// One connection keeps the foreign_keys pragma and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&mode); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Journal{db: db, path: path, logger: observability.Component(opts.Logger, "journal"), now: now}, nil
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.path
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RegisterRequest inserts the request row for env. origin names the sender.
func (j *Journal) RegisterRequest(ctx context.Context, env envelope.RequestEnvelope, origin string) error {
	version, ok := envelope.APIVersion(env.Version)
	if !ok {
		return fmt.Errorf("%w: %q", envelope.ErrUnsupportedVersion, env.Version)
	}

	payload, err := json.Marshal(env.Body)
	if err != nil {
		return fmt.Errorf("encode request payload: %w", err)
	}

	_, err = j.db.ExecContext(ctx,
		`INSERT INTO requests (request_id, api_version, origin, destination, payload, start_time)
			VALUES (?, ?, ?, ?, ?, ?)`,
		env.RequestID.String(), version, origin, env.Target.String(), string(payload), j.now().Unix(),
	)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("%w: %s", ErrUniqueViolation, env.RequestID)
		}

		return fmt.Errorf("insert request: %w", err)
	}

	j.logger.Debug("Request registered", slog.String(observability.RequestKey, env.RequestID.String()))

	return nil
}

// RegisterResponse stores the response as an event row and stamps the
// request's end time with the same timestamp.
func (j *Journal) RegisterResponse(ctx context.Context, env envelope.ResponseEnvelope) error {
	payload, err := json.Marshal(env.Body)
	if err != nil {
		return fmt.Errorf("encode response payload: %w", err)
	}

	return j.resolve(ctx, env.RequestID, func(tx *sql.Tx, ts int64) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO logs (request_id, stream_type, time_stamp, raw_line, json_payload)
				VALUES (?, ?, ?, ?, ?)`,
			env.RequestID.String(), string(Event), ts, "response", string(payload),
		)
		if err != nil {
			return fmt.Errorf("insert response: %w", err)
		}

		return nil
	})
}

// MarkRequestResolved sets the end time without storing a response.
func (j *Journal) MarkRequestResolved(ctx context.Context, id uuid.UUID) error {
	return j.resolve(ctx, id, nil)
}

func (j *Journal) resolve(ctx context.Context, id uuid.UUID, insert func(*sql.Tx, int64) error) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var start int64

	err = tx.QueryRowContext(ctx, `SELECT start_time FROM requests WHERE request_id = ?`, id.String()).Scan(&start)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}

	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}

	// end_time never precedes start_time, even if the clock stepped back.
	ts := max(j.now().Unix(), start)

	if insert != nil {
		if err := insert(tx, ts); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE requests SET end_time = ? WHERE request_id = ?`, ts, id.String()); err != nil {
		return fmt.Errorf("update end time: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	j.logger.Debug("Request resolved", slog.String(observability.RequestKey, id.String()))

	return nil
}

// AppendLog appends one log row. structured may be nil.
func (j *Journal) AppendLog(ctx context.Context, id uuid.UUID, stream Stream, raw string, structured json.RawMessage) error {
	var payload any
	if len(structured) > 0 {
		payload = string(structured)
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO logs (request_id, stream_type, time_stamp, raw_line, json_payload)
			VALUES (?, ?, ?, ?, ?)`,
		id.String(), string(stream), j.now().Unix(), raw, payload,
	)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("%w: %s", ErrUnknownRequest, id)
		}

		return fmt.Errorf("insert log: %w", err)
	}

	return nil
}

// PruneArchived deletes every resolved request whose end time is at or before
// before, together with its logs.
func (j *Journal) PruneArchived(ctx context.Context, before time.Time) (PruneResult, error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return PruneResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := before.Unix()

	logs, err := tx.ExecContext(ctx,
		`DELETE FROM logs WHERE request_id IN (
			SELECT request_id FROM requests WHERE end_time IS NOT NULL AND end_time <= ?
		)`, cutoff)
	if err != nil {
		return PruneResult{}, fmt.Errorf("prune logs: %w", err)
	}

	reqs, err := tx.ExecContext(ctx, `DELETE FROM requests WHERE end_time IS NOT NULL AND end_time <= ?`, cutoff)
	if err != nil {
		return PruneResult{}, fmt.Errorf("prune requests: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return PruneResult{}, fmt.Errorf("commit: %w", err)
	}

	var res PruneResult
	res.Logs, _ = logs.RowsAffected()
	res.Requests, _ = reqs.RowsAffected()

	j.logger.Info("Journal pruned",
		slog.Int64("requests", res.Requests),
		slog.Int64("logs", res.Logs),
		slog.Time("before", before),
	)

	return res, nil
}

// RecordContainer upserts the container seen by a job run.
func (j *Journal) RecordContainer(ctx context.Context, id uuid.UUID, path string, apps []string) error {
	encoded, err := json.Marshal(apps)
	if err != nil {
		return fmt.Errorf("encode apps: %w", err)
	}

	_, err = j.db.ExecContext(ctx,
		`INSERT INTO containers (container_id, container_path, container_apps) VALUES (?, ?, ?)
			ON CONFLICT(container_id) DO UPDATE SET container_path = excluded.container_path, container_apps = excluded.container_apps`,
		id.String(), path, string(encoded),
	)
	if err != nil {
		return fmt.Errorf("record container: %w", err)
	}

	return nil
}

func isConstraint(err error) bool {
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return false
	}

	// Primary result code; extended codes carry the constraint kind above it.
	return sqlErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
