package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a request id has no row.
var ErrNotFound = errors.New("request not found")

const requestColumns = `request_id, api_version, origin, destination, payload, start_time, end_time`

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(s scanner) (RequestRecord, error) {
	var (
		rec     RequestRecord
		id      string
		payload sql.NullString
		start   int64
		end     sql.NullInt64
	)

	if err := s.Scan(&id, &rec.APIVersion, &rec.Origin, &rec.Destination, &payload, &start, &end); err != nil {
		return RequestRecord{}, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return RequestRecord{}, fmt.Errorf("parse request id %q: %w", id, err)
	}

	rec.RequestID = parsed
	rec.Payload = payload.String
	rec.StartTime = time.Unix(start, 0).UTC()

	if end.Valid {
		t := time.Unix(end.Int64, 0).UTC()
		rec.EndTime = &t
	}

	return rec, nil
}

// Requests lists the most recent requests first. limit <= 0 returns all.
func (j *Journal) Requests(ctx context.Context, limit int) ([]RequestRecord, error) {
	query := `SELECT ` + requestColumns + ` FROM requests ORDER BY start_time DESC, request_id`

	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`

		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RequestRecord

	for rows.Next() {
		rec, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}

		out = append(out, rec)
	}

	return out, rows.Err()
}

// Request returns one request row.
func (j *Journal) Request(ctx context.Context, id uuid.UUID) (RequestRecord, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE request_id = ?`, id.String())

	rec, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RequestRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err != nil {
		return RequestRecord{}, fmt.Errorf("read request: %w", err)
	}

	return rec, nil
}

// Logs returns the log rows of one request in insertion order.
func (j *Journal) Logs(ctx context.Context, id uuid.UUID) ([]LogRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, stream_type, time_stamp, raw_line, json_payload FROM logs WHERE request_id = ? ORDER BY id`,
		id.String())
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []LogRecord

	for rows.Next() {
		var (
			rec     LogRecord
			stream  string
			ts      int64
			raw     sql.NullString
			payload sql.NullString
		)

		if err := rows.Scan(&rec.ID, &stream, &ts, &raw, &payload); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}

		rec.RequestID = id
		rec.Stream = Stream(stream)
		rec.Time = time.Unix(ts, 0).UTC()
		rec.Raw = raw.String

		if payload.Valid {
			p := payload.String
			rec.Payload = &p
		}

		out = append(out, rec)
	}

	return out, rows.Err()
}

// CountLogs returns the total number of log rows.
func (j *Journal) CountLogs(ctx context.Context) (int64, error) {
	var n int64
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count logs: %w", err)
	}

	return n, nil
}
