package audit

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PGStore persists audit entries in Postgres.
//
// Schema:
//
//	create table audit_log (
//	    request_id    text primary key,
//	    occurred_at   timestamptz not null,
//	    method        text not null,
//	    url           text not null,
//	    actor_id      text,
//	    sensitivity   text not null,
//	    request_body  jsonb,
//	    response_body jsonb,
//	    status        text not null,
//	    duration_ms   bigint not null default 0,
//	    error         text
//	);
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// OpenPG opens a pooled connection to the audit database.
func OpenPG(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PGStore{db: db}, nil
}

// NewPGStore wraps an existing handle (used by tests).
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

// Close releases the pool.
func (s *PGStore) Close() error { return s.db.Close() }

// DB exposes the handle for readiness probes.
func (s *PGStore) DB() *sql.DB { return s.db }

func (s *PGStore) CreatePending(ctx context.Context, e *Entry) error {
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log(request_id, occurred_at, method, url, actor_id, sensitivity, request_body, status)
		values ($1, $2, $3, $4, nullif($5, ''), $6, $7, $8)
		on conflict (request_id) do nothing
	`, e.RequestID, e.Timestamp, e.Method, e.URL, e.ActorID, string(e.Sensitivity), nullableJSON(e.RequestBody), string(StatusPending))
	return err
}

func (s *PGStore) Finalize(ctx context.Context, requestID string, final Final) error {
	_, err := s.db.ExecContext(ctx, `
		update audit_log
		set status = $2, response_body = $3, duration_ms = $4, error = nullif($5, '')
		where request_id = $1
	`, requestID, string(final.Status), nullableJSON(final.ResponseBody), final.DurationMs, final.Error)
	return err
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
