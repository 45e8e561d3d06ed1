package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "holdright/pkg/domain"
	txcontext "holdright/pkg/platform/tx"
)

// PostgresStore persists audit entries and mirrors each append into an
// outbox table. The outbox relay publishes rows to Kafka; the audit_entries
// table stays the queryable materialization.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka.
type outboxPayload struct {
	ID          string `json:"id"`
	HoldID      string `json:"hold_id"`
	Seq         int64  `json:"seq"`
	Category    string `json:"category"`
	Action      string `json:"action"`
	Actor       string `json:"actor,omitempty"`
	Timestamp   string `json:"timestamp"`
	Detail      string `json:"detail,omitempty"`
	CorrectsSeq *int64 `json:"corrects_seq,omitempty"`
}

// Append inserts the entry with the next per-hold sequence number and queues
// an outbox row. Callers run Append inside the hold's lock (and, with a tx
// in context, the same transaction as the state change), which keeps the
// sequence gapless.
func (s *PostgresStore) Append(ctx context.Context, entry Entry) (Entry, error) {
	exec := s.execer(ctx)

	err := exec.QueryRowContext(ctx, `
		INSERT INTO audit_entries (id, hold_id, seq, category, action, actor, ts, detail, corrects_seq)
		VALUES ($1, $2,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM audit_entries WHERE hold_id = $2),
			$3, $4, $5, $6, $7, $8)
		RETURNING seq
	`, entry.ID, uuid.UUID(entry.HoldID), string(entry.Action.Category()),
		string(entry.Action), entry.Actor, entry.Timestamp, entry.Detail, entry.CorrectsSeq,
	).Scan(&entry.Seq)
	if err != nil {
		return Entry{}, fmt.Errorf("insert audit entry: %w", err)
	}

	payload := outboxPayload{
		ID:          entry.ID.String(),
		HoldID:      entry.HoldID.String(),
		Seq:         entry.Seq,
		Category:    string(entry.Action.Category()),
		Action:      string(entry.Action),
		Actor:       entry.Actor,
		Timestamp:   entry.Timestamp.Format(time.RFC3339Nano),
		Detail:      entry.Detail,
		CorrectsSeq: entry.CorrectsSeq,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal outbox payload: %w", err)
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO audit_outbox (id, hold_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.New(), uuid.UUID(entry.HoldID), payloadBytes, time.Now())
	if err != nil {
		return Entry{}, fmt.Errorf("insert outbox row: %w", err)
	}

	return entry, nil
}

// List returns matching entries in ascending sequence order.
func (s *PostgresStore) List(ctx context.Context, holdID id.HoldID, filter Filter) ([]Entry, error) {
	query := `
		SELECT id, hold_id, seq, action, actor, ts, detail, corrects_seq
		FROM audit_entries
		WHERE hold_id = $1
	`
	args := []any{uuid.UUID(holdID)}
	n := 2
	if filter.Actor != "" {
		query += fmt.Sprintf(" AND actor = $%d", n)
		args = append(args, filter.Actor)
		n++
	}
	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", n)
		args = append(args, string(filter.Action))
		n++
	}
	if !filter.From.IsZero() {
		query += fmt.Sprintf(" AND ts >= $%d", n)
		args = append(args, filter.From)
		n++
	}
	if !filter.To.IsZero() {
		query += fmt.Sprintf(" AND ts <= $%d", n)
		args = append(args, filter.To)
		n++
	}
	query += " ORDER BY seq ASC"

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			holdU  uuid.UUID
			action string
		)
		if err := rows.Scan(&e.ID, &holdU, &e.Seq, &action, &e.Actor, &e.Timestamp, &e.Detail, &e.CorrectsSeq); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.HoldID = id.HoldID(holdU)
		e.Action = Action(action)
		out = append(out, e)
	}
	return out, rows.Err()
}
