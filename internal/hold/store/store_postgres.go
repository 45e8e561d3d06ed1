package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"holdright/internal/hold"
	"holdright/pkg/domain"
	"holdright/pkg/platform/sentinel"
	txcontext "holdright/pkg/platform/tx"
)

// PostgresStore persists holds across two tables: legal_holds for the
// aggregate and hold_custodians for the ledger. Save rewrites both inside
// the caller's transaction when one is carried on the context.
type PostgresStore struct {
	db *sql.DB
}

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

const holdColumns = `id, name, case_ref, description, legal_basis, scope,
	data_categories, evidence, status, cadence, template_ref,
	issued_at, effective_until, released_at,
	total_custodians, acknowledged_custodians, compliance_rate,
	created_at, updated_at`

const custodianColumns = `email, display_name, department, title, state, released,
	notified_at, acknowledged_at, ack_method, last_reminder_at, reminder_count,
	escalated_to, escalated_at, non_compliant_reason, interviewed_at,
	released_at, released_reason`

func (s *PostgresStore) Create(ctx context.Context, h *hold.Hold) error {
	exec := s.execer(ctx)

	var exists bool
	if err := exec.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM legal_holds WHERE id = $1)`, uuid.UUID(h.ID),
	).Scan(&exists); err != nil {
		return fmt.Errorf("check hold existence: %w", err)
	}
	if exists {
		return sentinel.ErrConflict
	}
	return s.write(ctx, exec, h, true)
}

func (s *PostgresStore) Save(ctx context.Context, h *hold.Hold) error {
	exec := s.execer(ctx)

	var exists bool
	if err := exec.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM legal_holds WHERE id = $1)`, uuid.UUID(h.ID),
	).Scan(&exists); err != nil {
		return fmt.Errorf("check hold existence: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return s.write(ctx, exec, h, false)
}

func (s *PostgresStore) write(ctx context.Context, exec dbExecutor, h *hold.Hold, insert bool) error {
	categories, err := json.Marshal(h.DataCategories)
	if err != nil {
		return fmt.Errorf("encode data categories: %w", err)
	}
	evidence, err := json.Marshal(h.Evidence)
	if err != nil {
		return fmt.Errorf("encode evidence refs: %w", err)
	}

	if insert {
		_, err = exec.ExecContext(ctx, `
			INSERT INTO legal_holds (`+holdColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		`, uuid.UUID(h.ID), h.Name, string(h.CaseRef), h.Description, h.LegalBasis, h.Scope,
			categories, evidence, string(h.Status), string(h.Cadence), h.TemplateRef,
			h.IssuedAt, h.EffectiveUntil, h.ReleasedAt,
			h.TotalCustodians, h.AcknowledgedCustodians, h.ComplianceRate,
			h.CreatedAt, h.UpdatedAt)
	} else {
		_, err = exec.ExecContext(ctx, `
			UPDATE legal_holds SET
				name = $2, case_ref = $3, description = $4, legal_basis = $5, scope = $6,
				data_categories = $7, evidence = $8, status = $9, cadence = $10, template_ref = $11,
				issued_at = $12, effective_until = $13, released_at = $14,
				total_custodians = $15, acknowledged_custodians = $16, compliance_rate = $17,
				updated_at = $18
			WHERE id = $1
		`, uuid.UUID(h.ID), h.Name, string(h.CaseRef), h.Description, h.LegalBasis, h.Scope,
			categories, evidence, string(h.Status), string(h.Cadence), h.TemplateRef,
			h.IssuedAt, h.EffectiveUntil, h.ReleasedAt,
			h.TotalCustodians, h.AcknowledgedCustodians, h.ComplianceRate,
			h.UpdatedAt)
	}
	if err != nil {
		return fmt.Errorf("write hold: %w", err)
	}

	for _, c := range h.Custodians {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO hold_custodians (hold_id, `+custodianColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			ON CONFLICT (hold_id, email) DO UPDATE SET
				display_name = EXCLUDED.display_name,
				department = EXCLUDED.department,
				title = EXCLUDED.title,
				state = EXCLUDED.state,
				released = EXCLUDED.released,
				notified_at = EXCLUDED.notified_at,
				acknowledged_at = EXCLUDED.acknowledged_at,
				ack_method = EXCLUDED.ack_method,
				last_reminder_at = EXCLUDED.last_reminder_at,
				reminder_count = EXCLUDED.reminder_count,
				escalated_to = EXCLUDED.escalated_to,
				escalated_at = EXCLUDED.escalated_at,
				non_compliant_reason = EXCLUDED.non_compliant_reason,
				interviewed_at = EXCLUDED.interviewed_at,
				released_at = EXCLUDED.released_at,
				released_reason = EXCLUDED.released_reason
		`, uuid.UUID(h.ID), c.Email, c.DisplayName, c.Department, c.Title, string(c.State), c.Released,
			c.NotifiedAt, c.AcknowledgedAt, string(c.AckMethod), c.LastReminderAt, c.ReminderCount,
			c.EscalatedTo, c.EscalatedAt, c.NonCompliantReason, c.InterviewedAt,
			c.ReleasedAt, c.ReleasedReason)
		if err != nil {
			return fmt.Errorf("write custodian %s: %w", c.Email, err)
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.HoldID) (*hold.Hold, error) {
	exec := s.execer(ctx)

	row := exec.QueryRowContext(ctx,
		`SELECT `+holdColumns+` FROM legal_holds WHERE id = $1`, uuid.UUID(id))
	h, err := scanHold(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadCustodians(ctx, exec, h); err != nil {
		return nil, err
	}
	return h, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*hold.Hold, error) {
	exec := s.execer(ctx)

	rows, err := exec.QueryContext(ctx,
		`SELECT `+holdColumns+` FROM legal_holds ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list holds: %w", err)
	}
	defer rows.Close()

	var out []*hold.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holds: %w", err)
	}

	for _, h := range out {
		if err := s.loadCustodians(ctx, exec, h); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHold(row rowScanner) (*hold.Hold, error) {
	var (
		h          hold.Hold
		rawID      uuid.UUID
		caseRef    string
		categories []byte
		evidence   []byte
		status     string
		cadence    string
	)
	err := row.Scan(&rawID, &h.Name, &caseRef, &h.Description, &h.LegalBasis, &h.Scope,
		&categories, &evidence, &status, &cadence, &h.TemplateRef,
		&h.IssuedAt, &h.EffectiveUntil, &h.ReleasedAt,
		&h.TotalCustodians, &h.AcknowledgedCustodians, &h.ComplianceRate,
		&h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan hold: %w", err)
	}

	h.ID = domain.HoldID(rawID)
	h.CaseRef = domain.CaseRef(caseRef)
	if err := json.Unmarshal(categories, &h.DataCategories); err != nil {
		return nil, fmt.Errorf("decode data categories: %w", err)
	}
	if err := json.Unmarshal(evidence, &h.Evidence); err != nil {
		return nil, fmt.Errorf("decode evidence refs: %w", err)
	}
	h.Status, err = domain.ParseHoldStatus(status)
	if err != nil {
		return nil, fmt.Errorf("hold %s: %w", h.ID, err)
	}
	h.Cadence, err = domain.ParseCadence(cadence)
	if err != nil {
		return nil, fmt.Errorf("hold %s: %w", h.ID, err)
	}
	return &h, nil
}

func (s *PostgresStore) loadCustodians(ctx context.Context, exec dbExecutor, h *hold.Hold) error {
	rows, err := exec.QueryContext(ctx,
		`SELECT `+custodianColumns+` FROM hold_custodians WHERE hold_id = $1 ORDER BY email ASC`,
		uuid.UUID(h.ID))
	if err != nil {
		return fmt.Errorf("load custodians: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c         hold.Custodian
			state     string
			ackMethod string
		)
		err := rows.Scan(&c.Email, &c.DisplayName, &c.Department, &c.Title, &state, &c.Released,
			&c.NotifiedAt, &c.AcknowledgedAt, &ackMethod, &c.LastReminderAt, &c.ReminderCount,
			&c.EscalatedTo, &c.EscalatedAt, &c.NonCompliantReason, &c.InterviewedAt,
			&c.ReleasedAt, &c.ReleasedReason)
		if err != nil {
			return fmt.Errorf("scan custodian: %w", err)
		}
		c.State, err = domain.ParseCustodianState(state)
		if err != nil {
			return fmt.Errorf("custodian %s: %w", c.Email, err)
		}
		c.AckMethod = domain.AckMethod(ackMethod)
		cc := c
		h.Custodians = append(h.Custodians, &cc)
	}
	return rows.Err()
}

// Schema is the DDL the store expects. Deployments apply it through their
// migration tooling; integration tests apply it directly.
const Schema = `
CREATE TABLE IF NOT EXISTS legal_holds (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	case_ref TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	legal_basis TEXT NOT NULL DEFAULT '',
	scope TEXT NOT NULL DEFAULT '',
	data_categories JSONB NOT NULL DEFAULT '[]',
	evidence JSONB NOT NULL DEFAULT '[]',
	status TEXT NOT NULL,
	cadence TEXT NOT NULL,
	template_ref TEXT NOT NULL DEFAULT '',
	issued_at TIMESTAMPTZ,
	effective_until TIMESTAMPTZ,
	released_at TIMESTAMPTZ,
	total_custodians INT NOT NULL DEFAULT 0,
	acknowledged_custodians INT NOT NULL DEFAULT 0,
	compliance_rate INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS hold_custodians (
	hold_id UUID NOT NULL REFERENCES legal_holds (id),
	email TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	department TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL,
	released BOOLEAN NOT NULL DEFAULT FALSE,
	notified_at TIMESTAMPTZ,
	acknowledged_at TIMESTAMPTZ,
	ack_method TEXT NOT NULL DEFAULT '',
	last_reminder_at TIMESTAMPTZ,
	reminder_count INT NOT NULL DEFAULT 0,
	escalated_to TEXT NOT NULL DEFAULT '',
	escalated_at TIMESTAMPTZ,
	non_compliant_reason TEXT NOT NULL DEFAULT '',
	interviewed_at TIMESTAMPTZ,
	released_at TIMESTAMPTZ,
	released_reason TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (hold_id, email)
);
`

