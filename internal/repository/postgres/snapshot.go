package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/notafacil/nfse-agent/internal/domain"
)

// SnapshotRepository is the Postgres-backed durable session store.
type SnapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Upsert writes the snapshot row for a session, inserting on first sight
// and updating in place afterwards.
func (r *SnapshotRepository) Upsert(ctx context.Context, snap *domain.SessionSnapshot) error {
	query := `
		INSERT INTO session_snapshots (
			session_id, address, state,
			tax_id_status, tax_id, tax_id_issue,
			amount_status, amount, amount_issue,
			description_status, description, description_issue,
			data_complete, correlation_id, reason,
			interactions, assistant_messages, extraction_calls,
			ttl_seconds, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21
		)
		ON CONFLICT (session_id) DO UPDATE SET
			state = EXCLUDED.state,
			tax_id_status = EXCLUDED.tax_id_status,
			tax_id = EXCLUDED.tax_id,
			tax_id_issue = EXCLUDED.tax_id_issue,
			amount_status = EXCLUDED.amount_status,
			amount = EXCLUDED.amount,
			amount_issue = EXCLUDED.amount_issue,
			description_status = EXCLUDED.description_status,
			description = EXCLUDED.description,
			description_issue = EXCLUDED.description_issue,
			data_complete = EXCLUDED.data_complete,
			correlation_id = EXCLUDED.correlation_id,
			reason = EXCLUDED.reason,
			interactions = EXCLUDED.interactions,
			assistant_messages = EXCLUDED.assistant_messages,
			extraction_calls = EXCLUDED.extraction_calls,
			ttl_seconds = EXCLUDED.ttl_seconds,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Pool.Exec(ctx, query,
		snap.SessionID, snap.Address, snap.State,
		snap.TaxIDStatus, snap.TaxID, snap.TaxIDIssue,
		snap.AmountStatus, snap.Amount, snap.AmountIssue,
		snap.DescStatus, snap.Description, snap.DescriptionIssue,
		snap.Complete, snap.CorrelationID, snap.Reason,
		snap.Interactions, snap.AssistantMessages, snap.ExtractionCalls,
		snap.TTLSeconds, snap.CreatedAt, snap.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// AppendMessages writes the conversation log for a session. Rows are
// keyed by (session_id, ord) where ord is the turn's position in the
// log; positions already written are skipped, never rewritten.
func (r *SnapshotRepository) AppendMessages(ctx context.Context, sessionID string, turns []domain.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	query := `
		INSERT INTO session_messages (session_id, ord, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, ord) DO NOTHING
	`

	batch := &pgx.Batch{}
	for ord, turn := range turns {
		batch.Queue(query, sessionID, ord, turn.Role, turn.Content, turn.Timestamp)
	}

	results := r.db.Pool.SendBatch(ctx, batch)
	defer results.Close()

	for range turns {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to append messages: %w", err)
		}
	}
	return nil
}

// GetBySessionID retrieves the snapshot for a session
func (r *SnapshotRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.SessionSnapshot, error) {
	query := `
		SELECT session_id, address, state,
			tax_id_status, tax_id, tax_id_issue,
			amount_status, amount, amount_issue,
			description_status, description, description_issue,
			data_complete, correlation_id, reason,
			interactions, assistant_messages, extraction_calls,
			ttl_seconds, created_at, updated_at
		FROM session_snapshots
		WHERE session_id = $1
	`

	snap, err := scanSnapshot(r.db.Pool.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return snap, nil
}

// ListMessages retrieves the full conversation log in order.
func (r *SnapshotRepository) ListMessages(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	query := `
		SELECT role, content, created_at
		FROM session_messages
		WHERE session_id = $1
		ORDER BY ord ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		if err := rows.Scan(&t.Role, &t.Content, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// List retrieves snapshots ordered by most recent activity
func (r *SnapshotRepository) List(ctx context.Context, limit, offset int) ([]domain.SessionSnapshot, error) {
	query := `
		SELECT session_id, address, state,
			tax_id_status, tax_id, tax_id_issue,
			amount_status, amount, amount_issue,
			description_status, description, description_issue,
			data_complete, correlation_id, reason,
			interactions, assistant_messages, extraction_calls,
			ttl_seconds, created_at, updated_at
		FROM session_snapshots
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.SessionSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, *snap)
	}
	return snaps, rows.Err()
}

// UpdateState moves the snapshot to a new state without touching the
// collected fields. Used by the callback path, which holds no live
// session.
func (r *SnapshotRepository) UpdateState(ctx context.Context, sessionID string, state domain.SessionState, reason domain.SnapshotReason, now time.Time) error {
	query := `
		UPDATE session_snapshots
		SET state = $2, reason = $3, updated_at = $4
		WHERE session_id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, sessionID, state, reason, now.UTC())
	if err != nil {
		return fmt.Errorf("failed to update snapshot state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// ExpireStale marks every expirable snapshot whose TTL has elapsed as
// expired and returns how many rows changed. Terminal states are left
// alone, and so are processing sessions: their emission is still awaiting
// a gateway answer.
func (r *SnapshotRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE session_snapshots
		SET state = $1, reason = $2, updated_at = $3
		WHERE state NOT IN ($4, $5, $6, $7, $8, $9)
		  AND updated_at + (ttl_seconds * INTERVAL '1 second') <= $3
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		domain.StateExpired, domain.ReasonExpired, now.UTC(),
		domain.StateApproved, domain.StateRejected, domain.StateError,
		domain.StateCancelled, domain.StateExpired, domain.StateProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*domain.SessionSnapshot, error) {
	var snap domain.SessionSnapshot
	err := row.Scan(
		&snap.SessionID, &snap.Address, &snap.State,
		&snap.TaxIDStatus, &snap.TaxID, &snap.TaxIDIssue,
		&snap.AmountStatus, &snap.Amount, &snap.AmountIssue,
		&snap.DescStatus, &snap.Description, &snap.DescriptionIssue,
		&snap.Complete, &snap.CorrelationID, &snap.Reason,
		&snap.Interactions, &snap.AssistantMessages, &snap.ExtractionCalls,
		&snap.TTLSeconds, &snap.CreatedAt, &snap.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	snap.MissingFields = missingFromStatuses(&snap)
	snap.InvalidFields = invalidFromSnapshot(&snap)
	return &snap, nil
}

func missingFromStatuses(snap *domain.SessionSnapshot) []string {
	missing := []string{}
	isMissing := func(s domain.FieldStatus) bool {
		return s == domain.FieldAbsent || s == domain.FieldExtracted
	}
	if isMissing(snap.TaxIDStatus) {
		missing = append(missing, domain.FieldTaxID)
	}
	if isMissing(snap.AmountStatus) {
		missing = append(missing, domain.FieldAmount)
	}
	if isMissing(snap.DescStatus) {
		missing = append(missing, domain.FieldDescription)
	}
	return missing
}

func invalidFromSnapshot(snap *domain.SessionSnapshot) []string {
	invalid := []string{}
	if snap.TaxIDStatus == domain.FieldInvalid {
		invalid = append(invalid, domain.FieldTaxID+": "+snap.TaxIDIssue)
	}
	if snap.AmountStatus == domain.FieldInvalid {
		invalid = append(invalid, domain.FieldAmount+": "+snap.AmountIssue)
	}
	if snap.DescStatus == domain.FieldInvalid {
		invalid = append(invalid, domain.FieldDescription+": "+snap.DescriptionIssue)
	}
	return invalid
}
