package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/notafacil/nfse-agent/internal/domain"
)

// EmissionRepository is the Postgres-backed store of emission attempts.
type EmissionRepository struct {
	db *DB
}

// NewEmissionRepository creates a new emission repository
func NewEmissionRepository(db *DB) *EmissionRepository {
	return &EmissionRepository{db: db}
}

// Create inserts the emission record. The unique constraint on
// correlation_id makes this the at-most-once gate: the first caller
// inserts and gets true, every later caller gets false with no row
// written.
func (r *EmissionRepository) Create(ctx context.Context, rec *domain.EmissionRecord) (bool, error) {
	query := `
		INSERT INTO emissions (
			id, session_id, address, correlation_id, external_id,
			issuer_tax_id, payer_tax_id, amount, description,
			status, payload, gateway_response, error_message,
			created_at, submitted_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (correlation_id) DO NOTHING
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		rec.ID, rec.SessionID, rec.Address, rec.CorrelationID, rec.ExternalID,
		rec.IssuerTaxID, rec.PayerTaxID, rec.Amount, rec.Description,
		rec.Status, rec.Payload, rec.GatewayResponse, rec.ErrorMessage,
		rec.CreatedAt, rec.SubmittedAt, rec.FinishedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create emission: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Update writes the mutable portion of an emission record
func (r *EmissionRepository) Update(ctx context.Context, rec *domain.EmissionRecord) error {
	query := `
		UPDATE emissions
		SET external_id = $2, status = $3, payload = $4,
			gateway_response = $5, error_message = $6,
			submitted_at = $7, finished_at = $8
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		rec.ID, rec.ExternalID, rec.Status, rec.Payload,
		rec.GatewayResponse, rec.ErrorMessage,
		rec.SubmittedAt, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update emission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEmissionNotFound
	}
	return nil
}

// GetByCorrelationID retrieves an emission by its correlation id
func (r *EmissionRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*domain.EmissionRecord, error) {
	return r.getBy(ctx, "correlation_id", correlationID)
}

// GetByExternalID retrieves an emission by the gateway-assigned id
func (r *EmissionRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.EmissionRecord, error) {
	return r.getBy(ctx, "external_id", externalID)
}

func (r *EmissionRepository) getBy(ctx context.Context, column, value string) (*domain.EmissionRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, session_id, address, correlation_id, external_id,
			issuer_tax_id, payer_tax_id, amount, description,
			status, payload, gateway_response, error_message,
			created_at, submitted_at, finished_at
		FROM emissions
		WHERE %s = $1
	`, column)

	var rec domain.EmissionRecord
	err := r.db.Pool.QueryRow(ctx, query, value).Scan(
		&rec.ID, &rec.SessionID, &rec.Address, &rec.CorrelationID, &rec.ExternalID,
		&rec.IssuerTaxID, &rec.PayerTaxID, &rec.Amount, &rec.Description,
		&rec.Status, &rec.Payload, &rec.GatewayResponse, &rec.ErrorMessage,
		&rec.CreatedAt, &rec.SubmittedAt, &rec.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEmissionNotFound
		}
		return nil, fmt.Errorf("failed to get emission: %w", err)
	}
	return &rec, nil
}
