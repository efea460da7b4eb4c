package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/notafacil/nfse-agent/internal/domain"
)

// CounterpartyRepository caches registry lookups by normalized tax id.
type CounterpartyRepository struct {
	db *DB
}

// NewCounterpartyRepository creates a new counterparty repository
func NewCounterpartyRepository(db *DB) *CounterpartyRepository {
	return &CounterpartyRepository{db: db}
}

// GetByTaxID retrieves a cached counterparty
func (r *CounterpartyRepository) GetByTaxID(ctx context.Context, taxID string) (*domain.Counterparty, error) {
	query := `
		SELECT tax_id, legal_name, trade_name, email,
			zip, street, number, complement, district,
			city, city_code, state, registry_raw, created_at
		FROM counterparties
		WHERE tax_id = $1
	`

	var c domain.Counterparty
	err := r.db.Pool.QueryRow(ctx, query, taxID).Scan(
		&c.TaxID, &c.LegalName, &c.TradeName, &c.Email,
		&c.Zip, &c.Street, &c.Number, &c.Complement, &c.District,
		&c.City, &c.CityCode, &c.State, &c.RegistryRaw, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCounterpartyNotFound
		}
		return nil, fmt.Errorf("failed to get counterparty: %w", err)
	}
	return &c, nil
}

// Save caches a counterparty, overwriting any previous entry for the
// same tax id.
func (r *CounterpartyRepository) Save(ctx context.Context, c *domain.Counterparty) error {
	query := `
		INSERT INTO counterparties (
			tax_id, legal_name, trade_name, email,
			zip, street, number, complement, district,
			city, city_code, state, registry_raw, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (tax_id) DO UPDATE SET
			legal_name = EXCLUDED.legal_name,
			trade_name = EXCLUDED.trade_name,
			email = EXCLUDED.email,
			zip = EXCLUDED.zip,
			street = EXCLUDED.street,
			number = EXCLUDED.number,
			complement = EXCLUDED.complement,
			district = EXCLUDED.district,
			city = EXCLUDED.city,
			city_code = EXCLUDED.city_code,
			state = EXCLUDED.state,
			registry_raw = EXCLUDED.registry_raw
	`

	_, err := r.db.Pool.Exec(ctx, query,
		c.TaxID, c.LegalName, c.TradeName, c.Email,
		c.Zip, c.Street, c.Number, c.Complement, c.District,
		c.City, c.CityCode, c.State, c.RegistryRaw, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save counterparty: %w", err)
	}
	return nil
}
