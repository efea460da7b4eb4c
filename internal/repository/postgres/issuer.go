package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/notafacil/nfse-agent/internal/domain"
)

// IssuerDirectory resolves issuer profiles from Postgres. A partial
// unique index guarantees at most one active profile per address.
type IssuerDirectory struct {
	db *DB
}

// NewIssuerDirectory creates a new issuer directory
func NewIssuerDirectory(db *DB) *IssuerDirectory {
	return &IssuerDirectory{db: db}
}

// FindActiveByAddress retrieves the active issuer for an address
func (r *IssuerDirectory) FindActiveByAddress(ctx context.Context, address string) (*domain.IssuerProfile, error) {
	query := `
		SELECT id, address, contact_name, company_tax_id, company_name,
			service_code, taxation_code, cnae, iss_rate, active
		FROM issuer_profiles
		WHERE address = $1 AND active = TRUE
	`

	var p domain.IssuerProfile
	err := r.db.Pool.QueryRow(ctx, query, address).Scan(
		&p.ID, &p.Address, &p.ContactName, &p.CompanyTaxID, &p.CompanyName,
		&p.ServiceCode, &p.TaxationCode, &p.CNAE, &p.ISSRate, &p.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIssuerNotFound
		}
		return nil, fmt.Errorf("failed to find issuer: %w", err)
	}
	return &p, nil
}
