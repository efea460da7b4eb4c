package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/notafacil/nfse-agent/internal/domain"
)

// DocumentRepository stores finalized invoice documents.
type DocumentRepository struct {
	db *DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts the document. The unique constraint on emission_id
// absorbs duplicate callback deliveries.
func (r *DocumentRepository) Create(ctx context.Context, doc *domain.InvoiceDocument) error {
	query := `
		INSERT INTO invoice_documents (
			id, emission_id, external_id, number, series,
			verification_key, protocol, issuer_tax_id, payer_tax_id,
			amount, xml_url, pdf_url, callback_payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (emission_id) DO NOTHING
	`

	_, err := r.db.Pool.Exec(ctx, query,
		doc.ID, doc.EmissionID, doc.ExternalID, doc.Number, doc.Series,
		doc.VerificationKey, doc.Protocol, doc.IssuerTaxID, doc.PayerTaxID,
		doc.Amount, doc.XMLURL, doc.PDFURL, doc.CallbackPayload, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetByEmissionID retrieves the document for an emission
func (r *DocumentRepository) GetByEmissionID(ctx context.Context, emissionID uuid.UUID) (*domain.InvoiceDocument, error) {
	query := `
		SELECT id, emission_id, external_id, number, series,
			verification_key, protocol, issuer_tax_id, payer_tax_id,
			amount, xml_url, pdf_url, callback_payload, created_at
		FROM invoice_documents
		WHERE emission_id = $1
	`

	var doc domain.InvoiceDocument
	err := r.db.Pool.QueryRow(ctx, query, emissionID).Scan(
		&doc.ID, &doc.EmissionID, &doc.ExternalID, &doc.Number, &doc.Series,
		&doc.VerificationKey, &doc.Protocol, &doc.IssuerTaxID, &doc.PayerTaxID,
		&doc.Amount, &doc.XMLURL, &doc.PDFURL, &doc.CallbackPayload, &doc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document not found for emission %s", emissionID)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}
