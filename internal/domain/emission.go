package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EmissionStatus is the lifecycle of one invoice-submission attempt
type EmissionStatus string

const (
	EmissionPending              EmissionStatus = "pending"
	EmissionSubmitted            EmissionStatus = "submitted"
	EmissionAwaitingConfirmation EmissionStatus = "awaiting_confirmation"
	EmissionCompleted            EmissionStatus = "completed"
	EmissionRejected             EmissionStatus = "rejected"
	EmissionFailed               EmissionStatus = "failed"
)

// Terminal reports whether the emission reached a final status.
func (s EmissionStatus) Terminal() bool {
	switch s {
	case EmissionCompleted, EmissionRejected, EmissionFailed:
		return true
	}
	return false
}

// EmissionRecord tracks one confirmed attempt to submit an invoice to the
// external gateway. Exactly one record exists per correlation id.
type EmissionRecord struct {
	ID              uuid.UUID       `json:"id"`
	SessionID       string          `json:"session_id"`
	Address         string          `json:"address"`
	CorrelationID   string          `json:"correlation_id"`
	ExternalID      string          `json:"external_id,omitempty"`
	IssuerTaxID     string          `json:"issuer_tax_id"`
	PayerTaxID      string          `json:"payer_tax_id"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	Status          EmissionStatus  `json:"status"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	GatewayResponse json.RawMessage `json:"gateway_response,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	SubmittedAt     *time.Time      `json:"submitted_at,omitempty"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty"`
}

// EmissionRepository stores emission records.
//
// Create must be idempotent on the correlation id: the first call inserts
// and returns true, any later call for the same correlation id inserts
// nothing and returns false.
type EmissionRepository interface {
	Create(ctx context.Context, rec *EmissionRecord) (bool, error)
	Update(ctx context.Context, rec *EmissionRecord) error
	GetByCorrelationID(ctx context.Context, correlationID string) (*EmissionRecord, error)
	GetByExternalID(ctx context.Context, externalID string) (*EmissionRecord, error)
}

// InvoiceDocument is the finalized fiscal document created from a
// successful gateway outcome. The callback payload is kept verbatim for
// audit.
type InvoiceDocument struct {
	ID              uuid.UUID       `json:"id"`
	EmissionID      uuid.UUID       `json:"emission_id"`
	ExternalID      string          `json:"external_id"`
	Number          string          `json:"number"`
	Series          string          `json:"series,omitempty"`
	VerificationKey string          `json:"verification_key"`
	Protocol        string          `json:"protocol"`
	IssuerTaxID     string          `json:"issuer_tax_id"`
	PayerTaxID      string          `json:"payer_tax_id"`
	Amount          decimal.Decimal `json:"amount"`
	XMLURL          string          `json:"xml_url,omitempty"`
	PDFURL          string          `json:"pdf_url,omitempty"`
	CallbackPayload json.RawMessage `json:"callback_payload"`
	CreatedAt       time.Time       `json:"created_at"`
}

// DocumentRepository stores finalized invoice documents. Create is
// idempotent per emission: duplicate callback deliveries must not produce
// a second document.
type DocumentRepository interface {
	Create(ctx context.Context, doc *InvoiceDocument) error
	GetByEmissionID(ctx context.Context, emissionID uuid.UUID) (*InvoiceDocument, error)
}
