package extract

import (
	"context"

	"github.com/notafacil/nfse-agent/internal/domain"
)

// CandidateStatus is what the extraction engine reports for one
// field-group in one message.
type CandidateStatus string

const (
	// CandidatePresent means a parseable value was found in the message.
	CandidatePresent CandidateStatus = "present"
	// CandidateUnparseable means the user attempted to supply the field
	// but the value could not be parsed.
	CandidateUnparseable CandidateStatus = "unparseable"
	// CandidateAbsent means the message did not mention the field.
	CandidateAbsent CandidateStatus = "absent"
)

// Candidate is one field-group candidate from the extraction engine.
type Candidate struct {
	Status CandidateStatus `json:"status"`
	Value  string          `json:"value,omitempty"`
}

// Attempted reports whether the user tried to supply this field.
func (c Candidate) Attempted() bool {
	return c.Status == CandidatePresent || c.Status == CandidateUnparseable
}

// Extraction is the per-message output of the extraction engine: one
// candidate per field-group plus an optional clarification to relay to
// the user while the record is still incomplete.
type Extraction struct {
	TaxID         Candidate `json:"cnpj"`
	Amount        Candidate `json:"valor"`
	Description   Candidate `json:"descricao"`
	Clarification string    `json:"clarification,omitempty"`
}

// Extractor is the outbound port to the natural-language extraction
// engine. Calls must be idempotent from the core's perspective: repeating
// a call with identical input has no side effects.
type Extractor interface {
	Extract(ctx context.Context, text string, prior domain.InvoiceData) (*Extraction, error)
}
