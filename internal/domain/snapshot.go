package domain

import (
	"context"
	"time"
)

// SessionSnapshot is the durable, audit-oriented materialization of a
// session. One row exists per session and is updated in place as the
// session evolves; it is never deleted. The flat shape is readable by the
// reporting console without the core's in-process types.
type SessionSnapshot struct {
	SessionID string       `json:"session_id"`
	Address   string       `json:"address"`
	State     SessionState `json:"state"`

	TaxIDStatus      FieldStatus `json:"cnpj_status"`
	TaxID            string      `json:"cnpj,omitempty"`
	TaxIDIssue       string      `json:"cnpj_issue,omitempty"`
	AmountStatus     FieldStatus `json:"valor_status"`
	Amount           string      `json:"valor,omitempty"`
	AmountIssue      string      `json:"valor_issue,omitempty"`
	DescStatus       FieldStatus `json:"descricao_status"`
	Description      string      `json:"descricao,omitempty"`
	DescriptionIssue string      `json:"descricao_issue,omitempty"`

	Complete      bool     `json:"data_complete"`
	MissingFields []string `json:"missing_fields"`
	InvalidFields []string `json:"invalid_fields"`

	Interactions      int `json:"interactions"`
	AssistantMessages int `json:"assistant_messages"`
	ExtractionCalls   int `json:"extraction_calls"`

	CorrelationID string         `json:"correlation_id,omitempty"`
	Reason        SnapshotReason `json:"reason"`
	TTLSeconds    int            `json:"ttl_seconds"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Snapshot materializes the session into its durable flat shape.
func (s *Session) Snapshot(reason SnapshotReason) *SessionSnapshot {
	fieldStatus := func(f FieldGroup) FieldStatus {
		if f.Status == "" {
			return FieldAbsent
		}
		return f.Status
	}
	return &SessionSnapshot{
		SessionID:         s.ID,
		Address:           s.Address,
		State:             s.State,
		TaxIDStatus:       fieldStatus(s.Invoice.TaxID),
		TaxID:             s.Invoice.TaxID.Normalized,
		TaxIDIssue:        s.Invoice.TaxID.Issue,
		AmountStatus:      fieldStatus(s.Invoice.Amount),
		Amount:            s.Invoice.Amount.Normalized,
		AmountIssue:       s.Invoice.Amount.Issue,
		DescStatus:        fieldStatus(s.Invoice.Description),
		Description:       s.Invoice.Description.Normalized,
		DescriptionIssue:  s.Invoice.Description.Issue,
		Complete:          s.Invoice.Complete(),
		MissingFields:     s.Invoice.MissingFields(),
		InvalidFields:     s.Invoice.InvalidFields(),
		Interactions:      s.Counters.Interactions,
		AssistantMessages: s.Counters.AssistantMessages,
		ExtractionCalls:   s.Counters.ExtractionCalls,
		CorrelationID:     s.CorrelationID,
		Reason:            reason,
		TTLSeconds:        s.TTLSeconds,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

// SnapshotRepository persists session snapshots and their conversation
// messages. Messages are append-only, keyed by (session_id, ord):
// implementations must never delete or rewrite rows already written.
type SnapshotRepository interface {
	Upsert(ctx context.Context, snap *SessionSnapshot) error
	AppendMessages(ctx context.Context, sessionID string, turns []Turn) error
	GetBySessionID(ctx context.Context, sessionID string) (*SessionSnapshot, error)
	ListMessages(ctx context.Context, sessionID string) ([]Turn, error)
	List(ctx context.Context, limit, offset int) ([]SessionSnapshot, error)
	UpdateState(ctx context.Context, sessionID string, state SessionState, reason SnapshotReason, now time.Time) error
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}
