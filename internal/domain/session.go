package domain

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionState represents the conversation state machine position
type SessionState string

const (
	StateCollecting           SessionState = "collecting"
	StateIncomplete           SessionState = "incomplete"
	StateAwaitingConfirmation SessionState = "awaiting_confirmation"
	StateProcessing           SessionState = "processing"
	StateApproved             SessionState = "approved"
	StateRejected             SessionState = "rejected"
	StateError                SessionState = "error"
	StateCancelled            SessionState = "cancelled"
	StateExpired              SessionState = "expired"
)

// validTransitions maps each state to the states it may advance to.
// Terminal states have no outgoing transitions.
var validTransitions = map[SessionState]map[SessionState]bool{
	StateCollecting: {
		StateIncomplete:           true,
		StateAwaitingConfirmation: true,
		StateCancelled:            true,
		StateExpired:              true,
	},
	StateIncomplete: {
		StateIncomplete:           true, // still missing data
		StateAwaitingConfirmation: true,
		StateCancelled:            true,
		StateExpired:              true,
	},
	StateAwaitingConfirmation: {
		StateAwaitingConfirmation: true, // unrecognized reply
		StateProcessing:           true,
		StateCancelled:            true,
		StateExpired:              true,
	},
	StateProcessing: {
		StateApproved: true,
		StateRejected: true,
		StateError:    true,
	},
	StateApproved:  {},
	StateRejected:  {},
	StateError:     {},
	StateCancelled: {},
	StateExpired:   {},
}

// IsTerminal reports whether the state admits no further transitions.
func (s SessionState) IsTerminal() bool {
	switch s {
	case StateApproved, StateRejected, StateError, StateCancelled, StateExpired:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is allowed.
func (s SessionState) CanTransition(next SessionState) bool {
	return validTransitions[s][next]
}

// SnapshotReason records why a session was durably persisted
type SnapshotReason string

const (
	ReasonManual          SnapshotReason = "manual"
	ReasonDataComplete    SnapshotReason = "data_complete"
	ReasonConfirmed       SnapshotReason = "confirmed"
	ReasonCancelled       SnapshotReason = "cancelled"
	ReasonExpired         SnapshotReason = "expired"
	ReasonError           SnapshotReason = "error"
	ReasonGatewaySuccess  SnapshotReason = "gateway_success"
	ReasonGatewayRejected SnapshotReason = "gateway_rejected"
)

// TurnRole identifies who produced a conversation turn
type TurnRole string

const (
	RoleParty     TurnRole = "party"
	RoleAssistant TurnRole = "assistant"
	RoleSystem    TurnRole = "system"
)

// Turn is one entry of the conversation log
type Turn struct {
	Role      TurnRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Counters tracks per-session usage metrics. All counters are
// monotonically non-decreasing.
type Counters struct {
	Interactions      int `json:"interactions"`
	AssistantMessages int `json:"assistant_messages"`
	ExtractionCalls   int `json:"extraction_calls"`
}

// Session is one end-to-end conversational attempt to collect and submit
// one invoice, keyed by the originating address. The volatile store holds
// the live copy; the snapshot repository holds the durable audit copy.
type Session struct {
	ID            string       `json:"id"`
	Address       string       `json:"address"`
	State         SessionState `json:"state"`
	Invoice       InvoiceData  `json:"invoice"`
	Turns         []Turn       `json:"turns"`
	Counters      Counters     `json:"counters"`
	CorrelationID string       `json:"correlation_id,omitempty"`
	TTLSeconds    int          `json:"ttl_seconds"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`

	// SnapshotPending marks a failed durable write that must be retried
	// on the next persist call.
	SnapshotPending bool `json:"snapshot_pending,omitempty"`
}

// NewSession creates a session in the collecting state.
func NewSession(address string, ttlSeconds int, now time.Time) *Session {
	return &Session{
		ID:         uuid.New().String(),
		Address:    address,
		State:      StateCollecting,
		Invoice:    InvoiceData{},
		TTLSeconds: ttlSeconds,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// ExpiresAt returns the moment the session becomes stale.
func (s *Session) ExpiresAt() time.Time {
	return s.UpdatedAt.Add(time.Duration(s.TTLSeconds) * time.Second)
}

// Expired reports whether the session TTL elapsed while it could still
// expire. Terminal sessions never expire, and neither does a processing
// session: an in-flight emission must keep its session until the gateway
// answers.
func (s *Session) Expired(now time.Time) bool {
	if s.State.IsTerminal() || s.State == StateProcessing {
		return false
	}
	return now.After(s.ExpiresAt())
}

// AddTurn appends one conversation turn. The log is append-only within a
// session's life.
func (s *Session) AddTurn(role TurnRole, content string, now time.Time) {
	s.Turns = append(s.Turns, Turn{Role: role, Content: content, Timestamp: now})
	if role == RoleAssistant {
		s.Counters.AssistantMessages++
	}
}

// Advance moves the session to next if the transition table allows it.
func (s *Session) Advance(next SessionState, now time.Time) error {
	if !s.State.CanTransition(next) {
		return &TransitionError{From: s.State, To: next}
	}
	s.State = next
	s.UpdatedAt = now
	return nil
}

// EnsureCorrelationID mints the correlation id exactly once, on the
// confirmed transition. Subsequent calls return the existing id.
func (s *Session) EnsureCorrelationID() string {
	if s.CorrelationID == "" {
		s.CorrelationID = NewCorrelationID()
	}
	return s.CorrelationID
}

// NewCorrelationID builds a gateway integration id in the NFSE-XXXXXXXX
// format expected by the emission gateway.
func NewCorrelationID() string {
	id := uuid.New()
	return "NFSE-" + strings.ToUpper(hex.EncodeToString(id[:4]))
}
