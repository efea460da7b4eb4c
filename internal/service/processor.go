package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/notafacil/nfse-agent/internal/config"
	"github.com/notafacil/nfse-agent/internal/domain"
	"github.com/notafacil/nfse-agent/internal/extract"
	"github.com/notafacil/nfse-agent/internal/gateway"
	"github.com/rs/zerolog/log"
)

// Processor drives the conversation state machine for inbound messages.
type Processor struct {
	issuers      domain.IssuerDirectory
	store        *Store
	extractor    extract.Extractor
	emitter      *Emitter
	clock        clockwork.Clock
	confirmWords map[string]bool
	cancelWords  map[string]bool
}

// NewProcessor creates a new message processor
func NewProcessor(
	issuers domain.IssuerDirectory,
	store *Store,
	extractor extract.Extractor,
	emitter *Emitter,
	clock clockwork.Clock,
	cfg config.SessionConfig,
) *Processor {
	return &Processor{
		issuers:      issuers,
		store:        store,
		extractor:    extractor,
		emitter:      emitter,
		clock:        clock,
		confirmWords: wordSet(cfg.ConfirmWords),
		cancelWords:  wordSet(cfg.CancelWords),
	}
}

func wordSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = true
	}
	return set
}

// HandleMessage processes one inbound message from an address and
// returns the reply to send back. Handling for the same address is
// serialized; the reply is always non-empty.
func (p *Processor) HandleMessage(ctx context.Context, address, text string) (string, error) {
	issuer, err := p.issuers.FindActiveByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, domain.ErrIssuerNotFound) {
			log.Warn().Str("address", address).Msg("Message from unregistered address")
			return replyNotRegistered(), nil
		}
		return "", err
	}

	unlock := p.store.Lock(address)
	defer unlock()

	sess, created, prevExpired, err := p.store.LoadOrCreate(ctx, address)
	if err != nil {
		return "", err
	}

	now := p.clock.Now().UTC()
	sess.AddTurn(domain.RoleParty, text, now)
	sess.Counters.Interactions++
	sess.UpdatedAt = now

	var reply string
	switch sess.State {
	case domain.StateAwaitingConfirmation:
		reply, err = p.handleConfirmation(ctx, sess, issuer, text)
	case domain.StateProcessing:
		// emission already in flight, just acknowledge
		reply = replyProcessing(sess.CorrelationID)
		sess.AddTurn(domain.RoleAssistant, reply, now)
		err = p.store.Persist(ctx, sess, domain.ReasonManual)
	default:
		reply, err = p.handleCollection(ctx, sess, issuer, text, created)
	}
	if err != nil {
		return "", err
	}

	if prevExpired {
		reply = replyExpired() + reply
	}
	return reply, nil
}

// handleCollection runs extraction over the message and merges the
// result into the accumulated record.
func (p *Processor) handleCollection(ctx context.Context, sess *domain.Session, issuer *domain.IssuerProfile, text string, created bool) (string, error) {
	now := p.clock.Now().UTC()

	ext, err := p.extract(ctx, sess, text)
	if err != nil {
		reply := replyExtractionUnavailable()
		sess.AddTurn(domain.RoleAssistant, reply, now)
		if perr := p.store.Persist(ctx, sess, domain.ReasonManual); perr != nil {
			return "", perr
		}
		return reply, nil
	}

	result := extract.Merge(sess.Invoice, *ext)
	sess.Invoice = result.Record

	var reply string
	var reason domain.SnapshotReason

	if sess.Invoice.Complete() {
		if err := sess.Advance(domain.StateAwaitingConfirmation, now); err != nil {
			return "", err
		}
		reply = replySummary(sess.Invoice, issuer)
		reason = domain.ReasonDataComplete
	} else {
		if err := sess.Advance(domain.StateIncomplete, now); err != nil {
			return "", err
		}
		if created && !anyAttempted(ext) {
			reply = replyWelcome(issuer.ContactName)
		} else {
			reply = replyIncomplete(result.Missing, result.Invalid, ext.Clarification)
		}
		reason = domain.ReasonManual
	}

	sess.AddTurn(domain.RoleAssistant, reply, now)
	if err := p.store.Persist(ctx, sess, reason); err != nil {
		return "", err
	}
	return reply, nil
}

// extract calls the extraction engine, retrying once on failure within
// the same message.
func (p *Processor) extract(ctx context.Context, sess *domain.Session, text string) (*extract.Extraction, error) {
	ext, err := p.extractor.Extract(ctx, text, sess.Invoice)
	sess.Counters.ExtractionCalls++
	if err == nil {
		return ext, nil
	}

	log.Warn().Err(err).Str("session_id", sess.ID).Msg("Extraction failed, retrying")
	ext, err = p.extractor.Extract(ctx, text, sess.Invoice)
	sess.Counters.ExtractionCalls++
	if err != nil {
		log.Error().Err(err).Str("session_id", sess.ID).Msg("Extraction failed after retry")
		return nil, err
	}
	return ext, nil
}

func anyAttempted(ext *extract.Extraction) bool {
	return ext.TaxID.Attempted() || ext.Amount.Attempted() || ext.Description.Attempted()
}

// handleConfirmation interprets the user's answer to the invoice mirror.
func (p *Processor) handleConfirmation(ctx context.Context, sess *domain.Session, issuer *domain.IssuerProfile, text string) (string, error) {
	now := p.clock.Now().UTC()
	answer := strings.ToLower(strings.TrimSpace(text))

	switch {
	case p.confirmWords[answer]:
		return p.confirmAndEmit(ctx, sess, issuer)

	case p.cancelWords[answer]:
		if err := sess.Advance(domain.StateCancelled, now); err != nil {
			return "", err
		}
		reply := replyCancelled()
		sess.AddTurn(domain.RoleAssistant, reply, now)
		if err := p.store.Persist(ctx, sess, domain.ReasonCancelled); err != nil {
			return "", err
		}
		return reply, nil

	default:
		if err := sess.Advance(domain.StateAwaitingConfirmation, now); err != nil {
			return "", err
		}
		reply := replyUnrecognizedConfirmation(sess.Invoice, issuer)
		sess.AddTurn(domain.RoleAssistant, reply, now)
		if err := p.store.Persist(ctx, sess, domain.ReasonManual); err != nil {
			return "", err
		}
		return reply, nil
	}
}

// confirmAndEmit moves the session to processing and runs the emission.
// The confirmed state is durable before the gateway is called, so a
// crash mid-emission never re-opens the confirmation window.
func (p *Processor) confirmAndEmit(ctx context.Context, sess *domain.Session, issuer *domain.IssuerProfile) (string, error) {
	now := p.clock.Now().UTC()

	sess.EnsureCorrelationID()
	if err := sess.Advance(domain.StateProcessing, now); err != nil {
		return "", err
	}
	if err := p.store.Persist(ctx, sess, domain.ReasonConfirmed); err != nil {
		return "", err
	}

	result, err := p.emitter.Emit(ctx, sess, issuer)
	if err != nil {
		return p.handleEmissionError(ctx, sess, err)
	}

	switch result.Outcome {
	case gateway.OutcomeCompleted:
		return p.finalize(ctx, sess, domain.StateApproved, domain.ReasonGatewaySuccess,
			replyApproved("", ""))
	case gateway.OutcomeRejected:
		return p.finalize(ctx, sess, domain.StateRejected, domain.ReasonGatewayRejected,
			replyRejected(result.Detail))
	default:
		reply := replyProcessing(sess.CorrelationID)
		sess.AddTurn(domain.RoleAssistant, reply, p.clock.Now().UTC())
		if err := p.store.Persist(ctx, sess, domain.ReasonManual); err != nil {
			return "", err
		}
		return reply, nil
	}
}

func (p *Processor) handleEmissionError(ctx context.Context, sess *domain.Session, err error) (string, error) {
	if errors.Is(err, domain.ErrDuplicateConfirmation) {
		// A previous confirmation already owns this correlation id;
		// acknowledge without a second submission.
		reply := replyProcessing(sess.CorrelationID)
		sess.AddTurn(domain.RoleAssistant, reply, p.clock.Now().UTC())
		if perr := p.store.Persist(ctx, sess, domain.ReasonManual); perr != nil {
			return "", perr
		}
		return reply, nil
	}

	var reply string
	if errors.Is(err, domain.ErrCounterpartyNotFound) {
		reply = replyPayerNotFound(sess.Invoice.TaxID.Normalized)
	} else {
		log.Error().
			Err(err).
			Str("session_id", sess.ID).
			Str("correlation_id", sess.CorrelationID).
			Msg("Emission failed")
		reply = replyEmissionError(sess.CorrelationID)
	}
	return p.finalize(ctx, sess, domain.StateError, domain.ReasonError, reply)
}

func (p *Processor) finalize(ctx context.Context, sess *domain.Session, state domain.SessionState, reason domain.SnapshotReason, reply string) (string, error) {
	now := p.clock.Now().UTC()
	if err := sess.Advance(state, now); err != nil {
		return "", err
	}
	sess.AddTurn(domain.RoleAssistant, reply, now)
	if err := p.store.Persist(ctx, sess, reason); err != nil {
		return "", err
	}
	return reply, nil
}
