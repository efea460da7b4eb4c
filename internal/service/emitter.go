package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/notafacil/nfse-agent/internal/domain"
	"github.com/notafacil/nfse-agent/internal/gateway"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// RegistryLookup resolves payer identity from the external company
// registry.
type RegistryLookup interface {
	Lookup(ctx context.Context, taxID string) (*domain.Counterparty, error)
}

// Emitter orchestrates one confirmed invoice submission: payer identity
// resolution, the at-most-once emission record and the gateway call.
type Emitter struct {
	counterparties domain.CounterpartyRepository
	registry       RegistryLookup
	emissions      domain.EmissionRepository
	documents      domain.DocumentRepository
	gw             gateway.Gateway
	clock          clockwork.Clock
}

// NewEmitter creates a new emission orchestrator
func NewEmitter(
	counterparties domain.CounterpartyRepository,
	registry RegistryLookup,
	emissions domain.EmissionRepository,
	documents domain.DocumentRepository,
	gw gateway.Gateway,
	clock clockwork.Clock,
) *Emitter {
	return &Emitter{
		counterparties: counterparties,
		registry:       registry,
		emissions:      emissions,
		documents:      documents,
		gw:             gw,
		clock:          clock,
	}
}

// Emit submits the session's confirmed invoice to the gateway.
//
// The emission record is inserted before the gateway is called: the
// insert is keyed by the correlation id, so a concurrent or repeated
// confirmation finds the row already present and returns
// ErrDuplicateConfirmation without a second submission.
func (e *Emitter) Emit(ctx context.Context, sess *domain.Session, issuer *domain.IssuerProfile) (*gateway.SubmitResult, error) {
	payerTaxID := sess.Invoice.TaxID.Normalized

	payer, err := e.resolvePayer(ctx, payerTaxID)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(sess.Invoice.Amount.Normalized)
	if err != nil {
		return nil, fmt.Errorf("invalid normalized amount %q: %w", sess.Invoice.Amount.Normalized, err)
	}

	now := e.clock.Now().UTC()
	payload := gateway.BuildPayload(sess.CorrelationID, issuer, payer, amount, sess.Invoice.Description.Normalized)
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	rec := &domain.EmissionRecord{
		ID:            uuid.New(),
		SessionID:     sess.ID,
		Address:       sess.Address,
		CorrelationID: sess.CorrelationID,
		IssuerTaxID:   issuer.CompanyTaxID,
		PayerTaxID:    payerTaxID,
		Amount:        amount,
		Description:   sess.Invoice.Description.Normalized,
		Status:        domain.EmissionPending,
		Payload:       payloadJSON,
		CreatedAt:     now,
	}

	inserted, err := e.emissions.Create(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to record emission: %w", err)
	}
	if !inserted {
		log.Info().
			Str("correlation_id", sess.CorrelationID).
			Msg("Emission already recorded, skipping submission")
		return nil, domain.ErrDuplicateConfirmation
	}

	result, err := e.gw.Submit(ctx, payload)
	if err != nil {
		finished := e.clock.Now().UTC()
		rec.Status = domain.EmissionFailed
		rec.ErrorMessage = err.Error()
		rec.FinishedAt = &finished
		if uerr := e.emissions.Update(ctx, rec); uerr != nil {
			log.Error().Err(uerr).Str("correlation_id", rec.CorrelationID).Msg("Failed to record submission failure")
		}
		return nil, err
	}

	submitted := e.clock.Now().UTC()
	rec.ExternalID = result.ExternalID
	rec.GatewayResponse = result.Raw
	rec.SubmittedAt = &submitted

	switch result.Outcome {
	case gateway.OutcomeCompleted:
		rec.Status = domain.EmissionCompleted
		rec.FinishedAt = &submitted
		e.createDocument(ctx, rec, result.Raw, "", "", "", "", "", "")
	case gateway.OutcomeRejected:
		rec.Status = domain.EmissionRejected
		rec.ErrorMessage = result.Detail
		rec.FinishedAt = &submitted
	default:
		rec.Status = domain.EmissionSubmitted
	}

	if err := e.emissions.Update(ctx, rec); err != nil {
		log.Error().Err(err).Str("correlation_id", rec.CorrelationID).Msg("Failed to record submission result")
	}
	return result, nil
}

// resolvePayer returns the cached counterparty or looks it up in the
// registry and caches the result. Cache entries never expire.
func (e *Emitter) resolvePayer(ctx context.Context, taxID string) (*domain.Counterparty, error) {
	payer, err := e.counterparties.GetByTaxID(ctx, taxID)
	if err == nil {
		return payer, nil
	}
	if !errors.Is(err, domain.ErrCounterpartyNotFound) {
		return nil, err
	}

	payer, err = e.registry.Lookup(ctx, taxID)
	if err != nil {
		return nil, err
	}

	if err := e.counterparties.Save(ctx, payer); err != nil {
		log.Error().Err(err).Str("tax_id", taxID).Msg("Failed to cache counterparty")
	}
	return payer, nil
}

// createDocument records a synchronously finalized invoice.
func (e *Emitter) createDocument(ctx context.Context, rec *domain.EmissionRecord, raw json.RawMessage, number, series, key, protocol, xmlURL, pdfURL string) {
	doc := &domain.InvoiceDocument{
		ID:              uuid.New(),
		EmissionID:      rec.ID,
		ExternalID:      rec.ExternalID,
		Number:          number,
		Series:          series,
		VerificationKey: key,
		Protocol:        protocol,
		IssuerTaxID:     rec.IssuerTaxID,
		PayerTaxID:      rec.PayerTaxID,
		Amount:          rec.Amount,
		XMLURL:          xmlURL,
		PDFURL:          pdfURL,
		CallbackPayload: raw,
		CreatedAt:       e.clock.Now().UTC(),
	}
	if err := e.documents.Create(ctx, doc); err != nil {
		log.Error().Err(err).Str("correlation_id", rec.CorrelationID).Msg("Failed to record invoice document")
	}
}
