package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/notafacil/nfse-agent/internal/domain"
	"github.com/notafacil/nfse-agent/internal/gateway"
	"github.com/rs/zerolog/log"
)

// Reconciler applies asynchronous gateway callbacks to emission records
// and their sessions.
type Reconciler struct {
	emissions domain.EmissionRepository
	documents domain.DocumentRepository
	store     *Store
	clock     clockwork.Clock
}

// NewReconciler creates a new callback reconciler
func NewReconciler(emissions domain.EmissionRepository, documents domain.DocumentRepository, store *Store, clock clockwork.Clock) *Reconciler {
	return &Reconciler{
		emissions: emissions,
		documents: documents,
		store:     store,
		clock:     clock,
	}
}

// Reconcile matches the callback to its emission and finalizes it.
//
// Unknown external ids are logged and acknowledged: the gateway retries
// undelivered callbacks and a crash between submission and the external
// id write can leave a short window where the id is not yet known.
// Callbacks for already-terminal emissions are duplicates and change
// nothing.
func (r *Reconciler) Reconcile(ctx context.Context, cb *gateway.Callback) error {
	rec, err := r.emissions.GetByExternalID(ctx, cb.ExternalID)
	if err != nil {
		if errors.Is(err, domain.ErrEmissionNotFound) {
			log.Warn().
				Str("external_id", cb.ExternalID).
				Str("status", cb.Status).
				Msg("Callback for unknown emission, ignoring")
			return nil
		}
		return err
	}

	// The emission and its session change together under the address
	// lock. Reread once the lock is held so a concurrent callback's
	// update is visible to the terminal check.
	unlock := r.store.Lock(rec.Address)
	defer unlock()

	rec, err = r.emissions.GetByExternalID(ctx, cb.ExternalID)
	if err != nil {
		return err
	}

	if rec.Status.Terminal() {
		log.Info().
			Str("external_id", cb.ExternalID).
			Str("correlation_id", rec.CorrelationID).
			Str("status", string(rec.Status)).
			Msg("Duplicate callback for finalized emission, ignoring")
		return nil
	}

	now := r.clock.Now().UTC()
	rec.GatewayResponse = cb.Raw
	rec.FinishedAt = &now

	if cb.Success() {
		doc := &domain.InvoiceDocument{
			ID:              uuid.New(),
			EmissionID:      rec.ID,
			ExternalID:      cb.ExternalID,
			Number:          cb.Number,
			Series:          cb.Series,
			VerificationKey: cb.VerificationKey,
			Protocol:        cb.Protocol,
			IssuerTaxID:     rec.IssuerTaxID,
			PayerTaxID:      rec.PayerTaxID,
			Amount:          rec.Amount,
			XMLURL:          cb.XMLURL,
			PDFURL:          cb.PDFURL,
			CallbackPayload: cb.Raw,
			CreatedAt:       now,
		}
		if err := r.documents.Create(ctx, doc); err != nil {
			return err
		}

		rec.Status = domain.EmissionCompleted
		if err := r.emissions.Update(ctx, rec); err != nil {
			return err
		}

		log.Info().
			Str("correlation_id", rec.CorrelationID).
			Str("invoice_number", cb.Number).
			Msg("Invoice finalized by gateway callback")

		return r.store.FinalizeSession(ctx, rec.Address, rec.SessionID,
			domain.StateApproved, domain.ReasonGatewaySuccess,
			replyApproved(cb.Number, cb.PDFURL))
	}

	rec.Status = domain.EmissionRejected
	rec.ErrorMessage = cb.Reason
	if err := r.emissions.Update(ctx, rec); err != nil {
		return err
	}

	log.Info().
		Str("correlation_id", rec.CorrelationID).
		Str("reason", cb.Reason).
		Msg("Invoice rejected by gateway callback")

	return r.store.FinalizeSession(ctx, rec.Address, rec.SessionID,
		domain.StateRejected, domain.ReasonGatewayRejected,
		replyRejected(cb.Reason))
}
