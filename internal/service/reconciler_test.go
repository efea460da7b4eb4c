package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/notafacil/nfse-agent/internal/domain"
	"github.com/notafacil/nfse-agent/internal/gateway"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func submittedEmission() *domain.EmissionRecord {
	return &domain.EmissionRecord{
		ID:            uuid.New(),
		SessionID:     uuid.New().String(),
		Address:       testAddress,
		CorrelationID: "NFSE-0A1B2C3D",
		ExternalID:    "ext-42",
		IssuerTaxID:   "99888777000166",
		PayerTaxID:    "11222333000181",
		Amount:        decimal.NewFromInt(1500),
		Description:   "Consultoria em TI",
		Status:        domain.EmissionSubmitted,
		CreatedAt:     time.Now().UTC(),
	}
}

func successCallback() *gateway.Callback {
	return &gateway.Callback{
		ExternalID:      "ext-42",
		IntegrationID:   "NFSE-0A1B2C3D",
		Status:          "CONCLUIDO",
		Number:          "12345",
		Series:          "E",
		VerificationKey: "ABCD1234",
		Protocol:        "prot-789",
		PDFURL:          "https://example.com/nota.pdf",
		Raw:             json.RawMessage(`{"situacao":"CONCLUIDO"}`),
	}
}

func newTestReconciler() (*Reconciler, *MockEmissionRepository, *MockDocumentRepository, *memVolatile, *MockSnapshotRepository) {
	emissions := new(MockEmissionRepository)
	documents := new(MockDocumentRepository)
	volatile := newMemVolatile()
	snapshots := new(MockSnapshotRepository)
	clock := clockwork.NewFakeClock()

	store := NewStore(volatile, snapshots, clock, 3600)
	rec := NewReconciler(emissions, documents, store, clock)
	return rec, emissions, documents, volatile, snapshots
}

func TestReconciler_SuccessCallback(t *testing.T) {
	reconciler, emissions, documents, volatile, snapshots := newTestReconciler()
	ctx := context.Background()

	emission := submittedEmission()
	sess := domain.NewSession(testAddress, 3600, time.Now().UTC())
	sess.ID = emission.SessionID
	sess.State = domain.StateProcessing
	volatile.sessions[testAddress] = sess

	emissions.On("GetByExternalID", ctx, "ext-42").Return(emission, nil)
	documents.On("Create", ctx, mock.MatchedBy(func(doc *domain.InvoiceDocument) bool {
		return doc.EmissionID == emission.ID && doc.Number == "12345"
	})).Return(nil)
	emissions.On("Update", ctx, mock.MatchedBy(func(rec *domain.EmissionRecord) bool {
		return rec.Status == domain.EmissionCompleted && rec.FinishedAt != nil
	})).Return(nil)
	snapshots.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	snapshots.On("AppendMessages", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	err := reconciler.Reconcile(ctx, successCallback())
	require.NoError(t, err)

	assert.Equal(t, domain.StateApproved, sess.State)
	lastTurn := sess.Turns[len(sess.Turns)-1]
	assert.Equal(t, domain.RoleAssistant, lastTurn.Role)
	assert.Contains(t, lastTurn.Content, "12345")

	documents.AssertExpectations(t)
	emissions.AssertExpectations(t)
}

func TestReconciler_DuplicateCallbackIsIgnored(t *testing.T) {
	reconciler, emissions, documents, _, _ := newTestReconciler()
	ctx := context.Background()

	emission := submittedEmission()
	emission.Status = domain.EmissionCompleted
	emissions.On("GetByExternalID", ctx, "ext-42").Return(emission, nil)

	err := reconciler.Reconcile(ctx, successCallback())
	assert.NoError(t, err)

	documents.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	emissions.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestReconciler_DuplicateSeenOnLockedReread(t *testing.T) {
	reconciler, emissions, documents, _, _ := newTestReconciler()
	ctx := context.Background()

	// a concurrent callback finalized the emission between the first
	// read and the lock acquisition
	pending := submittedEmission()
	finalized := submittedEmission()
	finalized.Status = domain.EmissionCompleted

	emissions.On("GetByExternalID", ctx, "ext-42").Return(pending, nil).Once()
	emissions.On("GetByExternalID", ctx, "ext-42").Return(finalized, nil).Once()

	err := reconciler.Reconcile(ctx, successCallback())
	assert.NoError(t, err)

	documents.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	emissions.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	emissions.AssertNumberOfCalls(t, "GetByExternalID", 2)
}

func TestReconciler_OrphanCallbackIsAcknowledged(t *testing.T) {
	reconciler, emissions, documents, _, _ := newTestReconciler()
	ctx := context.Background()

	emissions.On("GetByExternalID", ctx, "ext-42").Return(nil, domain.ErrEmissionNotFound)

	err := reconciler.Reconcile(ctx, successCallback())
	assert.NoError(t, err, "orphan callbacks must not error")
	documents.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestReconciler_RejectionCallback(t *testing.T) {
	reconciler, emissions, documents, volatile, snapshots := newTestReconciler()
	ctx := context.Background()

	emission := submittedEmission()
	sess := domain.NewSession(testAddress, 3600, time.Now().UTC())
	sess.ID = emission.SessionID
	sess.State = domain.StateProcessing
	volatile.sessions[testAddress] = sess

	cb := &gateway.Callback{
		ExternalID: "ext-42",
		Status:     "REJEITADO",
		Reason:     "Código de serviço inválido para o município",
		Raw:        json.RawMessage(`{"situacao":"REJEITADO"}`),
	}

	emissions.On("GetByExternalID", ctx, "ext-42").Return(emission, nil)
	emissions.On("Update", ctx, mock.MatchedBy(func(rec *domain.EmissionRecord) bool {
		return rec.Status == domain.EmissionRejected &&
			rec.ErrorMessage == "Código de serviço inválido para o município"
	})).Return(nil)
	snapshots.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	snapshots.On("AppendMessages", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	err := reconciler.Reconcile(ctx, cb)
	require.NoError(t, err)

	assert.Equal(t, domain.StateRejected, sess.State)
	lastTurn := sess.Turns[len(sess.Turns)-1]
	assert.Contains(t, lastTurn.Content, "Código de serviço inválido para o município")

	documents.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestReconciler_SessionGoneUpdatesDurableRowOnly(t *testing.T) {
	reconciler, emissions, documents, _, snapshots := newTestReconciler()
	ctx := context.Background()

	emission := submittedEmission()
	emissions.On("GetByExternalID", ctx, "ext-42").Return(emission, nil)
	documents.On("Create", ctx, mock.AnythingOfType("*domain.InvoiceDocument")).Return(nil)
	emissions.On("Update", ctx, mock.AnythingOfType("*domain.EmissionRecord")).Return(nil)
	snapshots.On("UpdateState", ctx, emission.SessionID, domain.StateApproved, domain.ReasonGatewaySuccess, mock.AnythingOfType("time.Time")).Return(nil)

	err := reconciler.Reconcile(ctx, successCallback())
	assert.NoError(t, err)
	snapshots.AssertExpectations(t)
}
