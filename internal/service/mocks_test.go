package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/notafacil/nfse-agent/internal/domain"
	"github.com/notafacil/nfse-agent/internal/extract"
	"github.com/notafacil/nfse-agent/internal/gateway"
	"github.com/stretchr/testify/mock"
)

// MockVolatileStore mocks the VolatileStore interface
type MockVolatileStore struct {
	mock.Mock
}

func (m *MockVolatileStore) Get(ctx context.Context, address string) (*domain.Session, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockVolatileStore) Set(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockVolatileStore) Delete(ctx context.Context, address string) error {
	args := m.Called(ctx, address)
	return args.Error(0)
}

// MockSnapshotRepository mocks domain.SnapshotRepository
type MockSnapshotRepository struct {
	mock.Mock
}

func (m *MockSnapshotRepository) Upsert(ctx context.Context, snap *domain.SessionSnapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func (m *MockSnapshotRepository) AppendMessages(ctx context.Context, sessionID string, turns []domain.Turn) error {
	args := m.Called(ctx, sessionID, turns)
	return args.Error(0)
}

func (m *MockSnapshotRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.SessionSnapshot, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SessionSnapshot), args.Error(1)
}

func (m *MockSnapshotRepository) ListMessages(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).([]domain.Turn), args.Error(1)
}

func (m *MockSnapshotRepository) List(ctx context.Context, limit, offset int) ([]domain.SessionSnapshot, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]domain.SessionSnapshot), args.Error(1)
}

func (m *MockSnapshotRepository) UpdateState(ctx context.Context, sessionID string, state domain.SessionState, reason domain.SnapshotReason, now time.Time) error {
	args := m.Called(ctx, sessionID, state, reason, now)
	return args.Error(0)
}

func (m *MockSnapshotRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// MockEmissionRepository mocks domain.EmissionRepository
type MockEmissionRepository struct {
	mock.Mock
}

func (m *MockEmissionRepository) Create(ctx context.Context, rec *domain.EmissionRecord) (bool, error) {
	args := m.Called(ctx, rec)
	return args.Bool(0), args.Error(1)
}

func (m *MockEmissionRepository) Update(ctx context.Context, rec *domain.EmissionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockEmissionRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*domain.EmissionRecord, error) {
	args := m.Called(ctx, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EmissionRecord), args.Error(1)
}

func (m *MockEmissionRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.EmissionRecord, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EmissionRecord), args.Error(1)
}

// MockDocumentRepository mocks domain.DocumentRepository
type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) Create(ctx context.Context, doc *domain.InvoiceDocument) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockDocumentRepository) GetByEmissionID(ctx context.Context, emissionID uuid.UUID) (*domain.InvoiceDocument, error) {
	args := m.Called(ctx, emissionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.InvoiceDocument), args.Error(1)
}

// MockCounterpartyRepository mocks domain.CounterpartyRepository
type MockCounterpartyRepository struct {
	mock.Mock
}

func (m *MockCounterpartyRepository) GetByTaxID(ctx context.Context, taxID string) (*domain.Counterparty, error) {
	args := m.Called(ctx, taxID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Counterparty), args.Error(1)
}

func (m *MockCounterpartyRepository) Save(ctx context.Context, c *domain.Counterparty) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

// MockIssuerDirectory mocks domain.IssuerDirectory
type MockIssuerDirectory struct {
	mock.Mock
}

func (m *MockIssuerDirectory) FindActiveByAddress(ctx context.Context, address string) (*domain.IssuerProfile, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IssuerProfile), args.Error(1)
}

// MockRegistryLookup mocks RegistryLookup
type MockRegistryLookup struct {
	mock.Mock
}

func (m *MockRegistryLookup) Lookup(ctx context.Context, taxID string) (*domain.Counterparty, error) {
	args := m.Called(ctx, taxID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Counterparty), args.Error(1)
}

// MockExtractor mocks extract.Extractor
type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, text string, prior domain.InvoiceData) (*extract.Extraction, error) {
	args := m.Called(ctx, text, prior)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*extract.Extraction), args.Error(1)
}

// MockGateway mocks gateway.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Submit(ctx context.Context, payload *gateway.Payload) (*gateway.SubmitResult, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.SubmitResult), args.Error(1)
}
