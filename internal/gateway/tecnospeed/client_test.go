package tecnospeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/notafacil/nfse-agent/internal/config"
	"github.com/notafacil/nfse-agent/internal/domain"
	"github.com/notafacil/nfse-agent/internal/gateway"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayload() *gateway.Payload {
	return gateway.BuildPayload(
		"NFSE-0A1B2C3D",
		&domain.IssuerProfile{
			CompanyTaxID: "99888777000166",
			ServiceCode:  "1.07",
			ISSRate:      decimal.NewFromFloat(2),
		},
		&domain.Counterparty{
			TaxID:     "11222333000181",
			LegalName: "Tomador Exemplo LTDA",
			CityCode:  "3550308",
			State:     "SP",
		},
		decimal.NewFromInt(1500),
		"Consultoria em TI",
	)
}

func newTestGateway(baseURL string) *Client {
	return NewClient(config.GatewayConfig{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
	})
}

func TestClient_Submit_Queued(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/nfse", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		var batch []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		require.Len(t, batch, 1)
		assert.Equal(t, "NFSE-0A1B2C3D", batch[0]["idIntegracao"])

		w.Write([]byte(`{"id":"ext-77","protocol":"p-1"}`))
	}))
	defer server.Close()

	result, err := newTestGateway(server.URL).Submit(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, "ext-77", result.ExternalID)
	assert.Equal(t, gateway.OutcomeAccepted, result.Outcome)
}

func TestClient_Submit_SyncCompleted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"ext-78","situacao":"CONCLUIDO"}`))
	}))
	defer server.Close()

	result, err := newTestGateway(server.URL).Submit(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeCompleted, result.Outcome)
}

func TestClient_Submit_SyncRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"ext-79","situacao":"REJEITADO","motivo":"CNAE inválido"}`))
	}))
	defer server.Close()

	result, err := newTestGateway(server.URL).Submit(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomeRejected, result.Outcome)
	assert.Equal(t, "CNAE inválido", result.Detail)
}

func TestClient_Submit_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"payload inválido"}`))
	}))
	defer server.Close()

	_, err := newTestGateway(server.URL).Submit(context.Background(), testPayload())
	require.Error(t, err)

	var gwErr *domain.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusUnprocessableEntity, gwErr.StatusCode)
	assert.Contains(t, gwErr.Detail, "payload inválido")
}

func TestClient_Submit_ExternalIDFromDocuments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"documents":[{"id":"doc-id-1"}]}`))
	}))
	defer server.Close()

	result, err := newTestGateway(server.URL).Submit(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, "doc-id-1", result.ExternalID)
}
