package lookup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/notafacil/nfse-agent/internal/config"
	"github.com/notafacil/nfse-agent/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string, maxRetries int) *RegistryClient {
	return NewRegistryClient(config.RegistryConfig{
		BaseURL:    baseURL,
		Timeout:    2 * time.Second,
		MaxRetries: maxRetries,
	})
}

func TestRegistryClient_Lookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/11222333000181", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"cnpj": "11222333000181",
			"razao_social": "TOMADOR EXEMPLO LTDA",
			"nome_fantasia": "Tomador Exemplo",
			"email": "contato@exemplo.com.br",
			"cep": "01310100",
			"logradouro": "AVENIDA PAULISTA",
			"numero": "1000",
			"bairro": "BELA VISTA",
			"municipio": "SAO PAULO",
			"codigo_municipio_ibge": 3550308,
			"uf": "SP"
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0)
	cp, err := client.Lookup(context.Background(), "11222333000181")
	require.NoError(t, err)

	assert.Equal(t, "11222333000181", cp.TaxID)
	assert.Equal(t, "TOMADOR EXEMPLO LTDA", cp.LegalName)
	assert.Equal(t, "Tomador Exemplo", cp.TradeName)
	assert.Equal(t, "3550308", cp.CityCode)
	assert.Equal(t, "SP", cp.State)
	assert.NotEmpty(t, cp.RegistryRaw)
}

func TestRegistryClient_Lookup_CityCodeAsString(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"razao_social":"X LTDA","codigo_municipio_ibge":"3550308"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 0)
	cp, err := client.Lookup(context.Background(), "11222333000181")
	require.NoError(t, err)
	assert.Equal(t, "3550308", cp.CityCode)
}

func TestRegistryClient_Lookup_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 2)
	_, err := client.Lookup(context.Background(), "11222333000181")
	assert.ErrorIs(t, err, domain.ErrCounterpartyNotFound)
}

func TestRegistryClient_Lookup_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"razao_social":"RECUPERADO LTDA"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 2)
	cp, err := client.Lookup(context.Background(), "11222333000181")
	require.NoError(t, err)
	assert.Equal(t, "RECUPERADO LTDA", cp.LegalName)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRegistryClient_Lookup_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 2)
	_, err := client.Lookup(context.Background(), "11222333000181")
	assert.True(t, domain.IsTransientLookup(err))
	assert.Equal(t, int32(3), calls.Load())
}
