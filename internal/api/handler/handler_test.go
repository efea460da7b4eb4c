package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/notafacil/nfse-agent/internal/api/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheck(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()

	handler.HealthCheck(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var response map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, true, response["success"])

	data, ok := response["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", data["status"])
}

func TestMessageHandler_RejectsInvalidBody(t *testing.T) {
	h := handler.NewMessageHandler(nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"address":`},
		{"missing address", `{"text":"oi"}`},
		{"missing text", `{"address":"5511999990000"}`},
		{"empty body", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			h.Receive(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestWebhookHandler_RejectsInvalidCallback(t *testing.T) {
	h := handler.NewWebhookHandler(nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"id":`},
		{"missing external id", `{"situacao":"CONCLUIDO"}`},
		{"missing status", `{"id":"ext-1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/nfse", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			h.Receive(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
