package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/notafacil/nfse-agent/internal/api/response"
	"github.com/notafacil/nfse-agent/internal/gateway"
	"github.com/notafacil/nfse-agent/internal/service"
	"github.com/rs/zerolog/log"
)

// WebhookHandler handles asynchronous gateway callbacks
type WebhookHandler struct {
	reconciler *service.Reconciler
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(reconciler *service.Reconciler) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

// Receive acknowledges and applies one gateway callback. Orphan and
// duplicate callbacks are acknowledged with 200 so the gateway stops
// retrying them.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.BadRequest(w, "failed to read request body")
		return
	}

	var cb gateway.Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		response.BadRequest(w, "invalid callback payload")
		return
	}
	cb.Raw = body

	if err := validate.Struct(&cb); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	if err := h.reconciler.Reconcile(r.Context(), &cb); err != nil {
		log.Error().Err(err).Str("external_id", cb.ExternalID).Msg("Failed to reconcile callback")
		response.InternalError(w, "failed to process callback")
		return
	}

	response.OK(w, map[string]string{
		"status": "processed",
	})
}
