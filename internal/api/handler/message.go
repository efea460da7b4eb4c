package handler

import (
	"encoding/json"
	"net/http"

	"github.com/notafacil/nfse-agent/internal/api/response"
	"github.com/notafacil/nfse-agent/internal/service"
)

// MessageHandler handles inbound conversation messages
type MessageHandler struct {
	processor *service.Processor
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(processor *service.Processor) *MessageHandler {
	return &MessageHandler{processor: processor}
}

// MessageRequest is one inbound message from the channel adapter
type MessageRequest struct {
	Address string `json:"address" validate:"required"`
	Text    string `json:"text" validate:"required"`
}

// Receive processes an inbound message and returns the reply text
func (h *MessageHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	reply, err := h.processor.HandleMessage(r.Context(), req.Address, req.Text)
	if err != nil {
		response.InternalError(w, "failed to process message")
		return
	}

	response.OK(w, map[string]string{
		"reply": reply,
	})
}
