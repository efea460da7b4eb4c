package tecnospeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/notafacil/nfse-agent/internal/config"
	"github.com/notafacil/nfse-agent/internal/domain"
	"github.com/notafacil/nfse-agent/internal/gateway"
	"github.com/rs/zerolog/log"
)

// Client submits invoices to the TecnoSpeed NFSe gateway.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new gateway client
func NewClient(cfg config.GatewayConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// submitResponse is the gateway's answer to a submission. Synchronous
// municipalities finalize in this response; the rest answer with the
// queued protocol only.
type submitResponse struct {
	ID       string `json:"id"`
	Protocol string `json:"protocol"`
	Status   string `json:"situacao"`
	Reason   string `json:"motivo"`
	Documents []struct {
		ID string `json:"id"`
	} `json:"documents"`
}

// Submit posts the payload and classifies the answer.
func (c *Client) Submit(ctx context.Context, payload *gateway.Payload) (*gateway.SubmitResult, error) {
	body, err := json.Marshal([]*gateway.Payload{payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	url := c.baseURL + "/nfse"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().
			Int("status", resp.StatusCode).
			Str("integration_id", payload.IntegrationID).
			Msg("Gateway refused submission")
		return nil, &domain.GatewayError{
			StatusCode: resp.StatusCode,
			Detail:     string(respBody),
		}
	}

	var parsed submitResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}

	externalID := parsed.ID
	if externalID == "" && len(parsed.Documents) > 0 {
		externalID = parsed.Documents[0].ID
	}

	result := &gateway.SubmitResult{
		ExternalID: externalID,
		Detail:     parsed.Reason,
		Raw:        json.RawMessage(respBody),
	}
	switch parsed.Status {
	case "CONCLUIDO":
		result.Outcome = gateway.OutcomeCompleted
	case "REJEITADO":
		result.Outcome = gateway.OutcomeRejected
	default:
		result.Outcome = gateway.OutcomeAccepted
	}
	return result, nil
}
