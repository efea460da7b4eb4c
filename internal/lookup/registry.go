package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/notafacil/nfse-agent/internal/config"
	"github.com/notafacil/nfse-agent/internal/domain"
	"github.com/rs/zerolog/log"
)

// RegistryClient queries the public company registry for counterparty
// identity by tax id.
type RegistryClient struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// NewRegistryClient creates a new registry client
func NewRegistryClient(cfg config.RegistryConfig) *RegistryClient {
	return &RegistryClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
	}
}

// registryResponse mirrors the registry's JSON payload. Only the fields
// we carry into the counterparty record are decoded; the full body is
// kept raw for audit.
type registryResponse struct {
	CNPJ         string          `json:"cnpj"`
	LegalName    string          `json:"razao_social"`
	TradeName    string          `json:"nome_fantasia"`
	Email        string          `json:"email"`
	Zip          string          `json:"cep"`
	Street       string          `json:"logradouro"`
	Number       string          `json:"numero"`
	Complement   string          `json:"complemento"`
	District     string          `json:"bairro"`
	City         string          `json:"municipio"`
	CityCodeIBGE json.RawMessage `json:"codigo_municipio_ibge"`
	State        string          `json:"uf"`
}

// Lookup fetches the company identified by the normalized tax id.
// An unknown tax id maps to domain.ErrCounterpartyNotFound; network
// failures and registry-side errors come back as TransientLookupError
// so callers can retry.
func (c *RegistryClient) Lookup(ctx context.Context, taxID string) (*domain.Counterparty, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().
				Str("tax_id", taxID).
				Int("attempt", attempt).
				Err(lastErr).
				Msg("Retrying registry lookup")
		}

		cp, err := c.lookupOnce(ctx, taxID)
		if err == nil {
			return cp, nil
		}
		if !domain.IsTransientLookup(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *RegistryClient) lookupOnce(ctx context.Context, taxID string) (*domain.Counterparty, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, taxID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransientLookupError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransientLookupError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrCounterpartyNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, &domain.TransientLookupError{
			Err: fmt.Errorf("registry returned status %d", resp.StatusCode),
		}
	}

	var parsed registryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode registry response: %w", err)
	}

	return &domain.Counterparty{
		TaxID:       taxID,
		LegalName:   parsed.LegalName,
		TradeName:   parsed.TradeName,
		Email:       parsed.Email,
		Zip:         parsed.Zip,
		Street:      parsed.Street,
		Number:      parsed.Number,
		Complement:  parsed.Complement,
		District:    parsed.District,
		City:        parsed.City,
		CityCode:    rawToString(parsed.CityCodeIBGE),
		State:       parsed.State,
		RegistryRaw: json.RawMessage(body),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// rawToString normalizes the city code, which the registry serves
// sometimes as a number and sometimes as a string.
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return ""
}
