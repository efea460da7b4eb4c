package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/notafacil/nfse-agent/internal/domain"
	"github.com/notafacil/nfse-agent/internal/extract"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

const defaultModel = "gemini-2.5-flash"

// Provider implements extract.Extractor on top of the Gemini API.
type Provider struct {
	apiKey string
	model  string
}

func NewProvider(apiKey, model string) *Provider {
	if model == "" {
		model = defaultModel
	}
	return &Provider{apiKey: apiKey, model: model}
}

func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

// Extract sends the message plus the prior record to Gemini and parses
// the structured candidate output.
func (p *Provider) Extract(ctx context.Context, text string, prior domain.InvoiceData) (*extract.Extraction, error) {
	if !p.IsConfigured() {
		return nil, fmt.Errorf("gemini provider is not configured (missing API key)")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	defer client.Close()

	generativeModel := client.GenerativeModel(p.model)
	// Low temperature keeps the field extraction deterministic
	var temperature float32 = 0.1
	generativeModel.Temperature = &temperature
	generativeModel.ResponseMIMEType = "application/json"

	prompt := extract.BuildPrompt(text, prior)

	resp, err := generativeModel.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("gemini generation error: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from gemini")
	}

	var output string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			output += string(text)
		}
	}

	ext, err := extract.ParseResponse(output)
	if err != nil {
		log.Warn().Str("model", p.model).Str("output", output).Msg("unparseable extraction output")
		return nil, err
	}

	return ext, nil
}
