package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/notafacil/nfse-agent/internal/domain"
)

// BuildPrompt creates the extraction prompt for one inbound message. The
// prior record is rendered as context so the engine does not ask again
// for fields the user already supplied.
func BuildPrompt(text string, prior domain.InvoiceData) string {
	return fmt.Sprintf(`Você é um extrator de dados para emissão de nota fiscal de serviço (NFSe).
Extraia da mensagem do usuário os três campos abaixo. Não invente valores.

Campos:
- cnpj: CNPJ do tomador do serviço
- valor: valor monetário do serviço
- descricao: descrição do serviço prestado

Para cada campo informe "status":
- "present" quando o campo aparece na mensagem com um valor legível ("value" obrigatório)
- "unparseable" quando o usuário tentou informar o campo mas o valor está ilegível
- "absent" quando a mensagem não menciona o campo

Responda APENAS com JSON neste formato, sem markdown:
{"cnpj":{"status":"...","value":"..."},"valor":{"status":"...","value":"..."},"descricao":{"status":"...","value":"..."},"clarification":"..."}

Em "clarification" escreva uma frase curta e cordial pedindo apenas o que ainda falta,
ou uma frase de confirmação quando nada falta.

%s
Mensagem do usuário: %s`, priorContext(prior), text)
}

// priorContext renders the accumulated record as textual context,
// mirroring what was already collected or rejected.
func priorContext(prior domain.InvoiceData) string {
	var lines []string

	describe := func(name string, fg domain.FieldGroup) {
		switch fg.Status {
		case domain.FieldValidated:
			lines = append(lines, fmt.Sprintf("- %s já informado: %s", name, fg.Normalized))
		case domain.FieldInvalid:
			lines = append(lines, fmt.Sprintf("- %s informado está com erro: %s", name, fg.Issue))
		default:
			lines = append(lines, fmt.Sprintf("- %s ainda não foi informado", name))
		}
	}
	describe("CNPJ", prior.TaxID)
	describe("valor", prior.Amount)
	describe("descrição", prior.Description)

	return "CONTEXTO ATUAL:\n" + strings.Join(lines, "\n") + "\n"
}

// ParseResponse decodes the engine output into an Extraction, tolerating
// markdown code fences around the JSON.
func ParseResponse(content string) (*Extraction, error) {
	payload := stripCodeFence(content)

	var ext Extraction
	if err := json.Unmarshal([]byte(payload), &ext); err != nil {
		return nil, fmt.Errorf("malformed extraction output: %w", err)
	}

	normalize := func(c *Candidate) {
		switch c.Status {
		case CandidatePresent, CandidateUnparseable:
		default:
			c.Status = CandidateAbsent
		}
	}
	normalize(&ext.TaxID)
	normalize(&ext.Amount)
	normalize(&ext.Description)

	return &ext, nil
}

func stripCodeFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
