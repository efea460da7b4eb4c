package service

import (
	"fmt"
	"strings"

	"github.com/notafacil/nfse-agent/internal/domain"
	"github.com/shopspring/decimal"
)

// Reply texts sent back to the user. The channel is Brazilian Portuguese
// end to end; field names match what the user typed.

var fieldLabels = map[string]string{
	domain.FieldTaxID:       "CNPJ do tomador",
	domain.FieldAmount:      "valor do serviço",
	domain.FieldDescription: "descrição do serviço",
}

func replyWelcome(contactName string) string {
	greeting := "Olá"
	if contactName != "" {
		greeting = "Olá, " + contactName
	}
	return greeting + "! Vou te ajudar a emitir sua nota fiscal de serviço.\n\n" +
		"Me envie os dados da nota: CNPJ do tomador, valor do serviço e descrição do serviço."
}

func replyNotRegistered() string {
	return "Este número não está cadastrado para emissão de notas fiscais. " +
		"Entre em contato com o suporte para ativar sua conta."
}

func replyExpired() string {
	return "Sua sessão anterior expirou por inatividade. Vamos começar de novo.\n\n"
}

func replyExtractionUnavailable() string {
	return "Não consegui processar sua mensagem agora. Pode tentar novamente em instantes?"
}

// replyIncomplete asks for what is still missing and reports what failed
// validation.
func replyIncomplete(missing, invalid []string, clarification string) string {
	var b strings.Builder

	if len(invalid) > 0 {
		b.WriteString("⚠️ Alguns dados precisam de correção:\n")
		for _, issue := range invalid {
			b.WriteString("• " + issue + "\n")
		}
		b.WriteString("\n")
	}

	if len(missing) > 0 {
		labels := make([]string, 0, len(missing))
		for _, name := range missing {
			if label, ok := fieldLabels[name]; ok {
				labels = append(labels, label)
			} else {
				labels = append(labels, name)
			}
		}
		b.WriteString("Ainda preciso de: " + strings.Join(labels, ", ") + ".")
	}

	if clarification != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(clarification)
	}

	if b.Len() == 0 {
		b.WriteString("Me envie os dados da nota: CNPJ do tomador, valor e descrição do serviço.")
	}
	return b.String()
}

// replySummary renders the invoice mirror presented before confirmation.
func replySummary(invoice domain.InvoiceData, issuer *domain.IssuerProfile) string {
	amount := invoice.Amount.Normalized
	issAmount := ""
	if value, err := decimal.NewFromString(amount); err == nil {
		issAmount = value.Mul(issuer.ISSRate).Div(decimal.NewFromInt(100)).StringFixed(2)
	}

	var b strings.Builder
	b.WriteString("📋 *Espelho da Nota Fiscal*\n\n")
	b.WriteString("Prestador: " + issuer.CompanyName + "\n")
	b.WriteString("CNPJ do tomador: " + formatTaxID(invoice.TaxID.Normalized) + "\n")
	b.WriteString("Valor do serviço: R$ " + formatAmount(amount) + "\n")
	if issAmount != "" {
		b.WriteString(fmt.Sprintf("ISS (%s%%): R$ %s\n", issuer.ISSRate.String(), formatAmount(issAmount)))
	}
	b.WriteString("Descrição: " + invoice.Description.Normalized + "\n\n")
	b.WriteString("Confirma a emissão? Responda *SIM* para emitir ou *NÃO* para cancelar.")
	return b.String()
}

func replyUnrecognizedConfirmation(invoice domain.InvoiceData, issuer *domain.IssuerProfile) string {
	return "Não entendi sua resposta. " +
		"Responda *SIM* para emitir a nota ou *NÃO* para cancelar.\n\n" +
		replySummary(invoice, issuer)
}

func replyProcessing(correlationID string) string {
	return fmt.Sprintf(
		"✅ Nota fiscal enviada para processamento!\n\nProtocolo: %s\n\nVocê será avisado assim que a prefeitura processar a emissão.",
		correlationID,
	)
}

func replyApproved(number, pdfURL string) string {
	var b strings.Builder
	b.WriteString("🎉 Nota fiscal emitida com sucesso!")
	if number != "" {
		b.WriteString("\n\nNúmero da nota: " + number)
	}
	if pdfURL != "" {
		b.WriteString("\nPDF: " + pdfURL)
	}
	return b.String()
}

func replyRejected(detail string) string {
	msg := "❌ A emissão da nota fiscal foi rejeitada pela prefeitura."
	if detail != "" {
		msg += "\n\nMotivo: " + detail
	}
	return msg
}

func replyCancelled() string {
	return "Emissão cancelada. Quando quiser emitir outra nota, é só me enviar os dados."
}

func replyPayerNotFound(taxID string) string {
	return fmt.Sprintf(
		"Não encontrei nenhuma empresa com o CNPJ %s no cadastro nacional. Verifique o número e envie novamente.",
		formatTaxID(taxID),
	)
}

func replyEmissionError(correlationID string) string {
	return fmt.Sprintf(
		"😕 Ocorreu um erro ao enviar sua nota fiscal. Nossa equipe foi notificada.\n\nReferência: %s",
		correlationID,
	)
}

// formatTaxID renders a 14-digit CNPJ as 00.000.000/0000-00.
func formatTaxID(digits string) string {
	if len(digits) != 14 {
		return digits
	}
	return fmt.Sprintf("%s.%s.%s/%s-%s",
		digits[0:2], digits[2:5], digits[5:8], digits[8:12], digits[12:14])
}

// formatAmount renders a plain decimal string in Brazilian format.
func formatAmount(plain string) string {
	parts := strings.SplitN(plain, ".", 2)
	intPart := parts[0]
	fracPart := "00"
	if len(parts) == 2 {
		fracPart = parts[1]
	}

	var groups []string
	for len(intPart) > 3 {
		groups = append([]string{intPart[len(intPart)-3:]}, groups...)
		intPart = intPart[:len(intPart)-3]
	}
	groups = append([]string{intPart}, groups...)

	return strings.Join(groups, ".") + "," + fracPart
}
