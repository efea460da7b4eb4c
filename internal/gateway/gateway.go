package gateway

import (
	"context"
	"encoding/json"

	"github.com/notafacil/nfse-agent/internal/domain"
	"github.com/shopspring/decimal"
)

// Outcome classifies the gateway's answer to a submission.
type Outcome string

const (
	// OutcomeAccepted means the gateway queued the emission and will
	// report the final result through the callback endpoint.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeCompleted means the gateway finalized the invoice in the
	// submission response itself.
	OutcomeCompleted Outcome = "completed"
	// OutcomeRejected means the gateway refused the invoice.
	OutcomeRejected Outcome = "rejected"
)

// SubmitResult is the gateway's answer to one submission.
type SubmitResult struct {
	ExternalID string
	Outcome    Outcome
	Detail     string
	Raw        json.RawMessage
}

// Gateway is the port to the external NFSe emission service.
type Gateway interface {
	Submit(ctx context.Context, payload *Payload) (*SubmitResult, error)
}

// Payload is the wire shape the emission gateway expects.
type Payload struct {
	IntegrationID string        `json:"idIntegracao"`
	Provider      Provider      `json:"prestador"`
	Customer      Customer      `json:"tomador"`
	Services      []ServiceItem `json:"servico"`
}

type Provider struct {
	TaxID string `json:"cpfCnpj"`
}

type Customer struct {
	TaxID     string  `json:"cpfCnpj"`
	LegalName string  `json:"razaoSocial"`
	Email     string  `json:"email,omitempty"`
	Address   Address `json:"endereco"`
}

type Address struct {
	Zip        string `json:"cep"`
	Street     string `json:"logradouro"`
	Number     string `json:"numero"`
	Complement string `json:"complemento,omitempty"`
	District   string `json:"bairro"`
	CityCode   string `json:"codigoCidade"`
	State      string `json:"estado"`
}

type ServiceItem struct {
	Code           string       `json:"codigo"`
	TaxationCode   string       `json:"codigoTributacao,omitempty"`
	Discrimination string       `json:"discriminacao"`
	CNAE           string       `json:"cnae,omitempty"`
	ISS            ISS          `json:"iss"`
	Value          ServiceValue `json:"valor"`
}

type ISS struct {
	TaxationType int             `json:"tipoTributacao"`
	Exigibility  int             `json:"exigibilidade"`
	Rate         decimal.Decimal `json:"aliquota"`
}

type ServiceValue struct {
	Service decimal.Decimal `json:"servico"`
}

// BuildPayload assembles the deterministic submission payload from the
// collected invoice, the issuer profile and the looked-up counterparty.
func BuildPayload(correlationID string, issuer *domain.IssuerProfile, payer *domain.Counterparty, amount decimal.Decimal, description string) *Payload {
	return &Payload{
		IntegrationID: correlationID,
		Provider:      Provider{TaxID: issuer.CompanyTaxID},
		Customer: Customer{
			TaxID:     payer.TaxID,
			LegalName: payer.LegalName,
			Email:     payer.Email,
			Address: Address{
				Zip:        payer.Zip,
				Street:     payer.Street,
				Number:     payer.Number,
				Complement: payer.Complement,
				District:   payer.District,
				CityCode:   payer.CityCode,
				State:      payer.State,
			},
		},
		Services: []ServiceItem{
			{
				Code:           issuer.ServiceCode,
				TaxationCode:   issuer.TaxationCode,
				Discrimination: description,
				CNAE:           issuer.CNAE,
				ISS: ISS{
					TaxationType: 6,
					Exigibility:  1,
					Rate:         issuer.ISSRate,
				},
				Value: ServiceValue{Service: amount},
			},
		},
	}
}

// Callback is the asynchronous outcome notification the gateway posts
// back after a queued submission finishes.
type Callback struct {
	ExternalID      string          `json:"id" validate:"required"`
	IntegrationID   string          `json:"idIntegracao"`
	Status          string          `json:"situacao" validate:"required"`
	Number          string          `json:"numeroNota"`
	Series          string          `json:"serie"`
	VerificationKey string          `json:"codigoVerificacao"`
	Protocol        string          `json:"protocolo"`
	XMLURL          string          `json:"xml"`
	PDFURL          string          `json:"pdf"`
	Reason          string          `json:"motivo"`
	Raw             json.RawMessage `json:"-"`
}

// Success reports whether the callback carries a finalized invoice.
func (c *Callback) Success() bool {
	return c.Status == "CONCLUIDO"
}
