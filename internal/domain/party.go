package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// IssuerProfile is the service-provider company authorized to emit
// invoices from a given originating address. Resolution is unambiguous by
// construction: at most one active profile exists per address.
type IssuerProfile struct {
	ID           int64           `json:"id"`
	Address      string          `json:"address"`
	ContactName  string          `json:"contact_name"`
	CompanyTaxID string          `json:"company_tax_id"`
	CompanyName  string          `json:"company_name"`
	ServiceCode  string          `json:"service_code"`
	TaxationCode string          `json:"taxation_code"`
	CNAE         string          `json:"cnae"`
	ISSRate      decimal.Decimal `json:"iss_rate"`
	Active       bool            `json:"active"`
}

// IssuerDirectory resolves the invoice issuer from the originating
// address. Absence is reported as ErrIssuerNotFound.
type IssuerDirectory interface {
	FindActiveByAddress(ctx context.Context, address string) (*IssuerProfile, error)
}

// Counterparty is the payer company looked up in the external registry,
// cached by normalized tax id. Cached entries are a deliberate audit
// snapshot and are never invalidated automatically.
type Counterparty struct {
	TaxID       string          `json:"tax_id"`
	LegalName   string          `json:"legal_name"`
	TradeName   string          `json:"trade_name,omitempty"`
	Email       string          `json:"email,omitempty"`
	Zip         string          `json:"zip"`
	Street      string          `json:"street"`
	Number      string          `json:"number"`
	Complement  string          `json:"complement,omitempty"`
	District    string          `json:"district"`
	City        string          `json:"city"`
	CityCode    string          `json:"city_code"`
	State       string          `json:"state"`
	RegistryRaw json.RawMessage `json:"registry_raw,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CounterpartyRepository is the durable identity cache. Save may be
// called redundantly by concurrent lookups for the same key; last write
// wins.
type CounterpartyRepository interface {
	GetByTaxID(ctx context.Context, taxID string) (*Counterparty, error)
	Save(ctx context.Context, c *Counterparty) error
}
