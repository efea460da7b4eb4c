package extract

import (
	"strings"
	"testing"

	"github.com/notafacil/nfse-agent/internal/domain"
	"github.com/stretchr/testify/assert"
)

// 11.222.333/0001-81 passes the check-digit verification.
const validCNPJ = "11222333000181"

func present(value string) Candidate {
	return Candidate{Status: CandidatePresent, Value: value}
}

func TestMerge_AllFieldsInOneMessage(t *testing.T) {
	res := Merge(domain.InvoiceData{}, Extraction{
		TaxID:       present("11.222.333/0001-81"),
		Amount:      present("R$ 1.500,00"),
		Description: present("Consultoria em engenharia de software"),
	})

	assert.True(t, res.Record.Complete())
	assert.Empty(t, res.Missing)
	assert.Empty(t, res.Invalid)
	assert.Equal(t, validCNPJ, res.Record.TaxID.Normalized)
	assert.Equal(t, "1500.00", res.Record.Amount.Normalized)
	assert.Equal(t, "Consultoria em engenharia de software", res.Record.Description.Normalized)
}

func TestMerge_AbsentCandidateKeepsPriorField(t *testing.T) {
	first := Merge(domain.InvoiceData{}, Extraction{TaxID: present(validCNPJ)})
	assert.True(t, first.Record.TaxID.Validated())

	second := Merge(first.Record, Extraction{
		Amount: present("250,00"),
	})

	// tax id untouched, amount added
	assert.True(t, second.Record.TaxID.Validated())
	assert.Equal(t, validCNPJ, second.Record.TaxID.Normalized)
	assert.True(t, second.Record.Amount.Validated())
	assert.Equal(t, []string{domain.FieldDescription}, second.Missing)
}

func TestMerge_InvalidResubmissionOverwritesValidated(t *testing.T) {
	first := Merge(domain.InvoiceData{}, Extraction{TaxID: present(validCNPJ)})
	assert.True(t, first.Record.TaxID.Validated())

	second := Merge(first.Record, Extraction{TaxID: present("11222333000199")})

	assert.False(t, second.Record.TaxID.Validated())
	assert.Equal(t, domain.FieldInvalid, second.Record.TaxID.Status)
	assert.Equal(t, domain.ErrKindCheckDigit, second.Record.TaxID.ErrorKind)
	assert.Empty(t, second.Record.TaxID.Normalized)
	assert.Contains(t, second.Invalid[0], domain.FieldTaxID)
}

func TestMerge_ValidResubmissionRepairsInvalid(t *testing.T) {
	first := Merge(domain.InvoiceData{}, Extraction{TaxID: present("123")})
	assert.Equal(t, domain.FieldInvalid, first.Record.TaxID.Status)

	second := Merge(first.Record, Extraction{TaxID: present(validCNPJ)})
	assert.True(t, second.Record.TaxID.Validated())
	assert.Empty(t, second.Invalid)
}

func TestMerge_IsPure(t *testing.T) {
	prev := Merge(domain.InvoiceData{}, Extraction{TaxID: present(validCNPJ)}).Record
	ext := Extraction{Amount: present("100")}

	a := Merge(prev, ext)
	b := Merge(prev, ext)

	assert.Equal(t, a, b)
	// input record not mutated
	assert.Equal(t, domain.FieldStatus(""), prev.Amount.Status)
}

func TestMerge_UnparseableCandidate(t *testing.T) {
	res := Merge(domain.InvoiceData{}, Extraction{
		Amount: Candidate{Status: CandidateUnparseable, Value: "uns mil e pouco"},
	})

	assert.Equal(t, domain.FieldInvalid, res.Record.Amount.Status)
	assert.Equal(t, domain.ErrKindUnparseable, res.Record.Amount.ErrorKind)
}

func TestValidateTaxID(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		status domain.FieldStatus
		kind   domain.FieldErrorKind
	}{
		{"valid with punctuation", "11.222.333/0001-81", domain.FieldValidated, ""},
		{"valid bare digits", validCNPJ, domain.FieldValidated, ""},
		{"too short", "1122233300018", domain.FieldInvalid, domain.ErrKindInvalidFormat},
		{"too long", "112223330001811", domain.FieldInvalid, domain.ErrKindInvalidFormat},
		{"all same digits", "11111111111111", domain.FieldInvalid, domain.ErrKindInvalidFormat},
		{"wrong check digits", "11222333000180", domain.FieldInvalid, domain.ErrKindCheckDigit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fg := validateTaxID(present(tt.value))
			assert.Equal(t, tt.status, fg.Status)
			if tt.kind != "" {
				assert.Equal(t, tt.kind, fg.ErrorKind)
				assert.NotEmpty(t, fg.Issue)
			}
		})
	}
}

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		status     domain.FieldStatus
		normalized string
	}{
		{"brazilian format", "1.234,56", domain.FieldValidated, "1234.56"},
		{"with currency prefix", "R$ 2.500,00", domain.FieldValidated, "2500.00"},
		{"plain decimal", "1234.56", domain.FieldValidated, "1234.56"},
		{"integer", "300", domain.FieldValidated, "300.00"},
		{"zero", "0", domain.FieldInvalid, ""},
		{"negative", "-10,00", domain.FieldInvalid, ""},
		{"garbage", "abc", domain.FieldInvalid, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fg := validateAmount(present(tt.value))
			assert.Equal(t, tt.status, fg.Status)
			assert.Equal(t, tt.normalized, fg.Normalized)
		})
	}
}

func TestValidateDescription(t *testing.T) {
	fg := validateDescription(present("  Consultoria em TI  "))
	assert.True(t, fg.Validated())
	assert.Equal(t, "Consultoria em TI", fg.Normalized)

	short := validateDescription(present("curto"))
	assert.Equal(t, domain.FieldInvalid, short.Status)
	assert.Equal(t, domain.ErrKindLengthOutOfRange, short.ErrorKind)

	long := validateDescription(present(strings.Repeat("a", 501)))
	assert.Equal(t, domain.FieldInvalid, long.Status)
	assert.Equal(t, domain.ErrKindLengthOutOfRange, long.ErrorKind)
}

func TestValidateDescription_CountsCharactersNotBytes(t *testing.T) {
	// 9 characters, 13 bytes: still too short
	short := validateDescription(present("ação cçãé"))
	assert.Equal(t, domain.FieldInvalid, short.Status)
	assert.Equal(t, domain.ErrKindLengthOutOfRange, short.ErrorKind)

	// 300 characters, 600 bytes: within bounds
	accented := validateDescription(present(strings.Repeat("ã", 300)))
	assert.True(t, accented.Validated())

	// 500 characters, 1000 bytes: exactly at the limit
	limit := validateDescription(present(strings.Repeat("é", 500)))
	assert.True(t, limit.Validated())
}
