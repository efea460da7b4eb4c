package extract

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/notafacil/nfse-agent/internal/domain"
	"github.com/shopspring/decimal"
)

// Result of merging one extraction into the accumulated record.
type Result struct {
	Record  domain.InvoiceData
	Missing []string
	Invalid []string
}

// Merge folds the newly extracted candidates into the previous record.
//
// Per field-group: an absent candidate keeps the prior status untouched;
// an attempted candidate is validated and overwrites whatever was there
// before - including a previously validated value, since the user is
// actively trying to correct it. Merge is a pure function of its inputs.
func Merge(prev domain.InvoiceData, ext Extraction) Result {
	next := prev

	if ext.TaxID.Attempted() {
		next.TaxID = validateTaxID(ext.TaxID)
	}
	if ext.Amount.Attempted() {
		next.Amount = validateAmount(ext.Amount)
	}
	if ext.Description.Attempted() {
		next.Description = validateDescription(ext.Description)
	}

	return Result{
		Record:  next,
		Missing: next.MissingFields(),
		Invalid: next.InvalidFields(),
	}
}

var nonDigits = regexp.MustCompile(`\D`)

// validateTaxID normalizes and validates a CNPJ: 14 digits, not all
// identical, mod-11 check digits.
func validateTaxID(c Candidate) domain.FieldGroup {
	fg := domain.FieldGroup{Status: domain.FieldExtracted, Raw: c.Value}
	if c.Status == CandidateUnparseable {
		return invalidField(fg, domain.ErrKindUnparseable, "não consegui entender o CNPJ informado")
	}

	digits := nonDigits.ReplaceAllString(c.Value, "")
	if len(digits) != 14 {
		return invalidField(fg, domain.ErrKindInvalidFormat,
			fmt.Sprintf("CNPJ deve ter 14 dígitos (informado: %d)", len(digits)))
	}
	if strings.Count(digits, digits[:1]) == 14 {
		return invalidField(fg, domain.ErrKindInvalidFormat,
			"CNPJ não pode ter todos os dígitos iguais")
	}
	if !validCheckDigits(digits) {
		return invalidField(fg, domain.ErrKindCheckDigit,
			"dígitos verificadores do CNPJ estão incorretos")
	}

	fg.Status = domain.FieldValidated
	fg.Normalized = digits
	return fg
}

// validCheckDigits runs the CNPJ mod-11 verification on the last two
// digits.
func validCheckDigits(cnpj string) bool {
	mult1 := []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	mult2 := []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}

	digit := func(mult []int) int {
		sum := 0
		for i, m := range mult {
			sum += int(cnpj[i]-'0') * m
		}
		rest := sum % 11
		if rest < 2 {
			return 0
		}
		return 11 - rest
	}

	return int(cnpj[12]-'0') == digit(mult1) && int(cnpj[13]-'0') == digit(mult2)
}

// validateAmount parses the monetary value and requires it to be
// strictly positive. The normalized form is a plain decimal string with
// two places.
func validateAmount(c Candidate) domain.FieldGroup {
	fg := domain.FieldGroup{Status: domain.FieldExtracted, Raw: c.Value}
	if c.Status == CandidateUnparseable {
		return invalidField(fg, domain.ErrKindUnparseable, "não consegui entender o valor informado")
	}

	value, err := parseAmount(c.Value)
	if err != nil {
		return invalidField(fg, domain.ErrKindInvalidFormat,
			fmt.Sprintf("valor inválido: %q", c.Value))
	}
	if value.LessThanOrEqual(decimal.Zero) {
		return invalidField(fg, domain.ErrKindNonPositiveAmount,
			fmt.Sprintf("valor deve ser maior que zero (informado: %s)", value.StringFixed(2)))
	}

	fg.Status = domain.FieldValidated
	fg.Normalized = value.StringFixed(2)
	return fg
}

// parseAmount accepts both Brazilian ("1.234,56") and plain ("1234.56")
// number formats.
func parseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	return decimal.NewFromString(s)
}

// validateDescription trims and bounds the service description.
func validateDescription(c Candidate) domain.FieldGroup {
	fg := domain.FieldGroup{Status: domain.FieldExtracted, Raw: c.Value}
	if c.Status == CandidateUnparseable {
		return invalidField(fg, domain.ErrKindUnparseable, "não consegui entender a descrição do serviço")
	}

	desc := strings.TrimSpace(c.Value)
	// character bounds, not byte bounds: accented pt-BR text is multi-byte
	length := utf8.RuneCountInString(desc)
	if length < 10 {
		return invalidField(fg, domain.ErrKindLengthOutOfRange,
			fmt.Sprintf("descrição deve ter pelo menos 10 caracteres (informado: %d)", length))
	}
	if length > 500 {
		return invalidField(fg, domain.ErrKindLengthOutOfRange,
			fmt.Sprintf("descrição não pode exceder 500 caracteres (informado: %d)", length))
	}

	fg.Status = domain.FieldValidated
	fg.Normalized = desc
	return fg
}

func invalidField(fg domain.FieldGroup, kind domain.FieldErrorKind, issue string) domain.FieldGroup {
	fg.Status = domain.FieldInvalid
	fg.Normalized = ""
	fg.Issue = issue
	fg.ErrorKind = kind
	return fg
}
