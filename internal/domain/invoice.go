package domain

// FieldStatus is the closed set of extraction/validation states a
// field-group can be in.
type FieldStatus string

const (
	FieldAbsent    FieldStatus = "absent"
	FieldExtracted FieldStatus = "extracted"
	FieldValidated FieldStatus = "validated"
	FieldInvalid   FieldStatus = "invalid"
)

// FieldErrorKind classifies why a field-group failed validation
type FieldErrorKind string

const (
	ErrKindInvalidFormat     FieldErrorKind = "invalid_format"
	ErrKindCheckDigit        FieldErrorKind = "check_digit_mismatch"
	ErrKindNonPositiveAmount FieldErrorKind = "non_positive_amount"
	ErrKindLengthOutOfRange  FieldErrorKind = "length_out_of_range"
	ErrKindUnparseable       FieldErrorKind = "unparseable"
)

// Field group names as they appear in missing/invalid lists and in the
// durable snapshot.
const (
	FieldTaxID       = "cnpj"
	FieldAmount      = "valor"
	FieldDescription = "descricao"
)

// FieldGroup is one required structured datum of the invoice with its own
// extraction and validation status.
type FieldGroup struct {
	Status     FieldStatus    `json:"status"`
	Raw        string         `json:"raw,omitempty"`
	Normalized string         `json:"normalized,omitempty"`
	Issue      string         `json:"issue,omitempty"`
	ErrorKind  FieldErrorKind `json:"error_kind,omitempty"`
}

// zero-value FieldGroup has Status "" which we treat as absent
func (f FieldGroup) status() FieldStatus {
	if f.Status == "" {
		return FieldAbsent
	}
	return f.Status
}

// Validated reports whether the field passed domain validation.
func (f FieldGroup) Validated() bool { return f.status() == FieldValidated }

// InvoiceData is the accumulated structured record built up across
// conversation turns: the payer tax id, the service amount and the
// service description.
type InvoiceData struct {
	TaxID       FieldGroup `json:"cnpj"`
	Amount      FieldGroup `json:"valor"`
	Description FieldGroup `json:"descricao"`
}

// Complete reports whether every required field-group is validated.
func (d InvoiceData) Complete() bool {
	return d.TaxID.Validated() && d.Amount.Validated() && d.Description.Validated()
}

// MissingFields lists required field-groups not yet validated, excluding
// those carrying an explicit validation failure.
func (d InvoiceData) MissingFields() []string {
	var missing []string
	for _, fg := range []struct {
		name  string
		field FieldGroup
	}{
		{FieldTaxID, d.TaxID},
		{FieldAmount, d.Amount},
		{FieldDescription, d.Description},
	} {
		switch fg.field.status() {
		case FieldAbsent, FieldExtracted:
			missing = append(missing, fg.name)
		}
	}
	return missing
}

// InvalidFields lists field-groups whose latest value failed validation,
// each with its human-readable issue.
func (d InvoiceData) InvalidFields() []string {
	var invalid []string
	for _, fg := range []struct {
		name  string
		field FieldGroup
	}{
		{FieldTaxID, d.TaxID},
		{FieldAmount, d.Amount},
		{FieldDescription, d.Description},
	} {
		if fg.field.status() == FieldInvalid {
			invalid = append(invalid, fg.name+": "+fg.field.Issue)
		}
	}
	return invalid
}
