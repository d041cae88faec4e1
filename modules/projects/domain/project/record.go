package project

import (
	"encoding/json"
	"strings"
)

const (
	StatusOpen     = "OPEN"
	StatusUnbilled = "UNBILLED"
)

// Record is one canonical project row.
type Record struct {
	ID int64 `json:"id,omitempty"`

	OVPNumber       *string `json:"ovp_number" validate:"omitempty,max=64"`
	AccountName     *string `json:"account_name" validate:"omitempty,max=512"`
	ProjectName     *string `json:"project_name" validate:"required,max=1024"`
	ProjectCategory *string `json:"project_category"`
	ProjectLocation *string `json:"project_location"`
	ScopeOfWork     *string `json:"scope_of_work"`
	ProjectDirector *string `json:"project_director" validate:"omitempty,max=128"`

	ContractAmount        *float64 `json:"contract_amount"`
	UpdatedContractAmount *float64 `json:"updated_contract_amount"`
	DownPaymentPercent    *float64 `json:"down_payment_percent"`
	BilledAmount          *float64 `json:"billed_amount"`
	BilledPercent         *float64 `json:"billed_percent"`
	CollectedAmount       *float64 `json:"collected_amount"`
	Balance               *float64 `json:"balance"`
	PercentCompletion     *float64 `json:"percent_completion"`
	DurationDays          *float64 `json:"duration_days" validate:"omitempty,gte=0"`

	PODate           *int64 `json:"po_date"`
	StartDate        *int64 `json:"start_date"`
	CompletionDate   *int64 `json:"completion_date"`
	MobilizationDate *int64 `json:"mobilization_date"`
	RFBDate          *int64 `json:"rfb_date"`

	ProjectStatus *string `json:"project_status" validate:"required,max=64"`
	BillingStatus *string `json:"billing_status" validate:"required,max=64"`
	Remarks       *string `json:"remarks"`

	RawData json.RawMessage `json:"raw_data,omitempty"`
	Extra   map[string]any  `json:"extra_fields,omitempty"`

	CreatedAt int64 `json:"created_at,omitempty"`
	UpdatedAt int64 `json:"updated_at,omitempty"`

	// Where the row came from; not persisted.
	SourceRow   int    `json:"-"`
	SourceLine  int    `json:"-"`
	SourceSheet string `json:"-"`
}

// Key returns the trimmed value of a text field used as business key, or ""
// when the field is unset or not a text field.
func (r *Record) Key(field string) string {
	f, ok := FieldByID(field)
	if !ok || f.text == nil {
		return ""
	}
	if p := *f.text(r); p != nil {
		return strings.TrimSpace(*p)
	}
	return ""
}

func (r *Record) Director() string {
	if r.ProjectDirector == nil {
		return ""
	}
	return *r.ProjectDirector
}
