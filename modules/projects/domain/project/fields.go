package project

type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindAmount
	KindDate
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindAmount:
		return "amount"
	case KindDate:
		return "date"
	case KindStatus:
		return "status"
	default:
		return "text"
	}
}

// Field describes one canonical column of a project record.
type Field struct {
	ID   string
	Kind Kind

	text   func(*Record) **string
	number func(*Record) **float64
	date   func(*Record) **int64
}

func textField(id string, kind Kind, get func(*Record) **string) Field {
	return Field{ID: id, Kind: kind, text: get}
}

func numberField(id string, kind Kind, get func(*Record) **float64) Field {
	return Field{ID: id, Kind: kind, number: get}
}

func dateField(id string, get func(*Record) **int64) Field {
	return Field{ID: id, Kind: KindDate, date: get}
}

// Fields is the canonical catalog in column order.
var Fields = []Field{
	textField("ovp_number", KindText, func(r *Record) **string { return &r.OVPNumber }),
	textField("account_name", KindText, func(r *Record) **string { return &r.AccountName }),
	textField("project_name", KindText, func(r *Record) **string { return &r.ProjectName }),
	textField("project_category", KindText, func(r *Record) **string { return &r.ProjectCategory }),
	textField("project_location", KindText, func(r *Record) **string { return &r.ProjectLocation }),
	textField("scope_of_work", KindText, func(r *Record) **string { return &r.ScopeOfWork }),
	textField("project_director", KindText, func(r *Record) **string { return &r.ProjectDirector }),
	numberField("contract_amount", KindAmount, func(r *Record) **float64 { return &r.ContractAmount }),
	numberField("updated_contract_amount", KindAmount, func(r *Record) **float64 { return &r.UpdatedContractAmount }),
	numberField("down_payment_percent", KindNumber, func(r *Record) **float64 { return &r.DownPaymentPercent }),
	numberField("billed_amount", KindAmount, func(r *Record) **float64 { return &r.BilledAmount }),
	numberField("billed_percent", KindNumber, func(r *Record) **float64 { return &r.BilledPercent }),
	numberField("collected_amount", KindAmount, func(r *Record) **float64 { return &r.CollectedAmount }),
	numberField("balance", KindAmount, func(r *Record) **float64 { return &r.Balance }),
	numberField("percent_completion", KindNumber, func(r *Record) **float64 { return &r.PercentCompletion }),
	numberField("duration_days", KindNumber, func(r *Record) **float64 { return &r.DurationDays }),
	dateField("po_date", func(r *Record) **int64 { return &r.PODate }),
	dateField("start_date", func(r *Record) **int64 { return &r.StartDate }),
	dateField("completion_date", func(r *Record) **int64 { return &r.CompletionDate }),
	dateField("mobilization_date", func(r *Record) **int64 { return &r.MobilizationDate }),
	dateField("rfb_date", func(r *Record) **int64 { return &r.RFBDate }),
	textField("project_status", KindStatus, func(r *Record) **string { return &r.ProjectStatus }),
	textField("billing_status", KindStatus, func(r *Record) **string { return &r.BillingStatus }),
	textField("remarks", KindText, func(r *Record) **string { return &r.Remarks }),
}

// Defaults is the single place per-field fallbacks are declared. Fields not
// listed default to nil.
var Defaults = map[string]any{
	"contract_amount":         0.0,
	"updated_contract_amount": 0.0,
	"billed_amount":           0.0,
	"collected_amount":        0.0,
	"balance":                 0.0,
	"project_status":          StatusOpen,
	"billing_status":          StatusUnbilled,
}

var fieldIndex = func() map[string]int {
	m := make(map[string]int, len(Fields))
	for i, f := range Fields {
		m[f.ID] = i
	}
	return m
}()

func FieldByID(id string) (Field, bool) {
	i, ok := fieldIndex[id]
	if !ok {
		return Field{}, false
	}
	return Fields[i], true
}

// IsText reports whether the field holds a string.
func (f Field) IsText() bool {
	return f.text != nil
}

// Value returns the field of r as a plain value or nil.
func (f Field) Value(r *Record) any {
	switch {
	case f.text != nil:
		if p := *f.text(r); p != nil {
			return *p
		}
	case f.number != nil:
		if p := *f.number(r); p != nil {
			return *p
		}
	case f.date != nil:
		if p := *f.date(r); p != nil {
			return *p
		}
	}
	return nil
}

// Set stores an already coerced value. A value of the wrong type clears the
// field.
func (f Field) Set(r *Record, v any) {
	switch {
	case f.text != nil:
		s, ok := v.(string)
		if !ok {
			*f.text(r) = nil
			return
		}
		*f.text(r) = &s
	case f.number != nil:
		n, ok := v.(float64)
		if !ok {
			*f.number(r) = nil
			return
		}
		*f.number(r) = &n
	case f.date != nil:
		n, ok := v.(int64)
		if !ok {
			*f.date(r) = nil
			return
		}
		*f.date(r) = &n
	}
}

// IsSet reports whether the field holds a value.
func (f Field) IsSet(r *Record) bool {
	return f.Value(r) != nil
}

// ApplyDefaults fills every unset field that has a declared default.
func ApplyDefaults(r *Record) {
	for _, f := range Fields {
		if f.IsSet(r) {
			continue
		}
		if def, ok := Defaults[f.ID]; ok {
			f.Set(r, def)
		}
	}
}
