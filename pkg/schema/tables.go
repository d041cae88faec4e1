// Package schema declares the canonical tables and provisions them on a store.
package schema

type Kind int

const (
	Text Kind = iota
	Integer
	Real
	Bool
	JSON
)

func (k Kind) String() string {
	switch k {
	case Integer:
		return "integer"
	case Real:
		return "real"
	case Bool:
		return "bool"
	case JSON:
		return "json"
	default:
		return "text"
	}
}

type Column struct {
	Name    string
	Kind    Kind
	NotNull bool
	// Default is an SQL literal valid in both dialects.
	Default    string
	References string
	OnDelete   string
}

type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// Table lists its columns without the implicit `id` identity column.
type Table struct {
	Name    string
	Columns []Column
	Indexes []Index
}

// Column returns the named column; `id` resolves to the identity column.
func (t Table) Column(name string) (Column, bool) {
	if name == IDColumn {
		return Column{Name: IDColumn, Kind: Integer, NotNull: true}, true
	}
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns id followed by every declared column.
func (t Table) ColumnNames() []string {
	out := make([]string, 0, len(t.Columns)+1)
	out = append(out, IDColumn)
	for _, c := range t.Columns {
		out = append(out, c.Name)
	}
	return out
}

const IDColumn = "id"

const (
	Users       = "users"
	Clients     = "clients"
	Suppliers   = "suppliers"
	Projects    = "projects"
	Attachments = "attachments"
)

// Tables is every table the pipeline depends on, referenced tables first.
var Tables = []Table{
	{
		Name: Users,
		Columns: []Column{
			{Name: "username", Kind: Text, NotNull: true},
			{Name: "full_name", Kind: Text},
			{Name: "email", Kind: Text},
			{Name: "role", Kind: Text, NotNull: true, Default: "'user'"},
			{Name: "approved", Kind: Bool, NotNull: true, Default: "TRUE"},
			{Name: "password_hash", Kind: Text},
			{Name: "created_at", Kind: Integer},
		},
		Indexes: []Index{
			{Name: "idx_users_username", Columns: []string{"username"}, Unique: true},
		},
	},
	{
		Name: Clients,
		Columns: []Column{
			{Name: "name", Kind: Text, NotNull: true},
			{Name: "contact_person", Kind: Text},
			{Name: "contact_email", Kind: Text},
			{Name: "contact_phone", Kind: Text},
			{Name: "address", Kind: Text},
			{Name: "created_at", Kind: Integer},
		},
		Indexes: []Index{
			{Name: "idx_clients_name", Columns: []string{"name"}, Unique: true},
		},
	},
	{
		Name: Suppliers,
		Columns: []Column{
			{Name: "name", Kind: Text, NotNull: true},
			{Name: "contact_person", Kind: Text},
			{Name: "contact_email", Kind: Text},
			{Name: "contact_phone", Kind: Text},
			{Name: "address", Kind: Text},
			{Name: "category", Kind: Text},
			{Name: "created_at", Kind: Integer},
		},
		Indexes: []Index{
			{Name: "idx_suppliers_name", Columns: []string{"name"}},
		},
	},
	{
		Name: Projects,
		Columns: []Column{
			{Name: "ovp_number", Kind: Text},
			{Name: "account_name", Kind: Text},
			{Name: "project_name", Kind: Text, NotNull: true},
			{Name: "project_category", Kind: Text},
			{Name: "project_location", Kind: Text},
			{Name: "scope_of_work", Kind: Text},
			{Name: "project_director", Kind: Text},
			{Name: "client_id", Kind: Integer, References: Clients, OnDelete: "SET NULL"},
			{Name: "contract_amount", Kind: Real, Default: "0"},
			{Name: "updated_contract_amount", Kind: Real, Default: "0"},
			{Name: "down_payment_percent", Kind: Real},
			{Name: "billed_amount", Kind: Real, Default: "0"},
			{Name: "billed_percent", Kind: Real},
			{Name: "collected_amount", Kind: Real, Default: "0"},
			{Name: "balance", Kind: Real, Default: "0"},
			{Name: "percent_completion", Kind: Real},
			{Name: "duration_days", Kind: Real},
			{Name: "po_date", Kind: Integer},
			{Name: "start_date", Kind: Integer},
			{Name: "completion_date", Kind: Integer},
			{Name: "mobilization_date", Kind: Integer},
			{Name: "rfb_date", Kind: Integer},
			{Name: "project_status", Kind: Text, Default: "'OPEN'"},
			{Name: "billing_status", Kind: Text, Default: "'UNBILLED'"},
			{Name: "remarks", Kind: Text},
			{Name: "raw_data", Kind: JSON},
			{Name: "extra_fields", Kind: JSON},
			{Name: "created_at", Kind: Integer},
			{Name: "updated_at", Kind: Integer},
		},
		Indexes: []Index{
			{Name: "idx_projects_ovp_number", Columns: []string{"ovp_number"}, Unique: true},
			{Name: "idx_projects_director", Columns: []string{"project_director"}},
		},
	},
	{
		Name: Attachments,
		Columns: []Column{
			{Name: "project_id", Kind: Integer, NotNull: true, References: Projects, OnDelete: "CASCADE"},
			{Name: "file_name", Kind: Text, NotNull: true},
			{Name: "mime_type", Kind: Text},
			{Name: "drive_file_id", Kind: Text},
			{Name: "size_bytes", Kind: Integer},
			{Name: "uploaded_by", Kind: Integer, References: Users, OnDelete: "SET NULL"},
			{Name: "created_at", Kind: Integer},
		},
		Indexes: []Index{
			{Name: "idx_attachments_project", Columns: []string{"project_id"}},
		},
	},
}

// Lookup returns the canonical definition of a table.
func Lookup(name string) (Table, bool) {
	for _, t := range Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// DefaultOrder is the foreign-key-safe table order.
func DefaultOrder() []string {
	out := make([]string, len(Tables))
	for i, t := range Tables {
		out[i] = t.Name
	}
	return out
}
