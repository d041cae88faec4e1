package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/projtrack/modules/projects/domain/project"
)

func rawRow(pos int, sheet string, values map[string]any) project.RawRow {
	return project.RawRow{Position: pos, Line: pos + 1, Sheet: sheet, Director: sheet, Values: values}
}

func TestMapper_MapsCanonicalRecord(t *testing.T) {
	m := NewMapper(nil, nil, nil)

	rec, err := m.Map(rawRow(1, "JUAN DELA CRUZ", map[string]any{
		"OVP NO.":                     " OVP-001 ",
		"PROJECT NAME":                "Tower A",
		"CONTRACT AMOUNT":             "₱1,500,000.00",
		"PO DATE":                     45000,
		"DURATION\r\n(CALENDAR DAYS)": "120",
		"Engineer In-Charge":          "Pedro",
		"REMARKS":                     "   ",
		"BILLING STATUS":              "",
	}))
	require.NoError(t, err)

	require.Equal(t, "OVP-001", *rec.OVPNumber)
	require.Equal(t, "Tower A", *rec.ProjectName)
	require.InDelta(t, 1500000, *rec.ContractAmount, 1e-9)
	require.Equal(t, int64(1678838400), *rec.PODate)
	require.InDelta(t, 120, *rec.DurationDays, 1e-9)
	require.Equal(t, "Juan Dela Cruz", rec.Director())
	require.Nil(t, rec.Remarks)

	require.Equal(t, project.StatusOpen, *rec.ProjectStatus)
	require.Equal(t, project.StatusUnbilled, *rec.BillingStatus)
	require.InDelta(t, 0, *rec.BilledAmount, 1e-9)
	require.Nil(t, rec.PercentCompletion)

	require.Equal(t, map[string]any{"engineer_incharge": "Pedro"}, rec.Extra)
	require.Equal(t, 1, rec.SourceRow)
	require.Equal(t, 2, rec.SourceLine)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.RawData, &raw))
	require.Equal(t, "Tower A", raw["PROJECT NAME"])
}

func TestMapper_DirectorColumnWinsOverSheet(t *testing.T) {
	m := NewMapper(nil, nil, nil)

	rec, err := m.Map(rawRow(1, "JUAN DELA CRUZ", map[string]any{
		"PROJECT":  "Depot",
		"DIRECTOR": "Ma. Santos",
	}))
	require.NoError(t, err)
	require.Equal(t, "Maria Santos", rec.Director())

	rec, err = m.Map(rawRow(2, "", map[string]any{"PROJECT": "Depot", "PD": " Someone New "}))
	require.NoError(t, err)
	require.Equal(t, "Someone New", rec.Director())
}

func TestMapper_AliasPriorityPicksFirstUsableValue(t *testing.T) {
	m := NewMapper(nil, nil, nil)

	rec, err := m.Map(rawRow(1, "", map[string]any{
		"PROJECT NAME":                "Primary",
		"PROJECT TITLE":               "Secondary",
		"DURATION\r\n(CALENDAR DAYS)": "",
		"DURATION (CALENDAR DAYS)":    "n/a",
		"DURATION":                    "90",
	}))
	require.NoError(t, err)
	require.Equal(t, "Primary", *rec.ProjectName)
	require.InDelta(t, 90, *rec.DurationDays, 1e-9)
}

func TestMapper_RejectsRowsWithoutProjectName(t *testing.T) {
	m := NewMapper(nil, nil, nil)

	_, err := m.Map(rawRow(1, "", map[string]any{"OVP": "OVP-9", "PROJECT NAME": "  "}))
	require.ErrorIs(t, err, ErrMissingProjectName)

	records, skipped := m.MapAll([]project.RawRow{
		rawRow(1, "S", map[string]any{"PROJECT NAME": "Kept"}),
		rawRow(2, "S", map[string]any{"OVP": "OVP-9"}),
		rawRow(3, "S", map[string]any{"PROJECT NAME": "Also kept"}),
	})
	require.Len(t, records, 2)
	require.Len(t, skipped, 1)
	require.Equal(t, 2, skipped[0].Row)
	require.Equal(t, 3, skipped[0].Line)
	require.ErrorIs(t, skipped[0], ErrMissingProjectName)
}

func TestDeduplicate_LastWriteWins(t *testing.T) {
	name := func(s string) *string { return &s }
	records := []project.Record{
		{OVPNumber: name("A"), ProjectName: name("first")},
		{ProjectName: name("keyless")},
		{OVPNumber: name("B"), ProjectName: name("b")},
		{OVPNumber: name(" A "), ProjectName: name("second")},
		{OVPNumber: name(""), ProjectName: name("empty key")},
	}

	out := Deduplicate(records, DefaultKeyField)
	require.Len(t, out, 4)
	require.Equal(t, "second", *out[0].ProjectName)
	require.Equal(t, "keyless", *out[1].ProjectName)
	require.Equal(t, "b", *out[2].ProjectName)
	require.Equal(t, "empty key", *out[3].ProjectName)
}

func TestMapper_EqualPriorityHeadersKeepColumnOrder(t *testing.T) {
	m := NewMapper(nil, nil, nil)
	row := rawRow(1, "", map[string]any{"Project Name": "First column", "PROJECT NAME": "Second column"})
	row.Headers = []string{"Project Name", "PROJECT NAME"}

	rec, err := m.Map(row)
	require.NoError(t, err)
	require.Equal(t, "First column", *rec.ProjectName)
}

func TestMapper_RepeatedColumnsLoseNoValue(t *testing.T) {
	m := NewMapper(nil, nil, nil)
	row := rawRow(1, "", map[string]any{"REMARKS": "site visit", "PROJECT NAME": "Depot", "REMARKS#2": "paid"})
	row.Headers = []string{"REMARKS", "PROJECT NAME", "REMARKS#2"}

	rec, err := m.Map(row)
	require.NoError(t, err)
	require.Equal(t, "site visit", *rec.Remarks)
	require.Equal(t, "paid", rec.Extra["remarks2"])

	row = rawRow(2, "", map[string]any{"REMARKS": " ", "PROJECT NAME": "Depot", "REMARKS#2": "paid"})
	row.Headers = []string{"REMARKS", "PROJECT NAME", "REMARKS#2"}

	rec, err = m.Map(row)
	require.NoError(t, err)
	require.Equal(t, "paid", *rec.Remarks)
	require.NotContains(t, rec.Extra, "remarks2")

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.RawData, &raw))
	require.Equal(t, "paid", raw["REMARKS#2"])
}
