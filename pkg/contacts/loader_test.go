package contacts

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"dev/bravebird/wagroup/pkg/logging"
	"dev/bravebird/wagroup/pkg/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_CleansValues(t *testing.T) {
	// Third row is blank, fourth row is missing the column entirely
	path := writeFile(t, "contacts.csv",
		"Name,Phone 1 - Value\n"+
			"a,123\n"+
			"b, 456 \n"+
			"c,\n"+
			"d\n"+
			"e,789\n")

	loader := NewLoader(WithLogger(logging.Discard()))
	got := loader.Load(path)

	assert.Equal(t, []models.Contact{"123", "456", "789"}, got)
}

func TestLoad_KeepsTextFormatting(t *testing.T) {
	path := writeFile(t, "contacts.csv",
		"\ufeffPhone 1 - Value,Name\n"+
			"+972 50-123-4567,a\n"+
			"0501234567,b\n"+
			"0501234567,c\n")

	got := NewLoader(WithLogger(logging.Discard())).Load(path)

	assert.Equal(t, []models.Contact{"+972 50-123-4567", "0501234567", "0501234567"}, got)
}

func TestLoad_MissingColumn(t *testing.T) {
	path := writeFile(t, "contacts.csv", "Name,Phone\na,123\n")

	var buf bytes.Buffer
	loader := NewLoader(WithLogger(logging.New("info", "text", &buf)))

	var got []models.Contact
	require.NotPanics(t, func() { got = loader.Load(path) })

	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "Phone 1 - Value")
}

func TestLoad_MissingFile(t *testing.T) {
	loader := NewLoader(WithLogger(logging.Discard()))

	got := loader.Load(filepath.Join(t.TempDir(), "nope.csv"))

	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLoad_MalformedCSV(t *testing.T) {
	path := writeFile(t, "contacts.csv", "Phone 1 - Value\n\"123\n")

	got := NewLoader(WithLogger(logging.Discard())).Load(path)

	assert.Empty(t, got)
}

func TestLoadErr_ReportsCause(t *testing.T) {
	path := writeFile(t, "contacts.csv", "Name\n")

	_, err := NewLoader(WithLogger(logging.Discard())).LoadErr(path)

	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestLoad_CustomColumn(t *testing.T) {
	path := writeFile(t, "contacts.csv", "Mobile\n111\n222\n")

	got := NewLoader(WithColumn("Mobile"), WithLogger(logging.Discard())).Load(path)

	assert.Equal(t, []models.Contact{"111", "222"}, got)
}

func TestLoad_DebugLogsEveryContact(t *testing.T) {
	path := writeFile(t, "contacts.csv", "Phone 1 - Value\n111\n222\n")

	var buf bytes.Buffer
	NewLoader(WithLogger(logging.New("debug", "text", &buf))).Load(path)

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "Contact loaded"))
	assert.Contains(t, out, "contacts=2")
}

func TestLoad_XLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	rows := [][]string{
		{"Name", "Phone 1 - Value"},
		{"a", "0501234567"},
		{"b", "  "},
		{"c", "+14155550100"},
	}
	for i, row := range rows {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellStr("Sheet1", cell, v))
		}
	}
	path := filepath.Join(t.TempDir(), "contacts.xlsx")
	require.NoError(t, f.SaveAs(path))

	got := NewLoader(WithLogger(logging.Discard())).Load(path)

	assert.Equal(t, []models.Contact{"0501234567", "+14155550100"}, got)
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		rows    [][]string
		want    []models.Contact
		wantErr error
	}{
		{
			name:    "no rows",
			wantErr: ErrEmptyFile,
		},
		{
			name: "header only",
			rows: [][]string{{"Phone 1 - Value"}},
			want: []models.Contact{},
		},
		{
			name: "duplicates kept in order",
			rows: [][]string{{" Phone 1 - Value "}, {"2"}, {"1"}, {"2"}},
			want: []models.Contact{"2", "1", "2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.rows, DefaultColumn)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
