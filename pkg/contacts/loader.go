package contacts

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"dev/bravebird/wagroup/pkg/logging"
	"dev/bravebird/wagroup/pkg/models"
)

// DefaultColumn is the phone column of a Google Contacts export
const DefaultColumn = "Phone 1 - Value"

var (
	// ErrMissingColumn is returned when the header lacks the phone column
	ErrMissingColumn = errors.New("missing required column")
	// ErrEmptyFile is returned when the file has no header row
	ErrEmptyFile = errors.New("file has no header row")
)

const utf8BOM = "\ufeff"

// Loader reads contact phone numbers from CSV or XLSX files
type Loader struct {
	column string
	sheet  string
	logger *logging.Logger
}

// Option configures a Loader
type Option func(*Loader)

// WithColumn sets the header of the phone column
func WithColumn(column string) Option {
	return func(l *Loader) {
		if column != "" {
			l.column = column
		}
	}
}

// WithSheet selects the worksheet read from XLSX files (default: first sheet)
func WithSheet(sheet string) Option {
	return func(l *Loader) {
		l.sheet = sheet
	}
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a loader for the default column
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		column: DefaultColumn,
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Column returns the phone column header
func (l *Loader) Column() string {
	return l.column
}

// Load returns the contacts in path, or an empty slice if the file cannot be
// read. The cause is logged; callers decide what an empty result means.
func (l *Loader) Load(path string) []models.Contact {
	contacts, err := l.LoadErr(path)
	if err != nil {
		l.logger.Error("Error loading contacts", "path", path, "error", err)
		return []models.Contact{}
	}
	return contacts
}

// LoadErr is Load with the failure returned instead of logged
func (l *Loader) LoadErr(path string) ([]models.Contact, error) {
	l.logger.Info("Loading contacts from file", "path", path, "column", l.column)

	rows, err := l.readRows(path)
	if err != nil {
		return nil, err
	}

	contacts, err := Extract(rows, l.column)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	l.logger.Info("Loaded contacts", "rows", len(rows)-1, "contacts", len(contacts))
	for _, c := range contacts {
		l.logger.Debug("Contact loaded", "contact", string(c))
	}

	return contacts, nil
}

func (l *Loader) readRows(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return readXLSX(path, l.sheet)
	default:
		return readCSV(path)
	}
}

// Extract pulls the trimmed, non-empty values of column out of rows.
// rows[0] is the header. Order and duplicates are preserved.
func Extract(rows [][]string, column string) ([]models.Contact, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}

	idx := -1
	for i, h := range rows[0] {
		if strings.TrimSpace(strings.TrimPrefix(h, utf8BOM)) == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: the file must have a column named %q", ErrMissingColumn, column)
	}

	contacts := make([]models.Contact, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if idx >= len(row) {
			continue
		}
		value := strings.TrimSpace(row[idx])
		if value == "" {
			continue
		}
		contacts = append(contacts, models.Contact(value))
	}

	return contacts, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open contacts file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // exports often have ragged trailing columns

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV %s: %w", path, err)
	}
	return rows, nil
}

func readXLSX(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrEmptyFile
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return rows, nil
}
