// Package sheets is the spreadsheet access layer. Records and search
// conditions live in a workbook made of named tabs; GoogleClient talks to
// Google Sheets and SQLiteClient keeps an equivalent workbook in a local
// SQLite file.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// InputMode controls how appended values are interpreted.
type InputMode string

const (
	// Raw stores values exactly as given.
	Raw InputMode = "RAW"
	// UserEntered interprets values as if typed into the sheet: formulas
	// are evaluated and a leading apostrophe forces literal text.
	UserEntered InputMode = "USER_ENTERED"
)

// Default size of a newly created tab.
const (
	DefaultTabRows    = 1000
	DefaultTabColumns = 26
)

// ErrInvalidCell is returned for malformed A1 cell references.
var ErrInvalidCell = errors.New("invalid cell reference")

// Client opens workbooks.
type Client interface {
	Open(ctx context.Context, id string) (Book, error)
}

// Book is an open workbook.
type Book interface {
	// Tab returns the named tab, creating an empty one when it does not
	// exist.
	Tab(ctx context.Context, name string) (Tab, error)
	Close() error
}

// Tab is one sheet of a workbook. Rows and columns are 1-based. Reads omit
// trailing empty cells and trailing empty rows.
type Tab interface {
	Name() string
	// ReadHeader returns the first row.
	ReadHeader(ctx context.Context) ([]string, error)
	// ReadColumn returns the values of one column from row 1 down.
	ReadColumn(ctx context.Context, index int) ([]string, error)
	// ReadRows returns every row from row 1 down.
	ReadRows(ctx context.Context) ([][]string, error)
	// Append writes rows starting at startCell (A1 notation).
	Append(ctx context.Context, startCell string, rows [][]any, mode InputMode) error
}

// ColumnLetter converts a 1-based column index to its letter name
// (1 is "A", 27 is "AA").
func ColumnLetter(index int) string {
	if index < 1 {
		return ""
	}
	var b []byte
	for index > 0 {
		index--
		b = append([]byte{byte('A' + index%26)}, b...)
		index /= 26
	}
	return string(b)
}

// Cell returns the A1 reference of a 1-based column and row.
func Cell(column, row int) string {
	return ColumnLetter(column) + strconv.Itoa(row)
}

var reCell = regexp.MustCompile(`^([A-Za-z]+)([1-9][0-9]*)$`)

// ParseCell splits an A1 reference into 1-based column and row.
func ParseCell(ref string) (column, row int, err error) {
	m := reCell.FindStringSubmatch(strings.TrimSpace(ref))
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidCell, ref)
	}
	for _, ch := range strings.ToUpper(m[1]) {
		column = column*26 + int(ch-'A'+1)
	}
	row, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidCell, ref)
	}
	return column, row, nil
}

// FormatValue renders a cell value as text.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		return x.Format("2006/01/02 15:04:05")
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func trimRow(row []string) []string {
	n := len(row)
	for n > 0 && row[n-1] == "" {
		n--
	}
	return row[:n]
}
