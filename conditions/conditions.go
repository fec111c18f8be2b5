// Package conditions reads search conditions from the master tab.
package conditions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pevans/auctionscan/auction"
	"github.com/pevans/auctionscan/dates"
	"github.com/pevans/auctionscan/logger"
	"github.com/pevans/auctionscan/sheets"
	"github.com/pevans/auctionscan/textnorm"
)

// ErrMissingColumn is returned when a required header is absent.
var ErrMissingColumn = errors.New("required column missing")

// ActiveFlag is the only check-cell value that marks a row active.
const ActiveFlag = "TRUE"

// DefaultTab is the name of the master tab.
const DefaultTab = "Master"

// Columns names the master tab headers.
type Columns struct {
	StartDate   string   `yaml:"start_date"`
	EndDate     string   `yaml:"end_date"`
	Check       string   `yaml:"check"`
	Keywords    []string `yaml:"keywords"`
	Destination string   `yaml:"destination"`
}

// DefaultColumns returns the standard header names.
func DefaultColumns() Columns {
	return Columns{
		StartDate:   "start_date",
		EndDate:     "end_date",
		Check:       "check",
		Keywords:    []string{"search_1", "search_2", "search_3", "search_4", "search_5"},
		Destination: "ws_name",
	}
}

// Config configures a Reader.
type Config struct {
	Tab     string  `yaml:"tab"`
	Columns Columns `yaml:"columns"`
}

// RowError reports a row that could not be turned into a condition.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

// Result holds the parsed conditions in sheet order and the rows that were
// skipped.
type Result struct {
	Conditions []auction.SearchCondition
	Errors     []RowError
}

// Active returns the active conditions.
func (r *Result) Active() []auction.SearchCondition {
	var out []auction.SearchCondition
	for _, c := range r.Conditions {
		if c.Active {
			out = append(out, c)
		}
	}
	return out
}

// Reader parses the master tab.
type Reader struct {
	cfg   Config
	dates *dates.Resolver
	log   logger.Interface
}

// NewReader creates a reader. A nil logger disables logging.
func NewReader(cfg Config, resolver *dates.Resolver, log logger.Interface) *Reader {
	if cfg.Tab == "" {
		cfg.Tab = DefaultTab
	}
	def := DefaultColumns()
	if cfg.Columns.StartDate == "" {
		cfg.Columns.StartDate = def.StartDate
	}
	if cfg.Columns.EndDate == "" {
		cfg.Columns.EndDate = def.EndDate
	}
	if cfg.Columns.Check == "" {
		cfg.Columns.Check = def.Check
	}
	if len(cfg.Columns.Keywords) == 0 {
		cfg.Columns.Keywords = def.Keywords
	}
	if cfg.Columns.Destination == "" {
		cfg.Columns.Destination = def.Destination
	}
	if log == nil {
		log = logger.NewNoOp()
	}
	return &Reader{cfg: cfg, dates: resolver, log: log.WithComponent("conditions")}
}

// Read loads every condition row of the master tab. Inactive rows are
// returned with Active false and are not validated.
func (r *Reader) Read(ctx context.Context, book sheets.Book) (*Result, error) {
	tab, err := book.Tab(ctx, r.cfg.Tab)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", r.cfg.Tab, err)
	}
	rows, err := tab.ReadRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", r.cfg.Tab, err)
	}
	return r.Parse(rows)
}

// Parse turns raw rows (header first) into conditions.
func (r *Reader) Parse(rows [][]string) (*Result, error) {
	result := &Result{}
	if len(rows) == 0 {
		return result, nil
	}

	index := headerIndex(rows[0])
	col := func(name string) (int, bool) {
		i, ok := index[textnorm.Key(name)]
		return i, ok
	}

	required := []string{r.cfg.Columns.StartDate, r.cfg.Columns.EndDate, r.cfg.Columns.Check}
	for _, name := range required {
		if _, ok := col(name); !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}
	startCol, _ := col(r.cfg.Columns.StartDate)
	endCol, _ := col(r.cfg.Columns.EndDate)
	checkCol, _ := col(r.cfg.Columns.Check)

	var keywordCols []int
	for _, name := range r.cfg.Columns.Keywords {
		if i, ok := col(name); ok {
			keywordCols = append(keywordCols, i)
		}
	}
	destCol, hasDest := col(r.cfg.Columns.Destination)

	for i, row := range rows[1:] {
		rowNum := i + 2
		if blank(row) {
			continue
		}

		cond := auction.SearchCondition{
			Active: strings.TrimSpace(cell(row, checkCol)) == ActiveFlag,
			Row:    rowNum,
		}
		for _, k := range keywordCols {
			cond.Keywords = append(cond.Keywords, strings.TrimSpace(cell(row, k)))
		}
		if hasDest {
			cond.Destination = strings.TrimSpace(cell(row, destCol))
		}

		if !cond.Active {
			result.Conditions = append(result.Conditions, cond)
			continue
		}

		start, err := r.dates.Resolve(cell(row, startCol))
		if err != nil {
			r.rowError(result, rowNum, fmt.Errorf("start date: %w", err))
			continue
		}
		end, err := r.dates.Resolve(cell(row, endCol))
		if err != nil {
			r.rowError(result, rowNum, fmt.Errorf("end date: %w", err))
			continue
		}
		cond.StartDate, cond.EndDate = start, end

		result.Conditions = append(result.Conditions, cond)
	}

	r.log.Info("read search conditions",
		"tab", r.cfg.Tab,
		"conditions", len(result.Conditions),
		"active", len(result.Active()),
		"errors", len(result.Errors),
	)
	return result, nil
}

func (r *Reader) rowError(result *Result, row int, err error) {
	r.log.WithError(err).Warn("skipping condition row", "row", row)
	result.Errors = append(result.Errors, RowError{Row: row, Err: err})
}

// headerIndex maps normalized header names to 0-based column positions. The
// first occurrence of a name wins.
func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := textnorm.Key(h)
		if key == "" {
			continue
		}
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	return index
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
