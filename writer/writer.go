// Package writer appends extracted records to their destination tabs,
// skipping listings a tab already holds.
package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pevans/auctionscan/auction"
	"github.com/pevans/auctionscan/logger"
	"github.com/pevans/auctionscan/sheets"
	"github.com/pevans/auctionscan/textnorm"
)

// ErrDestinationUnavailable is matched (via errors.Is) by every
// *DestinationUnavailableError.
var ErrDestinationUnavailable = errors.New("destination unavailable")

// DestinationUnavailableError is returned when a destination tab cannot be
// opened, indexed or appended to.
type DestinationUnavailableError struct {
	Destination string
	Op          string
	Err         error
}

func (e *DestinationUnavailableError) Error() string {
	return fmt.Sprintf("destination %q unavailable (%s): %v", e.Destination, e.Op, e.Err)
}

// Is reports whether target is ErrDestinationUnavailable.
func (e *DestinationUnavailableError) Is(target error) bool {
	return target == ErrDestinationUnavailable
}

func (e *DestinationUnavailableError) Unwrap() error {
	return e.Err
}

// Config configures a Writer.
type Config struct {
	// DefaultDestination receives records whose condition names no tab.
	DefaultDestination string `yaml:"default_destination"`
	// HeaderRows is the number of rows above the data.
	HeaderRows int `yaml:"header_rows"`
	// AnchorColumn (1-based) decides the next free row, and holds the keys
	// when no header matches URLHeaders.
	AnchorColumn int `yaml:"anchor_column"`
	// URLHeaders are the header names the key column may carry.
	URLHeaders []string `yaml:"url_headers"`
	// Header is written to an empty tab. Empty disables it.
	Header []string `yaml:"header"`

	ImageTemplate string `yaml:"image_template"`
	ImageMode     int    `yaml:"image_mode"`
	ImageWidth    int    `yaml:"image_width"`
	ImageHeight   int    `yaml:"image_height"`

	// TextPrefix marks date cells as literal text.
	TextPrefix      string           `yaml:"text_prefix"`
	InputMode       sheets.InputMode `yaml:"input_mode"`
	InputDateFormat string           `yaml:"input_date_format"`
	DateFormat      string           `yaml:"date_format"`
}

// DefaultConfig returns the writer configuration for the standard output
// tab layout.
func DefaultConfig() Config {
	return Config{
		DefaultDestination: "1",
		HeaderRows:         1,
		AnchorColumn:       1,
		URLHeaders:         []string{"url", "detail_url", "link", "リンク"},
		Header:             []string{"input_date", "date", "title", "price", "ct", "1ct_price", "image", "url"},
		ImageTemplate:      `=IMAGE("%s", %d, %d, %d)`,
		ImageMode:          4,
		ImageWidth:         80,
		ImageHeight:        80,
		TextPrefix:         "'",
		InputMode:          sheets.UserEntered,
		InputDateFormat:    "2006/01/02 15:04",
		DateFormat:         time.DateOnly,
	}
}

// DestinationResult reports the outcome for one destination tab.
type DestinationResult struct {
	Destination string
	Written     int
	Skipped     int
	Err         error
}

// Result summarizes a Write call.
type Result struct {
	Written      int
	Skipped      int
	Failed       int
	Destinations []DestinationResult
}

// Writer appends records to the tabs of one workbook.
type Writer struct {
	book sheets.Book
	cfg  Config
	log  logger.Interface
}

// New creates a writer over book. Unset config fields take their defaults.
// A nil logger disables logging.
func New(book sheets.Book, cfg Config, log logger.Interface) *Writer {
	def := DefaultConfig()
	if cfg.DefaultDestination == "" {
		cfg.DefaultDestination = def.DefaultDestination
	}
	if cfg.HeaderRows < 0 {
		cfg.HeaderRows = 0
	}
	if cfg.AnchorColumn < 1 {
		cfg.AnchorColumn = def.AnchorColumn
	}
	if len(cfg.URLHeaders) == 0 {
		cfg.URLHeaders = def.URLHeaders
	}
	if cfg.ImageTemplate == "" {
		cfg.ImageTemplate = def.ImageTemplate
		if cfg.ImageMode == 0 {
			cfg.ImageMode, cfg.ImageWidth, cfg.ImageHeight = def.ImageMode, def.ImageWidth, def.ImageHeight
		}
	}
	if cfg.InputMode == "" {
		cfg.InputMode = def.InputMode
	}
	if cfg.InputDateFormat == "" {
		cfg.InputDateFormat = def.InputDateFormat
	}
	if cfg.DateFormat == "" {
		cfg.DateFormat = def.DateFormat
	}
	if log == nil {
		log = logger.NewNoOp()
	}
	return &Writer{book: book, cfg: cfg, log: log.WithComponent("writer")}
}

// Write groups records by destination and appends the ones each
// destination does not hold yet. A failing destination does not stop the
// others; an error is returned only when every destination failed.
func (w *Writer) Write(ctx context.Context, records []*auction.ExtractedRecord) (*Result, error) {
	result := &Result{}
	if len(records) == 0 {
		return result, nil
	}

	var order []string
	groups := make(map[string][]*auction.ExtractedRecord)
	for _, rec := range records {
		dest := strings.TrimSpace(rec.Destination)
		if dest == "" {
			dest = w.cfg.DefaultDestination
		}
		if _, ok := groups[dest]; !ok {
			order = append(order, dest)
		}
		groups[dest] = append(groups[dest], rec)
	}

	var errs []error
	for _, dest := range order {
		dr := w.writeDestination(ctx, dest, groups[dest])
		result.Destinations = append(result.Destinations, dr)
		result.Written += dr.Written
		result.Skipped += dr.Skipped
		if dr.Err != nil {
			result.Failed += len(groups[dest])
			errs = append(errs, dr.Err)
			w.log.WithError(dr.Err).Error("failed to write destination",
				"destination", dest,
				"records", len(groups[dest]),
			)
			continue
		}
		w.log.Info("wrote destination",
			"destination", dest,
			"written", dr.Written,
			"skipped", dr.Skipped,
		)
	}

	if len(errs) == len(order) {
		return result, errors.Join(errs...)
	}
	return result, nil
}

func (w *Writer) writeDestination(ctx context.Context, dest string, records []*auction.ExtractedRecord) DestinationResult {
	dr := DestinationResult{Destination: dest}
	unavailable := func(op string, err error) DestinationResult {
		dr.Written, dr.Skipped = 0, 0
		dr.Err = &DestinationUnavailableError{Destination: dest, Op: op, Err: err}
		return dr
	}

	tab, err := w.book.Tab(ctx, dest)
	if err != nil {
		return unavailable("open", err)
	}

	idx, err := w.buildIndex(ctx, tab)
	if err != nil {
		return unavailable("index", err)
	}

	if idx.empty && len(w.cfg.Header) > 0 && w.cfg.HeaderRows > 0 {
		header := make([]any, len(w.cfg.Header))
		for i, h := range w.cfg.Header {
			header[i] = h
		}
		if err := tab.Append(ctx, sheets.Cell(1, 1), [][]any{header}, sheets.Raw); err != nil {
			return unavailable("header", err)
		}
		w.log.Info("wrote header to new tab", "destination", dest)
	}

	var rows [][]any
	for _, rec := range records {
		key := Key(rec.SourceURL)
		if key == "" || idx.has(key) {
			dr.Skipped++
			w.log.Debug("skipping existing record", "destination", dest, "url", rec.SourceURL)
			continue
		}
		idx.add(key)
		rows = append(rows, w.Row(rec))
	}

	if len(rows) == 0 {
		return dr
	}

	start := sheets.Cell(1, idx.next)
	if err := tab.Append(ctx, start, rows, w.cfg.InputMode); err != nil {
		return unavailable("append", err)
	}
	dr.Written = len(rows)
	return dr
}

// Row renders a record as an output row.
func (w *Writer) Row(rec *auction.ExtractedRecord) []any {
	return []any{
		w.cfg.TextPrefix + rec.InputTimestamp.Format(w.cfg.InputDateFormat),
		w.cfg.TextPrefix + rec.EndDate.Format(w.cfg.DateFormat),
		rec.Title,
		rec.Price,
		rec.Carat.String(),
		rec.PricePerCarat,
		w.ImageFormula(rec.ImageURL),
		rec.SourceURL,
	}
}

// ImageFormula wraps an image URL in the sheet's image formula. Empty URLs
// give an empty cell and values that already are formulas pass through.
func (w *Writer) ImageFormula(url string) string {
	url = strings.TrimSpace(url)
	switch {
	case url == "":
		return ""
	case strings.HasPrefix(strings.ToUpper(url), "=IMAGE"):
		return url
	}
	return fmt.Sprintf(w.cfg.ImageTemplate, strings.ReplaceAll(url, `"`, `""`),
		w.cfg.ImageMode, w.cfg.ImageWidth, w.cfg.ImageHeight)
}

// Key returns the dedup form of a listing URL.
func Key(url string) string {
	return strings.ToLower(strings.TrimSpace(url))
}

// keyIndex holds the keys of one destination tab.
type keyIndex struct {
	keys  map[string]struct{}
	next  int
	empty bool
}

func (k *keyIndex) has(key string) bool {
	_, ok := k.keys[key]
	return ok
}

func (k *keyIndex) add(key string) {
	k.keys[key] = struct{}{}
}

// buildIndex reads the existing keys of tab and the next free row.
func (w *Writer) buildIndex(ctx context.Context, tab sheets.Tab) (*keyIndex, error) {
	header, err := tab.ReadHeader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	keyCol := w.cfg.AnchorColumn
	if col, ok := w.urlColumn(header); ok {
		keyCol = col
	} else if len(header) > 0 {
		w.log.Debug("no url header, using anchor column",
			"tab", tab.Name(),
			"column", sheets.ColumnLetter(keyCol),
		)
	}

	values, err := tab.ReadColumn(ctx, keyCol)
	if err != nil {
		return nil, fmt.Errorf("failed to read column %s: %w", sheets.ColumnLetter(keyCol), err)
	}

	anchor := values
	if keyCol != w.cfg.AnchorColumn {
		anchor, err = tab.ReadColumn(ctx, w.cfg.AnchorColumn)
		if err != nil {
			return nil, fmt.Errorf("failed to read column %s: %w", sheets.ColumnLetter(w.cfg.AnchorColumn), err)
		}
	}

	idx := &keyIndex{
		keys:  make(map[string]struct{}, len(values)),
		next:  max(len(anchor), w.cfg.HeaderRows) + 1,
		empty: len(anchor) == 0 && len(header) == 0,
	}
	for i, v := range values {
		if i < w.cfg.HeaderRows {
			continue
		}
		if key := Key(v); key != "" {
			idx.add(key)
		}
	}
	return idx, nil
}

// urlColumn finds the 1-based column whose header is one of URLHeaders.
func (w *Writer) urlColumn(header []string) (int, bool) {
	want := make(map[string]bool, len(w.cfg.URLHeaders))
	for _, h := range w.cfg.URLHeaders {
		want[textnorm.Key(h)] = true
	}
	for i, h := range header {
		if want[textnorm.Key(h)] {
			return i + 1, true
		}
	}
	return 0, false
}
