package sheets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pevans/auctionscan/logger"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// GoogleClient opens Google Sheets spreadsheets with service account
// credentials.
type GoogleClient struct {
	srv *gsheets.Service
	log logger.Interface
}

// NewGoogleClient authenticates with the service account key at
// credentialsFile.
func NewGoogleClient(ctx context.Context, credentialsFile string, log logger.Interface) (*GoogleClient, error) {
	if credentialsFile == "" {
		return nil, fmt.Errorf("credentials file is required")
	}

	return NewGoogleClientWithOptions(ctx, log,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gsheets.SpreadsheetsScope),
	)
}

// NewGoogleClientWithOptions creates a client from raw client options, for
// example a custom endpoint or HTTP client.
func NewGoogleClientWithOptions(ctx context.Context, log logger.Interface, opts ...option.ClientOption) (*GoogleClient, error) {
	if log == nil {
		log = logger.NewNoOp()
	}

	srv, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &GoogleClient{srv: srv, log: log.WithComponent("sheets_google")}, nil
}

// Open loads the spreadsheet's tab list.
func (c *GoogleClient) Open(ctx context.Context, id string) (Book, error) {
	ss, err := c.srv.Spreadsheets.Get(id).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet %s: %w", id, err)
	}

	titles := make(map[string]bool, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			titles[sh.Properties.Title] = true
		}
	}

	c.log.Debug("opened spreadsheet", "id", id, "tabs", len(titles))
	return &googleBook{srv: c.srv, id: id, titles: titles, log: c.log}, nil
}

type googleBook struct {
	srv *gsheets.Service
	id  string
	log logger.Interface

	mu     sync.Mutex
	titles map[string]bool
}

func (b *googleBook) Tab(ctx context.Context, name string) (Tab, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("tab name is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.titles[name] {
		req := &gsheets.BatchUpdateSpreadsheetRequest{
			Requests: []*gsheets.Request{{
				AddSheet: &gsheets.AddSheetRequest{
					Properties: &gsheets.SheetProperties{
						Title: name,
						GridProperties: &gsheets.GridProperties{
							RowCount:    DefaultTabRows,
							ColumnCount: DefaultTabColumns,
						},
					},
				},
			}},
		}
		if _, err := b.srv.Spreadsheets.BatchUpdate(b.id, req).Context(ctx).Do(); err != nil {
			return nil, fmt.Errorf("failed to create tab %q: %w", name, err)
		}
		b.titles[name] = true
		b.log.Info("created tab", "tab", name, "rows", DefaultTabRows, "columns", DefaultTabColumns)
	}

	return &googleTab{book: b, name: name}, nil
}

func (b *googleBook) Close() error {
	return nil
}

type googleTab struct {
	book *googleBook
	name string
}

func (t *googleTab) Name() string {
	return t.name
}

// a1 prefixes a range with the quoted tab title. An empty range means the
// whole tab.
func (t *googleTab) a1(rng string) string {
	quoted := "'" + strings.ReplaceAll(t.name, "'", "''") + "'"
	if rng == "" {
		return quoted
	}
	return quoted + "!" + rng
}

func (t *googleTab) get(ctx context.Context, rng string) ([][]string, error) {
	resp, err := t.book.srv.Spreadsheets.Values.Get(t.book.id, t.a1(rng)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", t.a1(rng), err)
	}

	grid := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		line := make([]string, len(row))
		for j, v := range row {
			line[j] = FormatValue(v)
		}
		grid[i] = trimRow(line)
	}
	return grid, nil
}

func (t *googleTab) ReadHeader(ctx context.Context) ([]string, error) {
	grid, err := t.get(ctx, "1:1")
	if err != nil {
		return nil, err
	}
	if len(grid) == 0 {
		return []string{}, nil
	}
	return grid[0], nil
}

func (t *googleTab) ReadColumn(ctx context.Context, index int) ([]string, error) {
	if index < 1 {
		return nil, fmt.Errorf("column index must be 1 or greater, got %d", index)
	}
	letter := ColumnLetter(index)
	grid, err := t.get(ctx, letter+":"+letter)
	if err != nil {
		return nil, err
	}

	values := make([]string, len(grid))
	for i, row := range grid {
		if len(row) > 0 {
			values[i] = row[0]
		}
	}
	return trimRow(values), nil
}

func (t *googleTab) ReadRows(ctx context.Context) ([][]string, error) {
	return t.get(ctx, "")
}

func (t *googleTab) Append(ctx context.Context, startCell string, rows [][]any, mode InputMode) error {
	if _, _, err := ParseCell(startCell); err != nil {
		return err
	}

	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		values[i] = make([]interface{}, len(row))
		copy(values[i], row)
	}

	_, err := t.book.srv.Spreadsheets.Values.
		Update(t.book.id, t.a1(startCell), &gsheets.ValueRange{Values: values}).
		ValueInputOption(string(mode)).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", t.a1(startCell), err)
	}

	t.book.log.Debug("appended rows", "tab", t.name, "start", startCell, "rows", len(rows), "mode", string(mode))
	return nil
}
