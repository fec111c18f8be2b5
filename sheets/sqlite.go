package sheets

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pevans/auctionscan/logger"
)

// SQLiteClient stores workbooks in local SQLite files. The workbook id is
// the database path.
type SQLiteClient struct {
	log logger.Interface
}

// NewSQLiteClient creates a client. A nil logger disables logging.
func NewSQLiteClient(log logger.Interface) *SQLiteClient {
	if log == nil {
		log = logger.NewNoOp()
	}
	return &SQLiteClient{log: log.WithComponent("sheets_sqlite")}
}

// Open opens (creating if needed) the workbook at path id.
func (c *SQLiteClient) Open(ctx context.Context, id string) (Book, error) {
	return OpenSQLiteBook(ctx, id, c.log)
}

// SQLiteBook is a workbook held in SQLite.
type SQLiteBook struct {
	db  *sql.DB
	log logger.Interface
}

// OpenSQLiteBook opens the workbook database at dbPath.
func OpenSQLiteBook(ctx context.Context, dbPath string, log logger.Interface) (*SQLiteBook, error) {
	if log == nil {
		log = logger.NewNoOp()
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	book := &SQLiteBook{db: db, log: log}
	if err := book.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return book, nil
}

// initSchema creates the tabs and cells tables if they don't exist.
func (b *SQLiteBook) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tabs (
		name TEXT PRIMARY KEY,
		row_count INTEGER NOT NULL,
		column_count INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cells (
		tab TEXT NOT NULL,
		row INTEGER NOT NULL,
		col INTEGER NOT NULL,
		value TEXT NOT NULL,
		formula INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (tab, row, col)
	);
	`

	_, err := b.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (b *SQLiteBook) Close() error {
	return b.db.Close()
}

// Tab returns the named tab, creating it with the default size when it is
// missing.
func (b *SQLiteBook) Tab(ctx context.Context, name string) (Tab, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("tab name is required")
	}

	res, err := b.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO tabs (name, row_count, column_count, created_at) VALUES (?, ?, ?, ?)",
		name, DefaultTabRows, DefaultTabColumns, time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tab %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		b.log.Info("created tab", "tab", name, "rows", DefaultTabRows, "columns", DefaultTabColumns)
	}

	return &sqliteTab{book: b, name: name}, nil
}

// TabNames lists the workbook's tabs in creation order.
func (b *SQLiteBook) TabNames(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT name FROM tabs ORDER BY created_at, rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to list tabs: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan tab: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

type sqliteTab struct {
	book *SQLiteBook
	name string
}

func (t *sqliteTab) Name() string {
	return t.name
}

func (t *sqliteTab) ReadHeader(ctx context.Context) ([]string, error) {
	rows, err := t.read(ctx, "SELECT row, col, value FROM cells WHERE tab = ? AND row = 1 ORDER BY col", t.name)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []string{}, nil
	}
	return rows[0], nil
}

func (t *sqliteTab) ReadColumn(ctx context.Context, index int) ([]string, error) {
	if index < 1 {
		return nil, fmt.Errorf("column index must be 1 or greater, got %d", index)
	}

	rows, err := t.book.db.QueryContext(ctx,
		"SELECT row, value FROM cells WHERE tab = ? AND col = ? ORDER BY row", t.name, index)
	if err != nil {
		return nil, fmt.Errorf("failed to read column %d of %q: %w", index, t.name, err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var (
			row   int
			value string
		)
		if err := rows.Scan(&row, &value); err != nil {
			return nil, fmt.Errorf("failed to scan cell: %w", err)
		}
		for len(values) < row-1 {
			values = append(values, "")
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return trimRow(values), nil
}

func (t *sqliteTab) ReadRows(ctx context.Context) ([][]string, error) {
	return t.read(ctx, "SELECT row, col, value FROM cells WHERE tab = ? ORDER BY row, col", t.name)
}

// read assembles (row, col, value) results into a grid starting at row 1.
func (t *sqliteTab) read(ctx context.Context, query string, args ...any) ([][]string, error) {
	rows, err := t.book.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", t.name, err)
	}
	defer rows.Close()

	grid := [][]string{}
	for rows.Next() {
		var (
			row, col int
			value    string
		)
		if err := rows.Scan(&row, &col, &value); err != nil {
			return nil, fmt.Errorf("failed to scan cell: %w", err)
		}
		for len(grid) < row {
			grid = append(grid, []string{})
		}
		line := grid[row-1]
		for len(line) < col-1 {
			line = append(line, "")
		}
		grid[row-1] = append(line, value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range grid {
		grid[i] = trimRow(grid[i])
	}
	for len(grid) > 0 && len(grid[len(grid)-1]) == 0 {
		grid = grid[:len(grid)-1]
	}
	return grid, nil
}

// Append writes rows in a single transaction. Under UserEntered a leading
// apostrophe is dropped and values starting with "=" are flagged as
// formulas, as the remote service does.
func (t *sqliteTab) Append(ctx context.Context, startCell string, rows [][]any, mode InputMode) error {
	col0, row0, err := ParseCell(startCell)
	if err != nil {
		return err
	}

	tx, err := t.book.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO cells (tab, row, col, value, formula) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	maxCol := 0
	for i, row := range rows {
		for j, v := range row {
			value := FormatValue(v)
			formula := false
			if mode == UserEntered {
				if strings.HasPrefix(value, "'") {
					value = value[1:]
				} else if strings.HasPrefix(value, "=") {
					formula = true
				}
			}
			if _, err := stmt.ExecContext(ctx, t.name, row0+i, col0+j, value, formula); err != nil {
				return fmt.Errorf("failed to write %s: %w", Cell(col0+j, row0+i), err)
			}
		}
		maxCol = max(maxCol, col0+len(row)-1)
	}

	// Grow the tab like the remote service does when writing past its edge.
	_, err = tx.ExecContext(ctx,
		"UPDATE tabs SET row_count = MAX(row_count, ?), column_count = MAX(column_count, ?) WHERE name = ?",
		row0+len(rows)-1, maxCol, t.name,
	)
	if err != nil {
		return fmt.Errorf("failed to resize tab: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit append: %w", err)
	}

	t.book.log.Debug("appended rows", "tab", t.name, "start", startCell, "rows", len(rows), "mode", string(mode))
	return nil
}

// Formula reports whether the cell holds a formula.
func (b *SQLiteBook) Formula(ctx context.Context, tab, cell string) (bool, error) {
	col, row, err := ParseCell(cell)
	if err != nil {
		return false, err
	}
	var formula bool
	err = b.db.QueryRowContext(ctx,
		"SELECT formula FROM cells WHERE tab = ? AND row = ? AND col = ?", tab, row, col).Scan(&formula)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", cell, err)
	}
	return formula, nil
}
