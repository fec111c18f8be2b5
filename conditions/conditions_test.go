package conditions

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pevans/auctionscan/dates"
	"github.com/pevans/auctionscan/sheets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var header = []string{"start_date", "end_date", "check", "search_1", "search_2", "search_3", "search_4", "search_5", "ws_name"}

func newReader(cfg Config) *Reader {
	now := time.Date(2025, time.July, 31, 12, 0, 0, 0, dates.Tokyo())
	resolver := dates.NewResolver(dates.DefaultConfig(), nil).WithClock(func() time.Time { return now })
	return NewReader(cfg, resolver, nil)
}

// TestParse verifies a typical master tab
func TestParse(t *testing.T) {
	rows := [][]string{
		header,
		{"2025/07/01", "2025/07/31", "TRUE", "ダイヤ", "ルース", "", "", "", "Loose"},
		{"2025/07/01", "2025/07/31", "FALSE", "ルビー"},
		{},
		{"2025-6-1", "2025-6-30", " TRUE ", "ダイヤ", "", "", "", "", ""},
	}

	res, err := newReader(Config{}).Parse(rows)
	require.NoError(t, err)
	require.Len(t, res.Conditions, 3)
	assert.Empty(t, res.Errors)

	first := res.Conditions[0]
	assert.True(t, first.Active)
	assert.Equal(t, 2, first.Row)
	assert.Equal(t, dates.Date(2025, time.July, 1), first.StartDate)
	assert.Equal(t, dates.Date(2025, time.July, 31), first.EndDate)
	assert.Equal(t, []string{"ダイヤ", "ルース", "", "", ""}, first.Keywords)
	assert.Equal(t, "ダイヤ ルース", first.Query())
	assert.Equal(t, "Loose", first.Destination)

	assert.False(t, res.Conditions[1].Active)
	assert.Equal(t, 3, res.Conditions[1].Row)

	last := res.Conditions[2]
	assert.True(t, last.Active)
	assert.Equal(t, 5, last.Row)
	assert.Equal(t, "", last.Destination)
	assert.Equal(t, dates.Date(2025, time.June, 1), last.StartDate)

	assert.Len(t, res.Active(), 2)
}

// TestParse_ActiveFlagIsExact verifies only the exact TRUE marks a row
// active
func TestParse_ActiveFlagIsExact(t *testing.T) {
	for _, flag := range []string{"true", "True", "1", "yes", "✓", ""} {
		rows := [][]string{header, {"2025/07/01", "2025/07/31", flag, "ダイヤ"}}
		res, err := newReader(Config{}).Parse(rows)
		require.NoError(t, err)
		require.Len(t, res.Conditions, 1)
		assert.False(t, res.Conditions[0].Active, "flag %q", flag)
	}
}

// TestParse_RowErrors verifies bad dates on active rows are reported and
// skipped
func TestParse_RowErrors(t *testing.T) {
	rows := [][]string{
		header,
		{"someday", "2025/07/31", "TRUE", "ダイヤ"},
		{"2025/07/01", "2025/02/30", "TRUE", "ダイヤ"},
		{"bad", "bad", "FALSE", "ダイヤ"},
		{"2025/07/01", "2025/07/31", "TRUE", "ダイヤ"},
	}

	res, err := newReader(Config{}).Parse(rows)
	require.NoError(t, err)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 2, res.Errors[0].Row)
	assert.Equal(t, 3, res.Errors[1].Row)
	assert.ErrorIs(t, res.Errors[0].Err, dates.ErrUnparseableDate)
	assert.Contains(t, res.Errors[1].Error(), "row 3")

	require.Len(t, res.Conditions, 2)
	assert.Equal(t, 4, res.Conditions[0].Row)
	assert.Equal(t, 5, res.Conditions[1].Row)
}

// TestParse_MissingColumn verifies required headers are enforced
func TestParse_MissingColumn(t *testing.T) {
	rows := [][]string{{"start_date", "end_date", "search_1"}}
	_, err := newReader(Config{}).Parse(rows)
	assert.ErrorIs(t, err, ErrMissingColumn)
}

// TestParse_CustomColumns verifies configured header names and width-
// insensitive matching
func TestParse_CustomColumns(t *testing.T) {
	cfg := Config{Columns: Columns{
		StartDate: "開始日",
		EndDate:   "終了日",
		Check:     "対象",
		Keywords:  []string{"KW1", "KW2"},
	}}
	rows := [][]string{
		{"開始日", "終了日", "対象", "ＫＷ１", "kw2", "ws_name"},
		{"2025/07/01", "2025/07/31", "TRUE", "ダイヤ", "0.5ct", "Rings"},
	}

	res, err := newReader(cfg).Parse(rows)
	require.NoError(t, err)
	require.Len(t, res.Conditions, 1)
	assert.Equal(t, []string{"ダイヤ", "0.5ct"}, res.Conditions[0].Keywords)
	assert.Equal(t, "Rings", res.Conditions[0].Destination)
}

// TestParse_Empty verifies an empty tab yields no conditions
func TestParse_Empty(t *testing.T) {
	res, err := newReader(Config{}).Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, res.Conditions)
}

// TestRead verifies reading from a workbook tab
func TestRead(t *testing.T) {
	ctx := context.Background()
	book, err := sheets.OpenSQLiteBook(ctx, filepath.Join(t.TempDir(), "book.db"), nil)
	require.NoError(t, err)
	defer book.Close()

	tab, err := book.Tab(ctx, "Master")
	require.NoError(t, err)
	require.NoError(t, tab.Append(ctx, "A1", [][]any{
		{"start_date", "end_date", "check", "search_1", "search_2", "search_3", "search_4", "search_5", "ws_name"},
		{"2025/07/01", "2025/07/31", "TRUE", "ダイヤ", "", "", "", "", "Loose"},
	}, sheets.Raw))

	res, err := newReader(Config{}).Read(ctx, book)
	require.NoError(t, err)
	require.Len(t, res.Conditions, 1)
	assert.Equal(t, "Loose", res.Conditions[0].Destination)
	assert.Equal(t, []string{"ダイヤ", "", "", "", ""}, res.Conditions[0].Keywords)
}
