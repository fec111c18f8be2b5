package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/pevans/auctionscan/config"
	"github.com/pevans/auctionscan/sheets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the CLI with a config file that doesn't exist, so only
// defaults and the environment apply.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	missing := filepath.Join(t.TempDir(), "none.yaml")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", missing, "--env-file", ""}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// TestDateCommand verifies dates are resolved and failures reported
func TestDateCommand(t *testing.T) {
	out, err := run(t, "date", "2025/07/21", "2025-7-1")
	require.NoError(t, err)
	assert.Contains(t, out, "2025/07/21\t2025-07-21")
	assert.Contains(t, out, "2025-7-1\t2025-07-01")

	out, err = run(t, "date", "someday")
	assert.Error(t, err)
	assert.Contains(t, out, "someday")
}

// TestPriceCommand verifies the carat metric is printed
func TestPriceCommand(t *testing.T) {
	out, err := run(t, "price", "ダイヤ 0.5ct リング", "10,000円")
	require.NoError(t, err)
	assert.Contains(t, out, "carat\t0.5")
	assert.Contains(t, out, "price\t10000")
	assert.Contains(t, out, "price_per_carat\t16200")

	_, err = run(t, "price", "リング", "10000")
	assert.Error(t, err)

	_, err = run(t, "price", "0.5ct", "free")
	assert.ErrorContains(t, err, "invalid price")
}

// TestConditionsCommand verifies conditions are read from a local
// workbook
func TestConditionsCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "book.db")
	t.Setenv(config.EnvSheetsBackend, config.BackendSQLite)
	t.Setenv(config.EnvSpreadsheetID, dbPath)

	ctx := context.Background()
	book, err := sheets.OpenSQLiteBook(ctx, dbPath, nil)
	require.NoError(t, err)
	tab, err := book.Tab(ctx, "Master")
	require.NoError(t, err)
	require.NoError(t, tab.Append(ctx, "A1", [][]any{
		{"start_date", "end_date", "check", "search_1", "search_2", "search_3", "search_4", "search_5", "ws_name"},
		{"2025/07/01", "2025/07/31", "TRUE", "ダイヤ", "ルース", "", "", "", "Loose"},
		{"2025/07/01", "2025/07/31", "FALSE", "ルビー"},
		{"bad", "2025/07/31", "TRUE", "サファイア"},
	}, sheets.Raw))
	require.NoError(t, book.Close())

	out, err := run(t, "conditions")
	require.NoError(t, err)
	assert.Contains(t, out, "ダイヤ ルース")
	assert.Contains(t, out, "Loose")
	assert.Contains(t, out, "skipped row 4")

	out, err = run(t, "conditions", "--format", "json", "--active")
	require.NoError(t, err)
	var doc struct {
		Conditions []conditionJSON `json:"conditions"`
		Errors     []rowErrorJSON  `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Conditions, 1)
	assert.Equal(t, "2025-07-01", doc.Conditions[0].StartDate)
	assert.Equal(t, 2, doc.Conditions[0].Row)
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, 4, doc.Errors[0].Row)
}

// TestCrawlCommand_InvalidConfig verifies the crawl refuses to start
// without a workbook
func TestCrawlCommand_InvalidConfig(t *testing.T) {
	t.Setenv(config.EnvSpreadsheetID, "")
	_, err := run(t, "crawl")
	assert.ErrorContains(t, err, "invalid configuration")
}
