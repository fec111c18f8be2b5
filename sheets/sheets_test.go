package sheets

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestColumnLetter verifies base-26 column names
func TestColumnLetter(t *testing.T) {
	tests := map[int]string{1: "A", 2: "B", 26: "Z", 27: "AA", 52: "AZ", 53: "BA", 702: "ZZ", 703: "AAA"}
	for index, want := range tests {
		assert.Equal(t, want, ColumnLetter(index), "index %d", index)

		col, row, err := ParseCell(want + "7")
		require.NoError(t, err)
		assert.Equal(t, index, col)
		assert.Equal(t, 7, row)
	}
	assert.Equal(t, "", ColumnLetter(0))
}

// TestParseCell verifies malformed references are rejected
func TestParseCell(t *testing.T) {
	col, row, err := ParseCell(" a12 ")
	require.NoError(t, err)
	assert.Equal(t, 1, col)
	assert.Equal(t, 12, row)

	for _, ref := range []string{"", "A", "12", "A0", "A-1", "1A", "A1:B2"} {
		_, _, err := ParseCell(ref)
		assert.ErrorIs(t, err, ErrInvalidCell, ref)
	}

	assert.Equal(t, "C4", Cell(3, 4))
}

// TestFormatValue verifies cell rendering for the value types the writer
// produces
func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "abc", FormatValue("abc"))
	assert.Equal(t, "16200", FormatValue(int64(16200)))
	assert.Equal(t, "3", FormatValue(3))
	assert.Equal(t, "0.508", FormatValue(decimal.RequireFromString("0.508")))
	assert.Equal(t, "1.5", FormatValue(1.5))
	assert.Equal(t, "TRUE", FormatValue(true))
	assert.Equal(t, "2025/07/01 09:30:00", FormatValue(time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)))
}
