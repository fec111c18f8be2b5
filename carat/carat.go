// Package carat extracts carat weights from listing titles and derives the
// net price per carat.
package carat

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pevans/auctionscan/logger"
	"github.com/pevans/auctionscan/textnorm"
	"github.com/shopspring/decimal"
)

// ErrCaratExtraction is matched (via errors.Is) by every
// *CaratExtractionError.
var ErrCaratExtraction = errors.New("carat extraction failed")

// CaratExtractionError is returned when a title carries no usable carat
// token.
type CaratExtractionError struct {
	Title  string
	Reason string
}

func (e *CaratExtractionError) Error() string {
	return fmt.Sprintf("carat extraction failed for %q: %s", e.Title, e.Reason)
}

// Is reports whether target is ErrCaratExtraction.
func (e *CaratExtractionError) Is(target error) bool {
	return target == ErrCaratExtraction
}

// Selection picks one carat value when a title has several.
type Selection string

const (
	SelectMax   Selection = "max"
	SelectFirst Selection = "first"
)

// Config configures a Calculator. Rates are fractions in [0, 1).
type Config struct {
	FeeRate   decimal.Decimal
	TaxRate   decimal.Decimal
	Selection Selection
}

// DefaultConfig returns a 10% fee, a 10% tax and max selection.
func DefaultConfig() Config {
	return Config{
		FeeRate:   decimal.RequireFromString("0.10"),
		TaxRate:   decimal.RequireFromString("0.10"),
		Selection: SelectMax,
	}
}

// Result is the outcome of Calculate.
type Result struct {
	Carat         decimal.Decimal
	PricePerCarat int64
}

const number = `\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`

// Either "<number>ct" (group 1) or "ct<number>" (group 2).
var reCarat = regexp.MustCompile(`(?i)(` + number + `)\s*ct|ct\s*:?\s*(` + number + `)`)

// Calculator extracts carats and computes prices per carat.
type Calculator struct {
	cfg Config
	log logger.Interface
}

// NewCalculator creates a calculator. A nil logger disables logging.
func NewCalculator(cfg Config, log logger.Interface) *Calculator {
	if cfg.Selection == "" {
		cfg.Selection = SelectMax
	}
	if log == nil {
		log = logger.NewNoOp()
	}
	return &Calculator{cfg: cfg, log: log.WithComponent("carat")}
}

// Extract returns the carat weight named in title.
func (c *Calculator) Extract(title string) (decimal.Decimal, error) {
	values := findCarats(textnorm.Normalize(title))
	if len(values) == 0 {
		c.log.Debug("no carat token", "title", title)
		return decimal.Zero, &CaratExtractionError{Title: title, Reason: "no carat token"}
	}

	chosen := values[0]
	if c.cfg.Selection == SelectMax {
		for _, v := range values[1:] {
			if v.GreaterThan(chosen) {
				chosen = v
			}
		}
	}

	if !chosen.IsPositive() {
		return decimal.Zero, &CaratExtractionError{Title: title, Reason: "carat must be positive"}
	}

	c.log.Debug("extracted carat", "title", title, "carat", chosen.String(), "matches", len(values))
	return chosen, nil
}

// PricePerUnit returns the net price of one carat for an item sold at price.
func (c *Calculator) PricePerUnit(title string, price int64) (int64, error) {
	res, err := c.Calculate(title, price)
	if err != nil {
		return 0, err
	}
	return res.PricePerCarat, nil
}

// Calculate extracts the carat once and derives the price per carat from it.
func (c *Calculator) Calculate(title string, price int64) (Result, error) {
	ct, err := c.Extract(title)
	if err != nil {
		return Result{}, err
	}

	ppc, err := c.perCarat(price, ct)
	if err != nil {
		return Result{}, fmt.Errorf("failed to compute price per carat for %q: %w", title, err)
	}

	return Result{Carat: ct, PricePerCarat: ppc}, nil
}

// perCarat computes price / carat * (1 - fee) * (1 - tax), rounded half up.
func (c *Calculator) perCarat(price int64, ct decimal.Decimal) (int64, error) {
	if !ct.IsPositive() {
		return 0, fmt.Errorf("carat must be positive, got %s", ct)
	}

	one := decimal.NewFromInt(1)
	gross := decimal.NewFromInt(price).Div(ct)
	net := gross.Mul(one.Sub(c.cfg.FeeRate)).Mul(one.Sub(c.cfg.TaxRate))

	// Round rounds half away from zero, which is half up for positives.
	rounded := net.Round(0)
	if !rounded.IsPositive() {
		return 0, fmt.Errorf("price per carat must be positive, got %s", rounded)
	}

	c.log.Debug("price per carat",
		"price", price,
		"carat", ct.String(),
		"gross", gross.StringFixed(2),
		"net", net.StringFixed(2),
		"rounded", rounded.IntPart(),
	)
	return rounded.IntPart(), nil
}

// findCarats returns every carat value in s in order of appearance. A "ct"
// glued to a following letter or digit ("10cts"), or a leading "ct" glued
// to a preceding one ("pct5"), is not a carat token.
func findCarats(s string) []decimal.Decimal {
	var values []decimal.Decimal
	pos := 0
	for pos < len(s) {
		m := reCarat.FindStringSubmatchIndex(s[pos:])
		if m == nil {
			break
		}
		start, end := pos+m[0], pos+m[1]

		var raw string
		ok := false
		if m[2] >= 0 {
			raw = s[pos+m[2] : pos+m[3]]
			ok = !wordCharAt(s, end)
		} else {
			raw = s[pos+m[4] : pos+m[5]]
			ok = !wordCharBefore(s, start) && !wordCharAt(s, end)
		}

		if ok {
			if v, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", "")); err == nil {
				values = append(values, v)
				pos = end
				continue
			}
		}

		// Rejected: retry from the next rune so an overlapping token can
		// still match.
		_, size := utf8.DecodeRuneInString(s[start:])
		pos = start + size
	}
	return values
}

func wordCharAt(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return isWordRune(r)
}

func wordCharBefore(s string, i int) bool {
	if i <= 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return isWordRune(r)
}

// Only ASCII letters and digits count; Japanese text commonly abuts the
// token ("ダイヤ0.5ct").
func isWordRune(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
}
