package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pevans/auctionscan/browser"
	"github.com/pevans/auctionscan/textnorm"
)

// ErrNoMatch is returned when no candidate yields a value.
var ErrNoMatch = errors.New("no candidate matched")

// Match is the value found by Resolve and the candidate that found it.
type Match struct {
	Value     string
	Candidate Candidate
}

// Resolve tries each candidate in order and returns the first non-empty
// value. Every candidate may wait up to timeout for its element.
func Resolve(ctx context.Context, page browser.Page, cands []Candidate, timeout time.Duration) (Match, error) {
	for _, cand := range cands {
		if err := ctx.Err(); err != nil {
			return Match{}, err
		}

		elems, err := page.FindAll(ctx, cand.Selector(), timeout)
		if err != nil {
			// A broken candidate must not block the ones after it.
			if ctx.Err() != nil {
				return Match{}, ctx.Err()
			}
			continue
		}

		for _, el := range elems {
			if v := readValue(el, cand); v != "" {
				return Match{Value: v, Candidate: cand}, nil
			}
		}
	}
	return Match{}, fmt.Errorf("%w (tried %s)", ErrNoMatch, names(cands))
}

// ResolveIn is Resolve scoped to the descendants of el. It does not wait.
func ResolveIn(ctx context.Context, el browser.Element, cands []Candidate) (Match, error) {
	for _, cand := range cands {
		if err := ctx.Err(); err != nil {
			return Match{}, err
		}

		elems, err := el.FindAll(ctx, cand.Selector())
		if err != nil {
			continue
		}
		for _, child := range elems {
			if v := readValue(child, cand); v != "" {
				return Match{Value: v, Candidate: cand}, nil
			}
		}
	}
	return Match{}, fmt.Errorf("%w (tried %s)", ErrNoMatch, names(cands))
}

// ResolveAll returns every non-empty value found by the first candidate
// that yields any, in document order.
func ResolveAll(ctx context.Context, page browser.Page, cands []Candidate, timeout time.Duration) ([]string, Candidate, error) {
	for _, cand := range cands {
		if err := ctx.Err(); err != nil {
			return nil, Candidate{}, err
		}

		elems, err := page.FindAll(ctx, cand.Selector(), timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil, Candidate{}, ctx.Err()
			}
			continue
		}

		var values []string
		for _, el := range elems {
			if v := readValue(el, cand); v != "" {
				values = append(values, v)
			}
		}
		if len(values) > 0 {
			return values, cand, nil
		}
	}
	return nil, Candidate{}, fmt.Errorf("%w (tried %s)", ErrNoMatch, names(cands))
}

// Exists reports whether any candidate matches an element.
func Exists(ctx context.Context, page browser.Page, cands []Candidate, timeout time.Duration) bool {
	for _, cand := range cands {
		if _, err := page.Find(ctx, cand.Selector(), timeout); err == nil {
			return true
		}
	}
	return false
}

// readValue reads the candidate's attributes (or the text) of el and
// applies its keyword filter. Attributes are tried in order until one
// passes. Inline data: URIs are lazy-load placeholders and never count.
func readValue(el browser.Element, cand Candidate) string {
	if len(cand.Attrs) == 0 {
		text, err := el.Text()
		if err != nil {
			return ""
		}
		if v := strings.TrimSpace(text); v != "" && matchesKeywords(v, cand.Keywords) {
			return v
		}
		return ""
	}

	for _, attr := range cand.Attrs {
		raw, ok, err := el.Attribute(attr)
		if err != nil || !ok {
			continue
		}
		if attr == "srcset" {
			raw = firstSrcsetURL(raw)
		}
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(strings.ToLower(raw), "data:") {
			continue
		}
		if matchesKeywords(raw, cand.Keywords) {
			return raw
		}
	}
	return ""
}

func matchesKeywords(v string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	norm := textnorm.Normalize(v)
	for _, kw := range keywords {
		if strings.Contains(norm, textnorm.Normalize(kw)) {
			return true
		}
	}
	return false
}

// firstSrcsetURL returns the URL of the first "url descriptor" entry.
func firstSrcsetURL(srcset string) string {
	first, _, _ := strings.Cut(srcset, ",")
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func names(cands []Candidate) string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Name()
	}
	return strings.Join(out, ", ")
}
