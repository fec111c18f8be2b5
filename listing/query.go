package listing

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrNoKeywords is returned when a query has no non-blank keyword.
var ErrNoKeywords = errors.New("no search keywords")

// Query parameters understood by the search endpoint.
const (
	paramQuery    = "p"
	paramAllWords = "va"
	paramOffset   = "b"
	paramPerPage  = "n"
)

// MaxPerPage is the largest page size the search endpoint accepts.
const MaxPerPage = 100

// BuildQueryURL returns the URL of the first results page for keywords.
// Blank keywords are dropped and the rest joined with single spaces.
func BuildQueryURL(base string, keywords []string, perPage int) (string, error) {
	terms := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.Join(strings.Fields(kw), " "); kw != "" {
			terms = append(terms, kw)
		}
	}
	if len(terms) == 0 {
		return "", ErrNoKeywords
	}
	query := strings.Join(terms, " ")

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse search URL %q: %w", base, err)
	}

	perPage = clampPerPage(perPage)
	values := u.Query()
	values.Set(paramQuery, query)
	values.Set(paramAllWords, query)
	values.Set(paramOffset, "1")
	values.Set(paramPerPage, strconv.Itoa(perPage))
	u.RawQuery = values.Encode()

	return u.String(), nil
}

// PageURL rewrites the offset parameter of queryURL to point at the given
// zero-based page.
func PageURL(queryURL string, page, perPage int) (string, error) {
	if page < 0 {
		return "", fmt.Errorf("page must not be negative, got %d", page)
	}
	u, err := url.Parse(queryURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse query URL %q: %w", queryURL, err)
	}

	perPage = clampPerPage(perPage)
	values := u.Query()
	values.Set(paramOffset, strconv.Itoa(1+page*perPage))
	values.Set(paramPerPage, strconv.Itoa(perPage))
	u.RawQuery = values.Encode()

	return u.String(), nil
}

func clampPerPage(n int) int {
	if n < 1 || n > MaxPerPage {
		return MaxPerPage
	}
	return n
}
