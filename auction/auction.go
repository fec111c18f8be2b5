// Package auction holds the data model shared by the crawl pipeline.
package auction

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxKeywords is the number of keyword columns a search condition carries.
const MaxKeywords = 5

// SearchCondition is one row of the master tab.
type SearchCondition struct {
	StartDate   time.Time
	EndDate     time.Time
	Keywords    []string
	Active      bool
	Destination string
	// Row is the 1-based sheet row the condition was read from.
	Row int
}

// Window returns the condition's closing-date window.
func (c SearchCondition) Window() Window {
	return Window{Start: c.StartDate, End: c.EndDate}
}

// Query joins the non-blank keywords with single spaces.
func (c SearchCondition) Query() string {
	terms := make([]string, 0, len(c.Keywords))
	for _, kw := range c.Keywords {
		kw = strings.TrimSpace(kw)
		if kw != "" {
			terms = append(terms, kw)
		}
	}
	return strings.Join(terms, " ")
}

// Window is an inclusive range of calendar dates.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether d lies within the window, bounds included.
func (w Window) Contains(d time.Time) bool {
	return !w.Before(d) && !w.After(d)
}

// Before reports whether d is older than the window start.
func (w Window) Before(d time.Time) bool {
	return d.Before(w.Start)
}

// After reports whether d is newer than the window end.
func (w Window) After(d time.Time) bool {
	return d.After(w.End)
}

// ListingStub pairs a raw end-date string with a detail page URL, as read
// from one row of a results page.
type ListingStub struct {
	RawEndDate string
	DetailURL  string
}

// ImageQuality records which image candidate supplied the record's image.
type ImageQuality string

const (
	ImagePreferred ImageQuality = "preferred"
	ImageFallback  ImageQuality = "fallback"
	ImageNone      ImageQuality = "none"
)

// ExtractedRecord is one auction listing ready to be written.
type ExtractedRecord struct {
	InputTimestamp time.Time
	EndDate        time.Time
	Title          string
	Price          int64
	Carat          decimal.Decimal
	PricePerCarat  int64
	ImageURL       string
	ImageQuality   ImageQuality
	SourceURL      string
	Destination    string
	Active         bool
}

// CrawlStats accumulates counters for one condition's run.
type CrawlStats struct {
	PagesVisited    int
	CandidatesAdded int
	DateParseOK     int
	DateParseFail   int
	RecordsWritten  int

	DetailsFailed  int
	BelowMinCarat  int
	RecordsSkipped int
}

// Fields returns the counters as logger key/value pairs.
func (s *CrawlStats) Fields() []any {
	return []any{
		"pages_visited", s.PagesVisited,
		"candidates_added", s.CandidatesAdded,
		"date_parse_ok", s.DateParseOK,
		"date_parse_fail", s.DateParseFail,
		"details_failed", s.DetailsFailed,
		"below_min_carat", s.BelowMinCarat,
		"records_written", s.RecordsWritten,
		"records_skipped", s.RecordsSkipped,
	}
}
