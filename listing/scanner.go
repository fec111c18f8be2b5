// Package listing walks paginated search results and collects the detail
// URLs of listings that closed inside a date window.
package listing

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/pevans/auctionscan/auction"
	"github.com/pevans/auctionscan/browser"
	"github.com/pevans/auctionscan/dates"
	"github.com/pevans/auctionscan/logger"
	"github.com/pevans/auctionscan/scraper"
)

// TerminationReason records why a scan stopped.
type TerminationReason string

const (
	ReasonNoResults          TerminationReason = "no_results"
	ReasonLookaheadExhausted TerminationReason = "lookahead_exhausted"
	ReasonEmptyPages         TerminationReason = "empty_pages"
	ReasonNavigationFailed   TerminationReason = "navigation_failed"
	ReasonMaxPages           TerminationReason = "max_pages"
)

// ScanResult is the outcome of one scan.
type ScanResult struct {
	// URLs holds unique detail URLs in the order they were found.
	URLs []string
	// Pages counts the result pages that loaded.
	Pages  int
	Reason TerminationReason
}

// Config configures a Scanner.
type Config struct {
	List         scraper.ListConfig
	PerPage      int
	PageTimeout  time.Duration
	FindTimeout  time.Duration
	ClickTimeout time.Duration
	// ProbeTimeout bounds the zero-result checks, which usually find
	// nothing.
	ProbeTimeout time.Duration
}

type scanState int

const (
	stateScanning scanState = iota
	stateLookahead
)

// Scanner walks search result pages.
type Scanner struct {
	cfg   Config
	dates *dates.Resolver
	log   logger.Interface
}

// NewScanner creates a scanner. A nil logger disables logging.
func NewScanner(cfg Config, resolver *dates.Resolver, log logger.Interface) *Scanner {
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 10 * time.Second
	}
	if cfg.FindTimeout <= 0 {
		cfg.FindTimeout = 10 * time.Second
	}
	if cfg.ClickTimeout <= 0 {
		cfg.ClickTimeout = 6 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = time.Second
	}
	if cfg.List.MaxEmptyPages <= 0 {
		cfg.List.MaxEmptyPages = scraper.DefaultMaxEmptyPages
	}
	cfg.PerPage = clampPerPage(cfg.PerPage)
	if log == nil {
		log = logger.NewNoOp()
	}
	return &Scanner{cfg: cfg, dates: resolver, log: log.WithComponent("listing")}
}

// Scan walks result pages starting at queryURL and returns the detail URLs
// of listings whose end date lies inside window. Once a page holds a
// listing older than the window start, exactly lookahead further pages are
// read before stopping. Counters are added to stats.
//
// Scan only returns an error when ctx is done; every other stop is
// reported through ScanResult.Reason.
func (s *Scanner) Scan(ctx context.Context, page browser.Page, queryURL string, window auction.Window, lookahead int, stats *auction.CrawlStats) (*ScanResult, error) {
	if stats == nil {
		stats = &auction.CrawlStats{}
	}
	if lookahead < 0 {
		lookahead = 0
	}

	result := &ScanResult{URLs: []string{}}
	seen := make(map[string]struct{})
	state := stateScanning
	remaining := 0
	emptyRun := 0
	pageURL := queryURL
	// base is the URL later pages are derived from. It follows the view
	// the pre-scan click switched to.
	base := queryURL

	log := s.log.With("query", queryURL)

	for pageIndex := 0; ; pageIndex++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if s.cfg.List.MaxPages > 0 && result.Pages >= s.cfg.List.MaxPages {
			result.Reason = ReasonMaxPages
			break
		}

		if err := s.load(ctx, page, pageURL); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			log.WithError(err).Warn("failed to load results page", "page", pageIndex+1, "url", pageURL)
			result.Reason = ReasonNavigationFailed
			break
		}
		result.Pages++
		stats.PagesVisited++

		if pageIndex == 0 && len(s.cfg.List.PreScanClick) > 0 && s.preScanClick(ctx, page) {
			if u := page.URL(); u != "" {
				base = u
			}
		}

		if s.noResults(ctx, page) {
			log.Info("no results", "page", pageIndex+1)
			result.Reason = ReasonNoResults
			break
		}

		stubs := s.collect(ctx, page)
		oldest, dated := time.Time{}, false
		if len(stubs) == 0 {
			emptyRun++
			log.Warn("empty results page", "page", pageIndex+1, "consecutive", emptyRun)
			if emptyRun >= s.cfg.List.MaxEmptyPages {
				result.Reason = ReasonEmptyPages
				break
			}
		} else {
			emptyRun = 0
			var added int
			oldest, dated, added = s.accept(stubs, page.URL(), window, seen, result, stats)
			log.Info("scanned results page",
				"page", pageIndex+1,
				"listings", len(stubs),
				"added", added,
				"total", len(result.URLs),
			)
		}

		switch state {
		case stateLookahead:
			remaining--
			if remaining <= 0 {
				result.Reason = ReasonLookaheadExhausted
			}
		case stateScanning:
			if dated && window.Before(oldest) {
				state = stateLookahead
				remaining = lookahead
				log.Info("reached window start, reading ahead",
					"page", pageIndex+1,
					"oldest", oldest.Format(time.DateOnly),
					"lookahead", lookahead,
				)
				if remaining <= 0 {
					result.Reason = ReasonLookaheadExhausted
				}
			}
		}
		if result.Reason != "" {
			break
		}

		next, err := PageURL(base, pageIndex+1, s.cfg.PerPage)
		if err != nil {
			log.Warn("failed to build next page URL", "error", err)
			result.Reason = ReasonNavigationFailed
			break
		}
		pageURL = next
	}

	log.Info("scan finished",
		"reason", string(result.Reason),
		"pages", result.Pages,
		"candidates", len(result.URLs),
	)
	return result, nil
}

func (s *Scanner) load(ctx context.Context, page browser.Page, pageURL string) error {
	if err := page.Navigate(ctx, pageURL); err != nil {
		return err
	}
	return page.WaitReady(ctx, s.cfg.PageTimeout)
}

// accept filters stubs into result and returns the oldest parsed end date
// on the page.
func (s *Scanner) accept(stubs []auction.ListingStub, pageURL string, window auction.Window, seen map[string]struct{}, result *ScanResult, stats *auction.CrawlStats) (time.Time, bool, int) {
	var (
		oldest time.Time
		dated  bool
		added  int
	)
	for _, stub := range stubs {
		end, err := s.dates.Resolve(stub.RawEndDate)
		if err != nil {
			stats.DateParseFail++
			s.log.Debug("skipping listing with unreadable end date", "raw", stub.RawEndDate, "url", stub.DetailURL)
			continue
		}
		stats.DateParseOK++

		if !dated || end.Before(oldest) {
			oldest, dated = end, true
		}
		if !window.Contains(end) {
			continue
		}

		detailURL := absoluteURL(pageURL, stub.DetailURL)
		if _, ok := seen[detailURL]; ok {
			continue
		}
		seen[detailURL] = struct{}{}
		result.URLs = append(result.URLs, detailURL)
		stats.CandidatesAdded++
		added++
	}
	return oldest, dated, added
}

// collect reads one stub per listing container. A container without an
// end date still yields a stub so the failure is counted; one without a
// detail URL is dropped. Pages without containers fall back to pairing
// page-wide lists by position.
func (s *Scanner) collect(ctx context.Context, page browser.Page) []auction.ListingStub {
	for _, cand := range s.cfg.List.Item {
		items, err := page.FindAll(ctx, cand.Selector(), s.cfg.FindTimeout)
		if err != nil || len(items) == 0 {
			continue
		}

		stubs := make([]auction.ListingStub, 0, len(items))
		for i, item := range items {
			link, err := scraper.ResolveIn(ctx, item, s.cfg.List.DetailURL)
			if err != nil {
				s.log.Debug("skipping listing without detail URL", "item", i+1, "error", err)
				continue
			}
			var raw string
			if end, err := scraper.ResolveIn(ctx, item, s.cfg.List.EndDate); err == nil {
				raw = end.Value
			}
			stubs = append(stubs, auction.ListingStub{RawEndDate: raw, DetailURL: link.Value})
		}
		return stubs
	}
	return s.collectPaired(ctx, page)
}

// collectPaired pairs page-wide end-date texts with detail URLs, truncating
// to the shorter list.
func (s *Scanner) collectPaired(ctx context.Context, page browser.Page) []auction.ListingStub {
	endDates, _, err := scraper.ResolveAll(ctx, page, s.cfg.List.EndDate, s.cfg.FindTimeout)
	if err != nil {
		s.log.Debug("no end dates on page", "error", err)
		return nil
	}
	urls, _, err := scraper.ResolveAll(ctx, page, s.cfg.List.DetailURL, s.cfg.FindTimeout)
	if err != nil {
		s.log.Debug("no detail URLs on page", "error", err)
		return nil
	}

	n := min(len(endDates), len(urls))
	if len(endDates) != len(urls) {
		s.log.Warn("end date and URL counts differ", "end_dates", len(endDates), "urls", len(urls), "paired", n)
	}

	stubs := make([]auction.ListingStub, n)
	for i := range n {
		stubs[i] = auction.ListingStub{RawEndDate: endDates[i], DetailURL: urls[i]}
	}
	return stubs
}

// noResults reports whether the page says the search matched nothing.
func (s *Scanner) noResults(ctx context.Context, page browser.Page) bool {
	if len(s.cfg.List.NoResultTexts) > 0 {
		text := pageText(ctx, page, s.cfg.ProbeTimeout)
		for _, marker := range s.cfg.List.NoResultTexts {
			if marker != "" && strings.Contains(text, marker) {
				return true
			}
		}
	}
	return scraper.Exists(ctx, page, probeCandidates(s.cfg.List.NoResultSelectors), s.cfg.ProbeTimeout)
}

// preScanClick clicks the first present PreScanClick candidate and waits
// for the page to settle. It reports whether the click went through; an
// absent control is not an error.
func (s *Scanner) preScanClick(ctx context.Context, page browser.Page) bool {
	for _, cand := range s.cfg.List.PreScanClick {
		el, err := page.Find(ctx, cand.Selector(), s.cfg.ClickTimeout)
		if err != nil {
			continue
		}
		if err := el.Click(ctx); err != nil {
			s.log.Warn("failed to click pre-scan control", "candidate", cand.Name(), "error", err)
			return false
		}
		if err := page.WaitReady(ctx, s.cfg.PageTimeout); err != nil {
			s.log.Warn("page did not settle after pre-scan click", "candidate", cand.Name(), "error", err)
			return false
		}
		s.log.Info("clicked pre-scan control", "candidate", cand.Name(), "url", page.URL())
		return true
	}
	s.log.Debug("pre-scan control not present")
	return false
}

func pageText(ctx context.Context, page browser.Page, timeout time.Duration) string {
	if text, err := page.Eval(ctx, "document.body.innerText"); err == nil {
		return text
	}
	body, err := page.Find(ctx, browser.CSS("body"), timeout)
	if err != nil {
		return ""
	}
	text, _ := body.Text()
	return text
}

// probeCandidates merges CSS candidates into a single selector list so a
// driver that waits for absent elements waits once, not once per selector.
func probeCandidates(cands []scraper.Candidate) []scraper.Candidate {
	var css []string
	var out []scraper.Candidate
	for _, c := range cands {
		if c.Strategy == string(browser.ByCSS) {
			css = append(css, c.Locator)
			continue
		}
		out = append(out, c)
	}
	if len(css) > 0 {
		out = append([]scraper.Candidate{scraper.CSS(strings.Join(css, ", "))}, out...)
	}
	return out
}

func absoluteURL(base, ref string) string {
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil || b.Host == "" {
		return r.String()
	}
	return b.ResolveReference(r).String()
}

// IsNavigationFailure reports whether a scan stopped because a page could
// not be loaded before any page was read.
func (r *ScanResult) IsNavigationFailure() bool {
	return r.Reason == ReasonNavigationFailed && r.Pages == 0
}
