// Package auctionscan crawls closed auctions for each active search
// condition, computes their price per carat and appends new listings to the
// condition's destination tab.
package auctionscan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/auctionscan/auction"
	"github.com/pevans/auctionscan/browser"
	"github.com/pevans/auctionscan/extract"
	"github.com/pevans/auctionscan/listing"
	"github.com/pevans/auctionscan/logger"
	"github.com/pevans/auctionscan/writer"
)

// Status is the outcome of one condition's run.
type Status string

const (
	// StatusSkipped marks an inactive condition.
	StatusSkipped Status = "skipped"
	// StatusNoCandidates means no listing closed inside the window.
	StatusNoCandidates Status = "no_candidates"
	// StatusNoRecords means candidates were found but none could be
	// extracted.
	StatusNoRecords Status = "no_records"
	// StatusWritten means the write step completed; every record may still
	// have been a duplicate.
	StatusWritten Status = "written"
	// StatusFailed means the run broke before it could finish.
	StatusFailed Status = "failed"
)

// ErrNavigation is returned when the first result page never loaded.
var ErrNavigation = errors.New("search results unreachable")

// CrawlConfig holds the per-run settings of a Crawler.
type CrawlConfig struct {
	SearchURL string
	PerPage   int
	Lookahead int
	// SlowRun is the duration above which a finished run is logged as a
	// warning. Zero disables it.
	SlowRun time.Duration
}

// RunResult reports one condition's run.
type RunResult struct {
	RunID     uuid.UUID
	Condition auction.SearchCondition
	Status    Status
	Stats     auction.CrawlStats
	Scan      *listing.ScanResult
	Write     *writer.Result
	Err       error
	Duration  time.Duration
}

// BatchResult reports a Run call in condition order.
type BatchResult struct {
	Runs []*RunResult
}

// Count returns the number of runs with status s.
func (b *BatchResult) Count(s Status) int {
	n := 0
	for _, r := range b.Runs {
		if r.Status == s {
			n++
		}
	}
	return n
}

// Written returns the number of records written across all runs.
func (b *BatchResult) Written() int {
	n := 0
	for _, r := range b.Runs {
		n += r.Stats.RecordsWritten
	}
	return n
}

// Crawler runs search conditions one after another on a single page.
type Crawler struct {
	cfg       CrawlConfig
	page      browser.Page
	scanner   *listing.Scanner
	extractor *extract.Extractor
	writer    *writer.Writer
	log       logger.Interface
}

// NewCrawler creates a crawler. A nil logger disables logging.
func NewCrawler(
	cfg CrawlConfig,
	page browser.Page,
	scanner *listing.Scanner,
	extractor *extract.Extractor,
	w *writer.Writer,
	log logger.Interface,
) *Crawler {
	if log == nil {
		log = logger.NewNoOp()
	}
	return &Crawler{
		cfg:       cfg,
		page:      page,
		scanner:   scanner,
		extractor: extractor,
		writer:    w,
		log:       log.WithComponent("crawler"),
	}
}

// Run processes conds in order. Inactive conditions are skipped. A failing
// condition does not stop the batch; a cancelled context does, and the
// remaining conditions are not reported.
func (c *Crawler) Run(ctx context.Context, conds []auction.SearchCondition) *BatchResult {
	batch := &BatchResult{}
	c.log.Info("crawl starting", "conditions", len(conds))

	for _, cond := range conds {
		if ctx.Err() != nil {
			c.log.Warn("crawl cancelled", "remaining", len(conds)-len(batch.Runs))
			break
		}

		if !cond.Active {
			c.log.Debug("skipping inactive condition", "row", cond.Row)
			batch.Runs = append(batch.Runs, &RunResult{Condition: cond, Status: StatusSkipped})
			continue
		}

		batch.Runs = append(batch.Runs, c.RunCondition(ctx, cond))
	}

	c.log.Info("crawl finished",
		"runs", len(batch.Runs),
		"written", batch.Written(),
		"failed", batch.Count(StatusFailed),
		"no_candidates", batch.Count(StatusNoCandidates),
		"no_records", batch.Count(StatusNoRecords),
		"skipped", batch.Count(StatusSkipped),
	)
	return batch
}

// RunCondition scans, extracts and writes the listings of one condition.
// The condition's activity flag is not checked.
func (c *Crawler) RunCondition(ctx context.Context, cond auction.SearchCondition) *RunResult {
	start := time.Now()
	res := &RunResult{RunID: uuid.New(), Condition: cond}
	log := c.log.With(
		"run_id", res.RunID.String(),
		"row", cond.Row,
		"query", cond.Query(),
		"destination", cond.Destination,
	)

	defer func() {
		res.Duration = time.Since(start)
		fields := append([]any{"status", string(res.Status), "duration", res.Duration}, res.Stats.Fields()...)
		summary := log
		if res.Err != nil {
			summary = log.WithError(res.Err)
		}
		switch {
		case res.Status == StatusFailed:
			summary.Error("run failed", fields...)
		case c.cfg.SlowRun > 0 && res.Duration > c.cfg.SlowRun:
			summary.Warn("slow run", fields...)
		default:
			summary.Info("run finished", fields...)
		}
	}()

	fail := func(err error) *RunResult {
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	queryURL, err := listing.BuildQueryURL(c.cfg.SearchURL, cond.Keywords, c.cfg.PerPage)
	if err != nil {
		return fail(fmt.Errorf("failed to build query: %w", err))
	}

	window := cond.Window()
	log.Info("run starting",
		"start_date", window.Start.Format(time.DateOnly),
		"end_date", window.End.Format(time.DateOnly),
	)

	scan, err := c.scanner.Scan(ctx, c.page, queryURL, window, c.cfg.Lookahead, &res.Stats)
	if err != nil {
		return fail(fmt.Errorf("failed to scan results: %w", err))
	}
	res.Scan = scan
	if scan.IsNavigationFailure() {
		return fail(fmt.Errorf("%w: %s", ErrNavigation, queryURL))
	}
	if len(scan.URLs) == 0 {
		res.Status = StatusNoCandidates
		return res
	}

	records := make([]*auction.ExtractedRecord, 0, len(scan.URLs))
	for _, u := range scan.URLs {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		record, err := c.extractor.Extract(ctx, c.page, u)
		if err != nil {
			if errors.Is(err, extract.ErrBelowMinCarat) {
				res.Stats.BelowMinCarat++
				log.WithError(err).Debug("skipping small stone", "url", u)
				continue
			}
			res.Stats.DetailsFailed++
			log.WithError(err).Warn("failed to extract listing", "url", u)
			continue
		}
		record.Destination = cond.Destination
		record.Active = cond.Active
		records = append(records, record)
	}

	if len(records) == 0 {
		res.Status = StatusNoRecords
		return res
	}

	written, err := c.writer.Write(ctx, records)
	res.Write = written
	if written != nil {
		res.Stats.RecordsWritten = written.Written
		res.Stats.RecordsSkipped = written.Skipped
	}
	if err != nil {
		return fail(fmt.Errorf("failed to write records: %w", err))
	}

	res.Status = StatusWritten
	return res
}
