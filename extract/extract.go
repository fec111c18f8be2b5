// Package extract reads one listing's detail page into an
// auction.ExtractedRecord.
package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pevans/auctionscan/auction"
	"github.com/pevans/auctionscan/browser"
	"github.com/pevans/auctionscan/carat"
	"github.com/pevans/auctionscan/dates"
	"github.com/pevans/auctionscan/logger"
	"github.com/pevans/auctionscan/scraper"
	"github.com/pevans/auctionscan/textnorm"
	"github.com/shopspring/decimal"
)

// Field names reported by DetailExtractionError.
const (
	FieldPage    = "page"
	FieldTitle   = "title"
	FieldPrice   = "price"
	FieldEndDate = "end_date"
	FieldCarat   = "carat"
)

var (
	// ErrDetailExtraction is matched (via errors.Is) by every
	// *DetailExtractionError.
	ErrDetailExtraction = errors.New("detail extraction failed")
	// ErrBelowMinCarat is wrapped when a listing's carat does not exceed
	// the configured minimum.
	ErrBelowMinCarat = errors.New("carat below minimum")
)

// DetailExtractionError reports the first required field that could not be
// read from a detail page.
type DetailExtractionError struct {
	URL   string
	Field string
	Err   error
}

func (e *DetailExtractionError) Error() string {
	return fmt.Sprintf("failed to extract %s from %s: %v", e.Field, e.URL, e.Err)
}

// Is reports whether target is ErrDetailExtraction.
func (e *DetailExtractionError) Is(target error) bool {
	return target == ErrDetailExtraction
}

func (e *DetailExtractionError) Unwrap() error {
	return e.Err
}

// Config configures an Extractor.
type Config struct {
	Detail      scraper.DetailConfig
	PageTimeout time.Duration
	FindTimeout time.Duration
	// MinCarat rejects listings whose carat is not strictly greater.
	MinCarat decimal.Decimal
}

// Extractor reads detail pages.
type Extractor struct {
	cfg   Config
	dates *dates.Resolver
	carat *carat.Calculator
	log   logger.Interface
}

// New creates an extractor. A nil logger disables logging.
func New(cfg Config, resolver *dates.Resolver, calc *carat.Calculator, log logger.Interface) *Extractor {
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 10 * time.Second
	}
	if cfg.FindTimeout <= 0 {
		cfg.FindTimeout = 10 * time.Second
	}
	if log == nil {
		log = logger.NewNoOp()
	}
	return &Extractor{cfg: cfg, dates: resolver, carat: calc, log: log.WithComponent("extract")}
}

// Extract navigates page to detailURL and reads the listing. The returned
// record has no destination; the caller assigns it.
func (e *Extractor) Extract(ctx context.Context, page browser.Page, detailURL string) (*auction.ExtractedRecord, error) {
	fail := func(field string, err error) error {
		return &DetailExtractionError{URL: detailURL, Field: field, Err: err}
	}

	if err := page.Navigate(ctx, detailURL); err != nil {
		return nil, fail(FieldPage, err)
	}
	if err := page.WaitReady(ctx, e.cfg.PageTimeout); err != nil {
		return nil, fail(FieldPage, err)
	}

	record := &auction.ExtractedRecord{
		InputTimestamp: e.dates.Now(),
		SourceURL:      detailURL,
	}

	// Extract title (required)
	title, err := scraper.Resolve(ctx, page, e.cfg.Detail.Title, e.cfg.FindTimeout)
	if err != nil {
		return nil, fail(FieldTitle, err)
	}
	record.Title = textnorm.CollapseSpace(title.Value)

	// Extract price (required)
	priceText, err := scraper.Resolve(ctx, page, e.cfg.Detail.Price, e.cfg.FindTimeout)
	if err != nil {
		return nil, fail(FieldPrice, err)
	}
	record.Price, err = ParsePrice(priceText.Value, e.cfg.Detail.PriceStrip)
	if err != nil {
		return nil, fail(FieldPrice, err)
	}

	// Extract end date (required)
	endText, err := scraper.Resolve(ctx, page, e.cfg.Detail.EndDate, e.cfg.FindTimeout)
	if err != nil {
		return nil, fail(FieldEndDate, err)
	}
	record.EndDate, err = e.dates.Resolve(endText.Value)
	if err != nil {
		return nil, fail(FieldEndDate, err)
	}

	// Carat and price per carat (required)
	res, err := e.carat.Calculate(record.Title, record.Price)
	if err != nil {
		return nil, fail(FieldCarat, err)
	}
	if !res.Carat.GreaterThan(e.cfg.MinCarat) {
		return nil, fail(FieldCarat, fmt.Errorf("%w: %s <= %s", ErrBelowMinCarat, res.Carat, e.cfg.MinCarat))
	}
	record.Carat = res.Carat
	record.PricePerCarat = res.PricePerCarat

	// Extract image (optional)
	record.ImageURL, record.ImageQuality = e.image(ctx, page)

	e.log.Debug("extracted listing",
		"url", detailURL,
		"title", record.Title,
		"price", record.Price,
		"carat", record.Carat.String(),
		"price_per_carat", record.PricePerCarat,
		"end_date", record.EndDate.Format(time.DateOnly),
		"image_quality", string(record.ImageQuality),
	)
	return record, nil
}

// image returns the best image URL, resolved against the page URL. A
// missing image is not an error.
func (e *Extractor) image(ctx context.Context, page browser.Page) (string, auction.ImageQuality) {
	if len(e.cfg.Detail.Image) == 0 {
		return "", auction.ImageNone
	}

	m, err := scraper.Resolve(ctx, page, e.cfg.Detail.Image, e.cfg.FindTimeout)
	if err != nil {
		e.log.Warn("no image found", "url", page.URL())
		return "", auction.ImageNone
	}

	src := absoluteURL(page.URL(), m.Value)
	if m.Candidate.Fallback {
		e.log.Warn("using fallback image", "candidate", m.Candidate.Name(), "image", src)
		return src, auction.ImageFallback
	}
	e.log.Debug("found preferred image", "candidate", m.Candidate.Name(), "image", src)
	return src, auction.ImagePreferred
}

// ParsePrice normalizes text, removes each strip token and parses the rest
// as a whole number of yen.
func ParsePrice(text string, strip []string) (int64, error) {
	s := textnorm.Normalize(text)
	for _, tok := range strip {
		s = strings.ReplaceAll(s, textnorm.Normalize(tok), "")
	}
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return 0, fmt.Errorf("empty price text %q", text)
	}

	price, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse price %q: %w", text, err)
	}
	if price < 0 {
		return 0, fmt.Errorf("negative price %q", text)
	}
	return price, nil
}

// absoluteURL resolves ref against base, returning ref unchanged when
// either does not parse.
func absoluteURL(base, ref string) string {
	r, err := url.Parse(ref)
	if err != nil || r.IsAbs() {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil || b.Host == "" {
		return ref
	}
	return b.ResolveReference(r).String()
}
