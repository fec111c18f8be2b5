package scraper

import (
	"fmt"
	"strings"

	"github.com/pevans/auctionscan/browser"
)

// Candidate is one way of locating a field. Candidates for the same field
// are tried in order until one yields a value.
type Candidate struct {
	Strategy string `yaml:"strategy"` // "css" or "xpath"
	Locator  string `yaml:"locator"`
	// Attrs lists attributes to read, in order. Empty reads the element
	// text. "srcset" yields the URL of its first entry.
	Attrs []string `yaml:"attrs,omitempty"`
	// Keywords, when set, keeps only values containing at least one of
	// them.
	Keywords []string `yaml:"keywords,omitempty"`
	Label    string   `yaml:"label,omitempty"`
	// Fallback marks a candidate that only finds lower-quality values.
	Fallback bool `yaml:"fallback,omitempty"`
}

// Selector converts the candidate to a browser selector.
func (c Candidate) Selector() browser.Selector {
	if c.Strategy == string(browser.ByXPath) {
		return browser.XPath(c.Locator)
	}
	return browser.CSS(c.Locator)
}

// Name returns the label, or the selector when there is none.
func (c Candidate) Name() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Selector().String()
}

// CSS returns a CSS candidate that reads element text.
func CSS(locator string) Candidate {
	return Candidate{Strategy: string(browser.ByCSS), Locator: locator}
}

// XPath returns an XPath candidate that reads element text.
func XPath(locator string) Candidate {
	return Candidate{Strategy: string(browser.ByXPath), Locator: locator}
}

// SiteConfig defines how to search and extract listings from the auction
// site.
type SiteConfig struct {
	SearchURL string       `yaml:"search_url"`
	PerPage   int          `yaml:"per_page"`
	List      ListConfig   `yaml:"list"`
	Detail    DetailConfig `yaml:"detail"`
}

// ListConfig defines how to read search result pages.
type ListConfig struct {
	// Item locates one listing's container. When it matches, EndDate and
	// DetailURL are read inside each container so a listing missing one
	// field cannot shift the others.
	Item []Candidate `yaml:"item,omitempty"`
	EndDate           []Candidate `yaml:"end_date"`
	DetailURL         []Candidate `yaml:"detail_url"`
	NoResultTexts     []string    `yaml:"no_result_texts"`
	NoResultSelectors []Candidate `yaml:"no_result_selectors"`
	// PreScanClick is clicked once on the first page when present.
	PreScanClick []Candidate `yaml:"pre_scan_click,omitempty"`
	// MaxPages caps the number of pages per scan. Default: 0 (no cap)
	MaxPages int `yaml:"max_pages"`
	// MaxEmptyPages ends a scan after that many consecutive empty pages.
	// Default: 3
	MaxEmptyPages int `yaml:"max_empty_pages"`
	// Lookahead is the number of extra pages read after the first page
	// older than the window. Default: 1
	Lookahead int `yaml:"lookahead"`
}

// DetailConfig defines how to extract fields from a listing's detail page.
type DetailConfig struct {
	Title   []Candidate `yaml:"title"`
	Price   []Candidate `yaml:"price"`
	Image   []Candidate `yaml:"image"`
	EndDate []Candidate `yaml:"end_date"`
	// PriceStrip lists tokens removed, in order, from the normalized price
	// text before parsing.
	PriceStrip []string `yaml:"price_strip"`
}

const (
	// DefaultSearchURL is the closed-auction search endpoint.
	DefaultSearchURL = "https://auctions.yahoo.co.jp/closedsearch/closedsearch"
	// DefaultPerPage is the largest page size the site accepts.
	DefaultPerPage = 100
	// DefaultMaxEmptyPages is the consecutive empty page limit.
	DefaultMaxEmptyPages = 3
	// DefaultLookahead is the number of pages read past the window.
	DefaultLookahead = 1
)

// DefaultSiteConfig returns the selectors for the auction site's current
// markup, with older layouts as fallbacks.
func DefaultSiteConfig() SiteConfig {
	pastAuctions := XPath(`//button[contains(., '落札相場') or contains(., '過去の落札')]`)
	pastAuctionsLink := XPath(`//a[contains(., '落札相場') or contains(., '過去の落札')]`)

	return SiteConfig{
		SearchURL: DefaultSearchURL,
		PerPage:   DefaultPerPage,
		List: ListConfig{
			Item: []Candidate{
				CSS("li.Product__item"),
			},
			EndDate: []Candidate{
				CSS(".Product__time"),
				CSS(".Product__closedTime"),
				CSS("li.Product__item .Product__time"),
			},
			DetailURL: []Candidate{
				withAttrs(CSS("a.Product__titleLink"), "href"),
				withAttrs(CSS("a.Product__title"), "href"),
				withAttrs(CSS("li.Product__item a[href*='auction']"), "href"),
			},
			NoResultTexts: []string{
				"条件に一致する商品は見つかりませんでした",
				"該当する商品はありません",
				"該当するオークションはありません",
			},
			NoResultSelectors: []Candidate{
				CSS(".Module__noResult"),
				CSS(".NoResult"),
				CSS("#NoResult"),
				CSS(".Search__noItems"),
			},
			PreScanClick: []Candidate{
				CSS(".Auction__pastAuctionBtn"),
				pastAuctions,
				pastAuctionsLink,
			},
			MaxEmptyPages: DefaultMaxEmptyPages,
			Lookahead:     DefaultLookahead,
		},
		Detail: DetailConfig{
			Title: []Candidate{
				CSS("h1.gv-u-fontSize16--_aSkEz8L_OSLLKFaubKB"),
				CSS("h1"),
			},
			Price: []Candidate{
				CSS("span.sc-1f0603b0-2.kxUAXU"),
				CSS("span.Price__value"),
			},
			Image: []Candidate{
				{
					Strategy: "xpath",
					Locator:  imageXPath("i-img1200x900"),
					Attrs:    imageAttrs,
					Keywords: []string{"i-img1200x900"},
					Label:    "1200x900",
				},
				{
					Strategy: "xpath",
					Locator:  imageXPath("auc-pctr.c.yimg.jp", "/i/"),
					Attrs:    imageAttrs,
					Keywords: []string{"auc-pctr.c.yimg.jp"},
					Label:    "auc-pctr CDN",
				},
				{
					Strategy: "xpath",
					Locator:  imageXPath("auctions.c.yimg.jp"),
					Attrs:    imageAttrs,
					Keywords: []string{"auctions.c.yimg.jp"},
					Label:    "fallback small",
					Fallback: true,
				},
			},
			EndDate: []Candidate{
				{
					Strategy: "css",
					Locator:  "span.gv-u-fontSize12--s5WnvVgDScOXPWU7Mgqd.gv-u-colorTextGray--OzMlIYwM3n8ZKUl0z2ES",
					Keywords: []string{"終了", "時"},
				},
			},
			PriceStrip: []string{"(税込)", "(税抜)", "税込", "税抜", ",", "円", "¥"},
		},
	}
}

var imageAttrs = []string{"src", "data-src", "srcset"}

// imageXPath matches an img whose src, data-src or srcset contains every
// one of needles, so lazy-loaded images are found by their real URL.
func imageXPath(needles ...string) string {
	alts := make([]string, 0, len(imageAttrs))
	for _, attr := range imageAttrs {
		conds := make([]string, 0, len(needles))
		for _, n := range needles {
			conds = append(conds, fmt.Sprintf("contains(@%s, %q)", attr, n))
		}
		alts = append(alts, "("+strings.Join(conds, " and ")+")")
	}
	return "//img[" + strings.Join(alts, " or ") + "]"
}

func withAttrs(c Candidate, attrs ...string) Candidate {
	c.Attrs = attrs
	return c
}

// Validate reports configuration that would make a scan or extraction
// impossible.
func (c SiteConfig) Validate() error {
	if c.SearchURL == "" {
		return fmt.Errorf("search_url is required")
	}
	if c.PerPage < 1 || c.PerPage > 100 {
		return fmt.Errorf("per_page must be between 1 and 100, got %d", c.PerPage)
	}
	if c.List.Lookahead < 0 {
		return fmt.Errorf("list.lookahead must not be negative, got %d", c.List.Lookahead)
	}
	if c.List.MaxEmptyPages < 1 {
		return fmt.Errorf("list.max_empty_pages must be at least 1, got %d", c.List.MaxEmptyPages)
	}

	groups := map[string][]Candidate{
		"list.end_date":   c.List.EndDate,
		"list.detail_url": c.List.DetailURL,
		"detail.title":    c.Detail.Title,
		"detail.price":    c.Detail.Price,
		"detail.end_date": c.Detail.EndDate,
	}
	for name, cands := range groups {
		if len(cands) == 0 {
			return fmt.Errorf("%s needs at least one selector", name)
		}
		for _, cand := range cands {
			if err := cand.validate(); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
	}
	for _, cand := range c.Detail.Image {
		if err := cand.validate(); err != nil {
			return fmt.Errorf("detail.image: %w", err)
		}
	}
	return nil
}

func (c Candidate) validate() error {
	if c.Locator == "" {
		return fmt.Errorf("empty locator")
	}
	if c.Strategy != "css" && c.Strategy != "xpath" {
		return fmt.Errorf("unknown strategy %q for %q", c.Strategy, c.Locator)
	}
	return nil
}
