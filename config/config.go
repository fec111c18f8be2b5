// Package config holds the crawler configuration: a YAML file merged over
// built-in defaults, with selected environment variables on top.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pevans/auctionscan/browser"
	"github.com/pevans/auctionscan/carat"
	"github.com/pevans/auctionscan/conditions"
	"github.com/pevans/auctionscan/dates"
	"github.com/pevans/auctionscan/logger"
	"github.com/pevans/auctionscan/scraper"
	"github.com/pevans/auctionscan/writer"
	"github.com/shopspring/decimal"
)

// Browser drivers.
const (
	DriverRod    = "rod"
	DriverStatic = "static"
)

// Spreadsheet backends.
const (
	BackendGoogle = "google"
	BackendSQLite = "sqlite"
)

// Config is the complete crawler configuration.
type Config struct {
	Logger     logger.Config      `yaml:"logger"`
	Browser    BrowserConfig      `yaml:"browser"`
	Site       scraper.SiteConfig `yaml:"site"`
	Dates      DatesConfig        `yaml:"dates"`
	Carat      CaratConfig        `yaml:"carat"`
	Sheets     SheetsConfig       `yaml:"sheets"`
	Conditions conditions.Config  `yaml:"conditions"`
	Writer     writer.Config      `yaml:"writer"`
	Timing     TimingConfig       `yaml:"timing"`
}

// BrowserConfig selects and configures the page driver.
type BrowserConfig struct {
	// Driver is "rod" (headless Chromium) or "static" (plain HTTP).
	Driver string            `yaml:"driver"`
	Rod    browser.RodConfig `yaml:"rod"`
}

// DatesConfig configures end-date parsing.
type DatesConfig struct {
	YearPolicy            dates.YearPolicy `yaml:"year_policy"`
	RolloverThresholdDays int              `yaml:"rollover_threshold_days"`
	TimeZone              string           `yaml:"time_zone"`
	Rules                 dates.Rules      `yaml:"rules"`
}

// CaratConfig configures the price-per-carat metric.
type CaratConfig struct {
	FeeRate   decimal.Decimal `yaml:"fee_rate"`
	TaxRate   decimal.Decimal `yaml:"tax_rate"`
	Selection carat.Selection `yaml:"selection"`
	// MinCarat drops listings whose carat is not strictly greater.
	MinCarat decimal.Decimal `yaml:"min_carat"`
}

// SheetsConfig selects the workbook holding conditions and records.
type SheetsConfig struct {
	Backend string `yaml:"backend"`
	// SpreadsheetID is the Google spreadsheet id, or the database path for
	// the sqlite backend.
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	CredentialsFile string `yaml:"credentials_file"`
	// CredentialsJSON is only ever set from the environment.
	CredentialsJSON []byte `yaml:"-"`
}

// TimingConfig bounds every wait.
type TimingConfig struct {
	PageTimeout  time.Duration `yaml:"page_timeout"`
	FindTimeout  time.Duration `yaml:"find_timeout"`
	ClickTimeout time.Duration `yaml:"click_timeout"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	// PostNavDelayMin and PostNavDelayMax bound the random pause after each
	// navigation. A zero max disables it.
	PostNavDelayMin time.Duration `yaml:"post_nav_delay_min"`
	PostNavDelayMax time.Duration `yaml:"post_nav_delay_max"`
}

// Default returns the configuration used when no file or environment
// overrides it.
func Default() *Config {
	dc := dates.DefaultConfig()
	cc := carat.DefaultConfig()
	return &Config{
		Logger: logger.DefaultConfig(),
		Browser: BrowserConfig{
			Driver: DriverRod,
			Rod: browser.RodConfig{
				Headless:     true,
				UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
				WindowWidth:  1280,
				WindowHeight: 900,
			},
		},
		Site: scraper.DefaultSiteConfig(),
		Dates: DatesConfig{
			YearPolicy:            dc.YearPolicy,
			RolloverThresholdDays: dc.RolloverThresholdDays,
			TimeZone:              "Asia/Tokyo",
			Rules:                 dc.Rules,
		},
		Carat: CaratConfig{
			FeeRate:   cc.FeeRate,
			TaxRate:   cc.TaxRate,
			Selection: cc.Selection,
			MinCarat:  decimal.Zero,
		},
		Sheets: SheetsConfig{
			Backend: BackendGoogle,
		},
		Conditions: conditions.Config{
			Tab:     conditions.DefaultTab,
			Columns: conditions.DefaultColumns(),
		},
		Writer: writer.DefaultConfig(),
		Timing: TimingConfig{
			PageTimeout:     10 * time.Second,
			FindTimeout:     10 * time.Second,
			ClickTimeout:    6 * time.Second,
			ProbeTimeout:    2 * time.Second,
			PostNavDelayMin: 600 * time.Millisecond,
			PostNavDelayMax: 1200 * time.Millisecond,
		},
	}
}

// DatesResolverConfig converts the date settings for dates.NewResolver.
func (c *Config) DatesResolverConfig() (dates.Config, error) {
	loc := dates.Tokyo()
	if c.Dates.TimeZone != "" && c.Dates.TimeZone != "Asia/Tokyo" {
		var err error
		loc, err = time.LoadLocation(c.Dates.TimeZone)
		if err != nil {
			return dates.Config{}, fmt.Errorf("invalid time zone %q: %w", c.Dates.TimeZone, err)
		}
	}
	return dates.Config{
		YearPolicy:            c.Dates.YearPolicy,
		RolloverThresholdDays: c.Dates.RolloverThresholdDays,
		Location:              loc,
		Rules:                 c.Dates.Rules,
	}, nil
}

// CaratCalculatorConfig converts the carat settings for carat.NewCalculator.
func (c *Config) CaratCalculatorConfig() carat.Config {
	return carat.Config{
		FeeRate:   c.Carat.FeeRate,
		TaxRate:   c.Carat.TaxRate,
		Selection: c.Carat.Selection,
	}
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Browser.Driver {
	case DriverRod, DriverStatic:
	default:
		add("browser.driver must be %q or %q, got %q", DriverRod, DriverStatic, c.Browser.Driver)
	}

	if err := c.Site.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("site: %w", err))
	}

	switch c.Dates.YearPolicy {
	case dates.YearCurrent, dates.YearSmartRollover:
	default:
		add("dates.year_policy must be %q or %q, got %q", dates.YearCurrent, dates.YearSmartRollover, c.Dates.YearPolicy)
	}
	if c.Dates.RolloverThresholdDays < 1 {
		add("dates.rollover_threshold_days must be positive, got %d", c.Dates.RolloverThresholdDays)
	}
	if _, err := c.DatesResolverConfig(); err != nil {
		errs = append(errs, fmt.Errorf("dates: %w", err))
	}

	one := decimal.NewFromInt(1)
	for name, rate := range map[string]decimal.Decimal{
		"fee_rate": c.Carat.FeeRate,
		"tax_rate": c.Carat.TaxRate,
	} {
		if rate.IsNegative() || rate.GreaterThanOrEqual(one) {
			add("carat.%s must be in [0, 1), got %s", name, rate)
		}
	}
	switch c.Carat.Selection {
	case carat.SelectMax, carat.SelectFirst:
	default:
		add("carat.selection must be %q or %q, got %q", carat.SelectMax, carat.SelectFirst, c.Carat.Selection)
	}
	if c.Carat.MinCarat.IsNegative() {
		add("carat.min_carat must not be negative, got %s", c.Carat.MinCarat)
	}

	switch c.Sheets.Backend {
	case BackendGoogle:
		if c.Sheets.CredentialsFile == "" && len(c.Sheets.CredentialsJSON) == 0 {
			add("sheets: google backend needs credentials_file or GOOGLE_CREDENTIALS_JSON")
		}
	case BackendSQLite:
	default:
		add("sheets.backend must be %q or %q, got %q", BackendGoogle, BackendSQLite, c.Sheets.Backend)
	}
	if c.Sheets.SpreadsheetID == "" {
		add("sheets.spreadsheet_id is required")
	}

	if c.Writer.HeaderRows < 0 {
		add("writer.header_rows must not be negative, got %d", c.Writer.HeaderRows)
	}
	if c.Writer.AnchorColumn < 1 {
		add("writer.anchor_column must be 1 or greater, got %d", c.Writer.AnchorColumn)
	}

	for name, d := range map[string]time.Duration{
		"page_timeout":  c.Timing.PageTimeout,
		"find_timeout":  c.Timing.FindTimeout,
		"click_timeout": c.Timing.ClickTimeout,
		"probe_timeout": c.Timing.ProbeTimeout,
	} {
		if d <= 0 {
			add("timing.%s must be positive, got %s", name, d)
		}
	}
	if c.Timing.PostNavDelayMin < 0 || c.Timing.PostNavDelayMax < c.Timing.PostNavDelayMin {
		add("timing.post_nav_delay must satisfy 0 <= min <= max, got %s..%s",
			c.Timing.PostNavDelayMin, c.Timing.PostNavDelayMax)
	}

	return errors.Join(errs...)
}
