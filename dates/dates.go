// Package dates turns the assorted end-date spellings used by the auction
// site (and by the condition sheet) into calendar dates.
//
// The site omits the year on both listing and detail pages, so the resolver
// carries a year-inference policy. Calendar dates are represented as
// time.Time values at midnight UTC; see Date.
package dates

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pevans/auctionscan/logger"
	"github.com/pevans/auctionscan/textnorm"
)

// ErrUnparseableDate is matched (via errors.Is) by every
// *UnparseableDateError.
var ErrUnparseableDate = errors.New("unparseable date")

// UnparseableDateError is returned when no enabled rule matches a value.
type UnparseableDateError struct {
	Value string
	Err   error
}

func (e *UnparseableDateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unparseable date %q: %v", e.Value, e.Err)
	}
	return fmt.Sprintf("unparseable date %q", e.Value)
}

// Is reports whether target is ErrUnparseableDate.
func (e *UnparseableDateError) Is(target error) bool {
	return target == ErrUnparseableDate
}

func (e *UnparseableDateError) Unwrap() error {
	return e.Err
}

// YearPolicy decides which year a month/day without a year belongs to.
type YearPolicy string

const (
	// YearCurrent always assumes the current calendar year.
	YearCurrent YearPolicy = "current"
	// YearSmartRollover assumes the current year unless that puts the date
	// more than the rollover threshold in the past, in which case it
	// assumes next year.
	YearSmartRollover YearPolicy = "smart_rollover"
)

// Rules toggles the individual parsing rules. They are tried in field
// order.
type Rules struct {
	Native   bool `yaml:"native"`    // time.Time values
	Strict   bool `yaml:"strict"`    // YYYY/MM/DD and YYYY-MM-DD
	LongForm bool `yaml:"long_form"` // M月D日 ... H時M分
	Short    bool `yaml:"short"`     // M/D H:MM
}

// AllRules enables every rule.
func AllRules() Rules {
	return Rules{Native: true, Strict: true, LongForm: true, Short: true}
}

// Config configures a Resolver.
type Config struct {
	YearPolicy            YearPolicy
	RolloverThresholdDays int
	// Location is the time zone "now" is evaluated in when inferring years.
	Location *time.Location
	Rules    Rules
}

// DefaultRolloverThresholdDays is the smart-rollover threshold used when
// the configuration leaves it unset.
const DefaultRolloverThresholdDays = 180

// DefaultConfig returns the resolver configuration: current-year policy,
// all rules, Japan time.
func DefaultConfig() Config {
	return Config{
		YearPolicy:            YearCurrent,
		RolloverThresholdDays: DefaultRolloverThresholdDays,
		Location:              Tokyo(),
		Rules:                 AllRules(),
	}
}

// Tokyo returns the Asia/Tokyo location, or a fixed +09:00 zone when the
// tz database is unavailable.
func Tokyo() *time.Location {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		return time.FixedZone("JST", 9*60*60)
	}
	return loc
}

var (
	reYMDSlash = regexp.MustCompile(`^(\d{4})/(\d{1,2})/(\d{1,2})$`)
	reYMDDash  = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	reLongForm = regexp.MustCompile(`(\d{1,2})月(\d{1,2})日.*?(\d{1,2})時(\d{1,2})分`)
	reShort    = regexp.MustCompile(`(\d{1,2})/(\d{1,2})\s+(\d{1,2}):(\d{1,2})`)
)

// Resolver parses textual dates into calendar dates.
type Resolver struct {
	cfg Config
	now func() time.Time
	log logger.Interface
}

// NewResolver creates a resolver. A nil logger disables logging.
func NewResolver(cfg Config, log logger.Interface) *Resolver {
	if cfg.Location == nil {
		cfg.Location = Tokyo()
	}
	if cfg.YearPolicy == "" {
		cfg.YearPolicy = YearCurrent
	}
	if cfg.RolloverThresholdDays <= 0 {
		cfg.RolloverThresholdDays = DefaultRolloverThresholdDays
	}
	if log == nil {
		log = logger.NewNoOp()
	}
	return &Resolver{cfg: cfg, now: time.Now, log: log.WithComponent("dates")}
}

// WithClock replaces the resolver's clock. Intended for tests and for
// replaying a run "as of" a given instant.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Now returns the resolver's current instant in its configured location.
func (r *Resolver) Now() time.Time {
	return r.now().In(r.cfg.Location)
}

// Date returns midnight UTC of the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf returns the calendar day of t (in t's own location) as a Date.
func DateOf(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// Resolve converts value (a time.Time, *time.Time or string) to a calendar
// date.
func (r *Resolver) Resolve(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		if r.cfg.Rules.Native {
			d := DateOf(v)
			r.logSuccess("native", v.String(), d)
			return d, nil
		}
		return r.ResolveString(v.Format(time.DateOnly))
	case *time.Time:
		if v == nil {
			return time.Time{}, &UnparseableDateError{Value: "<nil>"}
		}
		return r.Resolve(*v)
	case string:
		return r.ResolveString(v)
	case nil:
		return time.Time{}, &UnparseableDateError{Value: "<nil>"}
	default:
		return r.ResolveString(fmt.Sprint(v))
	}
}

// ResolveString parses a textual date.
func (r *Resolver) ResolveString(raw string) (time.Time, error) {
	s := textnorm.Normalize(raw)
	var lastErr error

	if r.cfg.Rules.Strict {
		for _, re := range []*regexp.Regexp{reYMDSlash, reYMDDash} {
			m := re.FindStringSubmatch(s)
			if m == nil {
				continue
			}
			d, err := exactDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
			if err == nil {
				r.logSuccess("strict", raw, d)
				return d, nil
			}
			lastErr = err
			r.logFailure("strict", raw, err)
		}
	}

	if r.cfg.Rules.LongForm {
		if m := reLongForm.FindStringSubmatch(s); m != nil {
			d, err := r.inferYear(atoi(m[1]), atoi(m[2]), atoi(m[3]), atoi(m[4]))
			if err == nil {
				r.logSuccess("long_form", raw, d)
				return d, nil
			}
			lastErr = err
			r.logFailure("long_form", raw, err)
		}
	}

	if r.cfg.Rules.Short {
		if m := reShort.FindStringSubmatch(s); m != nil {
			d, err := r.inferYear(atoi(m[1]), atoi(m[2]), atoi(m[3]), atoi(m[4]))
			if err == nil {
				r.logSuccess("short", raw, d)
				return d, nil
			}
			lastErr = err
			r.logFailure("short", raw, err)
		}
	}

	return time.Time{}, &UnparseableDateError{Value: raw, Err: lastErr}
}

// inferYear applies the year policy to a month/day/hour/minute reading.
func (r *Resolver) inferYear(month, day, hour, minute int) (time.Time, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("time %02d:%02d out of range", hour, minute)
	}

	today := DateOf(r.Now())
	d, err := exactDate(today.Year(), month, day)
	if err != nil {
		// Feb 29 only exists in some years; let the rollover year decide.
		if r.cfg.YearPolicy != YearSmartRollover {
			return time.Time{}, err
		}
	}

	if r.cfg.YearPolicy == YearSmartRollover {
		limit := today.AddDate(0, 0, -r.cfg.RolloverThresholdDays)
		if err != nil || d.Before(limit) {
			return exactDate(today.Year()+1, month, day)
		}
	}

	return d, nil
}

// exactDate builds a date and rejects values time.Date would normalize
// (e.g. February 30th).
func exactDate(year, month, day int) (time.Time, error) {
	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("month %d out of range", month)
	}
	d := Date(year, time.Month(month), day)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return time.Time{}, fmt.Errorf("day %d out of range for %04d-%02d", day, year, month)
	}
	return d, nil
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return -1
	}
	return n
}

func (r *Resolver) logSuccess(rule, src string, d time.Time) {
	r.log.Debug("parsed end date", "rule", rule, "source", src, "date", d.Format(time.DateOnly))
}

func (r *Resolver) logFailure(rule, src string, err error) {
	r.log.Debug("end date rule failed", "rule", rule, "source", src, "error", err)
}
