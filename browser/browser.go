// Package browser abstracts the page driver the crawler talks to. Two
// drivers are provided: RodPage drives headless Chromium through go-rod,
// StaticPage fetches plain HTML over HTTP and queries it in memory.
package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// ErrNotFound is returned when no element matches within the timeout.
var ErrNotFound = errors.New("element not found")

// ErrPageLoadTimeout is matched (via errors.Is) by every
// *PageLoadTimeoutError.
var ErrPageLoadTimeout = errors.New("page load timeout")

// PageLoadTimeoutError is returned when a page does not become ready in
// time.
type PageLoadTimeoutError struct {
	URL     string
	Timeout time.Duration
	Err     error
}

func (e *PageLoadTimeoutError) Error() string {
	return fmt.Sprintf("page %s not ready after %s: %v", e.URL, e.Timeout, e.Err)
}

// Is reports whether target is ErrPageLoadTimeout.
func (e *PageLoadTimeoutError) Is(target error) bool {
	return target == ErrPageLoadTimeout
}

func (e *PageLoadTimeoutError) Unwrap() error {
	return e.Err
}

// By names a locator strategy.
type By string

const (
	ByCSS   By = "css"
	ByXPath By = "xpath"
)

// Selector locates elements on a page.
type Selector struct {
	By    By
	Value string
}

// CSS returns a CSS selector.
func CSS(v string) Selector { return Selector{By: ByCSS, Value: v} }

// XPath returns an XPath selector.
func XPath(v string) Selector { return Selector{By: ByXPath, Value: v} }

func (s Selector) String() string {
	return string(s.By) + ":" + s.Value
}

// Page is one browser tab.
type Page interface {
	// Navigate starts loading url.
	Navigate(ctx context.Context, url string) error
	// WaitReady blocks until the document has finished loading, returning a
	// *PageLoadTimeoutError when it does not within timeout.
	WaitReady(ctx context.Context, timeout time.Duration) error
	// Find returns the first element matching sel, waiting up to timeout
	// for it to appear. It returns ErrNotFound when none does.
	Find(ctx context.Context, sel Selector, timeout time.Duration) (Element, error)
	// FindAll returns every element matching sel once at least one is
	// present, or an empty slice when none appears within timeout.
	FindAll(ctx context.Context, sel Selector, timeout time.Duration) ([]Element, error)
	// Eval evaluates a JavaScript expression and returns its string form.
	Eval(ctx context.Context, js string) (string, error)
	// URL returns the address of the loaded document.
	URL() string
	Close() error
}

// Element is one node of a page.
type Element interface {
	Text() (string, error)
	// Attribute returns the attribute value and whether it is present.
	Attribute(name string) (string, bool, error)
	// FindAll returns the descendants matching sel without waiting.
	FindAll(ctx context.Context, sel Selector) ([]Element, error)
	Click(ctx context.Context) error
}

// throttledPage sleeps a random interval after every navigation.
type throttledPage struct {
	Page
	lo, hi time.Duration
}

// WithDelay wraps page so that every Navigate is followed by a random pause
// in [lo, hi]. A zero hi returns page unchanged.
func WithDelay(page Page, lo, hi time.Duration) Page {
	if hi <= 0 {
		return page
	}
	if lo > hi {
		lo = hi
	}
	return &throttledPage{Page: page, lo: lo, hi: hi}
}

func (p *throttledPage) Navigate(ctx context.Context, url string) error {
	if err := p.Page.Navigate(ctx, url); err != nil {
		return err
	}
	return Sleep(ctx, p.lo, p.hi)
}

// Sleep waits a random duration in [lo, hi] or until ctx is done.
func Sleep(ctx context.Context, lo, hi time.Duration) error {
	d := lo
	if hi > lo {
		d += rand.N(hi - lo)
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
