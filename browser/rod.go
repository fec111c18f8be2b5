package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pevans/auctionscan/logger"
)

// RodConfig configures the Chromium instance started by LaunchRod.
type RodConfig struct {
	Headless     bool   `yaml:"headless"`
	UserAgent    string `yaml:"user_agent"`
	WindowWidth  int    `yaml:"window_width"`
	WindowHeight int    `yaml:"window_height"`
	// BinPath overrides the browser binary; empty lets rod find or download
	// one.
	BinPath   string `yaml:"bin_path"`
	NoSandbox bool   `yaml:"no_sandbox"`
}

// RodBrowser owns a launched Chromium process.
type RodBrowser struct {
	cfg      RodConfig
	launcher *launcher.Launcher
	browser  *rod.Browser
	log      logger.Interface
}

// LaunchRod starts Chromium and connects to it.
func LaunchRod(ctx context.Context, cfg RodConfig, log logger.Interface) (*RodBrowser, error) {
	if log == nil {
		log = logger.NewNoOp()
	}
	log = log.WithComponent("rod")

	l := launcher.New().
		Context(ctx).
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox).
		Leakless(false).
		Set("disable-blink-features", "AutomationControlled")
	if cfg.BinPath != "" {
		l = l.Bin(cfg.BinPath)
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		l = l.Set("window-size", fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight))
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	log.Info("browser launched", "headless", cfg.Headless, "bin", cfg.BinPath)
	return &RodBrowser{cfg: cfg, launcher: l, browser: b, log: log}, nil
}

// NewPage opens a blank tab.
func (b *RodBrowser) NewPage(ctx context.Context) (*RodPage, error) {
	page, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	// Detach the page from ctx; each call supplies its own.
	page = page.Context(context.Background())

	if b.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.cfg.UserAgent}); err != nil {
			return nil, fmt.Errorf("failed to set user agent: %w", err)
		}
	}
	if b.cfg.WindowWidth > 0 && b.cfg.WindowHeight > 0 {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             b.cfg.WindowWidth,
			Height:            b.cfg.WindowHeight,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set viewport: %w", err)
		}
	}

	return &RodPage{page: page, log: b.log}, nil
}

// Close shuts the browser down and removes its profile directory.
func (b *RodBrowser) Close() error {
	err := b.browser.Close()
	b.launcher.Cleanup()
	if err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

// RodPage is a Page backed by a Chromium tab.
type RodPage struct {
	page *rod.Page
	log  logger.Interface
}

func (p *RodPage) Navigate(ctx context.Context, url string) error {
	if err := p.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// WaitReady waits for the load event and then for document.readyState to
// report "complete".
func (p *RodPage) WaitReady(ctx context.Context, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fail := func(err error) error {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return &PageLoadTimeoutError{URL: p.URL(), Timeout: timeout, Err: err}
		}
		return fmt.Errorf("failed waiting for page: %w", err)
	}

	if err := p.page.Context(waitCtx).WaitLoad(); err != nil {
		return fail(err)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		state, err := p.Eval(waitCtx, "document.readyState")
		if err == nil && state == "complete" {
			return nil
		}
		select {
		case <-waitCtx.Done():
			return fail(waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (p *RodPage) Find(ctx context.Context, sel Selector, timeout time.Duration) (Element, error) {
	findCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page := p.page.Context(findCtx)
	var (
		el  *rod.Element
		err error
	)
	switch sel.By {
	case ByCSS, "":
		el, err = page.Element(sel.Value)
	case ByXPath:
		el, err = page.ElementX(sel.Value)
	default:
		return nil, fmt.Errorf("unknown selector strategy %q", sel.By)
	}
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", sel, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find %s: %w", sel, err)
	}

	// The element keeps no deadline of its own.
	return &rodElement{el: el.Context(context.Background())}, nil
}

func (p *RodPage) FindAll(ctx context.Context, sel Selector, timeout time.Duration) ([]Element, error) {
	if _, err := p.Find(ctx, sel, timeout); err != nil {
		if errors.Is(err, ErrNotFound) {
			return []Element{}, nil
		}
		return nil, err
	}

	page := p.page.Context(ctx)
	var (
		els rod.Elements
		err error
	)
	if sel.By == ByXPath {
		els, err = page.ElementsX(sel.Value)
	} else {
		els, err = page.Elements(sel.Value)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", sel, err)
	}

	elems := make([]Element, 0, len(els))
	for _, el := range els {
		elems = append(elems, &rodElement{el: el.Context(context.Background())})
	}
	return elems, nil
}

func (p *RodPage) Eval(ctx context.Context, js string) (string, error) {
	obj, err := p.page.Context(ctx).Eval(js)
	if err != nil {
		return "", fmt.Errorf("failed to evaluate script: %w", err)
	}
	return obj.Value.String(), nil
}

func (p *RodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		p.log.Debug("failed to read page info", "error", err)
		return ""
	}
	return info.URL
}

func (p *RodPage) Close() error {
	return p.page.Close()
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Text() (string, error) {
	return e.el.Text()
}

func (e *rodElement) Attribute(name string) (string, bool, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *rodElement) FindAll(ctx context.Context, sel Selector) ([]Element, error) {
	el := e.el.Context(ctx)
	var (
		els rod.Elements
		err error
	)
	switch sel.By {
	case ByCSS, "":
		els, err = el.Elements(sel.Value)
	case ByXPath:
		els, err = el.ElementsX(sel.Value)
	default:
		return nil, fmt.Errorf("unknown selector strategy %q", sel.By)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", sel, err)
	}

	elems := make([]Element, 0, len(els))
	for _, child := range els {
		elems = append(elems, &rodElement{el: child.Context(context.Background())})
	}
	return elems, nil
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}
