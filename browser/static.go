package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/go-resty/resty/v2"
	"github.com/pevans/auctionscan/logger"
	"golang.org/x/net/html"
)

// ErrUnsupportedScript is returned by StaticPage.Eval for expressions it
// cannot answer without a JavaScript engine.
var ErrUnsupportedScript = errors.New("script not supported by static page")

// StaticPage is a Page backed by plain HTTP fetches. Navigate records the
// target and WaitReady performs the fetch, so the load is bounded by the
// ready timeout just as it is in a real browser. CSS selectors are served by
// goquery and XPath selectors by htmlquery, both over the same parsed tree.
type StaticPage struct {
	client  *resty.Client
	log     logger.Interface
	pending string
	url     string
	root    *html.Node
	doc     *goquery.Document
}

// NewStaticPage creates a static page using client, or a default resty
// client when client is nil.
func NewStaticPage(client *resty.Client, log logger.Interface) *StaticPage {
	if client == nil {
		client = resty.New()
	}
	if log == nil {
		log = logger.NewNoOp()
	}
	return &StaticPage{client: client, log: log.WithComponent("static_page")}
}

// NewRestyClient returns a resty client configured with a user agent and a
// request timeout.
func NewRestyClient(userAgent string, timeout time.Duration) *resty.Client {
	c := resty.New().SetTimeout(timeout)
	if userAgent != "" {
		c.SetHeader("User-Agent", userAgent)
	}
	return c
}

// LoadHTML replaces the current document with body as if it had been
// served from pageURL.
func (p *StaticPage) LoadHTML(pageURL, body string) error {
	return p.load(pageURL, []byte(body))
}

func (p *StaticPage) load(pageURL string, body []byte) error {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to parse HTML from %s: %w", pageURL, err)
	}
	p.url = pageURL
	p.pending = ""
	p.root = root
	p.doc = goquery.NewDocumentFromNode(root)
	return nil
}

// Navigate validates url and schedules it for loading by WaitReady.
func (p *StaticPage) Navigate(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	p.pending = u.String()
	return nil
}

// WaitReady fetches the pending URL.
func (p *StaticPage) WaitReady(ctx context.Context, timeout time.Duration) error {
	if p.pending == "" {
		if p.root == nil {
			return errors.New("no page loaded")
		}
		return nil
	}

	target := p.pending
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := p.client.R().SetContext(fetchCtx).Get(target)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return &PageLoadTimeoutError{URL: target, Timeout: timeout, Err: err}
		}
		return fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	if resp.IsError() {
		return fmt.Errorf("failed to fetch %s: status %d", target, resp.StatusCode())
	}

	final := target
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		final = resp.RawResponse.Request.URL.String()
	}

	p.log.Debug("fetched page", "url", final, "status", resp.StatusCode(), "bytes", len(resp.Body()))
	return p.load(final, resp.Body())
}

// Find returns the first match. Static documents never change, so the
// timeout is not waited on.
func (p *StaticPage) Find(ctx context.Context, sel Selector, timeout time.Duration) (Element, error) {
	nodes, err := p.query(sel)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%s: %w", sel, ErrNotFound)
	}
	return &staticElement{page: p, node: nodes[0]}, nil
}

// FindAll returns every match.
func (p *StaticPage) FindAll(ctx context.Context, sel Selector, timeout time.Duration) ([]Element, error) {
	nodes, err := p.query(sel)
	if err != nil {
		return nil, err
	}
	elems := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		elems = append(elems, &staticElement{page: p, node: n})
	}
	return elems, nil
}

func (p *StaticPage) query(sel Selector) ([]*html.Node, error) {
	if p.root == nil {
		return nil, errors.New("no page loaded")
	}
	return queryNodes(p.doc.Selection, p.root, sel)
}

func queryNodes(scope *goquery.Selection, root *html.Node, sel Selector) ([]*html.Node, error) {
	switch sel.By {
	case ByCSS, "":
		return scope.Find(sel.Value).Nodes, nil
	case ByXPath:
		nodes, err := htmlquery.QueryAll(root, sel.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid XPath %q: %w", sel.Value, err)
		}
		return nodes, nil
	default:
		return nil, fmt.Errorf("unknown selector strategy %q", sel.By)
	}
}

// Eval answers the handful of document properties the crawler reads.
func (p *StaticPage) Eval(ctx context.Context, js string) (string, error) {
	switch strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(js), ";")) {
	case "document.readyState":
		if p.root == nil || p.pending != "" {
			return "loading", nil
		}
		return "complete", nil
	case "location.href", "window.location.href", "document.URL":
		return p.url, nil
	case "document.title":
		if p.doc == nil {
			return "", nil
		}
		return strings.TrimSpace(p.doc.Find("title").First().Text()), nil
	case "document.body.innerText":
		if p.doc == nil {
			return "", nil
		}
		return p.doc.Find("body").Text(), nil
	}
	return "", fmt.Errorf("%q: %w", js, ErrUnsupportedScript)
}

// URL returns the address of the loaded document.
func (p *StaticPage) URL() string {
	return p.url
}

// Close releases the parsed document.
func (p *StaticPage) Close() error {
	p.root = nil
	p.doc = nil
	return nil
}

type staticElement struct {
	page *StaticPage
	node *html.Node
}

func (e *staticElement) Text() (string, error) {
	return htmlquery.InnerText(e.node), nil
}

func (e *staticElement) Attribute(name string) (string, bool, error) {
	for _, a := range e.node.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			return a.Val, true, nil
		}
	}
	return "", false, nil
}

// FindAll matches below the element. XPath locators should be relative
// (".//span") to stay inside it.
func (e *staticElement) FindAll(ctx context.Context, sel Selector) ([]Element, error) {
	nodes, err := queryNodes(goquery.NewDocumentFromNode(e.node).Selection, e.node, sel)
	if err != nil {
		return nil, err
	}
	elems := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		elems = append(elems, &staticElement{page: e.page, node: n})
	}
	return elems, nil
}

// Click follows the element's link when it has one and does nothing
// otherwise.
func (e *staticElement) Click(ctx context.Context) error {
	href, ok, _ := e.Attribute("href")
	if !ok || href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return nil
	}

	base, err := url.Parse(e.page.url)
	if err != nil {
		return fmt.Errorf("failed to parse page URL %q: %w", e.page.url, err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return fmt.Errorf("failed to parse link %q: %w", href, err)
	}
	return e.page.Navigate(ctx, base.ResolveReference(ref).String())
}
