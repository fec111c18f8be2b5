package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingHTML = `<html><head><title>検索結果</title></head><body>
<ul>
  <li class="Product__item">
    <a class="Product__titleLink" href="https://auctions.example/jp/auction/a1">ダイヤ 0.5ct</a>
    <span class="Product__time">07/21 22:07</span>
  </li>
  <li class="Product__item">
    <a class="Product__titleLink" href="/jp/auction/a2" data-src="lazy.jpg">ダイヤ 0.3ct</a>
    <span class="Product__time">07/20 21:00</span>
  </li>
</ul>
<img src="https://auctions.c.yimg.jp/i-img1200x900/a.jpg">
</body></html>`

// TestStaticPage_CSS verifies CSS lookups over loaded HTML
func TestStaticPage_CSS(t *testing.T) {
	p := NewStaticPage(nil, nil)
	require.NoError(t, p.LoadHTML("https://auctions.example/search", listingHTML))
	ctx := context.Background()

	els, err := p.FindAll(ctx, CSS("a.Product__titleLink"), time.Second)
	require.NoError(t, err)
	require.Len(t, els, 2)

	href, ok, err := els[0].Attribute("href")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://auctions.example/jp/auction/a1", href)

	text, err := els[1].Text()
	require.NoError(t, err)
	assert.Equal(t, "ダイヤ 0.3ct", text)

	_, ok, err = els[0].Attribute("data-src")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestStaticPage_XPath verifies XPath lookups over the same document
func TestStaticPage_XPath(t *testing.T) {
	p := NewStaticPage(nil, nil)
	require.NoError(t, p.LoadHTML("https://auctions.example/search", listingHTML))

	el, err := p.Find(context.Background(), XPath(`//img[contains(@src, "i-img1200x900")]`), time.Second)
	require.NoError(t, err)

	src, ok, err := el.Attribute("src")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, src, "i-img1200x900")

	_, err = p.Find(context.Background(), XPath(`//img[`), time.Second)
	assert.Error(t, err)
}

// TestStaticElement_FindAll verifies lookups stay inside the element
func TestStaticElement_FindAll(t *testing.T) {
	p := NewStaticPage(nil, nil)
	require.NoError(t, p.LoadHTML("https://auctions.example/search", listingHTML))
	ctx := context.Background()

	items, err := p.FindAll(ctx, CSS("li.Product__item"), time.Second)
	require.NoError(t, err)
	require.Len(t, items, 2)

	spans, err := items[1].FindAll(ctx, CSS(".Product__time"))
	require.NoError(t, err)
	require.Len(t, spans, 1)
	text, err := spans[0].Text()
	require.NoError(t, err)
	assert.Equal(t, "07/20 21:00", text)

	links, err := items[0].FindAll(ctx, XPath(".//a"))
	require.NoError(t, err)
	require.Len(t, links, 1)
	href, _, err := links[0].Attribute("href")
	require.NoError(t, err)
	assert.Equal(t, "https://auctions.example/jp/auction/a1", href)

	imgs, err := items[0].FindAll(ctx, CSS("img"))
	require.NoError(t, err)
	assert.Empty(t, imgs)
}

// TestStaticPage_NotFound verifies Find and FindAll on missing elements
func TestStaticPage_NotFound(t *testing.T) {
	p := NewStaticPage(nil, nil)
	require.NoError(t, p.LoadHTML("https://auctions.example/search", listingHTML))
	ctx := context.Background()

	_, err := p.Find(ctx, CSS(".Module__noResult"), time.Second)
	assert.ErrorIs(t, err, ErrNotFound)

	els, err := p.FindAll(ctx, CSS(".Module__noResult"), time.Second)
	require.NoError(t, err)
	assert.Empty(t, els)
}

// TestStaticPage_NavigateAndWait verifies fetching through an HTTP server
func TestStaticPage_NavigateAndWait(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(listingHTML))
	}))
	defer server.Close()

	p := NewStaticPage(NewRestyClient("auctionscan-test", 5*time.Second), nil)
	ctx := context.Background()

	require.NoError(t, p.Navigate(ctx, server.URL+"/search?p=x"))
	state, err := p.Eval(ctx, "document.readyState")
	require.NoError(t, err)
	assert.Equal(t, "loading", state)

	require.NoError(t, p.WaitReady(ctx, 5*time.Second))
	assert.Equal(t, server.URL+"/search?p=x", p.URL())

	title, err := p.Eval(ctx, "document.title")
	require.NoError(t, err)
	assert.Equal(t, "検索結果", title)

	require.NoError(t, p.Navigate(ctx, server.URL+"/missing"))
	assert.Error(t, p.WaitReady(ctx, 5*time.Second))
}

// TestStaticPage_LoadTimeout verifies slow servers produce a
// PageLoadTimeoutError
func TestStaticPage_LoadTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	p := NewStaticPage(nil, nil)
	ctx := context.Background()
	require.NoError(t, p.Navigate(ctx, server.URL))

	err := p.WaitReady(ctx, 50*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPageLoadTimeout)

	var loadErr *PageLoadTimeoutError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, server.URL, loadErr.URL)
}

// TestStaticPage_NavigateRejectsBadScheme verifies only HTTP URLs load
func TestStaticPage_NavigateRejectsBadScheme(t *testing.T) {
	p := NewStaticPage(nil, nil)
	assert.Error(t, p.Navigate(context.Background(), "file:///etc/passwd"))
}

// TestStaticPage_ClickFollowsLink verifies clicking an anchor schedules a
// relative link
func TestStaticPage_ClickFollowsLink(t *testing.T) {
	p := NewStaticPage(nil, nil)
	require.NoError(t, p.LoadHTML("https://auctions.example/search", listingHTML))
	ctx := context.Background()

	els, err := p.FindAll(ctx, CSS("a.Product__titleLink"), time.Second)
	require.NoError(t, err)
	require.NoError(t, els[1].Click(ctx))

	assert.Equal(t, "https://auctions.example/jp/auction/a2", p.pending)
}

// TestWithDelay verifies the wrapper pauses after navigation and honors
// cancellation
func TestWithDelay(t *testing.T) {
	p := NewStaticPage(nil, nil)
	assert.Same(t, Page(p), WithDelay(p, 0, 0))

	slow := WithDelay(p, 20*time.Millisecond, 30*time.Millisecond)
	start := time.Now()
	require.NoError(t, slow.Navigate(context.Background(), "https://auctions.example/"))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	long := WithDelay(p, time.Hour, time.Hour)
	assert.ErrorIs(t, long.Navigate(ctx, "https://auctions.example/"), context.Canceled)
}
