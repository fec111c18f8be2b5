package auctionscan

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/auctionscan/auction"
	"github.com/pevans/auctionscan/browser"
	"github.com/pevans/auctionscan/carat"
	"github.com/pevans/auctionscan/dates"
	"github.com/pevans/auctionscan/extract"
	"github.com/pevans/auctionscan/listing"
	"github.com/pevans/auctionscan/logger"
	"github.com/pevans/auctionscan/scraper"
	"github.com/pevans/auctionscan/sheets"
	"github.com/pevans/auctionscan/writer"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPerPage = 3

type listingRow struct {
	id  string
	end string
}

var resultPages = [][]listingRow{
	{{"a1", "07/28 10:00"}, {"a2", "07/25 22:00"}, {"a3", "07/24 21:30"}},
	{{"b1", "07/22 20:00"}, {"b2", "07/21 19:00"}, {"b3", "07/19 10:00"}},
	{{"c1", "07/18 10:00"}},
}

const detailTemplate = `<html><body>
<h1>%s</h1>
<span class="Price__value">%s</span>
<span class="gv-u-fontSize12--s5WnvVgDScOXPWU7Mgqd gv-u-colorTextGray--OzMlIYwM3n8ZKUl0z2ES">%s</span>
%s
</body></html>`

var details = map[string]string{
	"a2": fmt.Sprintf(detailTemplate, "Pt900 ダイヤ 0.5ct リング", "10,000円", "7月25日（金）22時0分 終了",
		`<img src="https://auctions.c.yimg.jp/images.auctions.yahoo.co.jp/image/i-img1200x900-a2.jpg">`),
	"a3": fmt.Sprintf(detailTemplate, "ダイヤモンド ルース 1.2ct", "120,000円", "7月24日（木）21時30分 終了", ""),
	"b1": fmt.Sprintf(detailTemplate, "メレ 0.05ct", "3,000円", "7月22日（火）20時0分 終了", ""),
	"b2": fmt.Sprintf(detailTemplate, "Pt900 リング", "30,000円", "7月21日（月）19時0分 終了", ""),
}

// auctionSite serves search results by offset and detail pages by id.
type auctionSite struct {
	failSearch bool
}

func (s *auctionSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if id, ok := strings.CutPrefix(r.URL.Path, "/jp/auction/"); ok {
		body, found := details[id]
		if !found {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
		return
	}

	if s.failSearch {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
		return
	}

	b, _ := strconv.Atoi(r.URL.Query().Get("b"))
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	index := (b - 1) / n
	if index >= len(resultPages) {
		w.Write([]byte(`<html><body><p>該当する商品はありません</p></body></html>`))
		return
	}

	var sb strings.Builder
	sb.WriteString("<html><body><ul>")
	for _, row := range resultPages[index] {
		fmt.Fprintf(&sb, `<li class="Product__item"><a class="Product__titleLink" href="/jp/auction/%s">%s</a><span class="Product__time">%s</span></li>`,
			row.id, row.id, row.end)
	}
	sb.WriteString("</ul></body></html>")
	w.Write([]byte(sb.String()))
}

type fixture struct {
	crawler *Crawler
	book    *sheets.SQLiteBook
}

func newFixture(t *testing.T, site *auctionSite) *fixture {
	t.Helper()
	server := httptest.NewServer(site)
	t.Cleanup(server.Close)

	book, err := sheets.OpenSQLiteBook(context.Background(), filepath.Join(t.TempDir(), "book.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { book.Close() })

	now := time.Date(2025, time.July, 31, 12, 0, 0, 0, dates.Tokyo())
	resolver := dates.NewResolver(dates.DefaultConfig(), nil).WithClock(func() time.Time { return now })
	cfg := scraper.DefaultSiteConfig()

	scanner := listing.NewScanner(listing.Config{
		List:         cfg.List,
		PerPage:      testPerPage,
		PageTimeout:  5 * time.Second,
		FindTimeout:  50 * time.Millisecond,
		ClickTimeout: 50 * time.Millisecond,
		ProbeTimeout: 50 * time.Millisecond,
	}, resolver, nil)
	extractor := extract.New(extract.Config{
		Detail:      cfg.Detail,
		PageTimeout: 5 * time.Second,
		FindTimeout: 50 * time.Millisecond,
		MinCarat:    decimal.RequireFromString("0.1"),
	}, resolver, carat.NewCalculator(carat.DefaultConfig(), nil), nil)

	crawler := NewCrawler(CrawlConfig{
		SearchURL: server.URL + "/search",
		PerPage:   testPerPage,
		Lookahead: 1,
	}, browser.NewStaticPage(nil, nil), scanner, extractor, writer.New(book, writer.DefaultConfig(), nil), nil)

	return &fixture{crawler: crawler, book: book}
}

func condition(start, end int, dest string, keywords ...string) auction.SearchCondition {
	return auction.SearchCondition{
		StartDate:   dates.Date(2025, time.July, start),
		EndDate:     dates.Date(2025, time.July, end),
		Keywords:    keywords,
		Active:      true,
		Destination: dest,
		Row:         2,
	}
}

func (f *fixture) rows(t *testing.T, tab string) [][]string {
	t.Helper()
	tb, err := f.book.Tab(context.Background(), tab)
	require.NoError(t, err)
	rows, err := tb.ReadRows(context.Background())
	require.NoError(t, err)
	return rows
}

// TestRunCondition_Written verifies the full pipeline for one condition
func TestRunCondition_Written(t *testing.T) {
	f := newFixture(t, &auctionSite{})

	res := f.crawler.RunCondition(context.Background(), condition(20, 25, "Rings", "ダイヤ"))
	require.NoError(t, res.Err)
	assert.Equal(t, StatusWritten, res.Status)
	assert.NotEqual(t, uuid.Nil, res.RunID)

	assert.Equal(t, 4, res.Stats.CandidatesAdded)
	assert.Equal(t, 3, res.Stats.PagesVisited)
	assert.Equal(t, 1, res.Stats.BelowMinCarat)
	assert.Equal(t, 1, res.Stats.DetailsFailed)
	assert.Equal(t, 2, res.Stats.RecordsWritten)
	assert.Equal(t, listing.ReasonLookaheadExhausted, res.Scan.Reason)

	rows := f.rows(t, "Rings")
	require.Len(t, rows, 3)
	assert.Equal(t, []string{
		"2025/07/31 12:00",
		"2025-07-25",
		"Pt900 ダイヤ 0.5ct リング",
		"10000",
		"0.5",
		"16200",
		`=IMAGE("https://auctions.c.yimg.jp/images.auctions.yahoo.co.jp/image/i-img1200x900-a2.jpg", 4, 80, 80)`,
		rows[1][7],
	}, rows[1])
	assert.True(t, strings.HasSuffix(rows[1][7], "/jp/auction/a2"))
	assert.Equal(t, "81000", rows[2][5])
	assert.Equal(t, "", rows[2][6])
}

// TestRunCondition_Rerun verifies a second run writes nothing new
func TestRunCondition_Rerun(t *testing.T) {
	f := newFixture(t, &auctionSite{})
	cond := condition(20, 25, "", "ダイヤ")

	first := f.crawler.RunCondition(context.Background(), cond)
	require.Equal(t, StatusWritten, first.Status)

	second := f.crawler.RunCondition(context.Background(), cond)
	assert.Equal(t, StatusWritten, second.Status)
	assert.Equal(t, 0, second.Stats.RecordsWritten)
	assert.Equal(t, 2, second.Stats.RecordsSkipped)
	assert.NotEqual(t, first.RunID, second.RunID)

	assert.Len(t, f.rows(t, writer.DefaultConfig().DefaultDestination), 3)
}

// TestRunCondition_NoCandidates verifies a window with no listings
func TestRunCondition_NoCandidates(t *testing.T) {
	f := newFixture(t, &auctionSite{})
	cond := condition(1, 5, "", "ダイヤ")

	res := f.crawler.RunCondition(context.Background(), cond)
	assert.NoError(t, res.Err)
	assert.Equal(t, StatusNoCandidates, res.Status)
	assert.Equal(t, 0, res.Stats.CandidatesAdded)
}

// TestRunCondition_NoRecords verifies candidates that all fail extraction
func TestRunCondition_NoRecords(t *testing.T) {
	f := newFixture(t, &auctionSite{})

	res := f.crawler.RunCondition(context.Background(), condition(21, 22, "", "ダイヤ"))
	assert.NoError(t, res.Err)
	assert.Equal(t, StatusNoRecords, res.Status)
	assert.Equal(t, 2, res.Stats.CandidatesAdded)
	assert.Nil(t, res.Write)
}

// TestRunCondition_NavigationFailure verifies an unreachable search page
// fails the run
func TestRunCondition_NavigationFailure(t *testing.T) {
	f := newFixture(t, &auctionSite{failSearch: true})

	res := f.crawler.RunCondition(context.Background(), condition(20, 25, "", "ダイヤ"))
	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrNavigation)
}

// logLine returns the JSON log line carrying msg.
func logLine(t *testing.T, out, msg string) string {
	t.Helper()
	for line := range strings.Lines(out) {
		if strings.Contains(line, `"msg":"`+msg+`"`) {
			return line
		}
	}
	t.Fatalf("no %q entry in log:\n%s", msg, out)
	return ""
}

// TestRunCondition_LogsErrors verifies failure entries carry the error
func TestRunCondition_LogsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.json")
	lg, err := logger.New(logger.Config{Level: logger.DebugLevel, Encoding: "json", OutputPaths: []string{path}})
	require.NoError(t, err)

	ok := newFixture(t, &auctionSite{})
	ok.crawler.log = lg
	ok.crawler.RunCondition(context.Background(), condition(20, 25, "Rings", "ダイヤ"))

	down := newFixture(t, &auctionSite{failSearch: true})
	down.crawler.log = lg
	down.crawler.RunCondition(context.Background(), condition(20, 25, "", "ダイヤ"))

	_ = lg.Sync()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, logLine(t, out, "failed to extract listing"), `"error":"`)
	assert.Contains(t, logLine(t, out, "skipping small stone"), `"error":"`)
	failed := logLine(t, out, "run failed")
	assert.Contains(t, failed, "search results unreachable")
	assert.Contains(t, failed, `"status":"failed"`)
}

// TestRunCondition_NoKeywords verifies a condition without keywords fails
func TestRunCondition_NoKeywords(t *testing.T) {
	f := newFixture(t, &auctionSite{})

	res := f.crawler.RunCondition(context.Background(), condition(20, 25, "", " ", ""))
	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, listing.ErrNoKeywords)
}

// TestRun verifies conditions are processed in order and inactive ones
// are skipped
func TestRun(t *testing.T) {
	f := newFixture(t, &auctionSite{})

	inactive := condition(20, 25, "Rings", "ダイヤ")
	inactive.Active = false
	conds := []auction.SearchCondition{
		inactive,
		condition(20, 25, "Rings", "ダイヤ"),
		condition(1, 5, "Rings", "ダイヤ"),
		condition(20, 25, "Rings", ""),
	}

	batch := f.crawler.Run(context.Background(), conds)
	require.Len(t, batch.Runs, 4)
	assert.Equal(t, StatusSkipped, batch.Runs[0].Status)
	assert.Equal(t, StatusWritten, batch.Runs[1].Status)
	assert.Equal(t, StatusNoCandidates, batch.Runs[2].Status)
	assert.Equal(t, StatusFailed, batch.Runs[3].Status)

	assert.Equal(t, 1, batch.Count(StatusSkipped))
	assert.Equal(t, 2, batch.Written())
}

// TestRun_Cancelled verifies a cancelled context stops the batch
func TestRun_Cancelled(t *testing.T) {
	f := newFixture(t, &auctionSite{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := f.crawler.Run(ctx, []auction.SearchCondition{condition(20, 25, "", "ダイヤ")})
	assert.Empty(t, batch.Runs)
}
