package sources

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaddev/leadharvester/internal/browser"
	"github.com/leaddev/leadharvester/internal/errs"
	"github.com/leaddev/leadharvester/internal/models"
	"github.com/leaddev/leadharvester/internal/proxy"
)

type fakeSession struct {
	html       string
	blocked    bool
	selectorOK bool
	navErr     error
	closed     bool
	visited    []string
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.visited = append(s.visited, url)
	return s.navErr
}
func (s *fakeSession) Type(ctx context.Context, selector, text string) error { return nil }
func (s *fakeSession) Click(ctx context.Context, selector string) error      { return nil }
func (s *fakeSession) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) bool {
	return s.selectorOK
}
func (s *fakeSession) DetectBlock(ctx context.Context) bool             { return s.blocked }
func (s *fakeSession) Content(ctx context.Context) (string, error)      { return s.html, nil }
func (s *fakeSession) Evaluate(ctx context.Context, script string) (any, error) { return nil, nil }
func (s *fakeSession) Screenshot(ctx context.Context, path string) error { return nil }
func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeFactory struct {
	session *fakeSession
	err     error
	calls   int
}

func (f *fakeFactory) NewSession(ctx context.Context, opts browser.SessionOptions) (browser.Session, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

const listingHTML = `
<div class="listing" data-id="biz-1">
  <h3 class="biz-name">Ace Plumbing</h3>
  <span class="biz-address">12 Canal St, New York, NY</span>
</div>`

func testAdapter(t *testing.T, structuredBody string, structuredStatus int, factory browser.Factory) *scrapeAdapter {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if structuredStatus != 0 {
			w.WriteHeader(structuredStatus)
		}
		w.Write([]byte(structuredBody))
	}))
	t.Cleanup(srv.Close)

	cfg := scrapeConfig{
		name:          SourceMaps,
		searchURL:     func(models.SearchParams) string { return srv.URL + "/search" },
		detailURL:     func(id string) string { return srv.URL + "/detail/" + id },
		strategies:    testStrategies(),
		waitSelectors: []string{"div.listing"},
	}

	pool := proxy.NewPool(proxy.PoolOptions{BlockThreshold: 3}, proxy.NewMemoryRepository(), slog.Default())
	fetcher := NewFetcher(nil, nil, 5*time.Second, slog.Default())
	return newScrapeAdapter(cfg, fetcher, factory, pool, nil, nil, slog.Default())
}

func TestSearchStructuredPath(t *testing.T) {
	factory := &fakeFactory{}
	a := testAdapter(t, `<html><body>`+listingHTML+`</body></html>`, 0, factory)

	res, err := a.Search(context.Background(), models.SearchParams{Query: "Plumber", AntiDetection: true})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "Ace Plumbing", res.Records[0].Name)
	assert.Equal(t, MethodStructured, res.Method, "anti-detection flag alone does not make this a session search")
	assert.Zero(t, factory.calls, "no browser session when the structured fetch matches")
}

func TestSearchFallsBackToSession(t *testing.T) {
	sess := &fakeSession{html: `<html><body>` + listingHTML + `</body></html>`, selectorOK: true}
	factory := &fakeFactory{session: sess}
	a := testAdapter(t, `<html><body><p>rendered client side</p></body></html>`, 0, factory)

	res, err := a.Search(context.Background(), models.SearchParams{Query: "Plumber", AntiDetection: true})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, MethodSession, res.Method)
	assert.Equal(t, 1, factory.calls)
	assert.True(t, sess.closed, "session is single use and closed after the search")
}

func TestSearchNoFallbackWithoutAntiDetection(t *testing.T) {
	factory := &fakeFactory{session: &fakeSession{selectorOK: true}}
	a := testAdapter(t, `<html><body><p>nothing here</p></body></html>`, 0, factory)

	res, err := a.Search(context.Background(), models.SearchParams{Query: "Plumber"})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Zero(t, factory.calls)
}

func TestSearchSessionDetectsBlock(t *testing.T) {
	sess := &fakeSession{blocked: true, selectorOK: true}
	factory := &fakeFactory{session: sess}
	a := testAdapter(t, ``, http.StatusForbidden, factory)

	_, err := a.Search(context.Background(), models.SearchParams{Query: "Plumber", AntiDetection: true})
	require.Error(t, err)
	assert.Equal(t, errs.KindBlocked, errs.KindOf(err), "structured-fetch error kind survives a failed fallback")
	assert.True(t, sess.closed)
}

func TestSearchSessionSelectorDrift(t *testing.T) {
	sess := &fakeSession{html: `<html><body><p>unknown markup</p></body></html>`}
	factory := &fakeFactory{session: sess}
	a := testAdapter(t, `<html><body></body></html>`, 0, factory)

	_, err := a.Search(context.Background(), models.SearchParams{Query: "Plumber", AntiDetection: true})
	require.Error(t, err)
	assert.Equal(t, errs.KindParseMismatch, errs.KindOf(err))
}

func TestSearchTruncatesToMaxResults(t *testing.T) {
	body := `<html><body>`
	for i := 0; i < 5; i++ {
		body += listingHTML
	}
	body += `</body></html>`

	a := testAdapter(t, body, 0, &fakeFactory{})

	res, err := a.Search(context.Background(), models.SearchParams{Query: "Plumber", MaxResults: 2})
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
}

func TestSessionFailuresBlockProxy(t *testing.T) {
	factory := &fakeFactory{session: &fakeSession{navErr: errors.New("net::ERR_TUNNEL_CONNECTION_FAILED")}}
	a := testAdapter(t, `<html><body></body></html>`, 0, factory)
	a.pool.Add(&models.ProxyServer{Protocol: "http", Host: "10.0.0.9", Port: 8080, Status: models.ProxyActive})

	params := models.SearchParams{Query: "Plumber", AntiDetection: true}
	for i := 0; i < 3; i++ {
		_, err := a.Search(context.Background(), params)
		require.Error(t, err)
	}

	stats := a.pool.Stats(true)
	require.Len(t, stats.Servers, 1)
	assert.Equal(t, models.ProxyBlocked, stats.Servers[0].Status,
		"three failed session navigations through one proxy must block it")
	assert.Equal(t, 3, stats.Servers[0].FailureCount)
}

func TestSessionBlockCountsAgainstProxy(t *testing.T) {
	factory := &fakeFactory{session: &fakeSession{blocked: true, selectorOK: true}}
	a := testAdapter(t, `<html><body></body></html>`, 0, factory)
	a.pool.Add(&models.ProxyServer{Protocol: "http", Host: "10.0.0.9", Port: 8080, Status: models.ProxyActive})

	_, err := a.Search(context.Background(), models.SearchParams{Query: "Plumber", AntiDetection: true})
	require.Error(t, err)
	assert.Equal(t, errs.KindBlocked, errs.KindOf(err))

	stats := a.pool.Stats(true)
	require.Len(t, stats.Servers, 1)
	assert.Equal(t, 1, stats.Servers[0].FailureCount)
	assert.Equal(t, 1, stats.Servers[0].ConsecutiveFail)
}

func TestSessionSuccessResetsProxyCounters(t *testing.T) {
	sess := &fakeSession{html: `<html><body>` + listingHTML + `</body></html>`, selectorOK: true}
	a := testAdapter(t, `<html><body></body></html>`, 0, &fakeFactory{session: sess})
	a.pool.Add(&models.ProxyServer{Protocol: "http", Host: "10.0.0.9", Port: 8080, Status: models.ProxyActive, ConsecutiveFail: 2})

	res, err := a.Search(context.Background(), models.SearchParams{Query: "Plumber", AntiDetection: true})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	stats := a.pool.Stats(true)
	require.Len(t, stats.Servers, 1)
	assert.Equal(t, 0, stats.Servers[0].ConsecutiveFail)
	assert.Equal(t, 1, stats.Servers[0].SuccessCount)
	assert.Equal(t, models.ProxyActive, stats.Servers[0].Status)
}

type recordingLimiter struct {
	waits     int
	successes int
	errors    int
}

func (l *recordingLimiter) Wait(ctx context.Context) error  { l.waits++; return nil }
func (l *recordingLimiter) SetDelay(min, max time.Duration) {}
func (l *recordingLimiter) RecordSuccess()                  { l.successes++ }
func (l *recordingLimiter) RecordError()                    { l.errors++ }

func TestSearchFeedsLimiterOutcomes(t *testing.T) {
	t.Run("block backs off", func(t *testing.T) {
		a := testAdapter(t, ``, http.StatusForbidden, &fakeFactory{})
		rl := &recordingLimiter{}
		a.limiter = rl

		_, err := a.Search(context.Background(), models.SearchParams{Query: "Plumber"})
		require.Error(t, err)

		assert.Equal(t, 1, rl.waits)
		assert.Equal(t, 1, rl.errors)
		assert.Zero(t, rl.successes)
	})

	t.Run("hit reported", func(t *testing.T) {
		a := testAdapter(t, `<html><body>`+listingHTML+`</body></html>`, 0, &fakeFactory{})
		rl := &recordingLimiter{}
		a.limiter = rl

		res, err := a.Search(context.Background(), models.SearchParams{Query: "Plumber"})
		require.NoError(t, err)
		require.Len(t, res.Records, 1)

		assert.Equal(t, 1, rl.successes)
		assert.Zero(t, rl.errors)
	})
}

func TestGetDetails(t *testing.T) {
	a := testAdapter(t, `<html><body>`+listingHTML+`</body></html>`, 0, &fakeFactory{})

	rec, err := a.GetDetails(context.Background(), "biz-42")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "biz-42", rec.SourceID, "caller's id wins over the detail page's")
	assert.Equal(t, "Ace Plumbing", rec.Name)
}
