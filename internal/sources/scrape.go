package sources

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/leaddev/leadharvester/internal/browser"
	"github.com/leaddev/leadharvester/internal/errs"
	"github.com/leaddev/leadharvester/internal/models"
	"github.com/leaddev/leadharvester/internal/proxy"
	"github.com/leaddev/leadharvester/internal/ratelimit"
)

// scrapeConfig describes one scraped source: how to build its URLs and
// which selector strategies to try against its markup.
type scrapeConfig struct {
	name          string
	searchURL     func(params models.SearchParams) string
	detailURL     func(sourceID string) string
	strategies    []ListingStrategy
	detail        []ListingStrategy
	waitSelectors []string
}

// scrapeAdapter is the shared two-strategy core behind the maps, review
// and industry adapters: structured fetch first, automated session
// fallback when that is empty or blocked.
type scrapeAdapter struct {
	cfg      scrapeConfig
	fetcher  *Fetcher
	sessions browser.Factory
	pool     *proxy.Pool
	limiter  ratelimit.Limiter
	enricher *Enricher
	logger   *slog.Logger
	selWait  time.Duration
}

func newScrapeAdapter(cfg scrapeConfig, fetcher *Fetcher, sessions browser.Factory, pool *proxy.Pool, limiter ratelimit.Limiter, enricher *Enricher, logger *slog.Logger) *scrapeAdapter {
	return &scrapeAdapter{
		cfg:      cfg,
		fetcher:  fetcher,
		sessions: sessions,
		pool:     pool,
		limiter:  limiter,
		enricher: enricher,
		logger:   logger.With("component", "adapter", "source", cfg.name),
		selWait:  10 * time.Second,
	}
}

func (a *scrapeAdapter) Name() string { return a.cfg.name }

func (a *scrapeAdapter) Search(ctx context.Context, params models.SearchParams) (SearchResult, error) {
	res, err := a.search(ctx, params)
	a.noteOutcome(res, err)
	return res, err
}

func (a *scrapeAdapter) search(ctx context.Context, params models.SearchParams) (SearchResult, error) {
	res := SearchResult{Method: MethodStructured}

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return res, err
		}
	}

	target := a.cfg.searchURL(params)

	records, structuredErr := a.structuredSearch(ctx, target)
	if len(records) > 0 {
		res.Records = truncate(records, params.MaxResults)
		return res, nil
	}

	if structuredErr != nil {
		a.logger.Warn("structured fetch failed", "error", structuredErr)
	} else {
		a.logger.Info("structured fetch returned nothing", "url", target)
	}

	if !params.AntiDetection {
		return res, structuredErr
	}

	res.Method = MethodSession
	records, sessionErr := a.sessionSearch(ctx, target, params)
	if sessionErr != nil {
		a.logger.Warn("session fallback failed", "error", sessionErr)
		if structuredErr != nil {
			return res, structuredErr
		}
		return res, sessionErr
	}
	res.Records = truncate(records, params.MaxResults)
	return res, nil
}

// noteOutcome feeds the limiter when an adaptive one is wired: a block
// stretches the delay window, a hit lets it tighten again.
func (a *scrapeAdapter) noteOutcome(res SearchResult, err error) {
	rec, ok := a.limiter.(interface {
		RecordSuccess()
		RecordError()
	})
	if !ok {
		return
	}
	switch {
	case err == nil && len(res.Records) > 0:
		rec.RecordSuccess()
	case errs.IsKind(err, errs.KindBlocked):
		rec.RecordError()
	}
}

func (a *scrapeAdapter) structuredSearch(ctx context.Context, target string) ([]models.BusinessRecord, error) {
	doc, err := a.fetcher.Get(ctx, a.cfg.name, target)
	if err != nil {
		return nil, err
	}
	records := ExtractListings(doc, a.cfg.strategies, a.cfg.name)
	if len(records) == 0 {
		return nil, nil
	}
	return records, nil
}

func (a *scrapeAdapter) sessionSearch(ctx context.Context, target string, params models.SearchParams) ([]models.BusinessRecord, error) {
	opts := browser.SessionOptions{
		MinDelay: params.MinDelay,
		MaxDelay: params.MaxDelay,
	}
	var prx *models.ProxyServer
	if p := a.pool.Next(); p != nil {
		prx = p
		opts.ProxyURL = p.URL()
	}

	start := time.Now()

	sess, err := a.sessions.NewSession(ctx, opts)
	if err != nil {
		a.reportProxy(prx, false, time.Since(start))
		return nil, errs.New(errs.KindNetworkTimeout, a.cfg.name, err)
	}
	defer sess.Close()

	if err := sess.Navigate(ctx, target); err != nil {
		a.reportProxy(prx, false, time.Since(start))
		return nil, errs.New(errs.KindNetworkTimeout, a.cfg.name, err)
	}

	found := false
	for _, sel := range a.cfg.waitSelectors {
		if sess.WaitForSelector(ctx, sel, a.selWait) {
			found = true
			break
		}
	}

	if sess.DetectBlock(ctx) {
		a.reportProxy(prx, false, time.Since(start))
		return nil, errs.Newf(errs.KindBlocked, a.cfg.name, "challenge page at %s", target)
	}

	// Past the block check the proxy route itself held up; markup drift
	// below is not counted against it.
	a.reportProxy(prx, true, time.Since(start))

	if !found {
		return nil, errs.Newf(errs.KindParseMismatch, a.cfg.name, "no listing container appeared at %s", target)
	}

	html, err := sess.Content(ctx)
	if err != nil {
		return nil, errs.New(errs.KindNetworkTimeout, a.cfg.name, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errs.New(errs.KindParseMismatch, a.cfg.name, err)
	}

	records := ExtractListings(doc, a.cfg.strategies, a.cfg.name)
	if len(records) == 0 {
		return nil, errs.Newf(errs.KindParseMismatch, a.cfg.name, "no selector strategy matched at %s", target)
	}
	return records, nil
}

// GetDetails fetches the source's detail page for sourceID and runs
// contact enrichment against the business website when one is known.
func (a *scrapeAdapter) GetDetails(ctx context.Context, sourceID string) (*models.BusinessRecord, error) {
	if a.cfg.detailURL == nil {
		return nil, nil
	}

	doc, err := a.fetcher.Get(ctx, a.cfg.name, a.cfg.detailURL(sourceID))
	if err != nil {
		return nil, err
	}

	strategies := a.cfg.detail
	if len(strategies) == 0 {
		strategies = a.cfg.strategies
	}
	records := ExtractListings(doc, strategies, a.cfg.name)
	if len(records) == 0 {
		return nil, errs.Newf(errs.KindParseMismatch, a.cfg.name, "detail page for %s did not match any strategy", sourceID)
	}

	rec := records[0]
	rec.SourceID = sourceID

	if a.enricher != nil && rec.Website != "" {
		a.enricher.Enrich(ctx, &rec)
	}
	return &rec, nil
}

func (a *scrapeAdapter) reportProxy(p *models.ProxyServer, success bool, elapsed time.Duration) {
	if p == nil || a.pool == nil {
		return
	}
	a.pool.ReportResult(p.Host, p.Port, success, elapsed)
}

func truncate(records []models.BusinessRecord, max int) []models.BusinessRecord {
	if max > 0 && len(records) > max {
		return records[:max]
	}
	return records
}
