package sources

import (
	"log/slog"
	"net/url"

	"github.com/leaddev/leadharvester/internal/browser"
	"github.com/leaddev/leadharvester/internal/models"
	"github.com/leaddev/leadharvester/internal/proxy"
	"github.com/leaddev/leadharvester/internal/ratelimit"
)

const SourceReview = "review_directory"

var reviewStrategies = []ListingStrategy{
	{
		Container: "div[data-testid='serp-ia-card']",
		Name:      "h3 a",
		Address:   "address, p[data-testid='address']",
		Phone:     "p[data-testid='phone']",
		Rating:    "div[role='img']",
		Reviews:   "span[data-testid='review-count']",
		Website:   "h3 a",
		SourceID:  "attr:data-testid-card-id",
	},
	{
		Container: "li .container__09f24__mpR8gq",
		Name:      "h3 a[name]",
		Address:   "address p",
		Rating:    "div[aria-label*='star rating']",
		Reviews:   "span.reviewCount__09f24__tnBk4",
	},
	{
		Container: ".regular-search-result",
		Name:      ".biz-name span",
		Address:   "address",
		Phone:     ".biz-phone",
		Rating:    ".i-stars",
		Reviews:   ".review-count",
	},
}

// NewReviewAdapter returns the review directory adapter.
func NewReviewAdapter(fetcher *Fetcher, sessions browser.Factory, pool *proxy.Pool, limiter ratelimit.Limiter, enricher *Enricher, logger *slog.Logger) Adapter {
	cfg := scrapeConfig{
		name: SourceReview,
		searchURL: func(p models.SearchParams) string {
			v := url.Values{}
			v.Set("find_desc", p.EffectiveQuery())
			if p.Location != "" {
				v.Set("find_loc", p.Location)
			}
			return "https://www.yelp.com/search?" + v.Encode()
		},
		detailURL: func(sourceID string) string {
			return "https://www.yelp.com/biz/" + url.PathEscape(sourceID)
		},
		strategies: reviewStrategies,
		detail: []ListingStrategy{
			{
				Container: "main, #wrap",
				Name:      "h1",
				Address:   "address",
				Phone:     "p[data-testid='phone']",
				Website:   "a[href*='biz_redir']",
				Rating:    "div[role='img'][aria-label*='star']",
				Reviews:   "a[href='#reviews']",
			},
		},
		waitSelectors: []string{
			"div[data-testid='serp-ia-card']",
			".regular-search-result",
			"h3 a[name]",
		},
	}
	return newScrapeAdapter(cfg, fetcher, sessions, pool, limiter, enricher, logger)
}
