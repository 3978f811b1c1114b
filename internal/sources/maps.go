package sources

import (
	"fmt"
	"log/slog"
	"net/url"

	"github.com/leaddev/leadharvester/internal/browser"
	"github.com/leaddev/leadharvester/internal/models"
	"github.com/leaddev/leadharvester/internal/proxy"
	"github.com/leaddev/leadharvester/internal/ratelimit"
)

const SourceMaps = "maps"

// mapsStrategies are best-effort, versioned guesses at the map listing
// markup, newest first. Selectors are heuristics, not contracts.
var mapsStrategies = []ListingStrategy{
	{
		Container: "div[role='article']",
		Name:      "a[aria-label] .fontHeadlineSmall, .qBF1Pd",
		Address:   ".W4Efsd:last-child .W4Efsd span:last-child",
		Rating:    "span[role='img']",
		Reviews:   ".UY7F9",
		Website:   "a[data-value='Website']",
		SourceID:  "attr:data-result-index",
	},
	{
		Container: ".Nv2PK",
		Name:      ".qBF1Pd",
		Address:   ".W4Efsd span",
		Rating:    ".MW4etd",
		Reviews:   ".UY7F9",
		Website:   "a.lcr4fd",
		SourceID:  "attr:data-cid",
	},
	{
		Container: ".section-result",
		Name:      ".section-result-title span",
		Address:   ".section-result-location",
		Rating:    ".cards-rating-score",
		Reviews:   ".section-result-num-ratings",
	},
}

// NewMapsAdapter returns the map listings adapter, normally the first
// scraped source the orchestrator tries.
func NewMapsAdapter(fetcher *Fetcher, sessions browser.Factory, pool *proxy.Pool, limiter ratelimit.Limiter, enricher *Enricher, logger *slog.Logger) Adapter {
	cfg := scrapeConfig{
		name: SourceMaps,
		searchURL: func(p models.SearchParams) string {
			q := p.EffectiveQuery()
			if p.Location != "" {
				q = fmt.Sprintf("%s near %s", q, p.Location)
			}
			return "https://www.google.com/maps/search/" + url.PathEscape(q)
		},
		detailURL: func(sourceID string) string {
			return "https://www.google.com/maps/place/?q=place_id:" + url.QueryEscape(sourceID)
		},
		strategies: mapsStrategies,
		detail: []ListingStrategy{
			{
				Container: "div[role='main']",
				Name:      "h1",
				Address:   "button[data-item-id='address'] .fontBodyMedium",
				Phone:     "button[data-item-id^='phone'] .fontBodyMedium",
				Website:   "a[data-item-id='authority']",
				Rating:    ".F7nice span[aria-hidden='true']",
				Reviews:   ".F7nice a",
			},
		},
		waitSelectors: []string{
			"div[role='article']",
			".Nv2PK",
			".section-result",
		},
	}
	return newScrapeAdapter(cfg, fetcher, sessions, pool, limiter, enricher, logger)
}
