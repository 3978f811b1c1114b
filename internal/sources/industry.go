package sources

import (
	"log/slog"
	"net/url"

	"github.com/leaddev/leadharvester/internal/browser"
	"github.com/leaddev/leadharvester/internal/models"
	"github.com/leaddev/leadharvester/internal/proxy"
	"github.com/leaddev/leadharvester/internal/ratelimit"
)

const SourceIndustry = "industry_directory"

var industryStrategies = []ListingStrategy{
	{
		Container: ".search-results .v-card, .organic .result",
		Name:      ".business-name span, a.business-name",
		Address:   ".street-address, .adr",
		Phone:     ".phones.phone.primary",
		Website:   "a.track-visit-website",
		Rating:    ".result-rating",
		Reviews:   ".count",
		SourceID:  "attr:data-listing-id",
	},
	{
		Container: ".search-results .result",
		Name:      "a.business-name",
		Address:   ".adr",
		Phone:     ".phone",
		Website:   "a.website-link",
	},
	{
		Container: ".listing",
		Name:      ".listing-title a",
		Address:   ".listing-address",
		Phone:     ".listing-phone",
	},
}

// NewIndustryAdapter returns the industry directory adapter. The
// orchestrator only tries it when the request carries an industry hint
// and no explicit company name.
func NewIndustryAdapter(fetcher *Fetcher, sessions browser.Factory, pool *proxy.Pool, limiter ratelimit.Limiter, enricher *Enricher, logger *slog.Logger) Adapter {
	cfg := scrapeConfig{
		name: SourceIndustry,
		searchURL: func(p models.SearchParams) string {
			v := url.Values{}
			v.Set("search_terms", p.EffectiveQuery())
			if p.Location != "" {
				v.Set("geo_location_terms", p.Location)
			}
			return "https://www.yellowpages.com/search?" + v.Encode()
		},
		detailURL: func(sourceID string) string {
			return "https://www.yellowpages.com/listing/" + url.PathEscape(sourceID)
		},
		strategies: industryStrategies,
		detail: []ListingStrategy{
			{
				Container: "#main-content, .business-card",
				Name:      "h1.dockable.business-name, h1",
				Address:   ".address",
				Phone:     ".phone",
				Website:   "a.website-link",
			},
		},
		waitSelectors: []string{
			".search-results .result",
			".v-card",
			".listing",
		},
	}
	return newScrapeAdapter(cfg, fetcher, sessions, pool, limiter, enricher, logger)
}
