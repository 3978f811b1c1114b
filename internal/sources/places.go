package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/leaddev/leadharvester/internal/errs"
	"github.com/leaddev/leadharvester/internal/models"
)

const SourcePlaces = "places_api"

// QuotaGuard gates calls to the metered places API. Implemented by
// internal/quota; faked in tests.
type QuotaGuard interface {
	Exceeded(ctx context.Context) (bool, error)
	Record(ctx context.Context, endpoint, status string) error
}

// PlacesAdapter speaks the paid geocoded-business API. It is the
// orchestrator's last resort and every call, successful or not, is
// recorded against the daily quota.
type PlacesAdapter struct {
	apiKey  string
	baseURL string
	quota   QuotaGuard
	client  *http.Client
	logger  *slog.Logger
}

func NewPlacesAdapter(apiKey, baseURL string, quota QuotaGuard, timeout time.Duration, logger *slog.Logger) *PlacesAdapter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PlacesAdapter{
		apiKey:  apiKey,
		baseURL: baseURL,
		quota:   quota,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("component", "adapter", "source", SourcePlaces),
	}
}

func (a *PlacesAdapter) Name() string { return SourcePlaces }

type placesResponse struct {
	Status        string         `json:"status"`
	ErrorMessage  string         `json:"error_message"`
	NextPageToken string         `json:"next_page_token"`
	Results       []placesResult `json:"results"`
	Result        *placesResult  `json:"result"`
}

type placesResult struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	Vicinity         string   `json:"vicinity"`
	FormattedPhone   string   `json:"formatted_phone_number"`
	Website          string   `json:"website"`
	Types            []string `json:"types"`
	Rating           float64  `json:"rating"`
	UserRatingsTotal int      `json:"user_ratings_total"`
}

func (a *PlacesAdapter) Search(ctx context.Context, params models.SearchParams) (SearchResult, error) {
	res := SearchResult{Method: MethodAPI}

	if a.apiKey == "" {
		return res, errs.Newf(errs.KindValidation, SourcePlaces, "no API key configured")
	}

	exceeded, err := a.quota.Exceeded(ctx)
	if err != nil {
		return res, errs.New(errs.KindUpstreamAPI, SourcePlaces, err)
	}
	if exceeded {
		return res, errs.Newf(errs.KindQuotaExceeded, SourcePlaces, "daily quota headroom reached")
	}

	query := params.EffectiveQuery()
	if params.Location != "" {
		query = fmt.Sprintf("%s in %s", query, params.Location)
	}

	var records []models.BusinessRecord
	pageToken := ""
	for {
		resp, err := a.call(ctx, "textsearch", url.Values{
			"query":     []string{query},
			"pagetoken": []string{pageToken},
		})
		if err != nil {
			return res, err
		}

		for _, r := range resp.Results {
			records = append(records, r.toRecord())
		}

		pageToken = resp.NextPageToken
		if pageToken == "" || (params.MaxResults > 0 && len(records) >= params.MaxResults) {
			break
		}
		// The API needs a moment before a page token becomes valid.
		select {
		case <-ctx.Done():
			res.Records = records
			return res, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	if params.MaxResults > 0 && len(records) > params.MaxResults {
		records = records[:params.MaxResults]
	}
	res.Records = records
	return res, nil
}

func (a *PlacesAdapter) GetDetails(ctx context.Context, sourceID string) (*models.BusinessRecord, error) {
	exceeded, err := a.quota.Exceeded(ctx)
	if err != nil {
		return nil, errs.New(errs.KindUpstreamAPI, SourcePlaces, err)
	}
	if exceeded {
		return nil, errs.Newf(errs.KindQuotaExceeded, SourcePlaces, "daily quota headroom reached")
	}

	resp, err := a.call(ctx, "details", url.Values{
		"place_id": []string{sourceID},
		"fields":   []string{"place_id,name,formatted_address,formatted_phone_number,website,types,rating,user_ratings_total"},
	})
	if err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return nil, nil
	}
	rec := resp.Result.toRecord()
	return &rec, nil
}

// call performs one metered request and maps the API's documented
// status codes onto the internal taxonomy. ZERO_RESULTS is a normal
// empty response, not an error.
func (a *PlacesAdapter) call(ctx context.Context, endpoint string, params url.Values) (*placesResponse, error) {
	params.Set("key", a.apiKey)
	for k := range params {
		if params.Get(k) == "" {
			params.Del(k)
		}
	}

	target := fmt.Sprintf("%s/%s/json?%s", a.baseURL, endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errs.New(errs.KindUpstreamAPI, SourcePlaces, err)
	}

	httpResp, err := a.client.Do(req)
	if err != nil {
		a.record(ctx, endpoint, "transport_error")
		return nil, errs.New(errs.KindNetworkTimeout, SourcePlaces, err)
	}
	defer httpResp.Body.Close()

	var resp placesResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		a.record(ctx, endpoint, "decode_error")
		return nil, errs.New(errs.KindUpstreamAPI, SourcePlaces, err)
	}

	a.record(ctx, endpoint, resp.Status)

	switch resp.Status {
	case "OK", "ZERO_RESULTS":
		return &resp, nil
	case "OVER_QUERY_LIMIT":
		return nil, errs.Newf(errs.KindQuotaExceeded, SourcePlaces, "upstream over query limit")
	case "REQUEST_DENIED":
		return nil, errs.Newf(errs.KindUpstreamAPI, SourcePlaces, "request denied: %s", resp.ErrorMessage)
	default:
		return nil, errs.Newf(errs.KindUpstreamAPI, SourcePlaces, "unexpected status %s: %s", resp.Status, resp.ErrorMessage)
	}
}

func (a *PlacesAdapter) record(ctx context.Context, endpoint, status string) {
	if err := a.quota.Record(ctx, endpoint, status); err != nil {
		a.logger.Warn("failed to record quota entry", "error", err)
	}
}

func (r placesResult) toRecord() models.BusinessRecord {
	address := r.FormattedAddress
	if address == "" {
		address = r.Vicinity
	}
	return models.BusinessRecord{
		SourceID:     r.PlaceID,
		Name:         r.Name,
		Address:      address,
		Phone:        r.FormattedPhone,
		Website:      r.Website,
		Categories:   r.Types,
		Rating:       r.Rating,
		ReviewCount:  r.UserRatingsTotal,
		ScrapeSource: SourcePlaces,
		ScrapedAt:    time.Now().UTC(),
	}
}
