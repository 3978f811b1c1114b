package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaddev/leadharvester/internal/errs"
	"github.com/leaddev/leadharvester/internal/models"
)

type fakeQuota struct {
	exceeded bool
	recorded []string // "endpoint:status"
}

func (q *fakeQuota) Exceeded(ctx context.Context) (bool, error) { return q.exceeded, nil }
func (q *fakeQuota) Record(ctx context.Context, endpoint, status string) error {
	q.recorded = append(q.recorded, endpoint+":"+status)
	return nil
}

func placesServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("key"))
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPlacesSearch(t *testing.T) {
	srv := placesServer(t, `{
		"status": "OK",
		"results": [
			{"place_id": "p1", "name": "Ace Plumbing", "formatted_address": "12 Canal St, New York, NY", "rating": 4.5, "user_ratings_total": 120, "types": ["plumber"]},
			{"place_id": "p2", "name": "Borough Drains", "vicinity": "Brooklyn"}
		]
	}`)

	quota := &fakeQuota{}
	a := NewPlacesAdapter("test-key", srv.URL, quota, time.Second, slog.Default())

	res, err := a.Search(context.Background(), models.SearchParams{Query: "Plumber", Location: "New York, NY"})
	require.NoError(t, err)
	records := res.Records
	require.Len(t, records, 2)

	assert.Equal(t, MethodAPI, res.Method)
	assert.Equal(t, "p1", records[0].SourceID)
	assert.Equal(t, SourcePlaces, records[0].ScrapeSource)
	assert.Equal(t, []string{"plumber"}, records[0].Categories)
	assert.Equal(t, "Brooklyn", records[1].Address, "vicinity fills in for a missing formatted address")

	assert.Equal(t, []string{"textsearch:OK"}, quota.recorded)
}

func TestPlacesSearchZeroResults(t *testing.T) {
	srv := placesServer(t, `{"status": "ZERO_RESULTS", "results": []}`)

	quota := &fakeQuota{}
	a := NewPlacesAdapter("test-key", srv.URL, quota, time.Second, slog.Default())

	res, err := a.Search(context.Background(), models.SearchParams{Query: "Plumber"})
	require.NoError(t, err, "an empty result set is not an error")
	records := res.Records
	assert.Empty(t, records)
	assert.Equal(t, []string{"textsearch:ZERO_RESULTS"}, quota.recorded)
}

func TestPlacesSearchStatusMapping(t *testing.T) {
	tests := []struct {
		status   string
		wantKind errs.Kind
	}{
		{"OVER_QUERY_LIMIT", errs.KindQuotaExceeded},
		{"REQUEST_DENIED", errs.KindUpstreamAPI},
		{"INVALID_REQUEST", errs.KindUpstreamAPI},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			srv := placesServer(t, fmt.Sprintf(`{"status": %q, "error_message": "nope"}`, tt.status))

			quota := &fakeQuota{}
			a := NewPlacesAdapter("test-key", srv.URL, quota, time.Second, slog.Default())

			_, err := a.Search(context.Background(), models.SearchParams{Query: "Plumber"})
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, errs.KindOf(err))
			assert.Equal(t, []string{"textsearch:" + tt.status}, quota.recorded, "failed calls still count against quota")
		})
	}
}

func TestPlacesSearchQuotaShortCircuit(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	a := NewPlacesAdapter("test-key", srv.URL, &fakeQuota{exceeded: true}, time.Second, slog.Default())

	_, err := a.Search(context.Background(), models.SearchParams{Query: "Plumber"})
	require.Error(t, err)
	assert.Equal(t, errs.KindQuotaExceeded, errs.KindOf(err))
	assert.False(t, called, "no upstream call once the guard has tripped")
}

func TestPlacesSearchWithoutAPIKey(t *testing.T) {
	a := NewPlacesAdapter("", "http://places.invalid", &fakeQuota{}, time.Second, slog.Default())

	_, err := a.Search(context.Background(), models.SearchParams{Query: "Plumber"})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestPlacesGetDetails(t *testing.T) {
	srv := placesServer(t, `{
		"status": "OK",
		"result": {"place_id": "p1", "name": "Ace Plumbing", "formatted_phone_number": "+1 212 555 0101", "website": "https://aceplumbing.example"}
	}`)

	quota := &fakeQuota{}
	a := NewPlacesAdapter("test-key", srv.URL, quota, time.Second, slog.Default())

	rec, err := a.GetDetails(context.Background(), "p1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "+1 212 555 0101", rec.Phone)
	assert.Equal(t, []string{"details:OK"}, quota.recorded)
}

func TestPlacesSearchPagination(t *testing.T) {
	page := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page++
		if r.URL.Query().Get("pagetoken") == "" {
			fmt.Fprint(w, `{"status": "OK", "next_page_token": "tok-2", "results": [{"place_id": "p1", "name": "Ace Plumbing"}]}`)
			return
		}
		fmt.Fprint(w, `{"status": "OK", "results": [{"place_id": "p2", "name": "Borough Drains"}]}`)
	}))
	defer srv.Close()

	a := NewPlacesAdapter("test-key", srv.URL, &fakeQuota{}, time.Second, slog.Default())

	res, err := a.Search(context.Background(), models.SearchParams{Query: "Plumber"})
	require.NoError(t, err)
	records := res.Records
	assert.Len(t, records, 2)
	assert.Equal(t, 2, page)
}

func TestPlacesSearchMaxResultsStopsPaging(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"status": "OK", "next_page_token": "more", "results": [{"place_id": "p1", "name": "Ace Plumbing"}, {"place_id": "p2", "name": "Borough Drains"}]}`)
	}))
	defer srv.Close()

	a := NewPlacesAdapter("test-key", srv.URL, &fakeQuota{}, time.Second, slog.Default())

	res, err := a.Search(context.Background(), models.SearchParams{Query: "Plumber", MaxResults: 2})
	require.NoError(t, err)
	records := res.Records
	assert.Len(t, records, 2)
	assert.Equal(t, 1, calls, "paging stops once max results is reached")
}
