package orchestrator

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaddev/leadharvester/internal/errs"
	"github.com/leaddev/leadharvester/internal/models"
	"github.com/leaddev/leadharvester/internal/sources"
)

// spyAdapter scripts one source in the chain and records how often it
// was consulted.
type spyAdapter struct {
	name         string
	method       string
	records      []models.BusinessRecord
	searchErr    error
	details      *models.BusinessRecord
	detailsErr   error
	searchCalls  int
	detailsCalls int
	lastParams   models.SearchParams
}

func (s *spyAdapter) Name() string { return s.name }

func (s *spyAdapter) Search(ctx context.Context, params models.SearchParams) (sources.SearchResult, error) {
	s.searchCalls++
	s.lastParams = params
	return sources.SearchResult{Records: s.records, Method: s.method}, s.searchErr
}

func (s *spyAdapter) GetDetails(ctx context.Context, sourceID string) (*models.BusinessRecord, error) {
	s.detailsCalls++
	return s.details, s.detailsErr
}

type spyHistory struct {
	logs []*models.ExecutionLog
}

func (h *spyHistory) Record(ctx context.Context, log *models.ExecutionLog, businesses []models.BusinessRecord) error {
	h.logs = append(h.logs, log)
	return nil
}

func record(name, city, source, id string) models.BusinessRecord {
	return models.BusinessRecord{
		SourceID:     id,
		Name:         name,
		Address:      "1 Main St, " + city + ", US",
		ScrapeSource: source,
		ScrapedAt:    time.Now(),
	}
}

func validParams() models.SearchParams {
	return models.SearchParams{
		Query:      "Plumber",
		Location:   "New York, NY",
		MaxResults: 20,
	}
}

func TestSearchShortCircuitsOnFirstHit(t *testing.T) {
	maps := &spyAdapter{name: sources.SourceMaps, records: []models.BusinessRecord{
		record("Ace Plumbing", "New York", sources.SourceMaps, "m1"),
		record("Borough Drains", "New York", sources.SourceMaps, "m2"),
	}}
	review := &spyAdapter{name: sources.SourceReview}
	places := &spyAdapter{name: sources.SourcePlaces}

	orc := New([]sources.Adapter{maps, review, places}, nil, Options{MaxAttempts: 3}, slog.Default())

	res, err := orc.Search(context.Background(), validParams())
	require.NoError(t, err)

	assert.Len(t, res.Businesses, 2)
	assert.Equal(t, models.ExecutionCompleted, res.Log.Status)
	assert.Equal(t, 1, maps.searchCalls)
	assert.Zero(t, review.searchCalls, "later sources stay untouched after a hit")
	assert.Zero(t, places.searchCalls)
	assert.Equal(t, sources.SourceMaps, res.Businesses[0].ScrapeSource)
}

func TestSearchFallsThroughEmptySources(t *testing.T) {
	maps := &spyAdapter{name: sources.SourceMaps}
	review := &spyAdapter{name: sources.SourceReview, records: []models.BusinessRecord{
		record("Ace Plumbing", "New York", sources.SourceReview, "r1"),
	}}

	orc := New([]sources.Adapter{maps, review}, nil, Options{MaxAttempts: 1}, slog.Default())

	res, err := orc.Search(context.Background(), validParams())
	require.NoError(t, err)

	require.Len(t, res.Businesses, 1)
	assert.Equal(t, sources.SourceReview, res.Businesses[0].ScrapeSource)

	require.Len(t, res.Log.Attempts, 2)
	assert.Equal(t, models.AttemptEmpty, res.Log.Attempts[0].Status)
	assert.Equal(t, models.AttemptSuccess, res.Log.Attempts[1].Status)
}

func TestSearchNoResults(t *testing.T) {
	maps := &spyAdapter{name: sources.SourceMaps}
	review := &spyAdapter{name: sources.SourceReview}

	history := &spyHistory{}
	orc := New([]sources.Adapter{maps, review}, history, Options{MaxAttempts: 2}, slog.Default())

	res, err := orc.Search(context.Background(), validParams())
	require.NoError(t, err)

	assert.Empty(t, res.Businesses)
	assert.Equal(t, models.ExecutionNoResults, res.Log.Status)
	assert.Equal(t, 2, maps.searchCalls, "whole chain retried up to MaxAttempts")
	require.Len(t, history.logs, 1, "empty runs still land in history")
}

func TestSearchAllSourcesFailed(t *testing.T) {
	maps := &spyAdapter{name: sources.SourceMaps, searchErr: errs.Newf(errs.KindBlocked, sources.SourceMaps, "challenge page served")}
	review := &spyAdapter{name: sources.SourceReview, searchErr: errs.Newf(errs.KindNetworkTimeout, sources.SourceReview, "context deadline exceeded")}

	orc := New([]sources.Adapter{maps, review}, nil, Options{MaxAttempts: 1}, slog.Default())

	res, err := orc.Search(context.Background(), validParams())
	require.NoError(t, err, "adapter failures are recovered into the log")

	assert.Empty(t, res.Businesses)
	assert.Equal(t, models.ExecutionFailed, res.Log.Status)
	require.Len(t, res.Log.Attempts, 2)
	assert.Contains(t, res.Log.Attempts[0].Error, "challenge page")
}

func TestAttemptMethodComesFromAdapter(t *testing.T) {
	// Anti-detection being requested must not show up as a session
	// attempt when the structured path served the result.
	maps := &spyAdapter{name: sources.SourceMaps, method: sources.MethodStructured, records: []models.BusinessRecord{
		record("Ace Plumbing", "New York", sources.SourceMaps, "m1"),
	}}

	orc := New([]sources.Adapter{maps}, nil, Options{MaxAttempts: 1}, slog.Default())

	params := validParams()
	params.AntiDetection = true
	res, err := orc.Search(context.Background(), params)
	require.NoError(t, err)

	require.Len(t, res.Log.Attempts, 1)
	assert.Equal(t, sources.MethodStructured, res.Log.Attempts[0].Method)
}

func TestSearchValidationError(t *testing.T) {
	orc := New(nil, nil, Options{MaxAttempts: 1}, slog.Default())

	_, err := orc.Search(context.Background(), models.SearchParams{})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestIndustryGate(t *testing.T) {
	tests := []struct {
		name     string
		params   models.SearchParams
		wantSkip bool
	}{
		{
			name:     "explicit query skips industry directory",
			params:   models.SearchParams{Query: "Plumber", Location: "New York, NY"},
			wantSkip: true,
		},
		{
			name:     "no industry hint skips industry directory",
			params:   models.SearchParams{Query: "Plumber", Location: "Chicago, IL"},
			wantSkip: true,
		},
		{
			name:     "industry hint without query runs it",
			params:   models.SearchParams{Industry: "plumbing", Location: "New York, NY"},
			wantSkip: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			industry := &spyAdapter{name: sources.SourceIndustry, records: []models.BusinessRecord{
				record("Ace Plumbing", "New York", sources.SourceIndustry, "i1"),
			}}
			maps := &spyAdapter{name: sources.SourceMaps, records: []models.BusinessRecord{
				record("Borough Drains", "New York", sources.SourceMaps, "m1"),
			}}

			orc := New([]sources.Adapter{industry, maps}, nil, Options{MaxAttempts: 1}, slog.Default())
			res, err := orc.Search(context.Background(), tt.params)
			require.NoError(t, err)

			if tt.wantSkip {
				assert.Zero(t, industry.searchCalls)
				assert.Equal(t, models.AttemptSkipped, res.Log.Attempts[0].Status)
				assert.Equal(t, sources.SourceMaps, res.Businesses[0].ScrapeSource)
			} else {
				assert.Equal(t, 1, industry.searchCalls)
				assert.Equal(t, sources.SourceIndustry, res.Businesses[0].ScrapeSource)
			}
		})
	}
}

func TestSearchEnrichesTopCandidate(t *testing.T) {
	details := record("Ace Plumbing", "New York", sources.SourceMaps, "m1")
	details.Phone = "+1 212 555 0101"
	details.Website = "https://aceplumbing.example"
	details.Contacts = []models.ContactRecord{{Name: "Rita Vargas", Position: "Owner", Email: "rita@aceplumbing.example"}}

	maps := &spyAdapter{
		name: sources.SourceMaps,
		records: []models.BusinessRecord{
			record("Ace Plumbing", "New York", sources.SourceMaps, "m1"),
			record("Borough Drains", "New York", sources.SourceMaps, "m2"),
		},
		details: &details,
	}

	orc := New([]sources.Adapter{maps}, nil, Options{MaxAttempts: 1}, slog.Default())
	res, err := orc.Search(context.Background(), validParams())
	require.NoError(t, err)

	assert.Equal(t, 1, maps.detailsCalls, "one details call for the top candidate only")
	top := res.Businesses[0]
	assert.Equal(t, "+1 212 555 0101", top.Phone)
	assert.Equal(t, "https://aceplumbing.example", top.Website)
	require.Len(t, top.Contacts, 1)

	assert.Empty(t, res.Businesses[1].Phone, "only the top candidate is enriched")
}

func TestSearchSurvivesDetailsFailure(t *testing.T) {
	maps := &spyAdapter{
		name:       sources.SourceMaps,
		records:    []models.BusinessRecord{record("Ace Plumbing", "New York", sources.SourceMaps, "m1")},
		detailsErr: errs.Newf(errs.KindNetworkTimeout, sources.SourceMaps, "detail page timed out"),
	}

	orc := New([]sources.Adapter{maps}, nil, Options{MaxAttempts: 1}, slog.Default())
	res, err := orc.Search(context.Background(), validParams())
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionCompleted, res.Log.Status)
	assert.Len(t, res.Businesses, 1)
}

func TestDeduplicate(t *testing.T) {
	records := []models.BusinessRecord{
		record("Ace Plumbing LLC", "New York", sources.SourceMaps, "m1"),
		record("Ace Plumbing", "New York", sources.SourceReview, "r1"),
		record("Ace Plumbing", "Chicago", sources.SourceMaps, "m2"),
		record("Borough Drains", "New York", sources.SourceMaps, "m3"),
	}

	out := Deduplicate(records)

	require.Len(t, out, 3, "same business from two sources folds to one row")
	assert.Equal(t, "m1", out[0].SourceID, "first occurrence wins")
	assert.Equal(t, "m2", out[1].SourceID)
	assert.Equal(t, "m3", out[2].SourceID)
}
