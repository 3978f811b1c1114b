package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaddev/leadharvester/internal/models"
	"github.com/leaddev/leadharvester/internal/orchestrator"
	"github.com/leaddev/leadharvester/internal/proxy"
	"github.com/leaddev/leadharvester/internal/sources"
)

type stubAdapter struct {
	records []models.BusinessRecord
}

func (s *stubAdapter) Name() string { return sources.SourceMaps }
func (s *stubAdapter) Search(ctx context.Context, params models.SearchParams) (sources.SearchResult, error) {
	return sources.SearchResult{Records: s.records, Method: sources.MethodStructured}, nil
}
func (s *stubAdapter) GetDetails(ctx context.Context, sourceID string) (*models.BusinessRecord, error) {
	return nil, nil
}

func testHandlers(records []models.BusinessRecord) *Handlers {
	orc := orchestrator.New(
		[]sources.Adapter{&stubAdapter{records: records}},
		nil,
		orchestrator.Options{MaxAttempts: 1},
		slog.Default(),
	)
	pool := proxy.NewPool(proxy.PoolOptions{BlockThreshold: 3}, proxy.NewMemoryRepository(), slog.Default())
	return NewHandlers(orc, pool, nil, nil, slog.Default())
}

func TestSearchHandler(t *testing.T) {
	h := testHandlers([]models.BusinessRecord{
		{SourceID: "m1", Name: "Ace Plumbing", ScrapeSource: sources.SourceMaps},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"query": "Plumber", "location": "New York, NY"}`))
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result orchestrator.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	require.Len(t, result.Businesses, 1)
	assert.Equal(t, "Ace Plumbing", result.Businesses[0].Name)
	assert.NotEmpty(t, result.Log.ID)
	assert.Equal(t, models.ExecutionCompleted, result.Log.Status)
}

func TestSearchHandlerInvalidBody(t *testing.T) {
	h := testHandlers(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{broken`))
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchHandlerValidation(t *testing.T) {
	h := testHandlers(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"location": "New York, NY"}`))
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "neither query nor industry")
}

func TestSearchHandlerDecisionMakerFilter(t *testing.T) {
	h := testHandlers([]models.BusinessRecord{
		{
			SourceID: "m1", Name: "Ace Plumbing", ScrapeSource: sources.SourceMaps,
			Contacts: []models.ContactRecord{
				{Name: "Rita Vargas", Position: "Owner", IsDecisionMaker: true},
				{Name: "General Inbox", Email: "info@aceplumbing.example"},
			},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search",
		strings.NewReader(`{"query": "Plumber", "decision_makers_only": true}`))
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result orchestrator.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	require.Len(t, result.Businesses[0].Contacts, 1)
	assert.Equal(t, "Rita Vargas", result.Businesses[0].Contacts[0].Name)
}

func TestGetProxyStatsHandler(t *testing.T) {
	h := testHandlers(nil)
	h.pool.Add(&models.ProxyServer{Protocol: "http", Host: "10.0.0.1", Port: 8080, Status: models.ProxyActive})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/proxies/stats?servers=true", nil)
	rec := httptest.NewRecorder()
	h.GetProxyStats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var stats proxy.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Total)
	assert.Len(t, stats.Servers, 1)
}

func TestResetBlockedProxiesHandler(t *testing.T) {
	h := testHandlers(nil)
	h.pool.Add(&models.ProxyServer{Protocol: "http", Host: "10.0.0.1", Port: 8080, Status: models.ProxyActive})
	h.pool.ReportResult("10.0.0.1", 8080, false, 0)
	h.pool.ReportResult("10.0.0.1", 8080, false, 0)
	h.pool.ReportResult("10.0.0.1", 8080, false, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/proxies/reset", nil)
	rec := httptest.NewRecorder()
	h.ResetBlockedProxies(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reset": 1}`, rec.Body.String())
}
