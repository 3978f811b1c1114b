// Package sources holds the per-source adapters that turn an external
// data source (map listings, review directory, industry directory, paid
// places API) into normalized business records. Scraping adapters try a
// structured fetch first and fall back to an automated browser session
// when the fast path is empty or blocked.
package sources

import (
	"context"

	"github.com/leaddev/leadharvester/internal/models"
)

// Adapter is the contract the orchestrator drives. Search returns an
// empty result for "nothing found"; errors carry an errs.Kind so the
// fallback loop can classify them without re-throwing.
type Adapter interface {
	Name() string
	Search(ctx context.Context, params models.SearchParams) (SearchResult, error)
	GetDetails(ctx context.Context, sourceID string) (*models.BusinessRecord, error)
}

// SearchResult pairs the records with the retrieval method that actually
// produced them, so attempt records report the path taken rather than
// the path requested.
type SearchResult struct {
	Records []models.BusinessRecord
	Method  string
}

// Method names used in execution-log attempt records.
const (
	MethodStructured = "structured"
	MethodSession    = "session"
	MethodAPI        = "api"
)
