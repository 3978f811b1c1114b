package proxy

import (
	"context"
	"sync"

	"github.com/leaddev/leadharvester/internal/models"
)

// MemoryRepository keeps the pool in process memory only. Used in tests
// and when no database is configured.
type MemoryRepository struct {
	mu      sync.Mutex
	servers []*models.ProxyServer
	sources []*models.ProxySource
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) LoadAll(ctx context.Context) ([]*models.ProxyServer, []*models.ProxySource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.servers), cloneSources(r.sources), nil
}

func (r *MemoryRepository) SaveAll(ctx context.Context, servers []*models.ProxyServer, sources []*models.ProxySource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers = clone(servers)
	r.sources = cloneSources(sources)
	return nil
}
