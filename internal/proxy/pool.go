// Package proxy owns the outbound egress pool: rotation, per-proxy
// health accounting, blocking, source refresh and batched health checks.
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/leaddev/leadharvester/internal/models"
)

type SelectionPolicy string

const (
	PolicyRoundRobin     SelectionPolicy = "round_robin"
	PolicyHealthWeighted SelectionPolicy = "health_weighted"
)

// Repository abstracts durable storage of the pool so the persistence
// mechanism is swappable without touching pool logic.
type Repository interface {
	LoadAll(ctx context.Context) ([]*models.ProxyServer, []*models.ProxySource, error)
	SaveAll(ctx context.Context, servers []*models.ProxyServer, sources []*models.ProxySource) error
}

type PoolOptions struct {
	BlockThreshold  int
	SelectionPolicy SelectionPolicy
	HealthBatchSize int
	HealthTargetURL string
	HealthTimeout   time.Duration
}

func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		BlockThreshold:  3,
		SelectionPolicy: PolicyRoundRobin,
		HealthBatchSize: 10,
		HealthTargetURL: "https://httpbin.org/ip",
		HealthTimeout:   10 * time.Second,
	}
}

// Pool is the process-wide proxy pool. All counter mutation happens
// under mu; health-check batches and live traffic report through the
// same path.
type Pool struct {
	mu      sync.Mutex
	servers []*models.ProxyServer
	sources []*models.ProxySource
	cursor  int
	opts    PoolOptions
	repo    Repository
	logger  *slog.Logger
}

func NewPool(opts PoolOptions, repo Repository, logger *slog.Logger) *Pool {
	if opts.BlockThreshold < 1 {
		opts.BlockThreshold = DefaultPoolOptions().BlockThreshold
	}
	if opts.HealthBatchSize < 1 {
		opts.HealthBatchSize = DefaultPoolOptions().HealthBatchSize
	}
	if opts.SelectionPolicy == "" {
		opts.SelectionPolicy = PolicyRoundRobin
	}
	return &Pool{
		opts:   opts,
		repo:   repo,
		logger: logger.With("component", "proxy_pool"),
	}
}

// Load restores the pool from the repository. Called once at startup.
func (p *Pool) Load(ctx context.Context) error {
	if p.repo == nil {
		return nil
	}
	servers, sources, err := p.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load proxy pool: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.servers = servers
	p.sources = sources
	p.logger.Info("proxy pool loaded", "servers", len(servers), "sources", len(sources))
	return nil
}

// Persist writes the current pool back to the repository.
func (p *Pool) Persist(ctx context.Context) error {
	if p.repo == nil {
		return nil
	}
	p.mu.Lock()
	servers := clone(p.servers)
	sources := cloneSources(p.sources)
	p.mu.Unlock()
	if err := p.repo.SaveAll(ctx, servers, sources); err != nil {
		return fmt.Errorf("failed to persist proxy pool: %w", err)
	}
	return nil
}

// Add merges servers into the pool, keyed by host:port. Existing entries
// keep their counters.
func (p *Pool) Add(servers ...*models.ProxyServer) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	known := make(map[string]bool, len(p.servers))
	for _, s := range p.servers {
		known[s.Address()] = true
	}

	added := 0
	for _, s := range servers {
		if known[s.Address()] {
			continue
		}
		if s.Status == "" {
			s.Status = models.ProxyActive
		}
		p.servers = append(p.servers, s)
		known[s.Address()] = true
		added++
	}
	return added
}

// Next hands out the proxy for the next outbound call, or nil when no
// active proxy is available (callers then go direct).
func (p *Pool) Next() *models.ProxyServer {
	p.mu.Lock()
	defer p.mu.Unlock()

	active := p.activeLocked()
	if len(active) == 0 {
		return nil
	}

	var chosen *models.ProxyServer
	switch p.opts.SelectionPolicy {
	case PolicyHealthWeighted:
		chosen = bestScored(active)
	default:
		chosen = active[p.cursor%len(active)]
		p.cursor = (p.cursor + 1) % len(active)
	}

	chosen.LastUsed = time.Now()
	out := *chosen
	return &out
}

func (p *Pool) activeLocked() []*models.ProxyServer {
	active := make([]*models.ProxyServer, 0, len(p.servers))
	for _, s := range p.servers {
		if s.Status == models.ProxyActive {
			active = append(active, s)
		}
	}
	return active
}

// score implements the health-weighted policy: mostly success rate, with
// a recency bias that favors proxies rested the longest.
func score(s *models.ProxyServer) float64 {
	return 0.7*s.SuccessRate() + 0.3*recencyBias(s.LastUsed)
}

func recencyBias(lastUsed time.Time) float64 {
	if lastUsed.IsZero() {
		return 1
	}
	idle := time.Since(lastUsed)
	if idle >= 10*time.Minute {
		return 1
	}
	return float64(idle) / float64(10*time.Minute)
}

func bestScored(active []*models.ProxyServer) *models.ProxyServer {
	sort.SliceStable(active, func(i, j int) bool {
		return score(active[i]) > score(active[j])
	})
	return active[0]
}

// ReportResult records the outcome of one outbound attempt through the
// proxy at host:port. A success clears the consecutive-failure counter;
// a failure at the block threshold transitions the proxy to blocked.
func (p *Pool) ReportResult(host string, port int, success bool, responseTime time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", host, port)
	for _, s := range p.servers {
		if s.Address() != addr {
			continue
		}
		if success {
			s.SuccessCount++
			s.ConsecutiveFail = 0
			if responseTime > 0 {
				ms := float64(responseTime.Milliseconds())
				if s.AvgResponseMs == 0 {
					s.AvgResponseMs = ms
				} else {
					s.AvgResponseMs = s.AvgResponseMs*0.8 + ms*0.2
				}
			}
			if s.Status == models.ProxyError {
				s.Status = models.ProxyActive
			}
		} else {
			s.FailureCount++
			s.ConsecutiveFail++
			if s.ConsecutiveFail >= p.opts.BlockThreshold && s.Status != models.ProxyBlocked {
				s.Status = models.ProxyBlocked
				p.logger.Warn("proxy blocked",
					"proxy", addr,
					"consecutive_failures", s.ConsecutiveFail,
				)
			}
		}
		return
	}
}

// ResetBlocked returns every blocked proxy to the active set and zeroes
// its failure counters. This and a passing health check are the only
// ways out of the blocked state.
func (p *Pool) ResetBlocked() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	reset := 0
	for _, s := range p.servers {
		if s.Status == models.ProxyBlocked {
			s.Status = models.ProxyActive
			s.ConsecutiveFail = 0
			reset++
		}
	}
	if reset > 0 {
		p.logger.Info("blocked proxies reset", "count", reset)
	}
	return reset
}

// Stats is the pool health snapshot exposed over the API.
type Stats struct {
	Total    int                  `json:"total"`
	Active   int                  `json:"active"`
	Blocked  int                  `json:"blocked"`
	Errored  int                  `json:"errored"`
	BySource map[string]int       `json:"by_source"`
	Servers  []models.ProxyServer `json:"servers,omitempty"`
}

func (p *Pool) Stats(includeServers bool) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Stats{BySource: make(map[string]int)}
	st.Total = len(p.servers)
	for _, s := range p.servers {
		switch s.Status {
		case models.ProxyActive:
			st.Active++
		case models.ProxyBlocked:
			st.Blocked++
		case models.ProxyError:
			st.Errored++
		}
		st.BySource[s.SourceID]++
		if includeServers {
			st.Servers = append(st.Servers, *s)
		}
	}
	return st
}

// Snapshot returns copies of every server for health checking without
// holding the pool lock across network calls.
func (p *Pool) Snapshot() []*models.ProxyServer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return clone(p.servers)
}

func clone(in []*models.ProxyServer) []*models.ProxyServer {
	out := make([]*models.ProxyServer, len(in))
	for i, s := range in {
		cp := *s
		out[i] = &cp
	}
	return out
}

func cloneSources(in []*models.ProxySource) []*models.ProxySource {
	out := make([]*models.ProxySource, len(in))
	for i, s := range in {
		cp := *s
		out[i] = &cp
	}
	return out
}
