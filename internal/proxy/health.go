package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/leaddev/leadharvester/internal/models"
)

// CheckHealth probes every proxy in the pool against the configured
// target URL in batches of HealthBatchSize. Latency and status are
// recorded through the same path as live-traffic results, so a passing
// check reactivates a blocked proxy and a failing one counts toward the
// block threshold.
func (p *Pool) CheckHealth(ctx context.Context) (Stats, error) {
	servers := p.Snapshot()
	batch := p.opts.HealthBatchSize

	for start := 0; start < len(servers); start += batch {
		end := start + batch
		if end > len(servers) {
			end = len(servers)
		}

		results := make(chan struct{}, end-start)
		for _, s := range servers[start:end] {
			go func(s *models.ProxyServer) {
				defer func() { results <- struct{}{} }()
				ok, latency := p.probe(ctx, s)
				if ok && s.Status == models.ProxyBlocked {
					p.reactivate(s.Host, s.Port)
				}
				p.ReportResult(s.Host, s.Port, ok, latency)
				p.markChecked(s.Host, s.Port)
			}(s)
		}
		for range servers[start:end] {
			select {
			case <-results:
			case <-ctx.Done():
				return p.Stats(false), ctx.Err()
			}
		}
	}

	stats := p.Stats(false)
	p.logger.Info("health check complete",
		"total", stats.Total,
		"active", stats.Active,
		"blocked", stats.Blocked,
	)
	return stats, nil
}

func (p *Pool) probe(ctx context.Context, s *models.ProxyServer) (bool, time.Duration) {
	proxyURL, err := url.Parse(s.URL())
	if err != nil {
		return false, 0
	}

	client := &http.Client{
		Timeout: p.opts.HealthTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.opts.HealthTargetURL, nil)
	if err != nil {
		return false, 0
	}

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return false, latency
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 400, latency
}

// reactivate moves a blocked proxy back to active after a passing probe.
// ReportResult alone never unblocks.
func (p *Pool) reactivate(host string, port int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", host, port)
	for _, s := range p.servers {
		if s.Address() == addr && s.Status == models.ProxyBlocked {
			s.Status = models.ProxyActive
			s.ConsecutiveFail = 0
			p.logger.Info("proxy reactivated by health check", "proxy", addr)
			return
		}
	}
}

func (p *Pool) markChecked(host string, port int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", host, port)
	for _, s := range p.servers {
		if s.Address() == addr {
			s.LastChecked = time.Now()
			return
		}
	}
}
