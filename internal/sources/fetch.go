package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/leaddev/leadharvester/internal/browser"
	"github.com/leaddev/leadharvester/internal/errs"
	"github.com/leaddev/leadharvester/internal/models"
	"github.com/leaddev/leadharvester/internal/proxy"
)

// Fetcher issues structured (non-browser) requests with a plausible
// browser identity, routed through the proxy pool when one is
// available. Every attempt is reported back to the pool.
type Fetcher struct {
	pool       *proxy.Pool
	userAgents []string
	timeout    time.Duration
	logger     *slog.Logger
}

func NewFetcher(pool *proxy.Pool, userAgents []string, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if len(userAgents) == 0 {
		userAgents = browser.DefaultOptions().UserAgents
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Fetcher{
		pool:       pool,
		userAgents: userAgents,
		timeout:    timeout,
		logger:     logger.With("component", "fetcher"),
	}
}

// Get fetches target and parses the body. Failures come back classified:
// timeouts and refusals as network_timeout, challenge responses as
// blocked, other upstream statuses as upstream_api.
func (f *Fetcher) Get(ctx context.Context, source, target string) (*goquery.Document, error) {
	var proxyServer *models.ProxyServer
	transport := &http.Transport{}
	if f.pool != nil {
		if proxyServer = f.pool.Next(); proxyServer != nil {
			if pu, err := url.Parse(proxyServer.URL()); err == nil {
				transport.Proxy = http.ProxyURL(pu)
			}
		}
	}

	client := &http.Client{Timeout: f.timeout, Transport: transport}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errs.New(errs.KindUpstreamAPI, source, err)
	}
	f.disguise(req)

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		f.report(proxyServer, false, elapsed)
		if isTimeout(err) {
			return nil, errs.New(errs.KindNetworkTimeout, source, err)
		}
		return nil, errs.New(errs.KindNetworkTimeout, source, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		f.report(proxyServer, false, elapsed)
		return nil, errs.New(errs.KindNetworkTimeout, source, fmt.Errorf("failed to read body: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusServiceUnavailable:
		f.report(proxyServer, false, elapsed)
		return nil, errs.Newf(errs.KindBlocked, source, "status %d from %s", resp.StatusCode, target)
	case resp.StatusCode >= 400:
		f.report(proxyServer, false, elapsed)
		return nil, errs.Newf(errs.KindUpstreamAPI, source, "status %d from %s", resp.StatusCode, target)
	}

	if browser.ContainsBlockSignature(string(body)) {
		f.report(proxyServer, false, elapsed)
		return nil, errs.Newf(errs.KindBlocked, source, "block signature in response from %s", target)
	}

	f.report(proxyServer, true, elapsed)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, errs.New(errs.KindParseMismatch, source, err)
	}
	return doc, nil
}

func (f *Fetcher) disguise(req *http.Request) {
	ua := f.userAgents[rand.Intn(len(f.userAgents))]
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

func (f *Fetcher) report(p *models.ProxyServer, success bool, elapsed time.Duration) {
	if p == nil || f.pool == nil {
		return
	}
	f.pool.ReportResult(p.Host, p.Port, success, elapsed)
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
