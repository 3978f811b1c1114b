// Package browser manages single-use anti-detection browser sessions.
// A session is created for one logical scraping operation and torn down
// afterward; sessions are never pooled, so one burned identity cannot
// taint the next request.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Session is the primitive surface adapters drive. Implementations must
// be single-owner for their lifetime.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Type(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) bool
	DetectBlock(ctx context.Context) bool
	Content(ctx context.Context) (string, error)
	Evaluate(ctx context.Context, script string) (any, error)
	Screenshot(ctx context.Context, path string) error
	Close() error
}

// Factory creates sessions. Adapters depend on this interface so tests
// can substitute a fake.
type Factory interface {
	NewSession(ctx context.Context, opts SessionOptions) (Session, error)
}

type SessionOptions struct {
	ProxyURL string
	MinDelay time.Duration
	MaxDelay time.Duration
}

type Options struct {
	Headless       bool
	NavTimeout     time.Duration
	SelectorWait   time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	UserAgents     []string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		NavTimeout:     30 * time.Second,
		SelectorWait:   10 * time.Second,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "en-US,en;q=0.9",
		TimezoneID:     "America/New_York",
		Locale:         "en-US",
		UserAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		},
	}
}

// Manager launches hardened playwright sessions with a randomized
// identity per session.
type Manager struct {
	opts   *Options
	logger *slog.Logger
}

func NewManager(opts *Options, logger *slog.Logger) *Manager {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Manager{
		opts:   opts,
		logger: logger.With("component", "browser"),
	}
}

// stealthScript masks the usual automation tells before any page script
// runs.
const stealthScript = `() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
	Object.defineProperty(navigator, 'plugins', {
		get: () => [1, 2, 3, 4, 5],
	});
	Object.defineProperty(navigator, 'languages', {
		get: () => ['en-US', 'en'],
	});
	Object.defineProperty(navigator, 'platform', { get: () => 'Win32' });
	window.chrome = window.chrome || { runtime: {} };
}`

func (m *Manager) NewSession(ctx context.Context, opts SessionOptions) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	userAgent := m.opts.UserAgents[rand.Intn(len(m.opts.UserAgents))]

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &m.opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			fmt.Sprintf("--window-size=%d,%d", m.opts.ViewportWidth, m.opts.ViewportHeight),
			"--user-agent=" + userAgent,
		},
	}

	if opts.ProxyURL != "" {
		launchOpts.Proxy = &playwright.Proxy{Server: opts.ProxyURL}
	}

	b, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browserCtx, err := b.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         &userAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &m.opts.Locale,
		TimezoneId:        &m.opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  m.opts.ViewportWidth,
			Height: m.opts.ViewportHeight,
		},
		ExtraHttpHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language": m.opts.AcceptLanguage,
			"DNT":             "1",
		},
	})
	if err != nil {
		b.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	if err := browserCtx.AddInitScript(playwright.Script{Content: playwright.String(stealthScript)}); err != nil {
		browserCtx.Close()
		b.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to install init script: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		b.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(m.opts.NavTimeout.Milliseconds()))

	minDelay, maxDelay := opts.MinDelay, opts.MaxDelay
	if maxDelay == 0 {
		minDelay, maxDelay = 500*time.Millisecond, 2*time.Second
	}

	return &session{
		pw:         pw,
		browser:    b,
		context:    browserCtx,
		page:       page,
		minDelay:   minDelay,
		maxDelay:   maxDelay,
		navTimeout: m.opts.NavTimeout,
		logger:     m.logger.With("user_agent", userAgent),
	}, nil
}
