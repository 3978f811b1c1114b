package browser

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/leaddev/leadharvester/internal/ratelimit"
)

type session struct {
	pw         *playwright.Playwright
	browser    playwright.Browser
	context    playwright.BrowserContext
	page       playwright.Page
	minDelay   time.Duration
	maxDelay   time.Duration
	navTimeout time.Duration
	logger     *slog.Logger
}

func (s *session) randomDelay(ctx context.Context) error {
	return ratelimit.Sleep(ctx, s.minDelay, s.maxDelay)
}

// Navigate loads url with camouflage pauses before and after. Responses
// with status >=400 are logged with headers and a truncated body so
// selector drift and blocks stay diagnosable.
func (s *session) Navigate(ctx context.Context, url string) error {
	if err := s.randomDelay(ctx); err != nil {
		return err
	}

	resp, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.navTimeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	if resp != nil && resp.Status() >= 400 {
		headers := resp.Headers()
		body := ""
		if raw, berr := resp.Body(); berr == nil {
			body = string(raw)
			if len(body) > 512 {
				body = body[:512]
			}
		}
		s.logger.Warn("navigation returned error status",
			"url", url,
			"status", resp.Status(),
			"headers", headers,
			"body", body,
		)
	}

	return s.randomDelay(ctx)
}

// Type fills selector one character at a time with a per-character
// randomized pause, imitating human input.
func (s *session) Type(ctx context.Context, selector, text string) error {
	locator := s.page.Locator(selector).First()
	if err := locator.Click(); err != nil {
		return fmt.Errorf("failed to focus %s: %w", selector, err)
	}

	for _, r := range text {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := locator.PressSequentially(string(r)); err != nil {
			return fmt.Errorf("failed to type into %s: %w", selector, err)
		}
		time.Sleep(time.Duration(50+rand.Intn(120)) * time.Millisecond)
	}
	return nil
}

func (s *session) Click(ctx context.Context, selector string) error {
	if err := ratelimit.Sleep(ctx, 150*time.Millisecond, 550*time.Millisecond); err != nil {
		return err
	}
	if err := s.page.Locator(selector).First().Click(); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}

// WaitForSelector returns false instead of propagating a timeout; the
// caller decides whether a missing container means drift or a block.
func (s *session) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	_, err := s.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
		State:   playwright.WaitForSelectorStateVisible,
	})
	return err == nil
}

var captchaSelectors = []string{
	"iframe[src*='recaptcha']",
	"iframe[src*='hcaptcha']",
	"#captcha",
	".g-recaptcha",
	"form#challenge-form",
	"#cf-challenge-running",
}

var blockKeywords = []string{
	"verify you are human",
	"unusual traffic",
	"access denied",
	"are you a robot",
	"captcha",
	"rate limited",
	"temporarily blocked",
	"request blocked",
	"enable javascript and cookies",
}

// DetectBlock checks known challenge selectors first, then the page
// title and body text against the block vocabulary.
func (s *session) DetectBlock(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	for _, sel := range captchaSelectors {
		count, err := s.page.Locator(sel).Count()
		if err == nil && count > 0 {
			s.logger.Info("block detected via selector", "selector", sel)
			return true
		}
	}

	title, _ := s.page.Title()
	body, err := s.page.Locator("body").First().TextContent()
	if err != nil {
		body = ""
	}

	return ContainsBlockSignature(title + " " + body)
}

// ContainsBlockSignature reports whether text matches the block-keyword
// vocabulary. Exposed as a pure function for testing and for classifying
// structured-fetch responses without a live page.
func ContainsBlockSignature(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range blockKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (s *session) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	content, err := s.page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}
	return content, nil
}

func (s *session) Evaluate(ctx context.Context, script string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := s.page.Evaluate(script)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate script: %w", err)
	}
	return result, nil
}

func (s *session) Screenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to take screenshot: %w", err)
	}
	return nil
}

func (s *session) Close() error {
	var errs []error

	if s.context != nil {
		if err := s.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}
