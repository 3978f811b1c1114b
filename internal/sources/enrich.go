package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/leaddev/leadharvester/internal/models"
)

// Enricher crawls a business website for real contact information:
// mailto:/tel: links, team-page name/title pairs and generic inboxes.
// At most maxPages candidate contact pages are visited per business.
type Enricher struct {
	fetcher   *Fetcher
	maxPages  int
	synthetic bool
	logger    *slog.Logger
}

func NewEnricher(fetcher *Fetcher, maxPages int, synthetic bool, logger *slog.Logger) *Enricher {
	if maxPages <= 0 {
		maxPages = 3
	}
	return &Enricher{
		fetcher:   fetcher,
		maxPages:  maxPages,
		synthetic: synthetic,
		logger:    logger.With("component", "enricher"),
	}
}

var contactPathHints = []string{"contact", "about", "team", "people", "staff", "impressum", "kontakt"}

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

var genericInboxPrefixes = []string{"info", "sales", "contact", "office", "hello", "mail", "support"}

// Enrich mutates rec in place. Failures are logged and swallowed; a
// business with an unreachable website simply keeps whatever contacts
// it already has.
func (e *Enricher) Enrich(ctx context.Context, rec *models.BusinessRecord) {
	if rec.Website == "" {
		e.maybeSynthesize(rec)
		return
	}

	base, err := url.Parse(rec.Website)
	if err != nil || base.Host == "" {
		e.maybeSynthesize(rec)
		return
	}

	doc, err := e.fetcher.Get(ctx, "enricher", base.String())
	if err != nil {
		e.logger.Info("website unreachable", "website", rec.Website, "error", err)
		e.maybeSynthesize(rec)
		return
	}

	e.harvest(doc, rec)

	for _, link := range e.contactLinks(doc, base) {
		if ctx.Err() != nil {
			return
		}
		sub, err := e.fetcher.Get(ctx, "enricher", link)
		if err != nil {
			continue
		}
		e.harvest(sub, rec)
	}

	e.maybeSynthesize(rec)
}

// contactLinks returns up to maxPages same-host links that look like
// contact or team pages.
func (e *Enricher) contactLinks(doc *goquery.Document, base *url.URL) []string {
	seen := map[string]bool{}
	var links []string

	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		lower := strings.ToLower(href + " " + sel.Text())

		hinted := false
		for _, hint := range contactPathHints {
			if strings.Contains(lower, hint) {
				hinted = true
				break
			}
		}
		if !hinted {
			return true
		}

		u, err := base.Parse(href)
		if err != nil || (u.Host != base.Host && u.Host != "www."+base.Host) {
			return true
		}
		u.Fragment = ""
		if seen[u.String()] {
			return true
		}
		seen[u.String()] = true
		links = append(links, u.String())
		return len(links) < e.maxPages
	})

	return links
}

func (e *Enricher) harvest(doc *goquery.Document, rec *models.BusinessRecord) {
	// mailto: and tel: links first; they are the strongest signal.
	doc.Find("a[href^='mailto:']").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		email := strings.TrimPrefix(href, "mailto:")
		if i := strings.IndexAny(email, "?&"); i >= 0 {
			email = email[:i]
		}
		e.addEmail(rec, email, 0.7)
	})

	doc.Find("a[href^='tel:']").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		phone := strings.TrimPrefix(href, "tel:")
		if rec.Phone == "" {
			rec.Phone = phone
		}
	})

	// Team-page name/title pairs.
	doc.Find("[class*='team'] , [class*='member'], [class*='staff']").Each(func(_ int, sel *goquery.Selection) {
		name := cleanText(sel.Find("h2, h3, h4, .name").First().Text())
		title := cleanText(sel.Find(".title, .position, .role, p").First().Text())
		if name == "" || len(name) > 80 || name == title {
			return
		}
		email := emailRe.FindString(sel.Text())
		rec.AddContact(models.ContactRecord{
			Name:            name,
			Position:        title,
			Email:           email,
			IsDecisionMaker: models.IsDecisionMakerTitle(title),
			Confidence:      0.6,
		})
	})

	// Any remaining raw emails in the page text.
	for _, email := range emailRe.FindAllString(doc.Text(), 10) {
		e.addEmail(rec, email, 0.4)
	}
}

// addEmail records an address-only contact. Generic inboxes get a lower
// confidence and a descriptive pseudo-name.
func (e *Enricher) addEmail(rec *models.BusinessRecord, email string, confidence float64) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !emailRe.MatchString(email) {
		return
	}
	if strings.HasSuffix(email, ".png") || strings.HasSuffix(email, ".jpg") {
		return
	}

	name := "Contact"
	local := email[:strings.Index(email, "@")]
	for _, prefix := range genericInboxPrefixes {
		if local == prefix {
			name = "General Inbox"
			confidence = confidence * 0.5
			break
		}
	}

	rec.AddContact(models.ContactRecord{
		Name:       name,
		Email:      email,
		Confidence: confidence,
	})
}

// maybeSynthesize appends one clearly-labeled placeholder contact when
// nothing real could be extracted. Off by default; downstream consumers
// must be able to tell fabricated contacts from verified ones, so the
// Synthetic flag is always set here.
func (e *Enricher) maybeSynthesize(rec *models.BusinessRecord) {
	if !e.synthetic || len(rec.Contacts) > 0 {
		return
	}
	rec.AddContact(models.ContactRecord{
		Name:            fmt.Sprintf("%s Owner", strings.TrimSpace(rec.Name)),
		Position:        "Owner",
		IsDecisionMaker: true,
		Confidence:      0.1,
		Synthetic:       true,
	})
}
