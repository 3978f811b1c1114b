package sources

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/leaddev/leadharvester/internal/models"
)

// ListingStrategy is one versioned guess at a source's markup. The
// extractor walks an ordered strategy list and the first one whose
// container selector yields a match wins, which tolerates markup drift
// without a redeploy.
type ListingStrategy struct {
	Container string
	Name      string
	Address   string
	Phone     string
	Website   string
	Rating    string
	Reviews   string
	SourceID  string // attribute holding the source-scoped id, "attr:name" form
}

// ExtractListings applies strategies in order against doc and returns
// the listings from the first strategy that matches at least one
// container.
func ExtractListings(doc *goquery.Document, strategies []ListingStrategy, source string) []models.BusinessRecord {
	for _, strat := range strategies {
		containers := doc.Find(strat.Container)
		if containers.Length() == 0 {
			continue
		}

		var records []models.BusinessRecord
		containers.Each(func(_ int, sel *goquery.Selection) {
			rec := extractOne(sel, strat, source)
			if rec.Name != "" {
				records = append(records, rec)
			}
		})
		if len(records) > 0 {
			return records
		}
	}
	return nil
}

func extractOne(sel *goquery.Selection, strat ListingStrategy, source string) models.BusinessRecord {
	rec := models.BusinessRecord{
		ScrapeSource: source,
		ScrapedAt:    time.Now().UTC(),
	}

	rec.Name = cleanText(sel.Find(strat.Name).First().Text())
	if strat.Address != "" {
		rec.Address = cleanText(sel.Find(strat.Address).First().Text())
	}
	if strat.Phone != "" {
		rec.Phone = cleanText(sel.Find(strat.Phone).First().Text())
	}
	if strat.Website != "" {
		if href, ok := sel.Find(strat.Website).First().Attr("href"); ok {
			rec.Website = strings.TrimSpace(href)
		}
	}
	if strat.Rating != "" {
		rec.Rating = parseRating(sel.Find(strat.Rating).First())
	}
	if strat.Reviews != "" {
		rec.ReviewCount = parseCount(sel.Find(strat.Reviews).First().Text())
	}

	rec.SourceID = extractSourceID(sel, strat)
	if rec.SourceID == "" {
		rec.SourceID = models.NormalizeName(rec.Name)
	}

	return rec
}

func extractSourceID(sel *goquery.Selection, strat ListingStrategy) string {
	if !strings.HasPrefix(strat.SourceID, "attr:") {
		return ""
	}
	attr := strings.TrimPrefix(strat.SourceID, "attr:")
	if v, ok := sel.Attr(attr); ok {
		return v
	}
	return ""
}

var numberRe = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

func parseRating(sel *goquery.Selection) float64 {
	// Prefer an aria-label ("4.5 star rating") over text content.
	text, ok := sel.Attr("aria-label")
	if !ok {
		text = sel.Text()
	}
	m := numberRe.FindString(text)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
	if err != nil || v > 5 {
		return 0
	}
	return v
}

func parseCount(text string) int {
	m := numberRe.FindString(strings.ReplaceAll(text, ",", ""))
	if m == "" {
		return 0
	}
	n, _ := strconv.Atoi(m)
	return n
}

var spaceRe = regexp.MustCompile(`\s+`)

func cleanText(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
