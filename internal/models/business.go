package models

import (
	"strings"
	"time"
	"unicode"
)

// BusinessRecord is the normalized shape every source adapter produces.
// SourceID is only meaningful within the source named by ScrapeSource;
// cross-source de-duplication uses DedupKey, never identity equality.
type BusinessRecord struct {
	SourceID     string          `json:"source_id"`
	Name         string          `json:"name"`
	Address      string          `json:"address,omitempty"`
	Phone        string          `json:"phone,omitempty"`
	Website      string          `json:"website,omitempty"`
	Categories   []string        `json:"categories,omitempty"`
	Rating       float64         `json:"rating,omitempty"`
	ReviewCount  int             `json:"review_count,omitempty"`
	ScrapeSource string          `json:"scrape_source"`
	ScrapedAt    time.Time       `json:"scraped_at"`
	Contacts     []ContactRecord `json:"contacts,omitempty"`
}

// ContactRecord is a person (or inbox) attached to a business.
// Synthetic marks placeholder contacts fabricated when no public contact
// could be extracted; they are never mixed silently with real ones.
type ContactRecord struct {
	Name            string  `json:"name"`
	Position        string  `json:"position,omitempty"`
	Email           string  `json:"email,omitempty"`
	Phone           string  `json:"phone,omitempty"`
	IsDecisionMaker bool    `json:"is_decision_maker"`
	Confidence      float64 `json:"confidence"`
	Synthetic       bool    `json:"synthetic,omitempty"`
}

var legalSuffixes = []string{"llc", "inc", "ltd", "gmbh", "co", "corp", "company", "plc"}

// DedupKey returns the cross-source identity used for de-duplication:
// the normalized name plus the first locality token of the address.
func (b BusinessRecord) DedupKey() string {
	return NormalizeName(b.Name) + "|" + localityToken(b.Address)
}

// NormalizeName lowercases, strips punctuation and removes trailing
// legal-form suffixes so "Joe's Plumbing, LLC" matches "Joes Plumbing".
func NormalizeName(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			sb.WriteRune(r)
		}
	}
	fields := strings.Fields(sb.String())
	for len(fields) > 0 {
		last := fields[len(fields)-1]
		suffix := false
		for _, s := range legalSuffixes {
			if last == s {
				suffix = true
				break
			}
		}
		if !suffix {
			break
		}
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

func localityToken(address string) string {
	parts := strings.Split(address, ",")
	if len(parts) < 2 {
		return strings.ToLower(strings.TrimSpace(address))
	}
	// Second component is the city in "street, city, region" shapes.
	return strings.ToLower(strings.TrimSpace(parts[1]))
}

// AddContact appends c unless an identical (name, email) pair is already
// present.
func (b *BusinessRecord) AddContact(c ContactRecord) {
	for _, existing := range b.Contacts {
		if strings.EqualFold(existing.Name, c.Name) && strings.EqualFold(existing.Email, c.Email) {
			return
		}
	}
	b.Contacts = append(b.Contacts, c)
}

var decisionMakerTitles = []string{
	"ceo", "cto", "cfo", "coo", "owner", "founder", "co-founder",
	"president", "director", "head of", "managing", "principal",
	"partner", "vp", "vice president", "geschäftsführer", "inhaber",
}

// IsDecisionMakerTitle reports whether a job title matches the
// decision-maker keyword vocabulary. Heuristic, not ground truth.
func IsDecisionMakerTitle(title string) bool {
	t := strings.ToLower(title)
	for _, kw := range decisionMakerTitles {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}
