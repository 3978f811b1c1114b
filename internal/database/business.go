package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/leaddev/leadharvester/internal/models"
)

// BusinessRepo persists discovered businesses and their contacts.
type BusinessRepo struct {
	db *DB
}

func NewBusinessRepo(db *DB) *BusinessRepo {
	return &BusinessRepo{db: db}
}

// SaveResults upserts every record of one execution. Businesses are
// keyed by (scrape_source, source_id); re-discovering a business
// refreshes its fields and replaces its contacts.
func (r *BusinessRepo) SaveResults(ctx context.Context, executionID string, records []models.BusinessRecord) error {
	for _, rec := range records {
		categories, err := json.Marshal(rec.Categories)
		if err != nil {
			return fmt.Errorf("failed to marshal categories: %w", err)
		}

		var businessID int64
		err = r.db.QueryRow(ctx, `
			INSERT INTO businesses
			(source_id, scrape_source, name, address, phone, website, categories,
			 rating, review_count, scraped_at, execution_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (scrape_source, source_id) DO UPDATE SET
				name = EXCLUDED.name,
				address = EXCLUDED.address,
				phone = EXCLUDED.phone,
				website = EXCLUDED.website,
				categories = EXCLUDED.categories,
				rating = EXCLUDED.rating,
				review_count = EXCLUDED.review_count,
				scraped_at = EXCLUDED.scraped_at,
				execution_id = EXCLUDED.execution_id
			RETURNING id
		`, rec.SourceID, rec.ScrapeSource, rec.Name, rec.Address, rec.Phone,
			rec.Website, categories, rec.Rating, rec.ReviewCount, rec.ScrapedAt, executionID,
		).Scan(&businessID)
		if err != nil {
			return fmt.Errorf("failed to upsert business %s: %w", rec.Name, err)
		}

		if _, err := r.db.Exec(ctx, `DELETE FROM contacts WHERE business_id = $1`, businessID); err != nil {
			return fmt.Errorf("failed to clear contacts: %w", err)
		}

		for _, c := range rec.Contacts {
			_, err := r.db.Exec(ctx, `
				INSERT INTO contacts
				(business_id, name, position, email, phone, is_decision_maker, confidence, synthetic)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, businessID, c.Name, c.Position, c.Email, c.Phone, c.IsDecisionMaker, c.Confidence, c.Synthetic)
			if err != nil {
				return fmt.Errorf("failed to insert contact %s: %w", c.Name, err)
			}
		}
	}
	return nil
}
