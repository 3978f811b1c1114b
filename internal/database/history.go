package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leaddev/leadharvester/internal/models"
)

// HistoryRepo records finished executions for the "saved searches" view
// and for support lookups by correlation id.
type HistoryRepo struct {
	db       *DB
	business *BusinessRepo
}

func NewHistoryRepo(db *DB, business *BusinessRepo) *HistoryRepo {
	return &HistoryRepo{db: db, business: business}
}

// Record implements orchestrator.HistoryRecorder.
func (r *HistoryRepo) Record(ctx context.Context, log *models.ExecutionLog, businesses []models.BusinessRecord) error {
	logJSON, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to marshal execution log: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO search_history
		(execution_id, query, location, industry, status, result_count, execution_log, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (execution_id) DO NOTHING
	`, log.ID, log.Params.Query, log.Params.Location, log.Params.Industry,
		string(log.Status), len(businesses), logJSON, log.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to record search history: %w", err)
	}

	if r.business != nil && len(businesses) > 0 {
		if err := r.business.SaveResults(ctx, log.ID, businesses); err != nil {
			return fmt.Errorf("failed to save results: %w", err)
		}
	}
	return nil
}

// HistoryEntry is the list row for saved searches.
type HistoryEntry struct {
	ExecutionID string    `json:"execution_id"`
	Query       string    `json:"query"`
	Location    string    `json:"location,omitempty"`
	Industry    string    `json:"industry,omitempty"`
	Status      string    `json:"status"`
	ResultCount int       `json:"result_count"`
	CreatedAt   time.Time `json:"created_at"`
}

func (r *HistoryRepo) List(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT execution_id, query, location, industry, status, result_count, created_at
		FROM search_history
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list search history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ExecutionID, &e.Query, &e.Location, &e.Industry,
			&e.Status, &e.ResultCount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get fetches the full execution log for one correlation id.
func (r *HistoryRepo) Get(ctx context.Context, executionID string) (*models.ExecutionLog, error) {
	var raw []byte
	err := r.db.QueryRow(ctx,
		`SELECT execution_log FROM search_history WHERE execution_id = $1`,
		executionID,
	).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("failed to get execution log: %w", err)
	}

	var log models.ExecutionLog
	if err := json.Unmarshal(raw, &log); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution log: %w", err)
	}
	return &log, nil
}
