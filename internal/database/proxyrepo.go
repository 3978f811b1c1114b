package database

import (
	"context"
	"fmt"
	"time"

	"github.com/leaddev/leadharvester/internal/models"
)

// ProxyRepo is the durable store behind the proxy pool, so counters and
// blocked status survive a restart. Implements proxy.Repository.
type ProxyRepo struct {
	db *DB
}

func NewProxyRepo(db *DB) *ProxyRepo {
	return &ProxyRepo{db: db}
}

func (r *ProxyRepo) LoadAll(ctx context.Context) ([]*models.ProxyServer, []*models.ProxySource, error) {
	rows, err := r.db.Query(ctx, `
		SELECT protocol, host, port, username, password, source_id,
		       success_count, failure_count, consecutive_fail, avg_response_ms,
		       status, country, city, last_used, last_checked
		FROM proxy_servers
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load proxy servers: %w", err)
	}
	defer rows.Close()

	var servers []*models.ProxyServer
	for rows.Next() {
		s := &models.ProxyServer{}
		var status string
		if err := rows.Scan(&s.Protocol, &s.Host, &s.Port, &s.Username, &s.Password,
			&s.SourceID, &s.SuccessCount, &s.FailureCount, &s.ConsecutiveFail,
			&s.AvgResponseMs, &status, &s.Country, &s.City, &s.LastUsed, &s.LastChecked); err != nil {
			return nil, nil, fmt.Errorf("failed to scan proxy server: %w", err)
		}
		s.Status = models.ProxyStatus(status)
		servers = append(servers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	srcRows, err := r.db.Query(ctx, `
		SELECT id, kind, endpoint, api_key, refresh_every_seconds, status, last_refreshed
		FROM proxy_sources
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load proxy sources: %w", err)
	}
	defer srcRows.Close()

	var sources []*models.ProxySource
	for srcRows.Next() {
		src := &models.ProxySource{}
		var kind, status string
		var refreshSeconds int64
		if err := srcRows.Scan(&src.ID, &kind, &src.Endpoint, &src.APIKey,
			&refreshSeconds, &status, &src.LastRefreshed); err != nil {
			return nil, nil, fmt.Errorf("failed to scan proxy source: %w", err)
		}
		src.Kind = models.ProxySourceKind(kind)
		src.Status = models.ProxySourceStatus(status)
		src.RefreshEvery = secondsToDuration(refreshSeconds)
		sources = append(sources, src)
	}
	return servers, sources, srcRows.Err()
}

func (r *ProxyRepo) SaveAll(ctx context.Context, servers []*models.ProxyServer, sources []*models.ProxySource) error {
	for _, s := range servers {
		_, err := r.db.Exec(ctx, `
			INSERT INTO proxy_servers
			(protocol, host, port, username, password, source_id,
			 success_count, failure_count, consecutive_fail, avg_response_ms,
			 status, country, city, last_used, last_checked)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (host, port) DO UPDATE SET
				success_count = EXCLUDED.success_count,
				failure_count = EXCLUDED.failure_count,
				consecutive_fail = EXCLUDED.consecutive_fail,
				avg_response_ms = EXCLUDED.avg_response_ms,
				status = EXCLUDED.status,
				last_used = EXCLUDED.last_used,
				last_checked = EXCLUDED.last_checked
		`, s.Protocol, s.Host, s.Port, s.Username, s.Password, s.SourceID,
			s.SuccessCount, s.FailureCount, s.ConsecutiveFail, s.AvgResponseMs,
			string(s.Status), s.Country, s.City, s.LastUsed, s.LastChecked)
		if err != nil {
			return fmt.Errorf("failed to save proxy %s: %w", s.Address(), err)
		}
	}

	for _, src := range sources {
		_, err := r.db.Exec(ctx, `
			INSERT INTO proxy_sources
			(id, kind, endpoint, api_key, refresh_every_seconds, status, last_refreshed)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				status = EXCLUDED.status,
				last_refreshed = EXCLUDED.last_refreshed
		`, src.ID, string(src.Kind), src.Endpoint, src.APIKey,
			int64(src.RefreshEvery.Seconds()), string(src.Status), src.LastRefreshed)
		if err != nil {
			return fmt.Errorf("failed to save proxy source %s: %w", src.ID, err)
		}
	}
	return nil
}

func secondsToDuration(s int64) time.Duration {
	return time.Duration(s) * time.Second
}
