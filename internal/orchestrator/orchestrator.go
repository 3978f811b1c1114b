// Package orchestrator runs the adapter fallback chain: sources are
// tried sequentially in priority order and the first non-empty,
// de-duplicated result set wins. Every attempt lands in the execution
// log so a support engineer can reconstruct what happened from the
// correlation id alone.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/leaddev/leadharvester/internal/errs"
	"github.com/leaddev/leadharvester/internal/models"
	"github.com/leaddev/leadharvester/internal/sources"
)

// HistoryRecorder persists finished executions. Best effort; a failed
// write never fails a search.
type HistoryRecorder interface {
	Record(ctx context.Context, log *models.ExecutionLog, businesses []models.BusinessRecord) error
}

type Options struct {
	MaxAttempts int // request-level retries of the whole chain
}

type Orchestrator struct {
	adapters []sources.Adapter
	history  HistoryRecorder
	opts     Options
	logger   *slog.Logger
}

// New wires the chain in the given priority order. The industry
// directory adapter, when present, is gated by GateIndustry below.
func New(adapters []sources.Adapter, history HistoryRecorder, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Orchestrator{
		adapters: adapters,
		history:  history,
		opts:     opts,
		logger:   logger.With("component", "orchestrator"),
	}
}

// Result is what the route layer receives: the records plus the full
// diagnostic log. An empty Businesses slice with a no_results status is
// a normal outcome, not an error.
type Result struct {
	Businesses []models.BusinessRecord `json:"businesses"`
	Log        *models.ExecutionLog    `json:"execution_log"`
}

// Search validates params, then walks the adapter chain up to
// MaxAttempts times. Validation failures are the only errors returned
// directly; adapter failures are recovered into the log.
func (o *Orchestrator) Search(ctx context.Context, params models.SearchParams) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	log := models.NewExecutionLog(params)

	var businesses []models.BusinessRecord
	for attempt := 0; attempt < o.opts.MaxAttempts; attempt++ {
		businesses = o.runChain(ctx, params, log)
		if len(businesses) > 0 || ctx.Err() != nil {
			break
		}
	}

	switch {
	case len(businesses) > 0:
		log.Status = models.ExecutionCompleted
	case log.Errored():
		log.Status = models.ExecutionFailed
	default:
		log.Status = models.ExecutionNoResults
	}

	o.logger.Info("search finished",
		"execution_id", log.ID,
		"status", log.Status,
		"results", len(businesses),
		"attempts", len(log.Attempts),
	)

	if o.history != nil {
		if err := o.history.Record(ctx, log, businesses); err != nil {
			o.logger.Warn("failed to record search history", "execution_id", log.ID, "error", err)
		}
	}

	return &Result{Businesses: businesses, Log: log}, nil
}

// runChain tries each adapter once and short-circuits on the first
// non-empty result set.
func (o *Orchestrator) runChain(ctx context.Context, params models.SearchParams, log *models.ExecutionLog) []models.BusinessRecord {
	for _, adapter := range o.adapters {
		if skip, reason := o.gate(adapter, params); skip {
			log.AddAttempt(models.AttemptRecord{
				Source: adapter.Name(),
				Status: models.AttemptSkipped,
				Error:  reason,
			})
			continue
		}

		start := time.Now()
		res, err := adapter.Search(ctx, params)
		elapsed := time.Since(start)

		if err != nil {
			log.AddAttempt(models.AttemptRecord{
				Source:   adapter.Name(),
				Method:   res.Method,
				Status:   models.AttemptError,
				Error:    err.Error(),
				Duration: elapsed,
			})
			o.logger.Warn("adapter failed",
				"source", adapter.Name(),
				"kind", errs.KindOf(err),
				"error", err,
			)
			continue
		}

		if len(res.Records) == 0 {
			log.AddAttempt(models.AttemptRecord{
				Source:   adapter.Name(),
				Method:   res.Method,
				Status:   models.AttemptEmpty,
				Duration: elapsed,
			})
			continue
		}

		records := Deduplicate(res.Records)
		log.AddAttempt(models.AttemptRecord{
			Source:   adapter.Name(),
			Method:   res.Method,
			Status:   models.AttemptSuccess,
			Duration: elapsed,
		})
		log.AddSummary(adapter.Name(), len(records))

		o.enrichTop(ctx, adapter, records)
		return records
	}
	return nil
}

// gate implements the chain's conditional entries: the industry
// directory only runs when an industry hint was given without an
// explicit company-name query.
func (o *Orchestrator) gate(adapter sources.Adapter, params models.SearchParams) (bool, string) {
	if adapter.Name() == sources.SourceIndustry {
		if params.Industry == "" || params.Query != "" {
			return true, "no industry hint or explicit query given"
		}
	}
	return false, ""
}

// enrichTop issues one GetDetails call for the top-ranked candidate and
// merges the richer record in place.
func (o *Orchestrator) enrichTop(ctx context.Context, adapter sources.Adapter, records []models.BusinessRecord) {
	top := &records[0]
	details, err := adapter.GetDetails(ctx, top.SourceID)
	if err != nil {
		o.logger.Info("details fetch failed", "source", adapter.Name(), "source_id", top.SourceID, "error", err)
		return
	}
	if details == nil {
		return
	}

	if details.Phone != "" {
		top.Phone = details.Phone
	}
	if details.Website != "" {
		top.Website = details.Website
	}
	if details.Address != "" {
		top.Address = details.Address
	}
	if details.Rating > 0 {
		top.Rating = details.Rating
	}
	if details.ReviewCount > 0 {
		top.ReviewCount = details.ReviewCount
	}
	for _, c := range details.Contacts {
		top.AddContact(c)
	}
}

// Deduplicate collapses records that share a normalized name and
// locality, keeping the first occurrence. Source identity is ignored on
// purpose; two sources listing the same business must fold to one row.
func Deduplicate(records []models.BusinessRecord) []models.BusinessRecord {
	seen := make(map[string]bool, len(records))
	out := records[:0]
	for _, r := range records {
		key := r.DedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}
