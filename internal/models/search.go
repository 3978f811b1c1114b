package models

import (
	"strings"
	"time"

	"github.com/leaddev/leadharvester/internal/errs"
)

// SearchParams describes one lead-discovery request. Immutable per
// request; adapters receive it by value.
type SearchParams struct {
	Query              string        `json:"query"`
	Location           string        `json:"location,omitempty"`
	Industry           string        `json:"industry,omitempty"`
	MaxResults         int           `json:"max_results,omitempty"`
	DecisionMakersOnly bool          `json:"decision_makers_only,omitempty"`
	AntiDetection      bool          `json:"anti_detection,omitempty"`
	MinDelay           time.Duration `json:"min_delay,omitempty"`
	MaxDelay           time.Duration `json:"max_delay,omitempty"`
}

// EffectiveQuery is the string actually sent to sources: the explicit
// query, or the industry hint when no query was given.
func (p SearchParams) EffectiveQuery() string {
	if q := strings.TrimSpace(p.Query); q != "" {
		return q
	}
	return strings.TrimSpace(p.Industry)
}

// Validate returns a validation-kind error when no usable query can be
// constructed from the input. This is the only error surfaced to the
// caller before any adapter runs.
func (p SearchParams) Validate() error {
	if p.EffectiveQuery() == "" {
		return errs.Newf(errs.KindValidation, "search", "neither query nor industry given")
	}
	if p.MaxResults < 0 {
		return errs.Newf(errs.KindValidation, "search", "max_results must not be negative")
	}
	if p.MinDelay > p.MaxDelay && p.MaxDelay != 0 {
		return errs.Newf(errs.KindValidation, "search", "min_delay greater than max_delay")
	}
	return nil
}
