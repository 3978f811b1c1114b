// Package selftest exercises the search pipeline with canned queries
// and classifies failures so operators can tell a CAPTCHA wall from
// selector drift without reading raw logs.
package selftest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/leaddev/leadharvester/internal/errs"
	"github.com/leaddev/leadharvester/internal/models"
	"github.com/leaddev/leadharvester/internal/orchestrator"
)

// Searcher is the slice of the orchestrator the runner needs.
type Searcher interface {
	Search(ctx context.Context, params models.SearchParams) (*orchestrator.Result, error)
}

// Diagnosis labels a failed case with one cause from a fixed taxonomy.
type Diagnosis string

const (
	DiagBlocked       Diagnosis = "blocked"
	DiagConnection    Diagnosis = "connection"
	DiagAccessDenied  Diagnosis = "access_denied"
	DiagEmptyResults  Diagnosis = "empty_results"
	DiagSelectorDrift Diagnosis = "selector_drift"
	DiagUnknown       Diagnosis = "unknown"
)

// Case is one canned probe: a query expected to return at least one
// business whose name contains ExpectKeyword. AllowRetry cases get one
// alternate-method attempt before counting as failed.
type Case struct {
	Query         string `json:"query"`
	Location      string `json:"location"`
	ExpectKeyword string `json:"expect_keyword"`
	AllowRetry    bool   `json:"allow_retry"`
}

func DefaultCases() []Case {
	return []Case{
		{Query: "Plumber", Location: "New York, NY", ExpectKeyword: "plumb", AllowRetry: true},
		{Query: "Coffee Shop", Location: "Seattle, WA", ExpectKeyword: "coffee", AllowRetry: true},
		{Query: "Dentist", Location: "Chicago, IL", ExpectKeyword: "dent", AllowRetry: false},
	}
}

type CaseResult struct {
	Case        Case          `json:"case"`
	Passed      bool          `json:"passed"`
	Retried     bool          `json:"retried"`
	Diagnosis   Diagnosis     `json:"diagnosis,omitempty"`
	ExecutionID string        `json:"execution_id,omitempty"`
	Duration    time.Duration `json:"duration"`
}

type Report struct {
	RanAt   time.Time    `json:"ran_at"`
	Passed  int          `json:"passed"`
	Failed  int          `json:"failed"`
	Results []CaseResult `json:"results"`
}

type Runner struct {
	searcher    Searcher
	cases       []Case
	retryOnFail bool
	logger      *slog.Logger
}

func NewRunner(searcher Searcher, cases []Case, retryOnFail bool, logger *slog.Logger) *Runner {
	if len(cases) == 0 {
		cases = DefaultCases()
	}
	return &Runner{
		searcher:    searcher,
		cases:       cases,
		retryOnFail: retryOnFail,
		logger:      logger.With("component", "selftest"),
	}
}

// Run executes every canned case sequentially and returns the report.
func (r *Runner) Run(ctx context.Context) Report {
	report := Report{RanAt: time.Now().UTC()}

	for _, c := range r.cases {
		result := r.runCase(ctx, c, false)

		if !result.Passed && r.retryOnFail && c.AllowRetry && ctx.Err() == nil {
			r.logger.Info("retrying failed case with alternate method", "query", c.Query)
			retried := r.runCase(ctx, c, true)
			retried.Retried = true
			if !retried.Passed && retried.Diagnosis == "" {
				retried.Diagnosis = result.Diagnosis
			}
			result = retried
		}

		if result.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Results = append(report.Results, result)
	}

	r.logger.Info("selftest finished", "passed", report.Passed, "failed", report.Failed)
	return report
}

// runCase issues one search. The alternate pass flips anti-detection on
// so the retry arrives with a fresh identity over the session path.
func (r *Runner) runCase(ctx context.Context, c Case, alternate bool) CaseResult {
	params := models.SearchParams{
		Query:         c.Query,
		Location:      c.Location,
		MaxResults:    5,
		AntiDetection: alternate,
	}

	start := time.Now()
	res, err := r.searcher.Search(ctx, params)
	result := CaseResult{Case: c, Duration: time.Since(start)}

	if err != nil {
		result.Diagnosis = diagnoseError(err)
		return result
	}

	result.ExecutionID = res.Log.ID
	if matches(res.Businesses, c.ExpectKeyword) {
		result.Passed = true
		return result
	}

	result.Diagnosis = Diagnose(res.Log)
	return result
}

func matches(businesses []models.BusinessRecord, keyword string) bool {
	kw := strings.ToLower(keyword)
	for _, b := range businesses {
		if strings.Contains(strings.ToLower(b.Name), kw) {
			return true
		}
		for _, c := range b.Categories {
			if strings.Contains(strings.ToLower(c), kw) {
				return true
			}
		}
	}
	return false
}

// Diagnose inspects an execution log and returns a single failure label.
// Precedence follows severity: an explicit block beats a timeout beats
// plain emptiness.
func Diagnose(log *models.ExecutionLog) Diagnosis {
	if log == nil {
		return DiagUnknown
	}

	var sawTimeout, sawDenied, sawDrift, sawEmpty bool
	for _, a := range log.Attempts {
		switch a.Status {
		case models.AttemptEmpty:
			sawEmpty = true
			continue
		case models.AttemptError:
		default:
			continue
		}

		msg := strings.ToLower(a.Error)
		switch {
		case strings.Contains(msg, string(errs.KindBlocked)) || strings.Contains(msg, "captcha") || strings.Contains(msg, "challenge"):
			return DiagBlocked
		case strings.Contains(msg, "denied"):
			sawDenied = true
		case strings.Contains(msg, string(errs.KindNetworkTimeout)) || strings.Contains(msg, "timeout") || strings.Contains(msg, "refused"):
			sawTimeout = true
		case strings.Contains(msg, string(errs.KindParseMismatch)) || strings.Contains(msg, "selector"):
			sawDrift = true
		}
	}

	switch {
	case sawDenied:
		return DiagAccessDenied
	case sawTimeout:
		return DiagConnection
	case sawDrift:
		return DiagSelectorDrift
	case sawEmpty:
		return DiagEmptyResults
	}
	return DiagUnknown
}

func diagnoseError(err error) Diagnosis {
	switch errs.KindOf(err) {
	case errs.KindBlocked:
		return DiagBlocked
	case errs.KindNetworkTimeout:
		return DiagConnection
	case errs.KindParseMismatch:
		return DiagSelectorDrift
	default:
		return DiagUnknown
	}
}

// RunLoop re-runs the suite on a fixed interval until ctx is canceled.
func (r *Runner) RunLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Run(ctx)
		}
	}
}
