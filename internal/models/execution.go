package models

import (
	"time"

	"github.com/google/uuid"
)

type ExecutionStatus string

const (
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionNoResults ExecutionStatus = "no_results"
	ExecutionFailed    ExecutionStatus = "failed"
)

type AttemptStatus string

const (
	AttemptSuccess AttemptStatus = "success"
	AttemptEmpty   AttemptStatus = "empty"
	AttemptError   AttemptStatus = "error"
	AttemptSkipped AttemptStatus = "skipped"
)

// AttemptRecord is one adapter invocation inside an execution.
type AttemptRecord struct {
	Source   string        `json:"source"`
	Method   string        `json:"method"` // structured | session | api
	Status   AttemptStatus `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// SourceSummary is the per-source result count for an execution.
type SourceSummary struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// ExecutionLog is the structured per-request trace used for diagnosis.
// The ID doubles as the correlation id handed back to callers.
type ExecutionLog struct {
	ID        string          `json:"id"`
	StartedAt time.Time       `json:"started_at"`
	Params    SearchParams    `json:"params"`
	Attempts  []AttemptRecord `json:"attempts"`
	Summaries []SourceSummary `json:"summaries"`
	Status    ExecutionStatus `json:"status"`
}

func NewExecutionLog(params SearchParams) *ExecutionLog {
	return &ExecutionLog{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Params:    params,
	}
}

func (l *ExecutionLog) AddAttempt(a AttemptRecord) {
	l.Attempts = append(l.Attempts, a)
}

func (l *ExecutionLog) AddSummary(source string, count int) {
	l.Summaries = append(l.Summaries, SourceSummary{Source: source, Count: count})
}

// Errored reports whether every attempt in the log failed. Distinguishes
// "every adapter errored" from a genuine empty result.
func (l *ExecutionLog) Errored() bool {
	if len(l.Attempts) == 0 {
		return false
	}
	for _, a := range l.Attempts {
		if a.Status != AttemptError {
			return false
		}
	}
	return true
}
