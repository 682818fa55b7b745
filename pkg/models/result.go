package models

import "time"

// QueryAttempt records one execute cycle inside an orchestration run.
// Attempts are immutable once created and appended in order; attempt i's
// repair always depends on attempt i-1's error.
type QueryAttempt struct {
	Sequence  int           `json:"sequence"` // 1-based
	Query     string        `json:"query"`
	Language  QueryLanguage `json:"language"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
	RowCount  int           `json:"row_count,omitempty"`
	Duration  time.Duration `json:"duration_ms"`
}

// FailureKind classifies why an orchestration run ended without an answer.
type FailureKind string

const (
	FailureNone             FailureKind = ""
	FailureGeneration       FailureKind = "generation_failure"
	FailureCorrection       FailureKind = "correction_failure"
	FailureExhausted        FailureKind = "attempts_exhausted"
	FailureDeadlineExceeded FailureKind = "deadline_exceeded"
	FailureEnvironmental    FailureKind = "environmental_error"
)

// OrchestrationResult is the outcome of one answerQuestion call. It is
// produced exactly once per question and owned by the caller; failures
// are carried as structured data, never as panics or raw errors.
type OrchestrationResult struct {
	Success     bool             `json:"success"`
	Answer      string           `json:"answer,omitempty"`
	Query       string           `json:"query,omitempty"`
	Columns     []string         `json:"columns,omitempty"`
	Rows        []map[string]any `json:"rows,omitempty"` // capped for transport
	TotalRows   int              `json:"total_rows"`
	Attempts    []QueryAttempt   `json:"attempts"`
	Elapsed     time.Duration    `json:"elapsed_ms"`
	Language    QueryLanguage    `json:"query_language"`
	FailureKind FailureKind      `json:"failure_kind,omitempty"`
	CacheHit    bool             `json:"cache_hit"`
}

// LastError returns the error text of the most recent failed attempt.
func (r *OrchestrationResult) LastError() string {
	for i := len(r.Attempts) - 1; i >= 0; i-- {
		if !r.Attempts[i].Success {
			return r.Attempts[i].Error
		}
	}
	return ""
}

// ContextEntry is one successful turn in the conversation context,
// used to disambiguate follow-up questions.
type ContextEntry struct {
	Question  string        `json:"question"`
	Query     string        `json:"query"`
	Language  QueryLanguage `json:"language"`
	Timestamp time.Time     `json:"timestamp"`
}
