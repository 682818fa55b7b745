package models

import (
	"time"

	"github.com/google/uuid"
)

// QueryHistoryEntry is a persisted record of one successful turn.
type QueryHistoryEntry struct {
	ID           uuid.UUID     `json:"id"`
	SessionID    uuid.UUID     `json:"session_id"`
	BackendKind  BackendKind   `json:"backend_kind"`
	Question     string        `json:"question"`
	Query        string        `json:"query"`
	Language     QueryLanguage `json:"language"`
	Answer       string        `json:"answer"`
	RowCount     int           `json:"row_count"`
	AttemptCount int           `json:"attempt_count"`
	Elapsed      time.Duration `json:"elapsed_ms"`
	CreatedAt    time.Time     `json:"created_at"`
}
