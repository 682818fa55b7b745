package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/database"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
)

// QueryHistoryRepository defines data access for persisted turns.
type QueryHistoryRepository interface {
	// Record persists one successful turn.
	Record(ctx context.Context, entry *models.QueryHistoryEntry) error

	// ListBySession returns a session's turns, most recent first.
	ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.QueryHistoryEntry, error)
}

type queryHistoryRepository struct {
	db *database.DB
}

// NewQueryHistoryRepository creates a PostgreSQL-backed history repository.
func NewQueryHistoryRepository(db *database.DB) QueryHistoryRepository {
	return &queryHistoryRepository{db: db}
}

func (r *queryHistoryRepository) Record(ctx context.Context, entry *models.QueryHistoryEntry) error {
	query := `
		INSERT INTO query_history (
			id, session_id, backend_kind, question, query, language,
			answer, row_count, attempt_count, elapsed_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.SessionID,
		string(entry.BackendKind),
		entry.Question,
		entry.Query,
		string(entry.Language),
		entry.Answer,
		entry.RowCount,
		entry.AttemptCount,
		entry.Elapsed.Milliseconds(),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert query_history: %w", err)
	}
	return nil
}

func (r *queryHistoryRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.QueryHistoryEntry, error) {
	query := `
		SELECT id, session_id, backend_kind, question, query, language,
		       answer, row_count, attempt_count, elapsed_ms, created_at
		FROM query_history
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query query_history: %w", err)
	}
	defer rows.Close()

	var entries []models.QueryHistoryEntry
	for rows.Next() {
		var (
			e         models.QueryHistoryEntry
			kind      string
			language  string
			elapsedMS int64
		)
		if err := rows.Scan(
			&e.ID, &e.SessionID, &kind, &e.Question, &e.Query, &language,
			&e.Answer, &e.RowCount, &e.AttemptCount, &elapsedMS, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan query_history row: %w", err)
		}
		e.BackendKind = models.BackendKind(kind)
		e.Language = models.QueryLanguage(language)
		e.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query_history rows: %w", err)
	}
	return entries, nil
}
