package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/adapters/backend"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/llm"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/logging"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/prompts"
)

// QueryCorrector asks the model to repair a query that the backend
// rejected, feeding it the failed statement and the backend's error.
type QueryCorrector struct {
	completion llm.CompletionClient
	maxTokens  int
	logger     *zap.Logger
}

// NewQueryCorrector creates a corrector backed by the given completion
// client.
func NewQueryCorrector(completion llm.CompletionClient, maxTokens int, logger *zap.Logger) *QueryCorrector {
	return &QueryCorrector{
		completion: completion,
		maxTokens:  maxTokens,
		logger:     logger.Named("corrector"),
	}
}

// Repair returns a revised query for the failed one. The caller decides
// whether the revision actually differs; a verbatim echo from the model
// is returned as-is.
func (c *QueryCorrector) Repair(
	ctx context.Context,
	failedQuery string,
	execErr *backend.ExecutionError,
	schema *models.Schema,
	language models.QueryLanguage,
) (string, error) {
	prompt := prompts.Correction(failedQuery, execErr.Message, execErr.Kind, schema, language)

	response, err := c.completion.Complete(ctx, prompt, prompts.CorrectionSystem, c.maxTokens)
	if err != nil {
		return "", fmt.Errorf("query correction: %w", err)
	}

	query, err := llm.ExtractQuery(response, language)
	if err != nil {
		return "", fmt.Errorf("query correction: %w", err)
	}

	c.logger.Debug("query repaired",
		zap.String("error_kind", string(execErr.Kind)),
		zap.String("query", logging.SanitizeQuery(query)))
	return query, nil
}
