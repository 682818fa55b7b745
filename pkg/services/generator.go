package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/llm"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/logging"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/prompts"
)

// QueryGenerator turns a natural-language question into an executable
// query in the backend's dialect.
type QueryGenerator struct {
	completion llm.CompletionClient
	maxTokens  int
	logger     *zap.Logger
}

// NewQueryGenerator creates a generator backed by the given completion
// client.
func NewQueryGenerator(completion llm.CompletionClient, maxTokens int, logger *zap.Logger) *QueryGenerator {
	return &QueryGenerator{
		completion: completion,
		maxTokens:  maxTokens,
		logger:     logger.Named("generator"),
	}
}

// Generate produces a query for the question against the given schema.
// Conversation entries, oldest first, let the model resolve follow-up
// references. Returns llm.ErrNoQuery (wrapped) when the model response
// contains no extractable statement.
func (g *QueryGenerator) Generate(
	ctx context.Context,
	question string,
	schema *models.Schema,
	conversation []models.ContextEntry,
	language models.QueryLanguage,
) (string, error) {
	prompt := prompts.Generation(question, schema, conversation, language)

	response, err := g.completion.Complete(ctx, prompt, prompts.GenerationSystem, g.maxTokens)
	if err != nil {
		return "", fmt.Errorf("query generation: %w", err)
	}

	query, err := llm.ExtractQuery(response, language)
	if err != nil {
		g.logger.Warn("no query in model response",
			zap.String("language", string(language)),
			zap.String("response", logging.Truncate(response, logging.MaxQueryLogLength)))
		return "", fmt.Errorf("query generation: %w", err)
	}

	g.logger.Debug("query generated",
		zap.String("language", string(language)),
		zap.String("query", logging.SanitizeQuery(query)))
	return query, nil
}
