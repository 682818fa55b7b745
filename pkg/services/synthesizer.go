package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/adapters/backend"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/llm"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/logging"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/prompts"
)

// AnswerSynthesizer turns a result set into a natural-language answer.
// Synthesis is best-effort: a completion failure degrades to a canned
// row-count summary instead of failing the orchestration.
type AnswerSynthesizer struct {
	completion llm.CompletionClient
	maxTokens  int
	sampleRows int
	logger     *zap.Logger
}

// NewAnswerSynthesizer creates a synthesizer. sampleRows bounds how many
// result rows are shown to the model.
func NewAnswerSynthesizer(completion llm.CompletionClient, maxTokens, sampleRows int, logger *zap.Logger) *AnswerSynthesizer {
	return &AnswerSynthesizer{
		completion: completion,
		maxTokens:  maxTokens,
		sampleRows: sampleRows,
		logger:     logger.Named("synthesizer"),
	}
}

// Summarize answers the question from the executed query's result.
func (s *AnswerSynthesizer) Summarize(
	ctx context.Context,
	question, query string,
	language models.QueryLanguage,
	result *backend.QueryResult,
) string {
	prompt := prompts.Answer(question, query, language, result.Rows, result.TotalRows, s.sampleRows)

	answer, err := s.completion.Complete(ctx, prompt, prompts.AnswerSystem, s.maxTokens)
	if err != nil {
		s.logger.Warn("answer synthesis failed, using fallback",
			zap.String("error", logging.SanitizeError(err)))
		return prompts.FallbackAnswer(result.TotalRows)
	}
	return answer
}
