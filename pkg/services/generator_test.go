package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/adapters/backend"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/llm"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
)

func testSchema() *models.Schema {
	return &models.Schema{
		Language: models.LanguageTSQL,
		Entities: []models.SchemaEntity{{
			Schema: "dbo",
			Name:   "Sales",
			Attributes: []models.SchemaAttribute{
				{Name: "Region", DataType: "nvarchar"},
			},
		}},
	}
}

func TestGeneratorExtractsFromFencedResponse(t *testing.T) {
	mock := llm.NewMockCompletionClient()
	mock.CompleteFunc = func(ctx context.Context, prompt, system string, maxTokens int) (string, error) {
		return "Here is the query:\n```sql\nSELECT TOP 10 Region FROM dbo.Sales\n```", nil
	}
	g := NewQueryGenerator(mock, 500, zap.NewNop())

	query, err := g.Generate(context.Background(), "regions?", testSchema(), nil, models.LanguageTSQL)
	require.NoError(t, err)
	assert.Equal(t, "SELECT TOP 10 Region FROM dbo.Sales", query)
	assert.Equal(t, 1, mock.CompleteCalls)
}

func TestGeneratorPromptCarriesConversation(t *testing.T) {
	mock := llm.NewMockCompletionClient()
	mock.CompleteFunc = func(ctx context.Context, prompt, system string, maxTokens int) (string, error) {
		return "SELECT TOP 10 Region FROM dbo.Sales", nil
	}
	g := NewQueryGenerator(mock, 500, zap.NewNop())

	conversation := []models.ContextEntry{{Question: "previous question about sales", Query: "SELECT 1"}}
	_, err := g.Generate(context.Background(), "and by region?", testSchema(), conversation, models.LanguageTSQL)
	require.NoError(t, err)
	require.Len(t, mock.Prompts, 1)
	assert.Contains(t, mock.Prompts[0], "previous question about sales")
}

func TestGeneratorCompletionError(t *testing.T) {
	mock := llm.NewMockCompletionClient()
	mock.CompleteFunc = func(ctx context.Context, prompt, system string, maxTokens int) (string, error) {
		return "", &llm.Error{Type: llm.ErrorTypeAuth, Message: "invalid api key"}
	}
	g := NewQueryGenerator(mock, 500, zap.NewNop())

	_, err := g.Generate(context.Background(), "regions?", testSchema(), nil, models.LanguageTSQL)
	require.Error(t, err)
	var llmErr *llm.Error
	assert.ErrorAs(t, err, &llmErr)
}

func TestGeneratorNoQueryInResponse(t *testing.T) {
	mock := llm.NewMockCompletionClient()
	mock.CompleteFunc = func(ctx context.Context, prompt, system string, maxTokens int) (string, error) {
		return "That question cannot be answered from the available tables.", nil
	}
	g := NewQueryGenerator(mock, 500, zap.NewNop())

	_, err := g.Generate(context.Background(), "meaning of life", testSchema(), nil, models.LanguageTSQL)
	assert.ErrorIs(t, err, llm.ErrNoQuery)
}

func TestCorrectorRepairsQuery(t *testing.T) {
	mock := llm.NewMockCompletionClient()
	mock.CompleteFunc = func(ctx context.Context, prompt, system string, maxTokens int) (string, error) {
		return "SELECT TOP 10 Region FROM dbo.Sales", nil
	}
	c := NewQueryCorrector(mock, 500, zap.NewNop())

	execErr := backend.NewExecutionError(backend.ErrorSyntax, "Invalid column name 'Regio'", nil)
	repaired, err := c.Repair(context.Background(), "SELECT TOP 10 Regio FROM dbo.Sales", execErr, testSchema(), models.LanguageTSQL)
	require.NoError(t, err)
	assert.Equal(t, "SELECT TOP 10 Region FROM dbo.Sales", repaired)

	require.Len(t, mock.Prompts, 1)
	assert.Contains(t, mock.Prompts[0], "Invalid column name 'Regio'")
	assert.Contains(t, mock.Prompts[0], "SELECT TOP 10 Regio FROM dbo.Sales")
}

func TestCorrectorCompletionError(t *testing.T) {
	mock := llm.NewMockCompletionClient()
	mock.CompleteFunc = func(ctx context.Context, prompt, system string, maxTokens int) (string, error) {
		return "", errors.New("rate limited")
	}
	c := NewQueryCorrector(mock, 500, zap.NewNop())

	execErr := backend.NewExecutionError(backend.ErrorSyntax, "bad", nil)
	_, err := c.Repair(context.Background(), "SELECT 1", execErr, testSchema(), models.LanguageTSQL)
	assert.Error(t, err)
}

func TestSynthesizerFallsBackOnError(t *testing.T) {
	mock := llm.NewMockCompletionClient()
	mock.CompleteFunc = func(ctx context.Context, prompt, system string, maxTokens int) (string, error) {
		return "", errors.New("model overloaded")
	}
	s := NewAnswerSynthesizer(mock, 500, 5, zap.NewNop())

	result := &backend.QueryResult{Columns: []string{"n"}, Rows: []map[string]any{{"n": 1}}, TotalRows: 7}
	answer := s.Summarize(context.Background(), "how many?", "SELECT 1", models.LanguageTSQL, result)
	assert.NotEmpty(t, answer)
	assert.Contains(t, answer, "7")
}
