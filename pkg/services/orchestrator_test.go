package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/adapters/backend"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/config"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/llm"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/prompts"
)

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o",
			MaxTokens: 500,
		},
		Engine: config.EngineConfig{
			MaxAttempts:         3,
			RowLimit:            1000,
			ResultRowCap:        100,
			QueryTimeout:        time.Second,
			SchemaTTL:           time.Hour,
			SimilarityThreshold: 0.8,
			SimilarityCacheSize: 16,
			ContextTurns:        3,
			AnswerSampleRows:    5,
		},
	}
}

func testIdentity() models.ConnectionIdentity {
	return models.ConnectionIdentity{
		Kind:     models.BackendSQL,
		Endpoint: "warehouse.example.net",
		Database: "Sales",
	}
}

// scriptedClient routes completions by system message so a single mock
// can answer generation, correction, and synthesis calls.
func scriptedClient(generate, correct func(call int) (string, error)) *llm.MockCompletionClient {
	mock := llm.NewMockCompletionClient()
	var genCalls, fixCalls int
	mock.CompleteFunc = func(ctx context.Context, prompt, systemMessage string, maxTokens int) (string, error) {
		switch systemMessage {
		case prompts.GenerationSystem:
			genCalls++
			return generate(genCalls)
		case prompts.CorrectionSystem:
			fixCalls++
			return correct(fixCalls)
		case prompts.AnswerSystem:
			return "There were 42 orders.", nil
		}
		return "", fmt.Errorf("unexpected system message")
	}
	return mock
}

func newTestOrchestrator(t *testing.T, be backend.Backend, mock *llm.MockCompletionClient, history HistoryRecorder) (*Orchestrator, *mockFactory) {
	t.Helper()
	factory := &mockFactory{backend: be}
	o, err := NewOrchestrator(testConfig(), factory, mock, history, zap.NewNop())
	require.NoError(t, err)
	return o, factory
}

func TestAnswerQuestionHappyPath(t *testing.T) {
	be := &mockBackend{
		executeFunc: func(ctx context.Context, query string, rowLimit int) (*backend.QueryResult, error) {
			return &backend.QueryResult{
				Columns:   []string{"Region", "Total"},
				Rows:      []map[string]any{{"Region": "West", "Total": 42}},
				TotalRows: 1,
			}, nil
		},
	}
	mock := scriptedClient(
		func(int) (string, error) { return "SELECT TOP 100 Region, SUM(Amount) AS Total FROM dbo.Sales GROUP BY Region", nil },
		func(int) (string, error) { return "", fmt.Errorf("correction should not run") },
	)
	o, _ := newTestOrchestrator(t, be, mock, nil)

	result := o.AnswerQuestion(context.Background(), Request{
		Question:  "total sales by region",
		SessionID: uuid.New(),
		Identity:  testIdentity(),
	})

	assert.True(t, result.Success)
	assert.Equal(t, models.FailureNone, result.FailureKind)
	assert.Equal(t, "There were 42 orders.", result.Answer)
	assert.Equal(t, models.LanguageTSQL, result.Language)
	assert.False(t, result.CacheHit)
	require.Len(t, result.Attempts, 1)
	assert.True(t, result.Attempts[0].Success)
	assert.Equal(t, 1, result.Attempts[0].Sequence)
	assert.Equal(t, 1, result.Attempts[0].RowCount)
	assert.Equal(t, 1, be.executeCalls)
}

func TestAnswerQuestionOneCorrection(t *testing.T) {
	be := &mockBackend{
		executeFunc: func(ctx context.Context, query string, rowLimit int) (*backend.QueryResult, error) {
			if query == "SELECT TOP 10 Regio FROM dbo.Sales" {
				return nil, backend.NewExecutionError(backend.ErrorSyntax, "Invalid column name 'Regio'", nil)
			}
			return &backend.QueryResult{Columns: []string{"Region"}, Rows: []map[string]any{{"Region": "West"}}, TotalRows: 1}, nil
		},
	}
	mock := scriptedClient(
		func(int) (string, error) { return "SELECT TOP 10 Regio FROM dbo.Sales", nil },
		func(int) (string, error) { return "SELECT TOP 10 Region FROM dbo.Sales", nil },
	)
	o, _ := newTestOrchestrator(t, be, mock, nil)

	result := o.AnswerQuestion(context.Background(), Request{
		Question: "list regions", SessionID: uuid.New(), Identity: testIdentity(),
	})

	assert.True(t, result.Success)
	require.Len(t, result.Attempts, 2)
	assert.False(t, result.Attempts[0].Success)
	assert.Equal(t, string(backend.ErrorSyntax), result.Attempts[0].ErrorKind)
	assert.True(t, result.Attempts[1].Success)
	assert.Equal(t, "SELECT TOP 10 Region FROM dbo.Sales", result.Query)
	assert.Equal(t, 2, be.executeCalls)
}

func TestAnswerQuestionAttemptsExhausted(t *testing.T) {
	be := &mockBackend{
		executeFunc: func(ctx context.Context, query string, rowLimit int) (*backend.QueryResult, error) {
			return nil, backend.NewExecutionError(backend.ErrorSyntax, "Incorrect syntax near 'FRMO'", nil)
		},
	}
	mock := scriptedClient(
		func(int) (string, error) { return "SELECT TOP 10 A FROM dbo.Sales", nil },
		// Each repair differs so the no-op check never short-circuits.
		func(call int) (string, error) {
			return fmt.Sprintf("SELECT TOP 10 A%d FROM dbo.Sales", call), nil
		},
	)
	o, _ := newTestOrchestrator(t, be, mock, nil)

	result := o.AnswerQuestion(context.Background(), Request{
		Question: "anything", SessionID: uuid.New(), Identity: testIdentity(),
	})

	assert.False(t, result.Success)
	assert.Equal(t, models.FailureExhausted, result.FailureKind)
	assert.Len(t, result.Attempts, 3)
	assert.Equal(t, 3, be.executeCalls)
	assert.NotEmpty(t, result.LastError())
}

func TestAnswerQuestionNoOpRepairStops(t *testing.T) {
	be := &mockBackend{
		executeFunc: func(ctx context.Context, query string, rowLimit int) (*backend.QueryResult, error) {
			return nil, backend.NewExecutionError(backend.ErrorSyntax, "Incorrect syntax", nil)
		},
	}
	mock := scriptedClient(
		func(int) (string, error) { return "SELECT TOP 10 A FROM dbo.Sales", nil },
		func(int) (string, error) { return "SELECT TOP 10 A FROM dbo.Sales", nil },
	)
	o, _ := newTestOrchestrator(t, be, mock, nil)

	result := o.AnswerQuestion(context.Background(), Request{
		Question: "anything", SessionID: uuid.New(), Identity: testIdentity(),
	})

	assert.False(t, result.Success)
	assert.Equal(t, models.FailureCorrection, result.FailureKind)
	assert.Len(t, result.Attempts, 1)
	assert.Equal(t, 1, be.executeCalls)
}

func TestAnswerQuestionGenerationFailure(t *testing.T) {
	be := &mockBackend{}
	mock := scriptedClient(
		func(int) (string, error) { return "I cannot answer that from this schema.", nil },
		func(int) (string, error) { return "", fmt.Errorf("should not correct") },
	)
	o, _ := newTestOrchestrator(t, be, mock, nil)

	result := o.AnswerQuestion(context.Background(), Request{
		Question: "what is the meaning of life", SessionID: uuid.New(), Identity: testIdentity(),
	})

	assert.False(t, result.Success)
	assert.Equal(t, models.FailureGeneration, result.FailureKind)
	require.Len(t, result.Attempts, 1)
	assert.False(t, result.Attempts[0].Success)
	assert.Equal(t, 0, be.executeCalls, "nothing extractable should ever reach the backend")
}

func TestAnswerQuestionCorrectionCompletionFailure(t *testing.T) {
	be := &mockBackend{
		executeFunc: func(ctx context.Context, query string, rowLimit int) (*backend.QueryResult, error) {
			return nil, backend.NewExecutionError(backend.ErrorSyntax, "Incorrect syntax", nil)
		},
	}
	mock := scriptedClient(
		func(int) (string, error) { return "SELECT TOP 10 A FROM dbo.Sales", nil },
		func(int) (string, error) { return "", &llm.Error{Type: llm.ErrorTypeEndpoint, Message: "bad gateway"} },
	)
	o, _ := newTestOrchestrator(t, be, mock, nil)

	result := o.AnswerQuestion(context.Background(), Request{
		Question: "anything", SessionID: uuid.New(), Identity: testIdentity(),
	})

	assert.False(t, result.Success)
	assert.Equal(t, models.FailureCorrection, result.FailureKind)
	assert.Len(t, result.Attempts, 1)
}

func TestAnswerQuestionEnvironmentalShortCircuit(t *testing.T) {
	be := &mockBackend{
		executeFunc: func(ctx context.Context, query string, rowLimit int) (*backend.QueryResult, error) {
			return nil, backend.NewExecutionError(backend.ErrorPermission, "The SELECT permission was denied", nil)
		},
	}
	correctionCalled := false
	mock := scriptedClient(
		func(int) (string, error) { return "SELECT TOP 10 A FROM dbo.Sales", nil },
		func(int) (string, error) {
			correctionCalled = true
			return "SELECT TOP 10 B FROM dbo.Sales", nil
		},
	)
	o, _ := newTestOrchestrator(t, be, mock, nil)

	result := o.AnswerQuestion(context.Background(), Request{
		Question: "anything", SessionID: uuid.New(), Identity: testIdentity(),
	})

	assert.False(t, result.Success)
	assert.Equal(t, models.FailureEnvironmental, result.FailureKind)
	assert.Len(t, result.Attempts, 1)
	assert.False(t, correctionCalled, "permission errors must not burn correction attempts")
}

func TestAnswerQuestionEnvironmentalRepairOptIn(t *testing.T) {
	calls := 0
	be := &mockBackend{
		executeFunc: func(ctx context.Context, query string, rowLimit int) (*backend.QueryResult, error) {
			calls++
			if calls == 1 {
				return nil, backend.NewExecutionError(backend.ErrorPermission, "permission was denied on 'Secret'", nil)
			}
			return &backend.QueryResult{Columns: []string{"A"}, Rows: []map[string]any{{"A": 1}}, TotalRows: 1}, nil
		},
	}
	mock := scriptedClient(
		func(int) (string, error) { return "SELECT TOP 10 A FROM dbo.Secret", nil },
		func(int) (string, error) { return "SELECT TOP 10 A FROM dbo.Sales", nil },
	)
	cfg := testConfig()
	cfg.Engine.RepairEnvironmental = true
	factory := &mockFactory{backend: be}
	o, err := NewOrchestrator(cfg, factory, mock, nil, zap.NewNop())
	require.NoError(t, err)

	result := o.AnswerQuestion(context.Background(), Request{
		Question: "anything", SessionID: uuid.New(), Identity: testIdentity(),
	})

	assert.True(t, result.Success)
	assert.Len(t, result.Attempts, 2)
}

func TestAnswerQuestionExpiredDeadline(t *testing.T) {
	be := &mockBackend{}
	mock := llm.NewMockCompletionClient()
	o, _ := newTestOrchestrator(t, be, mock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := o.AnswerQuestion(ctx, Request{
		Question: "anything", SessionID: uuid.New(), Identity: testIdentity(),
	})

	assert.False(t, result.Success)
	assert.Equal(t, models.FailureDeadlineExceeded, result.FailureKind)
	assert.Empty(t, result.Attempts)
	assert.Equal(t, 0, mock.CompleteCalls)
	assert.Equal(t, 0, be.executeCalls)
}

func TestAnswerQuestionCacheHitStillExecutes(t *testing.T) {
	be := &mockBackend{
		executeFunc: func(ctx context.Context, query string, rowLimit int) (*backend.QueryResult, error) {
			return &backend.QueryResult{Columns: []string{"A"}, Rows: []map[string]any{{"A": 1}}, TotalRows: 1}, nil
		},
	}
	genCalls := 0
	mock := scriptedClient(
		func(int) (string, error) {
			genCalls++
			return "SELECT TOP 10 Region FROM dbo.Sales", nil
		},
		func(int) (string, error) { return "", fmt.Errorf("no correction expected") },
	)
	o, _ := newTestOrchestrator(t, be, mock, nil)
	identity := testIdentity()

	first := o.AnswerQuestion(context.Background(), Request{
		Question: "show me the top 5 customers by revenue", SessionID: uuid.New(), Identity: identity,
	})
	require.True(t, first.Success)
	assert.False(t, first.CacheHit)

	// A rephrasing of the same question: the cached query is reused but
	// re-executed, never answered from remembered rows.
	second := o.AnswerQuestion(context.Background(), Request{
		Question: "what are the top 5 customers by revenue?", SessionID: uuid.New(), Identity: identity,
	})
	require.True(t, second.Success)
	assert.True(t, second.CacheHit)
	assert.Equal(t, 1, genCalls, "cache hit must skip generation")
	assert.Equal(t, 2, be.executeCalls, "cache hit must still execute")
	assert.Equal(t, 1, be.discoverCalls, "schema stays cached within TTL")
}

func TestAnswerQuestionContextOnlyOnSuccess(t *testing.T) {
	fail := true
	be := &mockBackend{
		executeFunc: func(ctx context.Context, query string, rowLimit int) (*backend.QueryResult, error) {
			if fail {
				return nil, backend.NewExecutionError(backend.ErrorConnection, "connection was forcibly closed", nil)
			}
			return &backend.QueryResult{Columns: []string{"A"}, Rows: []map[string]any{{"A": 1}}, TotalRows: 1}, nil
		},
	}
	mock := scriptedClient(
		func(int) (string, error) { return "SELECT TOP 10 A FROM dbo.Sales", nil },
		func(int) (string, error) { return "", fmt.Errorf("no correction expected") },
	)
	o, _ := newTestOrchestrator(t, be, mock, nil)
	session := uuid.New()

	failed := o.AnswerQuestion(context.Background(), Request{
		Question: "broken run", SessionID: session, Identity: testIdentity(),
	})
	require.False(t, failed.Success)
	assert.Equal(t, 0, o.sessions.Get(session).Len(), "failed runs must not enter the context window")

	fail = false
	ok := o.AnswerQuestion(context.Background(), Request{
		Question: "working run", SessionID: session, Identity: testIdentity(),
	})
	require.True(t, ok.Success)
	assert.Equal(t, 1, o.sessions.Get(session).Len())

	assert.True(t, o.ClearContext(session))
	assert.False(t, o.ClearContext(session))
}

func TestAnswerQuestionRecordsHistory(t *testing.T) {
	be := &mockBackend{}
	mock := scriptedClient(
		func(int) (string, error) { return "SELECT TOP 10 A FROM dbo.Sales", nil },
		func(int) (string, error) { return "", fmt.Errorf("no correction expected") },
	)
	recorder := &mockHistoryRecorder{}
	o, _ := newTestOrchestrator(t, be, mock, recorder)
	session := uuid.New()

	result := o.AnswerQuestion(context.Background(), Request{
		Question: "count rows", SessionID: session, Identity: testIdentity(),
	})
	require.True(t, result.Success)

	require.Len(t, recorder.entries, 1)
	entry := recorder.entries[0]
	assert.Equal(t, session, entry.SessionID)
	assert.Equal(t, "count rows", entry.Question)
	assert.Equal(t, result.Query, entry.Query)
	assert.Equal(t, models.LanguageTSQL, entry.Language)
	assert.Equal(t, 1, entry.AttemptCount)
}

func TestAnswerQuestionHistoryFailureDoesNotFailRun(t *testing.T) {
	be := &mockBackend{}
	mock := scriptedClient(
		func(int) (string, error) { return "SELECT TOP 10 A FROM dbo.Sales", nil },
		func(int) (string, error) { return "", fmt.Errorf("no correction expected") },
	)
	recorder := &mockHistoryRecorder{err: errors.New("database unreachable")}
	o, _ := newTestOrchestrator(t, be, mock, recorder)

	result := o.AnswerQuestion(context.Background(), Request{
		Question: "count rows", SessionID: uuid.New(), Identity: testIdentity(),
	})
	assert.True(t, result.Success)
}

func TestAnswerQuestionBackendCreationFailure(t *testing.T) {
	factory := &mockFactory{
		createFunc: func(ctx context.Context, identity models.ConnectionIdentity) (backend.Backend, error) {
			return nil, errors.New("login failed for user 'engine'")
		},
	}
	o, err := NewOrchestrator(testConfig(), factory, llm.NewMockCompletionClient(), nil, zap.NewNop())
	require.NoError(t, err)

	result := o.AnswerQuestion(context.Background(), Request{
		Question: "anything", SessionID: uuid.New(), Identity: testIdentity(),
	})

	assert.False(t, result.Success)
	assert.Equal(t, models.FailureEnvironmental, result.FailureKind)
	require.Len(t, result.Attempts, 1)
	assert.Contains(t, result.Attempts[0].Error, "backend unavailable")
}

func TestReconnectInvalidatesCaches(t *testing.T) {
	be := &mockBackend{}
	genCalls := 0
	mock := scriptedClient(
		func(int) (string, error) {
			genCalls++
			return "SELECT TOP 10 A FROM dbo.Sales", nil
		},
		func(int) (string, error) { return "", fmt.Errorf("no correction expected") },
	)
	o, factory := newTestOrchestrator(t, be, mock, nil)
	identity := testIdentity()

	first := o.AnswerQuestion(context.Background(), Request{
		Question: "total revenue by region", SessionID: uuid.New(), Identity: identity,
	})
	require.True(t, first.Success)

	o.Reconnect(identity)
	assert.True(t, be.closed)

	second := o.AnswerQuestion(context.Background(), Request{
		Question: "total revenue by region", SessionID: uuid.New(), Identity: identity,
	})
	require.True(t, second.Success)
	assert.False(t, second.CacheHit, "reconnect must drop the question cache")
	assert.Equal(t, 2, genCalls)
	assert.Equal(t, 2, be.discoverCalls, "reconnect must force schema rediscovery")
	assert.Equal(t, 2, factory.createCalls)
}

func TestAnswerQuestionCapsResultRows(t *testing.T) {
	rows := make([]map[string]any, 250)
	for i := range rows {
		rows[i] = map[string]any{"n": i}
	}
	be := &mockBackend{
		executeFunc: func(ctx context.Context, query string, rowLimit int) (*backend.QueryResult, error) {
			return &backend.QueryResult{Columns: []string{"n"}, Rows: rows, TotalRows: 250}, nil
		},
	}
	mock := scriptedClient(
		func(int) (string, error) { return "SELECT TOP 1000 n FROM dbo.Sales", nil },
		func(int) (string, error) { return "", fmt.Errorf("no correction expected") },
	)
	o, _ := newTestOrchestrator(t, be, mock, nil)

	result := o.AnswerQuestion(context.Background(), Request{
		Question: "all the rows", SessionID: uuid.New(), Identity: testIdentity(),
	})

	require.True(t, result.Success)
	assert.Len(t, result.Rows, 100)
	assert.Equal(t, 250, result.TotalRows)
}
