package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/adapters/backend"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
)

func TestExecutorRejectsUnsafeQuery(t *testing.T) {
	be := &mockBackend{}
	e := NewQueryExecutor(1000, time.Second, zap.NewNop())

	_, _, execErr := e.Execute(context.Background(), be, "DROP TABLE dbo.Sales", models.LanguageTSQL)
	require.NotNil(t, execErr)
	assert.Equal(t, backend.ErrorSyntax, execErr.Kind)
	assert.Equal(t, 0, be.executeCalls, "unsafe queries never reach the backend")
}

func TestExecutorPassesRowLimit(t *testing.T) {
	var gotLimit int
	be := &mockBackend{
		executeFunc: func(ctx context.Context, query string, rowLimit int) (*backend.QueryResult, error) {
			gotLimit = rowLimit
			return &backend.QueryResult{Columns: []string{"n"}, TotalRows: 0}, nil
		},
	}
	e := NewQueryExecutor(500, time.Second, zap.NewNop())

	result, duration, execErr := e.Execute(context.Background(), be, "SELECT TOP 10 n FROM dbo.Sales", models.LanguageTSQL)
	require.Nil(t, execErr)
	assert.NotNil(t, result)
	assert.Equal(t, 500, gotLimit)
	assert.GreaterOrEqual(t, duration, time.Duration(0))
}

func TestExecutorTimesOut(t *testing.T) {
	be := &mockBackend{
		executeFunc: func(ctx context.Context, query string, rowLimit int) (*backend.QueryResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	e := NewQueryExecutor(1000, 20*time.Millisecond, zap.NewNop())

	_, _, execErr := e.Execute(context.Background(), be, "SELECT TOP 10 n FROM dbo.Huge", models.LanguageTSQL)
	require.NotNil(t, execErr)
	assert.Equal(t, backend.ErrorTimeout, execErr.Kind)
}

func TestExecutorClassifiesBackendError(t *testing.T) {
	be := &mockBackend{
		executeFunc: func(ctx context.Context, query string, rowLimit int) (*backend.QueryResult, error) {
			return nil, errors.New("Invalid object name 'dbo.Sale'")
		},
	}
	e := NewQueryExecutor(1000, time.Second, zap.NewNop())

	_, _, execErr := e.Execute(context.Background(), be, "SELECT TOP 10 n FROM dbo.Sale", models.LanguageTSQL)
	require.NotNil(t, execErr)
	assert.Equal(t, backend.ErrorSyntax, execErr.Kind)
}
