package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/adapters/backend"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/logging"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
)

// QueryExecutor runs a query against a backend under a per-attempt
// timeout and normalizes failures into classified execution errors.
type QueryExecutor struct {
	rowLimit int
	timeout  time.Duration
	logger   *zap.Logger
}

// NewQueryExecutor creates an executor. rowLimit bounds the rows any
// single query may return; timeout bounds each attempt.
func NewQueryExecutor(rowLimit int, timeout time.Duration, logger *zap.Logger) *QueryExecutor {
	return &QueryExecutor{
		rowLimit: rowLimit,
		timeout:  timeout,
		logger:   logger.Named("executor"),
	}
}

// Execute validates the query's safety and runs it. A safety rejection
// is reported as a syntax-kind execution error so the correction loop
// can rewrite the statement instead of giving up. The returned duration
// covers the backend call only.
func (e *QueryExecutor) Execute(
	ctx context.Context,
	be backend.Backend,
	query string,
	language models.QueryLanguage,
) (*backend.QueryResult, time.Duration, *backend.ExecutionError) {
	if err := ValidateQuerySafety(query, language); err != nil {
		e.logger.Warn("unsafe query rejected",
			zap.String("query", logging.SanitizeQuery(query)),
			zap.Error(err))
		return nil, 0, backend.NewExecutionError(backend.ErrorSyntax, err.Error(), err)
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	result, err := be.Execute(execCtx, query, e.rowLimit)
	elapsed := time.Since(start)

	if err != nil {
		execErr := backend.Classify(err)
		e.logger.Warn("query execution failed",
			zap.String("query", logging.SanitizeQuery(query)),
			zap.String("error_kind", string(execErr.Kind)),
			zap.Duration("elapsed", elapsed),
			zap.String("error", logging.SanitizeError(err)))
		return nil, elapsed, execErr
	}

	e.logger.Debug("query executed",
		zap.Int("rows", result.TotalRows),
		zap.Bool("truncated", result.Truncated),
		zap.Duration("elapsed", elapsed))
	return result, elapsed, nil
}
