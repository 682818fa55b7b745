package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/adapters/backend"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/cache"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/config"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/llm"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/logging"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
)

// HistoryRecorder persists successful turns. A nil recorder disables
// persistence without touching the orchestration path.
type HistoryRecorder interface {
	Record(ctx context.Context, entry *models.QueryHistoryEntry) error
}

// Request is one question to answer against one backend.
type Request struct {
	Question  string
	SessionID uuid.UUID
	Identity  models.ConnectionIdentity
}

// Orchestrator drives the generate-execute-correct loop: it turns a
// question into a query, runs it, and when the backend rejects it feeds
// the error back to the model for a bounded number of repair attempts.
type Orchestrator struct {
	cfg         config.EngineConfig
	factory     backend.Factory
	generator   *QueryGenerator
	corrector   *QueryCorrector
	executor    *QueryExecutor
	synthesizer *AnswerSynthesizer
	schemas     *cache.SchemaCache
	queries     *cache.SimilarityCache
	sessions    *SessionManager
	history     HistoryRecorder
	logger      *zap.Logger

	mu       sync.Mutex
	backends map[string]backend.Backend
}

// NewOrchestrator wires the engine from its configuration. history may
// be nil.
func NewOrchestrator(
	cfg *config.Config,
	factory backend.Factory,
	completion llm.CompletionClient,
	history HistoryRecorder,
	logger *zap.Logger,
) (*Orchestrator, error) {
	queries, err := cache.NewSimilarityCache(cfg.Engine.SimilarityCacheSize, cfg.Engine.SimilarityThreshold, logger)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:         cfg.Engine,
		factory:     factory,
		generator:   NewQueryGenerator(completion, cfg.LLM.MaxTokens, logger),
		corrector:   NewQueryCorrector(completion, cfg.LLM.MaxTokens, logger),
		executor:    NewQueryExecutor(cfg.Engine.RowLimit, cfg.Engine.QueryTimeout, logger),
		synthesizer: NewAnswerSynthesizer(completion, cfg.LLM.MaxTokens, cfg.Engine.AnswerSampleRows, logger),
		queries:     queries,
		sessions:    NewSessionManager(cfg.Engine.ContextTurns),
		history:     history,
		logger:      logger.Named("orchestrator"),
		backends:    map[string]backend.Backend{},
	}
	o.schemas = cache.NewSchemaCache(cfg.Engine.SchemaTTL, o.discoverSchema, logger)
	return o, nil
}

func (o *Orchestrator) discoverSchema(ctx context.Context, identity models.ConnectionIdentity) (*models.Schema, error) {
	be, err := o.getBackend(ctx, identity)
	if err != nil {
		return nil, err
	}
	return be.DiscoverSchema(ctx)
}

// getBackend returns the cached adapter for the identity, creating it on
// first use. Adapters hold connection pools and are reused across
// questions.
func (o *Orchestrator) getBackend(ctx context.Context, identity models.ConnectionIdentity) (backend.Backend, error) {
	key := identity.Key()

	o.mu.Lock()
	be, ok := o.backends[key]
	o.mu.Unlock()
	if ok {
		return be, nil
	}

	be, err := o.factory.Create(ctx, identity)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if existing, ok := o.backends[key]; ok {
		// Lost the race; keep the first adapter.
		_ = be.Close()
		return existing, nil
	}
	o.backends[key] = be
	return be, nil
}

// AnswerQuestion runs one full orchestration. It never returns an error:
// every failure mode is carried inside the result so callers get the
// attempt trail regardless of outcome.
func (o *Orchestrator) AnswerQuestion(ctx context.Context, req Request) *models.OrchestrationResult {
	start := time.Now()
	language := models.LanguageFor(req.Identity.Kind)
	result := &models.OrchestrationResult{Language: language}
	defer func() { result.Elapsed = time.Since(start) }()

	if ctx.Err() != nil {
		result.FailureKind = models.FailureDeadlineExceeded
		return result
	}

	be, err := o.getBackend(ctx, req.Identity)
	if err != nil {
		o.failSetup(result, err, "backend unavailable")
		return result
	}

	schema, err := o.schemas.Get(ctx, req.Identity)
	if err != nil {
		o.failSetup(result, err, "schema discovery failed")
		return result
	}

	var currentQuery string
	if cached, ok := o.queries.Lookup(req.Identity, req.Question); ok {
		// A hit only seeds the query; it still runs against the live
		// backend so the answer is never served from stale results.
		currentQuery = cached.Query
		result.CacheHit = true
		o.logger.Info("similar question cached",
			zap.String("question", logging.Truncate(req.Question, logging.MaxQueryLogLength)))
	} else {
		conversation := o.sessions.Get(req.SessionID).Recent(o.cfg.ContextTurns)
		currentQuery, err = o.generator.Generate(ctx, req.Question, schema, conversation, language)
		if err != nil {
			result.FailureKind = models.FailureGeneration
			result.Attempts = append(result.Attempts, models.QueryAttempt{
				Sequence: 1,
				Language: language,
				Error:    logging.SanitizeError(err),
			})
			return result
		}
	}

	for {
		if ctx.Err() != nil {
			result.FailureKind = models.FailureDeadlineExceeded
			return result
		}

		execResult, duration, execErr := o.executor.Execute(ctx, be, currentQuery, language)
		attempt := models.QueryAttempt{
			Sequence: len(result.Attempts) + 1,
			Query:    currentQuery,
			Language: language,
			Duration: duration,
		}

		if execErr == nil {
			attempt.Success = true
			attempt.RowCount = execResult.TotalRows
			result.Attempts = append(result.Attempts, attempt)
			o.finishSuccess(ctx, req, result, currentQuery, execResult, start)
			return result
		}

		attempt.Error = execErr.Message
		attempt.ErrorKind = string(execErr.Kind)
		result.Attempts = append(result.Attempts, attempt)

		if execErr.Environmental() && !o.cfg.RepairEnvironmental {
			// No rewrite fixes a revoked grant or a dead connection.
			result.FailureKind = models.FailureEnvironmental
			return result
		}
		if len(result.Attempts) >= o.cfg.MaxAttempts {
			result.FailureKind = models.FailureExhausted
			return result
		}
		if ctx.Err() != nil {
			result.FailureKind = models.FailureDeadlineExceeded
			return result
		}

		repaired, err := o.corrector.Repair(ctx, currentQuery, execErr, schema, language)
		if err != nil {
			result.FailureKind = models.FailureCorrection
			return result
		}
		if strings.TrimSpace(repaired) == strings.TrimSpace(currentQuery) {
			// The model echoed the failed query back; retrying it would
			// burn the budget on identical failures.
			o.logger.Info("correction returned identical query, stopping",
				zap.Int("attempts", len(result.Attempts)))
			result.FailureKind = models.FailureCorrection
			return result
		}
		currentQuery = repaired
	}
}

// failSetup records a pre-execution failure (backend creation or schema
// discovery) as a single failed attempt.
func (o *Orchestrator) failSetup(result *models.OrchestrationResult, err error, stage string) {
	execErr := backend.Classify(err)
	if execErr.Environmental() {
		result.FailureKind = models.FailureEnvironmental
	} else {
		result.FailureKind = models.FailureGeneration
	}
	result.Attempts = append(result.Attempts, models.QueryAttempt{
		Sequence:  1,
		Language:  result.Language,
		Error:     stage + ": " + logging.SanitizeError(err),
		ErrorKind: string(execErr.Kind),
	})
}

func (o *Orchestrator) finishSuccess(
	ctx context.Context,
	req Request,
	result *models.OrchestrationResult,
	query string,
	execResult *backend.QueryResult,
	start time.Time,
) {
	result.Success = true
	result.Query = query
	result.Columns = execResult.Columns
	result.TotalRows = execResult.TotalRows
	result.Rows = execResult.Rows
	if len(result.Rows) > o.cfg.ResultRowCap {
		result.Rows = result.Rows[:o.cfg.ResultRowCap]
	}
	result.Answer = o.synthesizer.Summarize(ctx, req.Question, query, result.Language, execResult)

	o.queries.Store(req.Identity, req.Question, query, result.Language)
	o.sessions.Get(req.SessionID).Append(models.ContextEntry{
		Question:  req.Question,
		Query:     query,
		Language:  result.Language,
		Timestamp: time.Now(),
	})

	if o.history != nil {
		entry := &models.QueryHistoryEntry{
			ID:           uuid.New(),
			SessionID:    req.SessionID,
			BackendKind:  req.Identity.Kind,
			Question:     req.Question,
			Query:        query,
			Language:     result.Language,
			Answer:       result.Answer,
			RowCount:     result.TotalRows,
			AttemptCount: len(result.Attempts),
			Elapsed:      time.Since(start),
			CreatedAt:    time.Now(),
		}
		if err := o.history.Record(ctx, entry); err != nil {
			o.logger.Warn("query history write failed",
				zap.String("error", logging.SanitizeError(err)))
		}
	}
}

// ClearContext drops a session's conversation window. Reports whether
// the session existed.
func (o *Orchestrator) ClearContext(sessionID uuid.UUID) bool {
	return o.sessions.Clear(sessionID)
}

// Reconnect tears down the cached adapter for an identity and drops its
// schema and question caches, forcing rediscovery on the next question.
func (o *Orchestrator) Reconnect(identity models.ConnectionIdentity) {
	key := identity.Key()

	o.mu.Lock()
	be, ok := o.backends[key]
	delete(o.backends, key)
	o.mu.Unlock()
	if ok {
		_ = be.Close()
	}

	o.schemas.Invalidate(identity)
	o.queries.Invalidate(identity)
	o.logger.Info("connection reset", zap.String("identity", key))
}

// Close releases all cached backend adapters.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for key, be := range o.backends {
		_ = be.Close()
		delete(o.backends, key)
	}
}
