package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/apperrors"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/repositories"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/services"
)

const defaultHistoryLimit = 50

// ChatEngine is the orchestration surface the chat handler depends on.
type ChatEngine interface {
	AnswerQuestion(ctx context.Context, req services.Request) *models.OrchestrationResult
	ClearContext(sessionID uuid.UUID) bool
	Reconnect(identity models.ConnectionIdentity)
}

// ChatHandler serves the question-answering API.
type ChatHandler struct {
	engine   ChatEngine
	history  repositories.QueryHistoryRepository // nil when persistence is disabled
	defaults map[models.BackendKind]models.ConnectionIdentity
	logger   *zap.Logger
}

// NewChatHandler creates a new ChatHandler. history may be nil. defaults
// supplies per-kind connection identities used when a request omits
// endpoint or database.
func NewChatHandler(
	engine ChatEngine,
	history repositories.QueryHistoryRepository,
	defaults map[models.BackendKind]models.ConnectionIdentity,
	logger *zap.Logger,
) *ChatHandler {
	return &ChatHandler{engine: engine, history: history, defaults: defaults, logger: logger}
}

// RegisterRoutes registers the chat handler's routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat/unified", h.Ask)
	mux.HandleFunc("DELETE /api/chat/context/{session_id}", h.ClearContext)
	mux.HandleFunc("GET /api/chat/history/{session_id}", h.History)
	mux.HandleFunc("POST /api/chat/reconnect", h.Reconnect)
}

type chatRequest struct {
	Question  string                    `json:"question"`
	SessionID string                    `json:"session_id,omitempty"`
	Backend   models.ConnectionIdentity `json:"backend"`
}

type chatResponse struct {
	SessionID string                      `json:"session_id"`
	Result    *models.OrchestrationResult `json:"result"`
}

// Ask handles POST /api/chat/unified: one question, one answer, with the
// full attempt trail in the response.
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "question is required")
		return
	}
	req.Backend = h.applyDefaults(req.Backend)
	if err := req.Backend.Validate(); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_backend", err.Error())
		return
	}

	sessionID := uuid.New()
	if req.SessionID != "" {
		parsed, err := uuid.Parse(req.SessionID)
		if err != nil {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_session", "session_id must be a UUID")
			return
		}
		sessionID = parsed
	}

	result := h.engine.AnswerQuestion(r.Context(), services.Request{
		Question:  req.Question,
		SessionID: sessionID,
		Identity:  req.Backend,
	})

	if err := WriteJSON(w, http.StatusOK, chatResponse{
		SessionID: sessionID.String(),
		Result:    result,
	}); err != nil {
		h.logger.Error("Failed to encode chat response", zap.Error(err))
	}
}

// ClearContext handles DELETE /api/chat/context/{session_id}.
func (h *ChatHandler) ClearContext(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.PathValue("session_id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_session", "session_id must be a UUID")
		return
	}

	if !h.engine.ClearContext(sessionID) {
		_ = ErrorResponse(w, http.StatusNotFound, "session_not_found", apperrors.ErrSessionNotFound.Error())
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// History handles GET /api/chat/history/{session_id}?limit=N.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		_ = ErrorResponse(w, http.StatusNotImplemented, "history_disabled", apperrors.ErrHistoryDisabled.Error())
		return
	}

	sessionID, err := uuid.Parse(r.PathValue("session_id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_session", "session_id must be a UUID")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, err := h.history.ListBySession(r.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("Failed to list query history", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "history_failed", "could not load query history")
		return
	}
	if entries == nil {
		entries = []models.QueryHistoryEntry{}
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// applyDefaults fills endpoint and database from the configured identity
// for the request's backend kind.
func (h *ChatHandler) applyDefaults(identity models.ConnectionIdentity) models.ConnectionIdentity {
	def, ok := h.defaults[identity.Kind]
	if !ok {
		return identity
	}
	if identity.Endpoint == "" {
		identity.Endpoint = def.Endpoint
	}
	if identity.Database == "" {
		identity.Database = def.Database
	}
	return identity
}

type reconnectRequest struct {
	Backend models.ConnectionIdentity `json:"backend"`
}

// Reconnect handles POST /api/chat/reconnect: drops the cached adapter,
// schema, and cached queries for a backend so the next question starts
// from a fresh connection.
func (h *ChatHandler) Reconnect(w http.ResponseWriter, r *http.Request) {
	var req reconnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}
	req.Backend = h.applyDefaults(req.Backend)
	if err := req.Backend.Validate(); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_backend", err.Error())
		return
	}

	h.engine.Reconnect(req.Backend)
	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "reconnected"})
}
