package services

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
)

// ConversationContext is a fixed-capacity ring of successful turns for
// one session. Only successful orchestrations are appended; a failed
// query would poison follow-up generation.
type ConversationContext struct {
	mu       sync.Mutex
	capacity int
	entries  []models.ContextEntry
}

// NewConversationContext creates a context window holding the last
// capacity turns.
func NewConversationContext(capacity int) *ConversationContext {
	return &ConversationContext{capacity: capacity}
}

// Append records a turn, evicting the oldest once capacity is reached.
func (c *ConversationContext) Append(entry models.ContextEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
	if len(c.entries) > c.capacity {
		c.entries = c.entries[len(c.entries)-c.capacity:]
	}
}

// Recent returns up to n entries, oldest first, most recent last. The
// returned slice is a copy; callers cannot mutate the window.
func (c *ConversationContext) Recent(n int) []models.ContextEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > len(c.entries) {
		n = len(c.entries)
	}
	out := make([]models.ContextEntry, n)
	copy(out, c.entries[len(c.entries)-n:])
	return out
}

// Clear empties the window.
func (c *ConversationContext) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}

// Len reports the number of stored entries.
func (c *ConversationContext) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// SessionManager owns per-session conversation contexts. Sessions are
// independent; concurrent questions from different sessions never share
// a window.
type SessionManager struct {
	mu       sync.Mutex
	capacity int
	sessions map[uuid.UUID]*ConversationContext
}

// NewSessionManager creates a session manager whose contexts hold
// capacity turns each.
func NewSessionManager(capacity int) *SessionManager {
	return &SessionManager{
		capacity: capacity,
		sessions: map[uuid.UUID]*ConversationContext{},
	}
}

// Get returns the session's context, creating it on first use.
func (m *SessionManager) Get(sessionID uuid.UUID) *ConversationContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, ok := m.sessions[sessionID]
	if !ok {
		ctx = NewConversationContext(m.capacity)
		m.sessions[sessionID] = ctx
	}
	return ctx
}

// Clear drops the session's context. Reports whether it existed.
func (m *SessionManager) Clear(sessionID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return false
	}
	delete(m.sessions, sessionID)
	return true
}
