// Package cache holds the two shared, process-wide caches: discovered
// schemas (TTL + single-flight) and previously successful queries
// (similarity-matched, LRU-bounded).
package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
)

// SchemaDiscoverer performs the discovery pass for an identity. The
// cache invokes it at most once per identity per TTL window.
type SchemaDiscoverer func(ctx context.Context, identity models.ConnectionIdentity) (*models.Schema, error)

type schemaEntry struct {
	schema    *models.Schema
	fetchedAt time.Time
}

// SchemaCache memoizes discovered schemas per connection identity.
// Concurrent cold-cache calls for the same identity collapse into one
// discovery pass.
type SchemaCache struct {
	ttl      time.Duration
	discover SchemaDiscoverer
	logger   *zap.Logger

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]schemaEntry

	// now is swappable for TTL tests.
	now func() time.Time
}

// NewSchemaCache creates a schema cache over the given discoverer.
func NewSchemaCache(ttl time.Duration, discover SchemaDiscoverer, logger *zap.Logger) *SchemaCache {
	return &SchemaCache{
		ttl:      ttl,
		discover: discover,
		logger:   logger.Named("schema-cache"),
		entries:  map[string]schemaEntry{},
		now:      time.Now,
	}
}

// Get returns the cached schema for the identity, discovering it on a
// cold cache or after TTL expiry. No lock is held across discovery.
func (c *SchemaCache) Get(ctx context.Context, identity models.ConnectionIdentity) (*models.Schema, error) {
	key := identity.Key()

	if schema, ok := c.fresh(key); ok {
		return schema, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		// A concurrent flight may have filled the entry while this
		// caller waited on the group.
		if schema, ok := c.fresh(key); ok {
			return schema, nil
		}

		schema, err := c.discover(ctx, identity)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[key] = schemaEntry{schema: schema, fetchedAt: c.now()}
		c.mu.Unlock()

		c.logger.Info("schema cached",
			zap.String("identity", key),
			zap.Int("entities", len(schema.Entities)))
		return schema, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("schema discovery shared with concurrent caller",
			zap.String("identity", key))
	}
	return v.(*models.Schema), nil
}

func (c *SchemaCache) fresh(key string) (*models.Schema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || c.now().Sub(entry.fetchedAt) >= c.ttl {
		return nil, false
	}
	return entry.schema, true
}

// Invalidate drops the cached schema for an identity; the next Get
// re-discovers.
func (c *SchemaCache) Invalidate(identity models.ConnectionIdentity) {
	c.mu.Lock()
	delete(c.entries, identity.Key())
	c.mu.Unlock()
}
