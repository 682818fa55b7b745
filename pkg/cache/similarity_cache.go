package cache

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
)

// CachedQuery is a remembered way of asking: the question, the query
// that answered it, and its language. The cache never stores result
// rows — the data underneath changes, so a hit is always re-executed
// against the live backend.
type CachedQuery struct {
	Question string
	Query    string
	Language models.QueryLanguage
	CachedAt time.Time
}

// SimilarityCache maps normalized question fingerprints to previously
// successful queries, keyed per connection identity. Lookups tolerate
// rephrasing via a similarity threshold; capacity is LRU-bounded.
type SimilarityCache struct {
	threshold float64
	logger    *zap.Logger

	mu  sync.Mutex
	lru *lru.Cache[string, CachedQuery]
}

// NewSimilarityCache creates a similarity cache. size bounds the number
// of remembered questions across all identities.
func NewSimilarityCache(size int, threshold float64, logger *zap.Logger) (*SimilarityCache, error) {
	l, err := lru.New[string, CachedQuery](size)
	if err != nil {
		return nil, err
	}
	return &SimilarityCache{
		threshold: threshold,
		logger:    logger.Named("similarity-cache"),
		lru:       l,
	}, nil
}

func cacheKey(identity models.ConnectionIdentity, fingerprint string) string {
	return identity.Key() + "\x00" + fingerprint
}

func splitKey(key string) (identityKey, fingerprint string) {
	if i := strings.IndexByte(key, '\x00'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return key, ""
}

// Lookup finds the best stored query whose fingerprint is at least
// threshold-similar to the question's, within the same identity.
func (c *SimilarityCache) Lookup(identity models.ConnectionIdentity, question string) (CachedQuery, bool) {
	fp := Fingerprint(question)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Exact fingerprint match first; it also refreshes LRU recency.
	if entry, ok := c.lru.Get(cacheKey(identity, fp)); ok {
		c.logger.Debug("similarity cache exact hit", zap.String("question", question))
		return entry, true
	}

	bestScore := 0.0
	var bestKey string
	for _, key := range c.lru.Keys() {
		idKey, storedFP := splitKey(key)
		if idKey != identity.Key() {
			continue
		}
		if score := Similarity(fp, storedFP); score > bestScore {
			bestScore = score
			bestKey = key
		}
	}

	if bestScore >= c.threshold {
		if entry, ok := c.lru.Get(bestKey); ok {
			c.logger.Debug("similarity cache fuzzy hit",
				zap.String("question", question),
				zap.Float64("score", bestScore))
			return entry, true
		}
	}
	return CachedQuery{}, false
}

// Store remembers a successful question/query pair, overwriting any
// prior entry with the same fingerprint.
func (c *SimilarityCache) Store(identity models.ConnectionIdentity, question, query string, language models.QueryLanguage) {
	entry := CachedQuery{
		Question: question,
		Query:    query,
		Language: language,
		CachedAt: time.Now(),
	}
	c.mu.Lock()
	c.lru.Add(cacheKey(identity, Fingerprint(question)), entry)
	c.mu.Unlock()
}

// Invalidate drops all entries for an identity; called on reconnect.
func (c *SimilarityCache) Invalidate(identity models.ConnectionIdentity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.lru.Keys() {
		if idKey, _ := splitKey(key); idKey == identity.Key() {
			c.lru.Remove(key)
		}
	}
}

// Len reports the number of stored entries.
func (c *SimilarityCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
