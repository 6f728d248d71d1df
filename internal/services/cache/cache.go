package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/modelrelay/modelrelay/internal/models"
)

// ResponseCache stores completed chat responses keyed by request
// fingerprint. Entries expire after the configured TTL and the least
// recently used entry is evicted when the cache is full.
type ResponseCache struct {
	entries *lru.LRU[string, *models.ChatCompletionResponse]
	enabled bool
}

func New(cfg models.CacheConfig) *ResponseCache {
	if !cfg.Enabled {
		return &ResponseCache{}
	}
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	return &ResponseCache{
		entries: lru.NewLRU[string, *models.ChatCompletionResponse](cfg.MaxEntries, nil, ttl),
		enabled: true,
	}
}

// Enabled reports whether the cache stores anything at all.
func (c *ResponseCache) Enabled() bool {
	return c != nil && c.enabled
}

// Get returns the cached response for key, or nil.
func (c *ResponseCache) Get(key string) (*models.ChatCompletionResponse, bool) {
	if !c.Enabled() {
		return nil, false
	}
	return c.entries.Get(key)
}

// Set stores resp under key.
func (c *ResponseCache) Set(key string, resp *models.ChatCompletionResponse) {
	if !c.Enabled() || resp == nil {
		return
	}
	c.entries.Add(key, resp)
}

// Len returns the number of live entries.
func (c *ResponseCache) Len() int {
	if !c.Enabled() {
		return 0
	}
	return c.entries.Len()
}

// Fingerprint derives the cache key for a request on behalf of clientID.
// The digest covers the model, every message in order, the temperature and
// the client identity, so identical requests from different clients never
// share an entry.
func Fingerprint(req *models.ChatCompletionRequest, clientID string) string {
	h := sha256.New()

	writeField(h, req.Model)
	var count [8]byte
	binary.BigEndian.PutUint64(count[:], uint64(len(req.Messages)))
	h.Write(count[:])
	for _, m := range req.Messages {
		writeField(h, m.Role)
		writeField(h, m.Content)
	}
	if req.Temperature != nil {
		writeField(h, strconv.FormatFloat(*req.Temperature, 'g', -1, 64))
	} else {
		writeField(h, "")
	}
	writeField(h, clientID)

	return hex.EncodeToString(h.Sum(nil))
}

// writeField length-prefixes each value so adjacent fields cannot collide.
func writeField(h interface{ Write([]byte) (int, error) }, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}

// Cacheable reports whether a request is eligible for response caching.
// Streaming responses and conversation-bound requests are never cached.
func Cacheable(req *models.ChatCompletionRequest) bool {
	return !req.Stream && req.ConversationID == nil
}
