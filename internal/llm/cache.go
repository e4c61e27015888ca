package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"receipt-agent/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

// CachedEmbedder memoizes embeddings in Redis by content hash, so re-submitted receipts and
// calibration runs do not pay for the same text twice.
type CachedEmbedder struct {
	next   Embedder
	client *redis.Client
	model  string
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedEmbedder(next Embedder, client *redis.Client, model string, ttl time.Duration, log logger.Logger) *CachedEmbedder {
	return &CachedEmbedder{next: next, client: client, model: model, ttl: ttl, logger: log}
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "embedding:" + c.model + ":" + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var v []float32
		if err := json.Unmarshal(data, &v); err == nil {
			return v, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("embedding cache read failed", map[string]interface{}{"error": err})
	}

	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(v); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("embedding cache write failed", map[string]interface{}{"error": err})
		}
	}
	return v, nil
}
