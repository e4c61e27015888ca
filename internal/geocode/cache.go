package geocode

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"receipt-agent/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

type cachedLocation struct {
	Matched  bool      `json:"matched"`
	Location *Location `json:"location,omitempty"`
}

// CachedGeocoder keeps results, including misses, in Redis keyed by the normalized address.
type CachedGeocoder struct {
	next   Geocoder
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedGeocoder(next Geocoder, client *redis.Client, ttl time.Duration, log logger.Logger) *CachedGeocoder {
	return &CachedGeocoder{next: next, client: client, ttl: ttl, logger: log}
}

func cacheKey(address string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(address)), " ")
	return fmt.Sprintf("geocode:%x", sha256.Sum256([]byte(normalized)))
}

func (c *CachedGeocoder) Geocode(ctx context.Context, address string) (*Location, error) {
	key := cacheKey(address)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var hit cachedLocation
		if json.Unmarshal(data, &hit) == nil {
			if !hit.Matched {
				return nil, ErrNoMatch
			}
			return hit.Location, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("geocode cache read failed", map[string]interface{}{"error": err})
	}

	loc, err := c.next.Geocode(ctx, address)
	if err != nil && !errors.Is(err, ErrNoMatch) {
		return nil, err
	}

	entry := cachedLocation{Matched: err == nil, Location: loc}
	if raw, mErr := json.Marshal(entry); mErr == nil {
		if sErr := c.client.Set(ctx, key, raw, c.ttl).Err(); sErr != nil {
			c.logger.Warn("geocode cache write failed", map[string]interface{}{"error": sErr})
		}
	}
	return loc, err
}
