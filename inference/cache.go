package inference

import (
	"context"
	"encoding/binary"
	"encoding/json"

	"github.com/Tutortoise/ovaquick/metric"
	"github.com/Tutortoise/ovaquick/models"
	"github.com/cespare/xxhash/v2"
	"github.com/coocood/freecache"
	"github.com/rs/zerolog"
)

// CachingPredictor serves repeated uploads of identical bytes from memory. Failed calls are
// never cached.
type CachingPredictor struct {
	next      Predictor
	cache     *freecache.Cache
	ttlSecond int
}

// NewCachingPredictor wraps next with a freecache of sizeBytes (freecache enforces a 512KiB
// minimum). ttlSecond <= 0 keeps entries until they are evicted.
func NewCachingPredictor(next Predictor, sizeBytes, ttlSecond int) *CachingPredictor {
	if ttlSecond < 0 {
		ttlSecond = 0
	}
	return &CachingPredictor{
		next:      next,
		cache:     freecache.NewCache(sizeBytes),
		ttlSecond: ttlSecond,
	}
}

func (c *CachingPredictor) Predict(ctx context.Context, img models.Image) (*models.PredictionResult, error) {
	key := cacheKey(img.Data)

	if b, err := c.cache.Get(key); err == nil {
		var res models.PredictionResult
		if err := json.Unmarshal(b, &res); err == nil {
			metric.Incr(metric.ResultCacheCount, []string{metric.TagAsString(metric.TagResult, "hit")})
			zerolog.Ctx(ctx).Debug().Msg("prediction served from cache")
			return &res, nil
		}
		c.cache.Del(key)
	}
	metric.Incr(metric.ResultCacheCount, []string{metric.TagAsString(metric.TagResult, "miss")})

	res, err := c.next.Predict(ctx, img)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(res); err == nil {
		if err := c.cache.Set(key, b, c.ttlSecond); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("result not cached")
		}
	}
	return res, nil
}

type CacheStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

func (c *CachingPredictor) Stats() CacheStats {
	return CacheStats{
		Entries: c.cache.EntryCount(),
		Hits:    c.cache.HitCount(),
		Misses:  c.cache.MissCount(),
	}
}

func cacheKey(data []byte) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], xxhash.Sum64(data))
	binary.BigEndian.PutUint64(key[8:], uint64(len(data)))
	return key
}
