package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"study-indexer-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// cacheStore 抽象向量缓存的读写，生产实现基于 Redis。
// Get 的第二个返回值表示是否命中。
type cacheStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type redisCacheStore struct {
	rdb *redis.Client
}

func (s redisCacheStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s redisCacheStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

// cachedClient 用缓存包装底层 Client。
// 键为模型名 + 文本摘要，同一段文本重复摄取（例如全量重建）时省去远程调用。
// 缓存层任何故障都只降级为直连，绝不影响结果正确性。
type cachedClient struct {
	inner Client
	cache cacheStore
	ttl   time.Duration
}

// NewCachedClient 创建一个带 Redis 缓存的 embedding 客户端。
func NewCachedClient(inner Client, rdb *redis.Client, ttl time.Duration) Client {
	return newCachedClient(inner, redisCacheStore{rdb: rdb}, ttl)
}

func newCachedClient(inner Client, cache cacheStore, ttl time.Duration) Client {
	return &cachedClient{inner: inner, cache: cache, ttl: ttl}
}

func (c *cachedClient) ModelVersion() string {
	return c.inner.ModelVersion()
}

// CreateEmbedding 先查缓存，未命中时调用底层客户端并回填。
func (c *cachedClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	cached, hit, err := c.cache.Get(ctx, key)
	if err != nil {
		log.Warnf("[EmbeddingCache] 读取缓存失败, 降级为直连: %v", err)
	} else if hit {
		var vector []float32
		if jsonErr := json.Unmarshal([]byte(cached), &vector); jsonErr == nil && len(vector) > 0 {
			return vector, nil
		}
		// 缓存内容损坏时当作未命中处理
		log.Warnf("[EmbeddingCache] 缓存内容无法解析, key: %s", key)
	}

	vector, err := c.inner.CreateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	if vectorBytes, jsonErr := json.Marshal(vector); jsonErr == nil {
		if setErr := c.cache.Set(ctx, key, string(vectorBytes), c.ttl); setErr != nil {
			log.Warnf("[EmbeddingCache] 写入缓存失败: %v", setErr)
		}
	}
	return vector, nil
}

func (c *cachedClient) cacheKey(text string) string {
	digest := sha256.Sum256([]byte(text))
	return fmt.Sprintf("emb:%s:%s", c.inner.ModelVersion(), hex.EncodeToString(digest[:]))
}
