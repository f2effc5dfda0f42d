package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// PreviewCache кэш ответов сервиса превью, ключ — оригинальный URL.
// Тут кэшировать безопасно: превью не участвует в бизнес-правилах ядра.
type PreviewCache interface {
	Get(ctx context.Context, originalURL string) ([]byte, error)
	Set(ctx context.Context, originalURL string, payload []byte, ttl time.Duration) error
}

type previewCache struct {
	redis *RedisDB
}

func NewPreviewCache(redis *RedisDB) PreviewCache {
	return &previewCache{redis: redis}
}

func (c *previewCache) Get(ctx context.Context, originalURL string) ([]byte, error) {
	return c.redis.Client.Get(ctx, c.key(originalURL)).Bytes()
}

func (c *previewCache) Set(ctx context.Context, originalURL string, payload []byte, ttl time.Duration) error {
	return c.redis.Client.Set(ctx, c.key(originalURL), payload, ttl).Err()
}

// URL может быть произвольной длины, поэтому в ключе лежит его хэш.
func (c *previewCache) key(originalURL string) string {
	sum := sha256.Sum256([]byte(originalURL))
	return "preview:" + hex.EncodeToString(sum[:])
}
