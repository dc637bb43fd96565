package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Cache 主登记簿的Redis读穿缓存
// 缓存故障一律按miss处理（只记警告），绝不因缓存层让运行失败
type Cache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// NewCache 创建登记簿缓存
func NewCache(client *redis.Client, key string, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{client: client, key: key, ttl: ttl, logger: logger}
}

// Get 读取缓存的候选列表，第二返回值表示是否命中
func (c *Cache) Get(ctx context.Context) ([]Candidate, bool) {
	payload, err := c.client.Get(ctx, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Registry cache read failed", zap.Error(err))
		return nil, false
	}
	var candidates []Candidate
	if err := json.Unmarshal([]byte(payload), &candidates); err != nil {
		c.logger.Warn("Registry cache payload corrupt", zap.Error(err))
		return nil, false
	}
	if len(candidates) == 0 {
		return nil, false
	}
	c.logger.Info("Registry candidates loaded from cache",
		zap.String("key", c.key),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, true
}

// Put 写入候选列表（带TTL）
func (c *Cache) Put(ctx context.Context, candidates []Candidate) {
	payload, err := json.Marshal(candidates)
	if err != nil {
		c.logger.Warn("Registry cache marshal failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("Registry cache write failed", zap.Error(err))
	}
}

// LoadMaster 读穿加载主登记簿候选：缓存命中直接用，否则HTTP拉取后回填
// HTTP拉取失败返回错误，调用方必须中止运行
func LoadMaster(ctx context.Context, client *Client, cache *Cache) ([]Candidate, int, error) {
	if cache != nil {
		if candidates, ok := cache.Get(ctx); ok {
			return candidates, len(candidates), nil
		}
	}
	rows, total, err := client.FetchRows(ctx)
	if err != nil {
		return nil, 0, err
	}
	candidates := CandidatesFromRows(rows)
	if cache != nil {
		cache.Put(ctx, candidates)
	}
	return candidates, total, nil
}
