package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/stagelog/internal/model"
)

const approvedKeyPrefix = "stagelog:catalog:approved:"

// RedisShowListCache はRedisに承認済み演目一覧をJSONで保存する。
type RedisShowListCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient はRedisクライアントを生成し、疎通を確認する。
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisShowListCache はRedisShowListCacheを生成する。
func NewRedisShowListCache(client *redis.Client, ttl time.Duration) *RedisShowListCache {
	return &RedisShowListCache{client: client, ttl: ttl}
}

// 検索はILIKEで大文字小文字を区別しないため、キーも小文字に正規化する。
func approvedKey(search string) string {
	return approvedKeyPrefix + strings.ToLower(search)
}

// GetApproved はキャッシュ済みの一覧を返す。キーがなければhit=falseを返す。
func (c *RedisShowListCache) GetApproved(ctx context.Context, search string) ([]*model.Show, bool, error) {
	raw, err := c.client.Get(ctx, approvedKey(search)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get catalog cache: %w", err)
	}

	var shows []*model.Show
	if err := json.Unmarshal(raw, &shows); err != nil {
		return nil, false, fmt.Errorf("failed to decode catalog cache: %w", err)
	}
	return shows, true, nil
}

// SetApproved は一覧をTTL付きで保存する。
func (c *RedisShowListCache) SetApproved(ctx context.Context, search string, shows []*model.Show) error {
	if shows == nil {
		shows = []*model.Show{}
	}
	raw, err := json.Marshal(shows)
	if err != nil {
		return fmt.Errorf("failed to encode catalog cache: %w", err)
	}
	if err := c.client.Set(ctx, approvedKey(search), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set catalog cache: %w", err)
	}
	return nil
}

// Invalidate は承認済み一覧のキーをすべて削除する。
// KEYSはRedisをブロックするためSCANで走査する。
func (c *RedisShowListCache) Invalidate(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, approvedKeyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan catalog cache: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete catalog cache: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

var _ ShowListCache = (*RedisShowListCache)(nil)
