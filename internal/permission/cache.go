package permission

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

const (
	// CacheTTL is the default time-to-live for cached permission values in the shared tier.
	CacheTTL = 300 * time.Second

	// CachePrefix is the key prefix for cached permissions in Valkey.
	CachePrefix = "perms"

	// InvalidateChannel is the pub/sub channel for cache invalidation.
	InvalidateChannel = "pagekeeper.cache.invalidate"

	// scanBatchSize is the number of keys to retrieve per SCAN iteration.
	scanBatchSize = 100

	// localCacheSize bounds the in-process first tier.
	localCacheSize = 4096
)

// cacheEntryKey identifies one cached permission value. PageID is 0 for a member's guild-scoped (page-independent)
// permissions, since real page IDs are bigserial and start at 1.
type cacheEntryKey struct {
	GuildID int64
	UserID  int64
	PageID  int64
}

func cacheKey(k cacheEntryKey) string {
	return fmt.Sprintf("%s:%d:%d:%d", CachePrefix, k.GuildID, k.UserID, k.PageID)
}

// Cache provides get/set/delete operations for computed permission values, keyed by (guild, user, page).
type Cache interface {
	Get(ctx context.Context, guildID, userID, pageID int64) (Flags, bool, error)
	Set(ctx context.Context, guildID, userID, pageID int64, perm Flags) error
	DeleteByUser(ctx context.Context, guildID, userID int64) error
	DeleteByGuild(ctx context.Context, guildID int64) error
	DeleteExact(ctx context.Context, guildID, userID, pageID int64) error
}

// TieredCache is a two-tier permission cache: an in-process LRU ahead of a shared Valkey/Redis tier. The local tier
// absorbs repeat lookups for the same process (a busy page gets re-checked on every message in its channel); the
// shared tier lets invalidations and misses stay consistent across replicas.
type TieredCache struct {
	local *lru.Cache[cacheEntryKey, Flags]
	redis *redis.Client
}

// NewTieredCache creates a new two-tier permission cache backed by client.
func NewTieredCache(client *redis.Client) (*TieredCache, error) {
	local, err := lru.New[cacheEntryKey, Flags](localCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create local cache: %w", err)
	}
	return &TieredCache{local: local, redis: client}, nil
}

func (c *TieredCache) Get(ctx context.Context, guildID, userID, pageID int64) (Flags, bool, error) {
	key := cacheEntryKey{GuildID: guildID, UserID: userID, PageID: pageID}
	if v, ok := c.local.Get(key); ok {
		return v, true, nil
	}

	val, err := c.redis.Get(ctx, cacheKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("cache get: %w", err)
	}

	n, err := strconv.ParseUint(val, 10, 8)
	if err != nil {
		return 0, false, fmt.Errorf("parse cached permission: %w", err)
	}

	perm := Flags(n)
	c.local.Add(key, perm)
	return perm, true, nil
}

func (c *TieredCache) Set(ctx context.Context, guildID, userID, pageID int64, perm Flags) error {
	key := cacheEntryKey{GuildID: guildID, UserID: userID, PageID: pageID}
	c.local.Add(key, perm)

	err := c.redis.Set(ctx, cacheKey(key), strconv.FormatUint(uint64(perm), 10), CacheTTL).Err()
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *TieredCache) DeleteByUser(ctx context.Context, guildID, userID int64) error {
	c.purgeLocal(func(k cacheEntryKey) bool { return k.GuildID == guildID && k.UserID == userID })
	return c.scanAndDelete(ctx, fmt.Sprintf("%s:%d:%d:*", CachePrefix, guildID, userID))
}

func (c *TieredCache) DeleteByGuild(ctx context.Context, guildID int64) error {
	c.purgeLocal(func(k cacheEntryKey) bool { return k.GuildID == guildID })
	return c.scanAndDelete(ctx, fmt.Sprintf("%s:%d:*", CachePrefix, guildID))
}

func (c *TieredCache) DeleteExact(ctx context.Context, guildID, userID, pageID int64) error {
	key := cacheEntryKey{GuildID: guildID, UserID: userID, PageID: pageID}
	c.local.Remove(key)
	return c.redis.Del(ctx, cacheKey(key)).Err()
}

func (c *TieredCache) purgeLocal(match func(cacheEntryKey) bool) {
	for _, key := range c.local.Keys() {
		if match(key) {
			c.local.Remove(key)
		}
	}
}

func (c *TieredCache) scanAndDelete(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("scan keys %q: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := c.redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}
