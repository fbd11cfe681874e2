package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/smartlinks/smartlinks/internal/model"
)

// Cache key prefixes and TTLs.
const (
	linkKeyPrefix     = "link:"
	negCacheKeySuffix = ":neg"

	// DefaultLinkTTL is the TTL for cached link data.
	DefaultLinkTTL = 24 * time.Hour

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = 5 * time.Minute
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

// linkKey scopes a slug to its site.
func linkKey(siteID int64, slug string) string {
	return linkKeyPrefix + strconv.FormatInt(siteID, 10) + ":" + slug
}

// linkTTL bounds the cache lifetime by the link's expiry. A non-positive result
// means the link must not be cached.
func linkTTL(link *model.Link, now time.Time) time.Duration {
	ttl := DefaultLinkTTL
	if link.DateExpired != nil {
		expiresIn := link.DateExpired.Sub(now)
		if expiresIn < ttl {
			ttl = expiresIn
		}
	}
	if link.PostDate != nil {
		if startsIn := link.PostDate.Sub(now); startsIn > 0 && startsIn < ttl {
			ttl = startsIn
		}
	}
	return ttl
}

// GetLink retrieves a link from cache by site and slug.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetLink(ctx context.Context, siteID int64, slug string) (*model.Link, error) {
	data, err := c.client.Get(ctx, linkKey(siteID, slug)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var link model.Link
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, fmt.Errorf("failed to decode cached link: %w", err)
	}
	return &link, nil
}

// SetLink stores a link in cache and clears its negative entry.
func (c *Cache) SetLink(ctx context.Context, link *model.Link) error {
	key := linkKey(link.SiteID, link.Slug)

	ttl := linkTTL(link, time.Now())
	if ttl <= 0 {
		c.client.Del(ctx, key, key+negCacheKeySuffix)
		return nil
	}

	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("failed to encode link: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, key, data, ttl)
	pipe.Del(ctx, key+negCacheKeySuffix)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache link: %w", err)
	}

	return nil
}

// DeleteLink removes a link from cache.
func (c *Cache) DeleteLink(ctx context.Context, siteID int64, slug string) error {
	key := linkKey(siteID, slug)

	pipe := c.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.Del(ctx, key+negCacheKeySuffix)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete link from cache: %w", err)
	}

	return nil
}

// IsNegativelyCached checks if a slug is in negative cache.
func (c *Cache) IsNegativelyCached(ctx context.Context, siteID int64, slug string) (bool, error) {
	exists, err := c.client.Exists(ctx, linkKey(siteID, slug)+negCacheKeySuffix).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}

	return exists > 0, nil
}

// SetNegativeCache marks a slug as not found.
func (c *Cache) SetNegativeCache(ctx context.Context, siteID int64, slug string) error {
	err := c.client.SetEx(ctx, linkKey(siteID, slug)+negCacheKeySuffix, "", NegativeCacheTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}

	return nil
}
