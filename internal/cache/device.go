package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/smartlinks/smartlinks/internal/model"
)

const (
	deviceKeyPrefix = "device:"
	geoKeyPrefix    = "geo:"
)

// GetDevice returns a cached detection result, or nil on a miss.
func (c *Cache) GetDevice(ctx context.Context, key string) (*model.DeviceInfo, error) {
	var info model.DeviceInfo
	ok, err := c.getJSON(ctx, deviceKeyPrefix+key, &info)
	if err != nil || !ok {
		return nil, err
	}
	return &info, nil
}

// SetDevice caches a detection result.
func (c *Cache) SetDevice(ctx context.Context, key string, info model.DeviceInfo, ttl time.Duration) error {
	return c.setJSON(ctx, deviceKeyPrefix+key, info, ttl)
}

// GetGeo returns a cached geolocation, or nil on a miss.
func (c *Cache) GetGeo(ctx context.Context, key string) (*model.GeoResult, error) {
	var result model.GeoResult
	ok, err := c.getJSON(ctx, geoKeyPrefix+key, &result)
	if err != nil || !ok {
		return nil, err
	}
	return &result, nil
}

// SetGeo caches a geolocation.
func (c *Cache) SetGeo(ctx context.Context, key string, result model.GeoResult, ttl time.Duration) error {
	return c.setJSON(ctx, geoKeyPrefix+key, result, ttl)
}

func (c *Cache) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get %s failed: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (c *Cache) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s failed: %w", key, err)
	}
	return nil
}
