package device

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/smartlinks/smartlinks/internal/metrics"
	"github.com/smartlinks/smartlinks/internal/model"
)

// Cache stores detection results keyed by CacheKey. GetDevice returns nil, nil on a miss.
type Cache interface {
	GetDevice(ctx context.Context, key string) (*model.DeviceInfo, error)
	SetDevice(ctx context.Context, key string, info model.DeviceInfo, ttl time.Duration) error
}

// CachedDetector memoises Detector results for identical user agents.
// Concurrent writers to the same key race harmlessly: the value is a pure function of the key.
type CachedDetector struct {
	detector *Detector
	cache    Cache
	ttl      time.Duration
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// NewCachedDetector wraps detector. A nil cache or a zero ttl disables caching.
func NewCachedDetector(detector *Detector, cache Cache, ttl time.Duration, m metrics.Recorder, logger *slog.Logger) *CachedDetector {
	if m == nil {
		m = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedDetector{
		detector: detector,
		cache:    cache,
		ttl:      ttl,
		metrics:  m,
		logger:   logger,
	}
}

// Detect returns the cached DeviceInfo for userAgent, parsing and storing it on a miss.
// Cache errors degrade to a plain parse.
func (c *CachedDetector) Detect(ctx context.Context, userAgent string) model.DeviceInfo {
	if c.cache == nil || c.ttl <= 0 || userAgent == "" {
		return c.detector.Detect(userAgent)
	}

	key := CacheKey(userAgent)
	cached, err := c.cache.GetDevice(ctx, key)
	if err != nil {
		c.logger.Warn("device cache read failed", "error", err)
	} else if cached != nil {
		c.metrics.IncDeviceCache(true)
		return *cached
	}
	c.metrics.IncDeviceCache(false)

	info := c.detector.Detect(userAgent)
	if err := c.cache.SetDevice(ctx, key, info, c.ttl); err != nil {
		c.logger.Warn("device cache write failed", "error", err)
	}
	return info
}

// CacheKey derives a fixed-length key from a user agent.
func CacheKey(userAgent string) string {
	sum := sha256.Sum256([]byte(userAgent))
	return hex.EncodeToString(sum[:])
}
