// Package geo resolves client IP addresses to a coarse location.
package geo

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/smartlinks/smartlinks/internal/metrics"
	"github.com/smartlinks/smartlinks/internal/model"
)

var (
	// ErrLookupFailed is returned when a provider cannot resolve an address.
	ErrLookupFailed = errors.New("geo lookup failed")
	// ErrRateLimited is returned when a provider's request quota is exhausted.
	ErrRateLimited = errors.New("geo lookup rate limited")
	// ErrInvalidIP is returned for unparseable addresses.
	ErrInvalidIP = errors.New("invalid ip address")
)

// SourceFallback marks results produced for non-routable addresses.
const SourceFallback = "fallback"

// Provider resolves a public IP address.
type Provider interface {
	Lookup(ctx context.Context, ip string) (*model.GeoResult, error)
	Name() string
}

// Cache stores lookup results keyed by an HMAC of the address. GetGeo returns nil, nil on a miss.
type Cache interface {
	GetGeo(ctx context.Context, key string) (*model.GeoResult, error)
	SetGeo(ctx context.Context, key string, result model.GeoResult, ttl time.Duration) error
}

// Options configures a Locator.
type Options struct {
	Providers []Provider
	Cache     Cache
	CacheTTL  time.Duration
	// CacheSecret keys the address HMAC. A random per-process secret is used when empty.
	CacheSecret []byte
	// Fallback is returned for private, loopback and reserved addresses.
	Fallback model.GeoResult
	Metrics  metrics.Recorder
	Logger   *slog.Logger
}

// Locator resolves IPs through an ordered provider chain.
type Locator struct {
	providers []Provider
	cache     Cache
	cacheTTL  time.Duration
	keySecret []byte
	fallback  model.GeoResult
	metrics   metrics.Recorder
	logger    *slog.Logger
}

// NewLocator creates a Locator.
func NewLocator(opts Options) *Locator {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	fallback := opts.Fallback
	fallback.Source = SourceFallback

	secret := opts.CacheSecret
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic("geo: read random cache secret: " + err.Error())
		}
	}

	return &Locator{
		providers: opts.Providers,
		cache:     opts.Cache,
		cacheTTL:  opts.CacheTTL,
		keySecret: secret,
		fallback:  fallback,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
}

// Locate returns the location of ip, or nil when it cannot be determined.
// Non-routable addresses get the configured fallback without any provider call.
// Failures are logged and never returned; geo data is best-effort.
func (l *Locator) Locate(ctx context.Context, ip string) *model.GeoResult {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		l.metrics.IncGeoLookup("skipped")
		return nil
	}

	if IsReserved(parsed) {
		l.metrics.IncGeoLookup("fallback")
		result := l.fallback
		return &result
	}

	addr := parsed.String()
	key := l.CacheKey(addr)
	if l.cache != nil {
		cached, err := l.cache.GetGeo(ctx, key)
		if err != nil {
			l.logger.Warn("geo cache read failed", "error", err)
		} else if cached != nil {
			l.metrics.IncGeoLookup("cached")
			return cached
		}
	}

	for _, p := range l.providers {
		result, err := p.Lookup(ctx, addr)
		if err != nil {
			l.logger.Warn("geo lookup failed", "provider", p.Name(), "error", err)
			continue
		}

		if l.cache != nil && l.cacheTTL > 0 {
			if err := l.cache.SetGeo(ctx, key, *result, l.cacheTTL); err != nil {
				l.logger.Warn("geo cache write failed", "error", err)
			}
		}
		l.metrics.IncGeoLookup("success")
		return result
	}

	l.metrics.IncGeoLookup("failed")
	return nil
}

// CacheKey returns the HMAC-SHA256 of ip under the locator's secret, so
// cache keys cannot be reversed by hashing the IPv4 space.
func (l *Locator) CacheKey(ip string) string {
	mac := hmac.New(sha256.New, l.keySecret)
	mac.Write([]byte(ip))
	return hex.EncodeToString(mac.Sum(nil))
}
