package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/goccy/go-json"
)

// Language detection methods.
const (
	LanguageFromBrowser = "browser"
	LanguageFromIP      = "ip"
	LanguageFromBoth    = "both"
)

// MaxAnalyticsRetention is the upper bound for AnalyticsRetention, in days.
const MaxAnalyticsRetention = 3650

// SettingsEnvPrefix prefixes every environment override of Settings.
const SettingsEnvPrefix = "SMARTLINKS_"

// Settings is the smart-link behaviour snapshot consumed by the core.
// It is resolved once as defaults <- database <- environment and then treated as immutable.
type Settings struct {
	EnableAnalytics    bool `json:"enableAnalytics" env:"ENABLE_ANALYTICS"`
	AnalyticsRetention int  `json:"analyticsRetention" env:"ANALYTICS_RETENTION"`
	EnableGeoDetection bool `json:"enableGeoDetection" env:"ENABLE_GEO_DETECTION"`

	CacheDeviceDetection         bool `json:"cacheDeviceDetection" env:"CACHE_DEVICE_DETECTION"`
	DeviceDetectionCacheDuration int  `json:"deviceDetectionCacheDuration" env:"DEVICE_DETECTION_CACHE_DURATION"`

	LanguageDetectionMethod string `json:"languageDetectionMethod" env:"LANGUAGE_DETECTION_METHOD"`

	IncludeDisabledInExport bool `json:"includeDisabledInExport" env:"INCLUDE_DISABLED_IN_EXPORT"`
	IncludeExpiredInExport  bool `json:"includeExpiredInExport" env:"INCLUDE_EXPIRED_IN_EXPORT"`

	NotFoundRedirectURL string `json:"notFoundRedirectUrl" env:"NOT_FOUND_REDIRECT_URL"`

	// Location reported for private, loopback and reserved IPs.
	DefaultGeoCountryCode string  `json:"defaultGeoCountryCode" env:"DEFAULT_GEO_COUNTRY_CODE"`
	DefaultGeoCountry     string  `json:"defaultGeoCountry" env:"DEFAULT_GEO_COUNTRY"`
	DefaultGeoCity        string  `json:"defaultGeoCity" env:"DEFAULT_GEO_CITY"`
	DefaultGeoRegion      string  `json:"defaultGeoRegion" env:"DEFAULT_GEO_REGION"`
	DefaultGeoTimezone    string  `json:"defaultGeoTimezone" env:"DEFAULT_GEO_TIMEZONE"`
	DefaultGeoLat         float64 `json:"defaultGeoLat" env:"DEFAULT_GEO_LAT"`
	DefaultGeoLon         float64 `json:"defaultGeoLon" env:"DEFAULT_GEO_LON"`
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		EnableAnalytics:              true,
		AnalyticsRetention:           90,
		EnableGeoDetection:           false,
		CacheDeviceDetection:         true,
		DeviceDetectionCacheDuration: 3600,
		LanguageDetectionMethod:      LanguageFromBrowser,
		IncludeDisabledInExport:      false,
		IncludeExpiredInExport:       false,
		NotFoundRedirectURL:          "/",
		DefaultGeoCountryCode:        "SA",
		DefaultGeoCountry:            "Saudi Arabia",
		DefaultGeoCity:               "Riyadh",
		DefaultGeoRegion:             "Riyadh Region",
		DefaultGeoTimezone:           "Asia/Riyadh",
		DefaultGeoLat:                24.7136,
		DefaultGeoLon:                46.6753,
	}
}

// ResolveSettings layers stored settings and environment overrides on top of the defaults.
// stored may be nil when no settings row exists. environ is passed to the env parser;
// nil means the process environment.
func ResolveSettings(stored []byte, environ map[string]string) (Settings, error) {
	s := DefaultSettings()

	if len(stored) > 0 {
		if err := json.Unmarshal(stored, &s); err != nil {
			return Settings{}, fmt.Errorf("decode stored settings: %w", err)
		}
	}

	opts := env.Options{Prefix: SettingsEnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&s, opts); err != nil {
		return Settings{}, fmt.Errorf("parse settings overrides: %w", err)
	}

	s.normalize()
	return s, nil
}

// normalize clamps out-of-range values to safe defaults.
func (s *Settings) normalize() {
	if s.AnalyticsRetention < 0 {
		s.AnalyticsRetention = 0
	}
	if s.AnalyticsRetention > MaxAnalyticsRetention {
		s.AnalyticsRetention = MaxAnalyticsRetention
	}
	if s.DeviceDetectionCacheDuration < 0 {
		s.DeviceDetectionCacheDuration = 0
	}

	switch strings.ToLower(s.LanguageDetectionMethod) {
	case LanguageFromIP:
		s.LanguageDetectionMethod = LanguageFromIP
	case LanguageFromBoth:
		s.LanguageDetectionMethod = LanguageFromBoth
	default:
		s.LanguageDetectionMethod = LanguageFromBrowser
	}
}

// DeviceCacheTTL returns the device detection cache lifetime, zero when caching is off.
func (s Settings) DeviceCacheTTL() time.Duration {
	if !s.CacheDeviceDetection {
		return 0
	}
	return time.Duration(s.DeviceDetectionCacheDuration) * time.Second
}

// RetentionEnabled reports whether analytics should ever be purged.
func (s Settings) RetentionEnabled() bool {
	return s.AnalyticsRetention > 0
}
