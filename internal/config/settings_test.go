package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSettings_Defaults(t *testing.T) {
	t.Parallel()

	s, err := ResolveSettings(nil, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestResolveSettings_Layering(t *testing.T) {
	t.Parallel()

	stored := []byte(`{"analyticsRetention":30,"enableGeoDetection":true,"languageDetectionMethod":"ip"}`)
	environ := map[string]string{
		"SMARTLINKS_ANALYTICS_RETENTION": "7",
		"SMARTLINKS_DEFAULT_GEO_CITY":    "Dubai",
	}

	s, err := ResolveSettings(stored, environ)
	require.NoError(t, err)

	assert.Equal(t, 7, s.AnalyticsRetention, "environment wins over database")
	assert.True(t, s.EnableGeoDetection, "database wins over defaults")
	assert.Equal(t, LanguageFromIP, s.LanguageDetectionMethod)
	assert.Equal(t, "Dubai", s.DefaultGeoCity)
	assert.True(t, s.EnableAnalytics, "untouched fields keep defaults")
}

func TestResolveSettings_Normalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		stored        string
		wantRetention int
		wantMethod    string
	}{
		{"negative retention", `{"analyticsRetention":-5}`, 0, LanguageFromBrowser},
		{"retention above max", `{"analyticsRetention":99999}`, MaxAnalyticsRetention, LanguageFromBrowser},
		{"unknown method", `{"languageDetectionMethod":"telepathy"}`, 90, LanguageFromBrowser},
		{"mixed case method", `{"languageDetectionMethod":"BOTH"}`, 90, LanguageFromBoth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := ResolveSettings([]byte(tt.stored), map[string]string{})
			require.NoError(t, err)
			assert.Equal(t, tt.wantRetention, s.AnalyticsRetention)
			assert.Equal(t, tt.wantMethod, s.LanguageDetectionMethod)
		})
	}
}

func TestResolveSettings_InvalidStored(t *testing.T) {
	t.Parallel()

	_, err := ResolveSettings([]byte(`{not json`), map[string]string{})
	assert.Error(t, err)
}

func TestResolveSettings_InvalidOverride(t *testing.T) {
	t.Parallel()

	_, err := ResolveSettings(nil, map[string]string{"SMARTLINKS_ENABLE_ANALYTICS": "maybe"})
	assert.Error(t, err)
}

func TestSettings_DeviceCacheTTL(t *testing.T) {
	t.Parallel()

	s := DefaultSettings()
	assert.Equal(t, time.Hour, s.DeviceCacheTTL())

	s.CacheDeviceDetection = false
	assert.Equal(t, time.Duration(0), s.DeviceCacheTTL())
}

func TestSettings_RetentionEnabled(t *testing.T) {
	t.Parallel()

	s := DefaultSettings()
	assert.True(t, s.RetentionEnabled())

	s.AnalyticsRetention = 0
	assert.False(t, s.RetentionEnabled())
}
