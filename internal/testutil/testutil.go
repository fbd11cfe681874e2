// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/smartlinks/smartlinks/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 731031

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// NewRedisClient connects to TEST_REDIS_URL, flushes it and closes it on cleanup.
// The test is skipped when the variable is unset.
func NewRedisClient(t testing.TB) *redis.Client {
	t.Helper()
	url := RequireEnv(t, "TEST_REDIS_URL")

	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse TEST_REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := FlushRedis(ctx, client); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return client
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

var seq atomic.Int64

// NewTestLink creates an enabled, tracked link with every platform URL set.
func NewTestLink(t testing.TB, slug string) *model.Link {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.Link{
		ID:     UniqueID("link"),
		SiteID: 1,
		Slug:   slug,
		Title:  "Test " + slug,
		URLs: model.PlatformURLs{
			IOS:      "https://apps.apple.com/app/id" + slug,
			Android:  "https://play.google.com/store/apps/details?id=" + slug,
			Huawei:   "https://appgallery.huawei.com/app/" + slug,
			Windows:  "https://apps.microsoft.com/detail/" + slug,
			Mac:      "https://apps.apple.com/mac/app/id" + slug,
			Fallback: "https://example.com/" + slug,
		},
		QR:             model.QRSettings{Enabled: true, Size: 256, Color: "#000000", Background: "#FFFFFF", Format: "png"},
		Enabled:        true,
		TrackAnalytics: true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NewTestLinkWithExpiry creates a test link with an expiry time.
func NewTestLinkWithExpiry(t testing.TB, slug string, expiresAt time.Time) *model.Link {
	t.Helper()
	link := NewTestLink(t, slug)
	link.DateExpired = &expiresAt
	return link
}

// NewTestEvent creates a redirect event for linkID created at at.
func NewTestEvent(t testing.TB, linkID string, at time.Time) *model.AnalyticsEvent {
	t.Helper()
	country, city := "Saudi Arabia", "Riyadh"
	return &model.AnalyticsEvent{
		ID:             ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String(),
		LinkID:         linkID,
		SiteID:         1,
		DeviceType:     model.DeviceTypeSmartphone,
		DeviceBrand:    "Samsung",
		OSName:         "Android",
		OSVersion:      "14",
		BrowserName:    "Chrome",
		BrowserVersion: "124.0.0.0",
		ClientType:     model.ClientTypeBrowser,
		Country:        &country,
		City:           &city,
		Language:       "ar",
		IPHash:         fmt.Sprintf("%064x", seq.Add(1)),
		UserAgent:      "Mozilla/5.0 (Linux; Android 14; SM-S918B) AppleWebKit/537.36 Chrome/124.0.0.0 Mobile Safari/537.36",
		Metadata: model.Metadata{
			ClickType:      model.ClickTypeRedirect,
			Platform:       string(model.PlatformAndroid),
			Source:         model.SourceDirect,
			DestinationURL: "https://play.google.com/store/apps/details?id=x",
		},
		CreatedAt: at.UTC().Truncate(time.Microsecond),
	}
}

// UniqueSlug generates a unique slug for tests.
func UniqueSlug(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, seq.Add(1))
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq.Add(1))
}
