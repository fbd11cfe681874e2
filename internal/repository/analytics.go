package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/smartlinks/smartlinks/internal/model"
)

const insertAnalyticsSQL = `
	INSERT INTO analytics (
		id, link_id, site_id,
		device_type, device_brand, device_model, os_name, os_version,
		browser_name, browser_version, browser_engine, client_type,
		is_bot, is_mobile_app, bot_name,
		country, city, region, timezone, latitude, longitude,
		language, referrer, ip_hash, user_agent, metadata, created_at
	) VALUES (
		$1, $2, $3,
		$4, $5, $6, $7, $8,
		$9, $10, $11, $12,
		$13, $14, $15,
		$16, $17, $18, $19, $20, $21,
		$22, $23, $24, $25, $26, $27
	)
	ON CONFLICT (id) DO NOTHING
`

func analyticsArgs(event *model.AnalyticsEvent) ([]any, error) {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: encode metadata: %v", ErrInvalidEvent, err)
	}
	return []any{
		event.ID,
		event.LinkID,
		event.SiteID,
		nullableString(event.DeviceType),
		nullableString(event.DeviceBrand),
		nullableString(event.DeviceModel),
		nullableString(event.OSName),
		nullableString(event.OSVersion),
		nullableString(event.BrowserName),
		nullableString(event.BrowserVersion),
		nullableString(event.BrowserEngine),
		nullableString(event.ClientType),
		event.IsBot,
		event.IsMobileApp,
		nullableString(event.BotName),
		event.Country,
		event.City,
		event.Region,
		event.Timezone,
		event.Latitude,
		event.Longitude,
		nullableString(event.Language),
		nullableString(event.Referrer),
		nullableString(event.IPHash),
		nullableString(event.UserAgent),
		metadata,
		event.CreatedAt,
	}, nil
}

// Insert stores one analytics event. Re-inserting an existing ID is a no-op.
func (r *Repository) Insert(ctx context.Context, event *model.AnalyticsEvent) error {
	args, err := analyticsArgs(event)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, insertAnalyticsSQL, args...); err != nil {
		return fmt.Errorf("insert analytics event: %w", err)
	}
	return nil
}

// BulkInsert inserts multiple events with idempotency via ON CONFLICT DO NOTHING.
func (r *Repository) BulkInsert(ctx context.Context, events []*model.AnalyticsEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, event := range events {
		args, err := analyticsArgs(event)
		if err != nil {
			return fmt.Errorf("event %s: %w", event.ID, err)
		}
		batch.Queue(insertAnalyticsSQL, args...)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(events); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert event %d: %w", i, err)
		}
	}

	return nil
}

// DeleteForLink removes every event of a link.
func (r *Repository) DeleteForLink(ctx context.Context, linkID string) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM analytics WHERE link_id = $1`, linkID)
	if err != nil {
		return 0, fmt.Errorf("delete analytics for link: %w", err)
	}
	return result.RowsAffected(), nil
}

// CountOlderThan counts events created before cutoff.
func (r *Repository) CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM analytics WHERE created_at < $1`, cutoff).Scan(&n); err != nil {
		return 0, fmt.Errorf("count expired analytics: %w", err)
	}
	return n, nil
}

// DeleteOlderThan removes at most limit events created before cutoff, oldest first.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	query := `
		DELETE FROM analytics
		WHERE id IN (
			SELECT id FROM analytics
			WHERE created_at < $1
			ORDER BY created_at
			LIMIT $2
		)
	`
	result, err := r.pool.Exec(ctx, query, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired analytics: %w", err)
	}
	return result.RowsAffected(), nil
}
