package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/smartlinks/smartlinks/internal/model"
	"github.com/smartlinks/smartlinks/internal/query"
)

// dimensionExpr maps each query dimension to a fixed SQL expression over analytics a.
// User input never reaches the SQL text; unknown dimensions are rejected.
var dimensionExpr = map[query.Dimension]string{
	query.DimDeviceType:  "a.device_type",
	query.DimOS:          "a.os_name",
	query.DimBrowser:     "CASE WHEN a.browser_name IS NULL THEN NULL ELSE CONCAT_WS(' ', a.browser_name, a.browser_version) END",
	query.DimDeviceBrand: "a.device_brand",
	query.DimPlatform:    "a.metadata->>'platform'",
	query.DimCountry:     "a.country",
	query.DimCity:        "a.city",
	query.DimLanguage:    "a.language",
	query.DimSource:      "a.metadata->>'source'",
	query.DimClickType:   "a.metadata->>'click_type'",
}

const eventColumns = `a.id, a.link_id, a.site_id,
	COALESCE(a.device_type, ''), COALESCE(a.device_brand, ''), COALESCE(a.device_model, ''),
	COALESCE(a.os_name, ''), COALESCE(a.os_version, ''),
	COALESCE(a.browser_name, ''), COALESCE(a.browser_version, ''), COALESCE(a.browser_engine, ''),
	COALESCE(a.client_type, ''), a.is_bot, a.is_mobile_app, COALESCE(a.bot_name, ''),
	a.country, a.city, a.region, a.timezone, a.latitude, a.longitude,
	COALESCE(a.language, ''), COALESCE(a.referrer, ''), COALESCE(a.ip_hash, ''), COALESCE(a.user_agent, ''),
	a.metadata, a.created_at`

const joinedLinkColumns = `l.id, l.site_id, l.slug, l.title, l.urls, l.qr, l.enabled, l.post_date, l.date_expired, l.track_analytics, l.created_at, l.updated_at`

// whereBuilder accumulates positional predicates.
type whereBuilder struct {
	clauses []string
	args    []any
}

// add appends a predicate; clause holds one %d for the parameter position.
func (w *whereBuilder) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

// param appends an argument without a predicate and returns its placeholder.
func (w *whereBuilder) param(arg any) string {
	w.args = append(w.args, arg)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *whereBuilder) raw(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func criteriaWhere(c query.Criteria) *whereBuilder {
	w := &whereBuilder{}
	if c.LinkID != nil {
		w.add("a.link_id = $%d", *c.LinkID)
	}
	if c.SiteID != nil {
		w.add("a.site_id = $%d", *c.SiteID)
	}
	if c.Start != nil {
		w.add("a.created_at >= $%d", *c.Start)
	}
	if c.End != nil {
		w.add("a.created_at <= $%d", *c.End)
	}
	return w
}

func timeZone(c query.Criteria) string {
	if c.TimeZone == "" {
		return "UTC"
	}
	return c.TimeZone
}

func dimension(dim query.Dimension) (string, error) {
	expr, ok := dimensionExpr[dim]
	if !ok {
		return "", fmt.Errorf("unsupported dimension %q", dim)
	}
	return expr, nil
}

// Totals counts events and distinct IP hashes.
func (r *Repository) Totals(ctx context.Context, c query.Criteria) (query.Totals, error) {
	w := criteriaWhere(c)
	sql := `SELECT COUNT(*), COUNT(DISTINCT a.ip_hash) FROM analytics a` + w.String()

	var t query.Totals
	if err := r.pool.QueryRow(ctx, sql, w.args...).Scan(&t.Events, &t.Unique); err != nil {
		return query.Totals{}, fmt.Errorf("query analytics totals: %w", err)
	}
	return t, nil
}

// CountBy groups events by one dimension.
func (r *Repository) CountBy(ctx context.Context, c query.Criteria, dim query.Dimension) ([]query.GroupCount, error) {
	expr, err := dimension(dim)
	if err != nil {
		return nil, err
	}
	w := criteriaWhere(c)
	w.raw("(" + expr + ") IS NOT NULL")
	w.raw("(" + expr + ") <> ''")

	sql := `SELECT ` + expr + ` AS k, COUNT(*) AS n FROM analytics a` + w.String() +
		` GROUP BY k ORDER BY n DESC, k`

	rows, err := r.pool.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query analytics by %s: %w", dim, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (query.GroupCount, error) {
		var g query.GroupCount
		err := row.Scan(&g.Key, &g.Count)
		return g, err
	})
}

// CountByPair groups events by two dimensions.
func (r *Repository) CountByPair(ctx context.Context, c query.Criteria, first, second query.Dimension) ([]query.PairCount, error) {
	firstExpr, err := dimension(first)
	if err != nil {
		return nil, err
	}
	secondExpr, err := dimension(second)
	if err != nil {
		return nil, err
	}
	w := criteriaWhere(c)
	for _, expr := range []string{firstExpr, secondExpr} {
		w.raw("(" + expr + ") IS NOT NULL")
		w.raw("(" + expr + ") <> ''")
	}

	sql := `SELECT ` + firstExpr + ` AS k1, ` + secondExpr + ` AS k2, COUNT(*) AS n FROM analytics a` + w.String() +
		` GROUP BY k1, k2 ORDER BY n DESC, k1, k2`

	rows, err := r.pool.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query analytics by %s and %s: %w", first, second, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (query.PairCount, error) {
		var p query.PairCount
		err := row.Scan(&p.First, &p.Second, &p.Count)
		return p, err
	})
}

// CountByDay groups events by calendar day in the criteria's time zone.
func (r *Repository) CountByDay(ctx context.Context, c query.Criteria) ([]query.DayCount, error) {
	w := criteriaWhere(c)
	tz := w.param(timeZone(c))
	sql := `SELECT to_char(a.created_at AT TIME ZONE ` + tz + `, 'YYYY-MM-DD') AS d, COUNT(*) AS n
		FROM analytics a` + w.String() + ` GROUP BY d ORDER BY d`

	rows, err := r.pool.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query analytics by day: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (query.DayCount, error) {
		var d query.DayCount
		err := row.Scan(&d.Day, &d.Count)
		return d, err
	})
}

// CountByHour groups events by hour of day in the criteria's time zone.
func (r *Repository) CountByHour(ctx context.Context, c query.Criteria) ([]query.HourCount, error) {
	w := criteriaWhere(c)
	tz := w.param(timeZone(c))
	sql := `SELECT EXTRACT(HOUR FROM a.created_at AT TIME ZONE ` + tz + `)::int AS h, COUNT(*) AS n
		FROM analytics a` + w.String() + ` GROUP BY h ORDER BY h`

	rows, err := r.pool.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query analytics by hour: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (query.HourCount, error) {
		var h query.HourCount
		err := row.Scan(&h.Hour, &h.Count)
		return h, err
	})
}

// CountByLink groups events by link, most clicked first.
func (r *Repository) CountByLink(ctx context.Context, c query.Criteria) ([]query.LinkCount, error) {
	w := criteriaWhere(c)
	sql := `SELECT ` + joinedLinkColumns + `, COUNT(*) AS n
		FROM analytics a JOIN links l ON l.id = a.link_id` + w.String() + `
		GROUP BY l.id ORDER BY n DESC, l.id`

	rows, err := r.pool.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query analytics by link: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (query.LinkCount, error) {
		var (
			lc       query.LinkCount
			urls, qr []byte
		)
		err := row.Scan(
			&lc.Link.ID, &lc.Link.SiteID, &lc.Link.Slug, &lc.Link.Title, &urls, &qr,
			&lc.Link.Enabled, &lc.Link.PostDate, &lc.Link.DateExpired, &lc.Link.TrackAnalytics,
			&lc.Link.CreatedAt, &lc.Link.UpdatedAt, &lc.Count,
		)
		if err != nil {
			return lc, err
		}
		return lc, decodeLinkJSON(&lc.Link, urls, qr)
	})
}

// FirstEventAt returns the creation time of the oldest matching event.
func (r *Repository) FirstEventAt(ctx context.Context, c query.Criteria) (*time.Time, error) {
	w := criteriaWhere(c)
	var first *time.Time
	if err := r.pool.QueryRow(ctx, `SELECT MIN(a.created_at) FROM analytics a`+w.String(), w.args...).Scan(&first); err != nil {
		return nil, fmt.Errorf("query first analytics event: %w", err)
	}
	return first, nil
}

// LastEvent returns the newest matching event of a link, or nil.
func (r *Repository) LastEvent(ctx context.Context, c query.Criteria, linkID string) (*model.AnalyticsEvent, error) {
	w := criteriaWhere(c)
	w.add("a.link_id = $%d", linkID)
	sql := `SELECT ` + eventColumns + ` FROM analytics a` + w.String() + ` ORDER BY a.created_at DESC, a.id DESC LIMIT 1`

	event, err := scanEvent(r.pool.QueryRow(ctx, sql, w.args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query last analytics event: %w", err)
	}
	return event, nil
}

// ExportEvents streams matching events joined with their links, newest first.
func (r *Repository) ExportEvents(ctx context.Context, c query.Criteria, fn func(query.ExportRecord) error) error {
	w := criteriaWhere(c)
	sql := `SELECT ` + eventColumns + `, ` + joinedLinkColumns + `
		FROM analytics a JOIN links l ON l.id = a.link_id` + w.String() + `
		ORDER BY a.created_at DESC, a.id DESC`

	rows, err := r.pool.Query(ctx, sql, w.args...)
	if err != nil {
		return fmt.Errorf("query analytics export: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec      query.ExportRecord
			metadata []byte
			urls, qr []byte
		)
		dest := append(eventDest(&rec.Event, &metadata),
			&rec.Link.ID, &rec.Link.SiteID, &rec.Link.Slug, &rec.Link.Title, &urls, &qr,
			&rec.Link.Enabled, &rec.Link.PostDate, &rec.Link.DateExpired, &rec.Link.TrackAnalytics,
			&rec.Link.CreatedAt, &rec.Link.UpdatedAt,
		)
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scan analytics export row: %w", err)
		}
		if err := decodeMetadata(&rec.Event, metadata); err != nil {
			return err
		}
		if err := decodeLinkJSON(&rec.Link, urls, qr); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

func eventDest(e *model.AnalyticsEvent, metadata *[]byte) []any {
	return []any{
		&e.ID, &e.LinkID, &e.SiteID,
		&e.DeviceType, &e.DeviceBrand, &e.DeviceModel,
		&e.OSName, &e.OSVersion,
		&e.BrowserName, &e.BrowserVersion, &e.BrowserEngine,
		&e.ClientType, &e.IsBot, &e.IsMobileApp, &e.BotName,
		&e.Country, &e.City, &e.Region, &e.Timezone, &e.Latitude, &e.Longitude,
		&e.Language, &e.Referrer, &e.IPHash, &e.UserAgent,
		metadata, &e.CreatedAt,
	}
}

func scanEvent(row pgx.Row) (*model.AnalyticsEvent, error) {
	var (
		event    model.AnalyticsEvent
		metadata []byte
	)
	if err := row.Scan(eventDest(&event, &metadata)...); err != nil {
		return nil, err
	}
	if err := decodeMetadata(&event, metadata); err != nil {
		return nil, err
	}
	return &event, nil
}

func decodeMetadata(e *model.AnalyticsEvent, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &e.Metadata); err != nil {
		return fmt.Errorf("decode metadata of event %s: %w", e.ID, err)
	}
	return nil
}
