package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/smartlinks/smartlinks/internal/model"
)

// Common errors for link repository operations.
var (
	ErrLinkNotFound = errors.New("link not found")
	ErrSlugExists   = errors.New("slug already exists for site")
)

const linkColumns = `id, site_id, slug, title, urls, qr, enabled, post_date, date_expired, track_analytics, created_at, updated_at`

// CreateLink inserts a new link into the database.
func (r *Repository) CreateLink(ctx context.Context, link *model.Link) error {
	urls, err := json.Marshal(link.URLs)
	if err != nil {
		return fmt.Errorf("failed to encode link urls: %w", err)
	}
	qr, err := json.Marshal(link.QR)
	if err != nil {
		return fmt.Errorf("failed to encode link qr settings: %w", err)
	}

	query := `
		INSERT INTO links (` + linkColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.pool.Exec(ctx, query,
		link.ID,
		link.SiteID,
		link.Slug,
		link.Title,
		urls,
		qr,
		link.Enabled,
		link.PostDate,
		link.DateExpired,
		link.TrackAnalytics,
		link.CreatedAt,
		link.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlugExists
		}
		return fmt.Errorf("failed to create link: %w", err)
	}

	return nil
}

// FindEnabledBySlug retrieves an enabled link by slug within a site.
// This is the hot path for redirects. Date-based status is computed by the caller.
func (r *Repository) FindEnabledBySlug(ctx context.Context, slug string, siteID int64) (*model.Link, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM links
		WHERE slug = $1 AND site_id = $2 AND enabled
	`

	link, err := scanLink(r.pool.QueryRow(ctx, query, slug, siteID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link by slug: %w", err)
	}

	return link, nil
}

// FindByID retrieves a link by its ID regardless of status.
func (r *Repository) FindByID(ctx context.Context, id string) (*model.Link, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM links
		WHERE id = $1
	`

	link, err := scanLink(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link by ID: %w", err)
	}

	return link, nil
}

// SetLinkEnabled toggles a link's enabled flag.
func (r *Repository) SetLinkEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE links SET enabled = $2, updated_at = NOW() WHERE id = $1`, id, enabled)
	if err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}
	return nil
}

// DeleteLink removes a link. Its analytics are removed by the foreign key cascade.
func (r *Repository) DeleteLink(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM links WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}
	return nil
}

// scanLink scans a single row into a Link model.
func scanLink(row pgx.Row) (*model.Link, error) {
	var (
		link     model.Link
		urls, qr []byte
	)
	err := row.Scan(
		&link.ID,
		&link.SiteID,
		&link.Slug,
		&link.Title,
		&urls,
		&qr,
		&link.Enabled,
		&link.PostDate,
		&link.DateExpired,
		&link.TrackAnalytics,
		&link.CreatedAt,
		&link.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := decodeLinkJSON(&link, urls, qr); err != nil {
		return nil, err
	}
	return &link, nil
}

func decodeLinkJSON(link *model.Link, urls, qr []byte) error {
	if len(urls) > 0 {
		if err := json.Unmarshal(urls, &link.URLs); err != nil {
			return fmt.Errorf("decode link urls: %w", err)
		}
	}
	if len(qr) > 0 {
		if err := json.Unmarshal(qr, &link.QR); err != nil {
			return fmt.Errorf("decode link qr settings: %w", err)
		}
	}
	return nil
}
