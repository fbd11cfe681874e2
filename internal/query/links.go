package query

import (
	"context"
	"fmt"
	"time"

	"github.com/smartlinks/smartlinks/internal/model"
)

// DefaultTopLinks is the TopLinks limit when none is given.
const DefaultTopLinks = 10

// TopLink is a ranked link with its most recent interaction.
type TopLink struct {
	ID              string           `json:"id"`
	Slug            string           `json:"slug"`
	Title           string           `json:"title"`
	Clicks          int64            `json:"clicks"`
	LastInteraction *LastInteraction `json:"last_interaction,omitempty"`
}

// LastInteraction describes the newest event of a link.
type LastInteraction struct {
	Type        model.ClickType `json:"type"`
	Destination string          `json:"destination,omitempty"`
	Platform    string          `json:"platform,omitempty"`
	At          time.Time       `json:"at"`
}

// TopLinks ranks links that are currently enabled by event count.
func (e *Engine) TopLinks(ctx context.Context, f Filter, limit int) ([]TopLink, error) {
	if limit <= 0 {
		limit = DefaultTopLinks
	}
	c := e.Criteria(f)
	rows, err := e.source.CountByLink(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("clicks by link: %w", err)
	}

	now := e.now()
	out := make([]TopLink, 0, limit)
	for _, r := range rows {
		if len(out) == limit {
			break
		}
		if r.Link.StatusAt(now) != model.LinkStatusEnabled {
			continue
		}
		top := TopLink{ID: r.Link.ID, Slug: r.Link.Slug, Title: r.Link.Title, Clicks: r.Count}

		last, err := e.source.LastEvent(ctx, c, r.Link.ID)
		if err != nil {
			return nil, fmt.Errorf("last event of link %s: %w", r.Link.ID, err)
		}
		if last != nil {
			top.LastInteraction = &LastInteraction{
				Type:        last.Metadata.ClickType,
				Destination: Destination(last.Metadata),
				Platform:    last.Metadata.Platform,
				At:          last.CreatedAt,
			}
		}
		out = append(out, top)
	}
	return out, nil
}

// Destination is the URL an event sent the visitor to: the button URL for button
// clicks, otherwise the resolved redirect destination.
func Destination(m model.Metadata) string {
	if m.ClickType == model.ClickTypeButton && m.ButtonURL != "" {
		return m.ButtonURL
	}
	return m.DestinationURL
}
