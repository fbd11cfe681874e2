// Package model defines domain entities for the application.
package model

import (
	"time"
)

// LinkStatus represents the computed status of a link.
type LinkStatus string

const (
	LinkStatusEnabled  LinkStatus = "enabled"
	LinkStatusPending  LinkStatus = "pending"
	LinkStatusExpired  LinkStatus = "expired"
	LinkStatusDisabled LinkStatus = "disabled"
)

// PlatformURLs holds one destination per platform key.
// Empty strings mean "not configured".
type PlatformURLs struct {
	IOS      string `json:"ios,omitempty"`
	Android  string `json:"android,omitempty"`
	Huawei   string `json:"huawei,omitempty"`
	Amazon   string `json:"amazon,omitempty"`
	Windows  string `json:"windows,omitempty"`
	Mac      string `json:"mac,omitempty"`
	Fallback string `json:"fallback,omitempty"`
}

// QRSettings describes how a link's QR code is rendered.
// The redirect core only carries these values through.
type QRSettings struct {
	Enabled    bool   `json:"enabled"`
	Size       int    `json:"size,omitempty"`
	Color      string `json:"color,omitempty"`
	Background string `json:"background,omitempty"`
	Format     string `json:"format,omitempty"`
}

// Link represents a smart link entity.
type Link struct {
	ID             string       `json:"id"`
	SiteID         int64        `json:"site_id"`
	Slug           string       `json:"slug"`
	Title          string       `json:"title"`
	URLs           PlatformURLs `json:"urls"`
	QR             QRSettings   `json:"qr"`
	Enabled        bool         `json:"enabled"`
	PostDate       *time.Time   `json:"post_date,omitempty"`
	DateExpired    *time.Time   `json:"date_expired,omitempty"`
	TrackAnalytics bool         `json:"track_analytics"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// StatusAt computes the link status at the given instant.
// Precedence: disabled > expired > pending > enabled.
func (l *Link) StatusAt(now time.Time) LinkStatus {
	if !l.Enabled {
		return LinkStatusDisabled
	}
	if l.DateExpired != nil && now.After(*l.DateExpired) {
		return LinkStatusExpired
	}
	if l.PostDate != nil && now.Before(*l.PostDate) {
		return LinkStatusPending
	}
	return LinkStatusEnabled
}

// Status computes the current status of the link.
func (l *Link) Status() LinkStatus {
	return l.StatusAt(time.Now())
}
