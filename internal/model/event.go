package model

import "time"

// ClickType describes how an interaction was initiated.
type ClickType string

const (
	ClickTypeRedirect ClickType = "redirect"
	ClickTypeButton   ClickType = "button"
	ClickTypeQR       ClickType = "qr"
)

// Source describes where the visitor came from.
type Source string

const (
	SourceQR      Source = "qr"
	SourceDirect  Source = "direct"
	SourceLanding Source = "landing"
)

// ParseSource maps the src query parameter to a Source.
func ParseSource(raw string) Source {
	switch Source(raw) {
	case SourceQR:
		return SourceQR
	case SourceLanding:
		return SourceLanding
	default:
		return SourceDirect
	}
}

// Metadata is the typed form of the event's JSON metadata column.
type Metadata struct {
	ClickType      ClickType         `json:"click_type"`
	Platform       string            `json:"platform,omitempty"`
	Source         Source            `json:"source"`
	DestinationURL string            `json:"destination_url,omitempty"`
	ButtonURL      string            `json:"button_url,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// AnalyticsEvent is one tracked click or scan.
// IPHash is SHA256(ip || salt) with a per-event random salt.
type AnalyticsEvent struct {
	ID     string `json:"id"`
	LinkID string `json:"link_id"`
	SiteID int64  `json:"site_id"`

	DeviceType     string `json:"device_type,omitempty"`
	DeviceBrand    string `json:"device_brand,omitempty"`
	DeviceModel    string `json:"device_model,omitempty"`
	OSName         string `json:"os_name,omitempty"`
	OSVersion      string `json:"os_version,omitempty"`
	BrowserName    string `json:"browser_name,omitempty"`
	BrowserVersion string `json:"browser_version,omitempty"`
	BrowserEngine  string `json:"browser_engine,omitempty"`
	ClientType     string `json:"client_type,omitempty"`
	IsBot          bool   `json:"is_bot"`
	IsMobileApp    bool   `json:"is_mobile_app"`
	BotName        string `json:"bot_name,omitempty"`

	Country   *string  `json:"country,omitempty"`
	City      *string  `json:"city,omitempty"`
	Region    *string  `json:"region,omitempty"`
	Timezone  *string  `json:"timezone,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	Language  string   `json:"language,omitempty"`
	Referrer  string   `json:"referrer,omitempty"`
	IPHash    string   `json:"ip_hash,omitempty"`
	UserAgent string   `json:"user_agent,omitempty"`
	Metadata  Metadata `json:"metadata"`

	CreatedAt time.Time `json:"created_at"`
}

// ApplyDevice copies device facts into the event.
func (e *AnalyticsEvent) ApplyDevice(d DeviceInfo) {
	e.DeviceType = d.DeviceType
	e.DeviceBrand = d.DeviceBrand
	e.DeviceModel = d.DeviceModel
	e.OSName = d.OSName
	e.OSVersion = d.OSVersion
	e.BrowserName = d.BrowserName
	e.BrowserVersion = d.BrowserVersion
	e.BrowserEngine = d.BrowserEngine
	e.ClientType = d.ClientType
	e.IsBot = d.IsBot
	e.IsMobileApp = d.IsMobileApp
	e.BotName = d.BotName
	e.Language = d.Language
}

// ApplyGeo copies a geolocation result into the event's nullable geo columns.
func (e *AnalyticsEvent) ApplyGeo(g *GeoResult) {
	if g == nil {
		return
	}
	e.Country = optional(g.Country)
	e.City = optional(g.City)
	e.Region = optional(g.Region)
	e.Timezone = optional(g.Timezone)
	lat, lon := g.Latitude, g.Longitude
	e.Latitude = &lat
	e.Longitude = &lon
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
