package model

import "strings"

// Platform is the coarse operating-system family used for URL resolution.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformHuawei  Platform = "huawei"
	PlatformWindows Platform = "windows"
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
	PlatformOther   Platform = "other"
)

// Device types reported by the detector.
const (
	DeviceTypeSmartphone = "smartphone"
	DeviceTypeTablet     = "tablet"
	DeviceTypeDesktop    = "desktop"
	DeviceTypeBot        = "bot"
	DeviceTypeOther      = "other"
)

// Client types reported by the detector.
const (
	ClientTypeBrowser   = "browser"
	ClientTypeMobileApp = "mobile app"
	ClientTypeLibrary   = "library"
)

// DeviceInfo is the structured result of parsing a user agent.
// It is never persisted as-is; its fields are flattened into analytics events.
type DeviceInfo struct {
	UserAgent string   `json:"user_agent"`
	Platform  Platform `json:"platform"`

	IsMobile    bool `json:"is_mobile"`
	IsTablet    bool `json:"is_tablet"`
	IsDesktop   bool `json:"is_desktop"`
	IsMobileApp bool `json:"is_mobile_app"`
	IsBot       bool `json:"is_bot"`

	DeviceType  string `json:"device_type,omitempty"`
	DeviceBrand string `json:"device_brand,omitempty"`
	DeviceModel string `json:"device_model,omitempty"`

	OSName    string `json:"os_name,omitempty"`
	OSVersion string `json:"os_version,omitempty"`

	BrowserName    string `json:"browser_name,omitempty"`
	BrowserVersion string `json:"browser_version,omitempty"`
	BrowserEngine  string `json:"browser_engine,omitempty"`

	ClientType string `json:"client_type,omitempty"`
	BotName    string `json:"bot_name,omitempty"`
	Language   string `json:"language,omitempty"`
}

// PlatformKey selects which URL field of a link to resolve.
type PlatformKey string

const (
	PlatformKeyIOS      PlatformKey = "ios"
	PlatformKeyAndroid  PlatformKey = "android"
	PlatformKeyHuawei   PlatformKey = "huawei"
	PlatformKeyAmazon   PlatformKey = "amazon"
	PlatformKeyWindows  PlatformKey = "windows"
	PlatformKeyMac      PlatformKey = "mac"
	PlatformKeyFallback PlatformKey = "fallback"
	PlatformKeyAuto     PlatformKey = "auto"
)

// ParsePlatformKey normalizes attacker-controlled input to a known key.
// Anything unrecognised becomes PlatformKeyAuto.
func ParsePlatformKey(raw string) PlatformKey {
	switch key := PlatformKey(strings.ToLower(strings.TrimSpace(raw))); key {
	case PlatformKeyIOS, PlatformKeyAndroid, PlatformKeyHuawei, PlatformKeyAmazon,
		PlatformKeyWindows, PlatformKeyMac, PlatformKeyFallback:
		return key
	default:
		return PlatformKeyAuto
	}
}
