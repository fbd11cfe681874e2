// Package platform selects a link destination for a detected device.
package platform

import (
	"strings"

	"github.com/smartlinks/smartlinks/internal/model"
)

// Resolve returns the destination URL for a detected platform. It never
// returns a sentinel other than "": an empty result means the caller should
// fall back, it is not the link's fallback URL.
func Resolve(p model.Platform, urls model.PlatformURLs, userAgent string) string {
	switch p {
	case model.PlatformIOS:
		return urls.IOS
	case model.PlatformHuawei:
		if urls.Huawei != "" {
			return urls.Huawei
		}
		return urls.Android
	case model.PlatformAndroid:
		if IsAmazonDevice(userAgent) && urls.Amazon != "" {
			return urls.Amazon
		}
		return urls.Android
	case model.PlatformWindows:
		return urls.Windows
	case model.PlatformMacOS:
		return urls.Mac
	default:
		return ""
	}
}

// ResolveButton maps an explicitly chosen platform key straight to its URL
// field, bypassing detection. PlatformKeyAuto has no field and yields "".
func ResolveButton(key model.PlatformKey, urls model.PlatformURLs) string {
	switch key {
	case model.PlatformKeyIOS:
		return urls.IOS
	case model.PlatformKeyAndroid:
		return urls.Android
	case model.PlatformKeyHuawei:
		return urls.Huawei
	case model.PlatformKeyAmazon:
		return urls.Amazon
	case model.PlatformKeyWindows:
		return urls.Windows
	case model.PlatformKeyMac:
		return urls.Mac
	case model.PlatformKeyFallback:
		return urls.Fallback
	default:
		return ""
	}
}

// AnalyticsPlatform is the platform name recorded for an explicit button click.
func AnalyticsPlatform(key model.PlatformKey) string {
	switch key {
	case model.PlatformKeyMac:
		return string(model.PlatformMacOS)
	case model.PlatformKeyFallback:
		return string(model.PlatformOther)
	default:
		return string(key)
	}
}

// IsAmazonDevice reports whether the UA belongs to a Kindle or Fire device.
func IsAmazonDevice(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	return strings.Contains(ua, "kindle") || strings.Contains(ua, "silk")
}
