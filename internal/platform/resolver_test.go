package platform

import (
	"testing"

	"github.com/smartlinks/smartlinks/internal/model"
)

const (
	uaChrome = "Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
	uaKindle = "Mozilla/5.0 (Linux; Android 9; KFTRWI) AppleWebKit/537.36 (KHTML, like Gecko) Silk/120.3.1 like Chrome/120.0 Safari/537.36"
)

func fullURLs() model.PlatformURLs {
	return model.PlatformURLs{
		IOS:      "https://apps.apple.com/app/id1",
		Android:  "https://play.google.com/store/apps/details?id=x",
		Huawei:   "https://appgallery.huawei.com/app/C1",
		Amazon:   "https://www.amazon.com/dp/B0",
		Windows:  "https://apps.microsoft.com/detail/9N",
		Mac:      "https://apps.apple.com/app/mac/id2",
		Fallback: "https://example.com",
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	all := fullURLs()
	tests := []struct {
		name     string
		platform model.Platform
		urls     model.PlatformURLs
		ua       string
		want     string
	}{
		{"ios", model.PlatformIOS, all, "", all.IOS},
		{"ios has no fallback", model.PlatformIOS, model.PlatformURLs{Android: "X", Fallback: "F"}, "", ""},
		{"huawei", model.PlatformHuawei, all, "", all.Huawei},
		{"huawei falls back to android", model.PlatformHuawei, model.PlatformURLs{Android: "X"}, "", "X"},
		{"android", model.PlatformAndroid, all, uaChrome, all.Android},
		{"android amazon device", model.PlatformAndroid, all, uaKindle, all.Amazon},
		{"amazon device without amazon url", model.PlatformAndroid, model.PlatformURLs{Android: "X"}, uaKindle, "X"},
		{"windows", model.PlatformWindows, all, "", all.Windows},
		{"macos", model.PlatformMacOS, all, "", all.Mac},
		{"linux", model.PlatformLinux, all, "", ""},
		{"other", model.PlatformOther, all, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Resolve(tt.platform, tt.urls, tt.ua); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.platform, got, tt.want)
			}
		})
	}
}

func TestResolveButton(t *testing.T) {
	t.Parallel()

	all := fullURLs()
	tests := []struct {
		key  model.PlatformKey
		want string
	}{
		{model.PlatformKeyIOS, all.IOS},
		{model.PlatformKeyAndroid, all.Android},
		{model.PlatformKeyHuawei, all.Huawei},
		{model.PlatformKeyAmazon, all.Amazon},
		{model.PlatformKeyWindows, all.Windows},
		{model.PlatformKeyMac, all.Mac},
		{model.PlatformKeyFallback, all.Fallback},
		{model.PlatformKeyAuto, ""},
	}

	for _, tt := range tests {
		if got := ResolveButton(tt.key, all); got != tt.want {
			t.Errorf("ResolveButton(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestResolveButton_NoDetection(t *testing.T) {
	t.Parallel()

	urls := model.PlatformURLs{Huawei: "", Android: "X"}
	if got := ResolveButton(model.PlatformKeyHuawei, urls); got != "" {
		t.Errorf("explicit huawei must not fall back to android, got %q", got)
	}
}

func TestAnalyticsPlatform(t *testing.T) {
	t.Parallel()

	tests := map[model.PlatformKey]string{
		model.PlatformKeyMac:      "macos",
		model.PlatformKeyFallback: "other",
		model.PlatformKeyIOS:      "ios",
		model.PlatformKeyAmazon:   "amazon",
	}
	for key, want := range tests {
		if got := AnalyticsPlatform(key); got != want {
			t.Errorf("AnalyticsPlatform(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestIsAmazonDevice(t *testing.T) {
	t.Parallel()

	if !IsAmazonDevice(uaKindle) {
		t.Error("expected Silk UA to be an Amazon device")
	}
	if !IsAmazonDevice("Mozilla/5.0 (Linux; U; en-US) AppleWebKit/528.5+ (KHTML, like Gecko) Version/4.0 Kindle/3.0") {
		t.Error("expected Kindle UA to be an Amazon device")
	}
	if IsAmazonDevice(uaChrome) {
		t.Error("did not expect Pixel UA to be an Amazon device")
	}
}
