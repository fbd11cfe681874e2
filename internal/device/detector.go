// Package device turns raw user-agent strings into structured device facts.
package device

import (
	"regexp"
	"strings"

	"github.com/mileusna/useragent"

	"github.com/smartlinks/smartlinks/internal/model"
)

// In-app browser markers, matched case-sensitively against the raw UA.
var inAppSignatures = []string{"FBAN", "FBAV", "Instagram", "Line/", "Twitter", "; wv)"}

// HTTP client libraries that are neither browsers nor crawlers.
var librarySignatures = []string{"curl/", "wget/", "python-requests", "go-http-client", "okhttp", "axios/", "java/"}

// Known crawler tokens mapped to display names. Order matters: first match wins.
var botSignatures = []struct {
	token string
	name  string
}{
	{"googlebot", "Googlebot"},
	{"bingbot", "Bingbot"},
	{"yandexbot", "YandexBot"},
	{"duckduckbot", "DuckDuckBot"},
	{"baiduspider", "Baiduspider"},
	{"facebookexternalhit", "Facebook External Hit"},
	{"twitterbot", "Twitterbot"},
	{"linkedinbot", "LinkedInBot"},
	{"slackbot", "Slackbot"},
	{"whatsapp", "WhatsApp"},
	{"telegrambot", "TelegramBot"},
	{"discordbot", "Discordbot"},
	{"applebot", "Applebot"},
	{"headlesschrome", "Headless Chrome"},
}

// Generic crawler words count only as a standalone word ("bot", "my-bot") or
// as a product token suffix ("AhrefsBot/7.0"). Device names such as
// "CUBOT NOTE 20" do not match.
var genericBot = regexp.MustCompile(`(?:^|[^a-z])(bot|crawler|spider)(?:[^a-z]|$)|[a-z](bot|crawler|spider)/`)

var genericBotNames = map[string]string{
	"bot":     "Generic Bot",
	"crawler": "Generic Crawler",
	"spider":  "Generic Spider",
}

var windowsPhoneVersion = regexp.MustCompile(`Windows Phone(?: OS)? ([0-9.]+)`)

// Brand markers over the lower-cased UA. Order matters: first match wins.
var brandRules = []struct {
	tokens []string
	brand  string
}{
	{[]string{"windows phone", "lumia"}, "Microsoft"},
	{[]string{"iphone", "ipad", "ipod", "macintosh"}, "Apple"},
	{[]string{"kindle", "silk/", "; kf"}, "Amazon"},
	{[]string{"huawei", "harmonyos", "honor"}, "Huawei"},
	{[]string{"samsung", "; sm-", "; gt-"}, "Samsung"},
	{[]string{"pixel"}, "Google"},
	{[]string{"xiaomi", "redmi", "; mi "}, "Xiaomi"},
	{[]string{"oneplus"}, "OnePlus"},
	{[]string{"oppo", "; cph"}, "OPPO"},
	{[]string{"vivo"}, "vivo"},
	{[]string{"motorola", "moto "}, "Motorola"},
	{[]string{"nokia"}, "Nokia"},
	{[]string{"sony", "xperia"}, "Sony"},
	{[]string{"lg-", "lgm-"}, "LG"},
}

// Detector parses user agents. It is stateless and safe for concurrent use.
type Detector struct{}

// NewDetector creates a Detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect parses userAgent into a DeviceInfo. It never fails: an empty or
// unrecognised UA yields platform "other" with every flag false.
func (d *Detector) Detect(userAgent string) model.DeviceInfo {
	info := model.DeviceInfo{
		UserAgent:  userAgent,
		Platform:   model.PlatformOther,
		DeviceType: model.DeviceTypeOther,
	}

	raw := strings.TrimSpace(userAgent)
	if raw == "" {
		return info
	}
	lower := strings.ToLower(raw)
	ua := useragent.Parse(raw)
	library := containsAny(lower, librarySignatures...)

	if name := botName(lower); name != "" || (ua.Bot && !library) {
		info.IsBot = true
		info.DeviceType = model.DeviceTypeBot
		info.BotName = name
		if info.BotName == "" {
			info.BotName = ua.Name
		}
		return info
	}

	info.OSName = ua.OS
	info.OSVersion = ua.OSVersion
	switch {
	case strings.Contains(lower, "windows phone"):
		// Windows Phone 10 UAs carry an Android token the parser prefers.
		info.OSName = "Windows Phone"
		info.OSVersion = ""
		if m := windowsPhoneVersion.FindStringSubmatch(raw); m != nil {
			info.OSVersion = m[1]
		}
	case info.OSName == "" && strings.Contains(lower, "harmonyos"):
		info.OSName = "HarmonyOS"
	}
	info.Platform = derivePlatform(info.OSName, lower)

	info.DeviceType = deriveDeviceType(ua, info.Platform, lower)
	info.IsMobile = info.DeviceType == model.DeviceTypeSmartphone
	info.IsTablet = info.DeviceType == model.DeviceTypeTablet
	info.IsDesktop = info.DeviceType == model.DeviceTypeDesktop

	info.DeviceBrand = deriveBrand(lower)
	info.DeviceModel = deriveModel(ua.Device, lower)

	info.BrowserName = ua.Name
	info.BrowserVersion = ua.Version
	info.BrowserEngine = deriveEngine(info.Platform, lower)

	info.IsMobileApp = isInApp(raw)
	switch {
	case info.IsMobileApp:
		info.ClientType = model.ClientTypeMobileApp
	case library:
		info.ClientType = model.ClientTypeLibrary
	case info.BrowserName != "":
		info.ClientType = model.ClientTypeBrowser
	}

	return info
}

// derivePlatform applies ordered substring rules to the OS name, falling back
// to the whole UA when the parser found no OS. Windows Phone is tested first
// and against the whole UA.
func derivePlatform(osName, lowerUA string) model.Platform {
	os := strings.ToLower(osName)
	if os == "" {
		os = lowerUA
	}

	switch {
	case strings.Contains(os, "windows phone") || strings.Contains(lowerUA, "windows phone"):
		return model.PlatformWindows
	case containsAny(os, "ios", "iphone", "ipad"):
		return model.PlatformIOS
	case strings.Contains(os, "harmonyos"):
		return model.PlatformHuawei
	case strings.Contains(os, "android"):
		if containsAny(lowerUA, "harmonyos", "huawei", "honor") {
			return model.PlatformHuawei
		}
		return model.PlatformAndroid
	case strings.Contains(os, "windows"):
		return model.PlatformWindows
	case containsAny(os, "mac", "os x"):
		return model.PlatformMacOS
	case containsAny(os, "linux", "ubuntu"):
		return model.PlatformLinux
	default:
		return model.PlatformOther
	}
}

func deriveDeviceType(ua useragent.UserAgent, platform model.Platform, lowerUA string) string {
	handheld := platform == model.PlatformAndroid || platform == model.PlatformHuawei
	switch {
	case ua.Tablet || containsAny(lowerUA, "ipad", "tablet", "kindle", "silk/"):
		return model.DeviceTypeTablet
	case handheld && !strings.Contains(lowerUA, "mobile"):
		return model.DeviceTypeTablet
	case ua.Mobile || containsAny(lowerUA, "iphone", "ipod", "windows phone"):
		return model.DeviceTypeSmartphone
	case handheld:
		return model.DeviceTypeSmartphone
	case ua.Desktop:
		return model.DeviceTypeDesktop
	case platform == model.PlatformWindows || platform == model.PlatformMacOS || platform == model.PlatformLinux:
		return model.DeviceTypeDesktop
	default:
		return model.DeviceTypeOther
	}
}

func deriveEngine(platform model.Platform, lowerUA string) string {
	switch {
	case platform == model.PlatformIOS:
		// Every iOS browser is required to use WebKit.
		return "WebKit"
	case strings.Contains(lowerUA, "edge/"):
		return "EdgeHTML"
	case strings.Contains(lowerUA, "trident/"):
		return "Trident"
	case strings.Contains(lowerUA, "presto/"):
		return "Presto"
	case strings.Contains(lowerUA, "firefox/") && strings.Contains(lowerUA, "gecko/"):
		return "Gecko"
	case containsAny(lowerUA, "chrome/", "chromium/"):
		return "Blink"
	case strings.Contains(lowerUA, "applewebkit/"):
		return "WebKit"
	default:
		return ""
	}
}

func deriveBrand(lowerUA string) string {
	for _, rule := range brandRules {
		if containsAny(lowerUA, rule.tokens...) {
			return rule.brand
		}
	}
	return ""
}

func deriveModel(parsed, lowerUA string) string {
	if parsed != "" {
		return parsed
	}
	switch {
	case strings.Contains(lowerUA, "iphone"):
		return "iPhone"
	case strings.Contains(lowerUA, "ipad"):
		return "iPad"
	case strings.Contains(lowerUA, "ipod"):
		return "iPod"
	}
	return ""
}

func botName(lowerUA string) string {
	for _, sig := range botSignatures {
		if strings.Contains(lowerUA, sig.token) {
			return sig.name
		}
	}
	if m := genericBot.FindStringSubmatch(lowerUA); m != nil {
		word := m[1]
		if word == "" {
			word = m[2]
		}
		return genericBotNames[word]
	}
	return ""
}

func isInApp(ua string) bool {
	for _, sig := range inAppSignatures {
		if strings.Contains(ua, sig) {
			return true
		}
	}
	return false
}

func containsAny(s string, tokens ...string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
