package device

import (
	"strings"

	"golang.org/x/text/language"
)

// Language detection methods, mirrored from config.
const (
	MethodBrowser = "browser"
	MethodIP      = "ip"
	MethodBoth    = "both"
)

// DetectLanguage picks an ISO 639 language code for the visitor.
// "browser" uses the preferred Accept-Language entry, "ip" the most likely
// language of the geolocated country, "both" tries browser first. Returns ""
// when nothing can be determined.
func DetectLanguage(acceptLanguage, countryCode, method string) string {
	switch method {
	case MethodIP:
		return languageForCountry(countryCode)
	case MethodBoth:
		if lang := languageFromHeader(acceptLanguage); lang != "" {
			return lang
		}
		return languageForCountry(countryCode)
	default:
		return languageFromHeader(acceptLanguage)
	}
}

func languageFromHeader(header string) string {
	if strings.TrimSpace(header) == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return ""
	}
	for _, tag := range tags {
		if base, conf := tag.Base(); conf != language.No && base.String() != "und" {
			return base.String()
		}
	}
	return ""
}

func languageForCountry(countryCode string) string {
	cc := strings.ToUpper(strings.TrimSpace(countryCode))
	if len(cc) != 2 {
		return ""
	}
	region, err := language.ParseRegion(cc)
	if err != nil {
		return ""
	}
	tag, err := language.Compose(language.Und, region)
	if err != nil {
		return ""
	}
	base, conf := tag.Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}
