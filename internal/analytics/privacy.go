package analytics

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	// SaltSize is the number of random bytes mixed into every IP hash.
	SaltSize = 16

	maxMetaLength = 500
)

// HashIP returns hex(SHA256(ip || salt)) with a fresh random salt per call.
// Hashes of the same address are therefore not comparable across events.
func HashIP(ip string) (string, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(ip))
	h.Write(salt)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SanitizeReferrer cleans and truncates the referrer URL.
// Strips query parameters and fragments for privacy.
func SanitizeReferrer(ref string) string {
	if ref == "" {
		return ""
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}

	// Keep only scheme + host + path; strip query params and fragments
	parsed.RawQuery = ""
	parsed.Fragment = ""

	return storableText(parsed.String(), maxMetaLength)
}

// TruncateUserAgent limits a user agent to 500 bytes of valid UTF-8.
func TruncateUserAgent(ua string) string {
	return storableText(ua, maxMetaLength)
}

// storableText returns s as text Postgres accepts: invalid UTF-8 and NUL
// bytes are dropped and the result is cut to at most limit bytes on a rune boundary.
func storableText(s string, limit int) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\x00", "")
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
