package eventsink

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrReplayWindowExceeded is returned when timestamp is outside replay window.
	ErrReplayWindowExceeded = errors.New("timestamp outside replay window")
	// ErrInvalidSignature is returned when signature verification fails.
	ErrInvalidSignature = errors.New("invalid signature")
)

// DefaultReplayWindow bounds how old a signed delivery may be when verified.
const DefaultReplayWindow = 5 * time.Minute

// Sign returns the hex HMAC-SHA256 of "{timestamp}.{body}".
func Sign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a delivery signature, rejecting timestamps outside window of now.
// Receivers written in Go can use it directly.
func Verify(secret, signature string, timestamp int64, body []byte, now time.Time, window time.Duration) error {
	age := now.Unix() - timestamp
	if age < 0 {
		age = -age
	}
	if age > int64(window.Seconds()) {
		return ErrReplayWindowExceeded
	}

	expected := Sign(secret, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}
