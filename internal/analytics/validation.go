package analytics

import (
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/smartlinks/smartlinks/internal/model"
)

const ipHashLength = 64

// ValidateEvent checks an event read back from the stream before it is persisted.
func ValidateEvent(event *model.AnalyticsEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if _, err := ulid.ParseStrict(event.ID); err != nil {
		return fmt.Errorf("id must be a ULID: %w", err)
	}
	if event.LinkID == "" {
		return fmt.Errorf("link_id is required")
	}
	if event.IPHash != "" && (len(event.IPHash) != ipHashLength || !isHex(event.IPHash)) {
		return fmt.Errorf("ip_hash must be %d hex chars", ipHashLength)
	}
	if event.CreatedAt.IsZero() {
		return fmt.Errorf("created_at must be set")
	}
	if len(event.Referrer) > maxMetaLength {
		return fmt.Errorf("referrer too long")
	}
	if len(event.UserAgent) > maxMetaLength {
		return fmt.Errorf("user_agent too long")
	}
	switch event.Metadata.ClickType {
	case model.ClickTypeRedirect, model.ClickTypeButton, model.ClickTypeQR:
	default:
		return fmt.Errorf("unknown click_type %q", event.Metadata.ClickType)
	}
	return nil
}

func isHex(value string) bool {
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F') {
			continue
		}
		return false
	}
	return true
}
