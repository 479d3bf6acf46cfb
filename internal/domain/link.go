package domain

import (
	"strings"
	"time"
)

// LinkSubmission is a URL handed to the system for webhook-triggered processing.
// URL holds exactly what the caller sent.
type LinkSubmission struct {
	ID        string
	URL       string
	SourceURL string
	ClientIP  string
	UserAgent string
	CreatedAt time.Time
	Delivery  Delivery
}

func (l LinkSubmission) Validate() error {
	if strings.TrimSpace(l.ID) == "" {
		return Invalid("link_id_required", "link id is required")
	}
	if strings.TrimSpace(l.URL) == "" {
		return Invalid("url_required", "url is required")
	}
	return nil
}
