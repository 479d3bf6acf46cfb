package webhook

import (
	"time"

	"github.com/animus-labs/workflow-helper/internal/domain"
)

const (
	EventImageApproved = "run_image.approved"
	EventImageRejected = "run_image.rejected"
	EventLinkSubmitted = "link.submitted"
)

// Payload is a JSON-encodable event body.
type Payload interface {
	EventName() string
	RecordID() string
}

type ApprovalEvent struct {
	Event      string    `json:"event"`
	ApprovalID string    `json:"approval_id"`
	RunID      string    `json:"run_id"`
	ImageID    string    `json:"image_id"`
	AssetURI   string    `json:"asset_uri"`
	Decision   string    `json:"decision"`
	ApprovedBy string    `json:"approved_by"`
	ApprovedAt time.Time `json:"approved_at"`
	Notes      *string   `json:"notes"`
}

func NewApprovalEvent(record domain.ApprovalRecord, image domain.Image) ApprovalEvent {
	event := EventImageApproved
	if record.Decision == domain.DecisionRejected {
		event = EventImageRejected
	}
	return ApprovalEvent{
		Event:      event,
		ApprovalID: record.ID,
		RunID:      record.RunID,
		ImageID:    record.ImageID,
		AssetURI:   image.AssetURI,
		Decision:   string(record.Decision),
		ApprovedBy: record.ApprovedBy,
		ApprovedAt: record.CreatedAt.UTC(),
		Notes:      optional(record.Notes),
	}
}

func (e ApprovalEvent) EventName() string { return e.Event }
func (e ApprovalEvent) RecordID() string  { return e.ApprovalID }

type LinkEvent struct {
	Event     string    `json:"event"`
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	SourceURL *string   `json:"source_url"`
	CreatedAt time.Time `json:"created_at"`
	ClientIP  *string   `json:"client_ip"`
	UserAgent *string   `json:"user_agent"`
}

func NewLinkEvent(link domain.LinkSubmission) LinkEvent {
	return LinkEvent{
		Event:     EventLinkSubmitted,
		ID:        link.ID,
		URL:       link.URL,
		SourceURL: optional(link.SourceURL),
		CreatedAt: link.CreatedAt.UTC(),
		ClientIP:  optional(link.ClientIP),
		UserAgent: optional(link.UserAgent),
	}
}

func (e LinkEvent) EventName() string { return e.Event }
func (e LinkEvent) RecordID() string  { return e.ID }

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
