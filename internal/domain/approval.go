package domain

import (
	"strings"
	"time"
)

// Delivery is the webhook bookkeeping carried by records that notify downstream automation.
type Delivery struct {
	Status    WebhookStatus
	Attempts  int
	LastError string
}

// PendingDelivery is the state of a record that has not been dispatched yet.
func PendingDelivery() Delivery {
	return Delivery{Status: WebhookStatusPending}
}

// ApprovalRecord is an immutable review decision on an image. Re-reviewing an
// image appends a new record; only the Delivery fields change after insert.
type ApprovalRecord struct {
	ID         string
	RunID      string
	ImageID    string
	Decision   Decision
	ApprovedBy string
	Notes      string
	CreatedAt  time.Time
	Delivery   Delivery
}

func (a ApprovalRecord) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return Invalid("approval_id_required", "approval id is required")
	}
	if strings.TrimSpace(a.ImageID) == "" {
		return Invalid("image_id_required", "image id is required")
	}
	if !a.Decision.Valid() {
		return Invalid("invalid_decision", "decision must be approved or rejected")
	}
	if strings.TrimSpace(a.ApprovedBy) == "" {
		return Invalid("approved_by_required", "approved_by is required")
	}
	return nil
}
