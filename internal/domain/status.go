package domain

import "strings"

// RunStatus is the lifecycle state of a generation run.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusGenerating RunStatus = "generating"
	RunStatusReady      RunStatus = "ready"
	RunStatusApproved   RunStatus = "approved"
	RunStatusError      RunStatus = "error"
)

var runStatuses = []RunStatus{
	RunStatusQueued,
	RunStatusGenerating,
	RunStatusReady,
	RunStatusApproved,
	RunStatusError,
}

// RunStatuses returns every known run status in lifecycle order.
func RunStatuses() []RunStatus {
	out := make([]RunStatus, len(runStatuses))
	copy(out, runStatuses)
	return out
}

// ParseRunStatus normalizes raw input. ok is false for unknown values.
func ParseRunStatus(raw string) (RunStatus, bool) {
	candidate := RunStatus(strings.ToLower(strings.TrimSpace(raw)))
	for _, s := range runStatuses {
		if s == candidate {
			return s, true
		}
	}
	return "", false
}

func (s RunStatus) Valid() bool {
	for _, known := range runStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further status change is accepted.
func (s RunStatus) Terminal() bool {
	return s == RunStatusApproved || s == RunStatusError
}

// ActiveRunStatuses are the statuses returned by an unfiltered run listing.
func ActiveRunStatuses() []RunStatus {
	return []RunStatus{RunStatusGenerating, RunStatusReady}
}

// CheckTransition validates a requested status change. Any valid target is
// accepted from a non-terminal source; terminal runs never change again.
func CheckTransition(from, to RunStatus) error {
	if !to.Valid() {
		return ErrUnknownStatus
	}
	if from.Terminal() {
		return ErrTerminalRun
	}
	return nil
}

// ImageStatus tracks generation and review state of one image.
type ImageStatus string

const (
	ImageStatusGenerated ImageStatus = "generated"
	ImageStatusApproved  ImageStatus = "approved"
	ImageStatusRejected  ImageStatus = "rejected"
)

// Decision is the outcome recorded by a reviewer.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

func (d Decision) Valid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// ImageStatus maps a review decision onto the image it targets.
func (d Decision) ImageStatus() ImageStatus {
	if d == DecisionRejected {
		return ImageStatusRejected
	}
	return ImageStatusApproved
}

// WebhookStatus is the delivery state stored on records that notify downstream automation.
type WebhookStatus string

const (
	WebhookStatusPending WebhookStatus = "pending"
	WebhookStatusSent    WebhookStatus = "sent"
	WebhookStatusFailed  WebhookStatus = "failed"
)
