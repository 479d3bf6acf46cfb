package repo

import (
	"context"
	"time"

	"github.com/animus-labs/workflow-helper/internal/domain"
)

type RunFilter struct {
	// Statuses restricts the listing; empty means no status predicate.
	Statuses []domain.RunStatus
	// Limit 0 means no limit. Offset skips that many runs in list order.
	Limit  int
	Offset int
}

type DeliveryFilter struct {
	Status      domain.WebhookStatus
	MaxAttempts int
	Limit       int
}

// DeliveryUpdate is applied after one dispatch attempt. Attempts is added to the
// stored counter, never assigned.
type DeliveryUpdate struct {
	Status    domain.WebhookStatus
	Attempts  int
	LastError string
}

// RunRepository manages runs and their images. Mutations of a single run are
// serialized by the implementation.
type RunRepository interface {
	CreateRun(ctx context.Context, run domain.Run) error
	GetRun(ctx context.Context, id string) (domain.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]domain.Run, error)
	CountRuns(ctx context.Context, status domain.RunStatus) (int, error)
	CountImagesSince(ctx context.Context, since time.Time) (int, error)

	// UpdateRunStatus returns ErrNotFound or ErrInvalidTransition; the stored
	// status is unchanged on error.
	UpdateRunStatus(ctx context.Context, id string, status domain.RunStatus, at time.Time) error
	// AppendImages inserts all images or none.
	AppendImages(ctx context.Context, runID string, images []domain.Image, at time.Time) error
	GetImage(ctx context.Context, runID, imageID string) (domain.Image, error)
}

// ApprovalRepository is the append-only review ledger.
type ApprovalRepository interface {
	// CreateApproval inserts the record and applies the decision to the image atomically.
	CreateApproval(ctx context.Context, record domain.ApprovalRecord) error
	GetApproval(ctx context.Context, id string) (domain.ApprovalRecord, error)
	ListApprovals(ctx context.Context, imageID string) ([]domain.ApprovalRecord, error)
	ListApprovalsByDelivery(ctx context.Context, filter DeliveryFilter) ([]domain.ApprovalRecord, error)
	RecordApprovalDelivery(ctx context.Context, id string, update DeliveryUpdate) (domain.ApprovalRecord, error)
}

// LinkRepository stores link submissions; rows are only mutated by delivery updates.
type LinkRepository interface {
	CreateLink(ctx context.Context, link domain.LinkSubmission) error
	GetLink(ctx context.Context, id string) (domain.LinkSubmission, error)
	ListLinks(ctx context.Context, limit int) ([]domain.LinkSubmission, error)
	ListLinksByDelivery(ctx context.Context, filter DeliveryFilter) ([]domain.LinkSubmission, error)
	RecordLinkDelivery(ctx context.Context, id string, update DeliveryUpdate) (domain.LinkSubmission, error)
}

// Store bundles every repository behind one backend.
type Store interface {
	RunRepository
	ApprovalRepository
	LinkRepository
	Ping(ctx context.Context) error
}
