// Package approvals records review decisions on images. Every decision is a new
// immutable record; the only later mutation is the webhook delivery outcome of
// that record.
package approvals

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/animus-labs/workflow-helper/internal/domain"
	"github.com/animus-labs/workflow-helper/internal/repo"
	"github.com/animus-labs/workflow-helper/internal/webhook"
	"github.com/google/uuid"
)

type Store interface {
	GetImage(ctx context.Context, runID, imageID string) (domain.Image, error)
	CreateApproval(ctx context.Context, record domain.ApprovalRecord) error
	ListApprovals(ctx context.Context, imageID string) ([]domain.ApprovalRecord, error)
	RecordApprovalDelivery(ctx context.Context, id string, update repo.DeliveryUpdate) (domain.ApprovalRecord, error)
}

type Notifier interface {
	Deliver(ctx context.Context, target string, payload webhook.Payload) webhook.Outcome
}

type Service struct {
	store    Store
	notifier Notifier
	target   string
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New wires the ledger to the approval webhook target. An empty target is
// valid: every delivery is then recorded as failed.
func New(store Store, notifier Notifier, target string, opts ...Option) *Service {
	if store == nil || notifier == nil {
		return nil
	}
	s := &Service{
		store:    store,
		notifier: notifier,
		target:   strings.TrimSpace(target),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type DecideInput struct {
	RunID      string
	ImageID    string
	Decision   domain.Decision
	ApprovedBy string
	Notes      string
}

// Decide persists a new approval record and applies the decision to the image,
// then makes one delivery attempt and records its outcome on the same record.
// Delivery failure is reported in the returned record, never as an error.
func (s *Service) Decide(ctx context.Context, in DecideInput) (domain.ApprovalRecord, error) {
	if !in.Decision.Valid() {
		return domain.ApprovalRecord{}, domain.Invalid("invalid_decision", "decision must be approved or rejected")
	}
	approvedBy := strings.TrimSpace(in.ApprovedBy)
	if approvedBy == "" {
		return domain.ApprovalRecord{}, domain.Invalid("approved_by_required", "approved_by is required")
	}

	image, err := s.store.GetImage(ctx, in.RunID, in.ImageID)
	if err != nil {
		return domain.ApprovalRecord{}, err
	}

	record := domain.ApprovalRecord{
		ID:         s.newID(),
		RunID:      image.RunID,
		ImageID:    image.ID,
		Decision:   in.Decision,
		ApprovedBy: approvedBy,
		Notes:      strings.TrimSpace(in.Notes),
		CreatedAt:  s.now(),
		Delivery:   domain.PendingDelivery(),
	}
	if err := s.store.CreateApproval(ctx, record); err != nil {
		return domain.ApprovalRecord{}, err
	}

	outcome := s.notifier.Deliver(ctx, s.target, webhook.NewApprovalEvent(record, image))
	updated, err := s.store.RecordApprovalDelivery(context.WithoutCancel(ctx), record.ID, outcome.Update())
	if err != nil {
		s.logger.Error("record approval delivery failed",
			"approval_id", record.ID,
			"webhook_status", string(outcome.Status),
			"error", err,
		)
		return domain.ApprovalRecord{}, err
	}
	return updated, nil
}

// History lists every decision made on the image, oldest first.
func (s *Service) History(ctx context.Context, runID, imageID string) ([]domain.ApprovalRecord, error) {
	image, err := s.store.GetImage(ctx, runID, imageID)
	if err != nil {
		return nil, err
	}
	return s.store.ListApprovals(ctx, image.ID)
}
