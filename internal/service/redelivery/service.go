// Package redelivery retries webhook notifications whose last attempt failed.
// Each swept record gets exactly one new attempt; nothing runs in the background.
package redelivery

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/animus-labs/workflow-helper/internal/domain"
	"github.com/animus-labs/workflow-helper/internal/repo"
	"github.com/animus-labs/workflow-helper/internal/webhook"
)

const (
	DefaultLimit       = 100
	DefaultMaxAttempts = 5
)

type Store interface {
	GetImage(ctx context.Context, runID, imageID string) (domain.Image, error)
	ListApprovalsByDelivery(ctx context.Context, filter repo.DeliveryFilter) ([]domain.ApprovalRecord, error)
	RecordApprovalDelivery(ctx context.Context, id string, update repo.DeliveryUpdate) (domain.ApprovalRecord, error)
	ListLinksByDelivery(ctx context.Context, filter repo.DeliveryFilter) ([]domain.LinkSubmission, error)
	RecordLinkDelivery(ctx context.Context, id string, update repo.DeliveryUpdate) (domain.LinkSubmission, error)
}

type Notifier interface {
	Deliver(ctx context.Context, target string, payload webhook.Payload) webhook.Outcome
}

type Targets struct {
	Approval string
	Link     string
}

type Service struct {
	store    Store
	notifier Notifier
	targets  Targets
	logger   *slog.Logger
}

func New(store Store, notifier Notifier, targets Targets, logger *slog.Logger) *Service {
	if store == nil || notifier == nil {
		return nil
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	targets.Approval = strings.TrimSpace(targets.Approval)
	targets.Link = strings.TrimSpace(targets.Link)
	return &Service{store: store, notifier: notifier, targets: targets, logger: logger}
}

type Options struct {
	// Limit caps the records swept per kind.
	Limit int
	// MaxAttempts skips records that already reached this many attempts.
	MaxAttempts int
}

type Result struct {
	Approvals Counts `json:"approvals"`
	Links     Counts `json:"links"`
}

type Counts struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

func (c *Counts) add(status domain.WebhookStatus) {
	c.Attempted++
	if status == domain.WebhookStatusSent {
		c.Sent++
	} else {
		c.Failed++
	}
}

// Sweep redelivers failed approval and link notifications. A storage error
// stops the sweep; delivery failures are counted and recorded.
func (s *Service) Sweep(ctx context.Context, opts Options) (Result, error) {
	filter := repo.DeliveryFilter{
		Status:      domain.WebhookStatusFailed,
		MaxAttempts: opts.MaxAttempts,
		Limit:       opts.Limit,
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	if filter.MaxAttempts <= 0 {
		filter.MaxAttempts = DefaultMaxAttempts
	}

	var result Result
	approvals, err := s.store.ListApprovalsByDelivery(ctx, filter)
	if err != nil {
		return result, err
	}
	for _, record := range approvals {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		image, err := s.store.GetImage(ctx, record.RunID, record.ImageID)
		if err != nil {
			return result, err
		}
		outcome := s.notifier.Deliver(ctx, s.targets.Approval, webhook.NewApprovalEvent(record, image))
		if _, err := s.store.RecordApprovalDelivery(ctx, record.ID, outcome.Update()); err != nil {
			return result, err
		}
		result.Approvals.add(outcome.Status)
	}

	links, err := s.store.ListLinksByDelivery(ctx, filter)
	if err != nil {
		return result, err
	}
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		outcome := s.notifier.Deliver(ctx, s.targets.Link, webhook.NewLinkEvent(link))
		if _, err := s.store.RecordLinkDelivery(ctx, link.ID, outcome.Update()); err != nil {
			return result, err
		}
		result.Links.add(outcome.Status)
	}

	s.logger.Info("redelivery sweep finished",
		"approvals_attempted", result.Approvals.Attempted,
		"approvals_sent", result.Approvals.Sent,
		"links_attempted", result.Links.Attempted,
		"links_sent", result.Links.Sent,
	)
	return result, nil
}
