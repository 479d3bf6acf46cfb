// Package links accepts URL submissions and notifies the link webhook target.
// The stored URL is exactly what the caller sent; NormalizeURL is an advisory
// helper for clients and is never applied here.
package links

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

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

type Store interface {
	CreateLink(ctx context.Context, link domain.LinkSubmission) error
	ListLinks(ctx context.Context, limit int) ([]domain.LinkSubmission, error)
	RecordLinkDelivery(ctx context.Context, id string, update repo.DeliveryUpdate) (domain.LinkSubmission, error)
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

type SubmitInput struct {
	URL       string
	SourceURL string
	ClientIP  string
	UserAgent string
}

// Submit stores the link as pending, makes one delivery attempt, and returns
// the record with the attempt's outcome.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (domain.LinkSubmission, error) {
	if strings.TrimSpace(in.URL) == "" {
		return domain.LinkSubmission{}, domain.Invalid("url_required", "url is required")
	}
	link := domain.LinkSubmission{
		ID:        s.newID(),
		URL:       in.URL,
		SourceURL: strings.TrimSpace(in.SourceURL),
		ClientIP:  strings.TrimSpace(in.ClientIP),
		UserAgent: strings.TrimSpace(in.UserAgent),
		CreatedAt: s.now(),
		Delivery:  domain.PendingDelivery(),
	}
	if err := s.store.CreateLink(ctx, link); err != nil {
		return domain.LinkSubmission{}, err
	}

	outcome := s.notifier.Deliver(ctx, s.target, webhook.NewLinkEvent(link))
	updated, err := s.store.RecordLinkDelivery(context.WithoutCancel(ctx), link.ID, outcome.Update())
	if err != nil {
		s.logger.Error("record link delivery failed",
			"link_id", link.ID,
			"webhook_status", string(outcome.Status),
			"error", err,
		)
		return domain.LinkSubmission{}, err
	}
	return updated, nil
}

// List returns the most recent submissions; limit is clamped to 1..200.
func (s *Service) List(ctx context.Context, limit int) ([]domain.LinkSubmission, error) {
	return s.store.ListLinks(ctx, ClampLimit(limit))
}

func ClampLimit(limit int) int {
	if limit == 0 {
		return DefaultListLimit
	}
	if limit < 1 {
		return 1
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// NormalizeURL trims raw and, when it has no scheme but looks like a host,
// prefixes https://. Anything else is returned trimmed and unchanged.
func NormalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.Contains(trimmed, "://") {
		return trimmed
	}
	if strings.Contains(trimmed, ".") {
		return "https://" + trimmed
	}
	return trimmed
}
