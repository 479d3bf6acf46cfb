// Package memory is an in-process Store used for local development and tests.
// A single mutex serializes every mutation, which also provides the per-run
// exclusion the postgres store gets from row locks.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/animus-labs/workflow-helper/internal/domain"
	"github.com/animus-labs/workflow-helper/internal/repo"
)

type Store struct {
	mu sync.RWMutex

	runs        map[string]domain.Run
	images      map[string]domain.Image
	imagesByRun map[string][]string
	approvals   map[string]domain.ApprovalRecord
	approvalIDs []string
	links       map[string]domain.LinkSubmission
	linkIDs     []string
}

func NewStore() *Store {
	return &Store{
		runs:        make(map[string]domain.Run),
		images:      make(map[string]domain.Image),
		imagesByRun: make(map[string][]string),
		approvals:   make(map[string]domain.ApprovalRecord),
		links:       make(map[string]domain.LinkSubmission),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) CreateRun(ctx context.Context, run domain.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	images := run.Images
	stored := run.Clone()
	stored.Images = nil
	s.runs[run.ID] = stored
	for _, img := range images {
		img.RunID = run.ID
		s.putImageLocked(img)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[strings.TrimSpace(id)]
	if !ok {
		return domain.Run{}, repo.ErrNotFound
	}
	return s.withImagesLocked(run), nil
}

func (s *Store) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := make(map[domain.RunStatus]struct{}, len(filter.Statuses))
	for _, st := range filter.Statuses {
		allowed[st] = struct{}{}
	}

	out := make([]domain.Run, 0)
	for _, run := range s.runs {
		if len(allowed) > 0 {
			if _, ok := allowed[run.Status]; !ok {
				continue
			}
		}
		out = append(out, s.withImagesLocked(run))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []domain.Run{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) CountRuns(ctx context.Context, status domain.RunStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, run := range s.runs {
		if run.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountImagesSince(ctx context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, img := range s.images {
		if !img.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateRunStatus(ctx context.Context, id string, status domain.RunStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[strings.TrimSpace(id)]
	if !ok {
		return repo.ErrNotFound
	}
	if err := domain.CheckTransition(run.Status, status); err != nil {
		if errors.Is(err, domain.ErrTerminalRun) {
			return fmt.Errorf("%w: %s -> %s: %w", repo.ErrInvalidTransition, run.Status, status, err)
		}
		return err
	}
	run.Status = status
	run.UpdatedAt = at.UTC()
	s.runs[run.ID] = run
	return nil
}

func (s *Store) AppendImages(ctx context.Context, runID string, images []domain.Image, at time.Time) error {
	for _, img := range images {
		if err := img.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[strings.TrimSpace(runID)]
	if !ok {
		return repo.ErrNotFound
	}
	for _, img := range images {
		img.RunID = run.ID
		s.putImageLocked(img)
	}
	run.UpdatedAt = at.UTC()
	s.runs[run.ID] = run
	return nil
}

func (s *Store) GetImage(ctx context.Context, runID, imageID string) (domain.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	img, ok := s.images[strings.TrimSpace(imageID)]
	if !ok || img.RunID != strings.TrimSpace(runID) {
		return domain.Image{}, repo.ErrNotFound
	}
	return img, nil
}

func (s *Store) CreateApproval(ctx context.Context, record domain.ApprovalRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	img, ok := s.images[record.ImageID]
	if !ok || (record.RunID != "" && img.RunID != record.RunID) {
		return repo.ErrNotFound
	}
	if _, exists := s.approvals[record.ID]; exists {
		return fmt.Errorf("approval %s already exists", record.ID)
	}
	record.RunID = img.RunID
	s.approvals[record.ID] = record
	s.approvalIDs = append(s.approvalIDs, record.ID)

	img.Status = record.Decision.ImageStatus()
	if strings.TrimSpace(record.Notes) != "" {
		img.Notes = record.Notes
	}
	s.images[img.ID] = img
	return nil
}

func (s *Store) GetApproval(ctx context.Context, id string) (domain.ApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.approvals[strings.TrimSpace(id)]
	if !ok {
		return domain.ApprovalRecord{}, repo.ErrNotFound
	}
	return record, nil
}

func (s *Store) ListApprovals(ctx context.Context, imageID string) ([]domain.ApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ApprovalRecord, 0)
	for _, id := range s.approvalIDs {
		if record := s.approvals[id]; record.ImageID == imageID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *Store) ListApprovalsByDelivery(ctx context.Context, filter repo.DeliveryFilter) ([]domain.ApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ApprovalRecord, 0)
	for _, id := range s.approvalIDs {
		record := s.approvals[id]
		if !matchesDelivery(record.Delivery, filter) {
			continue
		}
		out = append(out, record)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) RecordApprovalDelivery(ctx context.Context, id string, update repo.DeliveryUpdate) (domain.ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.approvals[strings.TrimSpace(id)]
	if !ok {
		return domain.ApprovalRecord{}, repo.ErrNotFound
	}
	record.Delivery = applyDelivery(record.Delivery, update)
	s.approvals[record.ID] = record
	return record, nil
}

func (s *Store) CreateLink(ctx context.Context, link domain.LinkSubmission) error {
	if err := link.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.links[link.ID]; exists {
		return fmt.Errorf("link %s already exists", link.ID)
	}
	s.links[link.ID] = link
	s.linkIDs = append(s.linkIDs, link.ID)
	return nil
}

func (s *Store) GetLink(ctx context.Context, id string) (domain.LinkSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[strings.TrimSpace(id)]
	if !ok {
		return domain.LinkSubmission{}, repo.ErrNotFound
	}
	return link, nil
}

func (s *Store) ListLinks(ctx context.Context, limit int) ([]domain.LinkSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.LinkSubmission, 0)
	for i := len(s.linkIDs) - 1; i >= 0; i-- {
		out = append(out, s.links[s.linkIDs[i]])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ListLinksByDelivery(ctx context.Context, filter repo.DeliveryFilter) ([]domain.LinkSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.LinkSubmission, 0)
	for _, id := range s.linkIDs {
		link := s.links[id]
		if !matchesDelivery(link.Delivery, filter) {
			continue
		}
		out = append(out, link)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) RecordLinkDelivery(ctx context.Context, id string, update repo.DeliveryUpdate) (domain.LinkSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[strings.TrimSpace(id)]
	if !ok {
		return domain.LinkSubmission{}, repo.ErrNotFound
	}
	link.Delivery = applyDelivery(link.Delivery, update)
	s.links[link.ID] = link
	return link, nil
}

func (s *Store) putImageLocked(img domain.Image) {
	if img.Status == "" {
		img.Status = domain.ImageStatusGenerated
	}
	s.images[img.ID] = img
	s.imagesByRun[img.RunID] = append(s.imagesByRun[img.RunID], img.ID)
}

func (s *Store) withImagesLocked(run domain.Run) domain.Run {
	out := run.Clone()
	ids := s.imagesByRun[run.ID]
	out.Images = make([]domain.Image, 0, len(ids))
	for _, id := range ids {
		out.Images = append(out.Images, s.images[id])
	}
	sort.SliceStable(out.Images, func(i, j int) bool {
		return out.Images[i].Ordinal < out.Images[j].Ordinal
	})
	return out
}

func matchesDelivery(d domain.Delivery, filter repo.DeliveryFilter) bool {
	if filter.Status != "" && d.Status != filter.Status {
		return false
	}
	if filter.MaxAttempts > 0 && d.Attempts >= filter.MaxAttempts {
		return false
	}
	return true
}

func applyDelivery(d domain.Delivery, update repo.DeliveryUpdate) domain.Delivery {
	d.Status = update.Status
	if update.Attempts > 0 {
		d.Attempts += update.Attempts
	}
	d.LastError = update.LastError
	return d
}

var _ repo.Store = (*Store)(nil)
