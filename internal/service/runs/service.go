package runs

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/animus-labs/workflow-helper/internal/domain"
	"github.com/animus-labs/workflow-helper/internal/repo"
	"github.com/google/uuid"
)

// MaxListLimit caps an explicit page size. A zero limit lists every matching
// run so the default dashboard view never hides an active run.
const MaxListLimit = 500

type Service struct {
	runs  repo.RunRepository
	now   func() time.Time
	newID func() string
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

func New(runRepo repo.RunRepository, opts ...Option) *Service {
	if runRepo == nil {
		return nil
	}
	s := &Service{
		runs:  runRepo,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type ImageInput struct {
	// Ordinal is required; nil means the caller omitted it.
	Ordinal  *int
	AssetURI string
	ThumbURI string
	Notes    string
}

type CreateInput struct {
	WorkflowID    string
	Prompt        string
	Status        string
	ParameterBlob json.RawMessage
	Images        []ImageInput
}

type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

type RunList struct {
	Runs []domain.Run
	// Total counts every run matching the status filter, ignoring paging.
	Total                   int
	QueuedCount             int
	ImagesGeneratedLastHour int
}

func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Run, error) {
	if strings.TrimSpace(in.Prompt) == "" {
		return domain.Run{}, domain.Invalid("prompt_required", "prompt is required")
	}
	status := domain.RunStatusQueued
	if strings.TrimSpace(in.Status) != "" {
		parsed, ok := domain.ParseRunStatus(in.Status)
		if !ok || parsed.Terminal() {
			return domain.Run{}, domain.Invalid("invalid_status", "initial status must be queued, generating or ready")
		}
		status = parsed
	}

	now := s.now()
	run := domain.Run{
		ID:            s.newID(),
		WorkflowID:    strings.TrimSpace(in.WorkflowID),
		Prompt:        in.Prompt,
		Status:        status,
		ParameterBlob: in.ParameterBlob,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	images, err := s.buildImages(run.ID, in.Images, now)
	if err != nil {
		return domain.Run{}, err
	}
	run.Images = images
	if err := run.Validate(); err != nil {
		return domain.Run{}, err
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return domain.Run{}, err
	}
	return s.runs.GetRun(ctx, run.ID)
}

func (s *Service) Get(ctx context.Context, id string) (domain.Run, error) {
	return s.runs.GetRun(ctx, id)
}

// List returns runs newest first. Without a status filter only generating and
// ready runs are returned; queued runs are reported as a count instead. A zero
// limit returns every match; Total lets callers page with Limit and Offset.
func (s *Service) List(ctx context.Context, filter ListFilter) (RunList, error) {
	statuses := domain.ActiveRunStatuses()
	if strings.TrimSpace(filter.Status) != "" {
		parsed, ok := domain.ParseRunStatus(filter.Status)
		if !ok {
			return RunList{}, domain.Invalid("invalid_status", "unknown run status")
		}
		statuses = []domain.RunStatus{parsed}
	}

	if filter.Limit < 0 {
		return RunList{}, domain.Invalid("invalid_limit", "limit must be >= 0")
	}
	if filter.Offset < 0 {
		return RunList{}, domain.Invalid("invalid_offset", "offset must be >= 0")
	}

	runs, err := s.runs.ListRuns(ctx, repo.RunFilter{
		Statuses: statuses,
		Limit:    clampLimit(filter.Limit),
		Offset:   filter.Offset,
	})
	if err != nil {
		return RunList{}, err
	}
	total := 0
	for _, st := range statuses {
		n, err := s.runs.CountRuns(ctx, st)
		if err != nil {
			return RunList{}, err
		}
		total += n
	}
	queued, err := s.runs.CountRuns(ctx, domain.RunStatusQueued)
	if err != nil {
		return RunList{}, err
	}
	recent, err := s.runs.CountImagesSince(ctx, s.now().Add(-time.Hour))
	if err != nil {
		return RunList{}, err
	}
	return RunList{Runs: runs, Total: total, QueuedCount: queued, ImagesGeneratedLastHour: recent}, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id, status string) (domain.Run, error) {
	target, ok := domain.ParseRunStatus(status)
	if !ok {
		return domain.Run{}, domain.Invalid("invalid_status", "unknown run status")
	}
	if err := s.runs.UpdateRunStatus(ctx, id, target, s.now()); err != nil {
		return domain.Run{}, err
	}
	return s.runs.GetRun(ctx, id)
}

// AppendImages validates every input before writing and inserts all or none.
func (s *Service) AppendImages(ctx context.Context, runID string, inputs []ImageInput) ([]domain.Image, error) {
	if len(inputs) == 0 {
		return nil, domain.Invalid("images_required", "at least one image is required")
	}
	now := s.now()
	images, err := s.buildImages(strings.TrimSpace(runID), inputs, now)
	if err != nil {
		return nil, err
	}
	if err := s.runs.AppendImages(ctx, runID, images, now); err != nil {
		return nil, err
	}
	return images, nil
}

func (s *Service) buildImages(runID string, inputs []ImageInput, now time.Time) ([]domain.Image, error) {
	out := make([]domain.Image, 0, len(inputs))
	for _, in := range inputs {
		if in.Ordinal == nil {
			return nil, domain.Invalid("ordinal_required", "ordinal is required")
		}
		img := domain.Image{
			ID:        s.newID(),
			RunID:     runID,
			Ordinal:   *in.Ordinal,
			AssetURI:  strings.TrimSpace(in.AssetURI),
			ThumbURI:  strings.TrimSpace(in.ThumbURI),
			Status:    domain.ImageStatusGenerated,
			Notes:     in.Notes,
			CreatedAt: now,
		}
		if err := img.Validate(); err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 0
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
