package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/animus-labs/workflow-helper/internal/domain"
	"github.com/animus-labs/workflow-helper/internal/repo"
)

func seedRun(t *testing.T, s *Store, id string, status domain.RunStatus, createdAt time.Time) {
	t.Helper()
	err := s.CreateRun(context.Background(), domain.Run{
		ID:        id,
		Prompt:    "prompt " + id,
		Status:    status,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("CreateRun(%s) err=%v", id, err)
	}
}

func TestUpdateRunStatus_TerminalIsConflict(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now().UTC()
	seedRun(t, s, "r1", domain.RunStatusReady, now)

	if err := s.UpdateRunStatus(ctx, "r1", domain.RunStatusApproved, now); err != nil {
		t.Fatalf("UpdateRunStatus(approved) err=%v", err)
	}
	err := s.UpdateRunStatus(ctx, "r1", domain.RunStatusGenerating, now.Add(time.Second))
	if !errors.Is(err, repo.ErrInvalidTransition) {
		t.Fatalf("UpdateRunStatus() err=%v, want ErrInvalidTransition", err)
	}
	run, err := s.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun() err=%v", err)
	}
	if run.Status != domain.RunStatusApproved || !run.UpdatedAt.Equal(now) {
		t.Fatalf("stored run changed: status=%s updated_at=%v", run.Status, run.UpdatedAt)
	}
}

func TestUpdateRunStatus_NotFound(t *testing.T) {
	err := NewStore().UpdateRunStatus(context.Background(), "missing", domain.RunStatusReady, time.Now())
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("UpdateRunStatus() err=%v, want ErrNotFound", err)
	}
}

func TestAppendImages_MissingRunCreatesNothing(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	err := s.AppendImages(ctx, "missing", []domain.Image{{ID: "i1", Ordinal: 1, AssetURI: "runs/a.png"}}, time.Now())
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("AppendImages() err=%v, want ErrNotFound", err)
	}
	if n, _ := s.CountImagesSince(ctx, time.Time{}); n != 0 {
		t.Fatalf("images stored=%d, want 0", n)
	}
}

func TestListRuns_FilterAndOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Now().UTC()
	seedRun(t, s, "queued", domain.RunStatusQueued, base)
	seedRun(t, s, "old-ready", domain.RunStatusReady, base.Add(time.Second))
	seedRun(t, s, "generating", domain.RunStatusGenerating, base.Add(2*time.Second))
	seedRun(t, s, "approved", domain.RunStatusApproved, base.Add(3*time.Second))

	runs, err := s.ListRuns(ctx, repo.RunFilter{Statuses: domain.ActiveRunStatuses()})
	if err != nil {
		t.Fatalf("ListRuns() err=%v", err)
	}
	if len(runs) != 2 || runs[0].ID != "generating" || runs[1].ID != "old-ready" {
		t.Fatalf("ListRuns()=%v", runIDs(runs))
	}

	all, _ := s.ListRuns(ctx, repo.RunFilter{Limit: 3})
	if len(all) != 3 || all[0].ID != "approved" {
		t.Fatalf("ListRuns(limit)=%v", runIDs(all))
	}

	page, _ := s.ListRuns(ctx, repo.RunFilter{Limit: 2, Offset: 2})
	if len(page) != 2 || page[0].ID != "old-ready" || page[1].ID != "queued" {
		t.Fatalf("ListRuns(offset)=%v", runIDs(page))
	}
	past, _ := s.ListRuns(ctx, repo.RunFilter{Offset: 10})
	if len(past) != 0 {
		t.Fatalf("ListRuns(offset past end)=%v", runIDs(past))
	}
}

func TestApprovalDeliveryAccumulatesAttempts(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now().UTC()
	seedRun(t, s, "r1", domain.RunStatusReady, now)
	if err := s.AppendImages(ctx, "r1", []domain.Image{{ID: "i1", Ordinal: 1, AssetURI: "runs/1.png"}}, now); err != nil {
		t.Fatalf("AppendImages() err=%v", err)
	}

	record := domain.ApprovalRecord{
		ID:         "a1",
		RunID:      "r1",
		ImageID:    "i1",
		Decision:   domain.DecisionRejected,
		ApprovedBy: "bob",
		Notes:      "blurry",
		CreatedAt:  now,
		Delivery:   domain.PendingDelivery(),
	}
	if err := s.CreateApproval(ctx, record); err != nil {
		t.Fatalf("CreateApproval() err=%v", err)
	}
	img, _ := s.GetImage(ctx, "r1", "i1")
	if img.Status != domain.ImageStatusRejected || img.Notes != "blurry" {
		t.Fatalf("image not updated: %+v", img)
	}

	for i := 0; i < 2; i++ {
		if _, err := s.RecordApprovalDelivery(ctx, "a1", repo.DeliveryUpdate{Status: domain.WebhookStatusFailed, Attempts: 1, LastError: "boom"}); err != nil {
			t.Fatalf("RecordApprovalDelivery() err=%v", err)
		}
	}
	got, _ := s.GetApproval(ctx, "a1")
	if got.Delivery.Attempts != 2 || got.Delivery.Status != domain.WebhookStatusFailed {
		t.Fatalf("delivery=%+v", got.Delivery)
	}

	failed, _ := s.ListApprovalsByDelivery(ctx, repo.DeliveryFilter{Status: domain.WebhookStatusFailed, MaxAttempts: 2})
	if len(failed) != 0 {
		t.Fatalf("expected max attempts to exclude record, got %d", len(failed))
	}
}

func TestCreateApproval_WrongRun(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now().UTC()
	seedRun(t, s, "r1", domain.RunStatusReady, now)
	seedRun(t, s, "r2", domain.RunStatusReady, now)
	_ = s.AppendImages(ctx, "r1", []domain.Image{{ID: "i1", Ordinal: 1, AssetURI: "runs/1.png"}}, now)

	err := s.CreateApproval(ctx, domain.ApprovalRecord{
		ID: "a1", RunID: "r2", ImageID: "i1", Decision: domain.DecisionApproved, ApprovedBy: "alice",
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("CreateApproval() err=%v, want ErrNotFound", err)
	}
}

func TestConcurrentStatusUpdatesSerialize(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now().UTC()
	seedRun(t, s, "r1", domain.RunStatusGenerating, now)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, target := range []domain.RunStatus{domain.RunStatusReady, domain.RunStatusError} {
		wg.Add(1)
		go func(target domain.RunStatus) {
			defer wg.Done()
			errs <- s.UpdateRunStatus(ctx, "r1", target, time.Now())
		}(target)
	}
	wg.Wait()
	close(errs)

	var failures int
	for err := range errs {
		if err != nil {
			failures++
		}
	}
	// Either order ends in error: ready->error succeeds, error->ready is rejected.
	run, _ := s.GetRun(ctx, "r1")
	if run.Status != domain.RunStatusError {
		t.Fatalf("final status=%s, want error", run.Status)
	}
	if failures > 1 {
		t.Fatalf("unexpected failures=%d", failures)
	}
}

func runIDs(runs []domain.Run) []string {
	out := make([]string, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.ID)
	}
	return out
}
