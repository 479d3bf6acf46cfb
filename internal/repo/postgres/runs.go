package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/workflow-helper/internal/domain"
	"github.com/animus-labs/workflow-helper/internal/repo"
)

const runColumns = `id, workflow_id, prompt, parameter_blob, status, created_at, updated_at`

const imageColumns = `id, run_id, ordinal, asset_uri, thumb_uri, status, notes, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) CreateRun(ctx context.Context, run domain.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}
	createdAt := normalizeTime(run.CreatedAt)
	updatedAt := createdAt
	if !run.UpdatedAt.IsZero() {
		updatedAt = run.UpdatedAt.UTC()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO runs (`+runColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			strings.TrimSpace(run.ID),
			nullIfEmpty(run.WorkflowID),
			run.Prompt,
			encodeBlob(run.ParameterBlob),
			string(run.Status),
			createdAt,
			updatedAt,
		)
		if err != nil {
			return translateWriteError("insert run", err)
		}
		return insertImages(ctx, tx, strings.TrimSpace(run.ID), run.Images, createdAt)
	})
}

func (s *Store) GetRun(ctx context.Context, id string) (domain.Run, error) {
	if s == nil || s.db == nil {
		return domain.Run{}, fmt.Errorf("store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Run{}, repo.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		return domain.Run{}, handleNotFound(err)
	}
	images, err := loadImages(ctx, s.db, []string{run.ID})
	if err != nil {
		return domain.Run{}, err
	}
	run.Images = images[run.ID]
	if run.Images == nil {
		run.Images = []domain.Image{}
	}
	return run, nil
}

func (s *Store) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	query, args := buildRunListQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.Run, 0)
	ids := make([]string, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
		ids = append(ids, run.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if len(ids) == 0 {
		return runs, nil
	}

	images, err := loadImages(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range runs {
		runs[i].Images = images[runs[i].ID]
		if runs[i].Images == nil {
			runs[i].Images = []domain.Image{}
		}
	}
	return runs, nil
}

func buildRunListQuery(filter repo.RunFilter) (string, []any) {
	args := make([]any, 0, len(filter.Statuses)+2)
	query := `SELECT ` + runColumns + ` FROM runs`
	if len(filter.Statuses) > 0 {
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
		query += " WHERE status IN (" + placeholders(1, len(filter.Statuses)) + ")"
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

func (s *Store) CountRuns(ctx context.Context, status domain.RunStatus) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("store not initialized")
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE status = $1`, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

func (s *Store) CountImagesSince(ctx context.Context, since time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("store not initialized")
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM run_images WHERE created_at >= $1`, since.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count images: %w", err)
	}
	return n, nil
}

func (s *Store) UpdateRunStatus(ctx context.Context, id string, status domain.RunStatus, at time.Time) error {
	id = strings.TrimSpace(id)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := lockRun(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := domain.CheckTransition(current, status); err != nil {
			if errors.Is(err, domain.ErrTerminalRun) {
				return fmt.Errorf("%w: %s -> %s: %w", repo.ErrInvalidTransition, current, status, err)
			}
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE runs SET status = $2, updated_at = $3 WHERE id = $1`,
			id, string(status), normalizeTime(at),
		); err != nil {
			return fmt.Errorf("update run status: %w", err)
		}
		return nil
	})
}

func (s *Store) AppendImages(ctx context.Context, runID string, images []domain.Image, at time.Time) error {
	for _, img := range images {
		if err := img.Validate(); err != nil {
			return err
		}
	}
	runID = strings.TrimSpace(runID)
	at = normalizeTime(at)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := lockRun(ctx, tx, runID); err != nil {
			return err
		}
		if err := insertImages(ctx, tx, runID, images, at); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE runs SET updated_at = $2 WHERE id = $1`, runID, at); err != nil {
			return fmt.Errorf("touch run: %w", err)
		}
		return nil
	})
}

func (s *Store) GetImage(ctx context.Context, runID, imageID string) (domain.Image, error) {
	if s == nil || s.db == nil {
		return domain.Image{}, fmt.Errorf("store not initialized")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM run_images WHERE id = $1 AND run_id = $2`,
		strings.TrimSpace(imageID), strings.TrimSpace(runID),
	)
	img, err := scanImage(row)
	if err != nil {
		return domain.Image{}, handleNotFound(err)
	}
	return img, nil
}

// lockRun takes the per-run row lock and returns the current status.
func lockRun(ctx context.Context, tx *sql.Tx, id string) (domain.RunStatus, error) {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM runs WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if err != nil {
		return "", handleNotFound(err)
	}
	return domain.RunStatus(status), nil
}

func insertImages(ctx context.Context, db DB, runID string, images []domain.Image, fallback time.Time) error {
	for _, img := range images {
		status := img.Status
		if status == "" {
			status = domain.ImageStatusGenerated
		}
		createdAt := fallback
		if !img.CreatedAt.IsZero() {
			createdAt = img.CreatedAt.UTC()
		}
		_, err := db.ExecContext(
			ctx,
			`INSERT INTO run_images (`+imageColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			strings.TrimSpace(img.ID),
			runID,
			img.Ordinal,
			img.AssetURI,
			nullIfEmpty(img.ThumbURI),
			string(status),
			nullIfEmpty(img.Notes),
			createdAt,
		)
		if err != nil {
			return translateWriteError("insert image", err)
		}
	}
	return nil
}

func loadImages(ctx context.Context, db DB, runIDs []string) (map[string][]domain.Image, error) {
	args := make([]any, 0, len(runIDs))
	for _, id := range runIDs {
		args = append(args, id)
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+imageColumns+` FROM run_images
		 WHERE run_id IN (`+placeholders(1, len(runIDs))+`)
		 ORDER BY run_id, ordinal, created_at`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.Image, len(runIDs))
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		out[img.RunID] = append(out[img.RunID], img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return out, nil
}

func scanRun(row rowScanner) (domain.Run, error) {
	var run domain.Run
	var workflowID sql.NullString
	var blob []byte
	var status string
	if err := row.Scan(&run.ID, &workflowID, &run.Prompt, &blob, &status, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return domain.Run{}, err
	}
	if workflowID.Valid {
		run.WorkflowID = workflowID.String
	}
	run.Status = domain.RunStatus(status)
	run.ParameterBlob = decodeBlob(blob)
	run.CreatedAt = run.CreatedAt.UTC()
	run.UpdatedAt = run.UpdatedAt.UTC()
	return run, nil
}

func scanImage(row rowScanner) (domain.Image, error) {
	var img domain.Image
	var thumbURI sql.NullString
	var notes sql.NullString
	var status string
	if err := row.Scan(&img.ID, &img.RunID, &img.Ordinal, &img.AssetURI, &thumbURI, &status, &notes, &img.CreatedAt); err != nil {
		return domain.Image{}, err
	}
	if thumbURI.Valid {
		img.ThumbURI = thumbURI.String
	}
	if notes.Valid {
		img.Notes = notes.String
	}
	img.Status = domain.ImageStatus(status)
	img.CreatedAt = img.CreatedAt.UTC()
	return img, nil
}
