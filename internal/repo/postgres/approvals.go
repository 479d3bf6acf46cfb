package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/animus-labs/workflow-helper/internal/domain"
	"github.com/animus-labs/workflow-helper/internal/repo"
)

const approvalColumns = `id, run_id, image_id, decision, approved_by, notes, created_at,
	webhook_status, webhook_attempts, webhook_last_error`

func (s *Store) CreateApproval(ctx context.Context, record domain.ApprovalRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	delivery := record.Delivery
	if delivery.Status == "" {
		delivery = domain.PendingDelivery()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var runID string
		err := tx.QueryRowContext(ctx,
			`SELECT run_id FROM run_images WHERE id = $1 FOR UPDATE`,
			strings.TrimSpace(record.ImageID),
		).Scan(&runID)
		if err != nil {
			return handleNotFound(err)
		}
		if record.RunID != "" && record.RunID != runID {
			return repo.ErrNotFound
		}

		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO run_image_approvals (`+approvalColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			strings.TrimSpace(record.ID),
			runID,
			strings.TrimSpace(record.ImageID),
			string(record.Decision),
			strings.TrimSpace(record.ApprovedBy),
			nullIfEmpty(record.Notes),
			normalizeTime(record.CreatedAt),
			string(delivery.Status),
			delivery.Attempts,
			nullIfEmpty(delivery.LastError),
		)
		if err != nil {
			return translateWriteError("insert approval", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE run_images SET status = $2, notes = COALESCE($3, notes) WHERE id = $1`,
			strings.TrimSpace(record.ImageID),
			string(record.Decision.ImageStatus()),
			nullIfEmpty(record.Notes),
		); err != nil {
			return fmt.Errorf("update image: %w", err)
		}
		return nil
	})
}

func (s *Store) GetApproval(ctx context.Context, id string) (domain.ApprovalRecord, error) {
	if s == nil || s.db == nil {
		return domain.ApprovalRecord{}, fmt.Errorf("store not initialized")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+approvalColumns+` FROM run_image_approvals WHERE id = $1`,
		strings.TrimSpace(id),
	)
	record, err := scanApproval(row)
	if err != nil {
		return domain.ApprovalRecord{}, handleNotFound(err)
	}
	return record, nil
}

func (s *Store) ListApprovals(ctx context.Context, imageID string) ([]domain.ApprovalRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	return s.queryApprovals(ctx,
		`SELECT `+approvalColumns+` FROM run_image_approvals
		 WHERE image_id = $1
		 ORDER BY created_at, id`,
		strings.TrimSpace(imageID),
	)
}

func (s *Store) ListApprovalsByDelivery(ctx context.Context, filter repo.DeliveryFilter) ([]domain.ApprovalRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	query, args := buildDeliveryQuery(`SELECT `+approvalColumns+` FROM run_image_approvals`, filter)
	return s.queryApprovals(ctx, query, args...)
}

func (s *Store) RecordApprovalDelivery(ctx context.Context, id string, update repo.DeliveryUpdate) (domain.ApprovalRecord, error) {
	if s == nil || s.db == nil {
		return domain.ApprovalRecord{}, fmt.Errorf("store not initialized")
	}
	row := s.db.QueryRowContext(ctx,
		`UPDATE run_image_approvals
		 SET webhook_status = $2, webhook_attempts = webhook_attempts + $3, webhook_last_error = $4
		 WHERE id = $1
		 RETURNING `+approvalColumns,
		strings.TrimSpace(id),
		string(update.Status),
		max(update.Attempts, 0),
		nullIfEmpty(update.LastError),
	)
	record, err := scanApproval(row)
	if err != nil {
		return domain.ApprovalRecord{}, handleNotFound(err)
	}
	return record, nil
}

func (s *Store) queryApprovals(ctx context.Context, query string, args ...any) ([]domain.ApprovalRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ApprovalRecord, 0)
	for rows.Next() {
		record, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	return out, nil
}

func scanApproval(row rowScanner) (domain.ApprovalRecord, error) {
	var record domain.ApprovalRecord
	var decision, webhookStatus string
	var notes, lastError sql.NullString
	if err := row.Scan(
		&record.ID, &record.RunID, &record.ImageID, &decision, &record.ApprovedBy, &notes, &record.CreatedAt,
		&webhookStatus, &record.Delivery.Attempts, &lastError,
	); err != nil {
		return domain.ApprovalRecord{}, err
	}
	record.Decision = domain.Decision(decision)
	record.Delivery.Status = domain.WebhookStatus(webhookStatus)
	if notes.Valid {
		record.Notes = notes.String
	}
	if lastError.Valid {
		record.Delivery.LastError = lastError.String
	}
	record.CreatedAt = record.CreatedAt.UTC()
	return record, nil
}

// buildDeliveryQuery appends the redelivery predicate shared by approvals and links.
func buildDeliveryQuery(base string, filter repo.DeliveryFilter) (string, []any) {
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("webhook_status = $%d", len(args)))
	}
	if filter.MaxAttempts > 0 {
		args = append(args, filter.MaxAttempts)
		clauses = append(clauses, fmt.Sprintf("webhook_attempts < $%d", len(args)))
	}
	query := base
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}
