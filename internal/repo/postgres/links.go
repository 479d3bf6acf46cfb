package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/animus-labs/workflow-helper/internal/domain"
	"github.com/animus-labs/workflow-helper/internal/repo"
)

const linkColumns = `id, url, source_url, client_ip, user_agent, created_at,
	webhook_status, webhook_attempts, webhook_last_error`

func (s *Store) CreateLink(ctx context.Context, link domain.LinkSubmission) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	if err := link.Validate(); err != nil {
		return err
	}
	delivery := link.Delivery
	if delivery.Status == "" {
		delivery = domain.PendingDelivery()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO link_submissions (`+linkColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		strings.TrimSpace(link.ID),
		link.URL,
		nullIfEmpty(link.SourceURL),
		nullIfEmpty(link.ClientIP),
		nullIfEmpty(link.UserAgent),
		normalizeTime(link.CreatedAt),
		string(delivery.Status),
		delivery.Attempts,
		nullIfEmpty(delivery.LastError),
	)
	if err != nil {
		return translateWriteError("insert link", err)
	}
	return nil
}

func (s *Store) GetLink(ctx context.Context, id string) (domain.LinkSubmission, error) {
	if s == nil || s.db == nil {
		return domain.LinkSubmission{}, fmt.Errorf("store not initialized")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM link_submissions WHERE id = $1`,
		strings.TrimSpace(id),
	)
	link, err := scanLink(row)
	if err != nil {
		return domain.LinkSubmission{}, handleNotFound(err)
	}
	return link, nil
}

func (s *Store) ListLinks(ctx context.Context, limit int) ([]domain.LinkSubmission, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	query := `SELECT ` + linkColumns + ` FROM link_submissions ORDER BY created_at DESC, id DESC`
	args := make([]any, 0, 1)
	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT $1"
	}
	return s.queryLinks(ctx, query, args...)
}

func (s *Store) ListLinksByDelivery(ctx context.Context, filter repo.DeliveryFilter) ([]domain.LinkSubmission, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	query, args := buildDeliveryQuery(`SELECT `+linkColumns+` FROM link_submissions`, filter)
	return s.queryLinks(ctx, query, args...)
}

func (s *Store) RecordLinkDelivery(ctx context.Context, id string, update repo.DeliveryUpdate) (domain.LinkSubmission, error) {
	if s == nil || s.db == nil {
		return domain.LinkSubmission{}, fmt.Errorf("store not initialized")
	}
	row := s.db.QueryRowContext(ctx,
		`UPDATE link_submissions
		 SET webhook_status = $2, webhook_attempts = webhook_attempts + $3, webhook_last_error = $4
		 WHERE id = $1
		 RETURNING `+linkColumns,
		strings.TrimSpace(id),
		string(update.Status),
		max(update.Attempts, 0),
		nullIfEmpty(update.LastError),
	)
	link, err := scanLink(row)
	if err != nil {
		return domain.LinkSubmission{}, handleNotFound(err)
	}
	return link, nil
}

func (s *Store) queryLinks(ctx context.Context, query string, args ...any) ([]domain.LinkSubmission, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	out := make([]domain.LinkSubmission, 0)
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		out = append(out, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	return out, nil
}

func scanLink(row rowScanner) (domain.LinkSubmission, error) {
	var link domain.LinkSubmission
	var sourceURL, clientIP, userAgent, lastError sql.NullString
	var webhookStatus string
	if err := row.Scan(
		&link.ID, &link.URL, &sourceURL, &clientIP, &userAgent, &link.CreatedAt,
		&webhookStatus, &link.Delivery.Attempts, &lastError,
	); err != nil {
		return domain.LinkSubmission{}, err
	}
	link.SourceURL = sourceURL.String
	link.ClientIP = clientIP.String
	link.UserAgent = userAgent.String
	link.Delivery.Status = domain.WebhookStatus(webhookStatus)
	link.Delivery.LastError = lastError.String
	link.CreatedAt = link.CreatedAt.UTC()
	return link, nil
}
