package main

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/animus-labs/workflow-helper/internal/domain"
	"github.com/animus-labs/workflow-helper/internal/platform/auth"
	"github.com/animus-labs/workflow-helper/internal/service/approvals"
)

type approval struct {
	ID               string    `json:"id"`
	RunID            string    `json:"run_id"`
	ImageID          string    `json:"image_id"`
	Decision         string    `json:"decision"`
	ApprovedBy       string    `json:"approved_by"`
	Notes            *string   `json:"notes"`
	CreatedAt        time.Time `json:"created_at"`
	WebhookStatus    string    `json:"webhook_status"`
	WebhookAttempts  int       `json:"webhook_attempts"`
	WebhookLastError *string   `json:"webhook_last_error"`
}

type decisionRequest struct {
	ApprovedBy string `json:"approved_by,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

func (api *workflowAPI) handleDecision(decision domain.Decision) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req decisionRequest
		if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
			api.writeError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}
		// An authenticated caller always decides as themselves.
		approvedBy := strings.TrimSpace(req.ApprovedBy)
		if identity, ok := auth.IdentityFromContext(r.Context()); ok {
			approvedBy = identity.Actor()
		}

		record, err := api.approvals.Decide(r.Context(), approvals.DecideInput{
			RunID:      strings.TrimSpace(r.PathValue("run_id")),
			ImageID:    strings.TrimSpace(r.PathValue("image_id")),
			Decision:   decision,
			ApprovedBy: approvedBy,
			Notes:      req.Notes,
		})
		if err != nil {
			api.writeServiceError(w, r, "decide_image", err)
			return
		}
		api.writeJSON(w, http.StatusCreated, toApproval(record))
	}
}

func (api *workflowAPI) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	records, err := api.approvals.History(r.Context(),
		strings.TrimSpace(r.PathValue("run_id")),
		strings.TrimSpace(r.PathValue("image_id")),
	)
	if err != nil {
		api.writeServiceError(w, r, "list_approvals", err)
		return
	}
	out := make([]approval, 0, len(records))
	for _, record := range records {
		out = append(out, toApproval(record))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"approvals": out})
}

func toApproval(in domain.ApprovalRecord) approval {
	return approval{
		ID:               in.ID,
		RunID:            in.RunID,
		ImageID:          in.ImageID,
		Decision:         string(in.Decision),
		ApprovedBy:       in.ApprovedBy,
		Notes:            optionalString(in.Notes),
		CreatedAt:        in.CreatedAt,
		WebhookStatus:    string(in.Delivery.Status),
		WebhookAttempts:  in.Delivery.Attempts,
		WebhookLastError: optionalString(in.Delivery.LastError),
	}
}
