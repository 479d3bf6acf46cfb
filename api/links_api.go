package main

import (
	"net/http"
	"time"

	"github.com/animus-labs/workflow-helper/internal/domain"
	"github.com/animus-labs/workflow-helper/internal/platform/httpserver"
	"github.com/animus-labs/workflow-helper/internal/service/links"
)

type link struct {
	ID               string    `json:"id"`
	URL              string    `json:"url"`
	SourceURL        *string   `json:"source_url"`
	CreatedAt        time.Time `json:"created_at"`
	WebhookStatus    string    `json:"webhook_status"`
	WebhookAttempts  int       `json:"webhook_attempts"`
	WebhookLastError *string   `json:"webhook_last_error"`
}

type submitLinkRequest struct {
	URL       string `json:"url"`
	SourceURL string `json:"source_url,omitempty"`
}

func (api *workflowAPI) handleSubmitLink(w http.ResponseWriter, r *http.Request) {
	var req submitLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	submitted, err := api.links.Submit(r.Context(), links.SubmitInput{
		URL:       req.URL,
		SourceURL: req.SourceURL,
		ClientIP:  httpserver.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		api.writeServiceError(w, r, "submit_link", err)
		return
	}
	api.writeJSON(w, http.StatusCreated, toLink(submitted))
}

func (api *workflowAPI) handleListLinks(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_limit")
		return
	}
	items, err := api.links.List(r.Context(), limit)
	if err != nil {
		api.writeServiceError(w, r, "list_links", err)
		return
	}
	out := make([]link, 0, len(items))
	for _, item := range items {
		out = append(out, toLink(item))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"links": out})
}

func toLink(in domain.LinkSubmission) link {
	return link{
		ID:               in.ID,
		URL:              in.URL,
		SourceURL:        optionalString(in.SourceURL),
		CreatedAt:        in.CreatedAt,
		WebhookStatus:    string(in.Delivery.Status),
		WebhookAttempts:  in.Delivery.Attempts,
		WebhookLastError: optionalString(in.Delivery.LastError),
	}
}
