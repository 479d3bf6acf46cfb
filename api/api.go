package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/animus-labs/workflow-helper/internal/domain"
	"github.com/animus-labs/workflow-helper/internal/repo"
	"github.com/animus-labs/workflow-helper/internal/service/approvals"
	"github.com/animus-labs/workflow-helper/internal/service/links"
	"github.com/animus-labs/workflow-helper/internal/service/runs"
)

type workflowAPI struct {
	logger    *slog.Logger
	runs      *runs.Service
	approvals *approvals.Service
	links     *links.Service
	// assets is nil when object storage is not configured.
	assets assetOpener
}

func newWorkflowAPI(logger *slog.Logger, runSvc *runs.Service, approvalSvc *approvals.Service, linkSvc *links.Service, assets assetOpener) *workflowAPI {
	return &workflowAPI{
		logger:    logger,
		runs:      runSvc,
		approvals: approvalSvc,
		links:     linkSvc,
		assets:    assets,
	}
}

func (api *workflowAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /runs", api.handleCreateRun)
	mux.HandleFunc("GET /runs", api.handleListRuns)
	mux.HandleFunc("GET /runs/{run_id}", api.handleGetRun)
	mux.HandleFunc("POST /runs/{run_id}/status", api.handleUpdateRunStatus)
	mux.HandleFunc("POST /runs/{run_id}/images", api.handleAppendImages)

	mux.HandleFunc("POST /runs/{run_id}/images/{image_id}/approve", api.handleDecision(domain.DecisionApproved))
	mux.HandleFunc("POST /runs/{run_id}/images/{image_id}/reject", api.handleDecision(domain.DecisionRejected))
	mux.HandleFunc("GET /runs/{run_id}/images/{image_id}/approvals", api.handleListApprovals)

	mux.HandleFunc("POST /links", api.handleSubmitLink)
	mux.HandleFunc("GET /links", api.handleListLinks)

	mux.HandleFunc("GET /assets", api.handleGetAsset)
}

// writeServiceError maps service and repository errors onto HTTP responses.
func (api *workflowAPI) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if v, ok := domain.AsValidation(err); ok {
		api.writeError(w, r, http.StatusBadRequest, v.Code)
		return
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		api.writeError(w, r, http.StatusNotFound, "not_found")
	case errors.Is(err, repo.ErrInvalidTransition):
		api.writeError(w, r, http.StatusConflict, "invalid_transition")
	default:
		api.logger.Error("request failed",
			"op", op,
			"request_id", r.Header.Get("X-Request-Id"),
			"error", err,
		)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
	}
}

func (api *workflowAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *workflowAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

// parseLimit reads ?limit=. Absent means 0 so the service applies its default.
func parseLimit(r *http.Request) (int, error) {
	return queryInt(r, "limit")
}

func parseOffset(r *http.Request) (int, error) {
	return queryInt(r, "offset")
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
