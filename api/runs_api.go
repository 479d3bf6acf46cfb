package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/animus-labs/workflow-helper/internal/domain"
	"github.com/animus-labs/workflow-helper/internal/service/runs"
)

type image struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Ordinal   int       `json:"ordinal"`
	AssetURI  string    `json:"asset_uri"`
	ThumbURI  *string   `json:"thumb_uri"`
	Status    string    `json:"status"`
	Notes     *string   `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

type run struct {
	ID            string          `json:"id"`
	WorkflowID    *string         `json:"workflow_id"`
	Prompt        string          `json:"prompt"`
	Status        string          `json:"status"`
	ParameterBlob json.RawMessage `json:"parameter_blob"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Images        []image         `json:"images"`
}

type runList struct {
	Runs                    []run `json:"runs"`
	Total                   int   `json:"total"`
	QueuedCount             int   `json:"queued_count"`
	ImagesGeneratedLastHour int   `json:"images_generated_last_hour"`
}

type imageRequest struct {
	Ordinal  *int   `json:"ordinal"`
	AssetURI string `json:"asset_uri"`
	ThumbURI string `json:"thumb_uri,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

type createRunRequest struct {
	WorkflowID    string          `json:"workflow_id,omitempty"`
	Prompt        string          `json:"prompt"`
	Status        string          `json:"status,omitempty"`
	ParameterBlob json.RawMessage `json:"parameter_blob,omitempty"`
	Images        []imageRequest  `json:"images,omitempty"`
}

type updateRunStatusRequest struct {
	Status string `json:"status"`
}

func (api *workflowAPI) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	created, err := api.runs.Create(r.Context(), runs.CreateInput{
		WorkflowID:    req.WorkflowID,
		Prompt:        req.Prompt,
		Status:        req.Status,
		ParameterBlob: req.ParameterBlob,
		Images:        imageInputs(req.Images),
	})
	if err != nil {
		api.writeServiceError(w, r, "create_run", err)
		return
	}
	w.Header().Set("Location", "/runs/"+created.ID)
	api.writeJSON(w, http.StatusCreated, toRun(created))
}

func (api *workflowAPI) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_limit")
		return
	}
	offset, err := parseOffset(r)
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_offset")
		return
	}
	list, err := api.runs.List(r.Context(), runs.ListFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		api.writeServiceError(w, r, "list_runs", err)
		return
	}
	out := runList{
		Runs:                    make([]run, 0, len(list.Runs)),
		Total:                   list.Total,
		QueuedCount:             list.QueuedCount,
		ImagesGeneratedLastHour: list.ImagesGeneratedLastHour,
	}
	for _, item := range list.Runs {
		out.Runs = append(out.Runs, toRun(item))
	}
	api.writeJSON(w, http.StatusOK, out)
}

func (api *workflowAPI) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.PathValue("run_id"))
	found, err := api.runs.Get(r.Context(), runID)
	if err != nil {
		api.writeServiceError(w, r, "get_run", err)
		return
	}
	api.writeJSON(w, http.StatusOK, toRun(found))
}

func (api *workflowAPI) handleUpdateRunStatus(w http.ResponseWriter, r *http.Request) {
	var req updateRunStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	runID := strings.TrimSpace(r.PathValue("run_id"))
	updated, err := api.runs.UpdateStatus(r.Context(), runID, req.Status)
	if err != nil {
		api.writeServiceError(w, r, "update_run_status", err)
		return
	}
	api.writeJSON(w, http.StatusOK, toRun(updated))
}

// handleAppendImages answers with the whole run so the caller sees every image.
func (api *workflowAPI) handleAppendImages(w http.ResponseWriter, r *http.Request) {
	var req []imageRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	runID := strings.TrimSpace(r.PathValue("run_id"))
	if _, err := api.runs.AppendImages(r.Context(), runID, imageInputs(req)); err != nil {
		api.writeServiceError(w, r, "append_images", err)
		return
	}
	updated, err := api.runs.Get(r.Context(), runID)
	if err != nil {
		api.writeServiceError(w, r, "append_images", err)
		return
	}
	api.writeJSON(w, http.StatusCreated, toRun(updated))
}

func imageInputs(reqs []imageRequest) []runs.ImageInput {
	out := make([]runs.ImageInput, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, runs.ImageInput{
			Ordinal:  req.Ordinal,
			AssetURI: req.AssetURI,
			ThumbURI: req.ThumbURI,
			Notes:    req.Notes,
		})
	}
	return out
}

func toRun(in domain.Run) run {
	blob := in.ParameterBlob
	if len(blob) == 0 {
		blob = json.RawMessage("null")
	}
	out := run{
		ID:            in.ID,
		WorkflowID:    optionalString(in.WorkflowID),
		Prompt:        in.Prompt,
		Status:        string(in.Status),
		ParameterBlob: blob,
		CreatedAt:     in.CreatedAt,
		UpdatedAt:     in.UpdatedAt,
		Images:        make([]image, 0, len(in.Images)),
	}
	for _, img := range in.Images {
		out.Images = append(out.Images, toImage(img))
	}
	return out
}

func toImage(in domain.Image) image {
	return image{
		ID:        in.ID,
		RunID:     in.RunID,
		Ordinal:   in.Ordinal,
		AssetURI:  in.AssetURI,
		ThumbURI:  optionalString(in.ThumbURI),
		Status:    string(in.Status),
		Notes:     optionalString(in.Notes),
		CreatedAt: in.CreatedAt,
	}
}
