package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/animus-labs/workflow-helper/internal/platform/objectstore"
)

type assetOpener interface {
	Open(ctx context.Context, key string) (objectstore.Object, error)
}

// handleGetAsset streams one object from the asset bucket. Keys are validated
// by the object store so callers cannot escape the bucket prefix.
func (api *workflowAPI) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	if api.assets == nil {
		api.writeError(w, r, http.StatusNotFound, "not_found")
		return
	}
	obj, err := api.assets.Open(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		switch {
		case errors.Is(err, objectstore.ErrInvalidKey):
			api.writeError(w, r, http.StatusBadRequest, "invalid_path")
		case errors.Is(err, objectstore.ErrObjectNotFound):
			api.writeError(w, r, http.StatusNotFound, "not_found")
		default:
			api.logger.Error("asset open failed", "request_id", r.Header.Get("X-Request-Id"), "error", err)
			api.writeError(w, r, http.StatusBadGateway, "asset_unavailable")
		}
		return
	}
	defer func() { _ = obj.Body.Close() }()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if obj.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	if obj.ETag != "" {
		w.Header().Set("ETag", `"`+obj.ETag+`"`)
	}
	if !obj.LastModified.IsZero() {
		w.Header().Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		api.logger.Warn("asset stream interrupted", "request_id", r.Header.Get("X-Request-Id"), "error", err)
	}
}
