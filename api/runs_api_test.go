package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func createRun(t *testing.T, env *testEnv, body string) run {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/runs", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /runs status=%d body=%s", rec.Code, rec.Body.String())
	}
	return decodeBody[run](t, rec)
}

func setStatus(t *testing.T, env *testEnv, runID, status string) *httptest.ResponseRecorder {
	t.Helper()
	return env.do(t, http.MethodPost, "/runs/"+runID+"/status", `{"status":"`+status+`"}`)
}

func listIDs(list runList) []string {
	out := make([]string, 0, len(list.Runs))
	for _, r := range list.Runs {
		out = append(out, r.ID)
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func TestRunLifecycle(t *testing.T) {
	env := newTestEnv(t, false, nil)
	created := createRun(t, env, `{"status":"queued","prompt":"A","parameter_blob":{"width":1024}}`)
	if created.Status != "queued" || string(created.ParameterBlob) != `{"width":1024}` {
		t.Fatalf("created=%+v blob=%s", created, created.ParameterBlob)
	}
	if created.WorkflowID != nil || len(created.Images) != 0 {
		t.Fatalf("created=%+v", created)
	}

	rec := env.do(t, http.MethodGet, "/runs", "")
	list := decodeBody[runList](t, rec)
	if contains(listIDs(list), created.ID) || list.QueuedCount < 1 {
		t.Fatalf("queued run listed: ids=%v queued=%d", listIDs(list), list.QueuedCount)
	}

	for _, status := range []string{"generating", "ready"} {
		if rec := setStatus(t, env, created.ID, status); rec.Code != http.StatusOK {
			t.Fatalf("status %s: code=%d body=%s", status, rec.Code, rec.Body.String())
		}
	}
	list = decodeBody[runList](t, env.do(t, http.MethodGet, "/runs", ""))
	if !contains(listIDs(list), created.ID) || list.QueuedCount != 0 {
		t.Fatalf("ready run missing: ids=%v queued=%d", listIDs(list), list.QueuedCount)
	}

	queued := decodeBody[runList](t, env.do(t, http.MethodGet, "/runs?status=queued", ""))
	if len(queued.Runs) != 0 {
		t.Fatalf("status filter returned %v", listIDs(queued))
	}
}

func TestCreateRun_Defaults(t *testing.T) {
	env := newTestEnv(t, false, nil)
	created := createRun(t, env, `{"prompt":"B","workflow_id":"wf-1"}`)
	if created.Status != "queued" {
		t.Fatalf("status=%s, want queued", created.Status)
	}
	if created.WorkflowID == nil || *created.WorkflowID != "wf-1" {
		t.Fatalf("workflow_id=%v", created.WorkflowID)
	}
	if string(created.ParameterBlob) != "null" {
		t.Fatalf("parameter_blob=%s, want null", created.ParameterBlob)
	}

	rec := env.do(t, http.MethodGet, "/runs/"+created.ID, "")
	if rec.Code != http.StatusOK || decodeBody[run](t, rec).Prompt != "B" {
		t.Fatalf("GET run status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestCreateRun_Validation(t *testing.T) {
	env := newTestEnv(t, false, nil)
	tests := []struct {
		name string
		body string
		code string
	}{
		{"missing prompt", `{"prompt":"  "}`, "prompt_required"},
		{"terminal status", `{"prompt":"A","status":"approved"}`, "invalid_status"},
		{"unknown status", `{"prompt":"A","status":"posted"}`, "invalid_status"},
		{"unknown field", `{"prompt":"A","colour":"red"}`, "invalid_json"},
		{"image without ordinal", `{"prompt":"A","images":[{"asset_uri":"runs/a.png"}]}`, "ordinal_required"},
		{"image without asset", `{"prompt":"A","images":[{"ordinal":1}]}`, "asset_uri_required"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/runs", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status=%d, want 400", rec.Code)
			}
			if got := errorCode(t, rec); got != tc.code {
				t.Fatalf("error=%q, want %q", got, tc.code)
			}
		})
	}
}

func TestUpdateRunStatus_Errors(t *testing.T) {
	env := newTestEnv(t, false, nil)
	created := createRun(t, env, `{"prompt":"A","status":"ready"}`)
	if rec := setStatus(t, env, created.ID, "approved"); rec.Code != http.StatusOK {
		t.Fatalf("approve run: code=%d", rec.Code)
	}

	rec := setStatus(t, env, created.ID, "generating")
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "invalid_transition" {
		t.Fatalf("terminal update: code=%d body=%s", rec.Code, rec.Body.String())
	}
	current := decodeBody[run](t, env.do(t, http.MethodGet, "/runs/"+created.ID, ""))
	if current.Status != "approved" {
		t.Fatalf("status=%s, want approved", current.Status)
	}

	if rec := setStatus(t, env, "missing", "ready"); rec.Code != http.StatusNotFound {
		t.Fatalf("missing run: code=%d", rec.Code)
	}
	if rec := setStatus(t, env, created.ID, "posted"); rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_status" {
		t.Fatalf("unknown status: code=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestAppendImages(t *testing.T) {
	env := newTestEnv(t, false, nil)
	created := createRun(t, env, `{"prompt":"A","status":"ready"}`)

	rec := env.do(t, http.MethodPost, "/runs/"+created.ID+"/images",
		`[{"ordinal":2,"asset_uri":"runs/x/2.png"},{"ordinal":1,"asset_uri":"runs/x/1.png","thumb_uri":"runs/x/1.thumb.png"}]`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	updated := decodeBody[run](t, rec)
	if len(updated.Images) != 2 || updated.Images[0].Ordinal != 1 || updated.Images[1].Ordinal != 2 {
		t.Fatalf("images=%+v", updated.Images)
	}
	first := updated.Images[0]
	if first.Status != "generated" || first.RunID != created.ID || first.ThumbURI == nil {
		t.Fatalf("image=%+v", first)
	}

	list := decodeBody[runList](t, env.do(t, http.MethodGet, "/runs", ""))
	if list.ImagesGeneratedLastHour != 2 {
		t.Fatalf("images_generated_last_hour=%d, want 2", list.ImagesGeneratedLastHour)
	}

	rec = env.do(t, http.MethodPost, "/runs/"+created.ID+"/images", `[{"ordinal":3,"asset_uri":"runs/x/3.png"},{"ordinal":4}]`)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "asset_uri_required" {
		t.Fatalf("partial batch: code=%d body=%s", rec.Code, rec.Body.String())
	}
	current := decodeBody[run](t, env.do(t, http.MethodGet, "/runs/"+created.ID, ""))
	if len(current.Images) != 2 {
		t.Fatalf("partial batch stored images: %d", len(current.Images))
	}

	if rec := env.do(t, http.MethodPost, "/runs/missing/images", `[{"ordinal":1,"asset_uri":"a.png"}]`); rec.Code != http.StatusNotFound {
		t.Fatalf("missing run: code=%d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/runs/"+created.ID+"/images", `[]`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty batch: code=%d", rec.Code)
	}
}

func TestListRuns_InvalidQuery(t *testing.T) {
	env := newTestEnv(t, false, nil)
	if rec := env.do(t, http.MethodGet, "/runs?limit=abc", ""); rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_limit" {
		t.Fatalf("bad limit: code=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodGet, "/runs?status=posted", ""); rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_status" {
		t.Fatalf("bad status: code=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodGet, "/runs?offset=-3", ""); rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_offset" {
		t.Fatalf("negative offset: code=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodGet, "/runs?offset=x", ""); rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_offset" {
		t.Fatalf("bad offset: code=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestListRuns_ReturnsAllActiveRuns(t *testing.T) {
	env := newTestEnv(t, false, nil)
	generating := createRun(t, env, `{"prompt":"first","status":"generating"}`)
	for i := 0; i < 100; i++ {
		createRun(t, env, `{"prompt":"more","status":"ready"}`)
	}

	rec := env.do(t, http.MethodGet, "/runs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /runs status=%d body=%s", rec.Code, rec.Body.String())
	}
	list := decodeBody[runList](t, rec)
	if len(list.Runs) != 101 || list.Total != 101 {
		t.Fatalf("GET /runs len=%d total=%d, want 101", len(list.Runs), list.Total)
	}
	if !contains(listIDs(list), generating.ID) {
		t.Fatalf("generating run %s missing from list", generating.ID)
	}

	rec = env.do(t, http.MethodGet, "/runs?limit=40&offset=80", "")
	page := decodeBody[runList](t, rec)
	if rec.Code != http.StatusOK || len(page.Runs) != 21 || page.Total != 101 {
		t.Fatalf("GET /runs page status=%d len=%d total=%d", rec.Code, len(page.Runs), page.Total)
	}
}
