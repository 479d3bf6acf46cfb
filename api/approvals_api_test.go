package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/animus-labs/workflow-helper/internal/platform/auth"
)

func seedReadyRun(t *testing.T, env *testEnv) run {
	t.Helper()
	created := createRun(t, env, `{"prompt":"A","status":"ready"}`)
	rec := env.do(t, http.MethodPost, "/runs/"+created.ID+"/images",
		`[{"ordinal":1,"asset_uri":"runs/a/1.png"},{"ordinal":2,"asset_uri":"runs/a/2.png"}]`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("append images: code=%d body=%s", rec.Code, rec.Body.String())
	}
	return decodeBody[run](t, rec)
}

func TestApproveThenReject(t *testing.T) {
	env := newTestEnv(t, true, nil)
	seeded := seedReadyRun(t, env)
	img := seeded.Images[0]
	base := "/runs/" + seeded.ID + "/images/" + img.ID

	rec := env.do(t, http.MethodPost, base+"/approve", `{"approved_by":"alice"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("approve: code=%d body=%s", rec.Code, rec.Body.String())
	}
	first := decodeBody[approval](t, rec)
	if first.Decision != "approved" || first.ApprovedBy != "alice" || first.ImageID != img.ID {
		t.Fatalf("approval=%+v", first)
	}
	if first.WebhookStatus != "sent" || first.WebhookAttempts != 1 || first.WebhookLastError != nil {
		t.Fatalf("delivery=%s/%d/%v", first.WebhookStatus, first.WebhookAttempts, first.WebhookLastError)
	}

	rec = env.do(t, http.MethodPost, base+"/reject", `{"approved_by":"bob","notes":"hands look wrong"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("reject: code=%d body=%s", rec.Code, rec.Body.String())
	}
	second := decodeBody[approval](t, rec)
	if second.ID == first.ID || second.Decision != "rejected" || second.ImageID != img.ID {
		t.Fatalf("second=%+v first=%+v", second, first)
	}

	history := decodeBody[struct {
		Approvals []approval `json:"approvals"`
	}](t, env.do(t, http.MethodGet, base+"/approvals", ""))
	if len(history.Approvals) != 2 || history.Approvals[0].ID != first.ID || history.Approvals[1].ID != second.ID {
		t.Fatalf("history=%+v", history.Approvals)
	}

	current := decodeBody[run](t, env.do(t, http.MethodGet, "/runs/"+seeded.ID, ""))
	if current.Status != "ready" {
		t.Fatalf("run status=%s, want ready", current.Status)
	}
	if current.Images[0].Status != "rejected" || current.Images[0].Notes == nil || *current.Images[0].Notes != "hands look wrong" {
		t.Fatalf("image=%+v", current.Images[0])
	}

	events := env.hooks.received()
	if len(events) != 2 {
		t.Fatalf("webhook events=%d, want 2", len(events))
	}
	if events[0]["event"] != "run_image.approved" || events[1]["event"] != "run_image.rejected" {
		t.Fatalf("events=%v", events)
	}
	if events[1]["approval_id"] != second.ID || events[1]["asset_uri"] != "runs/a/1.png" {
		t.Fatalf("event=%v", events[1])
	}
}

func TestApprove_WebhookFailureIsRecorded(t *testing.T) {
	env := newTestEnv(t, true, nil)
	env.hooks.status = http.StatusBadGateway
	seeded := seedReadyRun(t, env)

	rec := env.do(t, http.MethodPost, "/runs/"+seeded.ID+"/images/"+seeded.Images[1].ID+"/approve", `{"approved_by":"alice"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
	got := decodeBody[approval](t, rec)
	if got.WebhookStatus != "failed" || got.WebhookAttempts != 1 {
		t.Fatalf("delivery=%s/%d", got.WebhookStatus, got.WebhookAttempts)
	}
	if got.WebhookLastError == nil || !strings.Contains(*got.WebhookLastError, "502") {
		t.Fatalf("last_error=%v", got.WebhookLastError)
	}
}

func TestApprove_WebhookNotConfigured(t *testing.T) {
	env := newTestEnv(t, false, nil)
	seeded := seedReadyRun(t, env)

	rec := env.do(t, http.MethodPost, "/runs/"+seeded.ID+"/images/"+seeded.Images[0].ID+"/approve", `{"approved_by":"alice"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
	got := decodeBody[approval](t, rec)
	if got.WebhookStatus != "failed" || got.WebhookLastError == nil || *got.WebhookLastError != "webhook target not configured" {
		t.Fatalf("approval=%+v", got)
	}
}

func TestApprove_Errors(t *testing.T) {
	env := newTestEnv(t, false, nil)
	seeded := seedReadyRun(t, env)
	other := createRun(t, env, `{"prompt":"B"}`)
	imgID := seeded.Images[0].ID

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"missing approver", "/runs/" + seeded.ID + "/images/" + imgID + "/approve", `{}`, http.StatusBadRequest, "approved_by_required"},
		{"empty body", "/runs/" + seeded.ID + "/images/" + imgID + "/approve", ``, http.StatusBadRequest, "approved_by_required"},
		{"unknown image", "/runs/" + seeded.ID + "/images/nope/approve", `{"approved_by":"alice"}`, http.StatusNotFound, "not_found"},
		{"image of another run", "/runs/" + other.ID + "/images/" + imgID + "/reject", `{"approved_by":"alice"}`, http.StatusNotFound, "not_found"},
		{"bad json", "/runs/" + seeded.ID + "/images/" + imgID + "/approve", `{"approved_by":`, http.StatusBadRequest, "invalid_json"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tc.path, tc.body)
			if rec.Code != tc.status || errorCode(t, rec) != tc.code {
				t.Fatalf("code=%d body=%s, want %d %s", rec.Code, rec.Body.String(), tc.status, tc.code)
			}
		})
	}

	history := decodeBody[struct {
		Approvals []approval `json:"approvals"`
	}](t, env.do(t, http.MethodGet, "/runs/"+seeded.ID+"/images/"+imgID+"/approvals", ""))
	if len(history.Approvals) != 0 {
		t.Fatalf("rejected requests stored %d approvals", len(history.Approvals))
	}
}

func TestApprove_IdentityOverridesBodyApprover(t *testing.T) {
	env := newTestEnv(t, false, nil)
	seeded := seedReadyRun(t, env)

	req := httptest.NewRequest(http.MethodPost, "/runs/"+seeded.ID+"/images/"+seeded.Images[0].ID+"/reject", strings.NewReader(`{"approved_by":"mallory"}`))
	req = req.WithContext(auth.ContextWithIdentity(req.Context(), auth.Identity{Subject: "sub-2"}))
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[approval](t, rec).ApprovedBy; got != "sub-2" {
		t.Fatalf("approved_by=%q, want sub-2", got)
	}

	list := env.do(t, http.MethodGet, "/runs/"+seeded.ID+"/images/"+seeded.Images[0].ID+"/approvals", "")
	history := decodeBody[struct {
		Approvals []approval `json:"approvals"`
	}](t, list)
	if len(history.Approvals) != 1 || history.Approvals[0].ApprovedBy != "sub-2" {
		t.Fatalf("history=%+v", history.Approvals)
	}
}

func TestApprove_DefaultsApproverToIdentity(t *testing.T) {
	env := newTestEnv(t, false, nil)
	seeded := seedReadyRun(t, env)

	req := httptest.NewRequest(http.MethodPost, "/runs/"+seeded.ID+"/images/"+seeded.Images[0].ID+"/approve", strings.NewReader(`{}`))
	req = req.WithContext(auth.ContextWithIdentity(req.Context(), auth.Identity{Subject: "sub-1", Email: "carol@example.com"}))
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[approval](t, rec).ApprovedBy; got != "carol@example.com" {
		t.Fatalf("approved_by=%q, want carol@example.com", got)
	}
}
