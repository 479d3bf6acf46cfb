package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/animus-labs/workflow-helper/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleLinkEvent() LinkEvent {
	return NewLinkEvent(domain.LinkSubmission{
		ID:        "l1",
		URL:       "example.com/page",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
}

func TestDeliver_NotConfigured(t *testing.T) {
	d := NewDispatcher(nil, time.Second, testLogger())
	out := d.Deliver(context.Background(), "", sampleLinkEvent())
	if out.Status != domain.WebhookStatusFailed || out.Attempts != 1 {
		t.Fatalf("Deliver()=%+v, want failed after one attempt", out)
	}
	if out.LastError != "webhook target not configured" {
		t.Fatalf("LastError=%q", out.LastError)
	}
}

func TestDeliver_Success(t *testing.T) {
	var gotEvent, gotType, gotAgent string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEvent = r.Header.Get("X-Webhook-Event")
		gotType = r.Header.Get("Content-Type")
		gotAgent = r.Header.Get("User-Agent")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.Client(), time.Second, testLogger())
	out := d.Deliver(context.Background(), srv.URL, sampleLinkEvent())
	if out.Status != domain.WebhookStatusSent || out.Attempts != 1 || out.LastError != "" {
		t.Fatalf("Deliver()=%+v, want sent", out)
	}
	if gotEvent != EventLinkSubmitted || gotType != "application/json" || gotAgent != userAgent {
		t.Fatalf("headers event=%q type=%q agent=%q", gotEvent, gotType, gotAgent)
	}
	if gotBody["url"] != "example.com/page" || gotBody["source_url"] != nil {
		t.Fatalf("unexpected body: %v", gotBody)
	}
}

func TestDeliver_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	out := NewDispatcher(srv.Client(), time.Second, testLogger()).Deliver(context.Background(), srv.URL, sampleLinkEvent())
	if out.Status != domain.WebhookStatusFailed || out.LastError != "unexpected status 502" {
		t.Fatalf("Deliver()=%+v", out)
	}
}

func TestDeliver_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	d := NewDispatcher(srv.Client(), 50*time.Millisecond, testLogger())
	start := time.Now()
	out := d.Deliver(context.Background(), srv.URL, sampleLinkEvent())
	if out.Status != domain.WebhookStatusFailed || !strings.Contains(out.LastError, "timed out") {
		t.Fatalf("Deliver()=%+v, want timeout failure", out)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Deliver() took %s", elapsed)
	}
}

func TestDeliver_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL
	srv.Close()

	out := NewDispatcher(nil, time.Second, testLogger()).Deliver(context.Background(), target, sampleLinkEvent())
	if out.Status != domain.WebhookStatusFailed || out.LastError == "" {
		t.Fatalf("Deliver()=%+v, want failure with error", out)
	}
}

func TestDeliver_IgnoresCallerCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := NewDispatcher(srv.Client(), time.Second, testLogger()).Deliver(ctx, srv.URL, sampleLinkEvent())
	if out.Status != domain.WebhookStatusSent {
		t.Fatalf("Deliver()=%+v, want sent", out)
	}
}

func TestNewApprovalEvent(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ev := NewApprovalEvent(domain.ApprovalRecord{
		ID: "a1", RunID: "r1", ImageID: "i1", Decision: domain.DecisionRejected,
		ApprovedBy: "bob", CreatedAt: at,
	}, domain.Image{AssetURI: "runs/r1/1.png"})

	if ev.EventName() != EventImageRejected || ev.RecordID() != "a1" {
		t.Fatalf("event=%q id=%q", ev.EventName(), ev.RecordID())
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal() err=%v", err)
	}
	for _, want := range []string{`"asset_uri":"runs/r1/1.png"`, `"notes":null`, `"approved_at":"2026-05-01T12:00:00Z"`} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("payload %s missing %s", raw, want)
		}
	}
}

func TestOutcomeUpdate(t *testing.T) {
	u := failed("boom").Update()
	if u.Status != domain.WebhookStatusFailed || u.Attempts != 1 || u.LastError != "boom" {
		t.Fatalf("Update()=%+v", u)
	}
}
