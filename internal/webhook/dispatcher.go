// Package webhook performs one-shot deliveries of event notifications to an
// external automation endpoint. A delivery never returns an error: every
// failure is reported through Outcome so the caller can persist it next to
// the record that triggered the event.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/animus-labs/workflow-helper/internal/domain"
	"github.com/animus-labs/workflow-helper/internal/repo"
)

const (
	userAgent   = "workflow-helper-webhook/1"
	eventHeader = "X-Webhook-Event"

	errNotConfigured = "webhook target not configured"
)

type Outcome struct {
	Status    domain.WebhookStatus
	Attempts  int
	LastError string
}

// Update converts the outcome into the counter increment stored on the record.
func (o Outcome) Update() repo.DeliveryUpdate {
	return repo.DeliveryUpdate{Status: o.Status, Attempts: o.Attempts, LastError: o.LastError}
}

type Dispatcher struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewDispatcher(client *http.Client, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{client: client, timeout: timeout, logger: logger}
}

// Deliver makes exactly one POST attempt. The attempt is detached from the
// caller's cancellation and bounded by the dispatcher timeout instead.
func (d *Dispatcher) Deliver(ctx context.Context, target string, payload Payload) Outcome {
	out := d.deliver(ctx, target, payload)
	if out.Status == domain.WebhookStatusFailed {
		d.logger.Warn("webhook delivery failed",
			"event", payload.EventName(),
			"record_id", payload.RecordID(),
			"attempts", out.Attempts,
			"error", out.LastError,
		)
	}
	return out
}

func (d *Dispatcher) deliver(ctx context.Context, target string, payload Payload) Outcome {
	if target == "" {
		return failed(errNotConfigured)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return failed(fmt.Sprintf("encode payload: %v", err))
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return failed(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(eventHeader, payload.EventName())

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return failed(fmt.Sprintf("timed out after %s", d.timeout))
		}
		return failed(err.Error())
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failed(fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}
	return Outcome{Status: domain.WebhookStatusSent, Attempts: 1}
}

func failed(msg string) Outcome {
	return Outcome{Status: domain.WebhookStatusFailed, Attempts: 1, LastError: msg}
}
