package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/animus-labs/workflow-helper/internal/platform/env"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Config is read once at startup and never mutated afterwards.
type Config struct {
	ApprovalURL string
	LinkURL     string
	Timeout     time.Duration

	// Optional client-credentials grant for endpoints that require a bearer token.
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

func ConfigFromEnv() (Config, error) {
	timeout, err := env.Duration("WF_WEBHOOK_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		ApprovalURL:  strings.TrimSpace(env.String("WF_APPROVAL_WEBHOOK_URL", "")),
		LinkURL:      strings.TrimSpace(env.String("WF_LINK_WEBHOOK_URL", "")),
		Timeout:      timeout,
		TokenURL:     strings.TrimSpace(env.String("WF_WEBHOOK_TOKEN_URL", "")),
		ClientID:     strings.TrimSpace(env.String("WF_WEBHOOK_CLIENT_ID", "")),
		ClientSecret: env.String("WF_WEBHOOK_CLIENT_SECRET", ""),
		Scopes:       env.Strings("WF_WEBHOOK_SCOPES", nil),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("WF_WEBHOOK_TIMEOUT must be positive")
	}
	if err := validateTarget("WF_APPROVAL_WEBHOOK_URL", c.ApprovalURL); err != nil {
		return err
	}
	if err := validateTarget("WF_LINK_WEBHOOK_URL", c.LinkURL); err != nil {
		return err
	}
	if c.TokenURL == "" {
		if c.ClientID != "" || c.ClientSecret != "" {
			return errors.New("WF_WEBHOOK_TOKEN_URL is required when webhook client credentials are set")
		}
		return nil
	}
	if err := validateTarget("WF_WEBHOOK_TOKEN_URL", c.TokenURL); err != nil {
		return err
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return errors.New("WF_WEBHOOK_CLIENT_ID and WF_WEBHOOK_CLIENT_SECRET are required with WF_WEBHOOK_TOKEN_URL")
	}
	return nil
}

// HTTPClient returns the client used for deliveries. With a token URL
// configured, every request carries a client-credentials bearer token.
func (c Config) HTTPClient(ctx context.Context) *http.Client {
	base := &http.Client{Timeout: c.Timeout}
	if c.TokenURL == "" {
		return base
	}
	cc := clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
		Scopes:       c.Scopes,
	}
	client := cc.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
	client.Timeout = c.Timeout
	return client
}

func validateTarget(key, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) url", key)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", key)
	}
	return nil
}
