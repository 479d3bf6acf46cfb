package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/workflow-helper/internal/platform/env"
)

type Mode string

const (
	ModeOIDC     Mode = "oidc"
	ModeDisabled Mode = "disabled"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type Config struct {
	Mode Mode

	EmailClaim    string
	OIDCIssuerURL string
	OIDCClientID  string
}

func ConfigFromEnv() (Config, error) {
	modeRaw := strings.ToLower(strings.TrimSpace(env.String("WF_AUTH_MODE", string(ModeDisabled))))
	var mode Mode
	switch modeRaw {
	case string(ModeOIDC):
		mode = ModeOIDC
	case string(ModeDisabled):
		mode = ModeDisabled
	default:
		return Config{}, fmt.Errorf("WF_AUTH_MODE must be one of: oidc, disabled (got %q)", modeRaw)
	}

	cfg := Config{
		Mode:          mode,
		EmailClaim:    strings.TrimSpace(env.String("WF_OIDC_EMAIL_CLAIM", "email")),
		OIDCIssuerURL: strings.TrimSpace(env.String("WF_OIDC_ISSUER_URL", "")),
		OIDCClientID:  strings.TrimSpace(env.String("WF_OIDC_CLIENT_ID", "")),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeOIDC:
		if c.OIDCIssuerURL == "" {
			return errors.New("WF_OIDC_ISSUER_URL is required when WF_AUTH_MODE=oidc")
		}
		if c.OIDCClientID == "" {
			return errors.New("WF_OIDC_CLIENT_ID is required when WF_AUTH_MODE=oidc")
		}
		if c.EmailClaim == "" {
			return errors.New("WF_OIDC_EMAIL_CLAIM is required when WF_AUTH_MODE=oidc")
		}
	case ModeDisabled:
	default:
		return fmt.Errorf("unsupported auth mode: %q", c.Mode)
	}
	return nil
}
