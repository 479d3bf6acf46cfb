package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/workflow-helper/internal/platform/env"
)

// Config describes the bucket that holds generated assets. An empty Endpoint
// disables object storage entirely.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("WF_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:  strings.TrimSpace(env.String("WF_MINIO_ENDPOINT", "")),
		AccessKey: env.String("WF_MINIO_ACCESS_KEY", ""),
		SecretKey: env.String("WF_MINIO_SECRET_KEY", ""),
		Region:    env.String("WF_MINIO_REGION", "us-east-1"),
		UseSSL:    useSSL,
		Bucket:    env.String("WF_MINIO_BUCKET", "runs"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("WF_MINIO_ACCESS_KEY is required when WF_MINIO_ENDPOINT is set")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("WF_MINIO_SECRET_KEY is required when WF_MINIO_ENDPOINT is set")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("WF_MINIO_REGION is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("WF_MINIO_BUCKET is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
