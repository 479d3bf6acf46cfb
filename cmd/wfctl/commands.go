package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/animus-labs/workflow-helper/internal/platform/env"
	"github.com/animus-labs/workflow-helper/internal/platform/postgres"
	repopg "github.com/animus-labs/workflow-helper/internal/repo/postgres"
	"github.com/animus-labs/workflow-helper/internal/service/links"
	"github.com/animus-labs/workflow-helper/internal/service/redelivery"
	"github.com/animus-labs/workflow-helper/internal/webhook"
)

// parseFlags returns errHelpShown when --help was requested.
var errHelpShown = errors.New("help shown")

func parseFlags(flagSet *pflag.FlagSet, args []string, stdout io.Writer) error {
	flagSet.SetOutput(stdout)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return errHelpShown
		}
		return configError("%s: %v", flagSet.Name(), err)
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return configError("%s: unexpected argument %q", flagSet.Name(), extra[0])
	}
	return nil
}

func loadConfigFile() error {
	if _, err := env.LoadFile(env.String("WF_CONFIG_FILE", "")); err != nil {
		return configError("config file: %v", err)
	}
	return nil
}

// openDatabase connects with the environment's settings. The migrate command
// forces migration on; other commands follow WF_DATABASE_MIGRATE.
func openDatabase(ctx context.Context, forceMigrate bool) (*sql.DB, []string, error) {
	if err := loadConfigFile(); err != nil {
		return nil, nil, err
	}
	cfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return nil, nil, configError("database config: %v", err)
	}
	if forceMigrate {
		cfg.Migrate = true
	}
	db, applied, err := postgres.Connect(ctx, cfg, repopg.Migrate)
	if err != nil {
		return nil, nil, fmt.Errorf("database unavailable: %w", err)
	}
	return db, applied, nil
}

func runMigrate(ctx context.Context, logger *slog.Logger, args []string, stdout io.Writer) error {
	flagSet := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	if err := parseFlags(flagSet, args, stdout); err != nil {
		if errors.Is(err, errHelpShown) {
			return nil
		}
		return err
	}

	db, applied, err := openDatabase(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	logger.Info("migrations applied", "count", len(applied))
	if len(applied) == 0 {
		fmt.Fprintln(stdout, "schema up to date")
		return nil
	}
	for _, version := range applied {
		fmt.Fprintf(stdout, "applied %s\n", version)
	}
	return nil
}

func runRedeliver(ctx context.Context, logger *slog.Logger, args []string, stdout io.Writer) error {
	var opts redelivery.Options
	flagSet := pflag.NewFlagSet("redeliver", pflag.ContinueOnError)
	flagSet.IntVar(&opts.Limit, "limit", redelivery.DefaultLimit, "maximum records to retry per kind")
	flagSet.IntVar(&opts.MaxAttempts, "max-attempts", redelivery.DefaultMaxAttempts, "skip records that already reached this many attempts")
	if err := parseFlags(flagSet, args, stdout); err != nil {
		if errors.Is(err, errHelpShown) {
			return nil
		}
		return err
	}
	if opts.Limit < 1 || opts.MaxAttempts < 1 {
		return configError("redeliver: --limit and --max-attempts must be >= 1")
	}

	if err := loadConfigFile(); err != nil {
		return err
	}
	webhookCfg, err := webhook.ConfigFromEnv()
	if err != nil {
		return configError("webhook config: %v", err)
	}
	db, applied, err := openDatabase(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if len(applied) > 0 {
		logger.Info("database migrated", "versions", applied)
	}

	dispatcher := webhook.NewDispatcher(webhookCfg.HTTPClient(ctx), webhookCfg.Timeout, logger)
	svc := redelivery.New(repopg.NewStore(db), dispatcher, redelivery.Targets{
		Approval: webhookCfg.ApprovalURL,
		Link:     webhookCfg.LinkURL,
	}, logger)

	result, err := svc.Sweep(ctx, opts)
	if err != nil {
		return fmt.Errorf("redeliver: %w", err)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

type submitLinkOptions struct {
	api       string
	url       string
	sourceURL string
	token     string
	timeout   time.Duration
}

func runSubmitLink(ctx context.Context, args []string, stdout io.Writer) error {
	var opts submitLinkOptions
	flagSet := pflag.NewFlagSet("submit-link", pflag.ContinueOnError)
	flagSet.StringVar(&opts.api, "api", "http://localhost:8000", "workflow-api base URL")
	flagSet.StringVar(&opts.url, "url", "", "link to submit (a bare host gets https://)")
	flagSet.StringVar(&opts.sourceURL, "source-url", "", "page the link was found on")
	flagSet.StringVar(&opts.token, "token", "", "bearer token when the API requires authentication")
	flagSet.DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")
	if err := parseFlags(flagSet, args, stdout); err != nil {
		if errors.Is(err, errHelpShown) {
			return nil
		}
		return err
	}

	target := links.NormalizeURL(opts.url)
	if target == "" {
		return configError("submit-link: --url is required")
	}
	body, err := json.Marshal(map[string]string{
		"url":        target,
		"source_url": strings.TrimSpace(opts.sourceURL),
	})
	if err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	endpoint := strings.TrimRight(strings.TrimSpace(opts.api), "/") + "/links"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return configError("submit-link: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "wfctl/1")
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("submit-link: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("submit-link: read response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("submit-link: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	_, err = stdout.Write(respBody)
	return err
}
