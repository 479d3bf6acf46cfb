// wfctl is the operator CLI for workflow-api deployments.
//
//	wfctl migrate                       apply embedded database migrations
//	wfctl redeliver [--limit N] [--max-attempts N]
//	                                    retry failed webhook deliveries once
//	wfctl submit-link --api URL --url X [--source-url Y] [--token T]
//	                                    normalize a link and submit it
//
// Configuration comes from the same WF_* environment (and WF_CONFIG_FILE) as
// the service.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

const (
	exitFailure = 1
	exitConfig  = 2
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

func configError(format string, args ...any) error {
	return &exitError{code: exitConfig, err: fmt.Errorf(format, args...)}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	if err := run(ctx, logger, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		os.Exit(exitFailure)
	}
}

func run(ctx context.Context, logger *slog.Logger, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		printUsage(stdout)
		return configError("command required")
	}
	switch cmd, rest := args[0], args[1:]; cmd {
	case "migrate":
		return runMigrate(ctx, logger, rest, stdout)
	case "redeliver":
		return runRedeliver(ctx, logger, rest, stdout)
	case "submit-link":
		return runSubmitLink(ctx, rest, stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		return configError("unknown command %q", cmd)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: wfctl <command> [flags]

Commands:
  migrate       apply embedded database migrations
  redeliver     retry failed approval and link webhooks once
  submit-link   normalize a URL and POST it to /links

Run "wfctl <command> --help" for command flags.
`)
}
