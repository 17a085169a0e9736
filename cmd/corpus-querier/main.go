// Command corpus-querier fills a spreadsheet region with corpus hit counts.
//
// Exit codes:
//   - 0: every cell in the region was processed
//   - 1: halted on an unrecoverable error (progress saved when possible)
//   - 2: usage or configuration error
//   - 3: interrupted (progress saved)
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/shpitdev/corpus-querier/internal/app"
	"github.com/shpitdev/corpus-querier/internal/batch"
	"github.com/shpitdev/corpus-querier/internal/logging"
	"github.com/shpitdev/corpus-querier/internal/util"
	"github.com/shpitdev/corpus-querier/internal/version"
)

const (
	exitCompleted   = 0
	exitHaltedError = 1
	exitUsage       = 2
	exitInterrupted = 3
)

var commit = "unknown"

func main() {
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		os.Exit(exitHaltedError)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "corpus-querier",
		Usage:          "Count CQL query hits for spreadsheet cells against a corpus search API",
		Version:        fmt.Sprintf("%s (commit: %s)", version.Current, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Query every cell of the region and write the counts back",
				Flags:  runFlags(),
				Action: runAction,
			},
			{
				Name:   "check",
				Usage:  "Validate the config and list the cells a run would query; sends nothing",
				Flags:  runFlags(),
				Action: checkAction,
			},
			{
				Name:  "version",
				Usage: "Show version information",
				Action: func(c *cli.Context) error {
					_, err := fmt.Fprintf(c.App.Writer, "corpus-querier %s (commit: %s)\n", version.Current, commit)
					return err
				},
			},
		},
	}
}

func runAction(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	if err := cfg.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("invalid config:\n%v", err), exitUsage)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, c.App.ErrWriter)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := app.Run(ctx, cfg, app.Deps{
		Logger: logger,
		Out:    c.App.Writer,
		Bell:   c.App.Writer,
	})
	return exitFor(rep, err)
}

// exitFor maps a finished run onto the process exit code.
func exitFor(rep app.Report, err error) error {
	switch {
	case err != nil && !rep.Started:
		return cli.Exit(err.Error(), exitUsage)
	case err != nil:
		return cli.Exit("", exitHaltedError)
	case rep.Result.Reason == batch.HaltInterrupted:
		return cli.Exit("", exitInterrupted)
	default:
		return nil
	}
}

func checkAction(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	if _, err := app.Check(cfg, c.App.Writer); err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	return nil
}

// exitErrHandler preserves exit codes from cli.Exit.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			_, _ = fmt.Fprintln(os.Stderr, util.RedactSecrets(msg))
		}
		os.Exit(code)
	}

	_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", util.RedactSecrets(err.Error()))
	os.Exit(exitUsage)
}
