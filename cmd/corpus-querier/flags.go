package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/shpitdev/corpus-querier/internal/config"
)

const envPrefix = "CORPUSQ_"

func env(name string) []string {
	return []string{envPrefix + name}
}

// runFlags are shared by run and check. Flags override the config file.
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file", EnvVars: env("CONFIG")},
		&cli.BoolFlag{Name: "interactive", Usage: "Prompt for required settings that are still missing"},

		&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "Input spreadsheet (.xlsx, .xlsm or .csv)", EnvVars: env("INPUT")},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output path; may equal --input", EnvVars: env("OUTPUT")},
		&cli.StringFlag{Name: "sheet", Usage: "Worksheet name (default: first sheet)", EnvVars: env("SHEET")},

		&cli.StringFlag{Name: "corpus", Usage: "Corpus name sent as corpname", EnvVars: env("CORPUS")},
		&cli.StringFlag{Name: "base-url", Usage: "Search endpoint base (run.cgi)", EnvVars: env("BASE_URL")},
		&cli.StringFlag{Name: "query-style", Usage: "Request encoding: cql or q", EnvVars: env("QUERY_STYLE")},
		&cli.StringFlag{Name: "default-attr", Usage: "Attribute bare strings match against", EnvVars: env("DEFAULT_ATTR")},

		&cli.StringFlag{Name: "rows", Usage: "Inclusive data-row range, e.g. 2-40", EnvVars: env("ROWS")},
		&cli.StringFlag{Name: "columns", Usage: "Comma-separated columns, e.g. B,C,D", EnvVars: env("COLUMNS")},
		&cli.IntFlag{Name: "row-base", Usage: "Number of the first data row (0 or 1)", EnvVars: env("ROW_BASE")},
		&cli.IntFlag{Name: "header-rows", Usage: "Leading rows that are not data", EnvVars: env("HEADER_ROWS")},
		&cli.BoolFlag{Name: "no-strict", Usage: "Query cells that do not start with '['", EnvVars: env("NO_STRICT")},

		&cli.StringFlag{Name: "policy", Usage: "Retry policy: best-effort or fail-fast", EnvVars: env("POLICY")},
		&cli.IntFlag{Name: "max-attempts", Usage: "Attempts per query (best-effort)", EnvVars: env("MAX_ATTEMPTS")},
		&cli.DurationFlag{Name: "attempt-timeout", Usage: "Per-attempt timeout", EnvVars: env("ATTEMPT_TIMEOUT")},
		&cli.DurationFlag{Name: "attempt-cooldown", Usage: "Pause between attempts of one query (best-effort)", EnvVars: env("ATTEMPT_COOLDOWN")},
		&cli.DurationFlag{Name: "sequence-cooldown", Usage: "Pause after all attempts of one query (best-effort)", EnvVars: env("SEQUENCE_COOLDOWN")},
		&cli.DurationFlag{Name: "cell-delay", Usage: "Minimum spacing between queried cells", EnvVars: env("CELL_DELAY")},
		&cli.StringFlag{Name: "error-marker", Usage: "Text written where every attempt failed", EnvVars: env("ERROR_MARKER")},

		&cli.BoolFlag{Name: "no-bell", Usage: "Do not ring the terminal bell on completion", EnvVars: env("NO_BELL")},
		&cli.StringFlag{Name: "webhook-url", Usage: "POST a JSON event here on completion", EnvVars: env("WEBHOOK_URL")},
		&cli.StringFlag{Name: "metrics-file", Usage: "Write Prometheus textfile metrics here", EnvVars: env("METRICS_FILE")},

		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error", EnvVars: env("LOG_LEVEL")},
		&cli.StringFlag{Name: "log-format", Usage: "console or json", EnvVars: env("LOG_FORMAT")},
	}
}

// buildConfig layers defaults, the config file, then flags and environment.
func buildConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	str := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	num := func(name string, dst *int) {
		if c.IsSet(name) {
			*dst = c.Int(name)
		}
	}

	str("input", &cfg.Input)
	str("output", &cfg.Output)
	str("sheet", &cfg.Sheet)
	str("corpus", &cfg.Corpus)
	str("base-url", &cfg.BaseURL)
	str("query-style", &cfg.QueryStyle)
	str("default-attr", &cfg.DefaultAttr)
	str("policy", &cfg.Policy)
	str("error-marker", &cfg.ErrorMarker)
	str("webhook-url", &cfg.Notify.WebhookURL)
	str("metrics-file", &cfg.MetricsFile)
	str("log-level", &cfg.LogLevel)
	str("log-format", &cfg.LogFormat)
	num("row-base", &cfg.RowBase)
	num("header-rows", &cfg.HeaderRows)
	num("max-attempts", &cfg.MaxAttempts)

	if c.IsSet("rows") {
		start, end, err := config.ParseRows(c.String("rows"))
		if err != nil {
			return cfg, err
		}
		cfg.StartRow, cfg.EndRow = start, end
	}
	if c.IsSet("columns") {
		cfg.Columns = config.SplitColumns(c.String("columns"))
	}
	if c.IsSet("no-strict") {
		cfg.Strict = !c.Bool("no-strict")
	}
	if c.IsSet("no-bell") {
		cfg.Notify.Bell = !c.Bool("no-bell")
	}
	for name, dst := range map[string]*time.Duration{
		"attempt-timeout":   &cfg.AttemptTimeout,
		"attempt-cooldown":  &cfg.AttemptCooldown,
		"sequence-cooldown": &cfg.SequenceCooldown,
		"cell-delay":        &cfg.CellDelay,
	} {
		if c.IsSet(name) {
			*dst = c.Duration(name)
		}
	}

	if c.Bool("interactive") {
		in := c.App.Reader
		if in == nil {
			in = os.Stdin
		}
		prompted, err := config.Prompt(in, c.App.Writer, cfg)
		if err != nil {
			return cfg, fmt.Errorf("interactive input: %w", err)
		}
		cfg = prompted
	}
	return cfg, nil
}
