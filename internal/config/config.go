package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shpitdev/corpus-querier/internal/batch"
	"github.com/shpitdev/corpus-querier/internal/hits/retry"
	"github.com/shpitdev/corpus-querier/internal/sheet"
	"github.com/shpitdev/corpus-querier/pkg/corpus"
)

// Config is everything a run needs. It is assembled once (defaults, then an
// optional YAML file, then environment and flags) and not changed afterwards.
type Config struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
	// Sheet selects the worksheet of a workbook input; empty means the first.
	Sheet string `yaml:"sheet"`

	Corpus      string            `yaml:"corpus"`
	BaseURL     string            `yaml:"base_url"`
	QueryStyle  string            `yaml:"query_style"`
	DefaultAttr string            `yaml:"default_attr"`
	Context     map[string]string `yaml:"context"`

	StartRow   int      `yaml:"start_row"`
	EndRow     int      `yaml:"end_row"`
	RowBase    int      `yaml:"row_base"`
	HeaderRows int      `yaml:"header_rows"`
	Columns    []string `yaml:"columns"`
	Strict     bool     `yaml:"strict"`

	Policy           string        `yaml:"policy"`
	MaxAttempts      int           `yaml:"max_attempts"`
	AttemptTimeout   time.Duration `yaml:"attempt_timeout"`
	AttemptCooldown  time.Duration `yaml:"attempt_cooldown"`
	SequenceCooldown time.Duration `yaml:"sequence_cooldown"`
	CellDelay        time.Duration `yaml:"cell_delay"`
	ErrorMarker      string        `yaml:"error_marker"`

	Notify      Notify `yaml:"notify"`
	MetricsFile string `yaml:"metrics_file"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

type Notify struct {
	Bell       bool   `yaml:"bell"`
	WebhookURL string `yaml:"webhook_url"`
}

// Default returns one-based rows below a single header row, the strict bracket
// check and a five second pause between queries. AttemptTimeout stays zero so
// the retry policy picks its own default.
func Default() Config {
	return Config{
		BaseURL:          corpus.DefaultBaseURL,
		QueryStyle:       string(corpus.QueryStyleCQL),
		DefaultAttr:      "word",
		RowBase:          1,
		HeaderRows:       1,
		Strict:           true,
		Policy:           retry.PolicyBestEffortMax.String(),
		MaxAttempts:      retry.DefaultMaxAttempts,
		AttemptCooldown:  3 * time.Second,
		SequenceCooldown: 3 * time.Second,
		CellDelay:        5 * time.Second,
		ErrorMarker:      batch.DefaultErrorMarker,
		Notify:           Notify{Bell: true},
		LogLevel:         "info",
		LogFormat:        "console",
	}
}

// Load reads a YAML file over the defaults. ${VAR} and ${VAR:-default}
// references are expanded from the environment before decoding.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config file not found: %s", path)
		}
		return Config{}, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	expanded := ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	return cfg, nil
}

// ParseRows parses "12", "3-40" or "3:40" into an inclusive range.
func ParseRows(s string) (start, end int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, errors.New("row range is empty")
	}
	sep := strings.IndexAny(s, "-:")
	if sep < 0 {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid row %q: %w", s, err)
		}
		return n, n, nil
	}
	start, err = strconv.Atoi(strings.TrimSpace(s[:sep]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid start row in %q: %w", s, err)
	}
	end, err = strconv.Atoi(strings.TrimSpace(s[sep+1:]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid end row in %q: %w", s, err)
	}
	return start, end, nil
}

// SplitColumns splits "B, c,D" into upper-cased identifiers.
func SplitColumns(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		v := strings.ToUpper(strings.TrimSpace(p))
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Input) == "" {
		errs = append(errs, errors.New("input path is required"))
	}
	if strings.TrimSpace(c.Output) == "" {
		errs = append(errs, errors.New("output path is required"))
	}
	if strings.TrimSpace(c.Corpus) == "" {
		errs = append(errs, errors.New("corpus is required"))
	}
	if c.RowBase != 0 && c.RowBase != 1 {
		errs = append(errs, fmt.Errorf("row_base must be 0 or 1, got %d", c.RowBase))
	}
	if c.HeaderRows < 0 {
		errs = append(errs, fmt.Errorf("header_rows must be >= 0, got %d", c.HeaderRows))
	}
	if c.StartRow < c.RowBase {
		errs = append(errs, fmt.Errorf("start_row must be >= %d, got %d", c.RowBase, c.StartRow))
	}
	if c.EndRow < c.StartRow {
		errs = append(errs, fmt.Errorf("end_row %d is before start_row %d", c.EndRow, c.StartRow))
	}
	if _, err := sheet.ParseColumns(c.Columns); err != nil {
		errs = append(errs, fmt.Errorf("columns: %w", err))
	}
	if _, err := retry.ParsePolicy(c.Policy); err != nil {
		errs = append(errs, err)
	}
	switch corpus.QueryStyle(c.QueryStyle) {
	case "", corpus.QueryStyleCQL, corpus.QueryStyleQ:
	default:
		errs = append(errs, fmt.Errorf("unknown query_style %q", c.QueryStyle))
	}
	if c.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("max_attempts must be >= 0, got %d", c.MaxAttempts))
	}
	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"attempt_timeout", c.AttemptTimeout},
		{"attempt_cooldown", c.AttemptCooldown},
		{"sequence_cooldown", c.SequenceCooldown},
		{"cell_delay", c.CellDelay},
	} {
		if d.val < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0, got %s", d.name, d.val))
		}
	}
	return errors.Join(errs...)
}

// RetryOptions maps the config onto the querier's options.
func (c Config) RetryOptions() (retry.Options, error) {
	p, err := retry.ParsePolicy(c.Policy)
	if err != nil {
		return retry.Options{}, err
	}
	return retry.Options{
		Policy:           p,
		MaxAttempts:      c.MaxAttempts,
		AttemptTimeout:   c.AttemptTimeout,
		AttemptCooldown:  c.AttemptCooldown,
		SequenceCooldown: c.SequenceCooldown,
	}, nil
}

// BatchOptions maps the config onto the runner's options.
func (c Config) BatchOptions() (batch.Options, error) {
	cols, err := sheet.ParseColumns(c.Columns)
	if err != nil {
		return batch.Options{}, err
	}
	return batch.Options{
		Corpus:      c.Corpus,
		StartRow:    c.StartRow,
		EndRow:      c.EndRow,
		RowBase:     c.RowBase,
		HeaderRows:  c.HeaderRows,
		Columns:     cols,
		Strict:      c.Strict,
		CellDelay:   c.CellDelay,
		ErrorMarker: c.ErrorMarker,
		OutputPath:  c.Output,
	}, nil
}

// ClientConfig maps the config onto the search client's settings.
func (c Config) ClientConfig() corpus.Config {
	return corpus.Config{
		BaseURL:      c.BaseURL,
		Style:        corpus.QueryStyle(c.QueryStyle),
		DefaultAttr:  c.DefaultAttr,
		ContextAttrs: c.Context,
	}
}
