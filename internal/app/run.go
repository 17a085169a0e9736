// Package app wires configuration, the sheet store, the search client and the
// batch runner into one run.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shpitdev/corpus-querier/internal/batch"
	"github.com/shpitdev/corpus-querier/internal/config"
	"github.com/shpitdev/corpus-querier/internal/hits/retry"
	"github.com/shpitdev/corpus-querier/internal/logging"
	"github.com/shpitdev/corpus-querier/internal/metrics"
	"github.com/shpitdev/corpus-querier/internal/notify"
	"github.com/shpitdev/corpus-querier/internal/sheet"
	"github.com/shpitdev/corpus-querier/internal/util"
	"github.com/shpitdev/corpus-querier/pkg/corpus"
)

// Deps are the process-level collaborators of a run. Zero values fall back to
// sensible defaults.
type Deps struct {
	Logger *zap.Logger
	// Out receives the final status line.
	Out io.Writer
	// Bell receives the completion bell when notify.bell is set.
	Bell       io.Writer
	HTTPClient *http.Client
	// NewRunID overrides run ID generation.
	NewRunID func() string
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Out == nil {
		d.Out = io.Discard
	}
	if d.Bell == nil {
		d.Bell = io.Discard
	}
	if d.NewRunID == nil {
		d.NewRunID = uuid.NewString
	}
	return d
}

// Report summarizes a finished run.
type Report struct {
	RunID string
	// Started is set once the runner took over; setup failures leave it false.
	Started  bool
	Result   batch.Result
	Duration time.Duration
}

// Run processes cfg's region once. The returned error is the runner's: nil on
// completion and on interruption, non-nil when the run halted on an error or
// could not be saved. Setup failures are returned before anything is queried.
func Run(ctx context.Context, cfg config.Config, deps Deps) (Report, error) {
	deps = deps.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Report{}, fmt.Errorf("invalid config: %w", err)
	}

	rep := Report{RunID: deps.NewRunID()}
	logger := logging.WithRun(deps.Logger, rep.RunID, cfg.Corpus)
	start := time.Now()

	store, err := sheet.Open(cfg.Input, cfg.Sheet)
	if err != nil {
		return rep, err
	}
	defer func() {
		_ = store.Close()
	}()
	if wb, ok := store.(*sheet.Workbook); ok {
		logger = logger.With(zap.String("sheet", wb.SheetName()))
	}

	cc := cfg.ClientConfig()
	cc.HTTPClient = deps.HTTPClient
	cc.Logger = logger.Named("corpus")
	client, err := corpus.NewClient(cc)
	if err != nil {
		return rep, err
	}

	m := metrics.NewRun(cfg.Corpus)

	ro, err := cfg.RetryOptions()
	if err != nil {
		return rep, err
	}
	ro.OnAttempt = m.ObserveAttempt
	querier := retry.New(client, ro, logger.Named("retry"))

	bo, err := cfg.BatchOptions()
	if err != nil {
		return rep, err
	}
	bo.OnCell = m.ObserveCell
	runner := batch.NewRunner(store, querier, bo, logger)

	eff := querier.Options()
	logger.Info("run start",
		zap.String("input", cfg.Input),
		zap.String("output", cfg.Output),
		zap.String("base_url", util.RedactURL(cfg.BaseURL)),
		zap.Int("start_row", cfg.StartRow),
		zap.Int("end_row", cfg.EndRow),
		zap.Strings("columns", cfg.Columns),
		zap.Stringer("policy", eff.Policy),
		zap.Int("max_attempts", eff.MaxAttempts),
		zap.Duration("attempt_timeout", eff.AttemptTimeout),
		zap.Duration("cell_delay", cfg.CellDelay),
	)

	rep.Started = true
	res, runErr := runner.Run(ctx)
	rep.Result = res
	rep.Duration = time.Since(start)

	m.ObserveResult(res)
	if cfg.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("metrics not written", zap.Error(err))
		}
	}

	counted, skipped, errored := res.Counts()
	logger.Info("run finished",
		zap.Stringer("status", res.Status),
		zap.Stringer("reason", res.Reason),
		zap.Int("counted", counted),
		zap.Int("skipped", skipped),
		zap.Int("errored", errored),
		zap.Duration("duration", rep.Duration.Round(time.Millisecond)),
	)

	if runErr == nil && res.Status == batch.StatusCompleted {
		notifyCompletion(ctx, cfg, deps, rep, logger)
	}

	_, _ = fmt.Fprintln(deps.Out, StatusLine(res, runErr))
	return rep, runErr
}

// StatusLine is the one line printed when a run ends.
func StatusLine(res batch.Result, runErr error) string {
	counted, skipped, errored := res.Counts()
	tally := fmt.Sprintf("%d counted, %d skipped, %d errors", counted, skipped, errored)

	if res.Status == batch.StatusCompleted && runErr == nil {
		return fmt.Sprintf("Completed (%s). Saved to %s", tally, res.SavedTo)
	}

	at := "?"
	if res.HaltedAt != nil {
		at = res.HaltedAt.String()
	}
	line := fmt.Sprintf("Halted at %s (%s; %s).", at, res.Reason, tally)
	if res.SavedTo != "" {
		line += " Progress saved to " + res.SavedTo
	} else {
		line += " Progress could NOT be saved"
	}
	if runErr != nil {
		line += ": " + util.RedactSecrets(runErr.Error())
	}
	return line
}

func notifyCompletion(ctx context.Context, cfg config.Config, deps Deps, rep Report, logger *zap.Logger) {
	var ns notify.Multi
	if cfg.Notify.Bell {
		ns = append(ns, notify.Bell{W: deps.Bell})
	}
	if cfg.Notify.WebhookURL != "" {
		wh, err := notify.NewWebhook(notify.WebhookConfig{
			URL:     cfg.Notify.WebhookURL,
			Retries: notify.DefaultWebhookRetries,
		})
		if err != nil {
			logger.Warn("webhook disabled", zap.String("url", util.RedactURL(cfg.Notify.WebhookURL)), zap.Error(err))
		} else {
			defer func() {
				_ = wh.Close()
			}()
			ns = append(ns, wh)
		}
	}
	if len(ns) == 0 {
		return
	}

	counted, skipped, errored := rep.Result.Counts()
	ev := notify.Event{
		RunID:      rep.RunID,
		Corpus:     cfg.Corpus,
		Status:     rep.Result.Status.String(),
		Output:     rep.Result.SavedTo,
		Counted:    counted,
		Skipped:    skipped,
		Errored:    errored,
		DurationMs: rep.Duration.Milliseconds(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	if err := ns.Notify(ctx, ev); err != nil {
		logger.Warn("completion notification failed", zap.String("error", util.RedactSecrets(err.Error())))
	}
}
