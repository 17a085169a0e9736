package retry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shpitdev/corpus-querier/internal/hits"
	"github.com/shpitdev/corpus-querier/pkg/corpus"
)

type Policy int

const (
	// PolicyBestEffortMax runs every attempt and keeps the largest count.
	PolicyBestEffortMax Policy = iota
	// PolicyFailFast runs one long attempt and escalates any failure.
	PolicyFailFast
)

func (p Policy) String() string {
	switch p {
	case PolicyBestEffortMax:
		return "best-effort"
	case PolicyFailFast:
		return "fail-fast"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy accepts the names produced by Policy.String.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "best-effort", "best-effort-max", "besteffort":
		return PolicyBestEffortMax, nil
	case "fail-fast", "failfast", "strict":
		return PolicyFailFast, nil
	default:
		return 0, fmt.Errorf("unknown retry policy %q (want best-effort or fail-fast)", s)
	}
}

const (
	DefaultMaxAttempts            = 2
	DefaultAttemptTimeout         = 30 * time.Second
	DefaultFailFastAttemptTimeout = 300 * time.Second
)

type Options struct {
	Policy Policy

	// MaxAttempts is ignored by PolicyFailFast, which always makes one attempt.
	MaxAttempts int
	// AttemptTimeout bounds each attempt independently of the caller's context.
	AttemptTimeout time.Duration

	// AttemptCooldown is slept between attempts of one query. Zero disables it.
	AttemptCooldown time.Duration
	// SequenceCooldown is slept after all attempts of one query, whatever their
	// outcome. Only PolicyBestEffortMax applies it. Zero disables it.
	SequenceCooldown time.Duration

	// OnAttempt, when set, observes every attempt result including abandoned ones.
	OnAttempt func(attempt int, res corpus.AttemptResult)
}

func (o Options) withDefaults() Options {
	if o.Policy == PolicyFailFast {
		o.MaxAttempts = 1
		if o.AttemptTimeout <= 0 {
			o.AttemptTimeout = DefaultFailFastAttemptTimeout
		}
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = DefaultAttemptTimeout
	}
	if o.AttemptCooldown < 0 {
		o.AttemptCooldown = 0
	}
	if o.SequenceCooldown < 0 {
		o.SequenceCooldown = 0
	}
	return o
}

// Querier applies a retry policy on top of an Attempter.
type Querier struct {
	attempter hits.Attempter
	opts      Options
	logger    *zap.Logger
}

var _ hits.Counter = (*Querier)(nil)

func New(attempter hits.Attempter, opts Options, logger *zap.Logger) *Querier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Querier{
		attempter: attempter,
		opts:      opts.withDefaults(),
		logger:    logger,
	}
}

// Options returns the effective options after defaults.
func (q *Querier) Options() Options {
	return q.opts
}

// Count resolves query according to the configured policy. The returned error is
// either the context's error or an *hits.AttemptError under PolicyFailFast.
func (q *Querier) Count(ctx context.Context, query, corpusName string) (hits.Outcome, error) {
	if q.opts.Policy == PolicyFailFast {
		return q.countFailFast(ctx, query, corpusName)
	}
	return q.countBestEffort(ctx, query, corpusName)
}

func (q *Querier) countFailFast(ctx context.Context, query, corpusName string) (hits.Outcome, error) {
	res, err := q.attemptIsolated(ctx, query, corpusName, 1)
	if err != nil {
		return hits.Outcome{}, err
	}
	if res.Kind != corpus.AttemptCount {
		return hits.Outcome{}, &hits.AttemptError{Query: query, Kind: res.Kind, Err: res.Err}
	}
	return hits.Counted(res.Count), nil
}

func (q *Querier) countBestEffort(ctx context.Context, query, corpusName string) (hits.Outcome, error) {
	results := make([]corpus.AttemptResult, 0, q.opts.MaxAttempts)
	for attempt := 1; attempt <= q.opts.MaxAttempts; attempt++ {
		res, err := q.attemptIsolated(ctx, query, corpusName, attempt)
		if err != nil {
			return hits.Outcome{}, err
		}
		results = append(results, res)

		if attempt < q.opts.MaxAttempts {
			if err := sleep(ctx, q.opts.AttemptCooldown); err != nil {
				return hits.Outcome{}, err
			}
		}
	}

	out := reduceMax(results)
	q.logger.Debug("attempts reduced",
		zap.String("query", query),
		zap.Int("attempts", len(results)),
		zap.Stringer("outcome", out.Kind),
		zap.Int64("hits", out.Count),
	)

	if err := sleep(ctx, q.opts.SequenceCooldown); err != nil {
		return hits.Outcome{}, err
	}
	return out, nil
}

// reduceMax keeps the largest count among successful attempts. With no
// successful attempt the outcome is an error marker carrying the last reason.
func reduceMax(results []corpus.AttemptResult) hits.Outcome {
	best := int64(-1)
	var reasons []string
	for _, r := range results {
		if r.Kind != corpus.AttemptCount {
			reasons = append(reasons, r.Kind.String()+": "+r.Reason())
			continue
		}
		if r.Count > best {
			best = r.Count
		}
	}
	if best >= 0 {
		return hits.Counted(best)
	}
	if len(reasons) == 0 {
		return hits.ErrorMarker("no attempts made")
	}
	return hits.ErrorMarker(strings.Join(reasons, "; "))
}

// attemptIsolated runs one attempt on its own goroutine and waits at most
// AttemptTimeout for it. An attempt that overruns is reported as a timeout and
// abandoned: its context is cancelled and any late result is dropped.
func (q *Querier) attemptIsolated(ctx context.Context, query, corpusName string, attempt int) (corpus.AttemptResult, error) {
	if err := ctx.Err(); err != nil {
		return corpus.AttemptResult{}, err
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan corpus.AttemptResult, 1)
	go func() {
		done <- q.attempter.Attempt(attemptCtx, query, corpusName, q.opts.AttemptTimeout)
	}()

	t := time.NewTimer(q.opts.AttemptTimeout)
	defer t.Stop()

	var res corpus.AttemptResult
	select {
	case res = <-done:
	case <-t.C:
		res = corpus.Timeout(fmt.Errorf("attempt abandoned after %s", q.opts.AttemptTimeout))
		res.Duration = q.opts.AttemptTimeout
		q.logger.Warn("attempt abandoned",
			zap.String("query", query),
			zap.Int("attempt", attempt),
			zap.Duration("timeout", q.opts.AttemptTimeout),
		)
	case <-ctx.Done():
		return corpus.AttemptResult{}, ctx.Err()
	}

	// A result produced while the caller was being cancelled is discarded.
	if err := ctx.Err(); err != nil {
		return corpus.AttemptResult{}, err
	}
	if q.opts.OnAttempt != nil {
		q.opts.OnAttempt(attempt, res)
	}
	return res, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
