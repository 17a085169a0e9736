package hits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shpitdev/corpus-querier/pkg/corpus"
)

// OutcomeKind is the reduced decision for one cell.
type OutcomeKind int

const (
	OutcomeCount OutcomeKind = iota
	OutcomeSkipped
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCount:
		return "count"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is what gets recorded for a cell after all attempts.
//
// An Error outcome is never the same as Count(0): the first means no attempt
// produced a number.
type Outcome struct {
	Kind   OutcomeKind
	Count  int64
	Reason string
}

func Counted(n int64) Outcome { return Outcome{Kind: OutcomeCount, Count: n} }

func Skipped(reason string) Outcome { return Outcome{Kind: OutcomeSkipped, Reason: reason} }

func ErrorMarker(reason string) Outcome { return Outcome{Kind: OutcomeError, Reason: reason} }

// Counter resolves a query to a cell outcome.
//
// A non-nil error means the batch must stop: either the context was cancelled
// or the counter's policy treats the failure as unrecoverable.
type Counter interface {
	Count(ctx context.Context, query, corpusName string) (Outcome, error)
}

// Attempter performs one bounded request. *corpus.Client implements it.
type Attempter interface {
	Attempt(ctx context.Context, query, corpusName string, timeout time.Duration) corpus.AttemptResult
}

// AttemptFunc adapts a function to the Attempter interface.
type AttemptFunc func(ctx context.Context, query, corpusName string, timeout time.Duration) corpus.AttemptResult

func (f AttemptFunc) Attempt(ctx context.Context, query, corpusName string, timeout time.Duration) corpus.AttemptResult {
	return f(ctx, query, corpusName, timeout)
}

// ErrUnrecoverable marks failures that must halt the batch.
var ErrUnrecoverable = errors.New("unrecoverable query failure")

// AttemptError is a timed-out or failed attempt escalated to the batch.
type AttemptError struct {
	Query string
	Kind  corpus.AttemptKind
	Err   error
}

func (e *AttemptError) Error() string {
	if e == nil {
		return "attempt error"
	}
	if e.Err == nil {
		return fmt.Sprintf("query %q: %s", e.Query, e.Kind)
	}
	return fmt.Sprintf("query %q: %s: %v", e.Query, e.Kind, e.Err)
}

func (e *AttemptError) Unwrap() []error {
	if e == nil {
		return nil
	}
	if e.Err == nil {
		return []error{ErrUnrecoverable}
	}
	return []error{ErrUnrecoverable, e.Err}
}
