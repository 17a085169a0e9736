// Package batch walks a rectangular region of a sheet, resolves every query
// cell to a hit count and writes the result back in place.
//
// The runner is strictly sequential. Progress is persisted exactly once on
// every exit path: completion, an unrecoverable error, or cancellation of the
// run context.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shpitdev/corpus-querier/internal/cql"
	"github.com/shpitdev/corpus-querier/internal/hits"
	"github.com/shpitdev/corpus-querier/internal/sheet"
)

type Status int

const (
	StatusCompleted Status = iota
	StatusHaltedEarly
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusHaltedEarly:
		return "halted"
	default:
		return "unknown"
	}
}

type HaltReason int

const (
	HaltNone HaltReason = iota
	HaltInterrupted
	HaltError
)

func (r HaltReason) String() string {
	switch r {
	case HaltNone:
		return "none"
	case HaltInterrupted:
		return "interrupted"
	case HaltError:
		return "error"
	default:
		return "unknown"
	}
}

// DefaultErrorMarker is written into cells where every attempt failed.
const DefaultErrorMarker = "ERROR"

type Options struct {
	Corpus string

	// StartRow and EndRow are inclusive data-row numbers counted from RowBase,
	// after HeaderRows leading rows.
	StartRow   int
	EndRow     int
	RowBase    int
	HeaderRows int
	// Columns are zero-based column indexes, visited in the given order.
	Columns []int

	// Strict requires queries to open with "[".
	Strict bool
	// CellDelay is the minimum spacing between two queried cells. Skipped cells
	// are not charged. Zero disables pacing.
	CellDelay   time.Duration
	ErrorMarker string

	OutputPath string

	// OnCell, when set, observes every finished cell in iteration order.
	OnCell func(CellRecord)
}

func (o Options) validate() error {
	if o.Corpus == "" {
		return errors.New("corpus is required")
	}
	if o.RowBase != 0 && o.RowBase != 1 {
		return fmt.Errorf("row base must be 0 or 1, got %d", o.RowBase)
	}
	if o.HeaderRows < 0 {
		return fmt.Errorf("header rows must be >= 0, got %d", o.HeaderRows)
	}
	if o.StartRow < o.RowBase {
		return fmt.Errorf("start row %d is below the first row %d", o.StartRow, o.RowBase)
	}
	if o.EndRow < o.StartRow {
		return fmt.Errorf("end row %d is before start row %d", o.EndRow, o.StartRow)
	}
	if len(o.Columns) == 0 {
		return errors.New("at least one column is required")
	}
	if o.OutputPath == "" {
		return errors.New("output path is required")
	}
	return nil
}

// CellRecord is the decision taken for one visited cell.
type CellRecord struct {
	Addr    sheet.Address
	Query   string
	Outcome hits.Outcome
}

type Result struct {
	Status Status
	Reason HaltReason
	// HaltedAt is the cell being processed when the run stopped early. That cell
	// and every later one are left unchanged.
	HaltedAt *sheet.Address
	Cells    []CellRecord
	// SavedTo is the output path once the store was persisted successfully.
	SavedTo string
}

// Counts tallies the visited cells by outcome kind.
func (r Result) Counts() (counted, skipped, errored int) {
	for _, c := range r.Cells {
		switch c.Outcome.Kind {
		case hits.OutcomeCount:
			counted++
		case hits.OutcomeSkipped:
			skipped++
		case hits.OutcomeError:
			errored++
		}
	}
	return counted, skipped, errored
}

// Runner owns the store for the duration of a run.
type Runner struct {
	store   sheet.Store
	counter hits.Counter
	opts    Options
	logger  *zap.Logger
}

func NewRunner(store sheet.Store, counter hits.Counter, opts Options, logger *zap.Logger) *Runner {
	if opts.ErrorMarker == "" {
		opts.ErrorMarker = DefaultErrorMarker
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		store:   store,
		counter: counter,
		opts:    opts,
		logger:  logger,
	}
}

// Address maps a data-row number and column index to a grid address.
func (r *Runner) Address(row, col int) sheet.Address {
	return sheet.Address{Row: r.opts.HeaderRows + row - r.opts.RowBase, Col: col}
}

// Run processes the configured region.
//
// The error is non-nil only when the run halted on an unrecoverable error or
// the store could not be saved. An interrupted run returns StatusHaltedEarly
// with HaltInterrupted and a nil error.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if err := r.opts.validate(); err != nil {
		return Result{}, fmt.Errorf("invalid batch options: %w", err)
	}

	var limiter *rate.Limiter
	if r.opts.CellDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(r.opts.CellDelay), 1)
	}

	var res Result
	for row := r.opts.StartRow; row <= r.opts.EndRow; row++ {
		r.logger.Debug("processing row", zap.Int("row", row))
		for _, col := range r.opts.Columns {
			addr := r.Address(row, col)
			if ctx.Err() != nil {
				return r.halt(res, addr, HaltInterrupted, ctx.Err())
			}

			raw, err := r.store.Get(addr)
			if err != nil {
				return r.halt(res, addr, HaltError, err)
			}

			query, reason, ok := cql.Check(raw, r.opts.Strict)
			if !ok {
				r.logger.Info("skipping cell", zap.Stringer("cell", addr), zap.String("reason", reason))
				res.Cells = append(res.Cells, r.record(addr, query, hits.Skipped(reason)))
				continue
			}

			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return r.halt(res, addr, HaltInterrupted, err)
				}
			}

			out, err := r.counter.Count(ctx, query, r.opts.Corpus)
			if ctx.Err() != nil {
				// Whatever the counter produced while we were being cancelled is dropped.
				return r.halt(res, addr, HaltInterrupted, ctx.Err())
			}
			if err != nil {
				return r.halt(res, addr, HaltError, err)
			}

			if err := r.write(addr, out); err != nil {
				return r.halt(res, addr, HaltError, err)
			}
			r.logger.Info("cell done",
				zap.Stringer("cell", addr),
				zap.String("query", query),
				zap.Stringer("outcome", out.Kind),
				zap.Int64("hits", out.Count),
				zap.String("reason", out.Reason),
			)
			res.Cells = append(res.Cells, r.record(addr, query, out))
		}
	}

	res.Status = StatusCompleted
	if err := r.persist(&res); err != nil {
		return res, err
	}
	return res, nil
}

// PlannedCell is a cell Run would visit. Skip holds the reason it would be
// skipped, empty when it would be queried.
type PlannedCell struct {
	Addr  sheet.Address
	Query string
	Skip  string
}

// Plan lists the region in visiting order without querying or writing.
func (r *Runner) Plan() ([]PlannedCell, error) {
	if err := r.opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid batch options: %w", err)
	}
	var cells []PlannedCell
	for row := r.opts.StartRow; row <= r.opts.EndRow; row++ {
		for _, col := range r.opts.Columns {
			addr := r.Address(row, col)
			raw, err := r.store.Get(addr)
			if err != nil {
				return cells, fmt.Errorf("read %s: %w", addr, err)
			}
			query, reason, _ := cql.Check(raw, r.opts.Strict)
			cells = append(cells, PlannedCell{Addr: addr, Query: query, Skip: reason})
		}
	}
	return cells, nil
}

func (r *Runner) record(addr sheet.Address, query string, out hits.Outcome) CellRecord {
	rec := CellRecord{Addr: addr, Query: query, Outcome: out}
	if r.opts.OnCell != nil {
		r.opts.OnCell(rec)
	}
	return rec
}

func (r *Runner) write(addr sheet.Address, out hits.Outcome) error {
	switch out.Kind {
	case hits.OutcomeCount:
		return r.store.SetInt(addr, out.Count)
	case hits.OutcomeError:
		return r.store.SetString(addr, r.opts.ErrorMarker)
	default:
		return nil
	}
}

// halt persists the store once and stops the run at addr.
func (r *Runner) halt(res Result, addr sheet.Address, reason HaltReason, cause error) (Result, error) {
	res.Status = StatusHaltedEarly
	res.Reason = reason
	at := addr
	res.HaltedAt = &at

	if reason == HaltInterrupted {
		r.logger.Warn("run interrupted, saving progress", zap.Stringer("cell", addr), zap.NamedError("cause", cause))
		return res, r.persist(&res)
	}

	r.logger.Error("unrecoverable error, saving progress", zap.Stringer("cell", addr), zap.Error(cause))
	haltErr := fmt.Errorf("halted at %s: %w", addr, cause)
	if err := r.persist(&res); err != nil {
		return res, errors.Join(haltErr, err)
	}
	return res, haltErr
}

func (r *Runner) persist(res *Result) error {
	if err := r.store.Save(r.opts.OutputPath); err != nil {
		r.logger.Error("save failed", zap.String("path", r.opts.OutputPath), zap.Error(err))
		return fmt.Errorf("save %s: %w", r.opts.OutputPath, err)
	}
	res.SavedTo = r.opts.OutputPath
	r.logger.Info("saved output", zap.String("path", r.opts.OutputPath))
	return nil
}
