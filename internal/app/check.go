package app

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shpitdev/corpus-querier/internal/batch"
	"github.com/shpitdev/corpus-querier/internal/config"
	"github.com/shpitdev/corpus-querier/internal/sheet"
	"github.com/shpitdev/corpus-querier/internal/util"
	"github.com/shpitdev/corpus-querier/pkg/corpus"
)

// Check validates cfg and prints the cells a run would visit with the request
// URL each query would produce. Nothing is sent and nothing is written.
func Check(cfg config.Config, out io.Writer) ([]batch.PlannedCell, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	store, err := sheet.Open(cfg.Input, cfg.Sheet)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = store.Close()
	}()
	if wb, ok := store.(*sheet.Workbook); ok {
		_, _ = fmt.Fprintf(out, "worksheet %s\n", wb.SheetName())
	}

	client, err := corpus.NewClient(cfg.ClientConfig())
	if err != nil {
		return nil, err
	}
	bo, err := cfg.BatchOptions()
	if err != nil {
		return nil, err
	}
	cells, err := batch.NewRunner(store, nil, bo, nil).Plan()
	if err != nil {
		return cells, err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	queried := 0
	for _, c := range cells {
		if c.Skip != "" {
			_, _ = fmt.Fprintf(tw, "%s\tskip (%s)\t%s\n", c.Addr, c.Skip, c.Query)
			continue
		}
		queried++
		_, _ = fmt.Fprintf(tw, "%s\tquery\t%s\n", c.Addr, util.RedactURL(client.URL(c.Query, cfg.Corpus)))
	}
	if err := tw.Flush(); err != nil {
		return cells, err
	}
	_, _ = fmt.Fprintf(out, "%d cells, %d to query, %d skipped\n", len(cells), queried, len(cells)-queried)
	return cells, nil
}
