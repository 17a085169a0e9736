package metrics_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/corpus-querier/internal/batch"
	"github.com/shpitdev/corpus-querier/internal/hits"
	"github.com/shpitdev/corpus-querier/internal/metrics"
	"github.com/shpitdev/corpus-querier/pkg/corpus"
)

func TestRun_Observe(t *testing.T) {
	m := metrics.NewRun("demo")

	res := corpus.Count(4)
	res.Duration = 120 * time.Millisecond
	m.ObserveAttempt(1, res)
	m.ObserveAttempt(2, corpus.Timeout(nil))
	m.ObserveCell(batch.CellRecord{Outcome: hits.Counted(4)})
	m.ObserveCell(batch.CellRecord{Outcome: hits.Counted(6)})
	m.ObserveCell(batch.CellRecord{Outcome: hits.Skipped("empty")})
	m.ObserveResult(batch.Result{Status: batch.StatusCompleted})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AttemptsTotal.WithLabelValues("count")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AttemptsTotal.WithLabelValues("timeout")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CellsTotal.WithLabelValues("count")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CellsTotal.WithLabelValues("skipped")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.HitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LastRunStatus.WithLabelValues("completed", "none")))
}

func TestRun_WriteTextfile(t *testing.T) {
	m := metrics.NewRun("demo")
	m.ObserveCell(batch.CellRecord{Outcome: hits.ErrorMarker("fault")})

	path := filepath.Join(t.TempDir(), "corpusq.prom")
	require.NoError(t, m.WriteTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `corpusq_cells_total{corpus="demo",outcome="error"} 1`)
}
