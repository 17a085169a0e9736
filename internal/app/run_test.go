package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shpitdev/corpus-querier/internal/app"
	"github.com/shpitdev/corpus-querier/internal/batch"
	"github.com/shpitdev/corpus-querier/internal/config"
	"github.com/shpitdev/corpus-querier/internal/hits"
	"github.com/shpitdev/corpus-querier/internal/mockcorpus"
	"github.com/shpitdev/corpus-querier/internal/notify"
	"github.com/shpitdev/corpus-querier/internal/sheet"
)

const inputCSV = "query,other\n[lemma=\"pes\"],[word=\"x\"]\n,bad\n"

func setup(t *testing.T) (config.Config, *mockcorpus.Server) {
	t.Helper()
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(in, []byte(inputCSV), 0o644))

	srv := mockcorpus.New()
	srv.SetCount("gigafida", `[lemma="pes"]`, 42)
	srv.SetCount("gigafida", `[word="x"]`, 7)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := config.Default()
	cfg.Input = in
	cfg.Output = filepath.Join(dir, "out.csv")
	cfg.Corpus = "gigafida"
	cfg.BaseURL = ts.URL + "/run.cgi"
	cfg.StartRow = 1
	cfg.EndRow = 2
	cfg.Columns = []string{"A", "B"}
	cfg.AttemptTimeout = 2 * time.Second
	cfg.AttemptCooldown = 0
	cfg.SequenceCooldown = 0
	cfg.CellDelay = 0
	cfg.MetricsFile = filepath.Join(dir, "corpusq.prom")
	return cfg, srv
}

func cell(t *testing.T, path, name string) string {
	t.Helper()
	st, err := sheet.Open(path, "")
	require.NoError(t, err)
	defer func() { _ = st.Close() }()
	col, err := sheet.ParseColumn(name[:1])
	require.NoError(t, err)
	row := int(name[1] - '1')
	v, err := st.Get(sheet.Address{Row: row, Col: col})
	require.NoError(t, err)
	return v
}

func TestRun_BestEffortAgainstMock(t *testing.T) {
	cfg, srv := setup(t)
	srv.Script(`[word="x"]`, mockcorpus.BehaviorFault, mockcorpus.BehaviorFault)

	var out, bell bytes.Buffer
	rep, err := app.Run(context.Background(), cfg, app.Deps{
		Logger:   zaptest.NewLogger(t),
		Out:      &out,
		Bell:     &bell,
		NewRunID: func() string { return "run-1" },
	})
	require.NoError(t, err)

	assert.Equal(t, "run-1", rep.RunID)
	assert.Equal(t, batch.StatusCompleted, rep.Result.Status)
	counted, skipped, errored := rep.Result.Counts()
	assert.Equal(t, [3]int{1, 2, 1}, [3]int{counted, skipped, errored})

	assert.Equal(t, "42", cell(t, cfg.Output, "A2"))
	assert.Equal(t, "ERROR", cell(t, cfg.Output, "B2"))
	assert.Equal(t, "bad", cell(t, cfg.Output, "B3"))

	assert.Len(t, srv.Calls(), 4, "two attempts per queried cell")
	assert.Equal(t, "\a", bell.String())
	assert.Contains(t, out.String(), "Completed (1 counted, 2 skipped, 1 errors). Saved to "+cfg.Output)

	prom, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `corpusq_attempts_total{corpus="gigafida",result="fault"} 2`)
}

func TestRun_FailFastHaltsAndSaves(t *testing.T) {
	cfg, srv := setup(t)
	cfg.Policy = "fail-fast"
	srv.Script(`[word="x"]`, mockcorpus.BehaviorFault)

	var out, bell bytes.Buffer
	rep, err := app.Run(context.Background(), cfg, app.Deps{Logger: zaptest.NewLogger(t), Out: &out, Bell: &bell})
	require.Error(t, err)
	assert.ErrorIs(t, err, hits.ErrUnrecoverable)

	assert.Equal(t, batch.StatusHaltedEarly, rep.Result.Status)
	assert.Equal(t, batch.HaltError, rep.Result.Reason)
	require.NotNil(t, rep.Result.HaltedAt)
	assert.Equal(t, "B2", rep.Result.HaltedAt.String())

	assert.Equal(t, "42", cell(t, cfg.Output, "A2"))
	assert.Equal(t, `[word="x"]`, cell(t, cfg.Output, "B2"), "halted cell left unchanged")
	assert.Empty(t, bell.String(), "no notification unless completed")
	assert.Contains(t, out.String(), "Halted at B2 (error;")
	assert.Contains(t, out.String(), "Progress saved to "+cfg.Output)
}

func TestRun_InterruptedBeforeStart(t *testing.T) {
	cfg, srv := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var bell bytes.Buffer
	rep, err := app.Run(ctx, cfg, app.Deps{Bell: &bell})
	require.NoError(t, err)
	assert.Equal(t, batch.HaltInterrupted, rep.Result.Reason)
	assert.Equal(t, cfg.Output, rep.Result.SavedTo)
	assert.Empty(t, srv.Calls())
	assert.Empty(t, bell.String())
}

func TestRun_WebhookOnCompletion(t *testing.T) {
	cfg, _ := setup(t)
	cfg.Notify.Bell = false

	events := make(chan notify.Event, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev notify.Event
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		events <- ev
	}))
	defer hook.Close()
	cfg.Notify.WebhookURL = hook.URL

	_, err := app.Run(context.Background(), cfg, app.Deps{NewRunID: func() string { return "run-hook" }})
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, "run-hook", ev.RunID)
		assert.Equal(t, "completed", ev.Status)
		assert.Equal(t, 2, ev.Counted)
	default:
		t.Fatal("webhook not called")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg, srv := setup(t)
	cfg.Columns = nil
	_, err := app.Run(context.Background(), cfg, app.Deps{})
	assert.ErrorContains(t, err, "invalid config")
	assert.Empty(t, srv.Calls())
	_, statErr := os.Stat(cfg.Output)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCheck(t *testing.T) {
	cfg, srv := setup(t)

	var out bytes.Buffer
	cells, err := app.Check(cfg, &out)
	require.NoError(t, err)
	require.Len(t, cells, 4)

	s := out.String()
	assert.Contains(t, s, "A2")
	assert.Contains(t, s, "corpname=gigafida")
	assert.Contains(t, s, "skip (malformed)")
	assert.Contains(t, s, "4 cells, 2 to query, 2 skipped")
	assert.Empty(t, srv.Calls())
}

func TestCheck_WorkbookNamesBoundSheet(t *testing.T) {
	cfg, _ := setup(t)
	cfg.Input = filepath.Join(t.TempDir(), "in.xlsx")

	wb := sheet.NewWorkbook()
	require.NoError(t, wb.SetString(sheet.Address{Row: 0, Col: 0}, "query"))
	require.NoError(t, wb.SetString(sheet.Address{Row: 1, Col: 0}, `[lemma="pes"]`))
	require.NoError(t, wb.Save(cfg.Input))
	require.NoError(t, wb.Close())

	var out bytes.Buffer
	_, err := app.Check(cfg, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "worksheet Sheet1")
}
