package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/shpitdev/corpus-querier/internal/app"
	"github.com/shpitdev/corpus-querier/internal/batch"
	"github.com/shpitdev/corpus-querier/internal/config"
)

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return exitCompleted
	}
	var ec cli.ExitCoder
	require.True(t, errors.As(err, &ec), "want cli.ExitCoder, got %v", err)
	return ec.ExitCode()
}

func TestExitFor(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		name string
		rep  app.Report
		err  error
		want int
	}{
		{"completed", app.Report{Started: true}, nil, exitCompleted},
		{"setup failure", app.Report{}, boom, exitUsage},
		{"halted on error", app.Report{Started: true, Result: batch.Result{Status: batch.StatusHaltedEarly, Reason: batch.HaltError}}, boom, exitHaltedError},
		{"save failed after completion", app.Report{Started: true}, boom, exitHaltedError},
		{"interrupted", app.Report{Started: true, Result: batch.Result{Status: batch.StatusHaltedEarly, Reason: batch.HaltInterrupted}}, nil, exitInterrupted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitCode(t, exitFor(tc.rep, tc.err)))
		})
	}
}

func TestExitErrHandler_NilError(t *testing.T) {
	exitErrHandler(nil, nil)
}

// captureConfig runs a throwaway app with runFlags and returns what buildConfig produced.
func captureConfig(t *testing.T, stdin string, args ...string) (config.Config, error) {
	t.Helper()
	var got config.Config
	var buildErr error
	a := &cli.App{
		Name:   "test",
		Reader: strings.NewReader(stdin),
		Writer: &bytes.Buffer{},
		Flags:  runFlags(),
		Action: func(c *cli.Context) error {
			got, buildErr = buildConfig(c)
			return nil
		},
	}
	require.NoError(t, a.Run(append([]string{"test"}, args...)))
	return got, buildErr
}

func TestBuildConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
input: from-file.xlsx
output: out.xlsx
corpus: gigafida
start_row: 1
end_row: 3
columns: [B]
cell_delay: 2s
`), 0o644))

	t.Setenv("CORPUSQ_POLICY", "fail-fast")
	t.Setenv("CORPUSQ_ATTEMPT_COOLDOWN", "10ms")
	cfg, err := captureConfig(t, "",
		"--config", path,
		"--input", "from-flag.xlsx",
		"--rows", "4-9",
		"--columns", "c,d",
		"--no-strict",
		"--no-bell",
		"--attempt-timeout", "45s",
		"--sequence-cooldown", "250ms",
	)
	require.NoError(t, err)

	assert.Equal(t, "from-flag.xlsx", cfg.Input)
	assert.Equal(t, "out.xlsx", cfg.Output)
	assert.Equal(t, "gigafida", cfg.Corpus)
	assert.Equal(t, 4, cfg.StartRow)
	assert.Equal(t, 9, cfg.EndRow)
	assert.Equal(t, []string{"C", "D"}, cfg.Columns)
	assert.False(t, cfg.Strict)
	assert.False(t, cfg.Notify.Bell)
	assert.Equal(t, 45*time.Second, cfg.AttemptTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.SequenceCooldown)
	assert.Equal(t, 10*time.Millisecond, cfg.AttemptCooldown, "env var applies")
	assert.Equal(t, 2*time.Second, cfg.CellDelay, "unset flag keeps file value")
	assert.Equal(t, "fail-fast", cfg.Policy, "env var applies")
}

func TestBuildConfig_Interactive(t *testing.T) {
	cfg, err := captureConfig(t, "kres\n", "--interactive",
		"--input", "in.csv", "--output", "out.csv", "--rows", "1-2", "--columns", "A")
	require.NoError(t, err)
	assert.Equal(t, "kres", cfg.Corpus)
	require.NoError(t, cfg.Validate())
}

func TestBuildConfig_BadRows(t *testing.T) {
	_, err := captureConfig(t, "", "--rows", "a-b")
	assert.Error(t, err)
}
