package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// opencensusWorker is spawned by go.opencensus.io's package init (via the
// genai client's transitive deps) and cannot be stopped; goleak must ignore it.
var opencensusWorker = goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start")

func TestBatchProcessesDirectory(t *testing.T) {
	defer goleak.VerifyNone(t, opencensusWorker)

	env := newTestEnv(t, nil)
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		input := writeInput(t, env.inputDir, name)
		env.backend.addSource(input, []string{"statement text for " + name})
	}

	summary, err := env.runner.Batch(context.Background(), BatchOptions{
		InputDir:  env.inputDir,
		OutputDir: env.outputDir,
		Workers:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Zero(t, summary.Quarantined)
	assert.Equal(t, 3, summary.Statements)
	assert.InDelta(t, 1.0, summary.SuccessRate(), 1e-9)

	// Results are ordered by input path regardless of worker scheduling.
	require.Len(t, summary.Results, 3)
	assert.True(t, summary.Results[0].InputPath < summary.Results[1].InputPath)
	assert.True(t, summary.Results[1].InputPath < summary.Results[2].InputPath)
}

func TestBatchKeepsCollidingOutputsDistinct(t *testing.T) {
	defer goleak.VerifyNone(t, opencensusWorker)

	// Two inputs whose metadata is all sentinels race for the same
	// canonical name; both outputs must survive under distinct names.
	env := newTestEnv(t, nil)
	for _, name := range []string{"a.pdf", "b.pdf"} {
		input := writeInput(t, env.inputDir, name)
		env.backend.addSource(input, []string{"statement body text"})
	}

	summary, err := env.runner.Batch(context.Background(), BatchOptions{
		InputDir:  env.inputDir,
		OutputDir: env.outputDir,
		Workers:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)

	outputs, err := filepath.Glob(filepath.Join(env.outputDir, "*.pdf"))
	require.NoError(t, err)
	require.Len(t, outputs, 2)
	names := []string{filepath.Base(outputs[0]), filepath.Base(outputs[1])}
	assert.ElementsMatch(t, names,
		[]string{"unknown-0000-unknown-date.pdf", "unknown-0000-unknown-date-2.pdf"})
}

func TestBatchContinuesPastQuarantine(t *testing.T) {
	env := newTestEnv(t, nil)

	good := writeInput(t, env.inputDir, "good.pdf")
	env.backend.addSource(good, []string{"fine statement text"})
	locked := writeInput(t, env.inputDir, "locked.pdf")
	env.backend.addSource(locked, []string{"never read"})
	env.backend.encrypted[locked] = true

	summary, err := env.runner.Batch(context.Background(), BatchOptions{
		InputDir:  env.inputDir,
		OutputDir: env.outputDir,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Quarantined)
	assert.InDelta(t, 0.5, summary.SuccessRate(), 1e-9)
}

func TestBatchEmptyDirectory(t *testing.T) {
	env := newTestEnv(t, nil)
	summary, err := env.runner.Batch(context.Background(), BatchOptions{
		InputDir:  env.inputDir,
		OutputDir: env.outputDir,
	})
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
}

func TestListInputsPatternExcludeAndCap(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"jan.pdf", "feb.pdf", "mar.pdf", "skip-apr.pdf", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	files, err := listInputs(BatchOptions{InputDir: dir})
	require.NoError(t, err)
	assert.Len(t, files, 4) // default *.pdf, sorted

	files, err = listInputs(BatchOptions{InputDir: dir, Exclude: "skip-*"})
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "feb.pdf", filepath.Base(files[0]))

	files, err = listInputs(BatchOptions{InputDir: dir, Exclude: "skip-*", MaxFiles: 2})
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestListInputsBadPattern(t *testing.T) {
	_, err := listInputs(BatchOptions{InputDir: t.TempDir(), Pattern: "["})
	assert.Error(t, err)
}
