package quarantine

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stmtsep/internal/types"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestQuarantineMovesAndReports(t *testing.T) {
	inputDir := t.TempDir()
	qDir := t.TempDir()
	input := filepath.Join(inputDir, "statements.pdf")
	require.NoError(t, os.WriteFile(input, []byte("%PDF-1.4 content"), 0o644))

	m := NewManager(qDir)
	m.now = fixedClock(time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC))

	cause := types.Fatal(types.KindEncrypted, errors.New("password required"))
	dest, err := m.Quarantine(input, "ingest", cause, map[string]string{"strictness": "normal"})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(qDir, "failed_20240315_103000_statements.pdf"), dest)
	assert.NoFileExists(t, input)
	assert.FileExists(t, dest)

	data, err := os.ReadFile(filepath.Join(qDir, "reports", "failed_20240315_103000_statements.pdf.json"))
	require.NoError(t, err)

	var report ErrorReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, input, report.OriginalPath)
	assert.Equal(t, dest, report.QuarantinePath)
	assert.Equal(t, "ingest", report.StageAtFailure)
	assert.Equal(t, types.KindEncrypted, report.ReasonCategory)
	assert.Contains(t, report.Detail, "password required")
	assert.Contains(t, report.RecoveryHints, "decrypt with an external tool")
	assert.Equal(t, "normal", report.ConfigSnapshot["strictness"])
}

func TestQuarantineUntaggedCause(t *testing.T) {
	inputDir := t.TempDir()
	input := filepath.Join(inputDir, "a.pdf")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o644))

	m := NewManager(t.TempDir())
	_, err := m.Quarantine(input, "generate", errors.New("disk full"), nil)
	require.NoError(t, err)

	entries, err := m.Status()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Report)
	assert.Equal(t, types.KindFilesystemError, entries[0].Report.ReasonCategory)
}

func TestStatusListsOldestFirst(t *testing.T) {
	qDir := t.TempDir()
	m := NewManager(qDir)

	old := filepath.Join(qDir, "failed_20240101_000000_old.pdf")
	recent := filepath.Join(qDir, "failed_20240301_000000_new.pdf")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(recent, []byte("x"), 0o644))
	past := time.Now().AddDate(0, -2, 0)
	require.NoError(t, os.Chtimes(old, past, past))

	entries, err := m.Status()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, old, entries[0].Path)
	assert.Nil(t, entries[0].Report, "missing report tolerated")
}

func TestStatusMissingDirectory(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "nope"))
	entries, err := m.Status()
	assert.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCleanHonorsAgeAndDryRun(t *testing.T) {
	qDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(qDir, "reports"), 0o755))
	m := NewManager(qDir)

	old := filepath.Join(qDir, "failed_20240101_000000_old.pdf")
	oldReport := filepath.Join(qDir, "reports", "failed_20240101_000000_old.pdf.json")
	recent := filepath.Join(qDir, "failed_20991231_000000_new.pdf")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(oldReport, []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(recent, []byte("x"), 0o644))
	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, past, past))

	// Dry run reports but deletes nothing.
	victims, err := m.Clean(7, true)
	require.NoError(t, err)
	assert.Equal(t, []string{old}, victims)
	assert.FileExists(t, old)
	assert.FileExists(t, oldReport)

	victims, err = m.Clean(7, false)
	require.NoError(t, err)
	assert.Equal(t, []string{old}, victims)
	assert.NoFileExists(t, old)
	assert.NoFileExists(t, oldReport)
	assert.FileExists(t, recent)
}
