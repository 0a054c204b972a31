package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stmtsep/internal/types"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedgerRecordAndLookup(t *testing.T) {
	l := openTestLedger(t)

	missing, err := l.Lookup("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	rec := Record{
		Fingerprint:     "fp1",
		InputPath:       "/in/statements.pdf",
		RunID:           "run-1",
		Outcome:         OutcomeSuccess,
		DetectionMethod: types.SourceModel,
		Statements:      3,
	}
	require.NoError(t, l.Record(rec))

	got, err := l.Lookup("fp1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, OutcomeSuccess, got.Outcome)
	assert.Equal(t, types.SourceModel, got.DetectionMethod)
	assert.Equal(t, 3, got.Statements)
	assert.False(t, got.CompletedAt.IsZero())
}

func TestLedgerRecordUpsert(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.Record(Record{
		Fingerprint: "fp1", InputPath: "/in/a.pdf", RunID: "run-1",
		Outcome: OutcomeQuarantine, DetectionMethod: types.SourceDefault,
		Detail: "encrypted",
	}))
	require.NoError(t, l.Record(Record{
		Fingerprint: "fp1", InputPath: "/in/a.pdf", RunID: "run-2",
		Outcome: OutcomeSuccess, DetectionMethod: types.SourceContent, Statements: 2,
	}))

	got, err := l.Lookup("fp1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, OutcomeSuccess, got.Outcome)
	assert.Equal(t, "run-2", got.RunID)
	assert.Empty(t, got.Detail)
}

func TestLedgerBoundariesRoundTrip(t *testing.T) {
	l := openTestLedger(t)

	set := types.BoundarySet{
		Boundaries: []types.Boundary{
			{StartPage: 1, EndPage: 2, AccountNumber: "1234 5678 9012", Confidence: 0.9, Source: types.SourceModel},
			{StartPage: 3, EndPage: 6, Confidence: 0.7, Source: types.SourceModel},
		},
		DetectionMethod: types.SourceModel,
	}
	require.NoError(t, l.SaveBoundaries("fp1", 6, set))

	got, ok, err := l.LoadBoundaries("fp1", 6)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, set, got)

	_, ok, err = l.LoadBoundaries("fp1", 7)
	require.NoError(t, err)
	assert.False(t, ok, "page count is part of the key")
}

func TestLedgerCounts(t *testing.T) {
	l := openTestLedger(t)

	for i, outcome := range []Outcome{OutcomeSuccess, OutcomeSuccess, OutcomeQuarantine} {
		require.NoError(t, l.Record(Record{
			Fingerprint: string(rune('a' + i)),
			InputPath:   "/in/x.pdf",
			RunID:       "run",
			Outcome:     outcome,
		}))
	}

	success, quarantined, err := l.Counts()
	require.NoError(t, err)
	assert.Equal(t, 2, success)
	assert.Equal(t, 1, quarantined)
}
