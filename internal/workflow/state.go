// Package workflow sequences the processing stages for one document and
// drives batches of documents through a worker pool. Every document ends in
// exactly one of success or quarantine.
package workflow

import (
	"time"

	"stmtsep/internal/output"
	"stmtsep/internal/sink"
	"stmtsep/internal/types"
)

// Stage names the workflow states.
type Stage string

const (
	StageIngest   Stage = "ingest"
	StageAnalyze  Stage = "analyze"
	StageDetect   Stage = "detect"
	StageExtract  Stage = "extract"
	StageGenerate Stage = "generate"
	StageOrganize Stage = "organize"
	StageValidate Stage = "validate"
	StageSink     Stage = "sink"

	StageSuccess    Stage = "success"
	StageQuarantine Stage = "quarantine"
)

// State is the mutable record for one document run, owned exclusively by the
// worker driving it.
type State struct {
	RunID     string
	InputPath string
	OutputDir string
	DryRun    bool

	TotalPages  int
	PageTexts   []string
	ByteSize    int64
	Fingerprint string

	Boundaries types.BoundarySet
	Accepted   []types.Boundary // boundaries surviving fragment filtering
	Fragments  []types.Boundary // filtered low-confidence boundaries

	Metadata      []types.Metadata // parallel to Accepted
	ExpectedPages int              // page-sum target, fixed before generation
	Generated     []output.Planned
	SinkResults   []sink.UploadResult

	Stage            Stage
	RetriesRemaining int
	Warnings         []string
}

// Outcome is the terminal result of one document run.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeQuarantine Outcome = "quarantine"
	OutcomeSkipped    Outcome = "skipped"
)

// Result summarizes one document run for callers.
type Result struct {
	InputPath       string
	Outcome         Outcome
	Statements      int
	OutputFiles     []string
	DetectionMethod types.Source
	QuarantinePath  string
	Err             error
	Warnings        []string
	Elapsed         time.Duration
}
