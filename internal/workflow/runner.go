package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stmtsep/internal/config"
	"stmtsep/internal/detect"
	"stmtsep/internal/extract"
	"stmtsep/internal/logging"
	"stmtsep/internal/output"
	"stmtsep/internal/pdf"
	"stmtsep/internal/quarantine"
	"stmtsep/internal/sink"
	"stmtsep/internal/store"
	"stmtsep/internal/types"
)

// defaultRetries is the per-stage transient retry budget.
const defaultRetries = 2

// Runner drives single documents through the stage sequence.
type Runner struct {
	cfg        *config.Config
	backend    pdf.Backend
	engine     *detect.Engine
	extractor  *extract.Extractor
	validator  *output.Validator
	quarantine *quarantine.Manager
	ledger     *store.Ledger     // optional
	sink       sink.DocumentSink // optional, nil when disabled
	log        *zap.Logger

	// SkipProcessed makes the runner skip inputs whose fingerprint already
	// has a successful ledger record.
	SkipProcessed bool
}

// NewRunner wires a runner from its collaborators. ledger and docSink may be
// nil.
func NewRunner(cfg *config.Config, backend pdf.Backend, engine *detect.Engine,
	extractor *extract.Extractor, validator *output.Validator,
	qm *quarantine.Manager, ledger *store.Ledger, docSink sink.DocumentSink) *Runner {
	return &Runner{
		cfg:        cfg,
		backend:    backend,
		engine:     engine,
		extractor:  extractor,
		validator:  validator,
		quarantine: qm,
		ledger:     ledger,
		sink:       docSink,
		log:        logging.For("workflow"),
	}
}

type stageFn struct {
	name Stage
	run  func(context.Context, *State) error
}

// Process runs one document through the full stage sequence. The returned
// Result always has a terminal outcome; Err is set only for quarantines.
func (r *Runner) Process(ctx context.Context, inputPath, outputDir string, dryRun bool) Result {
	start := time.Now()
	st := &State{
		RunID:            uuid.NewString(),
		InputPath:        inputPath,
		OutputDir:        outputDir,
		DryRun:           dryRun,
		RetriesRemaining: defaultRetries,
	}
	log := r.log.With(zap.String("run_id", st.RunID), zap.String("input", inputPath))
	log.Info("processing document", zap.Bool("dry_run", dryRun))

	stages := []stageFn{
		{StageIngest, r.ingest},
		{StageAnalyze, r.analyze},
		{StageDetect, r.detect},
		{StageExtract, r.extract},
		{StageGenerate, r.generate},
		{StageOrganize, r.organize},
		{StageValidate, r.validate},
		{StageSink, r.sinkStage},
	}

	for i := 0; i < len(stages); {
		stage := stages[i]
		st.Stage = stage.name

		err := stage.run(ctx, st)
		if err == nil {
			i++
			continue
		}

		// Skip markers abort the run without quarantining.
		if err == errSkipProcessed {
			return Result{
				InputPath: inputPath,
				Outcome:   OutcomeSkipped,
				Elapsed:   time.Since(start),
			}
		}

		// Cancellation leaves the input untouched.
		if ctx.Err() != nil {
			return Result{
				InputPath: inputPath,
				Outcome:   OutcomeQuarantine,
				Err:       ctx.Err(),
				Elapsed:   time.Since(start),
			}
		}

		if types.IsTransient(err) {
			if st.RetriesRemaining > 0 {
				st.RetriesRemaining--
				log.Warn("transient stage failure, retrying",
					zap.String("stage", string(stage.name)),
					zap.Int("retries_remaining", st.RetriesRemaining),
					zap.Error(err))
				continue
			}
			err = types.Fatal(exhaustedKind(err), err)
		}

		return r.fail(st, err, start)
	}

	return r.succeed(st, start)
}

var errSkipProcessed = fmt.Errorf("input already processed")

// ingest loads and vets the input document.
func (r *Runner) ingest(ctx context.Context, st *State) error {
	if strings.ToLower(filepath.Ext(st.InputPath)) != ".pdf" {
		return types.Fatalf(types.KindExtensionDisallowed, "input %s is not a .pdf", st.InputPath)
	}
	if err := underAllowedRoot(st.InputPath, r.cfg.Paths.AllowedInputRoots); err != nil {
		return err
	}

	info, err := os.Stat(st.InputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return types.Fatal(types.KindFileMissing, err)
		}
		return types.Fatal(types.KindFilesystemError, err)
	}
	st.ByteSize = info.Size()
	if maxBytes := int64(r.cfg.Limits.MaxFileSizeMB) << 20; maxBytes > 0 && st.ByteSize > maxBytes {
		return types.Fatalf(types.KindSizeExceeded, "%d bytes exceeds limit of %d MB",
			st.ByteSize, r.cfg.Limits.MaxFileSizeMB)
	}

	if err := r.backend.Probe(st.InputPath); err != nil {
		return err
	}
	total, err := r.backend.PageCount(st.InputPath)
	if err != nil {
		return err
	}
	if r.cfg.Limits.MaxTotalPages > 0 && total > r.cfg.Limits.MaxTotalPages {
		return types.Fatalf(types.KindPageCountExceeded, "%d pages exceeds limit of %d",
			total, r.cfg.Limits.MaxTotalPages)
	}
	st.TotalPages = total

	texts, err := r.backend.PageTexts(st.InputPath)
	if err != nil {
		return err
	}
	st.PageTexts = texts
	st.Fingerprint = pdf.Fingerprint(texts)

	if err := r.checkTextContent(st); err != nil {
		return err
	}

	if r.SkipProcessed && r.ledger != nil {
		rec, err := r.ledger.Lookup(st.Fingerprint)
		if err == nil && rec != nil && rec.Outcome == store.OutcomeSuccess {
			r.log.Info("skipping already-processed input",
				zap.String("input", st.InputPath),
				zap.String("fingerprint", st.Fingerprint))
			return errSkipProcessed
		}
	}
	return nil
}

// checkTextContent enforces the text-coverage policy. Under strict it is
// fatal, under normal and lenient a warning.
func (r *Runner) checkTextContent(st *State) error {
	if !r.cfg.Validation.RequireTextContent {
		return nil
	}
	withText := 0
	for _, t := range st.PageTexts {
		if strings.TrimSpace(t) != "" {
			withText++
		}
	}
	ratio := 0.0
	if st.TotalPages > 0 {
		ratio = float64(withText) / float64(st.TotalPages)
	}
	if ratio >= r.cfg.Validation.MinTextContentRatio {
		return nil
	}
	if r.cfg.Validation.Strictness == "strict" {
		return types.Fatalf(types.KindPdfUnreadable,
			"only %d of %d pages have extractable text", withText, st.TotalPages)
	}
	st.Warnings = append(st.Warnings,
		fmt.Sprintf("low text coverage: %d of %d pages", withText, st.TotalPages))
	return nil
}

// analyze records the provider identity. Detection prepares its own analysis
// text, so this stage never fails.
func (r *Runner) analyze(ctx context.Context, st *State) error {
	return nil
}

// detect produces the consolidated boundary set and applies fragment
// filtering. Previously persisted results are reused by fingerprint.
func (r *Runner) detect(ctx context.Context, st *State) error {
	if r.ledger != nil {
		if set, ok, err := r.ledger.LoadBoundaries(st.Fingerprint, st.TotalPages); err == nil && ok {
			st.Boundaries = set
		}
	}
	if len(st.Boundaries.Boundaries) == 0 {
		st.Boundaries = r.engine.Detect(ctx, st.PageTexts, st.Fingerprint)
		if r.ledger != nil {
			if err := r.ledger.SaveBoundaries(st.Fingerprint, st.TotalPages, st.Boundaries); err != nil {
				r.log.Debug("failed to persist boundaries", zap.Error(err))
			}
		}
	}

	st.Accepted, st.Fragments = r.filterFragments(st.Boundaries.Boundaries)
	if len(st.Accepted) == 0 {
		// Everything filtered: fall back to the whole document.
		st.Accepted = []types.Boundary{{
			StartPage:  1,
			EndPage:    st.TotalPages,
			Confidence: 0.5,
			Reasoning:  "all candidates filtered as fragments",
			Source:     types.SourceDefault,
		}}
		st.Fragments = nil
	}

	maxPages := r.cfg.Limits.MaxPagesPerStatement
	minPages := r.cfg.Limits.MinPagesPerStatement
	for _, b := range st.Accepted {
		if maxPages > 0 && b.PageCount() > maxPages {
			st.Warnings = append(st.Warnings,
				fmt.Sprintf("statement %s exceeds %d pages", b, maxPages))
		}
		if minPages > 0 && b.PageCount() < minPages {
			st.Warnings = append(st.Warnings,
				fmt.Sprintf("statement %s is under %d pages", b, minPages))
		}
	}

	st.ExpectedPages = output.ExpectedPages(st.TotalPages, st.Fragments)
	r.log.Info("boundaries detected",
		zap.String("method", string(st.Boundaries.DetectionMethod)),
		zap.Int("statements", len(st.Accepted)),
		zap.Int("fragments_filtered", len(st.Fragments)))
	return nil
}

func (r *Runner) filterFragments(boundaries []types.Boundary) (accepted, fragments []types.Boundary) {
	if !r.cfg.Detection.EnableFragmentFiltering {
		return boundaries, nil
	}
	threshold := r.cfg.Detection.FragmentConfidenceThreshold
	for _, b := range boundaries {
		if b.Confidence < threshold {
			fragments = append(fragments, b)
		} else {
			accepted = append(accepted, b)
		}
	}
	return accepted, fragments
}

// extract derives metadata for every accepted boundary. It never fails.
func (r *Runner) extract(ctx context.Context, st *State) error {
	st.Metadata = make([]types.Metadata, len(st.Accepted))
	for i, b := range st.Accepted {
		st.Metadata[i] = r.extractor.Extract(ctx, st.PageTexts, b)
	}
	return nil
}

// generate cuts one PDF per accepted boundary into temporary files.
func (r *Runner) generate(ctx context.Context, st *State) error {
	if st.DryRun {
		return nil
	}
	if err := os.MkdirAll(st.OutputDir, 0o755); err != nil {
		return types.Fatal(types.KindFilesystemError, err)
	}

	st.Generated = st.Generated[:0]
	for i, b := range st.Accepted {
		tmp := filepath.Join(st.OutputDir, fmt.Sprintf(".stmtsep-%s-%03d.pdf", st.RunID[:8], i))
		if err := r.backend.ExtractRange(st.InputPath, tmp, b.StartPage, b.EndPage); err != nil {
			r.cleanupGenerated(st)
			return err
		}
		st.Generated = append(st.Generated, output.Planned{Path: tmp, Boundary: b})
	}
	return nil
}

// organize renames the generated files to their canonical names.
func (r *Runner) organize(ctx context.Context, st *State) error {
	if st.DryRun {
		return nil
	}
	if err := underAllowedRoot(st.OutputDir, r.cfg.Paths.AllowedOutputRoots); err != nil {
		return err
	}

	for i := range st.Generated {
		name := output.Filename(st.Metadata[i], r.cfg.Limits.MaxFilenameLength)
		dest, err := output.ResolveCollision(st.OutputDir, name)
		if err != nil {
			r.cleanupGenerated(st)
			return types.Fatal(types.KindFilesystemError, err)
		}
		if err := os.Rename(st.Generated[i].Path, dest); err != nil {
			os.Remove(dest) // release the claimed name
			r.cleanupGenerated(st)
			return types.Fatal(types.KindFilesystemError, err)
		}
		st.Generated[i].Path = dest
	}
	return nil
}

// validate runs the output checks.
func (r *Runner) validate(ctx context.Context, st *State) error {
	if st.DryRun {
		return nil
	}
	return r.validator.Validate(st.Generated, st.PageTexts, st.ByteSize, st.ExpectedPages)
}

// sinkStage uploads the outputs. Transient failures retry via the stage
// loop; a terminal failure degrades to a warning unless the sink is
// mandatory.
func (r *Runner) sinkStage(ctx context.Context, st *State) error {
	if r.sink == nil || !r.cfg.Sink.Enabled || st.DryRun {
		return nil
	}

	for i := len(st.SinkResults); i < len(st.Generated); i++ {
		p := st.Generated[i]
		result, err := r.sink.Upload(ctx, p.Path, strings.TrimSuffix(filepath.Base(p.Path), ".pdf"))
		if err == nil && result.TaskID != "" {
			waitCtx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Sink.QueryTimeoutSeconds)*time.Second)
			result.DocumentID, err = r.sink.WaitForTask(waitCtx, result.TaskID)
			cancel()
		}
		if err != nil {
			if types.IsTransient(err) {
				return err
			}
			if r.cfg.Sink.Mandatory {
				return types.Fatal(types.KindSinkExhausted, err)
			}
			st.Warnings = append(st.Warnings, fmt.Sprintf("sink upload failed for %s: %v", p.Path, err))
			r.log.Warn("sink upload failed, keeping local output",
				zap.String("file", p.Path), zap.Error(err))
			st.SinkResults = append(st.SinkResults, sink.UploadResult{})
			continue
		}
		st.SinkResults = append(st.SinkResults, *result)
	}
	return nil
}

func (r *Runner) cleanupGenerated(st *State) {
	for _, p := range st.Generated {
		os.Remove(p.Path)
	}
	st.Generated = st.Generated[:0]
}

func (r *Runner) succeed(st *State, start time.Time) Result {
	st.Stage = StageSuccess

	if !st.DryRun && r.cfg.Paths.ProcessedInputDir != "" {
		dest := filepath.Join(r.cfg.Paths.ProcessedInputDir, filepath.Base(st.InputPath))
		if err := os.MkdirAll(r.cfg.Paths.ProcessedInputDir, 0o755); err == nil {
			if err := os.Rename(st.InputPath, dest); err != nil {
				st.Warnings = append(st.Warnings, fmt.Sprintf("could not move processed input: %v", err))
			}
		}
	}

	if r.ledger != nil && !st.DryRun {
		err := r.ledger.Record(store.Record{
			Fingerprint:     st.Fingerprint,
			InputPath:       st.InputPath,
			RunID:           st.RunID,
			Outcome:         store.OutcomeSuccess,
			DetectionMethod: st.Boundaries.DetectionMethod,
			Statements:      len(st.Accepted),
		})
		if err != nil {
			r.log.Debug("ledger record failed", zap.Error(err))
		}
	}

	files := make([]string, len(st.Generated))
	for i, p := range st.Generated {
		files[i] = p.Path
	}
	r.log.Info("document processed",
		zap.Int("statements", len(st.Accepted)),
		zap.Strings("outputs", files))

	return Result{
		InputPath:       st.InputPath,
		Outcome:         OutcomeSuccess,
		Statements:      len(st.Accepted),
		OutputFiles:     files,
		DetectionMethod: st.Boundaries.DetectionMethod,
		Warnings:        st.Warnings,
		Elapsed:         time.Since(start),
	}
}

func (r *Runner) fail(st *State, cause error, start time.Time) Result {
	failedAt := st.Stage
	st.Stage = StageQuarantine
	r.cleanupGenerated(st)

	dest, qErr := r.quarantine.Quarantine(st.InputPath, string(failedAt), cause, r.configSnapshot())
	if qErr != nil {
		r.log.Error("quarantine failed", zap.Error(qErr))
	}

	if r.ledger != nil && st.Fingerprint != "" {
		err := r.ledger.Record(store.Record{
			Fingerprint:     st.Fingerprint,
			InputPath:       st.InputPath,
			RunID:           st.RunID,
			Outcome:         store.OutcomeQuarantine,
			DetectionMethod: st.Boundaries.DetectionMethod,
			Detail:          cause.Error(),
		})
		if err != nil {
			r.log.Debug("ledger record failed", zap.Error(err))
		}
	}

	return Result{
		InputPath:       st.InputPath,
		Outcome:         OutcomeQuarantine,
		DetectionMethod: st.Boundaries.DetectionMethod,
		QuarantinePath:  dest,
		Err:             cause,
		Warnings:        st.Warnings,
		Elapsed:         time.Since(start),
	}
}

func (r *Runner) configSnapshot() map[string]string {
	return map[string]string{
		"provider_kind":                 r.cfg.Provider.Kind,
		"provider_model":                r.cfg.Provider.Model,
		"strictness":                    r.cfg.Validation.Strictness,
		"fragment_confidence_threshold": fmt.Sprintf("%.2f", r.cfg.Detection.FragmentConfidenceThreshold),
		"max_attempts":                  fmt.Sprintf("%d", r.cfg.RateLimit.MaxAttempts),
	}
}

// exhaustedKind maps a transient error to its exhaustion category.
func exhaustedKind(err error) types.Kind {
	if types.KindOf(err) == types.KindSinkServerError {
		return types.KindSinkExhausted
	}
	return types.KindProviderExhausted
}

// underAllowedRoot verifies path falls under one of the configured roots. An
// empty root list allows everything.
func underAllowedRoot(path string, roots []string) error {
	if len(roots) == 0 {
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return types.Fatal(types.KindFilesystemError, err)
	}
	for _, root := range roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if rel, err := filepath.Rel(absRoot, abs); err == nil && !strings.HasPrefix(rel, "..") {
			return nil
		}
	}
	return types.Fatalf(types.KindPathOutsideRoots, "%s is outside the allowed roots", path)
}
