package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchOptions selects the inputs for a batch run.
type BatchOptions struct {
	InputDir  string
	OutputDir string
	Pattern   string // glob over basenames, default *.pdf
	Exclude   string // glob over basenames, empty matches nothing
	MaxFiles  int    // 0 means unlimited
	Workers   int    // document-level parallelism, minimum 1
	DryRun    bool
}

// Summary aggregates the results of a batch run. Results are ordered by
// input path so output does not depend on scheduling.
type Summary struct {
	Processed   int
	Succeeded   int
	Quarantined int
	Skipped     int
	Statements  int
	Results     []Result
	Elapsed     time.Duration
}

// SuccessRate is the fraction of non-skipped documents that succeeded.
func (s Summary) SuccessRate() float64 {
	attempted := s.Succeeded + s.Quarantined
	if attempted == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(attempted)
}

// Batch processes every matching document in the input directory. Documents
// run concurrently up to opts.Workers; each worker owns its state
// exclusively, so only the rate limiter is shared. A quarantined document
// does not stop the batch.
func (r *Runner) Batch(ctx context.Context, opts BatchOptions) (*Summary, error) {
	start := time.Now()

	files, err := listInputs(opts)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return &Summary{Elapsed: time.Since(start)}, nil
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	r.log.Info("batch started",
		zap.Int("documents", len(files)),
		zap.Int("workers", workers),
		zap.Bool("dry_run", opts.DryRun))

	var mu sync.Mutex
	results := make([]Result, 0, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, file := range files {
		file := file
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			res := r.Process(gctx, file, opts.OutputDir, opts.DryRun)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil && ctx.Err() != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].InputPath < results[j].InputPath })

	summary := &Summary{
		Processed: len(results),
		Results:   results,
		Elapsed:   time.Since(start),
	}
	for _, res := range results {
		switch res.Outcome {
		case OutcomeSuccess:
			summary.Succeeded++
			summary.Statements += res.Statements
		case OutcomeQuarantine:
			summary.Quarantined++
		case OutcomeSkipped:
			summary.Skipped++
		}
	}

	r.log.Info("batch finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("quarantined", summary.Quarantined),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

// listInputs expands the pattern under the input directory, applies the
// exclude glob, sorts, and caps at MaxFiles.
func listInputs(opts BatchOptions) ([]string, error) {
	pattern := opts.Pattern
	if pattern == "" {
		pattern = "*.pdf"
	}

	matches, err := filepath.Glob(filepath.Join(opts.InputDir, pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		if opts.Exclude != "" {
			if skip, err := filepath.Match(opts.Exclude, filepath.Base(m)); err != nil {
				return nil, fmt.Errorf("invalid exclude %q: %w", opts.Exclude, err)
			} else if skip {
				continue
			}
		}
		files = append(files, m)
	}
	sort.Strings(files)

	if opts.MaxFiles > 0 && len(files) > opts.MaxFiles {
		files = files[:opts.MaxFiles]
	}
	return files, nil
}
