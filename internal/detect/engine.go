// Package detect partitions a multi-statement document into per-statement
// page ranges. Strategies run in order: model-assisted (validated for
// hallucinations), content-based (page markers, account changes, headers),
// and the single-statement default. All accepted candidates pass through a
// common consolidation step.
package detect

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"stmtsep/internal/halluc"
	"stmtsep/internal/logging"
	"stmtsep/internal/provider"
	"stmtsep/internal/resilience"
	"stmtsep/internal/types"
)

// Options tunes the engine.
type Options struct {
	TextCharCap int // hard cap for analysis text, default 15000
	CacheSize   int // LRU entries, default 100; 0 disables
}

// Engine is the boundary detection engine. It is stateless apart from the
// optional result cache.
type Engine struct {
	provider  provider.Provider
	validator *halluc.Validator
	exec      *resilience.Executor
	cache     *Cache
	opts      Options
	log       *zap.Logger
}

// NewEngine builds the engine. provider may be the null provider.
func NewEngine(p provider.Provider, v *halluc.Validator, exec *resilience.Executor, opts Options) *Engine {
	if opts.TextCharCap <= 0 {
		opts.TextCharCap = 15000
	}
	return &Engine{
		provider:  p,
		validator: v,
		exec:      exec,
		cache:     NewCache(opts.CacheSize),
		opts:      opts,
		log:       logging.For("detect"),
	}
}

// Detect produces the final boundary set for a document. It never returns an
// empty set: the fallback is a single boundary covering the whole document.
func (e *Engine) Detect(ctx context.Context, pageTexts []string, fingerprint string) types.BoundarySet {
	totalPages := len(pageTexts)

	if fingerprint != "" {
		if set, ok := e.cache.Get(fingerprint, totalPages); ok {
			e.log.Debug("boundary cache hit", zap.String("fingerprint", fingerprint))
			return set
		}
	}

	set := e.detect(ctx, pageTexts)

	if fingerprint != "" {
		e.cache.Put(fingerprint, totalPages, set)
	}
	return set
}

func (e *Engine) detect(ctx context.Context, pageTexts []string) types.BoundarySet {
	totalPages := len(pageTexts)

	if boundaries, ok := e.tryModel(ctx, pageTexts); ok {
		return types.BoundarySet{Boundaries: boundaries, DetectionMethod: types.SourceModel}
	}

	if boundaries, ok := e.tryContent(pageTexts); ok {
		return types.BoundarySet{Boundaries: boundaries, DetectionMethod: types.SourceContent}
	}

	e.log.Info("no multi-statement signal, defaulting to single boundary",
		zap.Int("total_pages", totalPages))
	return types.BoundarySet{
		Boundaries:      []types.Boundary{defaultBoundary(totalPages)},
		DetectionMethod: types.SourceDefault,
	}
}

// tryModel runs the model-assisted strategy. Any failure, including a
// hallucination rejection, downshifts to the content strategy.
func (e *Engine) tryModel(ctx context.Context, pageTexts []string) ([]types.Boundary, bool) {
	if e.provider == nil || !e.provider.Available(ctx) {
		return nil, false
	}
	totalPages := len(pageTexts)
	text := PrepareAnalysisText(pageTexts, e.opts.TextCharCap)

	var candidates []provider.BoundaryCandidate
	err := e.exec.Do(ctx, "analyze_boundaries", func(ctx context.Context) error {
		var callErr error
		candidates, callErr = e.provider.AnalyzeBoundaries(ctx, text, totalPages)
		return callErr
	})
	if err != nil {
		e.log.Warn("model boundary analysis failed, falling back",
			zap.String("provider", string(e.provider.Info().Kind)),
			zap.Error(err))
		return nil, false
	}
	if len(candidates) == 0 {
		return nil, false
	}

	boundaries := make([]types.Boundary, 0, len(candidates))
	for _, c := range candidates {
		boundaries = append(boundaries, types.Boundary{
			StartPage:     c.StartPage,
			EndPage:       c.EndPage,
			AccountNumber: c.AccountNumber,
			Period:        c.Period,
			Confidence:    c.Confidence,
			Reasoning:     c.Reasoning,
			Source:        types.SourceModel,
		})
	}

	alerts := e.validator.CheckBoundaries(boundaries, pageTexts)
	if halluc.ShouldReject(alerts) {
		summary := halluc.Summarize(alerts)
		e.log.Warn("model boundaries rejected by hallucination validator",
			zap.Int("alerts", summary.TotalAlerts),
			zap.Any("by_kind", summary.ByKind))
		return nil, false
	}

	return Consolidate(boundaries, totalPages), true
}

// tryContent applies the deterministic detectors in order and accepts the
// first one yielding two or more boundaries.
func (e *Engine) tryContent(pageTexts []string) ([]types.Boundary, bool) {
	totalPages := len(pageTexts)
	text := strings.Join(pageTexts, "\n")

	detectors := []struct {
		name string
		run  func(string, int) []types.Boundary
	}{
		{"page_marker", detectPageMarkers},
		{"account_change", detectAccountChanges},
		{"header", detectHeaders},
	}

	for _, d := range detectors {
		boundaries := d.run(text, totalPages)
		if len(boundaries) >= 2 {
			e.log.Debug("content detector matched",
				zap.String("detector", d.name),
				zap.Int("boundaries", len(boundaries)))
			return Consolidate(boundaries, totalPages), true
		}
	}
	return nil, false
}
