// Package extract produces the normalized (bank, account_last4,
// closing_date) tuple for one detected statement. A model provider is tried
// first when available; deterministic pattern matching covers the rest.
// Extraction never fails a document: missing fields carry sentinels.
package extract

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"stmtsep/internal/halluc"
	"stmtsep/internal/logging"
	"stmtsep/internal/provider"
	"stmtsep/internal/resilience"
	"stmtsep/internal/types"
)

var (
	last4Re = regexp.MustCompile(`^[0-9]{4}$`)
	bankRe  = regexp.MustCompile(`^[a-z0-9]{1,10}$`)
	dateRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// Extractor derives metadata for boundaries.
type Extractor struct {
	provider  provider.Provider
	validator *halluc.Validator
	exec      *resilience.Executor
	log       *zap.Logger
}

// New builds an extractor. provider may be the null provider; exec wraps all
// provider calls with rate limiting and backoff.
func New(p provider.Provider, v *halluc.Validator, exec *resilience.Executor) *Extractor {
	return &Extractor{
		provider:  p,
		validator: v,
		exec:      exec,
		log:       logging.For("extract"),
	}
}

// Extract returns metadata for the boundary's page range. Provider failures
// and hallucination rejections degrade silently to pattern extraction.
func (e *Extractor) Extract(ctx context.Context, pageTexts []string, b types.Boundary) types.Metadata {
	text := RangeText(pageTexts, b.StartPage, b.EndPage)

	if e.provider != nil && e.provider.Available(ctx) {
		if m, ok := e.fromProvider(ctx, text, b); ok {
			return m
		}
	}
	return e.fromPatterns(text, b)
}

func (e *Extractor) fromProvider(ctx context.Context, text string, b types.Boundary) (types.Metadata, bool) {
	var candidate *provider.MetadataCandidate
	err := e.exec.Do(ctx, "extract_metadata", func(ctx context.Context) error {
		var callErr error
		candidate, callErr = e.provider.ExtractMetadata(ctx, text, b.StartPage, b.EndPage)
		return callErr
	})
	if err != nil {
		e.log.Debug("provider metadata extraction failed, using patterns", zap.Error(err))
		return types.Metadata{}, false
	}

	// A metadata response carries at most one bank and one account alert, so
	// the boundary-level rejection threshold can never fire; any severe alert
	// rejects here instead.
	alerts := e.validator.CheckMetadata(candidate.Bank, candidate.AccountNumber, text)
	if rejectMetadata(alerts) {
		e.log.Warn("provider metadata rejected by hallucination validator",
			zap.Int("alerts", len(alerts)),
			zap.String("bank", candidate.Bank))
		return types.Metadata{}, false
	}

	m := e.normalize(candidate, text, b)
	return m, true
}

// normalize maps an accepted candidate onto the sentinel-safe Metadata form,
// filling gaps from pattern extraction.
func (e *Extractor) normalize(c *provider.MetadataCandidate, text string, b types.Boundary) types.Metadata {
	m := types.Metadata{
		Bank:         types.UnknownBank,
		AccountLast4: types.UnknownLast4,
		ClosingDate:  types.UnknownDate,
		Confidence:   c.Confidence,
		Notes:        c.Notes,
	}
	if m.Confidence == 0 {
		m.Confidence = 0.8
	}

	if bank := NormalizeBank(c.Bank); bankRe.MatchString(bank) {
		m.Bank = bank
	} else if bank, ok := FindBank(text); ok {
		m.Bank = bank
	}

	if last4 := Last4(c.AccountNumber); last4Re.MatchString(last4) {
		m.AccountLast4 = last4
	} else if last4 := e.accountFromPatterns(text, b); last4 != "" {
		m.AccountLast4 = last4
	}

	if date, ok := normalizeDate(c.ClosingDate); ok {
		m.ClosingDate = date
	} else if dateRe.MatchString(c.ClosingDate) {
		m.ClosingDate = c.ClosingDate
	} else if date, ok := FindClosingDate(text); ok {
		m.ClosingDate = date
	}

	return m
}

func (e *Extractor) fromPatterns(text string, b types.Boundary) types.Metadata {
	m := types.Metadata{
		Bank:         types.UnknownBank,
		AccountLast4: types.UnknownLast4,
		ClosingDate:  types.UnknownDate,
		Confidence:   0.5,
	}
	var found []string

	if bank, ok := FindBank(text); ok && bank != "" {
		m.Bank = bank
		found = append(found, "bank")
	}
	if last4 := e.accountFromPatterns(text, b); last4 != "" {
		m.AccountLast4 = last4
		found = append(found, "account")
	}
	if date, ok := FindClosingDate(text); ok {
		m.ClosingDate = date
		found = append(found, "date")
	}

	if len(found) > 0 {
		m.Notes = "pattern match: " + strings.Join(found, ", ")
	} else {
		m.Notes = "no metadata patterns matched"
		m.Confidence = 0.2
	}
	return m
}

// accountFromPatterns picks the account whose first occurrence is closest to
// the start of the range. The boundary's own account, when present, wins.
func (e *Extractor) accountFromPatterns(text string, b types.Boundary) string {
	if b.AccountNumber != "" {
		if last4 := Last4(b.AccountNumber); last4 != "" {
			return last4
		}
	}

	matches := FindAccounts(text)
	if len(matches) == 0 {
		return ""
	}
	return Last4(matches[0].Number)
}

func rejectMetadata(alerts []types.Alert) bool {
	for _, a := range alerts {
		if a.Severity == types.SeverityHigh || a.Severity == types.SeverityCritical {
			return true
		}
	}
	return false
}

// RangeText joins the texts of pages [start, end], clamped to the document.
func RangeText(pageTexts []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(pageTexts) {
		end = len(pageTexts)
	}
	if start > end {
		return ""
	}
	return strings.Join(pageTexts[start-1:end], "\n")
}
