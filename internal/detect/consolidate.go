package detect

import (
	"sort"
	"strings"

	"stmtsep/internal/types"
)

// Consolidate turns a candidate list into the final ordered, strictly
// non-overlapping boundary sequence. Adjacent boundaries (b starting exactly
// one page after a ends) are separate statements, never merged; this rule is
// a hard invariant. True overlaps merge only when both boundaries carry the
// same normalized account number, or when neither has one.
func Consolidate(candidates []types.Boundary, totalPages int) []types.Boundary {
	cleaned := make([]types.Boundary, 0, len(candidates))
	for _, b := range candidates {
		if b.EndPage > totalPages {
			b.EndPage = totalPages
		}
		if b.StartPage < 1 || b.StartPage > b.EndPage {
			continue
		}
		cleaned = append(cleaned, b)
	}

	sort.SliceStable(cleaned, func(i, j int) bool {
		return cleaned[i].StartPage < cleaned[j].StartPage
	})

	var accepted []types.Boundary
	for _, b := range cleaned {
		if len(accepted) == 0 {
			accepted = append(accepted, b)
			continue
		}

		last := &accepted[len(accepted)-1]
		if b.StartPage > last.EndPage {
			accepted = append(accepted, b)
			continue
		}

		// True overlap.
		aAcct := normalizeAccount(last.AccountNumber)
		bAcct := normalizeAccount(b.AccountNumber)
		switch {
		case aAcct != "" && aAcct == bAcct:
			merge(last, b, 1.0)
		case aAcct == "" && bAcct == "":
			merge(last, b, 0.8)
		default:
			// Different accounts: keep the earlier boundary, discard b.
		}
	}

	if len(accepted) == 0 {
		return []types.Boundary{defaultBoundary(totalPages)}
	}
	return accepted
}

func merge(a *types.Boundary, b types.Boundary, confidenceScale float64) {
	if b.EndPage > a.EndPage {
		a.EndPage = b.EndPage
	}
	conf := a.Confidence
	if b.Confidence < conf {
		conf = b.Confidence
	}
	a.Confidence = conf * confidenceScale
	if a.AccountNumber == "" {
		a.AccountNumber = b.AccountNumber
	}
	if a.Period == "" {
		a.Period = b.Period
	}
}

func normalizeAccount(account string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, account)
}

func defaultBoundary(totalPages int) types.Boundary {
	return types.Boundary{
		StartPage:  1,
		EndPage:    totalPages,
		Confidence: 0.5,
		Reasoning:  "single statement default",
		Source:     types.SourceDefault,
	}
}
