package detect

import (
	"fmt"
	"strings"
)

// Analysis text preparation. Providers must see explicit page boundaries;
// head-and-tail retention preserves headers and closing balances, the
// highest-value signals in a statement.
const (
	truncateTrigger = 12000
	headBudget      = 6000
	tailBudget      = 4000
	middleSentinel  = "[... MIDDLE PAGES TRUNCATED ...]"
	retainedPages   = 3
)

// PrepareAnalysisText wraps each page in === PAGE N === markers and joins
// them with blank lines. Long documents keep the first three pages (up to
// 6000 chars) and last three pages (up to 4000 chars) around a truncation
// sentinel. hardCap bounds the final length.
func PrepareAnalysisText(pageTexts []string, hardCap int) string {
	if hardCap <= 0 {
		hardCap = 15000
	}

	wrapped := make([]string, len(pageTexts))
	for i, text := range pageTexts {
		wrapped[i] = fmt.Sprintf("=== PAGE %d ===\n%s\n=== END PAGE %d ===", i+1, text, i+1)
	}

	full := strings.Join(wrapped, "\n\n")
	if len(full) <= truncateTrigger {
		return capLength(full, hardCap)
	}

	headPages := wrapped
	if len(headPages) > retainedPages {
		headPages = headPages[:retainedPages]
	}
	head := capLength(strings.Join(headPages, "\n\n"), headBudget)

	tailPages := wrapped
	if len(tailPages) > retainedPages {
		tailPages = tailPages[len(tailPages)-retainedPages:]
	}
	tail := strings.Join(tailPages, "\n\n")
	if len(tail) > tailBudget {
		tail = tail[len(tail)-tailBudget:]
	}

	return capLength(head+"\n\n"+middleSentinel+"\n\n"+tail, hardCap)
}

func capLength(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
