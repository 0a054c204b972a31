// Package halluc validates model analyzer output against the document it
// claims to describe. Implausible responses collect alerts; enough severe
// alerts and the response is rejected, pushing detection to the next
// strategy.
package halluc

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"stmtsep/internal/types"
)

// Rejection thresholds: one critical alert, or three high alerts.
const (
	rejectCriticalCount = 1
	rejectHighCount     = 3
)

var (
	yearRe        = regexp.MustCompile(`\b[12]\d{3}\b`)
	cardFormatRe  = regexp.MustCompile(`^[45]\d{15}$`)
	savingsTokens = []string{"savings account", "saver account", "savings statement"}

	// Placeholder account numbers a model emits when it is guessing.
	placeholderAccounts = map[string]bool{
		"123456789":  true,
		"000000000":  true,
		"111111111":  true,
		"***1234***": true,
	}
)

// Validator applies the hallucination rule set.
type Validator struct {
	currentYear int
}

// New creates a validator anchored to the current year.
func New() *Validator {
	return &Validator{currentYear: time.Now().Year()}
}

// CheckBoundaries validates a candidate boundary list against the document's
// page texts. len(pageTexts) is the authoritative page count.
func (v *Validator) CheckBoundaries(candidates []types.Boundary, pageTexts []string) []types.Alert {
	totalPages := len(pageTexts)
	var alerts []types.Alert

	if len(candidates) > totalPages {
		alerts = append(alerts, types.Alert{
			Kind:          types.AlertPhantomStatement,
			Severity:      types.SeverityCritical,
			DetectedValue: strconv.Itoa(len(candidates)),
			ExpectedValue: fmt.Sprintf("<= %d", totalPages),
			Description:   "more statements than pages in the document",
		})
	}

	seen := make(map[[2]int]bool)
	for _, b := range candidates {
		if b.StartPage > totalPages {
			alerts = append(alerts, types.Alert{
				Kind:          types.AlertPhantomStatement,
				Severity:      types.SeverityHigh,
				DetectedValue: fmt.Sprintf("start_page %d", b.StartPage),
				ExpectedValue: fmt.Sprintf("<= %d", totalPages),
				Description:   "statement starts past the end of the document",
			})
		}
		if b.StartPage > b.EndPage || b.StartPage < 1 || b.EndPage < 1 {
			alerts = append(alerts, types.Alert{
				Kind:          types.AlertInvalidPageRange,
				Severity:      types.SeverityHigh,
				DetectedValue: fmt.Sprintf("%d-%d", b.StartPage, b.EndPage),
				Description:   "page range is inverted or out of bounds",
			})
		}

		key := [2]int{b.StartPage, b.EndPage}
		if seen[key] {
			alerts = append(alerts, types.Alert{
				Kind:          types.AlertDuplicateBoundaries,
				Severity:      types.SeverityMedium,
				DetectedValue: fmt.Sprintf("%d-%d", b.StartPage, b.EndPage),
				Description:   "identical page range reported twice",
			})
		}
		seen[key] = true

		alerts = append(alerts, v.checkPeriod(b.Period)...)
		alerts = append(alerts, v.checkAccount(b.AccountNumber)...)

		text := rangeText(pageTexts, b.StartPage, b.EndPage)
		if len(strings.TrimSpace(text)) < 50 {
			alerts = append(alerts, types.Alert{
				Kind:          types.AlertMissingContent,
				Severity:      types.SeverityHigh,
				DetectedValue: fmt.Sprintf("%d chars on pages %d-%d", len(text), b.StartPage, b.EndPage),
				ExpectedValue: ">= 50 chars",
				Description:   "claimed statement covers nearly empty pages",
			})
		}
		alerts = append(alerts, v.checkConsistency(b, text)...)
	}

	return alerts
}

// CheckMetadata validates an extracted (bank, account) candidate against the
// source text of the statement.
func (v *Validator) CheckMetadata(bank, account, sourceText string) []types.Alert {
	var alerts []types.Alert
	alerts = append(alerts, v.checkAccount(account)...)
	alerts = append(alerts, v.checkBank(bank, sourceText)...)
	return alerts
}

func (v *Validator) checkPeriod(period string) []types.Alert {
	if period == "" {
		return nil
	}

	var alerts []types.Alert
	for _, m := range yearRe.FindAllString(period, -1) {
		year, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		if year > v.currentYear+1 {
			alerts = append(alerts, types.Alert{
				Kind:          types.AlertImpossibleDate,
				Severity:      types.SeverityHigh,
				DetectedValue: m,
				ExpectedValue: fmt.Sprintf("<= %d", v.currentYear+1),
				Description:   "statement period is in the future",
			})
		} else if year < 1950 {
			alerts = append(alerts, types.Alert{
				Kind:          types.AlertImpossibleDate,
				Severity:      types.SeverityMedium,
				DetectedValue: m,
				ExpectedValue: ">= 1950",
				Description:   "statement period predates electronic banking",
			})
		}
	}
	return alerts
}

func (v *Validator) checkAccount(account string) []types.Alert {
	if account == "" {
		return nil
	}

	stripped := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, account)

	if placeholderAccounts[account] || placeholderAccounts[stripped] {
		return []types.Alert{{
			Kind:          types.AlertNonsensicalAccount,
			Severity:      types.SeverityHigh,
			DetectedValue: account,
			Description:   "placeholder account number",
		}}
	}
	if len(stripped) < 4 || len(stripped) > 20 {
		return []types.Alert{{
			Kind:          types.AlertNonsensicalAccount,
			Severity:      types.SeverityMedium,
			DetectedValue: account,
			ExpectedValue: "4-20 digits",
			Description:   "account number length is implausible",
		}}
	}
	return nil
}

// checkBank accepts banks found verbatim in the document text even when the
// dictionary does not know them.
func (v *Validator) checkBank(bank, sourceText string) []types.Alert {
	if bank == "" || strings.EqualFold(bank, types.UnknownBank) {
		return nil
	}

	lowerText := strings.ToLower(sourceText)
	if strings.Contains(lowerText, strings.ToLower(bank)) {
		return nil
	}
	for _, w := range substantialWords(bank) {
		if strings.Contains(lowerText, w) {
			return nil
		}
	}
	if matchesKnownBank(bank) {
		return nil
	}

	return []types.Alert{{
		Kind:          types.AlertFabricatedBank,
		Severity:      types.SeverityHigh,
		DetectedValue: bank,
		Description:   "bank name appears neither in the document nor in the known-bank set",
	}}
}

// checkConsistency flags account-type conflicts, e.g. a savings-account
// statement carrying a card-format account number.
func (v *Validator) checkConsistency(b types.Boundary, text string) []types.Alert {
	if b.AccountNumber == "" {
		return nil
	}
	stripped := strings.ReplaceAll(strings.ReplaceAll(b.AccountNumber, " ", ""), "-", "")
	if !cardFormatRe.MatchString(stripped) {
		return nil
	}

	lower := strings.ToLower(text)
	for _, tok := range savingsTokens {
		if strings.Contains(lower, tok) {
			return []types.Alert{{
				Kind:          types.AlertInconsistentData,
				Severity:      types.SeverityMedium,
				DetectedValue: b.AccountNumber,
				Description:   "card-format account number on a savings statement",
			}}
		}
	}
	return nil
}

// ShouldReject implements the rejection rule: at least one critical alert,
// or three or more high alerts.
func ShouldReject(alerts []types.Alert) bool {
	critical, high := 0, 0
	for _, a := range alerts {
		switch a.Severity {
		case types.SeverityCritical:
			critical++
		case types.SeverityHigh:
			high++
		}
	}
	return critical >= rejectCriticalCount || high >= rejectHighCount
}

func rangeText(pageTexts []string, start, end int) string {
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
