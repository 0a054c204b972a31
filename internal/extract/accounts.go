package extract

import (
	"regexp"
	"sort"
	"strings"
)

// Account number patterns, tried in order. Matches shorter than eight digits
// after stripping spaces are discarded.
var accountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:account|card)\s*(?:number|no\.?)?\s*:\s*(\d[\d\s]{8,})`),
	regexp.MustCompile(`(?i)account\s*:\s*(\d+(?:\s+\d+)*)`),
	regexp.MustCompile(`(?i)card\s*number\s*:\s*(\d+(?:\s+\d+)*)`),
}

// AccountMatch is one account number occurrence in a text.
type AccountMatch struct {
	Number string // digits only
	Raw    string // as found, trimmed
	Offset int    // byte offset of the first occurrence
}

// FindAccounts returns each unique account number with its first-seen
// offset, ordered by offset.
func FindAccounts(text string) []AccountMatch {
	firstSeen := make(map[string]AccountMatch)

	for _, re := range accountPatterns {
		for _, idx := range re.FindAllStringSubmatchIndex(text, -1) {
			if len(idx) < 4 || idx[2] < 0 {
				continue
			}
			raw := strings.TrimSpace(text[idx[2]:idx[3]])
			number := stripNonDigits(raw)
			if len(number) < 8 {
				continue
			}
			if prev, ok := firstSeen[number]; !ok || idx[2] < prev.Offset {
				firstSeen[number] = AccountMatch{Number: number, Raw: raw, Offset: idx[2]}
			}
		}
	}

	matches := make([]AccountMatch, 0, len(firstSeen))
	for _, m := range firstSeen {
		matches = append(matches, m)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Offset < matches[j].Offset })
	return matches
}

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Last4 returns the final four digits of an account number, or the empty
// string when fewer than four digits remain.
func Last4(account string) string {
	digits := stripNonDigits(account)
	if len(digits) < 4 {
		return ""
	}
	return digits[len(digits)-4:]
}
