package halluc

import "strings"

// KnownBanks is the curated set of normalized bank identifiers. It backs the
// fabricated-bank rule here and the pattern-based bank extractor. Names found
// verbatim in document text are accepted even when absent from this set.
var KnownBanks = []string{
	"westpac",
	"commonwealth",
	"anz",
	"nab",
	"bendigo",
	"suncorp",
	"stgeorge",
	"macquarie",
	"boq",
	"ing",
	"chase",
	"wellsfargo",
	"bankofamerica",
	"citibank",
	"jpmorgan",
	"capitalone",
	"usbank",
	"pnc",
	"tdbank",
	"hsbc",
	"barclays",
	"lloyds",
	"natwest",
	"santander",
	"scotiabank",
	"rbc",
}

// genericBankTokens are words too common to identify an institution.
var genericBankTokens = map[string]bool{
	"bank":        true,
	"banking":     true,
	"corporation": true,
	"the":         true,
	"of":          true,
}

// substantialWords returns the identifying words of a bank name: words longer
// than three characters that are not generic banking vocabulary.
func substantialWords(bank string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(bank)) {
		w = strings.Trim(w, ".,&()")
		if len(w) > 3 && !genericBankTokens[w] {
			words = append(words, w)
		}
	}
	return words
}

// matchesKnownBank reports whether the bank name maps onto the known set
// after substantial-word matching.
func matchesKnownBank(bank string) bool {
	squashed := strings.ToLower(strings.ReplaceAll(bank, " ", ""))
	for _, known := range KnownBanks {
		if strings.Contains(squashed, known) {
			return true
		}
	}
	for _, w := range substantialWords(bank) {
		for _, known := range KnownBanks {
			if strings.Contains(known, w) || strings.Contains(w, known) {
				return true
			}
		}
	}
	return false
}
