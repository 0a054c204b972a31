package extract

import (
	"regexp"
	"strings"
)

// bankAliases maps printed institution names onto normalized tokens. The
// token set mirrors the validator's known-bank dictionary.
var bankAliases = map[string]string{
	"westpac":              "westpac",
	"commonwealth":         "commonweal",
	"anz":                  "anz",
	"national australia":   "nab",
	"nab":                  "nab",
	"bendigo":              "bendigo",
	"suncorp":              "suncorp",
	"st george":            "stgeorge",
	"st.george":            "stgeorge",
	"macquarie":            "macquarie",
	"bank of queensland":   "boq",
	"ing":                  "ing",
	"jpmorgan chase":       "jpmorganch",
	"jpmorgan":             "jpmorgan",
	"jp morgan":            "jpmorgan",
	"chase":                "chase",
	"wells fargo":          "wellsfargo",
	"bank of america":      "bankofamer",
	"citibank":             "citibank",
	"citi":                 "citi",
	"capital one":          "capitalone",
	"us bank":              "usbank",
	"pnc":                  "pnc",
	"td bank":              "tdbank",
	"hsbc":                 "hsbc",
	"barclays":             "barclays",
	"lloyds":               "lloyds",
	"natwest":              "natwest",
	"santander":            "santander",
	"scotiabank":           "scotiabank",
	"royal bank of canada": "rbc",
	"rbc":                  "rbc",
}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]`)

// aliasRes holds word-bounded patterns so short aliases like "ing" cannot
// match inside words like "banking".
var aliasRes = func() map[string]*regexp.Regexp {
	res := make(map[string]*regexp.Regexp, len(bankAliases))
	for alias := range bankAliases {
		res[alias] = regexp.MustCompile(`\b` + regexp.QuoteMeta(alias) + `\b`)
	}
	return res
}()

// FindBank searches the text for a known institution name. The earliest
// occurrence wins; longer aliases are preferred at equal offsets. Returns
// the normalized token and whether anything was found.
func FindBank(text string) (string, bool) {
	lower := strings.ToLower(text)

	best := ""
	bestOffset := -1
	bestLen := 0
	for alias, token := range bankAliases {
		loc := aliasRes[alias].FindStringIndex(lower)
		if loc == nil {
			continue
		}
		off := loc[0]
		if bestOffset == -1 || off < bestOffset || (off == bestOffset && len(alias) > bestLen) {
			best = token
			bestOffset = off
			bestLen = len(alias)
		}
	}
	return best, bestOffset >= 0
}

// NormalizeBank lowercases, strips non-alphanumerics, and truncates to ten
// characters. An empty result maps to the unknown sentinel by the caller.
func NormalizeBank(bank string) string {
	b := nonAlnumRe.ReplaceAllString(strings.ToLower(bank), "")
	if len(b) > 10 {
		b = b[:10]
	}
	return b
}
