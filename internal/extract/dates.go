package extract

import (
	"regexp"
	"strings"
	"time"
)

var (
	// Explicit statement period with two day-month-year dates; the second
	// (later) date is the closing date.
	periodRe = regexp.MustCompile(`(?i)statement\s+period[:\s]+.*?(\d{1,2}\s+[A-Za-z]{3,9}\s+\d{4})\s*(?:to|–|-)\s*(\d{1,2}\s+[A-Za-z]{3,9}\s+\d{4})`)

	// Closing/statement date labels with a single date.
	closingRe = regexp.MustCompile(`(?i)(?:closing|statement)\s+date[:\s]+(\d{1,2}\s+[A-Za-z]{3,9}\s+\d{4}|\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4})`)

	// A bare day-month-year pair joined by "to" without the period label.
	bareRangeRe = regexp.MustCompile(`(\d{1,2}\s+[A-Za-z]{3,9}\s+\d{4})\s*(?:to|–|-)\s*(\d{1,2}\s+[A-Za-z]{3,9}\s+\d{4})`)

	// ISO range, e.g. 2015-04-22 to 2015-05-21.
	isoRangeRe = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})\s*(?:to|–|-)\s*(\d{4}-\d{2}-\d{2})`)
)

var dateLayouts = []string{
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"02 January 2006",
	"2006-01-02",
	"2/1/2006",
	"02/01/2006",
}

// FindClosingDate locates the statement closing date in the text and returns
// it normalized to YYYY-MM-DD. The second date of a period range wins; a
// single labeled date is used as-is.
func FindClosingDate(text string) (string, bool) {
	if m := periodRe.FindStringSubmatch(text); m != nil {
		if iso, ok := normalizeDate(m[2]); ok {
			return iso, true
		}
		if iso, ok := normalizeDate(m[1]); ok {
			return iso, true
		}
	}
	if m := isoRangeRe.FindStringSubmatch(text); m != nil {
		if iso, ok := normalizeDate(m[2]); ok {
			return iso, true
		}
	}
	if m := closingRe.FindStringSubmatch(text); m != nil {
		if iso, ok := normalizeDate(m[1]); ok {
			return iso, true
		}
	}
	if m := bareRangeRe.FindStringSubmatch(text); m != nil {
		if iso, ok := normalizeDate(m[2]); ok {
			return iso, true
		}
	}
	return "", false
}

// normalizeDate parses a raw date string into ISO 8601 form.
func normalizeDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
