// Package types holds the shared domain model for the statement separator:
// boundaries, per-statement metadata, hallucination alerts, and the error
// taxonomy used across the workflow.
package types

import "fmt"

// Sentinel values for metadata fields that could not be extracted.
const (
	UnknownBank  = "unknown"
	UnknownLast4 = "0000"
	UnknownDate  = "unknown-date"
)

// Source identifies which detection strategy produced a boundary.
type Source string

const (
	SourceModel   Source = "model"
	SourceContent Source = "content"
	SourcePattern Source = "pattern"
	SourceDefault Source = "default"
)

// Boundary is a 1-based inclusive page range identifying one statement
// within a multi-statement document.
type Boundary struct {
	StartPage     int     `json:"start_page"`
	EndPage       int     `json:"end_page"`
	AccountNumber string  `json:"account_number,omitempty"` // raw, may contain spaces
	Period        string  `json:"period,omitempty"`         // raw, as found in text
	Confidence    float64 `json:"confidence"`
	Reasoning     string  `json:"reasoning,omitempty"`
	Source        Source  `json:"source"`
}

// PageCount returns the number of pages covered by the boundary.
func (b Boundary) PageCount() int {
	return b.EndPage - b.StartPage + 1
}

func (b Boundary) String() string {
	return fmt.Sprintf("[%d-%d %s conf=%.2f]", b.StartPage, b.EndPage, b.Source, b.Confidence)
}

// BoundarySet is the ordered, non-overlapping set of boundaries detected for
// one document. DetectionMethod records the first strategy that produced a
// non-empty validated set.
type BoundarySet struct {
	Boundaries      []Boundary `json:"boundaries"`
	DetectionMethod Source     `json:"detection_method"`
}

// TotalPages sums the page counts of all boundaries.
func (s BoundarySet) TotalPages() int {
	n := 0
	for _, b := range s.Boundaries {
		n += b.PageCount()
	}
	return n
}

// Metadata describes one detected statement. Fields are normalized: Bank is
// a lowercase token of at most 10 chars, AccountLast4 is exactly four digits,
// ClosingDate is ISO 8601. Missing fields carry the sentinels.
type Metadata struct {
	Bank         string  `json:"bank"`
	AccountLast4 string  `json:"account_last4"`
	ClosingDate  string  `json:"closing_date"`
	Confidence   float64 `json:"confidence"`
	Notes        string  `json:"notes,omitempty"`
}

// Complete reports whether every field was extracted (no sentinels).
func (m Metadata) Complete() bool {
	return m.Bank != UnknownBank && m.AccountLast4 != UnknownLast4 && m.ClosingDate != UnknownDate
}

// Severity grades a hallucination alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertKind enumerates the hallucination categories.
type AlertKind string

const (
	AlertPhantomStatement    AlertKind = "phantom_statement"
	AlertInvalidPageRange    AlertKind = "invalid_page_range"
	AlertImpossibleDate      AlertKind = "impossible_date"
	AlertNonsensicalAccount  AlertKind = "nonsensical_account"
	AlertFabricatedBank      AlertKind = "fabricated_bank"
	AlertDuplicateBoundaries AlertKind = "duplicate_boundaries"
	AlertMissingContent      AlertKind = "missing_content"
	AlertInconsistentData    AlertKind = "inconsistent_data"
)

// Alert flags one implausible aspect of an analyzer response. Alerts are
// attached to the response under review and never mutate it.
type Alert struct {
	Kind          AlertKind `json:"kind"`
	Severity      Severity  `json:"severity"`
	DetectedValue string    `json:"detected_value"`
	ExpectedValue string    `json:"expected_value,omitempty"`
	Description   string    `json:"description"`
}
