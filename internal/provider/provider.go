// Package provider abstracts the model backends used for boundary analysis
// and metadata extraction. Three variants exist: a remote hosted model, a
// locally hosted model, and the null provider. Selection is a single
// process-wide configuration choice; there is no implicit multiplexing.
package provider

import "context"

// Kind tags the configured provider variant.
type Kind string

const (
	KindRemote Kind = "remote"
	KindLocal  Kind = "local"
	KindNone   Kind = "none"
)

// Info identifies a provider for logs and reports.
type Info struct {
	Kind     Kind   `json:"kind"`
	Model    string `json:"model"`
	Endpoint string `json:"endpoint"`
}

// BoundaryCandidate is one statement range proposed by a model.
type BoundaryCandidate struct {
	StartPage     int     `json:"start_page"`
	EndPage       int     `json:"end_page"`
	AccountNumber string  `json:"account_number,omitempty"`
	Period        string  `json:"period,omitempty"`
	Confidence    float64 `json:"confidence,omitempty"`
	Reasoning     string  `json:"reasoning,omitempty"`
}

// MetadataCandidate is the model's metadata proposal for one statement.
type MetadataCandidate struct {
	Bank          string  `json:"bank"`
	AccountNumber string  `json:"account_number"`
	ClosingDate   string  `json:"closing_date"`
	Confidence    float64 `json:"confidence,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}

// Provider exposes the two model-assisted operations. Responses are
// structured JSON; parsing failures are malformed-response errors and are
// never retried.
type Provider interface {
	AnalyzeBoundaries(ctx context.Context, text string, totalPages int) ([]BoundaryCandidate, error)
	ExtractMetadata(ctx context.Context, text string, startPage, endPage int) (*MetadataCandidate, error)
	Available(ctx context.Context) bool
	Info() Info
}
