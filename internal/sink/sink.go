// Package sink integrates with a downstream document management system.
// The workflow consumes the DocumentSink and DocumentSource capabilities;
// paperless-ngx is the production implementation.
package sink

import (
	"context"
	"strings"

	"stmtsep/internal/types"
)

// UploadResult describes an accepted upload. Paperless queues uploads as
// tasks; DocumentID is zero until the task completes.
type UploadResult struct {
	DocumentID int    `json:"document_id,omitempty"`
	TaskID     string `json:"task_id,omitempty"`
	Title      string `json:"title"`
}

// DocRef identifies a remote document.
type DocRef struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	ContentType string `json:"content_type"`
	Created     string `json:"created,omitempty"`
}

// QueryOptions filters a source query. Zero values mean "no filter".
type QueryOptions struct {
	Tags          []string
	Correspondent string
	DocumentType  string
	Limit         int
}

// DocumentSink receives generated statement PDFs.
type DocumentSink interface {
	// TestConnection verifies reachability and credentials.
	TestConnection(ctx context.Context) error
	// Upload sends a file; metadata names are resolved to remote IDs,
	// creating tags, correspondent, and document type when missing.
	Upload(ctx context.Context, filePath, title string) (*UploadResult, error)
	// WaitForTask polls an upload task until it yields a document ID.
	WaitForTask(ctx context.Context, taskID string) (int, error)
	// ApplyTags adds tags to an existing document after the configured
	// indexing wait.
	ApplyTags(ctx context.Context, documentID int, tags []string) error
	// TagFailure applies the configured error tags to a source document
	// when the failure severity meets the configured threshold.
	TagFailure(ctx context.Context, documentID int, severity types.Severity) error
}

// DocumentSource pulls inputs from the remote system.
type DocumentSource interface {
	// Query lists matching PDF documents. Non-PDF results are dropped.
	Query(ctx context.Context, opts QueryOptions) ([]DocRef, error)
	// Download fetches one document into destDir, enforcing an
	// application/pdf content type.
	Download(ctx context.Context, ref DocRef, destDir string) (string, error)
}

// severityRank orders alert severities for threshold comparison.
func severityRank(s types.Severity) int {
	switch s {
	case types.SeverityLow:
		return 0
	case types.SeverityMedium:
		return 1
	case types.SeverityHigh:
		return 2
	case types.SeverityCritical:
		return 3
	default:
		return -1
	}
}

// MeetsThreshold reports whether a failure of the given severity should
// trigger error tagging under the configured minimum.
func MeetsThreshold(severity, minimum types.Severity) bool {
	return severityRank(severity) >= severityRank(minimum) && severityRank(severity) >= 0
}

// SeverityTaggable decides whether a failure of the given severity gets the
// error tags. A non-empty levels list is an explicit allow list; otherwise
// minimum acts as a threshold.
func SeverityTaggable(severity types.Severity, levels []string, minimum types.Severity) bool {
	if len(levels) > 0 {
		for _, l := range levels {
			if strings.EqualFold(l, string(severity)) {
				return true
			}
		}
		return false
	}
	return MeetsThreshold(severity, minimum)
}
