// Package pdf wraps the PDF toolchain behind a small backend interface so
// the workflow and output validator can be exercised without real files.
package pdf

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// Backend is the minimal PDF capability the workflow needs.
type Backend interface {
	// Probe checks that the file is a readable, unencrypted PDF.
	Probe(path string) error
	// PageCount returns the number of pages.
	PageCount(path string) (int, error)
	// PageTexts extracts the plain text of every page, in order. Pages with
	// no extractable text yield empty strings.
	PageTexts(path string) ([]string, error)
	// ExtractRange writes a new PDF at dst containing exactly the pages
	// [startPage, endPage] of src (1-based, inclusive).
	ExtractRange(src, dst string, startPage, endPage int) error
}

// Fingerprint derives a stable content hash from the concatenated page
// texts. Identical text content yields identical fingerprints regardless of
// file-level differences such as timestamps.
func Fingerprint(pageTexts []string) string {
	h := sha256.New()
	for _, text := range pageTexts {
		io.WriteString(h, text)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
