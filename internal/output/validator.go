package output

import (
	"os"
	"strings"

	"go.uber.org/zap"

	"stmtsep/internal/logging"
	"stmtsep/internal/pdf"
	"stmtsep/internal/types"
)

// Non-empty PDFs are never smaller than this in practice.
const minOutputBytes = 1024

// Planned pairs a generated file with the boundary it was cut from.
type Planned struct {
	Path     string
	Boundary types.Boundary
}

// Validator runs the post-generation checks: existence, page sum, byte-size
// sanity, and content sampling. All four must pass.
type Validator struct {
	backend pdf.Backend
	log     *zap.Logger
}

// NewValidator builds an output validator on the given PDF backend.
func NewValidator(backend pdf.Backend) *Validator {
	return &Validator{
		backend: backend,
		log:     logging.For("output"),
	}
}

// ExpectedPages computes the page-sum target before generation: every page
// of the source document except those belonging to filtered fragments. A
// page that is neither inside an accepted boundary nor inside a fragment
// then fails the page-sum check.
func ExpectedPages(totalPages int, fragments []types.Boundary) int {
	n := totalPages
	for _, b := range fragments {
		n -= b.PageCount()
	}
	return n
}

// Validate checks the generated outputs against the source document.
// pageTexts and sourceBytes describe the source; expectedPages is the target
// computed by ExpectedPages before generation. The first failing check
// aborts with a fatal validation error.
func (v *Validator) Validate(planned []Planned, pageTexts []string, sourceBytes int64, expectedPages int) error {
	totalPages := len(pageTexts)

	// Check 1: every planned output exists and is non-empty.
	sizes := make([]int64, len(planned))
	for i, p := range planned {
		info, err := os.Stat(p.Path)
		if err != nil || info.Size() == 0 {
			return types.Fatalf(types.KindValidationFailed, "missing_file: %s", p.Path)
		}
		sizes[i] = info.Size()
	}

	// Check 2: the outputs cover exactly the expected pages.
	got := 0
	for _, p := range planned {
		got += p.Boundary.PageCount()
	}
	if got != expectedPages {
		return types.Fatalf(types.KindValidationFailed,
			"page_sum_mismatch: outputs cover %d pages, expected %d", got, expectedPages)
	}

	// Check 3: byte-size sanity against the source's per-page footprint.
	for i, p := range planned {
		if sizes[i] < minOutputBytes {
			return types.Fatalf(types.KindValidationFailed,
				"size_out_of_range: %s is %d bytes, below minimum %d", p.Path, sizes[i], minOutputBytes)
		}
		if totalPages > 0 {
			maxBytes := sourceBytes / int64(totalPages) * int64(p.Boundary.PageCount()) * 2
			if maxBytes > 0 && sizes[i] > maxBytes {
				return types.Fatalf(types.KindValidationFailed,
					"size_out_of_range: %s is %d bytes, exceeds source-derived maximum %d", p.Path, sizes[i], maxBytes)
			}
		}
	}

	// Check 4: first and last page of each output share at least one token
	// with the corresponding source page.
	for _, p := range planned {
		outTexts, err := v.backend.PageTexts(p.Path)
		if err != nil {
			return types.Fatalf(types.KindValidationFailed,
				"content_sample_mismatch: cannot read %s: %v", p.Path, err)
		}
		if len(outTexts) == 0 {
			return types.Fatalf(types.KindValidationFailed,
				"content_sample_mismatch: %s has no pages", p.Path)
		}

		pairs := [][2]int{{0, p.Boundary.StartPage - 1}}
		if len(outTexts) > 1 {
			pairs = append(pairs, [2]int{len(outTexts) - 1, p.Boundary.EndPage - 1})
		}
		for _, pair := range pairs {
			outIdx, srcIdx := pair[0], pair[1]
			if srcIdx < 0 || srcIdx >= totalPages {
				continue
			}
			src := pageTexts[srcIdx]
			if strings.TrimSpace(src) == "" {
				continue // nothing extractable to compare against
			}
			if !sharesToken(outTexts[outIdx], src) {
				return types.Fatalf(types.KindValidationFailed,
					"content_sample_mismatch: %s page %d shares no token with source page %d",
					p.Path, outIdx+1, srcIdx+1)
			}
		}
	}

	v.log.Debug("output validation passed",
		zap.Int("outputs", len(planned)),
		zap.Int("pages", got))
	return nil
}

// sharesToken reports whether any non-whitespace token of a also occurs in
// b, case-insensitively.
func sharesToken(a, b string) bool {
	bTokens := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(b)) {
		bTokens[tok] = struct{}{}
	}
	for _, tok := range strings.Fields(strings.ToLower(a)) {
		if _, ok := bTokens[tok]; ok {
			return true
		}
	}
	return false
}
