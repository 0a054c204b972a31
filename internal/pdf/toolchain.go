package pdf

import (
	"errors"
	"fmt"
	"os"
	"strings"

	pdftext "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"go.uber.org/zap"

	"stmtsep/internal/logging"
	"stmtsep/internal/types"
)

var _ Backend = (*Toolchain)(nil)

// Toolchain is the production Backend: pdfcpu for structural operations and
// page extraction, ledongthuc/pdf for text decoding, which pdfcpu does not
// expose.
type Toolchain struct {
	conf *model.Configuration
	log  *zap.Logger
}

// NewToolchain builds the production backend. Validation is relaxed; real
// bank statements violate the PDF spec constantly.
func NewToolchain() *Toolchain {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Toolchain{
		conf: conf,
		log:  logging.For("pdf"),
	}
}

// Probe verifies the file exists and opens as an unencrypted PDF.
func (t *Toolchain) Probe(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return types.Fatal(types.KindFileMissing, err)
		}
		return types.Fatal(types.KindFilesystemError, err)
	}

	f, _, err := pdftext.Open(path)
	if err != nil {
		if isEncryptedError(err) {
			return types.Fatal(types.KindEncrypted, err)
		}
		return types.Fatal(types.KindPdfUnreadable, err)
	}
	f.Close()
	return nil
}

// PageCount returns the page count via pdfcpu.
func (t *Toolchain) PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, types.Fatal(types.KindPdfUnreadable, err)
	}
	return n, nil
}

// PageTexts decodes the plain text of every page. Pages whose content cannot
// be decoded yield empty strings rather than failing the document.
func (t *Toolchain) PageTexts(path string) ([]string, error) {
	f, reader, err := pdftext.Open(path)
	if err != nil {
		if isEncryptedError(err) {
			return nil, types.Fatal(types.KindEncrypted, err)
		}
		return nil, types.Fatal(types.KindPdfUnreadable, err)
	}
	defer f.Close()

	total := reader.NumPage()
	texts := make([]string, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			t.log.Debug("page text extraction failed",
				zap.String("path", path),
				zap.Int("page", i),
				zap.Error(err))
			continue
		}
		texts[i-1] = text
	}
	return texts, nil
}

// ExtractRange writes the pages [startPage, endPage] of src into a new PDF
// at dst.
func (t *Toolchain) ExtractRange(src, dst string, startPage, endPage int) error {
	if startPage < 1 || endPage < startPage {
		return types.Fatalf(types.KindPdfGenerationFailed, "invalid page range %d-%d", startPage, endPage)
	}
	selected := []string{fmt.Sprintf("%d-%d", startPage, endPage)}
	if err := api.TrimFile(src, dst, selected, t.conf); err != nil {
		return types.Fatal(types.KindPdfGenerationFailed,
			fmt.Errorf("trim %s pages %d-%d: %w", src, startPage, endPage, err))
	}
	return nil
}

func isEncryptedError(err error) bool {
	if errors.Is(err, pdftext.ErrInvalidPassword) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "encrypted")
}
