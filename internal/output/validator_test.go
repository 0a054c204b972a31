package output

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stmtsep/internal/types"
)

// fakeBackend serves canned page texts per path.
type fakeBackend struct {
	texts map[string][]string
}

func (f *fakeBackend) Probe(string) error            { return nil }
func (f *fakeBackend) PageCount(string) (int, error) { return 0, errors.New("not used") }
func (f *fakeBackend) ExtractRange(string, string, int, int) error {
	return errors.New("not used")
}

func (f *fakeBackend) PageTexts(path string) ([]string, error) {
	texts, ok := f.texts[path]
	if !ok {
		return nil, errors.New("unknown path")
	}
	return texts, nil
}

func writeOutput(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), size), 0o644))
	return path
}

func validationDetail(t *testing.T, err error) string {
	t.Helper()
	var e *types.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, types.KindValidationFailed, e.Kind)
	assert.Equal(t, types.ClassFatal, e.Class)
	return e.Err.Error()
}

func TestValidatePasses(t *testing.T) {
	dir := t.TempDir()
	pageTexts := []string{
		"Westpac statement opening balance 1,204.33",
		"transactions continue closing balance 987.10",
		"Chase statement opening balance 55.00",
	}
	out1 := writeOutput(t, dir, "a.pdf", 2000)
	out2 := writeOutput(t, dir, "b.pdf", 2000)

	backend := &fakeBackend{texts: map[string][]string{
		out1: {"Westpac statement page", "closing balance 987.10"},
		out2: {"Chase statement opening balance"},
	}}
	v := NewValidator(backend)

	planned := []Planned{
		{Path: out1, Boundary: types.Boundary{StartPage: 1, EndPage: 2}},
		{Path: out2, Boundary: types.Boundary{StartPage: 3, EndPage: 3}},
	}
	err := v.Validate(planned, pageTexts, 30000, 3)
	assert.NoError(t, err)
}

func TestValidateMissingFile(t *testing.T) {
	dir := t.TempDir()
	v := NewValidator(&fakeBackend{})

	planned := []Planned{{
		Path:     filepath.Join(dir, "gone.pdf"),
		Boundary: types.Boundary{StartPage: 1, EndPage: 1},
	}}
	err := v.Validate(planned, []string{"text"}, 10000, 1)
	assert.Contains(t, validationDetail(t, err), "missing_file")
}

func TestValidatePageSumMismatch(t *testing.T) {
	dir := t.TempDir()
	out := writeOutput(t, dir, "a.pdf", 2000)
	v := NewValidator(&fakeBackend{texts: map[string][]string{out: {"text"}}})

	planned := []Planned{{Path: out, Boundary: types.Boundary{StartPage: 1, EndPage: 2}}}
	err := v.Validate(planned, []string{"text", "text", "text"}, 10000, 3)
	assert.Contains(t, validationDetail(t, err), "page_sum_mismatch")
}

func TestValidateUndersizedOutput(t *testing.T) {
	dir := t.TempDir()
	out := writeOutput(t, dir, "a.pdf", 100) // below the 1 KiB floor
	v := NewValidator(&fakeBackend{texts: map[string][]string{out: {"text"}}})

	planned := []Planned{{Path: out, Boundary: types.Boundary{StartPage: 1, EndPage: 1}}}
	err := v.Validate(planned, []string{"text"}, 10000, 1)
	assert.Contains(t, validationDetail(t, err), "size_out_of_range")
}

func TestValidateOversizedOutput(t *testing.T) {
	dir := t.TempDir()
	// One page of a 4-page, 8000-byte source may be at most 4000 bytes.
	out := writeOutput(t, dir, "a.pdf", 5000)
	v := NewValidator(&fakeBackend{texts: map[string][]string{out: {"text"}}})

	planned := []Planned{{Path: out, Boundary: types.Boundary{StartPage: 1, EndPage: 1}}}
	err := v.Validate(planned, []string{"text", "b", "c", "d"}, 8000, 1)
	assert.Contains(t, validationDetail(t, err), "size_out_of_range")
}

func TestValidateContentSampleMismatch(t *testing.T) {
	dir := t.TempDir()
	out := writeOutput(t, dir, "a.pdf", 2000)
	backend := &fakeBackend{texts: map[string][]string{
		out: {"completely unrelated words"},
	}}
	v := NewValidator(backend)

	planned := []Planned{{Path: out, Boundary: types.Boundary{StartPage: 1, EndPage: 1}}}
	err := v.Validate(planned, []string{"westpac statement balance"}, 10000, 1)
	assert.Contains(t, validationDetail(t, err), "content_sample_mismatch")
}

func TestValidateSkipsSampleForTextlessSourcePage(t *testing.T) {
	dir := t.TempDir()
	out := writeOutput(t, dir, "a.pdf", 2000)
	backend := &fakeBackend{texts: map[string][]string{out: {"anything"}}}
	v := NewValidator(backend)

	planned := []Planned{{Path: out, Boundary: types.Boundary{StartPage: 1, EndPage: 1}}}
	err := v.Validate(planned, []string{"   "}, 10000, 1)
	assert.NoError(t, err)
}

func TestValidateDetectsUncoveredPages(t *testing.T) {
	dir := t.TempDir()
	out := writeOutput(t, dir, "a.pdf", 2000)
	v := NewValidator(&fakeBackend{texts: map[string][]string{
		out: {"page one", "page two"},
	}})

	// One output covering pages 1-2 of a five-page source; pages 3-5 were
	// neither cut nor filtered as fragments, so the sum must not add up.
	planned := []Planned{{Path: out, Boundary: types.Boundary{StartPage: 1, EndPage: 2}}}
	source := []string{"page one", "page two", "page three", "page four", "page five"}
	err := v.Validate(planned, source, 25000, ExpectedPages(len(source), nil))
	assert.Contains(t, validationDetail(t, err), "page_sum_mismatch")
}

func TestExpectedPages(t *testing.T) {
	fragments := []types.Boundary{
		{StartPage: 3, EndPage: 3},
		{StartPage: 7, EndPage: 8},
	}
	assert.Equal(t, 5, ExpectedPages(8, fragments))
	assert.Equal(t, 8, ExpectedPages(8, nil))
}
