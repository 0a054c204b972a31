package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoundaryPageCount(t *testing.T) {
	b := Boundary{StartPage: 3, EndPage: 7}
	assert.Equal(t, 5, b.PageCount())

	single := Boundary{StartPage: 1, EndPage: 1}
	assert.Equal(t, 1, single.PageCount())
}

func TestBoundarySetTotalPages(t *testing.T) {
	s := BoundarySet{Boundaries: []Boundary{
		{StartPage: 1, EndPage: 2},
		{StartPage: 3, EndPage: 3},
		{StartPage: 4, EndPage: 6},
	}}
	assert.Equal(t, 6, s.TotalPages())
}

func TestMetadataComplete(t *testing.T) {
	full := Metadata{Bank: "westpac", AccountLast4: "2819", ClosingDate: "2015-05-21"}
	assert.True(t, full.Complete())

	partial := Metadata{Bank: UnknownBank, AccountLast4: "2819", ClosingDate: "2015-05-21"}
	assert.False(t, partial.Complete())
}

func TestErrorClassification(t *testing.T) {
	fatal := Fatal(KindEncrypted, errors.New("AES-256 envelope"))
	assert.Equal(t, ClassFatal, ClassOf(fatal))
	assert.Equal(t, KindEncrypted, KindOf(fatal))
	assert.False(t, IsTransient(fatal))

	transient := Transient(KindRateLimited, errors.New("429"))
	assert.True(t, IsTransient(transient))

	// Wrapping preserves class and kind.
	wrapped := fmt.Errorf("stage detect: %w", transient)
	assert.True(t, IsTransient(wrapped))
	assert.Equal(t, KindRateLimited, KindOf(wrapped))

	// Untagged errors are fatal with the filesystem kind.
	plain := errors.New("disk on fire")
	assert.Equal(t, ClassFatal, ClassOf(plain))
	assert.Equal(t, KindFilesystemError, KindOf(plain))
}

func TestErrorMessageIncludesStage(t *testing.T) {
	e := Fatal(KindPdfUnreadable, errors.New("bad xref"))
	e.Stage = "ingest"
	assert.Equal(t, "ingest: pdf_unreadable: bad xref", e.Error())
}
