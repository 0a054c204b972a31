package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintStable(t *testing.T) {
	pages := []string{"page one", "page two"}
	assert.Equal(t, Fingerprint(pages), Fingerprint([]string{"page one", "page two"}))
}

func TestFingerprintDistinguishesPageSplits(t *testing.T) {
	// The separator byte keeps ["ab","c"] and ["a","bc"] apart.
	a := Fingerprint([]string{"ab", "c"})
	b := Fingerprint([]string{"a", "bc"})
	assert.NotEqual(t, a, b)
}

func TestFingerprintEmpty(t *testing.T) {
	assert.NotEmpty(t, Fingerprint(nil))
	assert.Equal(t, Fingerprint(nil), Fingerprint([]string{}))
}
