// Package output computes canonical output filenames and validates the
// generated statement PDFs against their source document.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"stmtsep/internal/types"
)

var (
	bankTokenRe = regexp.MustCompile(`^[a-z0-9]{1,10}$`)
	last4Re     = regexp.MustCompile(`^[0-9]{4}$`)
	closingRe   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	// Trailing ISO date in a parsed filename.
	nameDateRe = regexp.MustCompile(`-(\d{4}-\d{2}-\d{2})$`)
)

// Filename builds the canonical output name
// {bank}-{account_last4}-{closing_date}.pdf, substituting sentinels for
// missing fields. When maxLen > 0 and the name would exceed it, the bank
// token is truncated; account and date are never shortened.
func Filename(m types.Metadata, maxLen int) string {
	bank := m.Bank
	if !bankTokenRe.MatchString(bank) {
		bank = types.UnknownBank
	}
	last4 := m.AccountLast4
	if !last4Re.MatchString(last4) {
		last4 = types.UnknownLast4
	}
	date := m.ClosingDate
	if !closingRe.MatchString(date) {
		date = types.UnknownDate
	}

	name := fmt.Sprintf("%s-%s-%s.pdf", bank, last4, date)
	if maxLen > 0 && len(name) > maxLen {
		fixed := len(name) - len(bank)
		budget := maxLen - fixed
		if budget < 1 {
			budget = 1
		}
		if budget < len(bank) {
			name = fmt.Sprintf("%s-%s-%s.pdf", bank[:budget], last4, date)
		}
	}
	return name
}

// Parse recovers the (bank, account_last4, closing_date) triple from a
// canonical filename. It is the inverse of Filename for untruncated names;
// sentinel components parse back to sentinels.
func Parse(filename string) (types.Metadata, error) {
	base := filepath.Base(filename)
	name, ok := strings.CutSuffix(base, ".pdf")
	if !ok {
		return types.Metadata{}, fmt.Errorf("not a pdf filename: %q", base)
	}

	var date string
	if rest, ok := strings.CutSuffix(name, "-"+types.UnknownDate); ok {
		date = types.UnknownDate
		name = rest
	} else if m := nameDateRe.FindStringSubmatch(name); m != nil {
		date = m[1]
		name = name[:len(name)-len(m[0])]
	} else {
		return types.Metadata{}, fmt.Errorf("no closing date in %q", base)
	}

	i := strings.LastIndex(name, "-")
	if i < 1 {
		return types.Metadata{}, fmt.Errorf("no account component in %q", base)
	}
	bank, last4 := name[:i], name[i+1:]
	if !last4Re.MatchString(last4) {
		return types.Metadata{}, fmt.Errorf("bad account component %q in %q", last4, base)
	}
	if !bankTokenRe.MatchString(bank) {
		return types.Metadata{}, fmt.Errorf("bad bank component %q in %q", bank, base)
	}

	return types.Metadata{Bank: bank, AccountLast4: last4, ClosingDate: date}, nil
}

// ResolveCollision claims a free path under dir, trying name first and then
// appending -2, -3, ... before the extension. The chosen path is created
// empty with O_EXCL, so concurrent callers never claim the same name; the
// caller renames the real file over the placeholder.
func ResolveCollision(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate := name
		if n > 1 {
			candidate = fmt.Sprintf("%s-%d%s", stem, n, ext)
		}
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			f.Close()
			return path, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("claim output name %s: %w", path, err)
		}
	}
}
