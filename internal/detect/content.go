package detect

import (
	"regexp"
	"sort"
	"strings"

	"stmtsep/internal/extract"
	"stmtsep/internal/types"
)

var pageMarkerRe = regexp.MustCompile(`(?i)page\s+(\d+)\s+of\s+(\d+)`)

// Header keyword groups. A line matching two or more distinct groups is a
// candidate statement start.
var headerPatternGroups = [][]string{
	{"statement period", "billing period", "statement cycle", "period covered"},
	{"account number", "account no", "card number", "account:"},
	{"opening balance", "previous balance", "balance brought forward"},
	{"bank", "credit union", "building society"},
}

// offsetToPage maps a character offset in the concatenated text onto a
// 1-based page number.
func offsetToPage(offset, totalChars, totalPages int) int {
	if totalChars <= 0 || totalPages <= 0 {
		return 1
	}
	page := offset*totalPages/totalChars + 1
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	return page
}

// boundariesFromStarts turns sorted start pages into inclusive ranges. The
// end of statement i is max(start_i, start_{i+1}-1); the last statement
// extends to the final page.
func boundariesFromStarts(starts []int, totalPages int, confidence float64, source types.Source) []types.Boundary {
	if len(starts) == 0 {
		return nil
	}
	sort.Ints(starts)

	// Deduplicate mapped start pages.
	uniq := starts[:1]
	for _, s := range starts[1:] {
		if s != uniq[len(uniq)-1] {
			uniq = append(uniq, s)
		}
	}

	boundaries := make([]types.Boundary, 0, len(uniq))
	for i, start := range uniq {
		end := totalPages
		if i+1 < len(uniq) {
			end = uniq[i+1] - 1
			if end < start {
				end = start
			}
		}
		boundaries = append(boundaries, types.Boundary{
			StartPage:  start,
			EndPage:    end,
			Confidence: confidence,
			Source:     source,
		})
	}
	return boundaries
}

// detectPageMarkers finds "page 1 of N" markers; each one starts a statement.
func detectPageMarkers(text string, totalPages int) []types.Boundary {
	var starts []int
	for _, idx := range pageMarkerRe.FindAllStringSubmatchIndex(text, -1) {
		first := text[idx[2]:idx[3]]
		if first == "1" {
			starts = append(starts, offsetToPage(idx[0], len(text), totalPages))
		}
	}
	b := boundariesFromStarts(starts, totalPages, 0.9, types.SourceContent)
	for i := range b {
		b[i].Reasoning = "page 1 of N marker"
	}
	return b
}

// detectAccountChanges starts a statement at the first occurrence of each
// unique account number. Fewer than two unique accounts is no signal.
func detectAccountChanges(text string, totalPages int) []types.Boundary {
	matches := extract.FindAccounts(text)
	if len(matches) < 2 {
		return nil
	}

	type start struct {
		page    int
		account string
	}
	starts := make([]start, 0, len(matches))
	for _, m := range matches {
		starts = append(starts, start{
			page:    offsetToPage(m.Offset, len(text), totalPages),
			account: m.Number,
		})
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].page < starts[j].page })

	var boundaries []types.Boundary
	for i, s := range starts {
		if i > 0 && s.page == starts[i-1].page {
			continue
		}
		end := totalPages
		for j := i + 1; j < len(starts); j++ {
			if starts[j].page != s.page {
				end = starts[j].page - 1
				if end < s.page {
					end = s.page
				}
				break
			}
		}
		boundaries = append(boundaries, types.Boundary{
			StartPage:     s.page,
			EndPage:       end,
			AccountNumber: s.account,
			Confidence:    0.7,
			Reasoning:     "account number change",
			Source:        types.SourceContent,
		})
	}
	return boundaries
}

// detectHeaders scores each line against the header keyword groups. A line
// matching at least two distinct groups starts a statement; confidence is
// the fraction of groups matched.
func detectHeaders(text string, totalPages int) []types.Boundary {
	type start struct {
		page       int
		confidence float64
	}

	var starts []start
	offset := 0
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		matched := 0
		for _, group := range headerPatternGroups {
			for _, kw := range group {
				if strings.Contains(lower, kw) {
					matched++
					break
				}
			}
		}
		if matched >= 2 {
			page := offsetToPage(offset, len(text), totalPages)
			if len(starts) == 0 || starts[len(starts)-1].page != page {
				starts = append(starts, start{
					page:       page,
					confidence: float64(matched) / float64(len(headerPatternGroups)),
				})
			}
		}
		offset += len(line) + 1
	}

	boundaries := make([]types.Boundary, 0, len(starts))
	for i, s := range starts {
		end := totalPages
		if i+1 < len(starts) {
			end = starts[i+1].page - 1
			if end < s.page {
				end = s.page
			}
		}
		boundaries = append(boundaries, types.Boundary{
			StartPage:  s.page,
			EndPage:    end,
			Confidence: s.confidence,
			Reasoning:  "statement header keywords",
			Source:     types.SourceContent,
		})
	}
	return boundaries
}
