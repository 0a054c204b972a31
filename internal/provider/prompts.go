package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"stmtsep/internal/types"
)

const analyzeSystemPrompt = `You segment concatenated bank statement PDFs. ` +
	`The user gives you page-marked text. Reply with strict JSON only, no prose, no code fences.`

const extractSystemPrompt = `You read one bank statement and report its issuing bank, ` +
	`account number, and closing date. Reply with strict JSON only, no prose, no code fences.`

func analyzePrompt(text string, totalPages int) string {
	return fmt.Sprintf(`The document below has %d pages. Pages are wrapped in === PAGE N === markers.
Identify every independent bank statement and its inclusive page range.

Respond with JSON of the form:
{"boundaries":[{"start_page":1,"end_page":3,"account_number":"","period":"","confidence":0.9,"reasoning":""}]}

Rules:
- start_page and end_page are 1-based and inclusive, never beyond page %d
- ranges must not overlap
- account_number and period are copied verbatim from the text, empty if absent
- confidence is between 0.0 and 1.0

DOCUMENT:
%s`, totalPages, totalPages, text)
}

func extractPrompt(text string, startPage, endPage int) string {
	return fmt.Sprintf(`The text below is one bank statement covering pages %d-%d of a larger document.

Respond with JSON of the form:
{"bank":"","account_number":"","closing_date":"","confidence":0.9,"notes":""}

Rules:
- bank is the issuing institution as printed, empty if absent
- account_number is copied verbatim, empty if absent
- closing_date is the statement period end date in YYYY-MM-DD form, empty if absent

STATEMENT:
%s`, startPage, endPage, text)
}

type boundariesEnvelope struct {
	Boundaries []BoundaryCandidate `json:"boundaries"`
}

// parseBoundaries decodes a model boundary response. Schema violations are
// malformed-response errors, which the caller must not retry.
func parseBoundaries(raw string) ([]BoundaryCandidate, error) {
	cleaned := stripCodeFence(raw)

	var env boundariesEnvelope
	if err := json.Unmarshal([]byte(cleaned), &env); err != nil {
		// Some models emit the bare array.
		var bare []BoundaryCandidate
		if err2 := json.Unmarshal([]byte(cleaned), &bare); err2 == nil {
			return bare, nil
		}
		return nil, types.Recoverable(types.KindMalformedResponse,
			fmt.Errorf("boundary response is not valid JSON: %w", err))
	}
	if env.Boundaries == nil {
		return nil, types.Recoverable(types.KindMalformedResponse,
			fmt.Errorf("boundary response missing boundaries field"))
	}
	return env.Boundaries, nil
}

func parseMetadata(raw string) (*MetadataCandidate, error) {
	cleaned := stripCodeFence(raw)

	var m MetadataCandidate
	if err := json.Unmarshal([]byte(cleaned), &m); err != nil {
		return nil, types.Recoverable(types.KindMalformedResponse,
			fmt.Errorf("metadata response is not valid JSON: %w", err))
	}
	return &m, nil
}

// stripCodeFence removes markdown fences models add despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
