package halluc

import "stmtsep/internal/types"

// Summary aggregates the alerts from one validation pass.
type Summary struct {
	Status               string                  `json:"status"` // clean or hallucinations_detected
	TotalAlerts          int                     `json:"total_alerts"`
	BySeverity           map[types.Severity]int  `json:"by_severity"`
	ByKind               map[types.AlertKind]int `json:"by_type"`
	RejectionRecommended bool                    `json:"rejection_recommended"`
}

// Summarize builds a Summary for logging and error reports.
func Summarize(alerts []types.Alert) Summary {
	s := Summary{
		Status:     "clean",
		BySeverity: make(map[types.Severity]int),
		ByKind:     make(map[types.AlertKind]int),
	}
	if len(alerts) == 0 {
		return s
	}

	s.Status = "hallucinations_detected"
	s.TotalAlerts = len(alerts)
	for _, a := range alerts {
		s.BySeverity[a.Severity]++
		s.ByKind[a.Kind]++
	}
	s.RejectionRecommended = ShouldReject(alerts)
	return s
}
