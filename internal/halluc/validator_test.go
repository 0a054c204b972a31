package halluc

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stmtsep/internal/types"
)

func pages(texts ...string) []string { return texts }

func filledPage(label string) string {
	return label + " " + strings.Repeat("transaction line with balances and dates ", 5)
}

func alertsOfKind(alerts []types.Alert, kind types.AlertKind) []types.Alert {
	var out []types.Alert
	for _, a := range alerts {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func TestPhantomStatementDetection(t *testing.T) {
	v := New()
	docs := pages(filledPage("p1"), filledPage("p2"), filledPage("p3"))

	// Five claimed statements in a three page document, one starting past the end.
	candidates := []types.Boundary{
		{StartPage: 1, EndPage: 1}, {StartPage: 2, EndPage: 2}, {StartPage: 3, EndPage: 3},
		{StartPage: 4, EndPage: 5}, {StartPage: 6, EndPage: 6},
	}

	alerts := v.CheckBoundaries(candidates, docs)
	phantom := alertsOfKind(alerts, types.AlertPhantomStatement)
	require.GreaterOrEqual(t, len(phantom), 2)
	assert.True(t, ShouldReject(alerts))
}

func TestInvalidPageRanges(t *testing.T) {
	v := New()
	docs := pages(filledPage("p1"), filledPage("p2"), filledPage("p3"))

	candidates := []types.Boundary{
		{StartPage: 3, EndPage: 1},
		{StartPage: 0, EndPage: 2},
		{StartPage: 2, EndPage: -1},
	}

	alerts := v.CheckBoundaries(candidates, docs)
	ranges := alertsOfKind(alerts, types.AlertInvalidPageRange)
	require.GreaterOrEqual(t, len(ranges), 3)
	assert.True(t, ShouldReject(alerts))
}

func TestImpossibleDates(t *testing.T) {
	v := New()
	docs := pages(filledPage("p1"), filledPage("p2"))

	future := []types.Boundary{{StartPage: 1, EndPage: 2, Period: "01 Jan 2150 to 31 Jan 2150"}}
	alerts := v.CheckBoundaries(future, docs)
	require.NotEmpty(t, alertsOfKind(alerts, types.AlertImpossibleDate))
	assert.Equal(t, types.SeverityHigh, alertsOfKind(alerts, types.AlertImpossibleDate)[0].Severity)

	ancient := []types.Boundary{{StartPage: 1, EndPage: 2, Period: "01 Jan 1900 to 31 Jan 1900"}}
	alerts = v.CheckBoundaries(ancient, docs)
	require.NotEmpty(t, alertsOfKind(alerts, types.AlertImpossibleDate))
	assert.Equal(t, types.SeverityMedium, alertsOfKind(alerts, types.AlertImpossibleDate)[0].Severity)
}

func TestNonsensicalAccounts(t *testing.T) {
	v := New()
	docs := pages(filledPage("p1"), filledPage("p2"), filledPage("p3"))

	candidates := []types.Boundary{
		{StartPage: 1, EndPage: 1, AccountNumber: "123456789"},
		{StartPage: 2, EndPage: 2, AccountNumber: "***1234***"},
		{StartPage: 3, EndPage: 3, AccountNumber: "12"},
	}

	alerts := v.CheckBoundaries(candidates, docs)
	accounts := alertsOfKind(alerts, types.AlertNonsensicalAccount)
	require.GreaterOrEqual(t, len(accounts), 3)
}

func TestDuplicateBoundaries(t *testing.T) {
	v := New()
	docs := pages(filledPage("p1"), filledPage("p2"))

	candidates := []types.Boundary{
		{StartPage: 1, EndPage: 2},
		{StartPage: 1, EndPage: 2},
	}

	alerts := v.CheckBoundaries(candidates, docs)
	assert.NotEmpty(t, alertsOfKind(alerts, types.AlertDuplicateBoundaries))
}

func TestMissingContentDetection(t *testing.T) {
	v := New()
	docs := pages("   ", filledPage("p2"))

	alerts := v.CheckBoundaries([]types.Boundary{{StartPage: 1, EndPage: 1}}, docs)
	assert.NotEmpty(t, alertsOfKind(alerts, types.AlertMissingContent))

	alerts = v.CheckBoundaries([]types.Boundary{{StartPage: 2, EndPage: 2}}, docs)
	assert.Empty(t, alertsOfKind(alerts, types.AlertMissingContent))
}

func TestInconsistentData(t *testing.T) {
	v := New()
	docs := pages("Savings Account Statement " + filledPage("p1"))

	candidates := []types.Boundary{
		{StartPage: 1, EndPage: 1, AccountNumber: "4532 1234 5678 9012"},
	}

	alerts := v.CheckBoundaries(candidates, docs)
	inconsistent := alertsOfKind(alerts, types.AlertInconsistentData)
	require.NotEmpty(t, inconsistent)
	assert.Equal(t, types.SeverityMedium, inconsistent[0].Severity)
}

func TestValidDataNoFalsePositives(t *testing.T) {
	v := New()
	docs := pages(
		"Westpac Banking Corporation "+filledPage("p1"),
		filledPage("p2"),
		filledPage("p3"),
		filledPage("p4"),
	)

	candidates := []types.Boundary{
		{StartPage: 1, EndPage: 2, AccountNumber: "0623 1045 8901", Period: "01 Apr 2015 to 21 May 2015"},
		{StartPage: 3, EndPage: 4, AccountNumber: "5550 8812 3344", Period: "01 Apr 2015 to 21 May 2015"},
	}

	alerts := v.CheckBoundaries(candidates, docs)
	for _, a := range alerts {
		assert.NotEqual(t, types.SeverityCritical, a.Severity, "unexpected alert: %+v", a)
		assert.NotEqual(t, types.SeverityHigh, a.Severity, "unexpected alert: %+v", a)
	}
	assert.False(t, ShouldReject(alerts))
}

func TestBankValidation(t *testing.T) {
	v := New()
	text := "Westpac Banking Corporation Statement of Account"

	// Known bank, present in text.
	assert.Empty(t, v.CheckMetadata("westpac", "", text))
	// Known bank, absent from text: the dictionary vouches for it.
	assert.Empty(t, v.CheckMetadata("chase", "", text))
	// Unknown bank present in the text is accepted (text wins over dictionary).
	assert.Empty(t, v.CheckMetadata("Gringotts Wizarding", "", "Gringotts Wizarding Bank Statement"))
	// Unknown bank absent from the text is fabricated.
	fabricated := v.CheckMetadata("Ankh-Morpork Mercantile", "", text)
	require.NotEmpty(t, fabricated)
	assert.Equal(t, types.AlertFabricatedBank, fabricated[0].Kind)
}

func TestRejectionThresholds(t *testing.T) {
	critical := types.Alert{Kind: types.AlertPhantomStatement, Severity: types.SeverityCritical}
	assert.True(t, ShouldReject([]types.Alert{critical}))

	high := types.Alert{Kind: types.AlertInvalidPageRange, Severity: types.SeverityHigh}
	assert.True(t, ShouldReject([]types.Alert{high, high, high}))
	assert.False(t, ShouldReject([]types.Alert{high, high}))

	medium := types.Alert{Kind: types.AlertDuplicateBoundaries, Severity: types.SeverityMedium}
	low := types.Alert{Kind: types.AlertImpossibleDate, Severity: types.SeverityLow}
	assert.False(t, ShouldReject([]types.Alert{medium, low}))
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "clean", Summarize(nil).Status)

	alerts := []types.Alert{
		{Kind: types.AlertPhantomStatement, Severity: types.SeverityCritical},
		{Kind: types.AlertFabricatedBank, Severity: types.SeverityHigh},
	}
	s := Summarize(alerts)
	assert.Equal(t, "hallucinations_detected", s.Status)
	assert.Equal(t, 2, s.TotalAlerts)
	assert.Equal(t, 1, s.BySeverity[types.SeverityCritical])
	assert.Equal(t, 1, s.BySeverity[types.SeverityHigh])
	assert.Equal(t, 1, s.ByKind[types.AlertPhantomStatement])
	assert.Equal(t, 1, s.ByKind[types.AlertFabricatedBank])
	assert.True(t, s.RejectionRecommended)
}

func TestKnownBankMatching(t *testing.T) {
	for _, name := range []string{
		"Westpac Banking Corporation",
		"Commonwealth Bank of Australia",
		"JPMorgan Chase & Co",
		"Wells Fargo Bank",
	} {
		assert.True(t, matchesKnownBank(name), fmt.Sprintf("%s should match", name))
	}
	assert.False(t, matchesKnownBank("Iron Bank of Braavos"))
}
