package normalize

import (
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"

	"github.com/rednix/eu-grants-monitor-agent/internal/collect"
	"github.com/rednix/eu-grants-monitor-agent/internal/models"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func validRecord() collect.RawRecord {
	deadline := testNow.AddDate(0, 2, 0)
	return collect.RawRecord{
		SourceSystem: "horizon-europe",
		ExternalID:   "HORIZON-CL4-2026-DIGITAL-01",
		Title:        "AI for Manufacturing",
		RawStatus:    "open",
		Deadline:     &deadline,
	}
}

func TestNormalizeAssignsDeterministicID(t *testing.T) {
	a, err := Normalize(validRecord(), testNow)
	require.NoError(t, err)
	b, err := Normalize(validRecord(), testNow.Add(time.Hour))
	require.NoError(t, err)

	require.Equal(t, a.ID, b.ID)
	require.Equal(t, models.OpportunityID("horizon-europe", "HORIZON-CL4-2026-DIGITAL-01"), a.ID)
}

func TestNormalizeRejectsMissingTitle(t *testing.T) {
	rec := validRecord()
	rec.Title = "  "

	_, err := Normalize(rec, testNow)
	require.True(t, eris.Is(err, ErrMissingTitle))
}

func TestNormalizeRejectsOpenWithoutDeadline(t *testing.T) {
	rec := validRecord()
	rec.Deadline = nil

	_, err := Normalize(rec, testNow)
	require.True(t, eris.Is(err, ErrMissingDeadline))
}

func TestNormalizeAllowsUpcomingWithoutDeadline(t *testing.T) {
	open := testNow.AddDate(0, 1, 0)
	rec := validRecord()
	rec.Deadline = nil
	rec.RawStatus = "forthcoming"
	rec.OpenDate = &open

	opp, err := Normalize(rec, testNow)
	require.NoError(t, err)
	require.Equal(t, models.StatusUpcoming, opp.Status)
}

func TestNormalizeClosesOpenWithPastDeadline(t *testing.T) {
	past := testNow.AddDate(0, 0, -5)
	rec := validRecord()
	rec.RawStatus = "open"
	rec.Deadline = &past

	opp, err := Normalize(rec, testNow)
	require.NoError(t, err)
	require.Equal(t, models.StatusClosed, opp.Status)
}

func TestNormalizeParsesRawDeadline(t *testing.T) {
	rec := validRecord()
	rec.Deadline = nil
	rec.RawDeadline = "Deadline: 15 September 2026"

	opp, err := Normalize(rec, testNow)
	require.NoError(t, err)
	require.NotNil(t, opp.Deadline)
	require.Equal(t, time.Date(2026, 9, 15, 23, 59, 59, 0, time.UTC), opp.Deadline.UTC())
}

func TestNormalizeParsesRawBudget(t *testing.T) {
	rec := validRecord()
	rec.RawBudget = "between €50,000 and €250,000"

	opp, err := Normalize(rec, testNow)
	require.NoError(t, err)
	require.NotNil(t, opp.BudgetMin)
	require.NotNil(t, opp.BudgetMax)
	require.Equal(t, 50000.0, *opp.BudgetMin)
	require.Equal(t, 250000.0, *opp.BudgetMax)
	require.Equal(t, "EUR", opp.Currency)
}

func TestNormalizeReordersSwappedBudgetBounds(t *testing.T) {
	lo, hi := 100000.0, 20000.0
	rec := validRecord()
	rec.BudgetMin = &lo
	rec.BudgetMax = &hi

	opp, err := Normalize(rec, testNow)
	require.NoError(t, err)
	require.Equal(t, 20000.0, *opp.BudgetMin)
	require.Equal(t, 100000.0, *opp.BudgetMax)
}

func TestNormalizeDeduplicatesKeywords(t *testing.T) {
	rec := validRecord()
	rec.Keywords = []string{" AI ", "ai", "Robotics", "robotics", ""}

	opp, err := Normalize(rec, testNow)
	require.NoError(t, err)
	require.Equal(t, []string{"AI", "Robotics"}, opp.Keywords)
}

func TestNormalizeStripsHTMLFromDescription(t *testing.T) {
	rec := validRecord()
	rec.Description = `<p>Funding for <script>alert(1)</script><b>AI</b> projects</p>`

	opp, err := Normalize(rec, testNow)
	require.NoError(t, err)
	require.NotContains(t, opp.Description, "<script>")
	require.Contains(t, opp.Description, "AI")
}
