package settlement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func day(d int) time.Time {
	return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
}

func byElement(summaries []Summary, employeeID string) map[PayElement]Summary {
	out := map[PayElement]Summary{}
	for _, s := range summaries {
		if s.EmployeeID == employeeID && s.SourceKey == "" {
			out[s.PayElement] = s
		}
	}
	return out
}

func TestCalculateOvertimeTiers(t *testing.T) {
	res, err := Calculate(Input{
		FinalizationID: "fin-1",
		Entries: []TimeEntry{
			{ID: "te-1", EmployeeID: "emp-1", Date: day(2), TotalHours: dec("14"), OvertimeHours: dec("10")},
		},
		Rates: map[string]decimal.Decimal{"emp-1": dec("20")},
		Rules: DefaultOvertimeRules(),
	})
	require.NoError(t, err)
	require.Len(t, res.Summaries, 4)

	rows := byElement(res.Summaries, "emp-1")
	assertDecimal(t, "4", rows[RegularTime].Hours)
	assertDecimal(t, "80", rows[RegularTime].GrossAmount)
	assertDecimal(t, "4", rows[Overtime1_5x].Hours)
	assertDecimal(t, "120", rows[Overtime1_5x].GrossAmount)
	assertDecimal(t, "4", rows[Overtime2x].Hours)
	assertDecimal(t, "160", rows[Overtime2x].GrossAmount)
	assertDecimal(t, "2", rows[Overtime3x].Hours)
	assertDecimal(t, "3", rows[Overtime3x].Multiplier)
	assertDecimal(t, "120", rows[Overtime3x].GrossAmount)
	assertDecimal(t, "480", res.TotalGross)

	assert.Equal(t, []SourceRecord{{ID: "te-1", Hours: dec("2"), Date: "2026-03-02"}}, rows[Overtime3x].SourceRecords)
}

func TestCalculateBandsEachEntrySeparately(t *testing.T) {
	res, err := Calculate(Input{
		Entries: []TimeEntry{
			{ID: "te-2", EmployeeID: "emp-1", Date: day(3), TotalHours: dec("11"), OvertimeHours: dec("3")},
			{ID: "te-1", EmployeeID: "emp-1", Date: day(2), TotalHours: dec("12"), OvertimeHours: dec("5")},
		},
		Rates: map[string]decimal.Decimal{"emp-1": dec("10")},
		Rules: DefaultOvertimeRules(),
	})
	require.NoError(t, err)

	rows := byElement(res.Summaries, "emp-1")
	assertDecimal(t, "15", rows[RegularTime].Hours)
	assertDecimal(t, "7", rows[Overtime1_5x].Hours)
	assertDecimal(t, "1", rows[Overtime2x].Hours)
	_, hasTier3 := rows[Overtime3x]
	assert.False(t, hasTier3, "empty elements produce no row")

	sources := rows[Overtime1_5x].SourceRecords
	require.Len(t, sources, 2)
	assert.Equal(t, "te-1", sources[0].ID)
	assert.Equal(t, "te-2", sources[1].ID)
}

func TestCalculateClampsNegativeRegularHours(t *testing.T) {
	res, err := Calculate(Input{
		Entries: []TimeEntry{{ID: "te-1", EmployeeID: "emp-1", Date: day(2), TotalHours: dec("2"), OvertimeHours: dec("3")}},
		Rates:   map[string]decimal.Decimal{"emp-1": dec("10")},
		Rules:   DefaultOvertimeRules(),
	})
	require.NoError(t, err)
	rows := byElement(res.Summaries, "emp-1")
	_, hasRegular := rows[RegularTime]
	assert.False(t, hasRegular)
	assertDecimal(t, "3", rows[Overtime1_5x].Hours)
}

func TestCalculateUsesCompanyMultipliers(t *testing.T) {
	res, err := Calculate(Input{
		Entries: []TimeEntry{{ID: "te-1", EmployeeID: "emp-1", Date: day(2), TotalHours: dec("10"), OvertimeHours: dec("2")}},
		Rates:   map[string]decimal.Decimal{"emp-1": dec("15.50")},
		Rules:   OvertimeRules{Tier1: dec("1.25"), Tier2: dec("1.75"), Tier3: dec("2.5")},
	})
	require.NoError(t, err)
	rows := byElement(res.Summaries, "emp-1")
	assertDecimal(t, "1.25", rows[Overtime1_5x].Multiplier)
	assertDecimal(t, "38.75", rows[Overtime1_5x].GrossAmount)
	assertDecimal(t, "124", rows[RegularTime].GrossAmount)
}

func TestCalculateRoundsHalfUp(t *testing.T) {
	res, err := Calculate(Input{
		Entries: []TimeEntry{{ID: "te-1", EmployeeID: "emp-1", Date: day(2), TotalHours: dec("0.5"), OvertimeHours: dec("0")}},
		Rates:   map[string]decimal.Decimal{"emp-1": dec("10.01")},
		Rules:   DefaultOvertimeRules(),
	})
	require.NoError(t, err)
	assertDecimal(t, "5.01", res.Summaries[0].GrossAmount)
}

func TestCalculateLeavePassThrough(t *testing.T) {
	res, err := Calculate(Input{
		Rates: map[string]decimal.Decimal{"emp-1": dec("20")},
		Rules: DefaultOvertimeRules(),
		Leave: []LeaveTransaction{
			{ID: "lt-2", EmployeeID: "emp-1", LeaveKind: "sick", Date: day(5), Hours: dec("8"), PaymentPercentage: dec("100"), GrossAmount: dec("160")},
			{ID: "lt-1", EmployeeID: "emp-1", LeaveKind: "paid", Date: day(4), Hours: dec("10"), PaymentPercentage: dec("50"), GrossAmount: dec("100"), Rate: decimal.NewNullDecimal(dec("25"))},
			{ID: "lt-3", EmployeeID: "emp-1", LeaveKind: "unpaid", Date: day(5), Hours: dec("8"), PaymentPercentage: dec("0"), GrossAmount: dec("0")},
			{ID: "lt-4", EmployeeID: "emp-1", LeaveKind: "parental", Date: day(6), Hours: dec("8"), PaymentPercentage: dec("80"), GrossAmount: dec("128")},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Summaries, 4)

	first := res.Summaries[0]
	assert.Equal(t, PaidLeave, first.PayElement)
	assert.Equal(t, "lt-1", first.SourceKey)
	assertDecimal(t, "0.5", first.Multiplier)
	assertDecimal(t, "100", first.GrossAmount)
	assertDecimal(t, "25", first.Rate)

	assert.Equal(t, SickLeave, res.Summaries[1].PayElement)
	assertDecimal(t, "20", res.Summaries[1].Rate)
	assert.Equal(t, UnpaidDeduction, res.Summaries[2].PayElement)
	assert.Equal(t, OtherLeave, res.Summaries[3].PayElement)
	assertDecimal(t, "388", res.TotalGross)
}

func TestCalculateMissingCompensation(t *testing.T) {
	_, err := Calculate(Input{
		Entries: []TimeEntry{{ID: "te-1", EmployeeID: "emp-2", Date: day(2), TotalHours: dec("8")}},
		Rates:   map[string]decimal.Decimal{"emp-1": dec("20")},
		Rules:   DefaultOvertimeRules(),
	})
	require.ErrorIs(t, err, ErrMissingCompensation)
	assert.Contains(t, err.Error(), "emp-2")
}

func TestCalculateIsDeterministic(t *testing.T) {
	in := Input{
		FinalizationID: "fin-1",
		Entries: []TimeEntry{
			{ID: "b", EmployeeID: "emp-2", Date: day(3), TotalHours: dec("9"), OvertimeHours: dec("1")},
			{ID: "a", EmployeeID: "emp-1", Date: day(3), TotalHours: dec("8")},
			{ID: "c", EmployeeID: "emp-1", Date: day(2), TotalHours: dec("13"), OvertimeHours: dec("9")},
		},
		Rates: map[string]decimal.Decimal{"emp-1": dec("20"), "emp-2": dec("30")},
		Rules: DefaultOvertimeRules(),
		Leave: []LeaveTransaction{
			{ID: "lt-1", EmployeeID: "emp-3", LeaveKind: "paid", Date: day(4), Hours: dec("8"), PaymentPercentage: dec("100"), GrossAmount: dec("200")},
		},
	}
	first, err := Calculate(in)
	require.NoError(t, err)

	in.Entries[0], in.Entries[2] = in.Entries[2], in.Entries[0]
	second, err := Calculate(in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "emp-1", first.Summaries[0].EmployeeID)
	assert.Equal(t, "emp-3", first.Summaries[len(first.Summaries)-1].EmployeeID)
}
