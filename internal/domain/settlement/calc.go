package settlement

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

var timeElements = []PayElement{RegularTime, Overtime1_5x, Overtime2x, Overtime3x}

type bucket struct {
	hours   decimal.Decimal
	sources []SourceRecord
}

// Calculate turns time entries and leave transactions into pay element
// summaries. Output order is stable: employees ascending, time elements
// first, then leave rows by (date, id).
func Calculate(in Input) (Result, error) {
	entries := append([]TimeEntry(nil), in.Entries...)
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.Before(entries[j].Date)
		}
		return entries[i].ID < entries[j].ID
	})
	leave := append([]LeaveTransaction(nil), in.Leave...)
	sort.SliceStable(leave, func(i, j int) bool {
		if !leave[i].Date.Equal(leave[j].Date) {
			return leave[i].Date.Before(leave[j].Date)
		}
		return leave[i].ID < leave[j].ID
	})

	perEmployee := map[string]map[PayElement]*bucket{}
	for _, e := range entries {
		if _, ok := in.Rates[e.EmployeeID]; !ok {
			return Result{}, fmt.Errorf("%w: %s", ErrMissingCompensation, e.EmployeeID)
		}
		buckets, ok := perEmployee[e.EmployeeID]
		if !ok {
			buckets = map[PayElement]*bucket{}
			perEmployee[e.EmployeeID] = buckets
		}
		for element, hours := range decompose(e) {
			if !hours.IsPositive() {
				continue
			}
			b, ok := buckets[element]
			if !ok {
				b = &bucket{}
				buckets[element] = b
			}
			b.hours = b.hours.Add(hours)
			b.sources = append(b.sources, SourceRecord{ID: e.ID, Hours: hours, Date: e.Date.Format(dateLayout)})
		}
	}

	leaveByEmployee := map[string][]LeaveTransaction{}
	for _, tx := range leave {
		leaveByEmployee[tx.EmployeeID] = append(leaveByEmployee[tx.EmployeeID], tx)
	}

	employees := make([]string, 0, len(perEmployee)+len(leaveByEmployee))
	for id := range perEmployee {
		employees = append(employees, id)
	}
	for id := range leaveByEmployee {
		if _, ok := perEmployee[id]; !ok {
			employees = append(employees, id)
		}
	}
	sort.Strings(employees)

	multipliers := map[PayElement]decimal.Decimal{
		RegularTime:  decimal.NewFromInt(1),
		Overtime1_5x: in.Rules.Tier1,
		Overtime2x:   in.Rules.Tier2,
		Overtime3x:   in.Rules.Tier3,
	}

	var res Result
	for _, employeeID := range employees {
		rate := in.Rates[employeeID]
		for _, element := range timeElements {
			b, ok := perEmployee[employeeID][element]
			if !ok {
				continue
			}
			mult := multipliers[element]
			res.Summaries = append(res.Summaries, Summary{
				FinalizationID: in.FinalizationID,
				EmployeeID:     employeeID,
				PayElement:     element,
				Hours:          b.hours,
				Rate:           rate,
				Multiplier:     mult,
				GrossAmount:    b.hours.Mul(rate).Mul(mult).Round(moneyPlaces),
				SourceRecords:  b.sources,
			})
		}
		for _, tx := range leaveByEmployee[employeeID] {
			txRate := rate
			if tx.Rate.Valid {
				txRate = tx.Rate.Decimal
			}
			res.Summaries = append(res.Summaries, Summary{
				FinalizationID: in.FinalizationID,
				EmployeeID:     employeeID,
				PayElement:     leaveElement(tx.LeaveKind),
				SourceKey:      tx.ID,
				Hours:          tx.Hours,
				Rate:           txRate,
				Multiplier:     tx.PaymentPercentage.Div(hundred),
				GrossAmount:    tx.GrossAmount,
				SourceRecords:  []SourceRecord{{ID: tx.ID, Hours: tx.Hours, Date: tx.Date.Format(dateLayout)}},
			})
		}
	}
	res.TotalGross = Total(res.Summaries)
	return res, nil
}

// decompose splits one entry into regular hours and the three overtime bands.
func decompose(e TimeEntry) map[PayElement]decimal.Decimal {
	ot := decimal.Max(e.OvertimeHours, decimal.Zero)
	regular := decimal.Max(e.TotalHours.Sub(ot), decimal.Zero)

	tier1 := decimal.Min(ot, tier1Band)
	rest := ot.Sub(tier1)
	tier2 := decimal.Min(rest, tier2Band)
	tier3 := rest.Sub(tier2)

	return map[PayElement]decimal.Decimal{
		RegularTime:  regular,
		Overtime1_5x: tier1,
		Overtime2x:   tier2,
		Overtime3x:   tier3,
	}
}
