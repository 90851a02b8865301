// Package aggregate turns one owner's ledger snapshot into summary views:
// totals, a category breakdown and a month-bucketed expense trend.
//
// Every function here is pure. Input is never mutated and the only failure
// is a ValidationError for entries or categories owned by someone else.
package aggregate

import (
	"sort"
	"time"

	"fintrack/internal/core"
)

// MonthLabelLayout formats trend bucket labels (YYYY-MM).
const MonthLabelLayout = "2006-01"

// Totals sums incomes and expenses. An empty ledger yields zeros.
func Totals(ownerID string, l core.Ledger) (core.Totals, error) {
	if err := checkOwner(ownerID, l, nil); err != nil {
		return core.Totals{}, err
	}
	return totals(l), nil
}

func totals(l core.Ledger) core.Totals {
	var t core.Totals
	for _, in := range l.Incomes {
		t.TotalIncome = t.TotalIncome.Add(in.Amount)
	}
	for _, ex := range l.Expenses {
		t.TotalExpense = t.TotalExpense.Add(ex.Amount)
	}
	t.Balance = t.TotalIncome.Sub(t.TotalExpense)
	return t
}

// Breakdown groups expenses by category id. Expenses whose category is not
// among cats land in the Unknown bucket, which is always last. Other rows are
// ordered by amount descending, then name, then id.
func Breakdown(ownerID string, l core.Ledger, cats []core.Category) (core.CategoryBreakdown, error) {
	if err := checkOwner(ownerID, l, cats); err != nil {
		return core.CategoryBreakdown{}, err
	}
	return breakdown(l, cats), nil
}

func breakdown(l core.Ledger, cats []core.Category) core.CategoryBreakdown {
	if len(l.Expenses) == 0 {
		return core.NoExpenses()
	}

	names := make(map[string]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}

	sums := make(map[string]core.Money)
	var (
		unknown    core.Money
		hasUnknown bool
	)
	for _, ex := range l.Expenses {
		if _, ok := names[ex.CategoryID]; !ok {
			unknown = unknown.Add(ex.Amount)
			hasUnknown = true
			continue
		}
		sums[ex.CategoryID] = sums[ex.CategoryID].Add(ex.Amount)
	}

	items := make([]core.CategoryAmount, 0, len(sums)+1)
	for id, amount := range sums {
		items = append(items, core.CategoryAmount{CategoryID: id, CategoryName: names[id], Amount: amount})
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if c := a.Amount.Cmp(b.Amount); c != 0 {
			return c > 0
		}
		if a.CategoryName != b.CategoryName {
			return a.CategoryName < b.CategoryName
		}
		return a.CategoryID < b.CategoryID
	})
	if hasUnknown {
		items = append(items, core.CategoryAmount{CategoryName: core.UnknownCategoryName, Amount: unknown})
	}
	return core.CategoryBreakdown{State: core.BreakdownPopulated, Items: items}
}

// Trend buckets expenses by calendar month in loc across every month touched
// by w. Months without expenses are present with Money(0); expenses outside w
// are ignored.
func Trend(ownerID string, l core.Ledger, w core.Window, loc *time.Location) ([]core.TrendPoint, error) {
	if err := checkOwner(ownerID, l, nil); err != nil {
		return nil, err
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return trend(l, w, loc), nil
}

func trend(l core.Ledger, w core.Window, loc *time.Location) []core.TrendPoint {
	if loc == nil {
		loc = time.UTC
	}
	first := core.MonthStart(w.Start, loc)
	last := core.MonthStart(w.End.Add(-time.Nanosecond), loc)

	var points []core.TrendPoint
	index := make(map[string]int)
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		label := m.Format(MonthLabelLayout)
		index[label] = len(points)
		points = append(points, core.TrendPoint{Label: label, Start: m})
	}

	for _, ex := range l.Expenses {
		if !w.Contains(ex.Date) {
			continue
		}
		i, ok := index[ex.Date.In(loc).Format(MonthLabelLayout)]
		if !ok {
			continue
		}
		points[i].Amount = points[i].Amount.Add(ex.Amount)
	}
	return points
}

// Summarize builds all three views. Totals and breakdown cover the whole
// ledger passed in; the trend covers trendWindow.
func Summarize(ownerID string, l core.Ledger, cats []core.Category, trendWindow core.Window, loc *time.Location) (core.Summary, error) {
	if err := checkOwner(ownerID, l, cats); err != nil {
		return core.Summary{}, err
	}
	if err := trendWindow.Validate(); err != nil {
		return core.Summary{}, err
	}
	return core.Summary{
		Totals:            totals(l),
		CategoryBreakdown: breakdown(l, cats),
		Trend:             trend(l, trendWindow, loc),
	}, nil
}

// checkOwner rejects any record that belongs to another owner. Such input is
// a caller bug, not a data condition.
func checkOwner(ownerID string, l core.Ledger, cats []core.Category) error {
	if ownerID == "" {
		return core.Invalid("ownerId", core.ErrMissingOwner)
	}
	for _, in := range l.Incomes {
		if in.OwnerID != ownerID {
			return core.Invalid("ownerId", core.ErrOwnerMismatch)
		}
	}
	for _, ex := range l.Expenses {
		if ex.OwnerID != ownerID {
			return core.Invalid("ownerId", core.ErrOwnerMismatch)
		}
	}
	for _, c := range cats {
		if c.OwnerID != ownerID {
			return core.Invalid("ownerId", core.ErrOwnerMismatch)
		}
	}
	return nil
}
