package core

import "time"

// UnknownCategoryName labels expenses whose category no longer resolves.
const UnknownCategoryName = "Unknown"

const (
	BreakdownPopulated  BreakdownState = "populated"
	BreakdownNoExpenses BreakdownState = "no_expenses"
)

// BreakdownState distinguishes an empty breakdown from a populated one so
// callers never infer it from list length.
type BreakdownState string

type (
	Totals struct {
		TotalIncome  Money `json:"totalIncome"`
		TotalExpense Money `json:"totalExpense"`
		Balance      Money `json:"balance"`
	}

	// CategoryAmount is one breakdown row. The Unknown bucket has an empty
	// CategoryID.
	CategoryAmount struct {
		CategoryID   string `json:"categoryId"`
		CategoryName string `json:"categoryName"`
		Amount       Money  `json:"amount"`
	}

	CategoryBreakdown struct {
		State BreakdownState   `json:"state"`
		Items []CategoryAmount `json:"items"`
	}

	// TrendPoint is one calendar month bucket.
	TrendPoint struct {
		Label  string    `json:"bucketLabel"`
		Start  time.Time `json:"bucketStart"`
		Amount Money     `json:"amount"`
	}

	Summary struct {
		Totals            Totals            `json:"totals"`
		CategoryBreakdown CategoryBreakdown `json:"categoryBreakdown"`
		Trend             []TrendPoint      `json:"trend"`
	}

	BudgetStatus struct {
		CategoryID   string `json:"categoryId"`
		CategoryName string `json:"categoryName"`
		Budget       Money  `json:"budget"`
		Spent        Money  `json:"spent"`
		Remaining    Money  `json:"remaining"`
		Tracked      bool   `json:"tracked"`
		OverBudget   bool   `json:"overBudget"`
	}
)

// NoExpenses is the empty breakdown.
func NoExpenses() CategoryBreakdown {
	return CategoryBreakdown{State: BreakdownNoExpenses, Items: []CategoryAmount{}}
}

func (b CategoryBreakdown) IsEmpty() bool { return b.State == BreakdownNoExpenses }

// Total sums every row including the Unknown bucket.
func (b CategoryBreakdown) Total() Money {
	var total Money
	for _, it := range b.Items {
		total = total.Add(it.Amount)
	}
	return total
}

// Find returns the row for categoryID, if present.
func (b CategoryBreakdown) Find(categoryID string) (CategoryAmount, bool) {
	for _, it := range b.Items {
		if it.CategoryID == categoryID {
			return it, true
		}
	}
	return CategoryAmount{}, false
}

// NewBudgetStatus compares spent against the category budget. A zero budget
// is untracked and never over; otherwise over means strictly greater.
func NewBudgetStatus(c Category, spent Money) BudgetStatus {
	st := BudgetStatus{
		CategoryID:   c.ID,
		CategoryName: c.Name,
		Budget:       c.Budget,
		Spent:        spent,
		Tracked:      c.Budget.IsPositive(),
	}
	if st.Tracked {
		st.Remaining = c.Budget.Sub(spent)
		st.OverBudget = spent.GreaterThan(c.Budget)
	}
	return st
}
