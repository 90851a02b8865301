package core

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxCategoryNameLen is the maximum category name length in runes.
const MaxCategoryNameLen = 50

const (
	OneTime   ExpenseKind = "one_time"
	Recurring ExpenseKind = "recurring"
)

const (
	PolicyBlock   DeletePolicy = "block"
	PolicyCascade DeletePolicy = "cascade"
)

type (
	// ExpenseKind is stored as a flag. Recurring entries are never expanded
	// into scheduled occurrences.
	ExpenseKind string

	// DeletePolicy selects what happens to dependent expenses when a category
	// is deleted. There is no default.
	DeletePolicy string

	Category struct {
		ID        string    `json:"id"`
		OwnerID   string    `json:"ownerId"`
		Name      string    `json:"name"`
		Budget    Money     `json:"budget"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// CategoryPatch carries the fields to change; nil fields stay untouched.
	CategoryPatch struct {
		Name   *string
		Budget *Money
	}

	IncomeEntry struct {
		ID          string    `json:"id"`
		OwnerID     string    `json:"ownerId"`
		Amount      Money     `json:"amount"`
		Date        time.Time `json:"date"`
		Source      string    `json:"source"`
		Description string    `json:"description,omitempty"`
	}

	ExpenseEntry struct {
		ID          string      `json:"id"`
		OwnerID     string      `json:"ownerId"`
		Amount      Money       `json:"amount"`
		Date        time.Time   `json:"date"`
		CategoryID  string      `json:"categoryId"`
		Kind        ExpenseKind `json:"kind"`
		Description string      `json:"description,omitempty"`
	}

	// Ledger is a snapshot of one owner's entries.
	Ledger struct {
		Incomes  []IncomeEntry
		Expenses []ExpenseEntry
	}

	// Window is the half-open interval [Start, End).
	Window struct {
		Start time.Time
		End   time.Time
	}
)

// ParseDeletePolicy maps text to a DeletePolicy. Empty or unknown text is a
// ValidationError.
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	p := DeletePolicy(strings.ToLower(strings.TrimSpace(s)))
	if err := p.Validate(); err != nil {
		return "", err
	}
	return p, nil
}

func (p DeletePolicy) Validate() error {
	switch p {
	case PolicyBlock, PolicyCascade:
		return nil
	}
	return Invalid("policy", ErrInvalidPolicy)
}

func (k ExpenseKind) Validate() error {
	switch k {
	case OneTime, Recurring:
		return nil
	}
	return Invalid("kind", ErrInvalidKind)
}

// NormalizeCategoryName trims the name and checks its length.
func NormalizeCategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", Invalid("name", ErrEmptyName)
	}
	if utf8.RuneCountInString(name) > MaxCategoryNameLen {
		return "", Invalid("name", ErrNameTooLong)
	}
	return name, nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.OwnerID) == "" {
		return Invalid("ownerId", ErrMissingOwner)
	}
	if _, err := NormalizeCategoryName(c.Name); err != nil {
		return err
	}
	if c.Budget.IsNegative() {
		return Invalid("budget", ErrNegativeBudget)
	}
	if c.Budget.Cents > MaxCents {
		return Invalid("budget", ErrInvalidAmount)
	}
	return nil
}

func (e IncomeEntry) Validate() error {
	if strings.TrimSpace(e.OwnerID) == "" {
		return Invalid("ownerId", ErrMissingOwner)
	}
	if err := e.Amount.Validate(); err != nil {
		return Invalid("amount", err)
	}
	if e.Date.IsZero() {
		return Invalid("date", ErrInvalidDate)
	}
	if strings.TrimSpace(e.Source) == "" {
		return Invalid("source", ErrEmptySource)
	}
	return nil
}

func (e ExpenseEntry) Validate() error {
	if strings.TrimSpace(e.OwnerID) == "" {
		return Invalid("ownerId", ErrMissingOwner)
	}
	if err := e.Amount.Validate(); err != nil {
		return Invalid("amount", err)
	}
	if e.Date.IsZero() {
		return Invalid("date", ErrInvalidDate)
	}
	if strings.TrimSpace(e.CategoryID) == "" {
		return Invalid("categoryId", ErrUnknownCategory)
	}
	return e.Kind.Validate()
}

// NewWindow builds a window and rejects empty or inverted intervals.
func NewWindow(start, end time.Time) (Window, error) {
	w := Window{Start: start, End: end}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() || !w.Start.Before(w.End) {
		return Invalid("window", ErrInvalidWindow)
	}
	return nil
}

// Contains reports whether t falls in [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// MonthStart returns midnight of the first day of t's month in loc.
func MonthStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}

// MonthWindow covers the calendar month containing t in loc.
func MonthWindow(t time.Time, loc *time.Location) Window {
	start := MonthStart(t, loc)
	return Window{Start: start, End: start.AddDate(0, 1, 0)}
}

// TrailingMonths covers n calendar months in loc ending with the month that
// contains now. n below 1 is treated as 1.
func TrailingMonths(now time.Time, n int, loc *time.Location) Window {
	if n < 1 {
		n = 1
	}
	end := MonthStart(now, loc).AddDate(0, 1, 0)
	return Window{Start: end.AddDate(0, -n, 0), End: end}
}

// Filter returns the entries of l that fall inside w.
func (l Ledger) Filter(w Window) Ledger {
	var out Ledger
	for _, in := range l.Incomes {
		if w.Contains(in.Date) {
			out.Incomes = append(out.Incomes, in)
		}
	}
	for _, ex := range l.Expenses {
		if w.Contains(ex.Date) {
			out.Expenses = append(out.Expenses, ex)
		}
	}
	return out
}

// IsEmpty reports whether the ledger has no entries.
func (l Ledger) IsEmpty() bool {
	return len(l.Incomes) == 0 && len(l.Expenses) == 0
}
