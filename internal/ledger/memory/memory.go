// Package memory provides an in-process ledger store for development and
// tests. Every mutation holds the write lock for its whole duration, which
// gives the same isolation a serializable transaction would.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

type Store struct {
	mu         sync.RWMutex
	categories map[string]core.Category
	incomes    map[string]core.IncomeEntry
	expenses   map[string]core.ExpenseEntry

	now func() time.Time
	// cascadeStep runs between removing the dependents and removing the
	// category. Tests use it to simulate a crash in the middle.
	cascadeStep func() error
}

func New() *Store {
	return &Store{
		categories: make(map[string]core.Category),
		incomes:    make(map[string]core.IncomeEntry),
		expenses:   make(map[string]core.ExpenseEntry),
		now:        time.Now,
	}
}

// ListEntries returns the owner's entries ordered by date, then id.
func (s *Store) ListEntries(_ context.Context, ownerID string, w *core.Window) (core.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries(ownerID, w), nil
}

func (s *Store) ListCategories(_ context.Context, ownerID string) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownerCategories(ownerID), nil
}

// LoadSnapshot reads entries and categories under a single read lock.
func (s *Store) LoadSnapshot(_ context.Context, ownerID string, w *core.Window) (core.Ledger, []core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries(ownerID, w), s.ownerCategories(ownerID), nil
}

func (s *Store) entries(ownerID string, w *core.Window) core.Ledger {
	var l core.Ledger
	for _, in := range s.incomes {
		if in.OwnerID == ownerID && (w == nil || w.Contains(in.Date)) {
			l.Incomes = append(l.Incomes, in)
		}
	}
	for _, ex := range s.expenses {
		if ex.OwnerID == ownerID && (w == nil || w.Contains(ex.Date)) {
			l.Expenses = append(l.Expenses, ex)
		}
	}
	sort.Slice(l.Incomes, func(i, j int) bool {
		return entryLess(l.Incomes[i].Date, l.Incomes[i].ID, l.Incomes[j].Date, l.Incomes[j].ID)
	})
	sort.Slice(l.Expenses, func(i, j int) bool {
		return entryLess(l.Expenses[i].Date, l.Expenses[i].ID, l.Expenses[j].Date, l.Expenses[j].ID)
	})
	return l
}

func (s *Store) ownerCategories(ownerID string) []core.Category {
	out := make([]core.Category, 0)
	for _, c := range s.categories {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) GetCategory(_ context.Context, ownerID, categoryID string) (core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupCategory(ownerID, categoryID)
}

func (s *Store) CountExpensesForCategory(_ context.Context, ownerID, categoryID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countDependents(ownerID, categoryID), nil
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := s.now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) UpdateCategory(_ context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.lookupCategory(c.OwnerID, c.ID)
	if err != nil {
		return core.Category{}, err
	}
	cur.Name = c.Name
	cur.Budget = c.Budget
	cur.UpdatedAt = s.now().UTC()
	s.categories[cur.ID] = cur
	return cur, nil
}

func (s *Store) DeleteCategoryIfUnused(_ context.Context, ownerID, categoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookupCategory(ownerID, categoryID); err != nil {
		return err
	}
	if n := s.countDependents(ownerID, categoryID); n > 0 {
		return &core.ConflictError{CategoryID: categoryID, Dependents: n}
	}
	delete(s.categories, categoryID)
	return nil
}

// DeleteCategoryCascade works on copies of the maps and swaps them in only
// after every step succeeded, so a failure leaves the store untouched.
func (s *Store) DeleteCategoryCascade(_ context.Context, ownerID, categoryID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookupCategory(ownerID, categoryID); err != nil {
		return 0, err
	}

	expenses := maps.Clone(s.expenses)
	removed := 0
	for id, ex := range expenses {
		if ex.OwnerID == ownerID && ex.CategoryID == categoryID {
			delete(expenses, id)
			removed++
		}
	}
	if s.cascadeStep != nil {
		if err := s.cascadeStep(); err != nil {
			return 0, core.WrapStore("delete category cascade", err)
		}
	}
	categories := maps.Clone(s.categories)
	delete(categories, categoryID)

	s.expenses, s.categories = expenses, categories
	return removed, nil
}

func (s *Store) AddIncome(_ context.Context, e core.IncomeEntry) (core.IncomeEntry, error) {
	if err := e.Validate(); err != nil {
		return core.IncomeEntry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.incomes[e.ID] = e
	return e, nil
}

func (s *Store) AddExpense(_ context.Context, e core.ExpenseEntry) (core.ExpenseEntry, error) {
	if err := e.Validate(); err != nil {
		return core.ExpenseEntry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookupCategory(e.OwnerID, e.CategoryID); err != nil {
		return core.ExpenseEntry{}, core.Invalid("categoryId", core.ErrUnknownCategory)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.expenses[e.ID] = e
	return e, nil
}

func (s *Store) DeleteEntry(_ context.Context, ownerID, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if in, ok := s.incomes[entryID]; ok && in.OwnerID == ownerID {
		delete(s.incomes, entryID)
		return nil
	}
	if ex, ok := s.expenses[entryID]; ok && ex.OwnerID == ownerID {
		delete(s.expenses, entryID)
		return nil
	}
	return &core.NotFoundError{Kind: "entry", ID: entryID}
}

func (s *Store) ListOwners(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, c := range s.categories {
		seen[c.OwnerID] = struct{}{}
	}
	for _, in := range s.incomes {
		seen[in.OwnerID] = struct{}{}
	}
	for _, ex := range s.expenses {
		seen[ex.OwnerID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) lookupCategory(ownerID, categoryID string) (core.Category, error) {
	c, ok := s.categories[categoryID]
	if !ok || c.OwnerID != ownerID {
		return core.Category{}, &core.NotFoundError{Kind: "category", ID: categoryID}
	}
	return c, nil
}

func (s *Store) countDependents(ownerID, categoryID string) int {
	n := 0
	for _, ex := range s.expenses {
		if ex.OwnerID == ownerID && ex.CategoryID == categoryID {
			n++
		}
	}
	return n
}

func entryLess(ad time.Time, aid string, bd time.Time, bid string) bool {
	if !ad.Equal(bd) {
		return ad.Before(bd)
	}
	return aid < bid
}
