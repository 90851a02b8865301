package services

import (
	"context"
	"fmt"
	"strings"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
)

// CategoryStore is what the lifecycle manager needs from a ledger store.
type CategoryStore interface {
	ledger.CategoryReader
	ledger.CategoryWriter
}

// DeleteResult describes a completed category deletion.
type DeleteResult struct {
	CategoryID      string            `json:"categoryId"`
	Policy          core.DeletePolicy `json:"policy"`
	RemovedExpenses int               `json:"removedExpenses"`
}

// CategoryManager owns the category lifecycle: creation, renames and budget
// changes, and deletion under an explicit policy.
type CategoryManager struct {
	store  CategoryStore
	events EventPublisher
}

// NewCategoryManager builds a manager. events may be nil.
func NewCategoryManager(store CategoryStore, events EventPublisher) *CategoryManager {
	return &CategoryManager{store: store, events: events}
}

// Create adds a category. A nil budget means untracked (zero).
func (m *CategoryManager) Create(ctx context.Context, ownerID, name string, budget *core.Money) (core.Category, error) {
	c := core.Category{OwnerID: strings.TrimSpace(ownerID)}
	if budget != nil {
		c.Budget = *budget
	}
	n, err := core.NormalizeCategoryName(name)
	if err != nil {
		return core.Category{}, err
	}
	c.Name = n
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}

	created, err := m.store.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}

	log.FromContext(ctx).InfoContext(ctx, "Category created",
		log.FieldOwnerID, created.OwnerID,
		log.FieldCategoryID, created.ID)

	ev := amqp.NewLedgerEvent(amqp.EventCategoryCreated, created.OwnerID)
	ev.CategoryID = created.ID
	publish(ctx, m.events, ev)

	return created, nil
}

// Update applies patch to a category the owner holds. An empty patch returns
// the category unchanged.
func (m *CategoryManager) Update(ctx context.Context, ownerID, categoryID string, patch core.CategoryPatch) (core.Category, error) {
	cur, err := m.store.GetCategory(ctx, ownerID, categoryID)
	if err != nil {
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}
	if patch.Name == nil && patch.Budget == nil {
		return cur, nil
	}

	if patch.Name != nil {
		n, err := core.NormalizeCategoryName(*patch.Name)
		if err != nil {
			return core.Category{}, err
		}
		cur.Name = n
	}
	if patch.Budget != nil {
		cur.Budget = *patch.Budget
	}
	if err := cur.Validate(); err != nil {
		return core.Category{}, err
	}

	updated, err := m.store.UpdateCategory(ctx, cur)
	if err != nil {
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}

	log.FromContext(ctx).InfoContext(ctx, "Category updated",
		log.FieldOwnerID, updated.OwnerID,
		log.FieldCategoryID, updated.ID)

	ev := amqp.NewLedgerEvent(amqp.EventCategoryUpdated, updated.OwnerID)
	ev.CategoryID = updated.ID
	publish(ctx, m.events, ev)

	return updated, nil
}

// Delete removes a category. Under PolicyBlock any dependent expense makes it
// fail with a ConflictError and nothing changes. Under PolicyCascade the
// dependent expenses and the category go in one store transaction.
func (m *CategoryManager) Delete(ctx context.Context, ownerID, categoryID string, policy core.DeletePolicy) (DeleteResult, error) {
	if err := policy.Validate(); err != nil {
		return DeleteResult{}, err
	}
	if _, err := m.store.GetCategory(ctx, ownerID, categoryID); err != nil {
		return DeleteResult{}, fmt.Errorf("delete category: %w", err)
	}

	dependents, err := m.store.CountExpensesForCategory(ctx, ownerID, categoryID)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("count dependent expenses: %w", err)
	}

	res := DeleteResult{CategoryID: categoryID, Policy: policy}
	switch policy {
	case core.PolicyBlock:
		if dependents > 0 {
			return DeleteResult{}, &core.ConflictError{CategoryID: categoryID, Dependents: dependents}
		}
		// The store re-counts inside its transaction.
		if err := m.store.DeleteCategoryIfUnused(ctx, ownerID, categoryID); err != nil {
			return DeleteResult{}, fmt.Errorf("delete category: %w", err)
		}
	case core.PolicyCascade:
		removed, err := m.store.DeleteCategoryCascade(ctx, ownerID, categoryID)
		if err != nil {
			return DeleteResult{}, fmt.Errorf("delete category cascade: %w", err)
		}
		res.RemovedExpenses = removed
	}

	log.NewStructuredLogger(log.FromContext(ctx)).
		LogCategoryDeleted(ctx, ownerID, categoryID, string(policy), res.RemovedExpenses)

	ev := amqp.NewLedgerEvent(amqp.EventCategoryDeleted, ownerID)
	ev.CategoryID = categoryID
	ev.Policy = string(policy)
	ev.RemovedExpenses = res.RemovedExpenses
	publish(ctx, m.events, ev)

	return res, nil
}

func (m *CategoryManager) List(ctx context.Context, ownerID string) ([]core.Category, error) {
	cats, err := m.store.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

func (m *CategoryManager) Get(ctx context.Context, ownerID, categoryID string) (core.Category, error) {
	c, err := m.store.GetCategory(ctx, ownerID, categoryID)
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

// BudgetStatus compares spent, the category's expense sum over some period,
// against its budget.
func (m *CategoryManager) BudgetStatus(ctx context.Context, ownerID, categoryID string, spent core.Money) (core.BudgetStatus, error) {
	c, err := m.store.GetCategory(ctx, ownerID, categoryID)
	if err != nil {
		return core.BudgetStatus{}, fmt.Errorf("budget status: %w", err)
	}
	return core.NewBudgetStatus(c, spent), nil
}
