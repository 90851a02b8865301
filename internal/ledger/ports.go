// Package ledger declares the storage ports the ledger core consumes.
//
// Implementations live in ledger/memory, storage (SQLite) and
// storage/postgres. All of them return the core error taxonomy: NotFoundError,
// ConflictError and ValidationError as-is, every driver failure wrapped in a
// StoreError.
package ledger

import (
	"context"

	"fintrack/internal/core"
)

type (
	// EntryReader loads an owner's entries, optionally restricted to a window.
	EntryReader interface {
		ListEntries(ctx context.Context, ownerID string, w *core.Window) (core.Ledger, error)
	}

	CategoryReader interface {
		ListCategories(ctx context.Context, ownerID string) ([]core.Category, error)
		GetCategory(ctx context.Context, ownerID, categoryID string) (core.Category, error)
		CountExpensesForCategory(ctx context.Context, ownerID, categoryID string) (int, error)
	}

	CategoryWriter interface {
		CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
		UpdateCategory(ctx context.Context, c core.Category) (core.Category, error)
		// DeleteCategoryIfUnused re-counts dependents inside its transaction and
		// returns a ConflictError when any exist.
		DeleteCategoryIfUnused(ctx context.Context, ownerID, categoryID string) error
		// DeleteCategoryCascade removes the dependent expenses and then the
		// category as one unit of work, returning how many expenses went.
		DeleteCategoryCascade(ctx context.Context, ownerID, categoryID string) (int, error)
	}

	EntryWriter interface {
		AddIncome(ctx context.Context, e core.IncomeEntry) (core.IncomeEntry, error)
		// AddExpense verifies inside its transaction that the category exists
		// and belongs to the same owner.
		AddExpense(ctx context.Context, e core.ExpenseEntry) (core.ExpenseEntry, error)
		DeleteEntry(ctx context.Context, ownerID, entryID string) error
	}

	// SnapshotReader loads entries and categories in one consistent read, so
	// no category deletion can land between the two.
	SnapshotReader interface {
		LoadSnapshot(ctx context.Context, ownerID string, w *core.Window) (core.Ledger, []core.Category, error)
	}

	// OwnerLister enumerates owners with at least one record. Batch exports
	// use it.
	OwnerLister interface {
		ListOwners(ctx context.Context) ([]string, error)
	}

	// Store is the full port every backend implements.
	Store interface {
		EntryReader
		CategoryReader
		CategoryWriter
		EntryWriter
		SnapshotReader
		OwnerLister
		Close() error
	}
)
