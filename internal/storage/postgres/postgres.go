// Package postgres implements the ledger store on PostgreSQL through a pgx
// connection pool. Mutations that check-then-write run in SERIALIZABLE
// transactions.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fintrack/internal/core"
)

var (
	serializable = pgx.TxOptions{IsoLevel: pgx.Serializable}
	snapshotRead = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
)

type Storage struct {
	db  *pgxpool.Pool
	now func() time.Time
	// cascadeStep runs inside the cascade transaction after the dependents
	// are deleted. Tests use it to simulate a crash in the middle.
	cascadeStep func(ctx context.Context, tx pgx.Tx) error
}

// Open runs migrations against databaseURL and connects a pool.
func Open(ctx context.Context, databaseURL string) (*Storage, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewStorage(pool), nil
}

func NewStorage(db *pgxpool.Pool) *Storage {
	return &Storage{db: db, now: time.Now}
}

func (s *Storage) Close() error {
	s.db.Close()
	return nil
}

// === EntryReader ===

func (s *Storage) ListEntries(ctx context.Context, ownerID string, w *core.Window) (core.Ledger, error) {
	return listEntries(ctx, s.db, ownerID, w)
}

// LoadSnapshot reads entries and categories in one REPEATABLE READ
// transaction, so both statements see the same database snapshot.
func (s *Storage) LoadSnapshot(ctx context.Context, ownerID string, w *core.Window) (core.Ledger, []core.Category, error) {
	var (
		l    core.Ledger
		cats []core.Category
	)
	err := pgx.BeginTxFunc(ctx, s.db, snapshotRead, func(tx pgx.Tx) error {
		var err error
		if l, err = listEntries(ctx, tx, ownerID, w); err != nil {
			return err
		}
		cats, err = listCategories(ctx, tx, ownerID)
		return err
	})
	if err != nil {
		return core.Ledger{}, nil, core.WrapStore("load snapshot", err)
	}
	return l, cats, nil
}

func listEntries(ctx context.Context, q queryer, ownerID string, w *core.Window) (core.Ledger, error) {
	var l core.Ledger

	incomeQuery := `SELECT id, owner_id, amount_cents, occurred_at, source, description FROM incomes WHERE owner_id = $1`
	expenseQuery := `SELECT id, owner_id, category_id, amount_cents, occurred_at, kind, description FROM expenses WHERE owner_id = $1`
	args := []any{ownerID}
	if w != nil {
		incomeQuery += ` AND occurred_at >= $2 AND occurred_at < $3`
		expenseQuery += ` AND occurred_at >= $2 AND occurred_at < $3`
		args = append(args, w.Start, w.End)
	}
	incomeQuery += ` ORDER BY occurred_at, id`
	expenseQuery += ` ORDER BY occurred_at, id`

	rows, err := q.Query(ctx, incomeQuery, args...)
	if err != nil {
		return l, core.WrapStore("list incomes", err)
	}
	l.Incomes, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.IncomeEntry, error) {
		var (
			in     core.IncomeEntry
			amount *int64
		)
		err := row.Scan(&in.ID, &in.OwnerID, &amount, &in.Date, &in.Source, &in.Description)
		in.Amount = centsOrZero(amount)
		in.Date = in.Date.UTC()
		return in, err
	})
	if err != nil {
		return l, core.WrapStore("list incomes", err)
	}

	rows, err = q.Query(ctx, expenseQuery, args...)
	if err != nil {
		return l, core.WrapStore("list expenses", err)
	}
	l.Expenses, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.ExpenseEntry, error) {
		var (
			ex     core.ExpenseEntry
			amount *int64
			kind   string
		)
		err := row.Scan(&ex.ID, &ex.OwnerID, &ex.CategoryID, &amount, &ex.Date, &kind, &ex.Description)
		ex.Amount = centsOrZero(amount)
		ex.Kind = core.ExpenseKind(kind)
		ex.Date = ex.Date.UTC()
		return ex, err
	})
	if err != nil {
		return l, core.WrapStore("list expenses", err)
	}
	return l, nil
}

// === CategoryReader ===

func (s *Storage) ListCategories(ctx context.Context, ownerID string) ([]core.Category, error) {
	return listCategories(ctx, s.db, ownerID)
}

func listCategories(ctx context.Context, q queryer, ownerID string) ([]core.Category, error) {
	rows, err := q.Query(ctx, `
		SELECT id, owner_id, name, budget_cents, created_at, updated_at
		FROM categories WHERE owner_id = $1 ORDER BY name, id`, ownerID)
	if err != nil {
		return nil, core.WrapStore("list categories", err)
	}
	cats, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Category, error) {
		return scanCategory(row)
	})
	if err != nil {
		return nil, core.WrapStore("list categories", err)
	}
	if cats == nil {
		cats = []core.Category{}
	}
	return cats, nil
}

func (s *Storage) GetCategory(ctx context.Context, ownerID, categoryID string) (core.Category, error) {
	return getCategory(ctx, s.db, ownerID, categoryID)
}

func (s *Storage) CountExpensesForCategory(ctx context.Context, ownerID, categoryID string) (int, error) {
	n, err := countDependents(ctx, s.db, ownerID, categoryID)
	if err != nil {
		return 0, core.WrapStore("count expenses", err)
	}
	return n, nil
}

// === CategoryWriter ===

func (s *Storage) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := s.now().UTC().Truncate(time.Microsecond)
	c.CreatedAt, c.UpdatedAt = now, now

	_, err := s.db.Exec(ctx, `
		INSERT INTO categories (id, owner_id, name, budget_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.OwnerID, c.Name, c.Budget.Cents, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return core.Category{}, core.WrapStore("create category", err)
	}

	slog.InfoContext(ctx, "Category saved to Postgres", "id", c.ID, "owner_id", c.OwnerID)
	return c, nil
}

func (s *Storage) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	updated := s.now().UTC().Truncate(time.Microsecond)
	row := s.db.QueryRow(ctx, `
		UPDATE categories SET name = $1, budget_cents = $2, updated_at = $3
		WHERE id = $4 AND owner_id = $5
		RETURNING id, owner_id, name, budget_cents, created_at, updated_at`,
		c.Name, c.Budget.Cents, updated, c.ID, c.OwnerID)
	out, err := scanCategory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Category{}, &core.NotFoundError{Kind: "category", ID: c.ID}
	}
	if err != nil {
		return core.Category{}, core.WrapStore("update category", err)
	}
	return out, nil
}

func (s *Storage) DeleteCategoryIfUnused(ctx context.Context, ownerID, categoryID string) error {
	err := pgx.BeginTxFunc(ctx, s.db, serializable, func(tx pgx.Tx) error {
		if _, err := getCategory(ctx, tx, ownerID, categoryID); err != nil {
			return err
		}
		n, err := countDependents(ctx, tx, ownerID, categoryID)
		if err != nil {
			return err
		}
		if n > 0 {
			return &core.ConflictError{CategoryID: categoryID, Dependents: n}
		}
		_, err = tx.Exec(ctx, `DELETE FROM categories WHERE id = $1 AND owner_id = $2`, categoryID, ownerID)
		return err
	})
	if err != nil {
		return core.WrapStore("delete category", err)
	}

	slog.InfoContext(ctx, "Category deleted from Postgres", "id", categoryID, "owner_id", ownerID)
	return nil
}

func (s *Storage) DeleteCategoryCascade(ctx context.Context, ownerID, categoryID string) (int, error) {
	var removed int
	err := pgx.BeginTxFunc(ctx, s.db, serializable, func(tx pgx.Tx) error {
		if _, err := getCategory(ctx, tx, ownerID, categoryID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM expenses WHERE owner_id = $1 AND category_id = $2`, ownerID, categoryID)
		if err != nil {
			return err
		}
		if s.cascadeStep != nil {
			if err := s.cascadeStep(ctx, tx); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM categories WHERE id = $1 AND owner_id = $2`, categoryID, ownerID); err != nil {
			return err
		}
		removed = int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return 0, core.WrapStore("delete category cascade", err)
	}

	slog.InfoContext(ctx, "Category cascade-deleted from Postgres",
		"id", categoryID,
		"owner_id", ownerID,
		"removed_expenses", removed)
	return removed, nil
}

// === EntryWriter ===

func (s *Storage) AddIncome(ctx context.Context, e core.IncomeEntry) (core.IncomeEntry, error) {
	if err := e.Validate(); err != nil {
		return core.IncomeEntry{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO incomes (id, owner_id, amount_cents, occurred_at, source, description)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.OwnerID, e.Amount.Cents, e.Date.UTC(), e.Source, e.Description)
	if err != nil {
		return core.IncomeEntry{}, core.WrapStore("add income", err)
	}
	return e, nil
}

func (s *Storage) AddExpense(ctx context.Context, e core.ExpenseEntry) (core.ExpenseEntry, error) {
	if err := e.Validate(); err != nil {
		return core.ExpenseEntry{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	err := pgx.BeginTxFunc(ctx, s.db, serializable, func(tx pgx.Tx) error {
		if _, err := getCategory(ctx, tx, e.OwnerID, e.CategoryID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return core.Invalid("categoryId", core.ErrUnknownCategory)
			}
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO expenses (id, owner_id, category_id, amount_cents, occurred_at, kind, description)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.ID, e.OwnerID, e.CategoryID, e.Amount.Cents, e.Date.UTC(), string(e.Kind), e.Description)
		return err
	})
	if err != nil {
		return core.ExpenseEntry{}, core.WrapStore("add expense", err)
	}
	return e, nil
}

func (s *Storage) DeleteEntry(ctx context.Context, ownerID, entryID string) error {
	err := pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, table := range []string{"incomes", "expenses"} {
			tag, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1 AND owner_id = $2`, entryID, ownerID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() > 0 {
				return nil
			}
		}
		return &core.NotFoundError{Kind: "entry", ID: entryID}
	})
	return core.WrapStore("delete entry", err)
}

// === OwnerLister ===

func (s *Storage) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT owner_id FROM categories
		UNION SELECT owner_id FROM incomes
		UNION SELECT owner_id FROM expenses
		ORDER BY 1`)
	if err != nil {
		return nil, core.WrapStore("list owners", err)
	}
	owners, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, core.WrapStore("list owners", err)
	}
	return owners, nil
}

// queryer is satisfied by *pgxpool.Pool and pgx.Tx.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getCategory(ctx context.Context, q queryer, ownerID, categoryID string) (core.Category, error) {
	row := q.QueryRow(ctx, `
		SELECT id, owner_id, name, budget_cents, created_at, updated_at
		FROM categories WHERE id = $1 AND owner_id = $2`, categoryID, ownerID)
	c, err := scanCategory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Category{}, &core.NotFoundError{Kind: "category", ID: categoryID}
	}
	if err != nil {
		return core.Category{}, core.WrapStore("get category", err)
	}
	return c, nil
}

func countDependents(ctx context.Context, q queryer, ownerID, categoryID string) (int, error) {
	var n int
	err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM expenses WHERE owner_id = $1 AND category_id = $2`, ownerID, categoryID).Scan(&n)
	return n, err
}

func scanCategory(row pgx.Row) (core.Category, error) {
	var (
		c      core.Category
		budget int64
	)
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &budget, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return core.Category{}, err
	}
	c.Budget = core.Cents(budget)
	c.CreatedAt, c.UpdatedAt = c.CreatedAt.UTC(), c.UpdatedAt.UTC()
	return c, nil
}

// centsOrZero maps NULL amounts from legacy rows to zero.
func centsOrZero(v *int64) core.Money {
	if v == nil {
		return core.Money{}
	}
	return core.Cents(*v)
}
