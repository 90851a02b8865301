// Package storage implements the ledger store on SQLite (modernc.org/sqlite)
// with golang-migrate managed schema.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so TEXT comparison orders like time.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
	// cascadeStep runs inside the cascade transaction after the dependents
	// are deleted. Tests use it to simulate a crash in the middle.
	cascadeStep func(ctx context.Context, tx *sql.Tx) error
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Migrate first so the serving connection sees the final schema.
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serialises writers; transactions start IMMEDIATE.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ListEntries implements ledger.EntryReader
func (r *SQLiteRepository) ListEntries(ctx context.Context, ownerID string, w *core.Window) (core.Ledger, error) {
	return listEntries(ctx, r.db, ownerID, w)
}

// ListCategories implements ledger.CategoryReader
func (r *SQLiteRepository) ListCategories(ctx context.Context, ownerID string) ([]core.Category, error) {
	return listCategories(ctx, r.db, ownerID)
}

// LoadSnapshot implements ledger.SnapshotReader. Both reads share one
// transaction, so a concurrent cascade is either fully visible or not at all.
func (r *SQLiteRepository) LoadSnapshot(ctx context.Context, ownerID string, w *core.Window) (core.Ledger, []core.Category, error) {
	var (
		l    core.Ledger
		cats []core.Category
	)
	err := r.withTx(ctx, func(tx *sql.Tx) error {
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

	incomeQuery := `SELECT id, owner_id, amount_cents, occurred_at, source, description FROM incomes WHERE owner_id = ?`
	expenseQuery := `SELECT id, owner_id, category_id, amount_cents, occurred_at, kind, description FROM expenses WHERE owner_id = ?`
	args := []any{ownerID}
	if w != nil {
		incomeQuery += ` AND occurred_at >= ? AND occurred_at < ?`
		expenseQuery += ` AND occurred_at >= ? AND occurred_at < ?`
		args = append(args, formatTime(w.Start), formatTime(w.End))
	}
	incomeQuery += ` ORDER BY occurred_at, id`
	expenseQuery += ` ORDER BY occurred_at, id`

	rows, err := q.QueryContext(ctx, incomeQuery, args...)
	if err != nil {
		return l, core.WrapStore("list incomes", err)
	}
	for rows.Next() {
		var (
			in     core.IncomeEntry
			amount sql.NullInt64
			at     string
		)
		if err := rows.Scan(&in.ID, &in.OwnerID, &amount, &at, &in.Source, &in.Description); err != nil {
			rows.Close()
			return l, core.WrapStore("scan income", err)
		}
		in.Amount = core.Cents(amount.Int64)
		if in.Date, err = parseTime(at); err != nil {
			rows.Close()
			return l, core.WrapStore("scan income", err)
		}
		l.Incomes = append(l.Incomes, in)
	}
	if err := closeRows(rows); err != nil {
		return l, core.WrapStore("list incomes", err)
	}

	rows, err = q.QueryContext(ctx, expenseQuery, args...)
	if err != nil {
		return l, core.WrapStore("list expenses", err)
	}
	for rows.Next() {
		var (
			ex     core.ExpenseEntry
			amount sql.NullInt64
			at     string
			kind   string
		)
		if err := rows.Scan(&ex.ID, &ex.OwnerID, &ex.CategoryID, &amount, &at, &kind, &ex.Description); err != nil {
			rows.Close()
			return l, core.WrapStore("scan expense", err)
		}
		// NULL amounts from legacy rows count as zero.
		ex.Amount = core.Cents(amount.Int64)
		ex.Kind = core.ExpenseKind(kind)
		if ex.Date, err = parseTime(at); err != nil {
			rows.Close()
			return l, core.WrapStore("scan expense", err)
		}
		l.Expenses = append(l.Expenses, ex)
	}
	if err := closeRows(rows); err != nil {
		return l, core.WrapStore("list expenses", err)
	}
	return l, nil
}

func listCategories(ctx context.Context, q queryer, ownerID string) ([]core.Category, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, owner_id, name, budget_cents, created_at, updated_at
		 FROM categories WHERE owner_id = ? ORDER BY name, id`, ownerID)
	if err != nil {
		return nil, core.WrapStore("list categories", err)
	}
	out := make([]core.Category, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			rows.Close()
			return nil, core.WrapStore("scan category", err)
		}
		out = append(out, c)
	}
	if err := closeRows(rows); err != nil {
		return nil, core.WrapStore("list categories", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, ownerID, categoryID string) (core.Category, error) {
	return getCategory(ctx, r.db, ownerID, categoryID)
}

func (r *SQLiteRepository) CountExpensesForCategory(ctx context.Context, ownerID, categoryID string) (int, error) {
	n, err := countDependents(ctx, r.db, ownerID, categoryID)
	if err != nil {
		return 0, core.WrapStore("count expenses", err)
	}
	return n, nil
}

// CreateCategory implements ledger.CategoryWriter
func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := r.now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (id, owner_id, name, budget_cents, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.OwnerID, c.Name, c.Budget.Cents, formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return core.Category{}, core.WrapStore("create category", err)
	}

	slog.InfoContext(ctx, "Category saved to SQLite",
		"id", c.ID,
		"owner_id", c.OwnerID,
		"budget_cents", c.Budget.Cents)
	return c, nil
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}

	var out core.Category
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := getCategory(ctx, tx, c.OwnerID, c.ID)
		if err != nil {
			return err
		}
		cur.Name, cur.Budget, cur.UpdatedAt = c.Name, c.Budget, r.now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE categories SET name = ?, budget_cents = ?, updated_at = ? WHERE id = ? AND owner_id = ?`,
			cur.Name, cur.Budget.Cents, formatTime(cur.UpdatedAt), cur.ID, cur.OwnerID); err != nil {
			return err
		}
		out = cur
		return nil
	})
	if err != nil {
		return core.Category{}, core.WrapStore("update category", err)
	}
	return out, nil
}

func (r *SQLiteRepository) DeleteCategoryIfUnused(ctx context.Context, ownerID, categoryID string) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
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
		_, err = tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ? AND owner_id = ?`, categoryID, ownerID)
		return err
	})
	if err != nil {
		return core.WrapStore("delete category", err)
	}

	slog.InfoContext(ctx, "Category deleted from SQLite", "id", categoryID, "owner_id", ownerID)
	return nil
}

func (r *SQLiteRepository) DeleteCategoryCascade(ctx context.Context, ownerID, categoryID string) (int, error) {
	var removed int
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getCategory(ctx, tx, ownerID, categoryID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM expenses WHERE owner_id = ? AND category_id = ?`, ownerID, categoryID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if r.cascadeStep != nil {
			if err := r.cascadeStep(ctx, tx); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM categories WHERE id = ? AND owner_id = ?`, categoryID, ownerID); err != nil {
			return err
		}
		removed = int(n)
		return nil
	})
	if err != nil {
		return 0, core.WrapStore("delete category cascade", err)
	}

	slog.InfoContext(ctx, "Category cascade-deleted from SQLite",
		"id", categoryID,
		"owner_id", ownerID,
		"removed_expenses", removed)
	return removed, nil
}

// AddIncome implements ledger.EntryWriter
func (r *SQLiteRepository) AddIncome(ctx context.Context, e core.IncomeEntry) (core.IncomeEntry, error) {
	if err := e.Validate(); err != nil {
		return core.IncomeEntry{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO incomes (id, owner_id, amount_cents, occurred_at, source, description) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.OwnerID, e.Amount.Cents, formatTime(e.Date), e.Source, e.Description)
	if err != nil {
		return core.IncomeEntry{}, core.WrapStore("add income", err)
	}
	return e, nil
}

func (r *SQLiteRepository) AddExpense(ctx context.Context, e core.ExpenseEntry) (core.ExpenseEntry, error) {
	if err := e.Validate(); err != nil {
		return core.ExpenseEntry{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getCategory(ctx, tx, e.OwnerID, e.CategoryID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return core.Invalid("categoryId", core.ErrUnknownCategory)
			}
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO expenses (id, owner_id, category_id, amount_cents, occurred_at, kind, description) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.OwnerID, e.CategoryID, e.Amount.Cents, formatTime(e.Date), string(e.Kind), e.Description)
		return err
	})
	if err != nil {
		return core.ExpenseEntry{}, core.WrapStore("add expense", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"category_id", e.CategoryID,
		"amount_cents", e.Amount.Cents)
	return e, nil
}

func (r *SQLiteRepository) DeleteEntry(ctx context.Context, ownerID, entryID string) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"incomes", "expenses"} {
			res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ? AND owner_id = ?`, entryID, ownerID)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if n > 0 {
				return nil
			}
		}
		return &core.NotFoundError{Kind: "entry", ID: entryID}
	})
	return core.WrapStore("delete entry", err)
}

// ListOwners implements ledger.OwnerLister
func (r *SQLiteRepository) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT owner_id FROM categories UNION SELECT owner_id FROM incomes UNION SELECT owner_id FROM expenses ORDER BY 1`)
	if err != nil {
		return nil, core.WrapStore("list owners", err)
	}
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, core.WrapStore("scan owner", err)
		}
		out = append(out, id)
	}
	if err := closeRows(rows); err != nil {
		return nil, core.WrapStore("list owners", err)
	}
	return out, nil
}

// withTx runs fn in a transaction and rolls back on any error.
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func getCategory(ctx context.Context, q queryer, ownerID, categoryID string) (core.Category, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, owner_id, name, budget_cents, created_at, updated_at
		 FROM categories WHERE id = ? AND owner_id = ?`, categoryID, ownerID)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, &core.NotFoundError{Kind: "category", ID: categoryID}
	}
	if err != nil {
		return core.Category{}, core.WrapStore("get category", err)
	}
	return c, nil
}

func countDependents(ctx context.Context, q queryer, ownerID, categoryID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM expenses WHERE owner_id = ? AND category_id = ?`, ownerID, categoryID).Scan(&n)
	return n, err
}

func scanCategory(s rowScanner) (core.Category, error) {
	var (
		c                core.Category
		budget           int64
		created, updated string
	)
	if err := s.Scan(&c.ID, &c.OwnerID, &c.Name, &budget, &created, &updated); err != nil {
		return core.Category{}, err
	}
	c.Budget = core.Cents(budget)
	var err error
	if c.CreatedAt, err = parseTime(created); err != nil {
		return core.Category{}, err
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return core.Category{}, err
	}
	return c, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
