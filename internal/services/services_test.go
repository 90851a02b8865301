package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/ledger/memory"
	"fintrack/internal/log"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.LedgerEvent
	err    error
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, e *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func money(c int64) *core.Money {
	m := core.Cents(c)
	return &m
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

type fixture struct {
	store    *memory.Store
	events   *recordingPublisher
	cats     *CategoryManager
	entries  *EntryService
	reports  *ReportingService
	reportAt time.Time
}

func newFixture() *fixture {
	store := memory.New()
	events := &recordingPublisher{}
	f := &fixture{
		store:    store,
		events:   events,
		cats:     NewCategoryManager(store, events),
		entries:  NewEntryService(store, events),
		reports:  NewReportingService(store, time.UTC, 6),
		reportAt: time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC),
	}
	f.reports.now = func() time.Time { return f.reportAt }
	return f
}

func (f *fixture) expense(t *testing.T, owner, categoryID string, cents int64, date time.Time) core.ExpenseEntry {
	t.Helper()
	e, err := f.entries.RecordExpense(context.Background(), core.ExpenseEntry{
		OwnerID: owner, CategoryID: categoryID, Amount: core.Cents(cents), Date: date,
	})
	require.NoError(t, err)
	return e
}

func TestCategoryManager_Create(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	c, err := f.cats.Create(ctx, "alice", "  Groceries ", money(20000))
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "Groceries", c.Name)
	assert.Equal(t, core.Cents(20000), c.Budget)
	assert.Equal(t, []string{amqp.EventCategoryCreated}, f.events.types())

	untracked, err := f.cats.Create(ctx, "alice", "Misc", nil)
	require.NoError(t, err)
	assert.True(t, untracked.Budget.IsZero())

	dup, err := f.cats.Create(ctx, "alice", "Groceries", nil)
	require.NoError(t, err)
	assert.NotEqual(t, c.ID, dup.ID)
}

func TestCategoryManager_CreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	tests := []struct {
		name   string
		owner  string
		cat    string
		budget *core.Money
		reason error
	}{
		{"empty name", "alice", "   ", nil, core.ErrEmptyName},
		{"name too long", "alice", strings.Repeat("x", 51), nil, core.ErrNameTooLong},
		{"negative budget", "alice", "Food", money(-1), core.ErrNegativeBudget},
		{"missing owner", "", "Food", nil, core.ErrMissingOwner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.cats.Create(ctx, tt.owner, tt.cat, tt.budget)
			require.ErrorIs(t, err, core.ErrValidation)
			assert.ErrorIs(t, err, tt.reason)
		})
	}
	assert.Empty(t, f.events.types())
}

func TestCategoryManager_Update(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c, err := f.cats.Create(ctx, "alice", "Food", money(100))
	require.NoError(t, err)

	name := "Dining"
	updated, err := f.cats.Update(ctx, "alice", c.ID, core.CategoryPatch{Name: &name, Budget: money(500)})
	require.NoError(t, err)
	assert.Equal(t, "Dining", updated.Name)
	assert.Equal(t, core.Cents(500), updated.Budget)

	same, err := f.cats.Update(ctx, "alice", c.ID, core.CategoryPatch{})
	require.NoError(t, err)
	assert.Equal(t, updated.Name, same.Name)

	_, err = f.cats.Update(ctx, "bob", c.ID, core.CategoryPatch{Name: &name})
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.cats.Update(ctx, "alice", "missing", core.CategoryPatch{Name: &name})
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.cats.Update(ctx, "alice", c.ID, core.CategoryPatch{Budget: money(-5)})
	assert.ErrorIs(t, err, core.ErrNegativeBudget)

	assert.Equal(t, []string{amqp.EventCategoryCreated, amqp.EventCategoryUpdated}, f.events.types())
}

func TestCategoryManager_DeleteBlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c, err := f.cats.Create(ctx, "alice", "Food", nil)
	require.NoError(t, err)
	f.expense(t, "alice", c.ID, 500, day(2025, 3, 1))

	_, err = f.cats.Delete(ctx, "alice", c.ID, core.PolicyBlock)
	require.ErrorIs(t, err, core.ErrConflict)
	var conflict *core.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 1, conflict.Dependents)

	cats, err := f.cats.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, cats, 1)
	l, err := f.store.ListEntries(ctx, "alice", nil)
	require.NoError(t, err)
	assert.Len(t, l.Expenses, 1)

	empty, err := f.cats.Create(ctx, "alice", "Empty", nil)
	require.NoError(t, err)
	res, err := f.cats.Delete(ctx, "alice", empty.ID, core.PolicyBlock)
	require.NoError(t, err)
	assert.Equal(t, DeleteResult{CategoryID: empty.ID, Policy: core.PolicyBlock}, res)
}

func TestCategoryManager_DeleteCascade(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c, err := f.cats.Create(ctx, "alice", "Food", nil)
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		f.expense(t, "alice", c.ID, 1000, day(2025, 3, i))
	}

	res, err := f.cats.Delete(ctx, "alice", c.ID, core.PolicyCascade)
	require.NoError(t, err)
	assert.Equal(t, 3, res.RemovedExpenses)

	cats, _ := f.cats.List(ctx, "alice")
	l, _ := f.store.ListEntries(ctx, "alice", nil)
	assert.Empty(t, cats)
	assert.Empty(t, l.Expenses)

	last := f.events.events[len(f.events.events)-1]
	assert.Equal(t, amqp.EventCategoryDeleted, last.Type)
	assert.Equal(t, "cascade", last.Policy)
	assert.Equal(t, 3, last.RemovedExpenses)
}

func TestCategoryManager_DeleteErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c, err := f.cats.Create(ctx, "alice", "Food", nil)
	require.NoError(t, err)

	_, err = f.cats.Delete(ctx, "alice", c.ID, core.DeletePolicy(""))
	assert.ErrorIs(t, err, core.ErrInvalidPolicy)

	_, err = f.cats.Delete(ctx, "alice", "missing", core.PolicyCascade)
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.cats.Delete(ctx, "bob", c.ID, core.PolicyBlock)
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.cats.Get(ctx, "alice", c.ID)
	assert.NoError(t, err)
}

func TestCategoryManager_PublishFailureKeepsMutation(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	m := NewCategoryManager(store, &recordingPublisher{err: amqp.ErrCircuitOpen})

	c, err := m.Create(ctx, "alice", "Food", nil)
	require.NoError(t, err)

	got, err := store.GetCategory(ctx, "alice", c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Food", got.Name)
}

func TestCategoryManager_NilPublisher(t *testing.T) {
	m := NewCategoryManager(memory.New(), nil)
	_, err := m.Create(context.Background(), "alice", "Food", nil)
	assert.NoError(t, err)
}

func TestCategoryManager_BudgetStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	tests := []struct {
		name      string
		budget    int64
		spent     int64
		over      bool
		tracked   bool
		remaining int64
	}{
		{"zero budget is never over", 0, 50000, false, false, 0},
		{"spent equal to budget", 10000, 10000, false, true, 0},
		{"one cent over", 10000, 10001, true, true, -1},
		{"under budget", 20000, 8000, false, true, 12000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := f.cats.Create(ctx, "alice", "Cat", money(tt.budget))
			require.NoError(t, err)

			st, err := f.cats.BudgetStatus(ctx, "alice", c.ID, core.Cents(tt.spent))
			require.NoError(t, err)
			assert.Equal(t, tt.over, st.OverBudget)
			assert.Equal(t, tt.tracked, st.Tracked)
			assert.Equal(t, core.Cents(tt.remaining), st.Remaining)
		})
	}

	_, err := f.cats.BudgetStatus(ctx, "alice", "missing", core.Cents(1))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestEntryService_RecordExpense(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c, err := f.cats.Create(ctx, "alice", "Food", nil)
	require.NoError(t, err)
	foreign, err := f.cats.Create(ctx, "bob", "Food", nil)
	require.NoError(t, err)

	e := f.expense(t, "alice", c.ID, 1234, day(2025, 3, 2))
	assert.Equal(t, core.OneTime, e.Kind)
	assert.NotEmpty(t, e.ID)

	tests := []struct {
		name   string
		entry  core.ExpenseEntry
		reason error
	}{
		{"unknown category", core.ExpenseEntry{OwnerID: "alice", CategoryID: "nope", Amount: core.Cents(1), Date: day(2025, 3, 1)}, core.ErrUnknownCategory},
		{"foreign category", core.ExpenseEntry{OwnerID: "alice", CategoryID: foreign.ID, Amount: core.Cents(1), Date: day(2025, 3, 1)}, core.ErrUnknownCategory},
		{"zero amount", core.ExpenseEntry{OwnerID: "alice", CategoryID: c.ID, Date: day(2025, 3, 1)}, core.ErrInvalidAmount},
		{"negative amount", core.ExpenseEntry{OwnerID: "alice", CategoryID: c.ID, Amount: core.Cents(-1), Date: day(2025, 3, 1)}, core.ErrInvalidAmount},
		{"missing date", core.ExpenseEntry{OwnerID: "alice", CategoryID: c.ID, Amount: core.Cents(1)}, core.ErrInvalidDate},
		{"bad kind", core.ExpenseEntry{OwnerID: "alice", CategoryID: c.ID, Amount: core.Cents(1), Date: day(2025, 3, 1), Kind: "weekly"}, core.ErrInvalidKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.entries.RecordExpense(ctx, tt.entry)
			require.ErrorIs(t, err, core.ErrValidation)
			assert.ErrorIs(t, err, tt.reason)
		})
	}
}

func TestEntryService_IncomeAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	in, err := f.entries.RecordIncome(ctx, core.IncomeEntry{OwnerID: "alice", Amount: core.Cents(300000), Date: day(2025, 3, 1), Source: "Salary"})
	require.NoError(t, err)

	_, err = f.entries.RecordIncome(ctx, core.IncomeEntry{OwnerID: "alice", Amount: core.Cents(1), Date: day(2025, 3, 1)})
	assert.ErrorIs(t, err, core.ErrEmptySource)

	assert.ErrorIs(t, f.entries.DeleteEntry(ctx, "bob", in.ID), core.ErrNotFound)
	require.NoError(t, f.entries.DeleteEntry(ctx, "alice", in.ID))
	assert.ErrorIs(t, f.entries.DeleteEntry(ctx, "alice", in.ID), core.ErrNotFound)

	assert.Equal(t, []string{amqp.EventIncomeRecorded, amqp.EventEntryDeleted}, f.events.types())
}

func TestReportingService_ExampleScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	food, err := f.cats.Create(ctx, "alice", "Food", money(20000))
	require.NoError(t, err)
	transport, err := f.cats.Create(ctx, "alice", "Transport", money(0))
	require.NoError(t, err)
	f.expense(t, "alice", food.ID, 5000, day(2025, 3, 3))
	f.expense(t, "alice", food.ID, 3000, day(2025, 3, 4))
	f.expense(t, "alice", transport.ID, 2000, day(2025, 3, 5))
	_, err = f.entries.RecordIncome(ctx, core.IncomeEntry{OwnerID: "alice", Amount: core.Cents(30000), Date: day(2025, 3, 1), Source: "Salary"})
	require.NoError(t, err)

	sum, err := f.reports.GetSummary(ctx, SummaryRequest{OwnerID: "alice"})
	require.NoError(t, err)

	assert.Equal(t, core.Totals{
		TotalIncome:  core.Cents(30000),
		TotalExpense: core.Cents(10000),
		Balance:      core.Cents(20000),
	}, sum.Totals)
	require.Equal(t, core.BreakdownPopulated, sum.CategoryBreakdown.State)
	require.Len(t, sum.CategoryBreakdown.Items, 2)
	assert.Equal(t, "Food", sum.CategoryBreakdown.Items[0].CategoryName)
	assert.Equal(t, core.Cents(8000), sum.CategoryBreakdown.Items[0].Amount)
	assert.Equal(t, "Transport", sum.CategoryBreakdown.Items[1].CategoryName)
	assert.Equal(t, core.Cents(2000), sum.CategoryBreakdown.Items[1].Amount)

	require.Len(t, sum.Trend, 6)
	assert.Equal(t, "2024-10", sum.Trend[0].Label)
	assert.Equal(t, "2025-03", sum.Trend[5].Label)
	assert.Equal(t, core.Cents(10000), sum.Trend[5].Amount)
	for _, p := range sum.Trend[:5] {
		assert.True(t, p.Amount.IsZero(), p.Label)
	}

	report, err := f.reports.GetBudgetReport(ctx, SummaryRequest{OwnerID: "alice"})
	require.NoError(t, err)
	require.Len(t, report, 2)
	for _, st := range report {
		assert.False(t, st.OverBudget, st.CategoryName)
	}

	st, err := f.reports.CategoryBudget(ctx, SummaryRequest{OwnerID: "alice"}, food.ID)
	require.NoError(t, err)
	assert.Equal(t, core.Cents(8000), st.Spent)
	assert.Equal(t, core.Cents(12000), st.Remaining)
}

func TestReportingService_EmptyLedger(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	sum, err := f.reports.GetSummary(ctx, SummaryRequest{OwnerID: "nobody"})
	require.NoError(t, err)
	assert.True(t, sum.Totals.Balance.IsZero())
	assert.Equal(t, core.NoExpenses(), sum.CategoryBreakdown)
	assert.Len(t, sum.Trend, 6)
}

func TestReportingService_WindowAndLocation(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	c, err := f.cats.Create(ctx, "alice", "Food", nil)
	require.NoError(t, err)
	// 2025-01-31 20:00 UTC is already February in Tokyo.
	f.expense(t, "alice", c.ID, 700, time.Date(2025, 1, 31, 20, 0, 0, 0, time.UTC))
	f.expense(t, "alice", c.ID, 300, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC))

	w := core.Window{
		Start: time.Date(2025, 1, 1, 0, 0, 0, 0, tokyo),
		End:   time.Date(2025, 3, 1, 0, 0, 0, 0, tokyo),
	}
	trend, err := f.reports.GetTrend(ctx, SummaryRequest{OwnerID: "alice", Window: &w, Location: tokyo})
	require.NoError(t, err)
	require.Len(t, trend, 2)
	assert.Equal(t, core.Cents(300), trend[0].Amount)
	assert.Equal(t, core.Cents(700), trend[1].Amount)

	utcTrend, err := f.reports.GetTrend(ctx, SummaryRequest{OwnerID: "alice", Window: &w})
	require.NoError(t, err)
	var janUTC core.Money
	for _, p := range utcTrend {
		if p.Label == "2025-01" {
			janUTC = p.Amount
		}
	}
	assert.Equal(t, core.Cents(1000), janUTC)

	totals, err := f.reports.GetTotals(ctx, SummaryRequest{OwnerID: "alice", Window: &w})
	require.NoError(t, err)
	assert.Equal(t, core.Cents(1000), totals.TotalExpense)
}

func TestReportingService_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.reports.GetSummary(ctx, SummaryRequest{})
	assert.ErrorIs(t, err, core.ErrMissingOwner)

	bad := core.Window{Start: day(2025, 3, 1), End: day(2025, 2, 1)}
	_, err = f.reports.GetCategoryBreakdown(ctx, SummaryRequest{OwnerID: "alice", Window: &bad})
	assert.ErrorIs(t, err, core.ErrInvalidWindow)

	failing := NewReportingService(failingStore{Store: memory.New()}, nil, 0)
	_, err = failing.GetSummary(ctx, SummaryRequest{OwnerID: "alice"})
	assert.ErrorIs(t, err, core.ErrStore)
}

func TestReportingService_SingleSnapshotRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	food, err := f.cats.Create(ctx, "alice", "Food", money(1000))
	require.NoError(t, err)
	f.expense(t, "alice", food.ID, 400, day(2025, 3, 5))
	f.expense(t, "alice", food.ID, 300, day(2025, 3, 6))

	reports := NewReportingService(interleavingStore{Store: f.store, owner: "alice", categoryID: food.ID}, time.UTC, 6)
	reports.now = func() time.Time { return f.reportAt }
	req := SummaryRequest{OwnerID: "alice"}

	sum, err := reports.GetSummary(ctx, req)
	require.NoError(t, err)
	require.Len(t, sum.CategoryBreakdown.Items, 1)
	assert.Equal(t, "Food", sum.CategoryBreakdown.Items[0].CategoryName)
	assert.Equal(t, core.Cents(700), sum.CategoryBreakdown.Items[0].Amount)

	b, err := reports.GetCategoryBreakdown(ctx, req)
	require.NoError(t, err)
	for _, it := range b.Items {
		assert.NotEqual(t, core.UnknownCategoryName, it.CategoryName)
	}

	st, err := reports.CategoryBudget(ctx, req, food.ID)
	require.NoError(t, err)
	assert.Equal(t, core.Cents(700), st.Spent)

	report, err := reports.GetBudgetReport(ctx, req)
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.Equal(t, core.Cents(700), report[0].Spent)

	_, err = f.store.GetCategory(ctx, "alice", food.ID)
	require.NoError(t, err, "reports must not take the split-read path")
}

func TestReportingService_ConcurrentOwners(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	owners := []string{"a", "b", "c", "d"}
	for i, o := range owners {
		c, err := f.cats.Create(ctx, o, "Food", nil)
		require.NoError(t, err)
		f.expense(t, o, c.ID, int64(100*(i+1)), day(2025, 3, 1))
	}

	var wg sync.WaitGroup
	for i, o := range owners {
		wg.Add(1)
		go func(i int, o string) {
			defer wg.Done()
			sum, err := f.reports.GetSummary(ctx, SummaryRequest{OwnerID: o})
			assert.NoError(t, err)
			assert.Equal(t, core.Cents(int64(100*(i+1))), sum.Totals.TotalExpense)
		}(i, o)
	}
	wg.Wait()
}

type failingStore struct {
	*memory.Store
}

func (failingStore) LoadSnapshot(context.Context, string, *core.Window) (core.Ledger, []core.Category, error) {
	return core.Ledger{}, nil, core.WrapStore("load snapshot", errors.New("connection reset"))
}

// interleavingStore cascades a category away right after any split read of
// entries, the way a concurrent delete could land between two queries.
type interleavingStore struct {
	*memory.Store
	owner, categoryID string
}

func (s interleavingStore) ListEntries(ctx context.Context, ownerID string, w *core.Window) (core.Ledger, error) {
	l, err := s.Store.ListEntries(ctx, ownerID, w)
	if err == nil {
		_, _ = s.Store.DeleteCategoryCascade(ctx, s.owner, s.categoryID)
	}
	return l, err
}

func (s interleavingStore) GetCategory(ctx context.Context, ownerID, categoryID string) (core.Category, error) {
	c, err := s.Store.GetCategory(ctx, ownerID, categoryID)
	if err == nil {
		_, _ = s.Store.DeleteCategoryCascade(ctx, s.owner, s.categoryID)
	}
	return c, err
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{core.Invalid("name", core.ErrEmptyName), log.ErrorTypeValidation},
		{&core.NotFoundError{Kind: "category", ID: "x"}, log.ErrorTypeNotFound},
		{&core.ConflictError{CategoryID: "x", Dependents: 2}, log.ErrorTypeConflict},
		{core.WrapStore("op", errors.New("boom")), log.ErrorTypeStore},
		{amqp.ErrCircuitOpen, log.ErrorTypeNetwork},
		{errors.New("other"), log.ErrorTypeInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyError(tt.err), "%v", tt.err)
	}
}
