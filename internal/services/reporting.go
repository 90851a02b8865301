package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"fintrack/internal/aggregate"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

const defaultTrendMonths = 6

// ReportingStore is what the reporting façade reads. Anything that needs
// categories goes through LoadSnapshot so entries and categories agree.
type ReportingStore interface {
	ledger.EntryReader
	ledger.SnapshotReader
}

// SummaryRequest selects whose ledger to summarize and over which window.
// A nil Window means the full ledger for totals and breakdown and the
// trailing trend months for the trend. A nil Location uses the service
// default.
type SummaryRequest struct {
	OwnerID  string
	Window   *core.Window
	Location *time.Location
}

// ReportingService composes the aggregation engine over store snapshots. It
// holds no per-owner state and is safe for concurrent use.
type ReportingService struct {
	store       ReportingStore
	location    *time.Location
	trendMonths int
	now         func() time.Time
}

// NewReportingService builds a façade. A nil loc means UTC; trendMonths
// below 1 falls back to six.
func NewReportingService(store ReportingStore, loc *time.Location, trendMonths int) *ReportingService {
	if loc == nil {
		loc = time.UTC
	}
	if trendMonths < 1 {
		trendMonths = defaultTrendMonths
	}
	return &ReportingService{
		store:       store,
		location:    loc,
		trendMonths: trendMonths,
		now:         time.Now,
	}
}

func (s *ReportingService) GetSummary(ctx context.Context, req SummaryRequest) (core.Summary, error) {
	loc, trendWindow, err := s.resolve(req)
	if err != nil {
		return core.Summary{}, err
	}
	l, cats, err := s.snapshot(ctx, req.OwnerID, req.Window, true)
	if err != nil {
		return core.Summary{}, err
	}
	sum, err := aggregate.Summarize(req.OwnerID, l, cats, trendWindow, loc)
	if err != nil {
		return core.Summary{}, fmt.Errorf("summarize ledger: %w", err)
	}
	return sum, nil
}

func (s *ReportingService) GetTotals(ctx context.Context, req SummaryRequest) (core.Totals, error) {
	if _, _, err := s.resolve(req); err != nil {
		return core.Totals{}, err
	}
	l, _, err := s.snapshot(ctx, req.OwnerID, req.Window, false)
	if err != nil {
		return core.Totals{}, err
	}
	return aggregate.Totals(req.OwnerID, l)
}

func (s *ReportingService) GetCategoryBreakdown(ctx context.Context, req SummaryRequest) (core.CategoryBreakdown, error) {
	if _, _, err := s.resolve(req); err != nil {
		return core.CategoryBreakdown{}, err
	}
	l, cats, err := s.snapshot(ctx, req.OwnerID, req.Window, true)
	if err != nil {
		return core.CategoryBreakdown{}, err
	}
	return aggregate.Breakdown(req.OwnerID, l, cats)
}

// GetTrend reads only the entries inside the trend window.
func (s *ReportingService) GetTrend(ctx context.Context, req SummaryRequest) ([]core.TrendPoint, error) {
	loc, trendWindow, err := s.resolve(req)
	if err != nil {
		return nil, err
	}
	l, _, err := s.snapshot(ctx, req.OwnerID, &trendWindow, false)
	if err != nil {
		return nil, err
	}
	return aggregate.Trend(req.OwnerID, l, trendWindow, loc)
}

// GetBudgetReport returns one BudgetStatus per category, measured against
// the expenses inside the window (default: the current calendar month).
func (s *ReportingService) GetBudgetReport(ctx context.Context, req SummaryRequest) ([]core.BudgetStatus, error) {
	w, err := s.budgetWindow(req)
	if err != nil {
		return nil, err
	}
	l, cats, err := s.snapshot(ctx, req.OwnerID, &w, true)
	if err != nil {
		return nil, err
	}
	b, err := aggregate.Breakdown(req.OwnerID, l, cats)
	if err != nil {
		return nil, err
	}

	report := make([]core.BudgetStatus, 0, len(cats))
	for _, c := range cats {
		var spent core.Money
		if row, ok := b.Find(c.ID); ok {
			spent = row.Amount
		}
		report = append(report, core.NewBudgetStatus(c, spent))
	}
	return report, nil
}

// CategoryBudget is GetBudgetReport narrowed to one category.
func (s *ReportingService) CategoryBudget(ctx context.Context, req SummaryRequest, categoryID string) (core.BudgetStatus, error) {
	w, err := s.budgetWindow(req)
	if err != nil {
		return core.BudgetStatus{}, err
	}

	l, cats, err := s.snapshot(ctx, req.OwnerID, &w, true)
	if err != nil {
		return core.BudgetStatus{}, err
	}
	idx := slices.IndexFunc(cats, func(c core.Category) bool { return c.ID == categoryID })
	if idx < 0 {
		return core.BudgetStatus{}, &core.NotFoundError{Kind: "category", ID: categoryID}
	}
	c := cats[idx]

	var spent core.Money
	for _, ex := range l.Expenses {
		if ex.CategoryID == c.ID {
			spent = spent.Add(ex.Amount)
		}
	}
	return core.NewBudgetStatus(c, spent), nil
}

// resolve validates the request and returns the effective location and
// trend window.
func (s *ReportingService) resolve(req SummaryRequest) (*time.Location, core.Window, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, core.Window{}, core.Invalid("ownerId", core.ErrMissingOwner)
	}
	loc := s.locationFor(req)
	if req.Window != nil {
		if err := req.Window.Validate(); err != nil {
			return nil, core.Window{}, err
		}
		return loc, *req.Window, nil
	}
	return loc, core.TrailingMonths(s.now(), s.trendMonths, loc), nil
}

func (s *ReportingService) budgetWindow(req SummaryRequest) (core.Window, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return core.Window{}, core.Invalid("ownerId", core.ErrMissingOwner)
	}
	if req.Window != nil {
		if err := req.Window.Validate(); err != nil {
			return core.Window{}, err
		}
		return *req.Window, nil
	}
	return core.MonthWindow(s.now(), s.locationFor(req)), nil
}

func (s *ReportingService) locationFor(req SummaryRequest) *time.Location {
	if req.Location != nil {
		return req.Location
	}
	return s.location
}

// snapshot reads entries, plus categories when asked. Categories always
// come from the same store read as the entries.
func (s *ReportingService) snapshot(ctx context.Context, ownerID string, w *core.Window, withCategories bool) (core.Ledger, []core.Category, error) {
	if !withCategories {
		l, err := s.store.ListEntries(ctx, ownerID, w)
		if err != nil {
			return core.Ledger{}, nil, fmt.Errorf("load ledger snapshot: %w", err)
		}
		return l, nil, nil
	}
	l, cats, err := s.store.LoadSnapshot(ctx, ownerID, w)
	if err != nil {
		return core.Ledger{}, nil, fmt.Errorf("load ledger snapshot: %w", err)
	}
	return l, cats, nil
}
