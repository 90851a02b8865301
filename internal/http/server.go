// Package http exposes the ledger services as a small JSON API.
//
// The owner of every request comes from the X-Owner-ID header, which the
// authenticating proxy in front of this service sets. No authentication
// happens here.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/services"
)

// OwnerHeader carries the authenticated owner id.
const OwnerHeader = "X-Owner-ID"

type (
	CategoryService interface {
		Create(ctx context.Context, ownerID, name string, budget *core.Money) (core.Category, error)
		Update(ctx context.Context, ownerID, categoryID string, patch core.CategoryPatch) (core.Category, error)
		Delete(ctx context.Context, ownerID, categoryID string, policy core.DeletePolicy) (services.DeleteResult, error)
		List(ctx context.Context, ownerID string) ([]core.Category, error)
		Get(ctx context.Context, ownerID, categoryID string) (core.Category, error)
		BudgetStatus(ctx context.Context, ownerID, categoryID string, spent core.Money) (core.BudgetStatus, error)
	}

	EntryRecorder interface {
		RecordIncome(ctx context.Context, e core.IncomeEntry) (core.IncomeEntry, error)
		RecordExpense(ctx context.Context, e core.ExpenseEntry) (core.ExpenseEntry, error)
		DeleteEntry(ctx context.Context, ownerID, entryID string) error
	}

	Reporter interface {
		GetSummary(ctx context.Context, req services.SummaryRequest) (core.Summary, error)
		GetTotals(ctx context.Context, req services.SummaryRequest) (core.Totals, error)
		GetCategoryBreakdown(ctx context.Context, req services.SummaryRequest) (core.CategoryBreakdown, error)
		GetTrend(ctx context.Context, req services.SummaryRequest) ([]core.TrendPoint, error)
		GetBudgetReport(ctx context.Context, req services.SummaryRequest) ([]core.BudgetStatus, error)
		CategoryBudget(ctx context.Context, req services.SummaryRequest, categoryID string) (core.BudgetStatus, error)
	}
)

// Deps are the services the handlers call.
type Deps struct {
	Categories CategoryService
	Entries    EntryRecorder
	Reports    Reporter
	// Location interprets date-only query and body values when the request
	// carries no tz parameter.
	Location *time.Location
	Logger   *log.Logger
	// WriteLimiter, when set, caps mutating requests per owner.
	WriteLimiter *ratelimit.Limiter
}

type Server struct {
	http.Server
	categories CategoryService
	entries    EntryRecorder
	reports    Reporter
	location   *time.Location
	limiter    *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}

	s := &Server{
		categories: deps.Categories,
		entries:    deps.Entries,
		reports:    deps.Reports,
		location:   deps.Location,
		limiter:    deps.WriteLimiter,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleHealth)

	mux.Handle("GET /summary", s.withOwner(s.handleSummary))
	mux.Handle("GET /summary/totals", s.withOwner(s.handleTotals))
	mux.Handle("GET /summary/categories", s.withOwner(s.handleBreakdown))
	mux.Handle("GET /summary/trend", s.withOwner(s.handleTrend))
	mux.Handle("GET /budgets", s.withOwner(s.handleBudgets))

	mux.Handle("GET /categories", s.withOwner(s.handleListCategories))
	mux.Handle("POST /categories", s.withOwner(s.limitWrites(s.handleCreateCategory)))
	mux.Handle("GET /categories/{id}", s.withOwner(s.handleGetCategory))
	mux.Handle("PATCH /categories/{id}", s.withOwner(s.limitWrites(s.handleUpdateCategory)))
	mux.Handle("DELETE /categories/{id}", s.withOwner(s.limitWrites(s.handleDeleteCategory)))
	mux.Handle("GET /categories/{id}/budget", s.withOwner(s.handleCategoryBudget))

	mux.Handle("POST /incomes", s.withOwner(s.limitWrites(s.handleCreateIncome)))
	mux.Handle("POST /expenses", s.withOwner(s.limitWrites(s.handleCreateExpense)))
	mux.Handle("DELETE /entries/{id}", s.withOwner(s.limitWrites(s.handleDeleteEntry)))

	var h http.Handler = mux
	h = withSecurityHeaders(h)
	h = log.AccessLogMiddleware(h)
	h = log.RequestIDMiddleware(h)
	h = log.Middleware(logger.WithComponent(log.ComponentHTTP))(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
	})
	return err
}

type ownerKey struct{}

// withOwner rejects requests without an owner and stores it in the context.
func (s *Server) withOwner(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := sanitizeInput(r.Header.Get(OwnerHeader))
		if owner == "" {
			writeProblem(w, http.StatusUnauthorized, "missing "+OwnerHeader+" header")
			return
		}
		logger := log.FromContext(r.Context()).With(log.FieldOwnerID, owner)
		ctx := log.NewContext(context.WithValue(r.Context(), ownerKey{}, owner), logger)
		next(w, r.WithContext(ctx))
	})
}

// limitWrites applies the per-owner write limit. It must run inside withOwner.
func (s *Server) limitWrites(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	h := s.limiter.Middleware(ownerFrom, func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusTooManyRequests, "rate limit exceeded")
	})(next)
	return h.ServeHTTP
}

func ownerFrom(r *http.Request) string {
	owner, _ := r.Context().Value(ownerKey{}).(string)
	return owner
}

func withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
