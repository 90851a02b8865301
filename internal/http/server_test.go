package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/ledger/memory"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/services"
)

type testAPI struct {
	t   *testing.T
	srv *Server
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memory.New()
	deps := Deps{
		Categories: services.NewCategoryManager(store, nil),
		Entries:    services.NewEntryService(store, nil),
		Reports:    services.NewReportingService(store, time.UTC, 6),
		Location:   time.UTC,
	}
	return &testAPI{t: t, srv: NewServer(":0", deps)}
}

func (a *testAPI) do(method, path, owner, body string) *httptest.ResponseRecorder {
	a.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if owner != "" {
		req.Header.Set(OwnerHeader, owner)
	}
	rr := httptest.NewRecorder()
	a.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func (a *testAPI) createCategory(owner, body string) core.Category {
	a.t.Helper()
	rr := a.do(http.MethodPost, "/categories", owner, body)
	require.Equal(a.t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[core.Category](a.t, rr)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := api.do(http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}
}

func TestMissingOwner(t *testing.T) {
	api := newTestAPI(t)
	rr := api.do(http.MethodGet, "/summary", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestSummaryFlow(t *testing.T) {
	api := newTestAPI(t)
	food := api.createCategory("alice", `{"name":"Food","budget":"200.00"}`)
	transport := api.createCategory("alice", `{"name":"Transport"}`)

	now := time.Now().UTC().Format(dateLayout)
	for _, body := range []string{
		`{"amount":"50","date":"` + now + `","categoryId":"` + food.ID + `"}`,
		`{"amount":30,"date":"` + now + `","categoryId":"` + food.ID + `"}`,
		`{"amount":"20.00","date":"` + now + `","categoryId":"` + transport.ID + `","kind":"recurring"}`,
	} {
		rr := api.do(http.MethodPost, "/expenses", "alice", body)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}
	rr := api.do(http.MethodPost, "/incomes", "alice", `{"amount":"300","date":"`+now+`","source":"Salary"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = api.do(http.MethodGet, "/summary", "alice", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Totals struct {
			TotalIncome  string `json:"totalIncome"`
			TotalExpense string `json:"totalExpense"`
			Balance      string `json:"balance"`
		} `json:"totals"`
		CategoryBreakdown struct {
			State string `json:"state"`
			Items []struct {
				CategoryName string `json:"categoryName"`
				Amount       string `json:"amount"`
			} `json:"items"`
		} `json:"categoryBreakdown"`
		Trend []struct {
			BucketLabel string `json:"bucketLabel"`
			Amount      string `json:"amount"`
		} `json:"trend"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))

	assert.Equal(t, "300.00", body.Totals.TotalIncome)
	assert.Equal(t, "100.00", body.Totals.TotalExpense)
	assert.Equal(t, "200.00", body.Totals.Balance)
	assert.Equal(t, "populated", body.CategoryBreakdown.State)
	require.Len(t, body.CategoryBreakdown.Items, 2)
	assert.Equal(t, "Food", body.CategoryBreakdown.Items[0].CategoryName)
	assert.Equal(t, "80.00", body.CategoryBreakdown.Items[0].Amount)
	assert.Len(t, body.Trend, 6)

	rr = api.do(http.MethodGet, "/categories/"+food.ID+"/budget", "alice", "")
	require.Equal(t, http.StatusOK, rr.Code)
	st := decode[core.BudgetStatus](t, rr)
	assert.False(t, st.OverBudget)
	assert.Equal(t, core.Cents(8000), st.Spent)

	rr = api.do(http.MethodGet, "/categories/"+food.ID+"/budget?spent=200.01", "alice", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[core.BudgetStatus](t, rr).OverBudget)

	rr = api.do(http.MethodGet, "/budgets", "alice", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]core.BudgetStatus](t, rr), 2)

	// Another owner sees nothing.
	rr = api.do(http.MethodGet, "/summary/categories", "bob", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, core.BreakdownNoExpenses, decode[core.CategoryBreakdown](t, rr).State)
}

func TestSummaryQueryValidation(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"window", "/summary/totals?from=2025-01-01&to=2025-01-31", http.StatusOK},
		{"trend with tz", "/summary/trend?from=2025-01-01&to=2025-03-31&tz=Asia/Tokyo", http.StatusOK},
		{"only from", "/summary?from=2025-01-01", http.StatusUnprocessableEntity},
		{"inverted window", "/summary?from=2025-02-01&to=2025-01-01", http.StatusUnprocessableEntity},
		{"bad date", "/summary?from=2025-13-01&to=2025-14-01", http.StatusUnprocessableEntity},
		{"bad tz", "/summary?tz=Nowhere/Land", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := api.do(http.MethodGet, tt.path, "alice", "")
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}

	rr := api.do(http.MethodGet, "/summary/trend?from=2025-01-01&to=2025-03-31", "alice", "")
	assert.Len(t, decode[[]core.TrendPoint](t, rr), 3)
}

func TestCategoryLifecycle(t *testing.T) {
	api := newTestAPI(t)
	c := api.createCategory("alice", `{"name":"Food","budget":"10"}`)

	rr := api.do(http.MethodPatch, "/categories/"+c.ID, "alice", `{"name":"Dining","budget":"25.50"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[core.Category](t, rr)
	assert.Equal(t, "Dining", updated.Name)
	assert.Equal(t, core.Cents(2550), updated.Budget)

	rr = api.do(http.MethodGet, "/categories/"+c.ID, "bob", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(http.MethodPost, "/expenses", "alice",
		`{"amount":"5","date":"2025-03-01","categoryId":"`+c.ID+`"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = api.do(http.MethodDelete, "/categories/"+c.ID, "alice", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, "policy is required")

	rr = api.do(http.MethodDelete, "/categories/"+c.ID+"?policy=block", "alice", "")
	require.Equal(t, http.StatusConflict, rr.Code)
	var conflict errorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &conflict))
	assert.Equal(t, 1, conflict.Dependents)
	assert.Equal(t, c.ID, conflict.CategoryID)

	rr = api.do(http.MethodDelete, "/categories/"+c.ID+"?policy=cascade", "alice", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[services.DeleteResult](t, rr)
	assert.Equal(t, 1, res.RemovedExpenses)

	rr = api.do(http.MethodGet, "/categories", "alice", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]core.Category](t, rr))
}

func TestRequestValidation(t *testing.T) {
	api := newTestAPI(t)
	c := api.createCategory("alice", `{"name":"Food"}`)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
		field  string
	}{
		{"blank name", http.MethodPost, "/categories", `{"name":"   "}`, http.StatusUnprocessableEntity, "name"},
		{"long name", http.MethodPost, "/categories", `{"name":"` + strings.Repeat("x", 51) + `"}`, http.StatusUnprocessableEntity, "name"},
		{"negative budget", http.MethodPost, "/categories", `{"name":"Food","budget":"-1"}`, http.StatusUnprocessableEntity, "budget"},
		{"malformed json", http.MethodPost, "/categories", `{"name":`, http.StatusBadRequest, ""},
		{"unknown field", http.MethodPost, "/categories", `{"name":"x","color":"red"}`, http.StatusBadRequest, ""},
		{"bad amount", http.MethodPost, "/expenses", `{"amount":"1e3","date":"2025-03-01","categoryId":"` + c.ID + `"}`, http.StatusUnprocessableEntity, ""},
		{"zero amount", http.MethodPost, "/expenses", `{"amount":"0","date":"2025-03-01","categoryId":"` + c.ID + `"}`, http.StatusUnprocessableEntity, "amount"},
		{"unknown category", http.MethodPost, "/expenses", `{"amount":"1","date":"2025-03-01","categoryId":"nope"}`, http.StatusUnprocessableEntity, "categoryId"},
		{"bad kind", http.MethodPost, "/expenses", `{"amount":"1","date":"2025-03-01","categoryId":"` + c.ID + `","kind":"weekly"}`, http.StatusUnprocessableEntity, "kind"},
		{"bad date", http.MethodPost, "/incomes", `{"amount":"1","date":"03/01/2025","source":"Salary"}`, http.StatusUnprocessableEntity, "date"},
		{"missing source", http.MethodPost, "/incomes", `{"amount":"1","date":"2025-03-01"}`, http.StatusUnprocessableEntity, "source"},
		{"delete missing entry", http.MethodDelete, "/entries/nope", "", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := api.do(tt.method, tt.path, "alice", tt.body)
			require.Equal(t, tt.want, rr.Code, rr.Body.String())
			if tt.field != "" {
				var body errorBody
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
				assert.Equal(t, tt.field, body.Field)
			}
		})
	}
}

func TestCategoryNameTrimmedBeforeLengthCheck(t *testing.T) {
	api := newTestAPI(t)
	padded := "  " + strings.Repeat("x", core.MaxCategoryNameLen) + "  "

	c := api.createCategory("alice", `{"name":"`+padded+`"}`)
	assert.Equal(t, strings.Repeat("x", core.MaxCategoryNameLen), c.Name)

	rr := api.do(http.MethodPatch, "/categories/"+c.ID, "alice", `{"name":"`+padded+`"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = api.do(http.MethodPatch, "/categories/"+c.ID, "alice", `{"name":"`+strings.Repeat("y", core.MaxCategoryNameLen+1)+`"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())
	var body errorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "name", body.Field)
}

func TestDeleteEntry(t *testing.T) {
	api := newTestAPI(t)
	rr := api.do(http.MethodPost, "/incomes", "alice", `{"amount":"10","date":"2025-03-01T10:00:00+01:00","source":"Gift"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	in := decode[core.IncomeEntry](t, rr)

	rr = api.do(http.MethodDelete, "/entries/"+in.ID, "bob", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(http.MethodDelete, "/entries/"+in.ID, "alice", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

type brokenReporter struct{ Reporter }

func (brokenReporter) GetSummary(context.Context, services.SummaryRequest) (core.Summary, error) {
	return core.Summary{}, core.WrapStore("list entries", errors.New("dial tcp: connection refused"))
}

func TestStoreFailureIsServiceUnavailable(t *testing.T) {
	srv := NewServer(":0", Deps{Reports: brokenReporter{}})
	req := httptest.NewRequest(http.MethodGet, "/summary", nil)
	req.Header.Set(OwnerHeader, "alice")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.NotContains(t, rr.Body.String(), "connection refused")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.Invalid("name", core.ErrEmptyName), http.StatusUnprocessableEntity},
		{&core.NotFoundError{Kind: "category", ID: "x"}, http.StatusNotFound},
		{&core.ConflictError{CategoryID: "x", Dependents: 1}, http.StatusConflict},
		{core.WrapStore("op", errors.New("boom")), http.StatusServiceUnavailable},
		{&requestError{status: http.StatusBadRequest}, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "%v", tt.err)
	}
}

func TestWriteRateLimit(t *testing.T) {
	store := memory.New()
	limiter := ratelimit.NewLimiter(ratelimit.Config{Requests: 2, Window: time.Hour})
	t.Cleanup(limiter.Stop)
	api := &testAPI{t: t, srv: NewServer(":0", Deps{
		Categories:   services.NewCategoryManager(store, nil),
		Reports:      services.NewReportingService(store, time.UTC, 6),
		WriteLimiter: limiter,
	})}

	api.createCategory("alice", `{"name":"A"}`)
	api.createCategory("alice", `{"name":"B"}`)
	rr := api.do(http.MethodPost, "/categories", "alice", `{"name":"C"}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// Reads and other owners are not affected.
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/categories", "alice", "").Code)
	api.createCategory("bob", `{"name":"A"}`)
}
