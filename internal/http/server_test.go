package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/identity/local"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/prefs"
	"fintrack/internal/session"
	"fintrack/internal/store"
	"fintrack/internal/store/memory"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const waitFor = 3 * time.Second

type viewBody struct {
	OwnerID        string             `json:"ownerId"`
	Transactions   []core.Transaction `json:"transactions"`
	Balance        decimal.Decimal    `json:"balance"`
	TotalIncome    decimal.Decimal    `json:"totalIncome"`
	TotalExpenses  decimal.Decimal    `json:"totalExpenses"`
	IsLoading      bool               `json:"isLoading"`
	Editing        *core.Transaction  `json:"transactionBeingEdited"`
	CurrencyCode   string             `json:"currencyCode"`
	BalanceDisplay string             `json:"balanceDisplay"`
}

type testServer struct {
	*httptest.Server
	t         *testing.T
	unhealthy atomic.Bool
}

func newTestServer(t *testing.T, rl ratelimit.Config) *testServer {
	t.Helper()
	backend := local.New(local.NewMemoryUsers(), local.Config{
		Secret:     "http-test-secret-http-test-secret",
		SessionTTL: time.Hour,
		BcryptCost: bcrypt.MinCost,
	}, nil)
	p, err := prefs.Open(prefs.NewMemoryKV(), nil)
	require.NoError(t, err)
	registry := session.NewRegistry(session.Deps{
		Identity: backend,
		Store:    store.New(memory.New()),
		Prefs:    p,
	}, 16, time.Hour)

	ts := &testServer{t: t}
	srv, err := NewServer(":0", Deps{
		Sessions:    registry,
		RateLimit:   rl,
		SyncTimeout: time.Second,
		Health: func(context.Context) error {
			if ts.unhealthy.Load() {
				return errors.New("db down")
			}
			return nil
		},
	})
	require.NoError(t, err)
	ts.Server = httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		registry.Close()
	})
	return ts
}

func (ts *testServer) do(method, path, token string, body any) *http.Response {
	ts.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(ts.t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, rdr)
	require.NoError(ts.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(ts.t, err)
	ts.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (ts *testServer) signUp(email string) string {
	ts.t.Helper()
	resp := ts.do(http.MethodPost, "/auth/signup", "", map[string]string{
		"email": email, "password": "secret1", "displayName": "Test User",
	})
	require.Equal(ts.t, http.StatusCreated, resp.StatusCode)
	body := decodeBody[authResponse](ts.t, resp)
	require.NotEmpty(ts.t, body.Token)
	return body.Token
}

func (ts *testServer) view(token string) viewBody {
	ts.t.Helper()
	resp := ts.do(http.MethodGet, "/view", token, nil)
	require.Equal(ts.t, http.StatusOK, resp.StatusCode)
	return decodeBody[viewBody](ts.t, resp)
}

func (ts *testServer) waitView(token string, cond func(viewBody) bool) viewBody {
	ts.t.Helper()
	var last viewBody
	require.Eventually(ts.t, func() bool {
		last = ts.view(token)
		return cond(last)
	}, waitFor, 20*time.Millisecond)
	return last
}

func (ts *testServer) add(token, kind, amount, day string) core.Transaction {
	ts.t.Helper()
	resp := ts.do(http.MethodPost, "/transactions", token, map[string]string{
		"amount": amount, "kind": kind, "description": "d" + amount, "category": "c", "occurredAt": day,
	})
	require.Equal(ts.t, http.StatusCreated, resp.StatusCode)
	return decodeBody[core.Transaction](ts.t, resp)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{})

	resp := ts.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	ts.unhealthy.Store(true)
	resp = ts.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestTransactionLifecycle(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{})
	token := ts.signUp("ann@example.com")

	income := ts.add(token, "income", "100", "2024-01-01")
	expense := ts.add(token, "expense", "40", "2024-01-02")
	assert.NotEmpty(t, income.ID)

	vs := ts.waitView(token, func(v viewBody) bool { return len(v.Transactions) == 2 })
	assert.Equal(t, "60", vs.Balance.String())
	assert.Equal(t, expense.ID, vs.Transactions[0].ID)
	assert.Equal(t, "$60.00", vs.BalanceDisplay)

	resp := ts.do(http.MethodPut, "/transactions/"+expense.ID, token, map[string]string{
		"amount": "55", "kind": "expense", "description": "groceries", "category": "food",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	edited := decodeBody[core.Transaction](t, resp)
	assert.Equal(t, expense.ID, edited.ID)
	assert.True(t, edited.OccurredAt.Equal(expense.OccurredAt))

	ts.waitView(token, func(v viewBody) bool { return v.Balance.Equal(decimal.NewFromInt(45)) })

	resp = ts.do(http.MethodDelete, "/transactions/"+income.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = ts.do(http.MethodDelete, "/transactions/does-not-exist", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	vs = ts.waitView(token, func(v viewBody) bool { return len(v.Transactions) == 1 })
	assert.Equal(t, "-55", vs.Balance.String())
}

func TestEditFlow(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{})
	token := ts.signUp("bob@example.com")
	tx := ts.add(token, "expense", "9.99", "2024-02-01")
	ts.waitView(token, func(v viewBody) bool { return len(v.Transactions) == 1 })

	resp := ts.do(http.MethodPost, "/transactions/"+tx.ID+"/edit", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	vs := decodeBody[viewBody](t, resp)
	require.NotNil(t, vs.Editing)
	assert.Equal(t, tx.ID, vs.Editing.ID)

	resp = ts.do(http.MethodDelete, "/edit", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Nil(t, ts.view(token).Editing)

	resp = ts.do(http.MethodPost, "/transactions/missing/edit", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = ts.do(http.MethodPut, "/transactions/missing", token, map[string]string{"amount": "1", "kind": "income"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuthErrors(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{})

	resp := ts.do(http.MethodGet, "/view", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = ts.do(http.MethodGet, "/view", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	ts.signUp("cy@example.com")
	resp = ts.do(http.MethodPost, "/auth/signup", "", map[string]string{
		"email": "cy@example.com", "password": "secret1", "displayName": "Again",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "an account with this email already exists", decodeBody[errorBody](t, resp).Error)

	resp = ts.do(http.MethodPost, "/auth/signin", "", map[string]string{"email": "cy@example.com", "password": "wrong!!"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(http.MethodPost, "/auth/signin", "", map[string]string{"email": "cy@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := decodeBody[authResponse](t, resp).Token

	resp = ts.do(http.MethodPost, "/auth/signout", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = ts.do(http.MethodGet, "/view", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestValidationErrors(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{})

	resp := ts.do(http.MethodPost, "/auth/signup", "", map[string]string{"email": "nope", "password": "1"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody[errorBody](t, resp)
	fields := make([]string, 0, len(body.Fields))
	for _, f := range body.Fields {
		fields = append(fields, f.Field)
	}
	assert.ElementsMatch(t, []string{"email", "password", "displayName"}, fields)

	token := ts.signUp("dee@example.com")
	resp = ts.do(http.MethodPost, "/transactions", token, map[string]string{"amount": "-5", "kind": "expense"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "amount", decodeBody[errorBody](t, resp).Fields[0].Field)

	resp = ts.do(http.MethodPost, "/transactions", token, map[string]string{"amount": "5", "kind": "gift"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(http.MethodPost, "/transactions", token, map[string]string{
		"amount": "5", "kind": "expense", "description": strings.Repeat("x", core.MaxDescriptionLength+1),
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "description", decodeBody[errorBody](t, resp).Fields[0].Field)

	resp = ts.do(http.MethodPost, "/transactions", token, map[string]string{
		"amount": "5", "kind": "expense", "description": strings.Repeat("é", core.MaxDescriptionLength),
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestExportCSV(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{})
	token := ts.signUp("eve@example.com")
	resp := ts.do(http.MethodPost, "/transactions", token, map[string]string{
		"amount": "5.50", "kind": "expense", "description": "Coffee, Tea", "category": "Food", "occurredAt": "2024-01-01",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ts.waitView(token, func(v viewBody) bool { return len(v.Transactions) == 1 })

	resp = ts.do(http.MethodGet, "/export.csv", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".csv")
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Date,Description,Category,Type,Amount\n2024-01-01,\"Coffee, Tea\",\"Food\",expense,5.5\n", string(b))

	resp = ts.do(http.MethodGet, "/export.xlsx", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(http.MethodPost, "/export/sheets", token, nil)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestPreferences(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{})

	resp := ts.do(http.MethodGet, "/prefs", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	p := decodeBody[prefsResponse](t, resp)
	assert.Equal(t, "USD", p.CurrencyCode)
	assert.Equal(t, "$", p.CurrencySymbol)
	assert.False(t, p.DarkTheme)

	resp = ts.do(http.MethodPut, "/prefs", "", map[string]any{"currencyCode": "EUR", "darkTheme": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	p = decodeBody[prefsResponse](t, resp)
	assert.Equal(t, "€", p.CurrencySymbol)
	assert.True(t, p.DarkTheme)

	resp = ts.do(http.MethodPut, "/prefs", "", map[string]any{"currencyCode": "XYZ"})
	p = decodeBody[prefsResponse](t, resp)
	assert.Equal(t, "¤", p.CurrencySymbol)
	assert.True(t, p.DarkTheme)
}

func TestViewStream(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{})
	token := ts.signUp("fay@example.com")

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/view/stream?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	ts.add(token, "income", "12", "2024-03-01")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	for {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var vs viewBody
		require.NoError(t, json.Unmarshal(msg, &vs))
		if len(vs.Transactions) == 1 {
			assert.Equal(t, "12", vs.Balance.String())
			return
		}
	}
}

func TestSignInRateLimited(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{Requests: 2, Window: time.Minute})
	creds := map[string]string{"email": "gus@example.com", "password": "whatever"}

	for i := 0; i < 2; i++ {
		resp := ts.do(http.MethodPost, "/auth/signin", "", creds)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	resp := ts.do(http.MethodPost, "/auth/signin", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
