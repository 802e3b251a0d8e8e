package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aidin1998/pincex_spot/api"
	"github.com/Aidin1998/pincex_spot/internal/bookkeeper"
	"github.com/Aidin1998/pincex_spot/internal/cache"
	"github.com/Aidin1998/pincex_spot/internal/identities"
	"github.com/Aidin1998/pincex_spot/internal/trading/coordination"
	"github.com/Aidin1998/pincex_spot/internal/trading/engine"
	"github.com/Aidin1998/pincex_spot/internal/trading/events"
	"github.com/Aidin1998/pincex_spot/internal/trading/lifecycle"
	"github.com/Aidin1998/pincex_spot/internal/trading/orderqueue"
	"github.com/Aidin1998/pincex_spot/internal/trading/repository"
	"github.com/Aidin1998/pincex_spot/internal/trading/settlement"
	"github.com/Aidin1998/pincex_spot/internal/trading/trigger"
	"github.com/Aidin1998/pincex_spot/pkg/models"
	"github.com/Aidin1998/pincex_spot/testutil"
)

type harness struct {
	t      *testing.T
	router *gin.Engine
	ledger *bookkeeper.Service
	queue  *orderqueue.InMemoryQueue
}

func newHarness(t *testing.T) *harness {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	db := testutil.NewTestDB(t)
	logger := zap.NewNop()

	bus := events.NewInMemoryEventBus(logger)
	ledger := bookkeeper.NewService(logger, db)
	orders := repository.NewGormOrderRepository(db, logger)
	trades := repository.NewGormTradeRepository(db, logger)
	locks := coordination.NewSymbolLocks()

	users := identities.NewService(logger, db, ledger, bus, cache.NopProfileCache{},
		models.Symbols, decimal.NewFromInt(10))
	lifecycleSvc := lifecycle.NewService(db, logger, ledger, orders, bus, locks,
		lifecycle.NewBasicOrderValidator(models.Symbols), lifecycle.PrecisionValidator{})
	settle := settlement.NewService(logger, ledger, trades, settlement.DefaultCommissionRate)
	matcher := engine.NewMatchingEngine(db, logger, orders, lifecycleSvc, settle, bus, locks)

	queue := orderqueue.NewInMemoryQueue()
	dispatcher := trigger.NewDispatcher(logger, queue, orders, matcher)
	dispatcher.Attach(bus)
	require.NoError(t, dispatcher.Start(ctx))
	t.Cleanup(func() { _ = dispatcher.Stop(context.Background()) })

	srv := api.NewServer(logger, users, lifecycleSvc, orders, trades, api.Options{})
	return &harness{t: t, router: srv.Router(), ledger: ledger, queue: queue}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type problem struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Errors []struct {
		Field string `json:"field"`
		Code  string `json:"code"`
	} `json:"errors"`
}

func (h *harness) do(method, path string, userID uint64, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set(api.UserIDHeader, fmt.Sprint(userID))
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	require.True(t, env.Success)
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var p problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p), w.Body.String())
	return p
}

func (h *harness) register(name string) models.User {
	w := h.do(http.MethodPost, "/api/v1/users", 0, map[string]string{
		"name":  name,
		"email": name + "@example.com",
	})
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	var u models.User
	decodeData(h.t, w, &u)
	return u
}

func (h *harness) place(userID uint64, side, price, amount string) models.Order {
	w := h.do(http.MethodPost, "/api/v1/orders", userID, map[string]string{
		"symbol": "BTC", "side": side, "price": price, "amount": amount,
	})
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	var o models.Order
	decodeData(h.t, w, &o)
	return o
}

func (h *harness) drained() bool {
	n, err := h.queue.Len(context.Background())
	return err == nil && n == 0
}

func (h *harness) profile(userID uint64) models.User {
	w := h.do(http.MethodGet, "/api/v1/profile", userID, nil)
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
	var u models.User
	decodeData(h.t, w, &u)
	return u
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodGet, "/health", 0, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.NotEmpty(t, w.Header().Get(api.RequestIDHeader))

	w = h.do(http.MethodGet, "/metrics", 0, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIdentityHeaderRequired(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodGet, "/api/v1/profile", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodGet, "/api/v1/profile", 4242, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, http.StatusUnauthorized, decodeProblem(t, w).Status)
}

func TestRegisterUser(t *testing.T) {
	h := newHarness(t)
	u := h.register("carol")
	testutil.AssertDecimal(t, "10", u.Balance)

	w := h.do(http.MethodPost, "/api/v1/users", 0, map[string]string{"name": "x", "email": "carol@example.com"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(http.MethodPost, "/api/v1/users", 0, map[string]string{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	p := decodeProblem(t, w)
	require.NotEmpty(t, p.Errors)
	assert.Equal(t, "email", p.Errors[0].Field)

	profile := h.profile(u.ID)
	assert.Len(t, profile.Assets, len(models.Symbols))
}

func TestOrderMatchesThroughTheDispatcher(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seller := h.register("alice")
	buyer := h.register("bob")
	require.NoError(t, h.ledger.Bought(ctx, seller.ID, models.SymbolBTC, decimal.NewFromInt(5)))

	h.place(seller.ID, "SELL", "4", "1")
	buy := h.place(buyer.ID, "buy", "4", "1")
	assert.Equal(t, models.StatusOpen, buy.Status)

	require.Eventually(t, h.drained, 2*time.Second, 10*time.Millisecond)

	w := h.do(http.MethodGet, "/api/v1/trades?symbol=BTC", buyer.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var trades []models.UserTrade
	decodeData(t, w, &trades)
	require.Len(t, trades, 1)
	assert.Equal(t, models.SideBuy, trades[0].Side)
	testutil.AssertDecimal(t, "4.06", trades[0].Sales)

	testutil.AssertDecimal(t, "13.94", h.profile(seller.ID).Balance)
	testutil.AssertDecimal(t, "6", h.profile(buyer.ID).Balance)

	w = h.do(http.MethodGet, "/api/v1/orders?status=FILLED", buyer.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var filled []models.Order
	decodeData(t, w, &filled)
	require.Len(t, filled, 1)
	assert.Equal(t, buy.ID, filled[0].ID)
}

func TestPlaceOrderRejections(t *testing.T) {
	h := newHarness(t)
	u := h.register("dave")

	w := h.do(http.MethodPost, "/api/v1/orders", u.ID, map[string]string{
		"symbol": "DOGE", "side": "BUY", "price": "1", "amount": "1",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	p := decodeProblem(t, w)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "symbol", p.Errors[0].Code)

	w = h.do(http.MethodPost, "/api/v1/orders", u.ID, map[string]string{
		"symbol": "BTC", "side": "BUY", "price": "0", "amount": "1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/v1/orders", u.ID, map[string]string{
		"symbol": "BTC", "side": "BUY", "price": "100", "amount": "1",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = h.do(http.MethodPost, "/api/v1/orders", u.ID, map[string]string{
		"symbol": "BTC", "side": "SELL", "price": "1", "amount": "1",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCancelOrder(t *testing.T) {
	h := newHarness(t)
	owner := h.register("erin")
	other := h.register("frank")

	order := h.place(owner.ID, "BUY", "2", "1")
	require.Eventually(t, h.drained, 2*time.Second, 10*time.Millisecond)
	testutil.AssertDecimal(t, "8", h.profile(owner.ID).Balance)

	path := fmt.Sprintf("/api/v1/orders/%d/cancel", order.ID)
	w := h.do(http.MethodPost, path, other.ID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodPost, path, owner.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var cancelled models.Order
	decodeData(t, w, &cancelled)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	testutil.AssertDecimal(t, "10", h.profile(owner.ID).Balance)

	w = h.do(http.MethodPost, path, owner.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(http.MethodPost, "/api/v1/orders/abc/cancel", owner.ID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/v1/orders/999/cancel", owner.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
