package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/checkout-engine/internal/api"
	"github.com/example/checkout-engine/internal/auth"
	"github.com/example/checkout-engine/internal/domain/address"
	"github.com/example/checkout-engine/internal/domain/checkout"
	"github.com/example/checkout-engine/internal/domain/pricing"
	"github.com/example/checkout-engine/internal/domain/reservation"
	"github.com/example/checkout-engine/internal/infrastructure/store"
)

// ============================================
// Test fixtures
// ============================================

type fakeCartReader struct {
	carts       map[string]*checkout.Cart
	guestTokens map[string]string
}

func (f *fakeCartReader) GetCartWithItems(ctx context.Context, cartID string) (*checkout.Cart, error) {
	cart, ok := f.carts[cartID]
	if !ok {
		return nil, fmt.Errorf("cart %s: %w", cartID, checkout.ErrCartNotFound)
	}
	return cart, nil
}

func (f *fakeCartReader) VerifyGuestToken(ctx context.Context, cartID, token string) (bool, error) {
	return f.guestTokens[cartID] == token, nil
}

type fakeResolver struct{ calls int }

func (f *fakeResolver) ResolveOrCreate(ctx context.Context, addr address.Address, ownerID string, addrType address.Type) (string, error) {
	f.calls++
	return fmt.Sprintf("addr-%d", f.calls), nil
}

type apiFixture struct {
	router http.Handler
	store  *store.MemoryStore
	carts  *fakeCartReader
	jwt    *auth.JWTService
	mu     sync.Mutex
	now    time.Time
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.now
	}

	f.store = store.NewMemoryStore(clock)
	f.carts = &fakeCartReader{
		carts:       make(map[string]*checkout.Cart),
		guestTokens: make(map[string]string),
	}
	f.jwt = auth.NewJWTService("test-secret-key-for-testing-purposes", 15*time.Minute)

	manager := checkout.NewManager(checkout.ManagerConfig{
		Store:     f.store,
		Carts:     f.carts,
		Addresses: &fakeResolver{},
		Pricing:   pricing.NewCoordinator(pricing.NewRateTableTax(), pricing.NewTieredShipping(clock), zerolog.Nop()),
		Ledger:    reservation.NewLedger(zerolog.Nop(), clock),
		Clock:     clock,
	}, zerolog.Nop())

	f.router = api.NewRouter(api.RouterConfig{
		Handlers:   api.NewHandlers(manager, zerolog.Nop()),
		JWTService: f.jwt,
		Logger:     zerolog.Nop(),
	})
	return f
}

func (f *apiFixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *apiFixture) seedCart(cartID, ownerID string, items ...checkout.CartItem) {
	f.carts.carts[cartID] = &checkout.Cart{ID: cartID, Currency: "usd", OwnerID: ownerID, Items: items}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func createRequestBody(cartID string) map[string]any {
	addr := map[string]any{
		"name":         "Jordan Doe",
		"line1":        "1 Main St",
		"city":         "Springfield",
		"region":       "IL",
		"postal_code":  "62701",
		"country_code": "US",
	}
	return map[string]any{
		"cart_id":          cartID,
		"shipping_address": addr,
		"billing_address":  addr,
		"shipping_method":  "standard",
	}
}

func (f *apiFixture) createSession(t *testing.T, cartID string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/checkout/session", createRequestBody(cartID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func defaultItem() checkout.CartItem {
	return checkout.CartItem{
		LineItemID:  "li-1",
		ProductID:   "prod-1",
		SKU:         "SKU-1",
		Name:        "Widget",
		Quantity:    2,
		UnitPrice:   1000,
		WeightGrams: 500,
	}
}

// ============================================
// POST /checkout/session
// ============================================

func TestAPI_CreateSession_Success(t *testing.T) {
	f := newAPIFixture(t)
	f.store.SeedInventory("prod-1", 10, 0)
	f.seedCart("cart-1", "", defaultItem())

	rec := f.do(t, http.MethodPost, "/checkout/session", createRequestBody("cart-1"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp struct {
		SessionID string `json:"session_id"`
		Breakdown struct {
			Subtotal   int `json:"subtotal"`
			GrandTotal int `json:"grand_total"`
		} `json:"breakdown"`
		PaymentProviders []string `json:"payment_providers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, 2000, resp.Breakdown.Subtotal)
	assert.NotEmpty(t, resp.PaymentProviders)
}

func TestAPI_CreateSession_BadRequests(t *testing.T) {
	f := newAPIFixture(t)
	f.store.SeedInventory("prod-1", 1, 0)
	f.seedCart("cart-ok", "", defaultItem())
	f.seedCart("cart-empty", "")

	invalidAddr := createRequestBody("cart-ok")
	invalidAddr["shipping_address"].(map[string]any)["postal_code"] = "nope"

	unknownMethod := createRequestBody("cart-ok")
	unknownMethod["shipping_method"] = "drone"

	tests := []struct {
		name string
		body any
	}{
		{name: "malformed json", body: "{"},
		{name: "missing cart_id", body: createRequestBody("")},
		{name: "empty cart", body: createRequestBody("cart-empty")},
		{name: "invalid address", body: invalidAddr},
		{name: "unknown shipping method", body: unknownMethod},
		{name: "insufficient stock", body: createRequestBody("cart-ok")}, // quantity 2 > stock 1
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec *httptest.ResponseRecorder
			if s, ok := tt.body.(string); ok {
				req := httptest.NewRequest(http.MethodPost, "/checkout/session", bytes.NewBufferString(s))
				rec = httptest.NewRecorder()
				f.router.ServeHTTP(rec, req)
			} else {
				rec = f.do(t, http.MethodPost, "/checkout/session", tt.body)
			}
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestAPI_CreateSession_CartNotFound(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/checkout/session", createRequestBody("missing"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_CreateSession_OwnedCartNeedsMatchingUser(t *testing.T) {
	f := newAPIFixture(t)
	f.store.SeedInventory("prod-1", 10, 0)
	f.seedCart("cart-1", "user-1", defaultItem())

	// Anonymous caller on an owned cart.
	rec := f.do(t, http.MethodPost, "/checkout/session", createRequestBody("cart-1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Wrong user.
	wrongToken, _, err := f.jwt.GenerateAccessToken("user-2", "other@example.com", "customer")
	require.NoError(t, err)
	rec = f.do(t, http.MethodPost, "/checkout/session", createRequestBody("cart-1"), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+wrongToken)
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Owner succeeds.
	ownerToken, _, err := f.jwt.GenerateAccessToken("user-1", "owner@example.com", "customer")
	require.NoError(t, err)
	rec = f.do(t, http.MethodPost, "/checkout/session", createRequestBody("cart-1"), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+ownerToken)
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAPI_CreateSession_GuestToken(t *testing.T) {
	f := newAPIFixture(t)
	f.store.SeedInventory("prod-1", 10, 0)
	f.seedCart("cart-1", "", defaultItem())
	f.carts.guestTokens["cart-1"] = "guest-secret"

	rec := f.do(t, http.MethodPost, "/checkout/session", createRequestBody("cart-1"), func(r *http.Request) {
		r.Header.Set("X-Guest-Token", "wrong")
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/checkout/session", createRequestBody("cart-1"), func(r *http.Request) {
		r.Header.Set("X-Guest-Token", "guest-secret")
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAPI_CreateSession_MethodNotAllowed(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/checkout/session", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// ============================================
// GET /checkout/session/:id
// ============================================

func TestAPI_GetSession_Success(t *testing.T) {
	f := newAPIFixture(t)
	f.store.SeedInventory("prod-1", 10, 0)
	f.seedCart("cart-1", "", defaultItem())
	id := f.createSession(t, "cart-1")

	rec := f.do(t, http.MethodGet, "/checkout/session/"+id, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Session struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"session"`
		Reservations []struct {
			Status string `json:"status"`
		} `json:"reservations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.Session.ID)
	assert.Equal(t, "active", resp.Session.Status)
	require.Len(t, resp.Reservations, 1)
	assert.Equal(t, "active", resp.Reservations[0].Status)
}

func TestAPI_GetSession_NotFound(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/checkout/session/unknown", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_GetSession_Forbidden(t *testing.T) {
	f := newAPIFixture(t)
	f.store.SeedInventory("prod-1", 10, 0)
	f.seedCart("cart-1", "user-1", defaultItem())

	ownerToken, _, err := f.jwt.GenerateAccessToken("user-1", "owner@example.com", "customer")
	require.NoError(t, err)
	rec := f.do(t, http.MethodPost, "/checkout/session", createRequestBody("cart-1"), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+ownerToken)
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	otherToken, _, err := f.jwt.GenerateAccessToken("user-2", "other@example.com", "customer")
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, "/checkout/session/"+resp.SessionID, nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+otherToken)
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_GetSession_Gone(t *testing.T) {
	f := newAPIFixture(t)
	f.store.SeedInventory("prod-1", 10, 0)
	f.seedCart("cart-1", "", defaultItem())
	id := f.createSession(t, "cart-1")

	f.advance(16 * time.Minute)

	rec := f.do(t, http.MethodGet, "/checkout/session/"+id, nil)

	assert.Equal(t, http.StatusGone, rec.Code)
}

// ============================================
// POST /checkout/session/:id/release
// ============================================

func TestAPI_ReleaseSession_Success(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	f.store.SeedInventory("prod-1", 10, 0)
	f.seedCart("cart-1", "", defaultItem())
	id := f.createSession(t, "cart-1")

	rec := f.do(t, http.MethodPost, "/checkout/session/"+id+"/release", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	recStock, err := f.store.Inventory().Get(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 10, recStock.Quantity)

	// Releasing again stays 200.
	rec = f.do(t, http.MethodPost, "/checkout/session/"+id+"/release", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_ReleaseSession_NotFound(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/checkout/session/unknown/release", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ============================================
// POST /checkout/session/:id/confirm
// ============================================

func TestAPI_ConfirmSession_Success(t *testing.T) {
	f := newAPIFixture(t)
	f.store.SeedInventory("prod-1", 10, 0)
	f.seedCart("cart-1", "", defaultItem())
	id := f.createSession(t, "cart-1")

	rec := f.do(t, http.MethodPost, "/checkout/session/"+id+"/confirm", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sess, err := f.store.Sessions().Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, checkout.StatusCompleted, sess.Status)
}

func TestAPI_ConfirmSession_NotFound(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/checkout/session/unknown/confirm", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_ConfirmSession_Gone(t *testing.T) {
	f := newAPIFixture(t)
	f.store.SeedInventory("prod-1", 10, 0)
	f.seedCart("cart-1", "", defaultItem())
	id := f.createSession(t, "cart-1")

	f.advance(16 * time.Minute)

	rec := f.do(t, http.MethodPost, "/checkout/session/"+id+"/confirm", nil)

	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestAPI_ConfirmSession_AlreadyCompleted(t *testing.T) {
	f := newAPIFixture(t)
	f.store.SeedInventory("prod-1", 10, 0)
	f.seedCart("cart-1", "", defaultItem())
	id := f.createSession(t, "cart-1")

	rec := f.do(t, http.MethodPost, "/checkout/session/"+id+"/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/checkout/session/"+id+"/confirm", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ============================================
// POST /checkout/session/:id/fail
// ============================================

func TestAPI_FailSession_Success(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	f.store.SeedInventory("prod-1", 10, 0)
	f.seedCart("cart-1", "", defaultItem())
	id := f.createSession(t, "cart-1")

	rec := f.do(t, http.MethodPost, "/checkout/session/"+id+"/fail", map[string]string{"reason": "payment declined"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sess, err := f.store.Sessions().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, checkout.StatusFailed, sess.Status)
	assert.Equal(t, "payment declined", sess.FailureReason)

	// A failed session keeps its holds.
	stock, err := f.store.Inventory().Get(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 8, stock.Quantity)

	// Release still works afterwards and restores the stock.
	rec = f.do(t, http.MethodPost, "/checkout/session/"+id+"/release", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stock, err = f.store.Inventory().Get(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 10, stock.Quantity)
}

func TestAPI_FailSession_MissingReason(t *testing.T) {
	f := newAPIFixture(t)
	f.store.SeedInventory("prod-1", 10, 0)
	f.seedCart("cart-1", "", defaultItem())
	id := f.createSession(t, "cart-1")

	rec := f.do(t, http.MethodPost, "/checkout/session/"+id+"/fail", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_FailSession_NotFound(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/checkout/session/unknown/fail", map[string]string{"reason": "payment declined"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_FailSession_AlreadyCompleted(t *testing.T) {
	f := newAPIFixture(t)
	f.store.SeedInventory("prod-1", 10, 0)
	f.seedCart("cart-1", "", defaultItem())
	id := f.createSession(t, "cart-1")

	rec := f.do(t, http.MethodPost, "/checkout/session/"+id+"/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/checkout/session/"+id+"/fail", map[string]string{"reason": "payment declined"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ============================================
// Infrastructure endpoints
// ============================================

func TestAPI_Healthz(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}
