package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/sweetshop-backend/api/responses"
	"github.com/angelmondragon/sweetshop-backend/internal/cart"
	"github.com/angelmondragon/sweetshop-backend/internal/orders"
	"github.com/angelmondragon/sweetshop-backend/internal/sweets"
	"github.com/angelmondragon/sweetshop-backend/pkg/client"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
)

func newTestShop(t *testing.T, handler http.Handler) (*shop, *cart.MemoryStore, *bytes.Buffer) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	api, err := client.New(client.Options{BaseURL: srv.URL})
	require.NoError(t, err)
	store := cart.NewMemoryStore()
	out := &bytes.Buffer{}
	return &shop{api: api, store: store, out: out}, store, out
}

func TestDispatchUsage(t *testing.T) {
	s, _, _ := newTestShop(t, http.NotFoundHandler())

	err := s.dispatch(context.Background(), nil)
	assert.ErrorIs(t, err, errUsage)

	err = s.dispatch(context.Background(), []string{"dance"})
	assert.ErrorIs(t, err, errUsage)

	err = s.dispatch(context.Background(), []string{"set", "only-one-arg"})
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, err.Error(), "set <sweet-id> <quantity>")
}

func TestAddTwiceThenSetAndShow(t *testing.T) {
	sweetID := uuid.New()
	catalog := sweets.SweetDTO{ID: sweetID, Name: "Fudge", Price: decimal.NewFromInt(4), Quantity: 3, InStock: true}
	s, store, out := newTestShop(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/sweets/" + sweetID.String():
			responses.WriteSuccess(w, catalog)
		case "/api/sweets":
			responses.WriteSuccess(w, []sweets.SweetDTO{catalog})
		default:
			http.NotFound(w, r)
		}
	}))
	ctx := context.Background()

	require.NoError(t, s.dispatch(ctx, []string{"add", sweetID.String()}))
	require.NoError(t, s.dispatch(ctx, []string{"add", sweetID.String()}))

	crt, err := cart.Load(store)
	require.NoError(t, err)
	assert.Equal(t, 2, crt.TotalItems())

	out.Reset()
	require.NoError(t, s.dispatch(ctx, []string{"set", sweetID.String(), "5"}))
	assert.Contains(t, out.String(), "only 3 of Fudge in stock")
	crt, err = cart.Load(store)
	require.NoError(t, err)
	assert.Equal(t, 2, crt.TotalItems())

	out.Reset()
	require.NoError(t, s.dispatch(ctx, []string{"show"}))
	assert.Contains(t, out.String(), "8.00")

	require.NoError(t, s.dispatch(ctx, []string{"set", sweetID.String(), "0"}))
	crt, err = cart.Load(store)
	require.NoError(t, err)
	assert.True(t, crt.IsEmpty())
}

func TestCheckoutClearsCart(t *testing.T) {
	sweetID := uuid.New()
	s, store, out := newTestShop(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/orders", r.URL.Path)
		responses.WriteSuccessStatus(w, http.StatusCreated, orders.OrderDTO{
			ID:          uuid.New(),
			TotalAmount: decimal.NewFromInt(10),
			Items:       []orders.OrderItemDTO{{SweetID: sweetID, Name: "Fudge", Quantity: 2}},
		})
	}))

	crt := cart.New()
	crt.AddItem(cart.Item{SweetID: sweetID, Name: "Fudge", Price: decimal.NewFromInt(5), Stock: 9})
	crt.AddItem(cart.Item{SweetID: sweetID, Name: "Fudge", Price: decimal.NewFromInt(5), Stock: 9})
	require.NoError(t, cart.Save(store, crt))

	require.NoError(t, s.dispatch(context.Background(), []string{"checkout"}))
	assert.Contains(t, out.String(), "total 10.00")

	_, err := store.Load(cart.StorageKey)
	assert.ErrorIs(t, err, cart.ErrNotFound)
}

func TestBuyOutOfStock(t *testing.T) {
	sweetID := uuid.New()
	s, _, _ := newTestShop(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeOutOfStock, "Fudge is out of stock"))
	}))

	err := s.dispatch(context.Background(), []string{"buy", sweetID.String()})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeOutOfStock))
}

func TestLoginStoresToken(t *testing.T) {
	var sawToken string
	s, store, _ := newTestShop(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			responses.WriteSuccess(w, map[string]any{"access_token": "abc", "token_type": "Bearer"})
		case "/api/sweets":
			sawToken = r.Header.Get("Authorization")
			responses.WriteSuccess(w, []sweets.SweetDTO{})
		}
	}))
	ctx := context.Background()

	require.NoError(t, s.dispatch(ctx, []string{"login", "jane@example.com", "secret1"}))
	raw, err := store.Load(tokenKey)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(raw))

	require.NoError(t, s.dispatch(ctx, []string{"list"}))
	assert.Equal(t, "Bearer abc", sawToken)
}
