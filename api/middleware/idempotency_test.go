package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
	"github.com/angelmondragon/sweetshop-backend/pkg/redis"
)

type memReplayStore struct {
	mu   sync.Mutex
	data map[string]string
	ttl  map[string]time.Duration
}

func newMemReplayStore() *memReplayStore {
	return &memReplayStore{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (m *memReplayStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memReplayStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	m.ttl[key] = ttl
	return true, nil
}

func (m *memReplayStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.(string)
	m.ttl[key] = ttl
	return nil
}

func (m *memReplayStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

type orderHandler struct {
	calls  int
	status int
}

func (h *orderHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.calls++
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(h.status)
	_, _ = w.Write([]byte(`{"data":{"order":` + string(rune('0'+h.calls)) + `}}`))
}

func postOrder(t *testing.T, h http.Handler, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestIdempotentReplaysFirstResponse(t *testing.T) {
	store := newMemReplayStore()
	next := &orderHandler{status: http.StatusCreated}
	h := Idempotent(store, nil, Replay{TTL: time.Hour, Required: true})(next)

	first := postOrder(t, h, "key-1", `{"items":[{"sweetId":"a","quantity":2}]}`)
	second := postOrder(t, h, "key-1", `{"items":[{"sweetId":"a","quantity":2}]}`)

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	for _, ttl := range store.ttl {
		assert.Equal(t, time.Hour, ttl)
	}
}

func TestIdempotentRejectsDifferentBody(t *testing.T) {
	h := Idempotent(newMemReplayStore(), nil, Replay{TTL: time.Hour})(&orderHandler{status: http.StatusCreated})

	postOrder(t, h, "key-1", `{"items":[{"sweetId":"a","quantity":1}]}`)
	rec := postOrder(t, h, "key-1", `{"items":[{"sweetId":"a","quantity":9}]}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
}

func TestIdempotentRejectsConcurrentDuplicate(t *testing.T) {
	store := newMemReplayStore()
	h := Idempotent(store, nil, Replay{TTL: time.Hour})(&orderHandler{status: http.StatusCreated})

	body := `{"items":[]}`
	// simulate a first request that claimed the key and is still running
	blocking := Idempotent(store, nil, Replay{TTL: time.Hour})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := postOrder(t, h, "key-1", body)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, string(pkgerrors.CodeConflict), errorCode(t, rec))
		w.WriteHeader(http.StatusCreated)
	}))
	postOrder(t, blocking, "key-1", body)
}

func TestIdempotentReleasesKeyOnServerError(t *testing.T) {
	next := &orderHandler{status: http.StatusInternalServerError}
	h := Idempotent(newMemReplayStore(), nil, Replay{TTL: time.Hour})(next)

	postOrder(t, h, "key-1", `{}`)
	next.status = http.StatusCreated
	rec := postOrder(t, h, "key-1", `{}`)

	assert.Equal(t, 2, next.calls)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestIdempotentReleasesKeyWhenHandlerPanics(t *testing.T) {
	store := newMemReplayStore()
	next := &orderHandler{status: http.StatusCreated}
	panicking := Idempotent(store, nil, Replay{TTL: time.Hour})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("checkout exploded")
	}))

	assert.PanicsWithValue(t, "checkout exploded", func() {
		postOrder(t, panicking, "key-1", `{}`)
	})
	assert.Empty(t, store.data)

	h := Idempotent(store, nil, Replay{TTL: time.Hour})(next)
	rec := postOrder(t, h, "key-1", `{}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, next.calls)
}

func TestIdempotentHeaderRules(t *testing.T) {
	next := &orderHandler{status: http.StatusCreated}

	required := Idempotent(newMemReplayStore(), nil, Replay{TTL: time.Hour, Required: true})(next)
	rec := postOrder(t, required, "", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), errorCode(t, rec))
	assert.Equal(t, 0, next.calls)

	optional := Idempotent(newMemReplayStore(), nil, Replay{TTL: time.Hour})(next)
	postOrder(t, optional, "", `{}`)
	postOrder(t, optional, "", `{}`)
	assert.Equal(t, 2, next.calls, "requests without a key are never replayed")
}

func TestIdempotentScopesKeysPerUser(t *testing.T) {
	next := &orderHandler{status: http.StatusCreated}
	h := Idempotent(newMemReplayStore(), nil, Replay{TTL: time.Hour})(next)

	for _, user := range []string{"user-a", "user-b"} {
		req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{}`))
		req.Header.Set(IdempotencyHeader, "shared-key")
		req = req.WithContext(WithUserID(req.Context(), user))
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, next.calls)
}
