package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sweetshop-backend/internal/sweets"
	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
)

type testSweetsService struct {
	listFn     func(ctx context.Context, filters sweets.ListFilters) ([]sweets.SweetDTO, error)
	getFn      func(ctx context.Context, id uuid.UUID) (*sweets.SweetDTO, error)
	createFn   func(ctx context.Context, actor sweets.Actor, input sweets.CreateSweetInput) (*sweets.SweetDTO, error)
	updateFn   func(ctx context.Context, id uuid.UUID, input sweets.UpdateSweetInput) (*sweets.SweetDTO, error)
	deleteFn   func(ctx context.Context, id uuid.UUID) error
	restockFn  func(ctx context.Context, actor sweets.Actor, id uuid.UUID, amount int) (*sweets.SweetDTO, error)
	purchaseFn func(ctx context.Context, actor sweets.Actor, id uuid.UUID) (*sweets.PurchaseResult, error)
	statsFn    func(ctx context.Context) (*sweets.StatsDTO, error)
	historyFn  func(ctx context.Context, id uuid.UUID, limit int) ([]sweets.LedgerEntryDTO, error)
}

func (s *testSweetsService) List(ctx context.Context, filters sweets.ListFilters) ([]sweets.SweetDTO, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filters)
	}
	return []sweets.SweetDTO{}, nil
}

func (s *testSweetsService) Get(ctx context.Context, id uuid.UUID) (*sweets.SweetDTO, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sweet not found")
}

func (s *testSweetsService) Create(ctx context.Context, actor sweets.Actor, input sweets.CreateSweetInput) (*sweets.SweetDTO, error) {
	if s.createFn != nil {
		return s.createFn(ctx, actor, input)
	}
	return &sweets.SweetDTO{}, nil
}

func (s *testSweetsService) Update(ctx context.Context, id uuid.UUID, input sweets.UpdateSweetInput) (*sweets.SweetDTO, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, id, input)
	}
	return &sweets.SweetDTO{ID: id}, nil
}

func (s *testSweetsService) Delete(ctx context.Context, id uuid.UUID) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, id)
	}
	return nil
}

func (s *testSweetsService) Restock(ctx context.Context, actor sweets.Actor, id uuid.UUID, amount int) (*sweets.SweetDTO, error) {
	if s.restockFn != nil {
		return s.restockFn(ctx, actor, id, amount)
	}
	return &sweets.SweetDTO{ID: id, Quantity: amount}, nil
}

func (s *testSweetsService) Purchase(ctx context.Context, actor sweets.Actor, id uuid.UUID) (*sweets.PurchaseResult, error) {
	if s.purchaseFn != nil {
		return s.purchaseFn(ctx, actor, id)
	}
	return &sweets.PurchaseResult{Message: "Purchase successful"}, nil
}

func (s *testSweetsService) Stats(ctx context.Context) (*sweets.StatsDTO, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx)
	}
	return &sweets.StatsDTO{}, nil
}

func (s *testSweetsService) History(ctx context.Context, id uuid.UUID, limit int) ([]sweets.LedgerEntryDTO, error) {
	if s.historyFn != nil {
		return s.historyFn(ctx, id, limit)
	}
	return []sweets.LedgerEntryDTO{}, nil
}

func TestSweetsListParsesFilters(t *testing.T) {
	var got sweets.ListFilters
	svc := &testSweetsService{
		listFn: func(ctx context.Context, filters sweets.ListFilters) ([]sweets.SweetDTO, error) {
			got = filters
			return []sweets.SweetDTO{{Name: "Fudge"}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sweets?q=+fudge+&category=Chocolates&min_price=1.50&featured=true", nil)
	resp := httptest.NewRecorder()
	SweetsList(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if got.Query != "fudge" {
		t.Fatalf("expected trimmed query, got %q", got.Query)
	}
	if got.Category == nil || *got.Category != enums.SweetCategoryChocolates {
		t.Fatalf("unexpected category %v", got.Category)
	}
	if got.MinPrice == nil || !got.MinPrice.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("unexpected min price %v", got.MinPrice)
	}
	if got.MaxPrice != nil {
		t.Fatalf("expected no max price, got %v", got.MaxPrice)
	}
	if got.Featured == nil || !*got.Featured {
		t.Fatal("expected featured filter")
	}

	var list []sweets.SweetDTO
	decodeData(t, resp, &list)
	if len(list) != 1 || list[0].Name != "Fudge" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestSweetsListRejectsUnknownCategory(t *testing.T) {
	svc := &testSweetsService{
		listFn: func(ctx context.Context, filters sweets.ListFilters) ([]sweets.SweetDTO, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sweets?category=vegetables", nil)
	resp := httptest.NewRecorder()
	SweetsList(svc, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if apiErr := decodeError(t, resp); apiErr.Code != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected code %s", apiErr.Code)
	}
}

func TestSweetsGetInvalidID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/sweets/nope", nil)
	req = withURLParam(req, "sweetId", "nope")
	resp := httptest.NewRecorder()
	SweetsGet(&testSweetsService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestSweetsGetNotFound(t *testing.T) {
	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/sweets/"+id.String(), nil)
	req = withURLParam(req, "sweetId", id.String())
	resp := httptest.NewRecorder()
	SweetsGet(&testSweetsService{}, testLogger())(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestSweetsCreate(t *testing.T) {
	adminID := uuid.New()
	var gotActor sweets.Actor
	var gotInput sweets.CreateSweetInput
	svc := &testSweetsService{
		createFn: func(ctx context.Context, actor sweets.Actor, input sweets.CreateSweetInput) (*sweets.SweetDTO, error) {
			gotActor = actor
			gotInput = input
			return &sweets.SweetDTO{ID: uuid.New(), Name: input.Name, Quantity: input.Quantity}, nil
		},
	}

	body := `{"name":"Toffee","category":"candies","price":"2.25","quantity":12}`
	req := httptest.NewRequest(http.MethodPost, "/api/sweets", strings.NewReader(body))
	req = withCaller(req, adminID, enums.UserRoleAdmin)
	resp := httptest.NewRecorder()
	SweetsCreate(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if gotActor.UserID != adminID || gotActor.Role != enums.UserRoleAdmin {
		t.Fatalf("unexpected actor %+v", gotActor)
	}
	if gotInput.Category != enums.SweetCategoryCandies || !gotInput.Price.Equal(decimal.RequireFromString("2.25")) {
		t.Fatalf("unexpected input %+v", gotInput)
	}
}

func TestSweetsCreateRequiresPrice(t *testing.T) {
	body := `{"name":"Toffee","category":"candies","quantity":12}`
	req := httptest.NewRequest(http.MethodPost, "/api/sweets", strings.NewReader(body))
	req = withCaller(req, uuid.New(), enums.UserRoleAdmin)
	resp := httptest.NewRecorder()
	SweetsCreate(&testSweetsService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestSweetsUpdateParsesCategory(t *testing.T) {
	id := uuid.New()
	var got sweets.UpdateSweetInput
	svc := &testSweetsService{
		updateFn: func(ctx context.Context, sweetID uuid.UUID, input sweets.UpdateSweetInput) (*sweets.SweetDTO, error) {
			got = input
			return &sweets.SweetDTO{ID: sweetID}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPut, "/api/sweets/"+id.String(), strings.NewReader(`{"category":"cakes","featured":false}`))
	req = withURLParam(req, "sweetId", id.String())
	resp := httptest.NewRecorder()
	SweetsUpdate(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if got.Category == nil || *got.Category != enums.SweetCategoryCakes {
		t.Fatalf("unexpected category %v", got.Category)
	}
	if got.Featured == nil || *got.Featured {
		t.Fatal("expected featured=false to be forwarded")
	}
	if got.Name != nil || got.Price != nil {
		t.Fatal("expected untouched fields to stay nil")
	}
}

func TestSweetsDeleteNoContent(t *testing.T) {
	id := uuid.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/sweets/"+id.String(), nil)
	req = withURLParam(req, "sweetId", id.String())
	resp := httptest.NewRecorder()
	SweetsDelete(&testSweetsService{}, testLogger())(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestSweetsPurchaseOutOfStock(t *testing.T) {
	id := uuid.New()
	svc := &testSweetsService{
		purchaseFn: func(ctx context.Context, actor sweets.Actor, sweetID uuid.UUID) (*sweets.PurchaseResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeOutOfStock, "Toffee is out of stock")
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/sweets/"+id.String()+"/purchase", nil)
	req = withCaller(req, uuid.New(), enums.UserRoleUser)
	req = withURLParam(req, "sweetId", id.String())
	resp := httptest.NewRecorder()
	SweetsPurchase(svc, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	apiErr := decodeError(t, resp)
	if apiErr.Code != string(pkgerrors.CodeOutOfStock) || apiErr.Message != "Toffee is out of stock" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestSweetsPurchaseRequiresCaller(t *testing.T) {
	id := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/sweets/"+id.String()+"/purchase", nil)
	req = withURLParam(req, "sweetId", id.String())
	resp := httptest.NewRecorder()
	SweetsPurchase(&testSweetsService{}, testLogger())(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestSweetsRestock(t *testing.T) {
	id := uuid.New()
	var gotAmount int
	svc := &testSweetsService{
		restockFn: func(ctx context.Context, actor sweets.Actor, sweetID uuid.UUID, amount int) (*sweets.SweetDTO, error) {
			gotAmount = amount
			return &sweets.SweetDTO{ID: sweetID, Quantity: 15}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/sweets/"+id.String()+"/restock", strings.NewReader(`{"quantity":10}`))
	req = withCaller(req, uuid.New(), enums.UserRoleAdmin)
	req = withURLParam(req, "sweetId", id.String())
	resp := httptest.NewRecorder()
	SweetsRestock(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if gotAmount != 10 {
		t.Fatalf("expected amount 10, got %d", gotAmount)
	}
	var sweet sweets.SweetDTO
	decodeData(t, resp, &sweet)
	if sweet.Quantity != 15 {
		t.Fatalf("unexpected quantity %d", sweet.Quantity)
	}
}

func TestSweetsRestockRejectsOutOfRange(t *testing.T) {
	for _, body := range []string{`{"quantity":0}`, `{"quantity":-3}`, `{}`, `{"quantity":2147483648}`} {
		id := uuid.New()
		req := httptest.NewRequest(http.MethodPost, "/api/sweets/"+id.String()+"/restock", strings.NewReader(body))
		req = withCaller(req, uuid.New(), enums.UserRoleAdmin)
		req = withURLParam(req, "sweetId", id.String())
		resp := httptest.NewRecorder()
		SweetsRestock(&testSweetsService{}, testLogger())(resp, req)

		if resp.Code != http.StatusBadRequest {
			t.Fatalf("body %s: unexpected status %d", body, resp.Code)
		}
	}
}

func TestSweetsHistoryLimit(t *testing.T) {
	id := uuid.New()
	var gotLimit int
	svc := &testSweetsService{
		historyFn: func(ctx context.Context, sweetID uuid.UUID, limit int) ([]sweets.LedgerEntryDTO, error) {
			gotLimit = limit
			return []sweets.LedgerEntryDTO{}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sweets/"+id.String()+"/history?limit=5", nil)
	req = withURLParam(req, "sweetId", id.String())
	resp := httptest.NewRecorder()
	SweetsHistory(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if gotLimit != 5 {
		t.Fatalf("expected limit 5, got %d", gotLimit)
	}
}

func TestSweetsNilService(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/sweets", nil)
	resp := httptest.NewRecorder()
	SweetsList(nil, testLogger())(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if apiErr := decodeError(t, resp); apiErr.Message == "sweets service unavailable" {
		t.Fatal("internal message leaked to client")
	}
}
