package checkout

import (
	"context"
	"testing"

	"github.com/angelmondragon/sweetshop-backend/internal/checkout/helpers"
	"github.com/angelmondragon/sweetshop-backend/internal/checkout/reservation"
	"github.com/angelmondragon/sweetshop-backend/internal/ledger"
	"github.com/angelmondragon/sweetshop-backend/internal/orders"
	"github.com/angelmondragon/sweetshop-backend/internal/sweets"
	"github.com/angelmondragon/sweetshop-backend/pkg/db"
	"github.com/angelmondragon/sweetshop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
	"github.com/angelmondragon/sweetshop-backend/pkg/outbox"
	"github.com/angelmondragon/sweetshop-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type checkoutEnv struct {
	client *db.Client
	userID uuid.UUID
}

func newCheckoutEnv(t *testing.T) checkoutEnv {
	t.Helper()
	client := dbtest.New(t)
	user := models.User{Name: "Buyer", Email: "buyer@example.com", PasswordHash: "x", Role: enums.UserRoleUser}
	require.NoError(t, client.DB().Create(&user).Error)
	return checkoutEnv{client: client, userID: user.ID}
}

func (e checkoutEnv) service(t *testing.T, stock stockDecrementer) Service {
	t.Helper()
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(e.client.DB()))
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		TxRunner:   e.client,
		SweetsRepo: sweets.NewRepository(e.client.DB()),
		OrdersRepo: orders.NewRepository(e.client.DB()),
		Ledger:     ledgerSvc,
		Outbox:     outbox.NewService(outbox.NewRepository(e.client.DB()), nil),
		Stock:      stock,
	})
	require.NoError(t, err)
	return svc
}

func (e checkoutEnv) seed(t *testing.T, name, price string, qty int) models.Sweet {
	t.Helper()
	sweet := models.Sweet{Name: name, Category: enums.SweetCategoryCakes, Price: decimal.RequireFromString(price), Quantity: qty}
	require.NoError(t, e.client.DB().Create(&sweet).Error)
	return sweet
}

func (e checkoutEnv) quantity(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var sweet models.Sweet
	require.NoError(t, e.client.DB().First(&sweet, "id = ?", id).Error)
	return sweet.Quantity
}

func (e checkoutEnv) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.client.DB().Model(model).Count(&n).Error)
	return n
}

func TestExecuteTotalsFromCatalogPrices(t *testing.T) {
	env := newCheckoutEnv(t)
	a := env.seed(t, "A", "50", 5)
	b := env.seed(t, "B", "30", 5)
	svc := env.service(t, nil)

	clientTotal := decimal.RequireFromString("1")
	order, err := svc.Execute(context.Background(), env.userID, CheckoutInput{
		Items: []helpers.LineRequest{
			{SweetID: a.ID, Quantity: 2},
			{SweetID: b.ID, Quantity: 1},
		},
		ClientTotal: &clientTotal,
	})
	require.NoError(t, err)

	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("130")), order.TotalAmount.String())
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, env.userID, order.UserID)
	require.Len(t, order.Items, 2)
	assert.Equal(t, 3, env.quantity(t, a.ID))
	assert.Equal(t, 4, env.quantity(t, b.ID))

	var stored models.Order
	require.NoError(t, env.client.DB().Preload("Items").First(&stored, "id = ?", order.ID).Error)
	assert.True(t, stored.TotalAmount.Equal(decimal.RequireFromString("130")))
	assert.Len(t, stored.Items, 2)

	var movements []models.StockLedgerEvent
	require.NoError(t, env.client.DB().Where("order_id = ?", order.ID).Find(&movements).Error)
	require.Len(t, movements, 2)
	for _, m := range movements {
		assert.Equal(t, enums.StockLedgerReasonCheckout, m.Reason)
		assert.Less(t, m.Delta, 0)
	}

	var events []models.OutboxEvent
	require.NoError(t, env.client.DB().Where("event_type = ?", enums.EventOrderCreated).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, order.ID, events[0].AggregateID)
}

func TestOrderReadsKeepCartLineOrder(t *testing.T) {
	env := newCheckoutEnv(t)
	zebra := env.seed(t, "Zebra Cake", "4.00", 5)
	apple := env.seed(t, "Apple Tart", "3.00", 5)
	svc := env.service(t, nil)

	placed, err := svc.Execute(context.Background(), env.userID, CheckoutInput{
		Items: []helpers.LineRequest{
			{SweetID: zebra.ID, Quantity: 1},
			{SweetID: apple.ID, Quantity: 2},
		},
	})
	require.NoError(t, err)

	names := func(items []orders.OrderItemDTO) []string {
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, item.Name)
		}
		return out
	}
	want := []string{"Zebra Cake", "Apple Tart"}
	assert.Equal(t, want, names(placed.Items))

	ordersSvc, err := orders.NewService(orders.NewRepository(env.client.DB()))
	require.NoError(t, err)

	got, err := ordersSvc.Get(context.Background(), placed.ID, orders.Viewer{UserID: env.userID, Role: enums.UserRoleUser})
	require.NoError(t, err)
	assert.Equal(t, want, names(got.Items))

	list, err := ordersSvc.ListMine(context.Background(), env.userID, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, want, names(list.Orders[0].Items))
}

func TestExecuteMergesDuplicateLines(t *testing.T) {
	env := newCheckoutEnv(t)
	a := env.seed(t, "A", "2.25", 4)
	svc := env.service(t, nil)

	order, err := svc.Execute(context.Background(), env.userID, CheckoutInput{
		Items: []helpers.LineRequest{
			{SweetID: a.ID, Quantity: 1},
			{SweetID: a.ID, Quantity: 3},
		},
	})
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 4, order.Items[0].Quantity)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("9")))
	assert.Equal(t, 0, env.quantity(t, a.ID))

	var soldOut int64
	require.NoError(t, env.client.DB().Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventSweetOutOfStock).Count(&soldOut).Error)
	assert.EqualValues(t, 1, soldOut)
}

func TestExecuteRejectsInsufficientStockEntirely(t *testing.T) {
	env := newCheckoutEnv(t)
	plenty := env.seed(t, "Plenty", "1.00", 10)
	scarce := env.seed(t, "Scarce", "2.00", 1)
	svc := env.service(t, nil)

	_, err := svc.Execute(context.Background(), env.userID, CheckoutInput{
		Items: []helpers.LineRequest{
			{SweetID: plenty.ID, Quantity: 2},
			{SweetID: scarce.ID, Quantity: 3},
		},
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficient, typed.Code())
	assert.Contains(t, typed.Message(), "Scarce")

	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	items, ok := details["items"].([]helpers.InsufficientItem)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, scarce.ID, items[0].SweetID)
	assert.Equal(t, 3, items[0].Requested)
	assert.Equal(t, 1, items[0].Available)

	assert.Equal(t, 10, env.quantity(t, plenty.ID))
	assert.Equal(t, 1, env.quantity(t, scarce.ID))
	assert.Zero(t, env.count(t, &models.Order{}))
	assert.Zero(t, env.count(t, &models.OrderItem{}))
	assert.Zero(t, env.count(t, &models.StockLedgerEvent{}))
}

func TestExecuteUnknownSweet(t *testing.T) {
	env := newCheckoutEnv(t)
	known := env.seed(t, "Known", "1.00", 3)
	ghost := uuid.New()
	svc := env.service(t, nil)

	_, err := svc.Execute(context.Background(), env.userID, CheckoutInput{
		Items: []helpers.LineRequest{
			{SweetID: known.ID, Quantity: 1},
			{SweetID: ghost, Quantity: 1},
		},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
	assert.Contains(t, err.Error(), ghost.String())
	assert.Equal(t, 3, env.quantity(t, known.ID))
	assert.Zero(t, env.count(t, &models.Order{}))
}

func TestExecuteValidatesInput(t *testing.T) {
	env := newCheckoutEnv(t)
	svc := env.service(t, nil)

	_, err := svc.Execute(context.Background(), env.userID, CheckoutInput{})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = svc.Execute(context.Background(), env.userID, CheckoutInput{
		Items: []helpers.LineRequest{{SweetID: uuid.New(), Quantity: 0}},
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = svc.Execute(context.Background(), uuid.Nil, CheckoutInput{
		Items: []helpers.LineRequest{{SweetID: uuid.New(), Quantity: 1}},
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))
}

// drainingDecrementer empties one sweet inside the transaction before decrementing, standing in
// for a concurrent buyer that wins the race after validation.
type drainingDecrementer struct {
	drain uuid.UUID
}

func (d drainingDecrementer) Decrement(ctx context.Context, tx *gorm.DB, requests []reservation.StockRequest) ([]reservation.StockResult, error) {
	if err := tx.Model(&models.Sweet{}).Where("id = ?", d.drain).Update("quantity", 0).Error; err != nil {
		return nil, err
	}
	return reservation.DecrementStock(ctx, tx, requests)
}

func TestExecuteRollsBackWhenStockDrainsMidway(t *testing.T) {
	env := newCheckoutEnv(t)
	a := env.seed(t, "A", "1.00", 5)
	b := env.seed(t, "B", "1.00", 5)
	svc := env.service(t, drainingDecrementer{drain: b.ID})

	_, err := svc.Execute(context.Background(), env.userID, CheckoutInput{
		Items: []helpers.LineRequest{
			{SweetID: a.ID, Quantity: 2},
			{SweetID: b.ID, Quantity: 2},
		},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficient))

	assert.Equal(t, 5, env.quantity(t, a.ID))
	assert.Equal(t, 5, env.quantity(t, b.ID))
	assert.Zero(t, env.count(t, &models.Order{}))
	assert.Zero(t, env.count(t, &models.OutboxEvent{}))
}
