package orders

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/sweetshop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/sweetshop-backend/pkg/db/models"
	"github.com/angelmondragon/sweetshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
	"github.com/angelmondragon/sweetshop-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	repo  Repository
	svc   Service
	sweet models.Sweet
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.New(t)
	repo := NewRepository(client.DB())
	svc, err := NewService(repo)
	require.NoError(t, err)

	sweet := models.Sweet{Name: "Truffle", Category: enums.SweetCategoryChocolates, Price: decimal.RequireFromString("2.50"), Quantity: 10}
	require.NoError(t, client.DB().Create(&sweet).Error)
	return fixture{db: client.DB(), repo: repo, svc: svc, sweet: sweet}
}

func (f fixture) user(t *testing.T, email string) uuid.UUID {
	t.Helper()
	user := models.User{Name: email, Email: email, PasswordHash: "x", Role: enums.UserRoleUser}
	require.NoError(t, f.db.Create(&user).Error)
	return user.ID
}

func (f fixture) order(t *testing.T, userID uuid.UUID, createdAt time.Time, qty int) *models.Order {
	t.Helper()
	line := f.sweet.Price.Mul(decimal.NewFromInt(int64(qty)))
	order := &models.Order{
		UserID:      userID,
		TotalAmount: line,
		Status:      enums.OrderStatusPending,
		CreatedAt:   createdAt,
		Items: []models.OrderItem{{
			LineNo:    1,
			SweetID:   f.sweet.ID,
			Name:      f.sweet.Name,
			Quantity:  qty,
			UnitPrice: f.sweet.Price,
			LineTotal: line,
		}},
	}
	created, err := f.repo.Create(context.Background(), order)
	require.NoError(t, err)
	return created
}

func TestListMineNewestFirst(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	other := f.user(t, "other@example.com")
	base := time.Now().UTC().Add(-time.Hour)

	oldest := f.order(t, owner, base, 1)
	middle := f.order(t, owner, base.Add(time.Minute), 2)
	newest := f.order(t, owner, base.Add(2*time.Minute), 3)
	f.order(t, other, base.Add(3*time.Minute), 1)

	list, err := f.svc.ListMine(context.Background(), owner, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, list.Orders, 3)
	assert.Equal(t, []uuid.UUID{newest.ID, middle.ID, oldest.ID}, []uuid.UUID{list.Orders[0].ID, list.Orders[1].ID, list.Orders[2].ID})
	assert.Empty(t, list.NextCursor)

	require.Len(t, list.Orders[0].Items, 1)
	item := list.Orders[0].Items[0]
	assert.Equal(t, 3, item.Quantity)
	assert.True(t, item.LineTotal.Equal(decimal.RequireFromString("7.50")))
	assert.True(t, list.Orders[0].TotalAmount.Equal(decimal.RequireFromString("7.50")))
}

func TestListMinePaginates(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "pager@example.com")
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		f.order(t, owner, base.Add(time.Duration(i)*time.Minute), 1)
	}

	first, err := f.svc.ListMine(context.Background(), owner, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Orders, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := f.svc.ListMine(context.Background(), owner, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Orders, 2)
	assert.True(t, second.Orders[0].CreatedAt.Before(first.Orders[1].CreatedAt))

	third, err := f.svc.ListMine(context.Background(), owner, pagination.Params{Limit: 2, Cursor: second.NextCursor})
	require.NoError(t, err)
	require.Len(t, third.Orders, 1)
	assert.Empty(t, third.NextCursor)

	_, err = f.svc.ListMine(context.Background(), owner, pagination.Params{Cursor: "%%%"})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestGetRestrictsToOwnerOrAdmin(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "mine@example.com")
	order := f.order(t, owner, time.Now().UTC(), 1)

	got, err := f.svc.Get(context.Background(), order.ID, Viewer{UserID: owner, Role: enums.UserRoleUser})
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = f.svc.Get(context.Background(), order.ID, Viewer{UserID: uuid.New(), Role: enums.UserRoleUser})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	_, err = f.svc.Get(context.Background(), order.ID, Viewer{UserID: uuid.New(), Role: enums.UserRoleAdmin})
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), uuid.New(), Viewer{UserID: owner})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}
