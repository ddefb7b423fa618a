package client

import (
	"context"

	"github.com/angelmondragon/sweetshop-backend/internal/cart"
	"github.com/angelmondragon/sweetshop-backend/internal/orders"
	"github.com/angelmondragon/sweetshop-backend/internal/sweets"
	pkgerrors "github.com/angelmondragon/sweetshop-backend/pkg/errors"
)

// CatalogItem converts a catalog entry into the snapshot the cart stores.
func CatalogItem(s sweets.SweetDTO) cart.Item {
	return cart.Item{
		SweetID: s.ID,
		Name:    s.Name,
		Price:   s.Price,
		Image:   s.Image,
		Stock:   s.Quantity,
	}
}

// RefreshCart updates cached prices and stock of every line from the live catalog.
func (c *Client) RefreshCart(ctx context.Context, crt *cart.Cart) error {
	list, err := c.ListSweets(ctx, SweetFilters{})
	if err != nil {
		return err
	}
	items := make([]cart.Item, 0, len(list))
	for _, s := range list {
		items = append(items, CatalogItem(s))
	}
	crt.Refresh(items)
	return nil
}

// CheckoutCart submits the cart and clears the stored copy only after the server accepts the order.
// On INSUFFICIENT_STOCK the cart is left untouched so the shopper can adjust it.
func (c *Client) CheckoutCart(ctx context.Context, crt *cart.Cart, store cart.Store, idempotencyKey string) (*orders.OrderDTO, error) {
	if crt == nil || crt.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	total := crt.TotalPrice()
	order, err := c.Checkout(ctx, crt.CheckoutItems(), &total, idempotencyKey)
	if err != nil {
		return nil, err
	}

	crt.Clear()
	if store != nil {
		if err := cart.Save(store, crt); err != nil {
			return order, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear saved cart")
		}
	}
	return order, nil
}
