package pubsub

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestResourceName(t *testing.T) {
	cases := []struct {
		name    string
		project string
		kind    resourceKind
		in      string
		want    string
	}{
		{"short topic", "shop-prod", kindTopic, "sweetshop-inventory-events", "projects/shop-prod/topics/sweetshop-inventory-events"},
		{"full topic passes through", "shop-prod", kindTopic, "projects/other/topics/orders", "projects/other/topics/orders"},
		{"subscription is trimmed", "shop-prod", kindSubscription, " stock-alerts ", "projects/shop-prod/subscriptions/stock-alerts"},
		{"topic path is not a subscription", "shop-prod", kindSubscription, "projects/other/topics/orders", "projects/shop-prod/subscriptions/projects/other/topics/orders"},
		{"blank name", "shop-prod", kindTopic, "  ", ""},
		{"no project", "", kindTopic, "orders", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, resourceName(tc.project, tc.kind, tc.in))
		})
	}
}

func TestNonBlank(t *testing.T) {
	assert.Equal(t, []string{"inventory"}, nonBlank("inventory", "  ", ""))
	assert.Empty(t, nonBlank())
}

func TestDescribeLookup(t *testing.T) {
	require.NoError(t, describeLookup(kindTopic, "orders", nil))

	err := describeLookup(kindSubscription, "stock-alerts", status.Error(codes.NotFound, "gone"))
	require.Error(t, err)
	assert.Equal(t, `subscription "stock-alerts" does not exist`, err.Error())

	cause := status.Error(codes.PermissionDenied, "denied")
	err = describeLookup(kindTopic, "orders", cause)
	require.Error(t, err)
	assert.True(t, errors.Is(err, cause))
	assert.True(t, strings.HasPrefix(err.Error(), `checking topic "orders"`))
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("orders"))
	assert.Nil(t, c.Subscription("alerts"))
	assert.Nil(t, c.InventorySubscription())
	assert.NoError(t, c.Close())
	assert.ErrorIs(t, c.Ping(t.Context()), errNotInitialized)
}
