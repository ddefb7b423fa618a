package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/sweetshop-backend/pkg/redis"
)

type store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// Guard remembers which events one consumer has already handled.
// Records live under sweetshop:processed:<consumer>:<event_id> for the guard's TTL.
type Guard struct {
	store    store
	consumer string
	ttl      time.Duration
}

func NewGuard(s store, consumer string, ttl time.Duration) (*Guard, error) {
	switch {
	case s == nil:
		return nil, errors.New("idempotency store is required")
	case consumer == "":
		return nil, errors.New("consumer name is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: s, consumer: consumer, ttl: ttl}, nil
}

// Claim marks eventID as handled. It returns false when another delivery already claimed it.
func (g *Guard) Claim(ctx context.Context, eventID uuid.UUID) (bool, error) {
	if eventID == uuid.Nil {
		return false, errors.New("event id is required")
	}
	return g.store.SetNX(ctx, g.key(eventID), time.Now().UTC().Format(time.RFC3339), g.ttl)
}

// Forget drops a claim so a redelivery can try again.
func (g *Guard) Forget(ctx context.Context, eventID uuid.UUID) error {
	return g.store.Del(ctx, g.key(eventID))
}

func (g *Guard) key(eventID uuid.UUID) string {
	return redis.Key("processed", g.consumer, eventID.String())
}
