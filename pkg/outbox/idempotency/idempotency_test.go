package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type recordingStore struct {
	claimed map[string]time.Duration
	deleted []string
	err     error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{claimed: map[string]time.Duration{}}
}

func (s *recordingStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.claimed[key]; ok {
		return false, nil
	}
	s.claimed[key] = ttl
	return true, nil
}

func (s *recordingStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(s.claimed, k)
		s.deleted = append(s.deleted, k)
	}
	return nil
}

func TestNewGuardValidates(t *testing.T) {
	if _, err := NewGuard(nil, "stock-alerts", time.Hour); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := NewGuard(newRecordingStore(), "", time.Hour); err == nil {
		t.Fatal("expected error without consumer")
	}
	if _, err := NewGuard(newRecordingStore(), "stock-alerts", -time.Second); err == nil {
		t.Fatal("expected error for negative ttl")
	}
}

func TestClaimOncePerEvent(t *testing.T) {
	store := newRecordingStore()
	guard, err := NewGuard(store, "stock-alerts", 24*time.Hour)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	eventID := uuid.New()

	first, err := guard.Claim(context.Background(), eventID)
	if err != nil || !first {
		t.Fatalf("first claim: claimed=%v err=%v", first, err)
	}
	second, err := guard.Claim(context.Background(), eventID)
	if err != nil || second {
		t.Fatalf("redelivery should not claim: claimed=%v err=%v", second, err)
	}

	key := "sweetshop:processed:stock-alerts:" + eventID.String()
	if ttl, ok := store.claimed[key]; !ok || ttl != 24*time.Hour {
		t.Fatalf("unexpected claim record %v (present=%v)", ttl, ok)
	}
}

func TestForgetAllowsRetry(t *testing.T) {
	store := newRecordingStore()
	guard, _ := NewGuard(store, "stock-alerts", time.Hour)
	eventID := uuid.New()

	if _, err := guard.Claim(context.Background(), eventID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := guard.Forget(context.Background(), eventID); err != nil {
		t.Fatalf("forget: %v", err)
	}
	claimed, err := guard.Claim(context.Background(), eventID)
	if err != nil || !claimed {
		t.Fatalf("claim after forget: claimed=%v err=%v", claimed, err)
	}
	if len(store.deleted) != 1 {
		t.Fatalf("expected one delete, got %v", store.deleted)
	}
}

func TestClaimRejectsNilEventAndSurfacesStoreErrors(t *testing.T) {
	store := newRecordingStore()
	guard, _ := NewGuard(store, "stock-alerts", time.Hour)

	if _, err := guard.Claim(context.Background(), uuid.Nil); err == nil {
		t.Fatal("expected error for nil event id")
	}

	store.err = errors.New("connection refused")
	if _, err := guard.Claim(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected store error")
	}
}
