package cron

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type memoryLockStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryLockStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryLockStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryLockStore) LockKey(name string) string { return "sfi:lock:" + name }

func TestRedisLockPerJob(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLockStore()
	first, err := NewRedisLock(store, 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, _ := NewRedisLock(store, 0)

	if ok, err := first.Acquire(ctx, "reservation-expiry"); err != nil || !ok {
		t.Fatalf("first acquire: %v %v", ok, err)
	}
	if store.ttls["sfi:lock:cron:reservation-expiry"] != defaultLockTTL {
		t.Fatalf("expected default ttl to be applied")
	}
	if ok, _ := second.Acquire(ctx, "reservation-expiry"); ok {
		t.Fatal("second worker must not acquire a held job lock")
	}
	if ok, _ := second.Acquire(ctx, "outbox-retention"); !ok {
		t.Fatal("locks for different jobs are independent")
	}

	if err := second.Release(ctx, "reservation-expiry"); err != nil {
		t.Fatalf("foreign release: %v", err)
	}
	if _, ok := store.data["sfi:lock:cron:reservation-expiry"]; !ok {
		t.Fatal("a worker must not release a lock it does not own")
	}
	if err := first.Release(ctx, "reservation-expiry"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok := store.data["sfi:lock:cron:reservation-expiry"]; ok {
		t.Fatal("owner release should delete the key")
	}
}

func TestRedisLockSkipsReleaseAfterTakeover(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLockStore()
	lock, _ := NewRedisLock(store, time.Minute)
	if ok, _ := lock.Acquire(ctx, "job"); !ok {
		t.Fatal("acquire failed")
	}
	store.data["sfi:lock:cron:job"] = "someone-else"
	if err := lock.Release(ctx, "job"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.data["sfi:lock:cron:job"] != "someone-else" {
		t.Fatal("expired-and-retaken lock must be left alone")
	}
	if _, err := NewRedisLock(nil, time.Minute); err == nil {
		t.Fatal("expected nil client error")
	}
}
