package cron

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type memoryRedis struct {
	values map[string]string
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memoryRedis) LockKey(name string) string { return "lock:" + name }

func TestRedisLockIsExclusivePerJob(t *testing.T) {
	store := &memoryRedis{values: map[string]string{}}
	locker, err := NewRedisLocker(store, time.Minute)
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}
	ctx := context.Background()

	first := locker.For("quote-sync")
	second := locker.For("quote-sync")
	other := locker.For("catalog-refresh")

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: %v %v", ok, err)
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second holder acquired a held lock")
	}
	if ok, _ := other.Acquire(ctx); !ok {
		t.Fatal("locks for different jobs must not collide")
	}
	if _, ok := store.values["lock:cron:quote-sync"]; !ok {
		t.Fatalf("unexpected keys %v", store.values)
	}

	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if _, ok := store.values["lock:cron:quote-sync"]; !ok {
		t.Fatal("non-owner release removed the lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("expected lock to be free after owner released it")
	}
}
