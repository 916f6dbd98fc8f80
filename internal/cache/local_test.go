package cache

import (
	"context"
	"testing"
	"time"
)

func TestLocalTryLock(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, ok, err := l.TryLock(ctx, LockKey("stk", "ws_CO_1"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("first lock: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := l.TryLock(ctx, LockKey("stk", "ws_CO_1"), time.Minute); ok {
		t.Fatal("second lock should be refused while held")
	}
	if _, ok, _ := l.TryLock(ctx, LockKey("stk", "ws_CO_2"), time.Minute); !ok {
		t.Fatal("locks on different keys must not interfere")
	}
	release()
	if _, ok, _ := l.TryLock(ctx, LockKey("stk", "ws_CO_1"), time.Minute); !ok {
		t.Fatal("lock should be free after release")
	}
}

func TestLocalLockExpires(t *testing.T) {
	l := NewLocal()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if _, ok, _ := l.TryLock(context.Background(), "k", time.Second); !ok {
		t.Fatal("lock refused")
	}
	now = now.Add(2 * time.Second)
	if _, ok, _ := l.TryLock(context.Background(), "k", time.Second); !ok {
		t.Fatal("expired lock should be reacquirable")
	}
}

func TestLocalAllowThrottles(t *testing.T) {
	l := NewLocal()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	key := ThrottleKey("stk_query", "ws_CO_1")

	if ok, _ := l.Allow(context.Background(), key, 10*time.Second); !ok {
		t.Fatal("first call should be allowed")
	}
	now = now.Add(5 * time.Second)
	if ok, _ := l.Allow(context.Background(), key, 10*time.Second); ok {
		t.Fatal("call inside window should be throttled")
	}
	now = now.Add(6 * time.Second)
	if ok, _ := l.Allow(context.Background(), key, 10*time.Second); !ok {
		t.Fatal("call after window should be allowed")
	}
}
