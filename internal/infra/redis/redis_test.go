//go:build !integration

package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"reminder-bot/internal/domain"
)

type fakeClient struct {
	mu       sync.Mutex
	counters map[string]int64
	expires  map[string]time.Duration
	incrErr  error
}

func newFakeClient() *fakeClient {
	return &fakeClient{counters: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (f *fakeClient) Ping(ctx context.Context) error { return nil }
func (f *fakeClient) Incr(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incrErr != nil {
		return 0, f.incrErr
	}
	f.counters[key]++
	return f.counters[key], nil
}
func (f *fakeClient) Expire(ctx context.Context, key string, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expires[key] = d
	return nil
}
func (f *fakeClient) Del(ctx context.Context, keys ...string) error { return nil }
func (f *fakeClient) Close() error                                  { return nil }

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()

	t.Run("should allow up to the limit then refuse", func(t *testing.T) {
		client := newFakeClient()
		rl := NewRateLimiter(client, 3, time.Minute)

		for i := 0; i < 3; i++ {
			ok, err := rl.Allow(ctx, 7)
			if err != nil || !ok {
				t.Fatalf("call %d: expected allowed, got %v %v", i, ok, err)
			}
		}
		ok, err := rl.Allow(ctx, 7)
		if err != nil || ok {
			t.Fatalf("expected refusal after limit, got %v %v", ok, err)
		}
		if client.expires[UserCommandKey(7)] != time.Minute {
			t.Error("window expiry should be set on first hit")
		}
	})

	t.Run("should count users independently", func(t *testing.T) {
		rl := NewRateLimiter(newFakeClient(), 1, time.Minute)
		if ok, _ := rl.Allow(ctx, 1); !ok {
			t.Fatal("user 1 first call should pass")
		}
		if ok, _ := rl.Allow(ctx, 2); !ok {
			t.Fatal("user 2 should not be affected by user 1")
		}
	})

	t.Run("should surface backend errors", func(t *testing.T) {
		client := newFakeClient()
		client.incrErr = errors.New("conn refused")
		if _, err := NewRateLimiter(client, 1, time.Minute).Allow(ctx, 1); err == nil {
			t.Fatal("expected an error")
		}
	})
}

type fakeLocker struct {
	mu        sync.Mutex
	refreshes int
	lost      bool
	flaky     error
	unlocked  bool
}

func (f *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "tok", nil
}
func (f *fakeLocker) Refresh(ctx context.Context, key, token string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.lost {
		return domain.ErrLockHeld
	}
	return f.flaky
}
func (f *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unlocked = true
	return nil
}

func TestHoldLock(t *testing.T) {
	t.Run("should refresh and release on cancellation", func(t *testing.T) {
		l := &fakeLocker{}
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		if err := HoldLock(ctx, l, InstanceLockKey, "tok", 30*time.Millisecond); err != nil {
			t.Fatalf("expected clean release, got %v", err)
		}
		if l.refreshes == 0 || !l.unlocked {
			t.Errorf("expected refreshes and unlock, got %d refreshes unlocked=%v", l.refreshes, l.unlocked)
		}
	})

	t.Run("should keep holding through transient refresh errors", func(t *testing.T) {
		l := &fakeLocker{flaky: errors.New("i/o timeout")}
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		if err := HoldLock(ctx, l, InstanceLockKey, "tok", 30*time.Millisecond); err != nil {
			t.Fatalf("expected transient errors to be retried, got %v", err)
		}
		if l.refreshes < 2 || !l.unlocked {
			t.Errorf("expected repeated refreshes and unlock, got %d unlocked=%v", l.refreshes, l.unlocked)
		}
	})

	t.Run("should report lost ownership", func(t *testing.T) {
		l := &fakeLocker{lost: true}
		err := HoldLock(context.Background(), l, InstanceLockKey, "tok", 30*time.Millisecond)
		if !errors.Is(err, domain.ErrLockHeld) {
			t.Fatalf("expected ErrLockHeld, got %v", err)
		}
	})
}
