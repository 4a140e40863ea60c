package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLimiter(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedis(client), mr
}

func TestRedisFixedWindow(t *testing.T) {
	r, mr := newRedisLimiter(t)
	rule := Rule{Max: 2, Window: time.Minute}
	key := Key("login", "10.0.0.1", "")

	for i := 0; i < 2; i++ {
		ok, _, err := r.Allow(context.Background(), key, rule)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !ok {
			t.Fatalf("hit %d rejected", i+1)
		}
	}

	ok, retry, err := r.Allow(context.Background(), key, rule)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ok {
		t.Fatal("third hit should be rejected")
	}
	if retry <= 0 || retry > time.Minute {
		t.Fatalf("retry-after = %v", retry)
	}

	mr.FastForward(time.Minute)
	ok, _, _ = r.Allow(context.Background(), key, rule)
	if !ok {
		t.Fatal("hit in new window should be allowed")
	}
}

func TestRedisBackendUnavailable(t *testing.T) {
	r, mr := newRedisLimiter(t)
	mr.Close()

	_, _, err := r.Allow(context.Background(), "k", Rule{Max: 1, Window: time.Minute})
	if err == nil {
		t.Fatal("expected backend error")
	}
}
