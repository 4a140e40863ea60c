package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryFixedWindow(t *testing.T) {
	m := NewMemory()
	now := time.Now()
	m.SetClock(func() time.Time { return now })

	rule := Rule{Max: 3, Window: time.Minute}
	key := Key("login", "10.0.0.1", "")

	for i := 0; i < 3; i++ {
		ok, _, err := m.Allow(context.Background(), key, rule)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !ok {
			t.Fatalf("hit %d rejected", i+1)
		}
	}

	ok, retry, err := m.Allow(context.Background(), key, rule)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ok {
		t.Fatal("fourth hit should be rejected")
	}
	if retry <= 0 || retry > time.Minute {
		t.Fatalf("retry-after = %v", retry)
	}

	now = now.Add(time.Minute)
	ok, _, _ = m.Allow(context.Background(), key, rule)
	if !ok {
		t.Fatal("hit in new window should be allowed")
	}
}

func TestMemoryKeysIndependent(t *testing.T) {
	m := NewMemory()
	rule := Rule{Max: 1, Window: time.Minute}

	m.Allow(context.Background(), Key("login", "10.0.0.1", ""), rule)
	ok, _, _ := m.Allow(context.Background(), Key("login", "10.0.0.2", ""), rule)
	if !ok {
		t.Fatal("second client throttled by first client's bucket")
	}
	ok, _, _ = m.Allow(context.Background(), Key("reset", "10.0.0.1", ""), rule)
	if !ok {
		t.Fatal("second endpoint throttled by first endpoint's bucket")
	}
}

func TestMemoryDiscriminatorPartitionsBucket(t *testing.T) {
	m := NewMemory()
	rule := Rule{Max: 1, Window: time.Minute}

	m.Allow(context.Background(), Key("verify", "10.0.0.1", "alice"), rule)
	ok, _, _ := m.Allow(context.Background(), Key("verify", "10.0.0.1", "bob"), rule)
	if !ok {
		t.Fatal("different discriminator should get its own bucket")
	}
}

func TestMemoryEvictsPassedBuckets(t *testing.T) {
	m := NewMemory()
	now := time.Now()
	m.SetClock(func() time.Time { return now })

	rule := Rule{Max: 1, Window: time.Minute}
	m.Allow(context.Background(), "a", rule)
	m.Allow(context.Background(), "b", rule)

	now = now.Add(2 * time.Minute)
	m.Allow(context.Background(), "c", rule)

	n := 0
	m.buckets.Range(func(_, _ any) bool {
		n++
		return true
	})
	if n != 1 {
		t.Fatalf("buckets after eviction = %d, want 1", n)
	}
}

func TestMemoryConcurrentHitsSingleBucket(t *testing.T) {
	const budget = 10
	const racers = 32
	m := NewMemory()
	rule := Rule{Max: budget, Window: time.Hour}
	key := Key("login", "10.0.0.1", "")

	var wg sync.WaitGroup
	var allowed atomic.Int64
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := m.Allow(context.Background(), key, rule)
			if err != nil {
				t.Errorf("Allow: %v", err)
				return
			}
			if ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != budget {
		t.Fatalf("allowed = %d, want exactly %d", got, budget)
	}
}
