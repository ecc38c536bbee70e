package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/vidgrab/vidgrab/internal/metrics"
)

// newRedisTestStore connects to a local Redis, skipping when none is
// reachable.
func newRedisTestStore(t *testing.T) *RedisStore {
	t.Helper()

	url := os.Getenv("VIDGRAB_TEST_REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}

	s, err := NewRedisStore(url)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() {
		s.Clear(context.Background())
		s.Close()
	})
	return s
}

func TestRedisStore_SetGet(t *testing.T) {
	s := newRedisTestStore(t)
	ctx := context.Background()

	in := record{Name: "alpha", Count: 7}
	if err := s.Set(ctx, KeyPreferences, in); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	var out record
	if err := s.Get(ctx, KeyPreferences, &out); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if out != in {
		t.Errorf("Get() = %+v, want %+v", out, in)
	}
}

func TestRedisStore_GetMissing(t *testing.T) {
	s := newRedisTestStore(t)

	var out record
	err := s.Get(context.Background(), KeyActiveJob, &out)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestRedisStore_CorruptRecordDiscarded(t *testing.T) {
	s := newRedisTestStore(t)
	ctx := context.Background()

	if err := s.client.Set(ctx, keyPrefix+string(KeyHistory), "{not json", 0).Err(); err != nil {
		t.Fatalf("seed corrupt record: %v", err)
	}

	discardsBefore := metrics.Counter(metrics.CounterStoreDiscards)

	var out []record
	if err := s.Get(ctx, KeyHistory, &out); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}

	if got := metrics.Counter(metrics.CounterStoreDiscards); got != discardsBefore+1 {
		t.Errorf("store discard counter = %d, want %d", got, discardsBefore+1)
	}

	// The corrupt record must be gone.
	if err := s.client.Get(ctx, keyPrefix+string(KeyHistory)).Err(); !errors.Is(err, redis.Nil) {
		t.Errorf("corrupt record still present after Get")
	}
}

func TestRedisStore_Clear(t *testing.T) {
	s := newRedisTestStore(t)
	ctx := context.Background()

	for _, key := range []Key{KeyActiveJob, KeyHistory, KeyPreview} {
		if err := s.Set(ctx, key, record{Name: string(key)}); err != nil {
			t.Fatalf("Set(%s) error = %v", key, err)
		}
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	for _, key := range []Key{KeyActiveJob, KeyHistory, KeyPreview} {
		var out record
		if err := s.Get(ctx, key, &out); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%s) after Clear error = %v, want ErrNotFound", key, err)
		}
	}
}
