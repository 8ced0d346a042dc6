package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gevika/map-metagenome/internal/cache"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time      { return f.now }
func (f *fakeClock) Add(d time.Duration) { f.now = f.now.Add(d) }

func newForTest(size int) (*Store, *fakeClock) {
	fc := &fakeClock{now: time.Unix(0, 0).UTC()}
	s := New(size)
	s.now = fc.Now
	return s, fc
}

func TestSetGetDel_HappyPath(t *testing.T) {
	s, _ := newForTest(4)
	ctx := context.Background()

	if err := s.Set(ctx, "k1", []byte("v1"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "k1")
	if err != nil || string(got) != "v1" {
		t.Fatalf("Get=%q err=%v", got, err)
	}
	got[0] = 'X'
	again, _ := s.Get(ctx, "k1")
	if string(again) != "v1" {
		t.Fatalf("returned slice aliases cached value")
	}

	if err := s.Del(ctx, "k1", "absent"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := s.Get(ctx, "k1"); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestTTL_ExpiresEntries(t *testing.T) {
	s, fc := newForTest(4)
	ctx := context.Background()

	_ = s.Set(ctx, "k", []byte("v"), time.Minute)
	fc.Add(59 * time.Second)
	if _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("entry expired early: %v", err)
	}
	fc.Add(time.Second)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound after ttl", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expired entry not evicted, len=%d", s.Len())
	}
}

func TestLRU_EvictsOldest(t *testing.T) {
	s, _ := newForTest(2)
	ctx := context.Background()

	_ = s.Set(ctx, "a", []byte("1"), 0)
	_ = s.Set(ctx, "b", []byte("2"), 0)
	_, _ = s.Get(ctx, "a") // a is now most recent
	_ = s.Set(ctx, "c", []byte("3"), 0)

	if _, err := s.Get(ctx, "b"); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("b should have been evicted")
	}
	if _, err := s.Get(ctx, "a"); err != nil {
		t.Fatalf("a should survive: %v", err)
	}
}

func TestCanceledContext(t *testing.T) {
	s, _ := newForTest(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Set(ctx, "k", []byte("v"), 0); err == nil {
		t.Fatalf("expected error on Set with canceled context")
	}
	if _, err := s.Get(ctx, "k"); err == nil {
		t.Fatalf("expected error on Get with canceled context")
	}
	if err := s.Del(ctx, "k"); err == nil {
		t.Fatalf("expected error on Del with canceled context")
	}
}
