package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sweeney/attention-monitor/internal/calibration"
)

func newCache(t *testing.T, ttl time.Duration) (*ThresholdCache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewThresholdCache(client, ttl), s
}

func TestThresholdCacheRoundTrip(t *testing.T) {
	cache, _ := newCache(t, time.Hour)
	ctx := context.Background()
	want := calibration.Thresholds{EAR: 0.27, Velocity: 42.5}

	if err := cache.Save(ctx, "subject-a", want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := cache.Load(ctx, "subject-a")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestThresholdCacheMiss(t *testing.T) {
	cache, _ := newCache(t, time.Hour)
	_, ok, err := cache.Load(context.Background(), "nobody")
	if err != nil || ok {
		t.Fatalf("expected a clean miss, got ok=%v err=%v", ok, err)
	}
}

func TestThresholdCacheExpires(t *testing.T) {
	cache, s := newCache(t, time.Minute)
	ctx := context.Background()
	if err := cache.Save(ctx, "subject-a", calibration.Thresholds{EAR: 0.3, Velocity: 10}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ttl := s.TTL(thresholdKey("subject-a")); ttl != time.Minute {
		t.Fatalf("expected ttl 1m, got %v", ttl)
	}

	s.FastForward(2 * time.Minute)
	if _, ok, _ := cache.Load(ctx, "subject-a"); ok {
		t.Fatal("expected thresholds to expire")
	}
}

func TestThresholdCacheForget(t *testing.T) {
	cache, _ := newCache(t, time.Hour)
	ctx := context.Background()
	_ = cache.Save(ctx, "subject-a", calibration.Thresholds{EAR: 0.3, Velocity: 10})
	if err := cache.Forget(ctx, "subject-a"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if _, ok, _ := cache.Load(ctx, "subject-a"); ok {
		t.Fatal("expected thresholds to be gone")
	}
}

func TestThresholdCacheCorruptEntry(t *testing.T) {
	cache, s := newCache(t, time.Hour)
	if err := s.Set(thresholdKey("subject-a"), "not json"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := cache.Load(context.Background(), "subject-a"); err == nil {
		t.Fatal("expected a decode error")
	}
}

func TestThresholdCacheServerDown(t *testing.T) {
	cache, s := newCache(t, time.Hour)
	s.Close()
	if err := cache.Save(context.Background(), "subject-a", calibration.Thresholds{}); err == nil {
		t.Fatal("expected an error with the server down")
	}
}
