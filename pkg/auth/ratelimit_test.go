package auth

import (
	"context"
	"errors"
	"testing"
)

func TestInProcessLimiter(t *testing.T) {
	ctx := context.Background()

	t.Run("separate subjects", func(t *testing.T) {
		l := NewInProcessLimiter(nil, 1)
		if err := l.Allow(ctx, &Identity{Subject: "a"}); err != nil {
			t.Fatalf("first request for a: %v", err)
		}
		if err := l.Allow(ctx, &Identity{Subject: "b"}); err != nil {
			t.Fatalf("first request for b: %v", err)
		}
		err := l.Allow(ctx, &Identity{Subject: "a"})
		if !errors.Is(err, ErrTooManyRequests) {
			t.Fatalf("second request for a: err = %v, want ErrTooManyRequests", err)
		}
		var rle *RateLimitError
		if !errors.As(err, &rle) || rle.RetryAfter <= 0 {
			t.Errorf("err = %#v, want RateLimitError with positive RetryAfter", err)
		}
	})

	t.Run("zero rate disables", func(t *testing.T) {
		l := NewInProcessLimiter(map[string]TierConfig{"free": {RequestsPerMinute: 0}}, 0)
		for i := range 100 {
			if err := l.Allow(ctx, &Identity{Subject: "x", ServiceTier: "free"}); err != nil {
				t.Fatalf("request %d: %v", i, err)
			}
		}
	})

	t.Run("burst", func(t *testing.T) {
		l := NewInProcessLimiter(map[string]TierConfig{"gold": {RequestsPerMinute: 60, Burst: 3}}, 1)
		id := &Identity{Subject: "g", ServiceTier: "gold"}
		for i := range 3 {
			if err := l.Allow(ctx, id); err != nil {
				t.Fatalf("request %d: %v", i, err)
			}
		}
		if err := l.Allow(ctx, id); err == nil {
			t.Error("request beyond burst allowed")
		}
	})

	t.Run("tier falls back to default", func(t *testing.T) {
		l := NewInProcessLimiter(map[string]TierConfig{"gold": {RequestsPerMinute: 100}}, 1)
		id := &Identity{Subject: "s", ServiceTier: "silver"}
		if err := l.Allow(ctx, id); err != nil {
			t.Fatal(err)
		}
		if err := l.Allow(ctx, id); err == nil {
			t.Error("default tier limit not applied")
		}
	})
}
