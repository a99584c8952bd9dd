package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestLimiter creates a Limiter connected to a local Redis instance and
// removes leftover test keys before and after the test. Tests that call this
// helper require a running Redis on localhost:6379.
func newTestLimiter(t *testing.T, rule Rule) *Limiter {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	clean := func() {
		iter := client.Scan(ctx, 0, rule.Key+"test_*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	}
	clean()
	t.Cleanup(func() {
		clean()
		client.Close()
	})
	return NewLimiter(client, rule)
}

func TestAllowSend_WithinLimit(t *testing.T) {
	l := newTestLimiter(t, RuleMessage)
	ctx := context.Background()

	for i := 0; i < RuleMessage.Limit; i++ {
		if !l.AllowSend(ctx, "test_u1") {
			t.Fatalf("send %d denied within limit", i+1)
		}
	}
	if l.AllowSend(ctx, "test_u1") {
		t.Fatal("send over the limit was allowed")
	}
}

func TestAllowSend_PerUser(t *testing.T) {
	l := newTestLimiter(t, RuleMessage)
	ctx := context.Background()

	for i := 0; i <= RuleMessage.Limit; i++ {
		l.AllowSend(ctx, "test_u1")
	}
	if !l.AllowSend(ctx, "test_u2") {
		t.Fatal("another user's budget was consumed")
	}
}

func TestAllow_WindowExpires(t *testing.T) {
	rule := Rule{Key: "circle:rl:test:", Limit: 1, Window: 200 * time.Millisecond}
	l := newTestLimiter(t, rule)
	ctx := context.Background()

	if ok, err := l.Allow(ctx, "test_w", rule); !ok || err != nil {
		t.Fatalf("first call: ok=%v err=%v", ok, err)
	}
	if ok, _ := l.Allow(ctx, "test_w", rule); ok {
		t.Fatal("second call within window allowed")
	}

	time.Sleep(300 * time.Millisecond)
	if ok, _ := l.Allow(ctx, "test_w", rule); !ok {
		t.Fatal("call after window denied")
	}
}

func TestRemaining(t *testing.T) {
	l := newTestLimiter(t, RuleMessage)
	ctx := context.Background()

	if n, err := l.Remaining(ctx, "test_r", RuleMessage); err != nil || n != RuleMessage.Limit {
		t.Fatalf("expected full budget, got %d (%v)", n, err)
	}
	l.AllowSend(ctx, "test_r")
	l.AllowSend(ctx, "test_r")
	if n, _ := l.Remaining(ctx, "test_r", RuleMessage); n != RuleMessage.Limit-2 {
		t.Fatalf("expected %d remaining, got %d", RuleMessage.Limit-2, n)
	}
}

func TestAllowSend_FailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	l := NewLimiter(client, RuleMessage)
	if !l.AllowSend(context.Background(), "test_down") {
		t.Fatal("limiter must fail open when Redis is unreachable")
	}
}
