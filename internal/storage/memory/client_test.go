package memory

import (
	"context"
	"testing"
)

func TestSessionLifecycle(t *testing.T) {
	c := New()
	ctx := context.Background()

	if err := c.SetSession(ctx, "tok-1", "user-1"); err != nil {
		t.Fatalf("SetSession: %v", err)
	}
	got, err := c.GetSession(ctx, "tok-1")
	if err != nil || got != "user-1" {
		t.Errorf("GetSession = %q, %v", got, err)
	}

	if err := c.DeleteSession(ctx, "tok-1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	got, err = c.GetSession(ctx, "tok-1")
	if err != nil || got != "" {
		t.Errorf("GetSession after delete = %q, %v", got, err)
	}
}

func TestLoginRateLimit(t *testing.T) {
	c := New()
	ctx := context.Background()

	for i := 0; i < loginRateLimitMax; i++ {
		ok, err := c.CheckLoginRateLimit(ctx, "alice")
		if err != nil || !ok {
			t.Fatalf("attempt %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := c.CheckLoginRateLimit(ctx, "alice")
	if err != nil {
		t.Fatalf("CheckLoginRateLimit: %v", err)
	}
	if ok {
		t.Error("limit not enforced after max attempts")
	}
	// другой логин не задет
	ok, _ = c.CheckLoginRateLimit(ctx, "bob")
	if !ok {
		t.Error("rate limit leaked across logins")
	}
}
