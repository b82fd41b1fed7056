package cache

import (
	"context"
	"testing"
	"time"
)

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REDIS_DB", "")
	opts, err := optionsFromEnv()
	if err != nil {
		t.Fatalf("optionsFromEnv: %v", err)
	}
	if opts.Addr != defaultRedisAddr || opts.DB != 0 {
		t.Fatalf("defaults = %s db=%d", opts.Addr, opts.DB)
	}

	t.Setenv("REDIS_ADDR", " cache.internal:6380 ")
	t.Setenv("REDIS_DB", "3")
	opts, err = optionsFromEnv()
	if err != nil {
		t.Fatalf("optionsFromEnv: %v", err)
	}
	if opts.Addr != "cache.internal:6380" || opts.DB != 3 {
		t.Fatalf("options = %s db=%d", opts.Addr, opts.DB)
	}

	t.Setenv("REDIS_DB", "primary")
	if _, err := optionsFromEnv(); err == nil {
		t.Fatal("expected an error for a non-numeric REDIS_DB")
	}
}

func TestNilJSONIsSafe(t *testing.T) {
	j := NewJSON(nil, "x:", time.Second)
	if j != nil {
		t.Fatal("NewJSON(nil) should return nil")
	}
	var out []string
	if j.Get(context.Background(), "k", &out) {
		t.Fatal("nil cache reported a hit")
	}
	j.Set(context.Background(), "k", []string{"v"})
	j.Invalidate(context.Background())
}
