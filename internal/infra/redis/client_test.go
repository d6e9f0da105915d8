package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"
)

func TestHealthCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	client := wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}), zaptest.NewLogger(t))

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("expected healthy redis, got %v", err)
	}

	mr.Close()
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check to fail after redis stopped")
	}
	_ = client.Close()
}

func TestHealthCheckInspectsFlagKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := wrap(
		redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		zaptest.NewLogger(t),
		WithFlagKeys("", "wa-local-state-first"),
	)
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("missing flag hash must be healthy, got %v", err)
	}

	mr.HSet("wa:feature_flags:wa-local-state-first", "*", "true")
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("flag hash must be healthy, got %v", err)
	}

	mr.Del("wa:feature_flags:wa-local-state-first")
	if err := mr.Set("wa:feature_flags:wa-local-state-first", "true"); err != nil {
		t.Fatalf("seed string flag: %v", err)
	}
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected a string flag value to fail the health check")
	}
}
