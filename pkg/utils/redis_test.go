package utils

import (
	"context"
	"testing"
	"time"
)

func TestRedisConfigDefaults(t *testing.T) {
	c := RedisConfig{Addr: "localhost:6379"}.withDefaults()
	if c.PoolSize <= 0 || c.PingTimeout <= 0 || c.DialTimeout <= 0 {
		t.Fatalf("expected defaults to be applied: %+v", c)
	}
}

func TestRedisLease_RejectsInvalidArgs(t *testing.T) {
	var l RedisLease
	if _, err := l.Acquire(context.Background(), "k", time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error")
	}
}
