package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisBlacklist(t *testing.T) (*RedisBlacklist, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return &RedisBlacklist{client: client}, mr
}

func TestHashTokenStable(t *testing.T) {
	a := HashToken("header.payload.signature")
	b := HashToken("header.payload.signature")
	if a != b {
		t.Fatal("same token must hash to same value")
	}
	if len(a) != 64 {
		t.Fatalf("hash length = %d, want 64 hex chars", len(a))
	}
	if a == HashToken("header.payload.other") {
		t.Fatal("different tokens must hash differently")
	}
}

func TestRedisBlacklistAddAndCheck(t *testing.T) {
	bl, _ := newTestRedisBlacklist(t)
	ctx := context.Background()

	const token = "aaa.bbb.ccc"

	blacklisted, err := bl.IsBlacklisted(ctx, token)
	if err != nil {
		t.Fatalf("IsBlacklisted: %v", err)
	}
	if blacklisted {
		t.Fatal("fresh token must not be blacklisted")
	}

	if err := bl.Add(ctx, token, time.Hour); err != nil {
		t.Fatalf("Add: %v", err)
	}

	blacklisted, err = bl.IsBlacklisted(ctx, token)
	if err != nil {
		t.Fatalf("IsBlacklisted: %v", err)
	}
	if !blacklisted {
		t.Fatal("added token must be blacklisted")
	}

	// A different token stays clean.
	other, err := bl.IsBlacklisted(ctx, "xxx.yyy.zzz")
	if err != nil {
		t.Fatalf("IsBlacklisted(other): %v", err)
	}
	if other {
		t.Fatal("unrelated token must not be blacklisted")
	}
}

func TestRedisBlacklistEntryExpires(t *testing.T) {
	bl, mr := newTestRedisBlacklist(t)
	ctx := context.Background()

	const token = "aaa.bbb.ccc"
	if err := bl.Add(ctx, token, time.Minute); err != nil {
		t.Fatalf("Add: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	blacklisted, err := bl.IsBlacklisted(ctx, token)
	if err != nil {
		t.Fatalf("IsBlacklisted: %v", err)
	}
	if blacklisted {
		t.Fatal("entry must expire with its TTL")
	}
}

func TestRedisBlacklistSkipsExpiredTTL(t *testing.T) {
	bl, _ := newTestRedisBlacklist(t)
	ctx := context.Background()

	const token = "aaa.bbb.ccc"
	if err := bl.Add(ctx, token, -time.Minute); err != nil {
		t.Fatalf("Add with negative ttl: %v", err)
	}

	blacklisted, err := bl.IsBlacklisted(ctx, token)
	if err != nil {
		t.Fatalf("IsBlacklisted: %v", err)
	}
	if blacklisted {
		t.Fatal("negative ttl must be a no-op")
	}
}
