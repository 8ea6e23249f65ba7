package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"notebridge/internal/database"
)

// TokenBlacklist revokes JWTs before their natural expiry. Entries are
// content-addressed by the SHA-256 of the raw token, so the stores never
// hold the token itself.
type TokenBlacklist interface {
	Add(ctx context.Context, token string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, token string) (bool, error)
	// Sweep removes expired entries and returns how many were deleted.
	Sweep(ctx context.Context) (int64, error)
	Close() error
}

// HashToken returns the hex SHA-256 of a raw JWT.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

const blacklistKeyPrefix = "token_blacklist:"

// RedisBlacklist keeps entries in Redis with native TTL expiry.
type RedisBlacklist struct {
	client *redis.Client
}

// NewRedisBlacklist connects to Redis and verifies the connection.
func NewRedisBlacklist(redisURL string) (*RedisBlacklist, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✅ Redis token blacklist connected")

	return &RedisBlacklist{client: client}, nil
}

func (b *RedisBlacklist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		// Already expired; verification will reject it anyway.
		return nil
	}
	key := blacklistKeyPrefix + HashToken(token)
	if err := b.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

func (b *RedisBlacklist) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	key := blacklistKeyPrefix + HashToken(token)
	n, err := b.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return n > 0, nil
}

// Sweep is a no-op: Redis expires keys natively.
func (b *RedisBlacklist) Sweep(ctx context.Context) (int64, error) {
	return 0, nil
}

func (b *RedisBlacklist) Close() error {
	return b.client.Close()
}

// PostgresBlacklist keeps entries in the token_blacklist table. Expired
// rows stop matching immediately; the sweeper deletes them later.
type PostgresBlacklist struct {
	db *database.DB
}

func NewPostgresBlacklist(db *database.DB) *PostgresBlacklist {
	return &PostgresBlacklist{db: db}
}

func (b *PostgresBlacklist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO token_blacklist (token_hash, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (token_hash) DO UPDATE SET expires_at = GREATEST(token_blacklist.expires_at, EXCLUDED.expires_at)`,
		HashToken(token), time.Now().Add(ttl))
	if err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

func (b *PostgresBlacklist) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	var blacklisted bool
	err := b.db.GetContext(ctx, &blacklisted, `
		SELECT EXISTS (
			SELECT 1 FROM token_blacklist
			WHERE token_hash = $1 AND expires_at > now()
		)`,
		HashToken(token))
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return blacklisted, nil
}

func (b *PostgresBlacklist) Sweep(ctx context.Context) (int64, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM token_blacklist WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep blacklist: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}

// Close is a no-op; the shared DB pool is closed by the owner.
func (b *PostgresBlacklist) Close() error {
	return nil
}
