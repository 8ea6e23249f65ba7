package middleware

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds the per-tier limits. All windows are one minute.
type RateLimitConfig struct {
	GlobalAPIMax int // every request, per IP
	RegisterMax  int // device registration, per IP
	AuthMax      int // token endpoints (refresh, verify, logout), per IP
	ChatMax      int // chat + summarize, per user
	UploadMax    int // knowledge-base uploads, per user
	WebSocketMax int // websocket upgrades, per IP

	Window time.Duration
}

func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		GlobalAPIMax: 200,
		RegisterMax:  10,
		AuthMax:      30,
		ChatMax:      30,
		UploadMax:    20,
		WebSocketMax: 20,
		Window:       time.Minute,
	}
}

// LoadRateLimitConfig applies env overrides and the development-mode
// relaxation.
func LoadRateLimitConfig() *RateLimitConfig {
	config := DefaultRateLimitConfig()

	override := func(envKey string, target *int) {
		if v := os.Getenv(envKey); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*target = n
			}
		}
	}
	override("RATE_LIMIT_GLOBAL_API", &config.GlobalAPIMax)
	override("RATE_LIMIT_REGISTER", &config.RegisterMax)
	override("RATE_LIMIT_AUTH", &config.AuthMax)
	override("RATE_LIMIT_CHAT", &config.ChatMax)
	override("RATE_LIMIT_UPLOAD", &config.UploadMax)
	override("RATE_LIMIT_WEBSOCKET", &config.WebSocketMax)

	if os.Getenv("ENVIRONMENT") == "development" {
		config.GlobalAPIMax = 1000
		config.RegisterMax = 100
		config.WebSocketMax = 100
		log.Println("⚠️ [RATE-LIMIT] Development mode: using relaxed rate limits")
	}
	return config
}

// GlobalAPIRateLimiter is the outermost per-IP limit.
func GlobalAPIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return perIPLimiter("global", config.GlobalAPIMax, config.Window)
}

// RegisterRateLimiter guards device registration, which mints accounts.
func RegisterRateLimiter(config *RateLimitConfig) fiber.Handler {
	return perIPLimiter("register", config.RegisterMax, config.Window)
}

// AuthRateLimiter guards the token endpoints.
func AuthRateLimiter(config *RateLimitConfig) fiber.Handler {
	return perIPLimiter("auth", config.AuthMax, config.Window)
}

// WebSocketRateLimiter guards upgrade attempts.
func WebSocketRateLimiter(config *RateLimitConfig) fiber.Handler {
	return perIPLimiter("ws", config.WebSocketMax, config.Window)
}

// ChatRateLimiter limits provider-backed endpoints per authenticated user.
func ChatRateLimiter(config *RateLimitConfig) fiber.Handler {
	return perUserLimiter("chat", config.ChatMax, config.Window)
}

// UploadRateLimiter limits knowledge-base ingestion per user.
func UploadRateLimiter(config *RateLimitConfig) fiber.Handler {
	return perUserLimiter("upload", config.UploadMax, config.Window)
}

func perIPLimiter(tier string, max int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return tier + ":" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] %s limit reached for IP %s on %s", tier, c.IP(), c.Path())
			return limitReached(c, window)
		},
	})
}

func perUserLimiter(tier string, max int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID := UserID(c); userID != "" {
				return tier + ":" + userID
			}
			return tier + "-ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] %s limit reached for user %s", tier, UserID(c))
			return limitReached(c, window)
		},
	})
}

func limitReached(c *fiber.Ctx, window time.Duration) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "RATE_LIMITED",
			"message": "too many requests, slow down",
			"details": fiber.Map{"retry_after_seconds": int(window.Seconds())},
		},
	})
}
