package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"notebridge/internal/config"
	"notebridge/internal/database"
	"notebridge/internal/handlers"
	"notebridge/internal/jobs"
	"notebridge/internal/logging"
	"notebridge/internal/middleware"
	"notebridge/internal/services"
	"notebridge/internal/tools"
	"notebridge/pkg/auth"
)

const version = "1.0.0"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}
	logging.Init()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Printf("❌ Invalid configuration: %v", err)
		os.Exit(1)
	}

	tokenService, err := auth.NewTokenService(cfg.JWTSecretKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		log.Printf("❌ JWT secret rejected: %v", err)
		os.Exit(2)
	}

	ctx := context.Background()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer db.Close()
	if err := db.Initialize(ctx); err != nil {
		log.Fatalf("❌ Schema initialization failed: %v", err)
	}
	log.Println("✅ Database ready")

	// Token blacklist: Redis when configured, Postgres otherwise.
	var blacklist services.TokenBlacklist
	if cfg.RedisURL != "" {
		blacklist, err = services.NewRedisBlacklist(cfg.RedisURL)
		if err != nil {
			log.Fatalf("❌ Redis connection failed: %v", err)
		}
		log.Println("✅ Token blacklist backend: redis")
	} else {
		blacklist = services.NewPostgresBlacklist(db)
		log.Println("✅ Token blacklist backend: postgres")
	}
	defer blacklist.Close()

	authService := services.NewAuthService(db, tokenService, blacklist)

	var oauthService *services.OAuthService
	if cfg.OAuthConfigured() {
		oauthService = services.NewOAuthService(db, tokenService,
			cfg.GoogleWebClientID, cfg.GoogleWebClientSecret, cfg.GoogleOAuthRedirectURI, cfg.DeepLinkScheme)
		log.Println("✅ Google OAuth enabled")
	} else {
		log.Println("ℹ️ Google OAuth not configured, skipping")
	}

	// Billing
	pricingService := services.NewPricingService(db)
	if err := pricingService.SeedFromFile(ctx, cfg.PricingFile); err != nil {
		log.Printf("⚠️ Pricing seed failed (%s): %v", cfg.PricingFile, err)
	}
	var iapVerifier services.IAPVerifier
	if cfg.GooglePlayPackageName != "" && cfg.GooglePlayCredentialsFile != "" {
		iapVerifier, err = services.NewGooglePlayVerifier(ctx, cfg.GooglePlayPackageName, cfg.GooglePlayCredentialsFile)
		if err != nil {
			log.Fatalf("❌ Google Play verifier init failed: %v", err)
		}
		log.Println("✅ Google Play purchase verification enabled")
	} else {
		iapVerifier = services.NewDisabledVerifier()
		log.Println("ℹ️ Google Play verification not configured; purchases disabled")
	}
	billingService := services.NewBillingService(db, pricingService, iapVerifier)

	// RAG store
	embedder, err := services.NewGoogleEmbedder(ctx, cfg.GeminiAPIKey)
	if err != nil {
		log.Fatalf("❌ Embedder init failed: %v", err)
	}
	vectorStore := services.NewVectorStore(db, embedder)
	documentService := services.NewDocumentService(vectorStore)

	// Chat orchestration
	providerService, err := services.NewLLMProviderService(ctx, cfg.GeminiAPIKey, cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, pricingService)
	if err != nil {
		log.Fatalf("❌ LLM provider init failed: %v", err)
	}
	bridge := services.NewClientBridge()
	bridge.StartStaleSweeper()
	contextService := services.NewContextService()

	var webSearch *services.WebSearchService
	if cfg.WebSearchConfigured() {
		webSearch, err = services.NewWebSearchService(ctx, cfg.GoogleAPIKey, cfg.GoogleCSEID,
			services.NewPageFetcher(), vectorStore, documentService)
		if err != nil {
			log.Fatalf("❌ Web search init failed: %v", err)
		}
	} else {
		log.Println("ℹ️ Web search not configured; tool disabled")
	}

	toolRegistry, err := services.BuildToolRegistry(bridge, contextService, vectorStore, webSearch)
	if err != nil {
		log.Fatalf("❌ Tool registry init failed: %v", err)
	}
	log.Printf("🔧 Tool catalog: %v", toolRegistry.Names())

	tokenCounter := services.NewTokenCounter()
	contextBuilder := services.NewContextBuilder(tokenCounter)
	chatService := services.NewChatService(providerService, billingService, tokenCounter,
		contextBuilder, contextService, toolRegistry, cfg.MaxAgentIterations)

	services.InitMetrics(bridge)

	// Background sweepers
	scheduler, err := jobs.NewScheduler()
	if err != nil {
		log.Fatalf("❌ Scheduler init failed: %v", err)
	}
	sweepSchedules := jobs.SweepSchedules{
		Blacklist:  cfg.BlacklistSweepCron,
		Vectors:    cfg.VectorSweepCron,
		OAuthState: cfg.OAuthStateSweepCron,
	}
	if err := jobs.RegisterSweepers(scheduler, sweepSchedules, blacklist, vectorStore, oauthService); err != nil {
		log.Fatalf("❌ Sweeper registration failed: %v", err)
	}
	scheduler.Start()

	if cfg.PricingHotReload {
		go watchPricingFile(cfg.PricingFile, pricingService)
	}

	app := buildApp(cfg, db, authService, oauthService, billingService, pricingService,
		chatService, providerService, toolRegistry, documentService, vectorStore, bridge)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		log.Printf("🛑 Received %v, shutting down", sig)

		if err := scheduler.Shutdown(); err != nil {
			log.Printf("⚠️ Scheduler shutdown: %v", err)
		}
		bridge.Stop()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("⚠️ Server shutdown: %v", err)
		}
	}()

	log.Printf("🚀 notebridge v%s listening on :%s (%s)", version, cfg.Port, cfg.Environment)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Server error: %v", err)
	}
}

func buildApp(
	cfg *config.Config,
	db *database.DB,
	authService *services.AuthService,
	oauthService *services.OAuthService,
	billingService *services.BillingService,
	pricingService *services.PricingService,
	chatService *services.ChatService,
	providerService *services.LLMProviderService,
	toolRegistry *tools.Registry,
	documentService *services.DocumentService,
	vectorStore *services.VectorStore,
	bridge *services.ClientBridge,
) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "notebridge v" + version,
		// Agent turns can hold the connection for minutes while tool
		// round trips and provider calls complete.
		ReadTimeout:  300 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  300 * time.Second,
		BodyLimit:    cfg.BodyLimitMB * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("notebridge")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Admin-Token",
		AllowCredentials: cfg.AllowedOrigins != "*",
	}))

	rateLimits := middleware.LoadRateLimitConfig()
	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimits))

	healthHandler := handlers.NewHealthHandler(db, version)
	authHandler := handlers.NewAuthHandler(authService, oauthService, cfg)
	billingHandler := handlers.NewBillingHandler(billingService, pricingService, cfg)
	chatHandler := handlers.NewChatHandler(chatService, providerService, toolRegistry, cfg)
	kbHandler := handlers.NewKnowledgeBaseHandler(documentService, vectorStore, cfg)
	wsHandler := handlers.NewWebSocketHandler(bridge)

	app.Get("/health", healthHandler.Live)
	app.Get("/health/ready", healthHandler.Ready)

	protected := middleware.Protected(authService)

	// Auth
	authGroup := app.Group("/api/auth")
	authGroup.Post("/register", middleware.RegisterRateLimiter(rateLimits), authHandler.Register)
	authGroup.Post("/verify", middleware.AuthRateLimiter(rateLimits), authHandler.Verify)
	authGroup.Post("/refresh", middleware.AuthRateLimiter(rateLimits), authHandler.Refresh)
	authGroup.Post("/logout", middleware.AuthRateLimiter(rateLimits), protected, authHandler.Logout)
	authGroup.Get("/devices", protected, authHandler.Devices)
	authGroup.Delete("/devices/:device_id", protected, authHandler.DisableDevice)
	authGroup.Post("/google/auth-start", middleware.AuthRateLimiter(rateLimits), authHandler.GoogleStart)
	authGroup.Get("/google/callback", authHandler.GoogleCallback)

	// Billing
	billingGroup := app.Group("/api/billing")
	billingGroup.Get("/pricing", billingHandler.Pricing)
	billingGroup.Get("/balance", protected, billingHandler.Balance)
	billingGroup.Post("/purchase", protected, billingHandler.Purchase)
	billingGroup.Post("/allocate", protected, billingHandler.Allocate)
	billingGroup.Post("/consume", protected, billingHandler.Consume)
	billingGroup.Get("/transactions", protected, billingHandler.Transactions)

	// Chat
	chatLimiter := middleware.ChatRateLimiter(rateLimits)
	app.Post("/api/chat", protected, chatLimiter, chatHandler.Chat)
	app.Post("/api/chat/summarize", protected, chatLimiter, chatHandler.Summarize)
	app.Get("/api/llm-providers", protected, chatHandler.Providers)
	app.Get("/api/tools", protected, chatHandler.Tools)

	// Knowledge base
	uploadLimiter := middleware.UploadRateLimiter(rateLimits)
	kbGroup := app.Group("/api/knowledge-base", protected)
	kbGroup.Post("/documents/upload", uploadLimiter, kbHandler.Upload)
	kbGroup.Post("/documents/upload-text", uploadLimiter, kbHandler.UploadText)
	kbGroup.Get("/documents/stats", kbHandler.Stats)
	kbGroup.Delete("/documents/clear", kbHandler.Clear)
	kbGroup.Get("/collections", kbHandler.Collections)
	kbGroup.Post("/search", kbHandler.Search)
	kbGroup.Post("/collections/:collection_name/share", kbHandler.Share)

	// Admin
	adminGroup := app.Group("/api/admin", middleware.AdminOnly(cfg.AdminToken))
	adminGroup.Post("/pricing/reload", billingHandler.ReloadPricing)

	// WebSocket
	app.Use("/ws", middleware.WebSocketRateLimiter(rateLimits), protected, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/:client_id", websocket.New(wsHandler.Handle))

	return app
}

// watchPricingFile hot-reloads the pricing table when pricing.json
// changes. Watches the directory: editors replace the file instead of
// writing in place.
func watchPricingFile(filePath string, pricingService *services.PricingService) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️ Pricing watcher init failed: %v", err)
		return
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		log.Printf("⚠️ Pricing watcher: %v", err)
		return
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		log.Printf("⚠️ Pricing watcher: %v", err)
		return
	}
	filename := filepath.Base(absPath)
	log.Printf("👁️ Watching %s for pricing changes", filePath)

	var debounce *time.Timer
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(500*time.Millisecond, func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := pricingService.SeedFromFile(ctx, filePath); err != nil {
					log.Printf("❌ Pricing reload failed: %v", err)
					return
				}
				log.Printf("🔄 Pricing reloaded from %s", filePath)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️ Pricing watcher error: %v", err)
		}
	}
}
