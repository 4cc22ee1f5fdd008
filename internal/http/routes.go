package http

import (
	"os"
	"strconv"
	"time"

	"mining_webapp/internal/config"
	"mining_webapp/internal/http/handlers"
	"mining_webapp/internal/http/middleware"
	"mining_webapp/internal/repository"
	"mining_webapp/internal/service"
	"mining_webapp/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

func RegisterRoutes(r *gin.Engine, db *pgxpool.Pool, cfg *config.Config, miningSvc *service.MiningService, hub *ws.Hub, version string) {
	h := handlers.NewHandler(db, cfg.BotToken, miningSvc)
	healthHandler := handlers.NewHealthHandler(db, version)

	// read limits from env, with safe defaults
	apiRateLimit := 60
	if v := os.Getenv("API_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			apiRateLimit = n
		}
	}
	apiRateWindow := time.Minute
	if v := os.Getenv("API_RATE_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			apiRateWindow = time.Duration(n) * time.Second
		}
	}

	authRateLimit := 5
	if v := os.Getenv("AUTH_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			authRateLimit = n
		}
	}
	authRateWindow := time.Minute
	if v := os.Getenv("AUTH_RATE_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			authRateWindow = time.Duration(n) * time.Second
		}
	}

	// Health checks (no rate limiting)
	r.GET("/health", healthHandler.Health)
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)

	// API v1 routes
	v1 := r.Group("/api/v1")
	v1.Use(middleware.RedisRateLimit(apiRateLimit, apiRateWindow))
	registerAPIRoutes(v1, h, cfg, authRateLimit, authRateWindow)

	// WebSocket live session feed
	r.GET("/ws", ws.HandleFeed(hub, miningSvc))

	// Frontend static files
	r.StaticFS("/assets", gin.Dir("../frontend", false))
	r.NoRoute(func(c *gin.Context) {
		c.File("../frontend/index.html")
	})
}

func registerAPIRoutes(api *gin.RouterGroup, h *handlers.Handler, cfg *config.Config, authRateLimit int, authRateWindow time.Duration) {
	// Auth
	api.POST("/auth", middleware.RedisRateLimit(authRateLimit, authRateWindow), h.Auth)

	// User profile
	api.GET("/me", middleware.JWT(), h.Me)
	api.GET("/me/transactions", middleware.JWT(), h.GetTransactions)

	// Per-user limiter for wallet actions
	actionRL := middleware.UserRateLimit(cfg.ActionRateLimit, time.Duration(cfg.ActionRateWindow)*time.Second)

	// Mining session
	mining := api.Group("/mining")
	{
		mining.GET("/tiers", h.GetTiers)
		mining.GET("/projections", h.GetProjections)
		mining.GET("/state", middleware.JWT(), h.GetMiningState)
		mining.POST("/claim", middleware.JWT(), actionRL, h.ClaimMining)
		mining.POST("/tier", middleware.JWT(), actionRL, h.PurchaseTier)
	}

	// Referral system
	referralRepo := repository.NewReferralRepository(h.DB)
	referralHandler := handlers.NewReferralHandler(referralRepo, cfg.BotUsername)
	referral := api.Group("/referral")
	referral.Use(middleware.JWT())
	{
		referral.GET("/code", referralHandler.GetReferralCode)
		referral.GET("/link", referralHandler.GetReferralLink)
		referral.GET("/stats", referralHandler.GetReferralStats)
		referral.POST("/apply", referralHandler.ApplyReferralCode)
		referral.POST("/claim", actionRL, referralHandler.ClaimReferralBonus)
	}
}
