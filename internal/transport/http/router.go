package handlers

import (
	"context"
	"net/http"
	"time"

	"habitquest/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Redemptions    *RedemptionHandler
	Revival        *RevivalHandler
	LifeChallenges *LifeChallengeHandler
	Moderation     *ModerationHandler

	Tokens         middleware.TokenValidator
	Limiter        *middleware.RateLimiter
	ModeratorKey   string
	AllowedOrigins []string
	ProofLimit     int
	ProofWindow    time.Duration
	// Ping reports dependency health for /healthz. Optional.
	Ping   func(ctx context.Context) error
	Logger *zap.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(d.Logger))

	config := cors.DefaultConfig()
	if len(d.AllowedOrigins) == 0 || (len(d.AllowedOrigins) == 1 && d.AllowedOrigins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = d.AllowedOrigins
		config.AllowCredentials = true
	}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-API-Key", middleware.RequestIDHeader}
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	r.Use(cors.New(config))

	r.GET("/healthz", func(c *gin.Context) {
		if d.Ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := d.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		user := api.Group("")
		user.Use(middleware.AuthMiddleware(d.Tokens))
		{
			user.GET("/pending-redemptions", d.Redemptions.List)
			user.POST("/pending-redemptions/:id/redeem-life", d.Redemptions.RedeemLife)
			user.POST("/pending-redemptions/:id/redeem-challenge", d.Redemptions.RedeemChallenge)
			user.POST("/pending-redemptions/:id/complete-challenge",
				d.Limiter.Limit("proof", d.ProofLimit, d.ProofWindow),
				d.Redemptions.CompleteChallenge)
			user.GET("/pending-redemptions/:id/validation-status", d.Redemptions.ValidationStatus)

			user.GET("/revival/status", d.Revival.Status)
			user.GET("/revival/options", d.Revival.Options)
			user.POST("/revival/reset", d.Revival.Reset)
			user.POST("/revival/challenge", d.Revival.Challenge)

			user.GET("/life-challenges", d.LifeChallenges.List)
			user.POST("/life-challenges/:id/claim", d.LifeChallenges.Claim)
		}

		mod := api.Group("/moderation")
		mod.Use(middleware.ModeratorKey(d.ModeratorKey))
		{
			mod.GET("/validations", d.Moderation.ListPending)
			mod.POST("/validations/:id/review", d.Moderation.Review)
			mod.GET("/evidence/*path", d.Moderation.Evidence)
		}
	}

	return r
}
