package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eatright/eatright-api/internal/container"
	repo "github.com/eatright/eatright-api/internal/domain/repository"
	handlers "github.com/eatright/eatright-api/internal/interface/http"
	"github.com/eatright/eatright-api/internal/interface/middleware"
	"github.com/eatright/eatright-api/pkg/helpers"
)

type AuthModule struct {
	Handler *handlers.AuthHandler
	Codec   *helpers.TokenCodec
	Revoked repo.RevocationRepository
}

func NewAuthModule(h *handlers.AuthHandler, codec *helpers.TokenCodec, revoked repo.RevocationRepository) *AuthModule {
	return &AuthModule{Handler: h, Codec: codec, Revoked: revoked}
}

func (m *AuthModule) Register(rg *gin.RouterGroup) {
	// Public endpoints with IP-based limits. Internal callers bypass them.
	registerLimiter := middleware.RateLimit(container.GetRedis(), 10, time.Minute, middleware.KeyByIPAndPath(), middleware.AllowPrivateIP())
	loginLimiter := middleware.RateLimit(container.GetRedis(), 30, time.Minute, middleware.KeyByIPAndPath(), middleware.AllowPrivateIP())
	recoveryLimiter := middleware.RateLimit(container.GetRedis(), 5, time.Minute, middleware.KeyByIPAndPath(), middleware.AllowPrivateIP())
	tokenLimiter := middleware.RateLimit(container.GetRedis(), 30, time.Minute, middleware.KeyByIPAndPath(), middleware.AllowPrivateIP())

	rg.POST("/auth/register", registerLimiter, m.Handler.Register)
	rg.POST("/auth/login", loginLimiter, m.Handler.Login)
	rg.POST("/auth/password-recovery/:email", recoveryLimiter, m.Handler.RecoverPassword)
	rg.POST("/auth/reset-password/:token", tokenLimiter, m.Handler.ResetPassword)
	rg.POST("/auth/verify-email-verification-token/:token", tokenLimiter, m.Handler.VerifyEmail)

	// Endpoints that require a live access token.
	auth := rg.Group("/")
	auth.Use(middleware.Auth(m.Codec, m.Revoked))
	auth.Use(middleware.RateLimit(container.GetRedis(), 5, time.Minute, middleware.KeyByUserID(), nil))
	{
		auth.POST("/auth/logout", m.Handler.Logout)
		auth.POST("/auth/verify-email/:id", m.Handler.RequestVerification)
	}
}
