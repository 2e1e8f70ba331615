package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	repo "github.com/eatright/eatright-api/internal/domain/repository"
	"github.com/eatright/eatright-api/pkg/helpers"
	"github.com/eatright/eatright-api/pkg/response"
)

const (
	CtxUserIDKey      = "userID"
	CtxAccessTokenKey = "accessToken"
)

// Auth reads the bearer access token from the Authorization header, rejects
// blacklisted tokens, validates signature and expiry, and injects the user id
// and the raw token into the Gin context. The blacklist check runs first so a
// revoked-but-unexpired token dies cheaply.
func Auth(codec *helpers.TokenCodec, revoked repo.RevocationRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			resp := response.Error[any](c, http.StatusUnauthorized, "missing access token", nil)
			c.AbortWithStatusJSON(resp.Status, resp)
			return
		}
		if isRevoked, err := revoked.IsRevoked(c.Request.Context(), token); err == nil && isRevoked {
			resp := response.Error[any](c, http.StatusUnauthorized, "token has been revoked", nil)
			c.AbortWithStatusJSON(resp.Status, resp)
			return
		}
		uid, err := codec.Verify(helpers.TokenPurposeAccess, token)
		if err != nil {
			resp := response.Error[any](c, http.StatusUnauthorized, "invalid access token", nil)
			c.AbortWithStatusJSON(resp.Status, resp)
			return
		}
		c.Set(CtxUserIDKey, uid)
		c.Set(CtxAccessTokenKey, token)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
