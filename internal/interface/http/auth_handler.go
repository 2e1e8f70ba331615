package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/eatright/eatright-api/internal/application"
	"github.com/eatright/eatright-api/internal/interface/middleware"
	"github.com/eatright/eatright-api/pkg/response"
	"github.com/eatright/eatright-api/pkg/validation"
)

// AuthHandler is the transport boundary for the auth flows. It binds and
// validates payloads, calls the service, and maps the service's error
// taxonomy onto HTTP statuses.
type AuthHandler struct {
	Svc    *application.AuthService
	Logger *logrus.Logger
}

func NewAuthHandler(svc *application.AuthService, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{Svc: svc, Logger: logger}
}

type registerRequest struct {
	FirstName   string `json:"first_name" binding:"required,alpha,min=3,max=50"`
	LastName    string `json:"last_name" binding:"required,alpha,min=3,max=50"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,strongpwd,max=64"`
	PhoneNumber string `json:"phone_number" binding:"omitempty,phone"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"new_password" binding:"required,strongpwd,max=64"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, application.ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, application.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, application.ErrUserInactive):
		return http.StatusUnauthorized
	case errors.Is(err, application.ErrInvalidCredentials),
		errors.Is(err, application.ErrInvalidToken),
		errors.Is(err, application.ErrAlreadyRevoked),
		errors.Is(err, application.ErrAlreadyActive),
		errors.Is(err, application.ErrSamePassword):
		return http.StatusBadRequest
	case errors.Is(err, application.ErrNotifierFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *AuthHandler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		// Internal causes stay in the logs.
		h.Logger.WithError(err).WithField("path", c.FullPath()).Error("auth flow failed")
		msg = "internal error"
	}
	response.Fail[any](c, status, msg, nil)
}

// Register POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	res, err := h.Svc.Register(c.Request.Context(), application.RegisterInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Password:    req.Password,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{
		"user_id":                 res.User.ID,
		"verification_email_sent": res.NotificationSent,
	}, "user created successfully", nil)
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	res, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"access_token": res.AccessToken,
		"is_active":    res.IsActive,
	}, "user logged in successfully", map[string]any{"expires_at": res.ExpiresAt})
}

// Logout POST /api/auth/logout (auth required)
func (h *AuthHandler) Logout(c *gin.Context) {
	token := c.GetString(middleware.CtxAccessTokenKey)
	if token == "" {
		response.Fail[any](c, http.StatusUnauthorized, "missing access token", nil)
		return
	}
	if err := h.Svc.Logout(c.Request.Context(), token); err != nil {
		h.fail(c, err)
		return
	}
	response.Success[any](c, http.StatusOK, gin.H{"logged_out": true}, "user logged out successfully", nil)
}

// RecoverPassword POST /api/auth/password-recovery/:email
func (h *AuthHandler) RecoverPassword(c *gin.Context) {
	email := c.Param("email")
	if err := h.Svc.RequestPasswordRecovery(c.Request.Context(), email); err != nil {
		h.fail(c, err)
		return
	}
	response.Success[any](c, http.StatusOK, gin.H{"email_sent": true}, "password recovery email sent", nil)
}

// ResetPassword POST /api/auth/reset-password/:token
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	if err := h.Svc.ResetPassword(c.Request.Context(), c.Param("token"), req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	response.Success[any](c, http.StatusOK, gin.H{"reset": true}, "password reset successful", nil)
}

// RequestVerification POST /api/auth/verify-email/:id (auth required)
// Re-sends the verification email for the addressed user. The path id must
// match the authenticated user; there is no admin surface here.
func (h *AuthHandler) RequestVerification(c *gin.Context) {
	id := c.Param("id")
	if id != c.GetString(middleware.CtxUserIDKey) {
		response.Fail[any](c, http.StatusUnauthorized, "cannot request verification for another user", nil)
		return
	}
	if err := h.Svc.RequestEmailVerification(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	response.Success[any](c, http.StatusOK, gin.H{"email_sent": true}, "verification email sent", nil)
}

// VerifyEmail POST /api/auth/verify-email-verification-token/:token
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	if err := h.Svc.VerifyEmail(c.Request.Context(), c.Param("token")); err != nil {
		h.fail(c, err)
		return
	}
	response.Success[any](c, http.StatusOK, gin.H{"verified": true}, "email verified successfully", nil)
}
