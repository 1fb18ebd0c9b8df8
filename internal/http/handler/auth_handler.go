package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fornetto/pizzeria-api/internal/domain"
	"github.com/fornetto/pizzeria-api/internal/http/middleware"
	"github.com/fornetto/pizzeria-api/internal/service"
)

const refreshCookieName = "refresh_token"

// AuthHandler exposes the authentication endpoints. The refresh token only
// ever travels in an HTTP-only cookie; access tokens go in the body.
type AuthHandler struct {
	auth         *service.AuthService
	cookieSecure bool
	logger       *zap.Logger
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(auth *service.AuthService, cookieSecure bool, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &AuthHandler{auth: auth, cookieSecure: cookieSecure, logger: logger}
}

// Login authenticates with email and password.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `form:"email" json:"email"`
		Password string `form:"password" json:"password"`
	}
	// Bind errors fall through to the service's required-field check, so an
	// empty body reports missing fields rather than a parse error.
	_ = c.ShouldBind(&req)

	result, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.setRefreshCookie(c, result.RefreshToken, int(result.RefreshTTL.Seconds()))
	c.JSON(http.StatusOK, gin.H{"access": result.AccessToken, "user": result.User})
}

// Register creates an account and signs it in.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email           string `form:"email" json:"email"`
		Username        string `form:"username" json:"username"`
		Password        string `form:"password" json:"password"`
		PasswordConfirm string `form:"password_confirm" json:"password_confirm"`
	}
	_ = c.ShouldBind(&req)

	result, err := h.auth.Register(c.Request.Context(), req.Email, req.Username, req.Password, req.PasswordConfirm)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.setRefreshCookie(c, result.RefreshToken, int(result.RefreshTTL.Seconds()))
	c.JSON(http.StatusCreated, gin.H{"access": result.AccessToken, "user": result.User})
}

// Refresh exchanges a refresh token for a new access token. The token is
// read from the cookie first, then from the request body.
func (h *AuthHandler) Refresh(c *gin.Context) {
	result, err := h.auth.Refresh(c.Request.Context(), h.refreshTokenFromRequest(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Logout revokes the refresh token and clears its cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), h.refreshTokenFromRequest(c)); err != nil {
		h.respondError(c, err)
		return
	}
	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}

// Me returns the authenticated user's public summary.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid access token"})
		return
	}
	summary, err := h.auth.Profile(c.Request.Context(), claims.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": summary})
}

// refreshTokenFromRequest applies the dual-source precedence rule: the
// cookie wins, the body field "refresh" is the fallback.
func (h *AuthHandler) refreshTokenFromRequest(c *gin.Context) string {
	if value, err := c.Cookie(refreshCookieName); err == nil && value != "" {
		return value
	}
	var req struct {
		Refresh string `form:"refresh" json:"refresh"`
	}
	_ = c.ShouldBind(&req)
	return req.Refresh
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// respondError maps the error taxonomy to fixed client-facing bodies.
// Anything outside the taxonomy is logged and reported generically.
func (h *AuthHandler) respondError(c *gin.Context, err error) {
	var domErr *domain.Error
	if errors.As(err, &domErr) {
		c.JSON(domErr.Status(), gin.H{"error": domErr.Message})
		return
	}
	h.logger.Error("unhandled error", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
