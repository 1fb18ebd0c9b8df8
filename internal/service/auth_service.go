package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fornetto/pizzeria-api/internal/domain"
	pw "github.com/fornetto/pizzeria-api/internal/password"
	"github.com/fornetto/pizzeria-api/internal/repository"
	"github.com/fornetto/pizzeria-api/internal/token"
)

// Fixed client-facing messages. Invalid-credential and invalid-token cases
// deliberately collapse to one message each so responses leak nothing about
// which check failed.
const (
	msgLoginFieldsRequired    = "Please provide both email and password"
	msgRegisterFieldsRequired = "Please provide all required fields"
	msgPasswordMismatch       = "Passwords do not match"
	msgEmailExists            = "User with this email already exists"
	msgUsernameExists         = "User with this username already exists"
	msgInvalidCredentials     = "Invalid credentials"
	msgRegistrationFailed     = "Unable to create account"
	msgNoRefreshToken         = "No refresh token provided"
	msgRefreshTokenRequired   = "Refresh token is required"
	msgInvalidRefreshToken    = "Invalid refresh token"
	msgInvalidToken           = "Invalid token"
)

// AuthResult is what Login and Register hand back: the pair plus a public
// user summary. The refresh token travels to the client in a cookie, never
// in the response body.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	RefreshTTL   time.Duration
	User         domain.UserSummary
}

// RefreshResult mirrors the token service's validation result shape: the
// validated refresh claims plus the freshly minted access token.
type RefreshResult struct {
	Access    string `json:"access"`
	UserID    int64  `json:"user_id"`
	TokenID   string `json:"token_id"`
	ExpiresAt int64  `json:"expires_at"`
}

// AuthService orchestrates the cookie-based JWT authentication flow against
// the Identity Store and the token service.
type AuthService struct {
	users   repository.UserRepository
	tokens  *token.Generator
	revoker token.Revoker
	node    *snowflake.Node
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewAuthService wires dependencies.
func NewAuthService(users repository.UserRepository, tokens *token.Generator, revoker token.Revoker, node *snowflake.Node, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:   users,
		tokens:  tokens,
		revoker: revoker,
		node:    node,
		logger:  logger,
		tracer:  otel.Tracer("github.com/fornetto/pizzeria-api/internal/service"),
	}
}

// Login verifies credentials and mints a token pair. Missing fields fail
// before the Identity Store is touched; unknown email and wrong password are
// indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Login")
	defer span.End()

	normalized := normalizeEmail(email)
	if normalized == "" || password == "" {
		return AuthResult{}, domain.NewError(domain.KindValidation, msgLoginFieldsRequired, nil)
	}

	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return AuthResult{}, domain.NewError(domain.KindAuthentication, msgInvalidCredentials, err)
		}
		span.RecordError(err)
		return AuthResult{}, err
	}

	valid, err := pw.Verify(password, user.PasswordHash)
	if err != nil || !valid {
		return AuthResult{}, domain.NewError(domain.KindAuthentication, msgInvalidCredentials, err)
	}

	result, err := s.issuePair(user)
	if err != nil {
		span.RecordError(err)
		return AuthResult{}, err
	}
	s.audit("login.success", "user_id", user.ID)
	return result, nil
}

// Register creates an account and logs it in. Checks run in a fixed order
// and the first failure wins: missing fields, password mismatch, email
// collision, username collision.
func (s *AuthService) Register(ctx context.Context, email, username, password, passwordConfirm string) (AuthResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Register")
	defer span.End()

	normalized := normalizeEmail(email)
	trimmedName := strings.TrimSpace(username)
	if normalized == "" || trimmedName == "" || password == "" || passwordConfirm == "" {
		return AuthResult{}, domain.NewError(domain.KindValidation, msgRegisterFieldsRequired, nil)
	}
	if password != passwordConfirm {
		return AuthResult{}, domain.NewError(domain.KindValidation, msgPasswordMismatch, nil)
	}

	if err := s.checkAvailable(ctx, normalized, trimmedName); err != nil {
		return AuthResult{}, err
	}

	hashed, err := pw.Hash(password)
	if err != nil {
		span.RecordError(err)
		return AuthResult{}, err
	}

	created, err := s.users.Create(ctx, domain.User{
		ID:           s.node.Generate().Int64(),
		Email:        normalized,
		Username:     trimmedName,
		PasswordHash: hashed,
	})
	if err != nil {
		// Losing a duplicate race surfaces as the same collision error the
		// pre-checks would have produced.
		switch {
		case errors.Is(err, repository.ErrEmailTaken):
			return AuthResult{}, domain.NewError(domain.KindValidation, msgEmailExists, err)
		case errors.Is(err, repository.ErrUsernameTaken):
			return AuthResult{}, domain.NewError(domain.KindValidation, msgUsernameExists, err)
		}
		span.RecordError(err)
		s.log().Error("registration failed", zap.Error(err))
		return AuthResult{}, domain.NewError(domain.KindValidation, msgRegistrationFailed, err)
	}

	result, err := s.issuePair(created)
	if err != nil {
		span.RecordError(err)
		return AuthResult{}, err
	}
	s.audit("register.success", "user_id", created.ID)
	return result, nil
}

// Refresh validates a refresh token (signature, expiry, not revoked) and
// mints a new access token. Expired, malformed, and revoked tokens all
// report the same message.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Refresh")
	defer span.End()

	if refreshToken == "" {
		return RefreshResult{}, domain.NewError(domain.KindToken, msgNoRefreshToken, nil)
	}

	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		s.log().Debug("refresh token rejected", zap.Error(err))
		return RefreshResult{}, domain.NewError(domain.KindToken, msgInvalidRefreshToken, err)
	}

	revoked, err := s.revoker.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		span.RecordError(err)
		return RefreshResult{}, err
	}
	if revoked {
		return RefreshResult{}, domain.NewError(domain.KindToken, msgInvalidRefreshToken, nil)
	}

	access, err := s.tokens.AccessToken(claims.UserID)
	if err != nil {
		span.RecordError(err)
		return RefreshResult{}, err
	}

	s.audit("token.refresh.success", "user_id", claims.UserID)
	return RefreshResult{
		Access:    access,
		UserID:    claims.UserID,
		TokenID:   claims.TokenID,
		ExpiresAt: claims.ExpiresAt.Unix(),
	}, nil
}

// Logout revokes the refresh token. Once revoked the token never mints
// another access token, even before its expiry.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	ctx, span := s.startSpan(ctx, "AuthService.Logout")
	defer span.End()

	if refreshToken == "" {
		return domain.NewError(domain.KindToken, msgRefreshTokenRequired, nil)
	}

	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		s.log().Debug("logout token rejected", zap.Error(err))
		return domain.NewError(domain.KindToken, msgInvalidToken, err)
	}

	revoked, err := s.revoker.IsRevoked(ctx, claims.TokenID)
	if err == nil && revoked {
		return domain.NewError(domain.KindToken, msgInvalidToken, nil)
	}

	if err := s.revoker.Revoke(ctx, claims.TokenID, time.Until(claims.ExpiresAt)); err != nil {
		span.RecordError(err)
		return domain.NewError(domain.KindToken, msgInvalidToken, err)
	}

	s.audit("logout.success", "user_id", claims.UserID)
	return nil
}

// Profile loads the public summary for an authenticated user.
func (s *AuthService) Profile(ctx context.Context, userID int64) (domain.UserSummary, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Profile")
	defer span.End()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.UserSummary{}, domain.NewError(domain.KindAuthentication, msgInvalidCredentials, err)
		}
		span.RecordError(err)
		return domain.UserSummary{}, err
	}
	return user.Summary(), nil
}

// ParseAccessToken verifies a bearer token for the HTTP middleware.
func (s *AuthService) ParseAccessToken(value string) (token.Claims, error) {
	return s.tokens.ParseAccess(value)
}

func (s *AuthService) checkAvailable(ctx context.Context, email, username string) error {
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return domain.NewError(domain.KindValidation, msgEmailExists, nil)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return domain.NewError(domain.KindValidation, msgUsernameExists, nil)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return nil
}

func (s *AuthService) issuePair(user domain.User) (AuthResult, error) {
	access, err := s.tokens.AccessToken(user.ID)
	if err != nil {
		return AuthResult{}, err
	}
	refresh, _, err := s.tokens.RefreshToken(user.ID)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		AccessToken:  access,
		RefreshToken: refresh,
		RefreshTTL:   s.tokens.RefreshTTL(),
		User:         user.Summary(),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *AuthService) audit(event string, attrs ...any) {
	fields := make([]zap.Field, 0, len(attrs)/2+1)
	fields = append(fields, zap.String("event", event))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	s.log().Info("audit", fields...)
}

func (s *AuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
