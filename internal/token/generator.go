// Package token mints and verifies the access/refresh JWT pair.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

const (
	useAccess  = "access"
	useRefresh = "refresh"
)

// ErrWrongTokenUse reports an access token presented where a refresh token was
// expected, or the reverse.
var ErrWrongTokenUse = errors.New("wrong token use")

// Claims is the verified payload of either half of the pair. TokenID is only
// set for refresh tokens; it keys the revocation set.
type Claims struct {
	UserID    int64
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type customClaims struct {
	TokenUse string `json:"token_use"`
}

// Generator signs and verifies HS256 JWTs with a single shared secret.
type Generator struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewGenerator constructs a generator for the given secret and lifetimes.
func NewGenerator(secret []byte, accessTTL, refreshTTL time.Duration) *Generator {
	return &Generator{secret: secret, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// AccessTTL exposes the configured access token lifetime.
func (g *Generator) AccessTTL() time.Duration { return g.accessTTL }

// RefreshTTL exposes the configured refresh token lifetime.
func (g *Generator) RefreshTTL() time.Duration { return g.refreshTTL }

// AccessToken mints a short-lived bearer token for the user.
func (g *Generator) AccessToken(userID int64) (string, error) {
	return g.sign(userID, "", useAccess, g.accessTTL)
}

// RefreshToken mints a long-lived token carrying a fresh issuance id.
func (g *Generator) RefreshToken(userID int64) (string, Claims, error) {
	jti := uuid.NewString()
	value, err := g.sign(userID, jti, useRefresh, g.refreshTTL)
	if err != nil {
		return "", Claims{}, err
	}
	now := time.Now().UTC()
	return value, Claims{UserID: userID, TokenID: jti, IssuedAt: now, ExpiresAt: now.Add(g.refreshTTL)}, nil
}

// ParseAccess verifies signature and expiry of an access token.
func (g *Generator) ParseAccess(value string) (Claims, error) {
	return g.parse(value, useAccess)
}

// ParseRefresh verifies signature and expiry of a refresh token. Revocation is
// checked separately by the caller against a Revoker.
func (g *Generator) ParseRefresh(value string) (Claims, error) {
	return g.parse(value, useRefresh)
}

func (g *Generator) sign(userID int64, jti, use string, ttl time.Duration) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: g.secret},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := time.Now().UTC()
	std := gojwt.Claims{
		Subject:   strconv.FormatInt(userID, 10),
		ID:        jti,
		IssuedAt:  gojwt.NewNumericDate(now),
		NotBefore: gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(now.Add(ttl)),
	}

	value, err := gojwt.Signed(signer).Claims(std).Claims(customClaims{TokenUse: use}).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize jwt: %w", err)
	}
	return value, nil
}

func (g *Generator) parse(value, use string) (Claims, error) {
	parsed, err := gojwt.ParseSigned(value, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}

	var std gojwt.Claims
	var custom customClaims
	if err := parsed.Claims(g.secret, &std, &custom); err != nil {
		return Claims{}, fmt.Errorf("verify token: %w", err)
	}
	if err := std.Validate(gojwt.Expected{Time: time.Now()}); err != nil {
		return Claims{}, fmt.Errorf("validate claims: %w", err)
	}
	if custom.TokenUse != use {
		return Claims{}, ErrWrongTokenUse
	}

	userID, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil {
		return Claims{}, fmt.Errorf("parse subject: %w", err)
	}

	claims := Claims{UserID: userID, TokenID: std.ID}
	if std.IssuedAt != nil {
		claims.IssuedAt = std.IssuedAt.Time()
	}
	if std.Expiry != nil {
		claims.ExpiresAt = std.Expiry.Time()
	}
	return claims, nil
}
