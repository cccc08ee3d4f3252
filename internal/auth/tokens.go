package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"taskmanagement-api/internal/api"
	"taskmanagement-api/internal/apperr"
)

// DefaultTokenTTL is the lifetime of an issued bearer token.
const DefaultTokenTTL = time.Hour

// TokenConfig defines how bearer tokens are signed and verified.
type TokenConfig struct {
	SigningKey []byte
	Issuer     string
	Audience   string
	TTL        time.Duration
	Now        func() time.Time
}

// TokenService issues and validates HS256 bearer tokens. It holds no mutable
// state and is safe for concurrent use.
type TokenService struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenService validates cfg and returns a ready TokenService.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("token signing key is required")
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	audience := strings.TrimSpace(cfg.Audience)
	if issuer == "" || audience == "" {
		return nil, errors.New("token issuer and audience are required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	key := make([]byte, len(cfg.SigningKey))
	copy(key, cfg.SigningKey)

	return &TokenService{
		key:      key,
		issuer:   issuer,
		audience: audience,
		ttl:      cfg.TTL,
		now:      cfg.Now,
	}, nil
}

// Issue signs a token for userID. Claim timestamps have second precision:
// iat is truncated and exp is rounded up, so the token is accepted for at
// least the full TTL after the issue instant.
func (s *TokenService) Issue(userID int64, email string) (string, error) {
	if s == nil || len(s.key) == 0 {
		return "", errors.New("token service is not configured")
	}

	now := s.now().UTC()
	issuedAt := now.Truncate(time.Second)
	expiresAt := now.Add(s.ttl)
	if truncated := expiresAt.Truncate(time.Second); !truncated.Equal(expiresAt) {
		expiresAt = truncated.Add(time.Second)
	}
	claims := api.Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate verifies signature, issuer, audience and expiry, and returns the
// user id carried in the subject claim.
func (s *TokenService) Validate(tokenString string) (int64, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return 0, apperr.New(apperr.CodeTokenInvalid, "token is required")
	}

	var claims api.Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return 0, mapJWTError(err)
	}

	if claims.Issuer != s.issuer {
		return 0, apperr.New(apperr.CodeTokenInvalid, "token issuer mismatch")
	}
	if !audienceContains(claims.Audience, s.audience) {
		return 0, apperr.New(apperr.CodeTokenInvalid, "token audience mismatch")
	}
	if claims.ExpiresAt == nil {
		return 0, apperr.New(apperr.CodeTokenInvalid, "token exp is required")
	}
	if !s.now().Before(claims.ExpiresAt.Time) {
		return 0, apperr.New(apperr.CodeTokenExpired, "token is expired")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, apperr.New(apperr.CodeTokenInvalid, "token subject is invalid")
	}
	return userID, nil
}

// mapJWTError translates jwt library errors to coded errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return apperr.Wrap(apperr.CodeTokenInvalid, "token signature is invalid", err)
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperr.Wrap(apperr.CodeTokenInvalid, "token alg is invalid", err)
	}
	if errors.Is(err, jwt.ErrTokenMalformed) {
		return apperr.Wrap(apperr.CodeTokenInvalid, "token is malformed", err)
	}
	return apperr.Wrap(apperr.CodeTokenInvalid, "token is invalid", err)
}

func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}
