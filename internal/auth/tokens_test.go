package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskmanagement-api/internal/api"
	"taskmanagement-api/internal/apperr"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestTokenService(t *testing.T, clock *fakeClock) *TokenService {
	t.Helper()
	svc, err := NewTokenService(TokenConfig{
		SigningKey: testSigningKey,
		Issuer:     "taskapi",
		Audience:   "taskapi-clients",
		Now:        clock.Now,
	})
	require.NoError(t, err)
	return svc
}

func TestIssueAndValidate(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := newTestTokenService(t, clock)

	token, err := svc.Issue(42, "a@x.com")
	require.NoError(t, err)

	userID, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)

	var claims api.Claims
	_, _, err = jwt.NewParser().ParseUnverified(token, &claims)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, "taskapi", claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"taskapi-clients"}, claims.Audience)
	assert.True(t, claims.ExpiresAt.Time.Equal(clock.now.Add(time.Hour)))
	assert.NotEmpty(t, claims.ID)
}

func TestValidateExpiryBoundary(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: issuedAt}
	svc := newTestTokenService(t, clock)

	token, err := svc.Issue(7, "b@x.com")
	require.NoError(t, err)

	testCases := []struct {
		name    string
		at      time.Time
		wantErr error
	}{
		{name: "fresh", at: issuedAt},
		{name: "just before expiry", at: issuedAt.Add(time.Hour - time.Millisecond)},
		{name: "at expiry", at: issuedAt.Add(time.Hour), wantErr: apperr.ErrTokenExpired},
		{name: "after expiry", at: issuedAt.Add(time.Hour + time.Second), wantErr: apperr.ErrTokenExpired},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clock.now = tc.at
			userID, err := svc.Validate(token)
			if tc.wantErr != nil {
				assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
				assert.Zero(t, userID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(7), userID)
		})
	}
}

func TestExpiryRoundsUpSubSecondIssue(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 900_000_000, time.UTC)
	clock := &fakeClock{now: issuedAt}
	svc := newTestTokenService(t, clock)

	token, err := svc.Issue(7, "b@x.com")
	require.NoError(t, err)

	var claims api.Claims
	_, _, err = jwt.NewParser().ParseUnverified(token, &claims)
	require.NoError(t, err)
	assert.True(t, claims.IssuedAt.Time.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.True(t, claims.ExpiresAt.Time.Equal(time.Date(2026, 3, 1, 13, 0, 1, 0, time.UTC)))

	clock.now = issuedAt.Add(time.Hour - time.Nanosecond)
	_, err = svc.Validate(token)
	require.NoError(t, err)

	clock.now = time.Date(2026, 3, 1, 13, 0, 1, 0, time.UTC)
	_, err = svc.Validate(token)
	assert.True(t, errors.Is(err, apperr.ErrTokenExpired), "got %v", err)
}

func TestValidateRejectsInvalidTokens(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: now}
	svc := newTestTokenService(t, clock)

	sign := func(claims api.Claims, method jwt.SigningMethod, key any) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	validClaims := func() api.Claims {
		return api.Claims{
			Email: "c@x.com",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "3",
				Issuer:    "taskapi",
				Audience:  jwt.ClaimStrings{"taskapi-clients"},
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		}
	}

	good, err := svc.Issue(3, "c@x.com")
	require.NoError(t, err)

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "someone-else"
	wrongAudience := validClaims()
	wrongAudience.Audience = jwt.ClaimStrings{"other"}
	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil
	badSubject := validClaims()
	badSubject.Subject = "abc"

	testCases := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "malformed", token: "not-a-token"},
		{name: "tampered signature", token: good[:len(good)-2] + "xx"},
		{name: "wrong key", token: sign(validClaims(), jwt.SigningMethodHS256, []byte("another-key-another-key-another-k"))},
		{name: "wrong algorithm", token: sign(validClaims(), jwt.SigningMethodHS512, testSigningKey)},
		{name: "unsigned", token: sign(validClaims(), jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType)},
		{name: "wrong issuer", token: sign(wrongIssuer, jwt.SigningMethodHS256, testSigningKey)},
		{name: "wrong audience", token: sign(wrongAudience, jwt.SigningMethodHS256, testSigningKey)},
		{name: "missing expiry", token: sign(noExpiry, jwt.SigningMethodHS256, testSigningKey)},
		{name: "non-numeric subject", token: sign(badSubject, jwt.SigningMethodHS256, testSigningKey)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Validate(tc.token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrTokenInvalid), "got %v", err)
		})
	}
}

func TestNewTokenServiceRequiresConfig(t *testing.T) {
	_, err := NewTokenService(TokenConfig{Issuer: "i", Audience: "a"})
	assert.Error(t, err)

	_, err = NewTokenService(TokenConfig{SigningKey: testSigningKey, Audience: "a"})
	assert.Error(t, err)

	svc, err := NewTokenService(TokenConfig{SigningKey: testSigningKey, Issuer: " i ", Audience: "a"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenTTL, svc.ttl)
	assert.Equal(t, "i", svc.issuer)
}

func TestIssueOnUnconfiguredService(t *testing.T) {
	var svc *TokenService
	_, err := svc.Issue(1, "a@x.com")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not configured"))
}
