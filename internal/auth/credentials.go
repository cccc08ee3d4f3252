package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"taskmanagement-api/internal/api"
	"taskmanagement-api/internal/apperr"
)

// UserRepository persists user identity records. InsertUser reports an
// apperr.CodeDuplicateEmail error when the email is taken; UserByEmail
// reports apperr.CodeNotFound for unknown emails.
type UserRepository interface {
	InsertUser(ctx context.Context, email, passwordHash string) (int64, error)
	UserByEmail(ctx context.Context, email string) (api.User, error)
}

// CredentialStore owns password hashing and verification on top of a
// UserRepository.
type CredentialStore struct {
	users     UserRepository
	policy    PasswordPolicy
	cost      int
	dummyHash []byte
}

// NewCredentialStore builds a CredentialStore hashing with the given bcrypt
// cost (bcrypt.DefaultCost when zero).
func NewCredentialStore(users UserRepository, policy PasswordPolicy, cost int) (*CredentialStore, error) {
	if users == nil {
		return nil, errors.New("user repository is required")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	// Compared against for unknown emails so both failure paths cost one bcrypt run.
	dummy, err := bcrypt.GenerateFromPassword([]byte("unknown-user-placeholder"), cost)
	if err != nil {
		return nil, fmt.Errorf("hash placeholder password: %w", err)
	}
	return &CredentialStore{users: users, policy: policy, cost: cost, dummyHash: dummy}, nil
}

// NormalizeEmail is the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser stores a new user with a bcrypt hash of rawPassword.
func (c *CredentialStore) CreateUser(ctx context.Context, email, rawPassword string) (int64, error) {
	if err := c.policy.Check(rawPassword); err != nil {
		return 0, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(rawPassword), c.cost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	id, err := c.users.InsertUser(ctx, NormalizeEmail(email), string(hash))
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// VerifyPassword returns the user id for a matching email and password.
// Unknown emails and wrong passwords both yield apperr.ErrInvalidCredentials.
func (c *CredentialStore) VerifyPassword(ctx context.Context, email, rawPassword string) (int64, error) {
	user, err := c.users.UserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(c.dummyHash, []byte(rawPassword))
			return 0, apperr.ErrInvalidCredentials
		}
		return 0, fmt.Errorf("load user: %w", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(rawPassword))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return 0, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return 0, fmt.Errorf("compare password hash: %w", err)
	}
	return user.ID, nil
}
