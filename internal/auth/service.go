package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"taskmanagement-api/internal/apperr"
)

type credentials interface {
	CreateUser(ctx context.Context, email, rawPassword string) (int64, error)
	VerifyPassword(ctx context.Context, email, rawPassword string) (int64, error)
}

type tokenIssuer interface {
	Issue(userID int64, email string) (string, error)
}

// Service implements the register and login protocol.
type Service struct {
	creds  credentials
	tokens tokenIssuer
}

func NewService(creds credentials, tokens tokenIssuer) *Service {
	return &Service{creds: creds, tokens: tokens}
}

// Register creates an account. It never issues a token.
func (s *Service) Register(ctx context.Context, email, password string) error {
	fields := map[string]string{}
	if strings.TrimSpace(email) == "" {
		fields["email"] = "is required"
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != strings.TrimSpace(email) {
		fields["email"] = "must be a valid email address"
	}
	if password == "" {
		fields["password"] = "is required"
	}
	if len(fields) > 0 {
		return apperr.WithFields(apperr.CodeValidation, "invalid registration request", fields)
	}

	if _, err := s.creds.CreateUser(ctx, email, password); err != nil {
		if errors.Is(err, apperr.ErrDuplicateEmail) {
			return apperr.WithFields(apperr.CodeDuplicateEmail, "email already registered", map[string]string{
				"email": "is already registered",
			})
		}
		return err
	}
	return nil
}

// Login verifies credentials and returns a signed bearer token. Any credential
// failure is reported as apperr.ErrInvalidCredentials without detail.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return "", apperr.ErrInvalidCredentials
	}

	userID, err := s.creds.VerifyPassword(ctx, email, password)
	if err != nil {
		return "", err
	}

	token, err := s.tokens.Issue(userID, NormalizeEmail(email))
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}
