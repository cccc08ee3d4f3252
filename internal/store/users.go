package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Masterminds/squirrel"

	"taskmanagement-api/internal/api"
	"taskmanagement-api/internal/apperr"
)

type userRow struct {
	ID           int64  `db:"id"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	CreatedAt    int64  `db:"created_at"`
}

// InsertUser stores a user with an already-normalized email and returns its id.
func (s *Store) InsertUser(ctx context.Context, email, passwordHash string) (id int64, err error) {
	ctx, span := s.startSpan(ctx, "InsertUser")
	defer func() { endSpan(span, err) }()

	query, args, err := s.builder.Insert("users").
		Columns("email", "password_hash", "created_at").
		Values(email, passwordHash, toMillis(s.now())).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeStorage, "build insert user", err)
	}

	if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return 0, apperr.Wrap(apperr.CodeDuplicateEmail, "email already registered", err)
		}
		return 0, apperr.Wrap(apperr.CodeStorage, "insert user", err)
	}
	return id, nil
}

// UserByEmail loads a user by normalized email.
func (s *Store) UserByEmail(ctx context.Context, email string) (user api.User, err error) {
	ctx, span := s.startSpan(ctx, "UserByEmail")
	defer func() { endSpan(span, err) }()

	query, args, err := s.builder.Select("id", "email", "password_hash", "created_at").
		From("users").
		Where(squirrel.Eq{"email": email}).
		ToSql()
	if err != nil {
		return api.User{}, apperr.Wrap(apperr.CodeStorage, "build select user", err)
	}

	var row userRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return api.User{}, apperr.Wrap(apperr.CodeNotFound, "user not found", err)
		}
		return api.User{}, apperr.Wrap(apperr.CodeStorage, "select user", err)
	}

	return api.User{
		ID:           row.ID,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		CreatedAt:    fromMillis(row.CreatedAt),
	}, nil
}
