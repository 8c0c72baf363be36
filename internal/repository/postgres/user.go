package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/agonauth/internal/apperrors"
	"github.com/nkiryanov/agonauth/internal/models"
	"github.com/nkiryanov/agonauth/internal/repository"
)

type UserRepo struct {
	DB DBTX
}

const userColumns = `id, created_at, name, email, password_hash, refresh_token`

const createUser = `-- name: CreateUser
INSERT INTO users (id, name, email, password_hash)
VALUES ($1, $2, $3, $4)
RETURNING ` + userColumns

func (r *UserRepo) CreateUser(ctx context.Context, arg repository.CreateUserParams) (models.User, error) {
	rows, _ := r.DB.Query(ctx, createUser, uuid.New(), arg.Name, arg.Email, arg.PasswordHash)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return user, apperrors.ErrUserAlreadyExists
		}

		return user, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

const getUserByID = `-- name: GetUserByID
SELECT ` + userColumns + ` FROM users
WHERE id = $1
`

func (r *UserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	return r.getUser(ctx, getUserByID, id)
}

const getUserByEmail = `-- name: GetUserByEmail
SELECT ` + userColumns + ` FROM users
WHERE email = $1
`

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return r.getUser(ctx, getUserByEmail, email)
}

const getUserByRefreshToken = `-- name: GetUserByRefreshToken
SELECT ` + userColumns + ` FROM users
WHERE refresh_token = $1
`

func (r *UserRepo) GetUserByRefreshToken(ctx context.Context, token string) (models.User, error) {
	if token == "" {
		return models.User{}, apperrors.ErrUserNotFound
	}
	return r.getUser(ctx, getUserByRefreshToken, token)
}

const setRefreshToken = `-- name: SetRefreshToken
UPDATE users
SET refresh_token = $2
WHERE id = $1
`

func (r *UserRepo) SetRefreshToken(ctx context.Context, userID uuid.UUID, token string) error {
	tag, err := r.DB.Exec(ctx, setRefreshToken, userID, nullIfEmpty(token))
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrUserNotFound
	default:
		return nil
	}
}

// The WHERE clause is the compare part of compare-and-swap
// Postgres re-checks it after acquiring the row lock, so the loser of a race updates nothing
const swapRefreshToken = `-- name: SwapRefreshToken
UPDATE users
SET refresh_token = $3
WHERE id = $1 AND refresh_token = $2
`

func (r *UserRepo) SwapRefreshToken(ctx context.Context, userID uuid.UUID, expected string, next string) error {
	if expected == "" {
		return apperrors.ErrRefreshTokenNotCurrent
	}

	tag, err := r.DB.Exec(ctx, swapRefreshToken, userID, expected, nullIfEmpty(next))
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrRefreshTokenNotCurrent
	default:
		return nil
	}
}

const clearRefreshToken = `-- name: ClearRefreshToken
UPDATE users
SET refresh_token = NULL
WHERE id = $1
`

func (r *UserRepo) ClearRefreshToken(ctx context.Context, userID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, clearRefreshToken, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const clearRefreshTokenByValue = `-- name: ClearRefreshTokenByValue
UPDATE users
SET refresh_token = NULL
WHERE refresh_token = $1
`

func (r *UserRepo) ClearRefreshTokenByValue(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	tag, err := r.DB.Exec(ctx, clearRefreshTokenByValue, token)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *UserRepo) getUser(ctx context.Context, query string, args ...any) (models.User, error) {
	rows, _ := r.DB.Query(ctx, query, args...)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	var refresh *string
	err := row.Scan(&u.ID, &u.CreatedAt, &u.Name, &u.Email, &u.PasswordHash, &refresh)
	if refresh != nil {
		u.RefreshToken = *refresh
	}
	return u, err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
