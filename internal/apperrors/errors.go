package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrFieldsRequired     = errors.New("name, email and password are required")

	// Bearer header problems. All of them end up as 401 for the caller
	ErrAccessTokenMissing   = errors.New("access token not provided")
	ErrAccessTokenMalformed = errors.New("access token has invalid format")
	ErrAccessTokenInvalid   = errors.New("access token is invalid or expired")

	// Refresh token problems. Callers must not tell them apart in responses
	ErrRefreshTokenInvalid    = errors.New("refresh token is invalid")
	ErrRefreshTokenExpired    = errors.New("refresh token is expired")
	ErrRefreshTokenNotCurrent = errors.New("refresh token is not current")

	ErrMissingSecret      = errors.New("signing secret must not be empty")
	ErrSecretsNotDistinct = errors.New("access and refresh secrets must differ")
)
