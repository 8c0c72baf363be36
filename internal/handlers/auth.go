package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/agonauth/internal/apperrors"
	"github.com/nkiryanov/agonauth/internal/handlers/render"
	"github.com/nkiryanov/agonauth/internal/logger"
	"github.com/nkiryanov/agonauth/internal/models"
	"github.com/nkiryanov/agonauth/internal/service/auth"
)

type authService interface {
	// Register user and start its session
	// Has to return apperrors.ErrUserAlreadyExists if email is taken
	Register(ctx context.Context, name string, email string, password string) (auth.AuthResult, error)

	// Login user with email and password
	// Has to return apperrors.ErrInvalidCredentials if user not found or password is wrong
	Login(ctx context.Context, email string, password string) (auth.AuthResult, error)

	// Exchange refresh token for new pair
	// Has to return one of apperrors.ErrRefreshToken* if token can't be exchanged
	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)

	// End session holding refresh token. Unknown token is not an error
	Logout(ctx context.Context, refresh string) error
}

type userResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

type tokensResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	User userResponse `json:"user"`
	tokensResponse
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func newAuthResponse(res auth.AuthResult) authResponse {
	return authResponse{
		User: userResponse{ID: res.User.ID, Name: res.User.Name, Email: res.User.Email},
		tokensResponse: tokensResponse{
			AccessToken:  res.Tokens.Access.Value,
			RefreshToken: res.Tokens.Refresh.Value,
		},
	}
}

func handleRegister(s authService, l logger.Logger) http.Handler {
	type request struct {
		Name     string `json:"name" validate:"required"`
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		res, err := s.Register(r.Context(), data.Name, data.Email, data.Password)
		switch {
		case err == nil:
			render.JSONWithStatus(w, newAuthResponse(res), http.StatusCreated)
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "Email already exists", http.StatusConflict)
		case errors.Is(err, apperrors.ErrFieldsRequired):
			render.ServiceError(w, "All fields are required", http.StatusBadRequest)
		default:
			l.Error("register failed", "error", err)
			render.ServiceError(w, "Server error", http.StatusInternalServerError)
		}
	})
}

func handleLogin(s authService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		res, err := s.Login(r.Context(), data.Email, data.Password)
		switch {
		case err == nil:
			render.JSON(w, newAuthResponse(res))
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrFieldsRequired):
			render.ServiceError(w, "Missing email or password", http.StatusBadRequest)
		default:
			l.Error("login failed", "error", err)
			render.ServiceError(w, "Server error", http.StatusInternalServerError)
		}
	})
}

// Read refresh token from body
// Empty body or empty token gives empty string without error
func decodeRefreshToken(w http.ResponseWriter, r *http.Request) (string, error) {
	var data refreshRequest
	err := render.Decode(w, r, &data)
	if errors.Is(err, io.EOF) {
		return "", nil
	}
	return data.RefreshToken, err
}

// Token of wrong JSON type is a bad token, not a bad request
func isRefreshTokenTypeError(err error) bool {
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &typeErr) && typeErr.Field == "refreshToken"
}

func handleRefresh(s authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := decodeRefreshToken(w, r)
		switch {
		case isRefreshTokenTypeError(err):
			l.Debug("refresh rejected", "error", err)
			render.ServiceError(w, "Invalid or expired refresh token", http.StatusForbidden)
			return
		case err != nil:
			render.DecodeError(w, err)
			return
		}
		if refresh == "" {
			render.ServiceError(w, "No refresh token provided", http.StatusUnauthorized)
			return
		}

		pair, err := s.Refresh(r.Context(), refresh)
		switch {
		case err == nil:
			render.JSON(w, tokensResponse{AccessToken: pair.Access.Value, RefreshToken: pair.Refresh.Value})
		case errors.Is(err, apperrors.ErrRefreshTokenInvalid),
			errors.Is(err, apperrors.ErrRefreshTokenExpired),
			errors.Is(err, apperrors.ErrRefreshTokenNotCurrent):
			l.Debug("refresh rejected", "error", err)
			render.ServiceError(w, "Invalid or expired refresh token", http.StatusForbidden)
		default:
			l.Error("refresh failed", "error", err)
			render.ServiceError(w, "Server error", http.StatusInternalServerError)
		}
	})
}

func handleLogout(s authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := decodeRefreshToken(w, r)
		if err != nil {
			render.DecodeError(w, err)
			return
		}
		if refresh == "" {
			render.ServiceError(w, "No refresh token provided", http.StatusBadRequest)
			return
		}

		if err := s.Logout(r.Context(), refresh); err != nil {
			l.Error("logout failed", "error", err)
			render.ServiceError(w, "Server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, messageResponse{Message: "Logged out"})
	})
}
