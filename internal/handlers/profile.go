package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/agonauth/internal/handlers/render"
	"github.com/nkiryanov/agonauth/internal/handlers/userctx"
)

func handleProfile() http.Handler {
	type user struct {
		ID    uuid.UUID `json:"id"`
		Email string    `json:"email"`
	}
	type response struct {
		Message string `json:"message"`
		User    user   `json:"user"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{
			Message: "This is protected",
			User:    user{ID: identity.UserID, Email: identity.Email},
		})
	})
}

func handleHealth() http.Handler {
	type response struct {
		Msg string `json:"msg"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		render.JSON(w, response{Msg: "server is running..!"})
	})
}
