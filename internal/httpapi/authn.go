package httpapi

import (
	"net/http"
	"strings"

	"caseshare.org/internal/actor"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login verifies directory credentials and mints an actor token.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := a.decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid input"})
		return
	}
	user, err := a.directory.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		// Uniform body: no hint whether the user exists.
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	token, err := actor.GenerateToken(user.Actor(), a.opts.TokenTTL)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(a.opts.TokenTTL.Seconds()),
	})
}

// Authenticate resolves the bearer token into an actor context. Requests
// without a valid token never reach the service layer.
func (a *API) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		act, err := actor.ParseAndValidate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(actor.WithContext(r.Context(), act)))
	})
}

// actorFrom extracts the authenticated actor; the middleware guarantees
// presence on protected routes.
func actorFrom(r *http.Request) (actor.Context, bool) {
	return actor.FromContext(r.Context())
}
