package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/lead-agent/internal/api"
	"github.com/ashureev/lead-agent/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler serves the /auth routes.
type Handler struct {
	dir      *Directory
	tokens   *TokenService
	authn    *Authenticator
	validate *validator.Validate
}

// NewHandler creates the auth HTTP handler.
func NewHandler(dir *Directory, tokens *TokenService, authn *Authenticator) *Handler {
	return &Handler{dir: dir, tokens: tokens, authn: authn, validate: validator.New()}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Username string `json:"username" validate:"required,alphanum,min=3,max=32"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	FullName string `json:"full_name"`
}

type toggleRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Username    string `json:"username"`
	Role        string `json:"role"`
}

// VerifyResponse reports whether a bearer token is usable.
type VerifyResponse struct {
	Valid    bool   `json:"valid"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}

type userListEntry struct {
	ID string `json:"id"`
	domain.User
}

// RegisterRoutes registers the auth routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/register", h.Register)
		r.Post("/verify", h.Verify)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(h.authn))
			r.Get("/me", h.Me)

			r.With(RequireAdmin).Get("/users", h.ListUsers)
			r.With(RequireAdmin).Put("/users/{username}/toggle", h.ToggleUser)
		})
	})
}

// Login exchanges an email and password for an access token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	u, err := h.dir.Verify(req.Email, req.Password)
	switch {
	case errors.Is(err, ErrInactiveUser):
		api.Error(w, http.StatusBadRequest, "inactive user")
		return
	case err != nil:
		slog.Info("Login rejected", "email", req.Email)
		w.Header().Set("WWW-Authenticate", "Bearer")
		api.Error(w, http.StatusUnauthorized, "incorrect email or password")
		return
	}

	token, err := h.tokens.Issue(u.Username)
	if err != nil {
		slog.Error("Failed to issue token", "error", err, "username", u.Username)
		api.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	slog.Info("User logged in", "username", u.Username)
	api.JSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(h.tokens.TTL().Seconds()),
		Username:    u.Username,
		Role:        u.Role,
	})
}

// Register creates a regular user account.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	u, err := h.dir.Register(req.Username, req.Email, req.FullName, req.Password)
	if errors.Is(err, ErrUserExists) {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("Failed to register user", "error", err, "username", req.Username)
		api.Error(w, http.StatusInternalServerError, "failed to register user")
		return
	}

	slog.Info("User registered", "username", u.Username)
	api.JSON(w, http.StatusCreated, u)
}

// Me returns the authenticated user's profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	u, err := h.dir.User(p.Username)
	if err != nil {
		api.Error(w, http.StatusNotFound, err.Error())
		return
	}
	api.JSON(w, http.StatusOK, u)
}

// Verify checks the bearer token. An unusable token is reported as invalid
// rather than rejected.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	p, err := h.authn.Authenticate(r.Context(), bearerToken(r))
	if err != nil {
		api.JSON(w, http.StatusOK, VerifyResponse{Valid: false})
		return
	}
	api.JSON(w, http.StatusOK, VerifyResponse{Valid: true, Username: p.Username, Role: p.Role})
}

// ListUsers returns every account as a JSON array.
func (h *Handler) ListUsers(w http.ResponseWriter, _ *http.Request) {
	users := h.dir.List()
	out := make([]userListEntry, len(users))
	for i, u := range users {
		out[i] = userListEntry{ID: u.Username, User: u}
	}
	api.JSON(w, http.StatusOK, out)
}

// ToggleUser enables or disables an account.
func (h *Handler) ToggleUser(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	username := chi.URLParam(r, "username")
	u, err := h.dir.SetActive(username, *req.IsActive)
	if errors.Is(err, ErrUserNotFound) {
		api.Error(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		api.Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Info("User active flag changed", "username", username, "is_active", u.IsActive)
	api.JSON(w, http.StatusOK, u)
}
