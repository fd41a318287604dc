package webhook

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ashureev/lead-agent/internal/api"
	"github.com/ashureev/lead-agent/internal/auth"
	"github.com/ashureev/lead-agent/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 1000
)

var errInvalidLimit = errors.New("limit must be an integer between 1 and 1000")

// Handler serves the /webhook routes.
type Handler struct {
	svc      *Service
	authn    *auth.Authenticator
	validate *validator.Validate
}

// NewHandler creates the webhook HTTP handler.
func NewHandler(svc *Service, authn *auth.Authenticator) *Handler {
	return &Handler{svc: svc, authn: authn, validate: validator.New()}
}

type webhookPayload struct {
	Message   *string `json:"message" validate:"required"`
	UserID    string  `json:"user_id" validate:"max=128"`
	SessionID string  `json:"session_id" validate:"max=128"`
}

type sessionPayload struct {
	UserID string `json:"user_id" validate:"max=128"`
}

// SessionResponse describes a newly created session.
type SessionResponse struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RegisterRoutes registers the webhook routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/webhook", func(r chi.Router) {
		r.Post("/", h.Receive)
		r.Post("/sessions", h.CreateSession)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(h.authn))
			r.Get("/logs", h.Logs)
			r.Get("/stats", h.Stats)

			r.With(auth.RequireAdmin).Get("/stats/store", h.StoreStats)
			r.With(auth.RequireAdmin).Post("/sessions/cleanup", h.CleanupSessions)
		})
	})
}

// Receive processes one webhook message.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	var p webhookPayload
	if err := api.DecodeJSON(r, &p); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(p); err != nil {
		api.Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resp := h.svc.Process(r.Context(), Request{
		Message:   *p.Message,
		UserID:    p.UserID,
		SessionID: p.SessionID,
	})
	api.JSON(w, http.StatusOK, resp)
}

// CreateSession starts a session, optionally for a given user id. The body
// may be empty.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var p sessionPayload
	if err := api.DecodeJSON(r, &p); err != nil && !errors.Is(err, api.ErrEmptyBody) {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(p); err != nil {
		api.Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s := h.svc.Tracker().CreateSession(p.UserID)
	api.JSON(w, http.StatusOK, SessionResponse{
		SessionID: s.SessionID,
		UserID:    s.UserID,
		CreatedAt: s.CreatedAt,
	})
}

// Logs returns recent log entries as a JSON array, oldest first. Admins may
// read any user's log or the global log; other principals only their own.
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		api.Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" && !p.IsAdmin() {
		userID = p.Username
	}
	if userID != "" && !p.CanAccessUser(userID) {
		api.Error(w, http.StatusForbidden, "not allowed to read logs of another user")
		return
	}

	var logs []domain.LogEntry
	if userID == "" {
		logs = h.svc.Tracker().Logs(limit)
	} else {
		logs = h.svc.Tracker().UserLogs(userID, limit)
	}

	api.JSON(w, http.StatusOK, logs)
}

// Stats returns per-user statistics. Admins without a user_id get every user.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())

	userID := r.URL.Query().Get("user_id")
	if userID == "" && p.IsAdmin() {
		all := h.svc.Tracker().AllUsersStats()
		api.JSON(w, http.StatusOK, map[string]interface{}{
			"total_users": len(all),
			"users":       all,
		})
		return
	}

	if userID == "" {
		userID = p.Username
	}
	if !p.CanAccessUser(userID) {
		api.Error(w, http.StatusForbidden, "not allowed to read stats of another user")
		return
	}

	api.JSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"stats":   h.svc.Tracker().UserStats(userID),
	})
}

// StoreStats returns record store statistics.
func (h *Handler) StoreStats(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, h.svc.saver.Stats(r.Context()))
}

// CleanupSessions evicts expired sessions and reports how many remain.
func (h *Handler) CleanupSessions(w http.ResponseWriter, _ *http.Request) {
	removed := h.svc.Tracker().CleanupExpired()
	api.JSON(w, http.StatusOK, map[string]int{
		"removed_sessions": removed,
		"active_sessions":  h.svc.Tracker().SessionCount(),
	})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultLogLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxLogLimit {
		return 0, errInvalidLimit
	}
	return n, nil
}
