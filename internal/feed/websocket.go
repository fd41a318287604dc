package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/lead-agent/internal/api"
	"github.com/ashureev/lead-agent/internal/auth"
	"github.com/coder/websocket"
)

const writeTimeout = 10 * time.Second

// WebSocketHandler upgrades authenticated requests to a live log stream.
type WebSocketHandler struct {
	hub            *Hub
	authn          *auth.Authenticator
	allowedOrigins []string
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(hub *Hub, authn *auth.Authenticator, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, authn: authn, allowedOrigins: allowedOrigins}
}

type clientMessage struct {
	Type string `json:"type"`
}

// ServeHTTP authenticates the token query parameter (or bearer header) and
// streams log frames until the client disconnects.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if v := r.Header.Get("Authorization"); len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
			token = strings.TrimSpace(v[7:])
		}
	}

	p, err := h.authn.Authenticate(r.Context(), token)
	if err != nil {
		slog.Info("Log feed connection rejected", "error", err, "ip", r.RemoteAddr)
		api.Error(w, http.StatusUnauthorized, "could not validate credentials")
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "username", p.Username)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "feed ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "username", p.Username)
		}
	}()

	sub := h.hub.Subscribe(p)
	defer h.hub.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := writeJSON(ctx, ws, Frame{Type: "connected", Username: p.Username}); err != nil {
		slog.Debug("Failed to send connected frame", "error", err)
		return
	}

	go func() {
		defer cancel()
		h.readLoop(ctx, ws, p.Username)
	}()

	for {
		select {
		case data := <-sub.Frames():
			writeCtx, writeCancel := context.WithTimeout(ctx, writeTimeout)
			err := ws.Write(writeCtx, websocket.MessageText, data)
			writeCancel()
			if err != nil {
				slog.Debug("WebSocket write error", "error", err, "username", p.Username)
				return
			}
		case <-ctx.Done():
			slog.Info("Log feed session ended", "username", p.Username)
			return
		}
	}
}

// readLoop answers pings and returns when the client goes away.
func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, username string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "username", username)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "username", username)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			if err := writeJSON(ctx, ws, Frame{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
				return
			}
		}
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}
