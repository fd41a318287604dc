package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/lead-agent/internal/auth"
	"github.com/ashureev/lead-agent/internal/domain"
	"github.com/ashureev/lead-agent/internal/store"
	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	router     http.Handler
	svc        *Service
	saver      *fakeSaver
	adminToken string
	userToken  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir, err := auth.NewSeededDirectory(bcrypt.MinCost, "admin123", "user123")
	if err != nil {
		t.Fatalf("NewSeededDirectory failed: %v", err)
	}
	tokens := auth.NewTokenService("webhook-test-secret-0123456789abcdef", time.Minute)
	adminToken, _ := tokens.Issue("admin")
	userToken, _ := tokens.Issue("user")

	saver := &fakeSaver{
		result: store.SaveResult{Status: domain.SaveStatusSuccess, Attempts: 1},
		stats:  store.Stats{TotalLeads: 7},
	}
	svc := newTestService(&fakeExtractor{lead: johnLead}, saver, nil)

	r := chi.NewRouter()
	NewHandler(svc, auth.NewAuthenticator(dir, tokens)).RegisterRoutes(r)

	return &testEnv{router: r, svc: svc, saver: saver, adminToken: adminToken, userToken: userToken}
}

func (e *testEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestReceive(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/webhook", "", `{"message":"Hi, I'm John Doe from TechCorp. My email is john@techcorp.com","user_id":"user"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SaveStatus != domain.SaveStatusSuccess || resp.Extracted != johnLead || resp.RetryAttempts != "0" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestReceive_InvalidPayloads(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "missing message", body: `{"user_id":"u"}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "malformed json", body: `{"message":`, wantStatus: http.StatusBadRequest},
		{name: "empty body", body: ``, wantStatus: http.StatusBadRequest},
		{name: "empty message accepted", body: `{"message":""}`, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/webhook", "", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
	if len(env.saver.saved) != 0 {
		t.Fatal("no payload above should reach the store")
	}
}

func TestCreateSessionEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/webhook/sessions", "", `{"user_id":"alice"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp SessionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.UserID != "alice" || !strings.HasPrefix(resp.SessionID, "session_") || resp.CreatedAt.IsZero() {
		t.Fatalf("unexpected response %+v", resp)
	}

	w = env.do(http.MethodPost, "/webhook/sessions", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("empty body status = %d", w.Code)
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(resp.UserID, "user_") {
		t.Fatalf("expected generated user id, got %q", resp.UserID)
	}
}

func TestLogsAuthorization(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodPost, "/webhook", "", `{"message":"john@techcorp.com","user_id":"user"}`)
	env.do(http.MethodPost, "/webhook", "", `{"message":"john@techcorp.com","user_id":"other"}`)

	tests := []struct {
		name       string
		token      string
		query      string
		wantStatus int
		wantTotal  int
	}{
		{name: "anonymous", query: "", wantStatus: http.StatusUnauthorized},
		{name: "user own default", token: env.userToken, wantStatus: http.StatusOK, wantTotal: 1},
		{name: "user own explicit", token: env.userToken, query: "?user_id=user", wantStatus: http.StatusOK, wantTotal: 1},
		{name: "user other forbidden", token: env.userToken, query: "?user_id=other", wantStatus: http.StatusForbidden},
		{name: "admin global", token: env.adminToken, wantStatus: http.StatusOK, wantTotal: 2},
		{name: "admin other user", token: env.adminToken, query: "?user_id=other", wantStatus: http.StatusOK, wantTotal: 1},
		{name: "admin limit", token: env.adminToken, query: "?limit=1", wantStatus: http.StatusOK, wantTotal: 1},
		{name: "bad limit", token: env.adminToken, query: "?limit=zero", wantStatus: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodGet, "/webhook/logs"+tt.query, tt.token, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var logs []domain.LogEntry
			if err := json.NewDecoder(w.Body).Decode(&logs); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(logs) != tt.wantTotal {
				t.Fatalf("got %d entries, want %d", len(logs), tt.wantTotal)
			}
		})
	}
}

func TestStatsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodPost, "/webhook", "", `{"message":"john@techcorp.com","user_id":"user"}`)
	env.do(http.MethodPost, "/webhook", "", `{"message":"","user_id":"user"}`)

	w := env.do(http.MethodGet, "/webhook/stats", env.userToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var own struct {
		UserID string `json:"user_id"`
		Stats  struct {
			TotalRequests int     `json:"total_requests"`
			SuccessRate   float64 `json:"success_rate"`
		} `json:"stats"`
	}
	if err := json.NewDecoder(w.Body).Decode(&own); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if own.UserID != "user" || own.Stats.TotalRequests != 2 || own.Stats.SuccessRate != 50 {
		t.Fatalf("unexpected stats %+v", own)
	}

	if w := env.do(http.MethodGet, "/webhook/stats?user_id=admin", env.userToken, ""); w.Code != http.StatusForbidden {
		t.Fatalf("cross-user stats status = %d", w.Code)
	}

	w = env.do(http.MethodGet, "/webhook/stats", env.adminToken, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"total_users":1`) {
		t.Fatalf("admin stats = %d %s", w.Code, w.Body.String())
	}

	if w := env.do(http.MethodGet, "/webhook/stats/store", env.userToken, ""); w.Code != http.StatusForbidden {
		t.Fatalf("store stats as user status = %d", w.Code)
	}
	w = env.do(http.MethodGet, "/webhook/stats/store", env.adminToken, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"total_leads":7`) {
		t.Fatalf("store stats = %d %s", w.Code, w.Body.String())
	}
}

func TestCleanupSessionsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.svc.Tracker().CreateSession("alice")

	if w := env.do(http.MethodPost, "/webhook/sessions/cleanup", env.userToken, ""); w.Code != http.StatusForbidden {
		t.Fatalf("user cleanup status = %d", w.Code)
	}
	w := env.do(http.MethodPost, "/webhook/sessions/cleanup", env.adminToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("cleanup status = %d", w.Code)
	}
	var resp struct {
		RemovedSessions int `json:"removed_sessions"`
		ActiveSessions  int `json:"active_sessions"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RemovedSessions != 0 || resp.ActiveSessions != 1 {
		t.Fatalf("unexpected cleanup response %+v", resp)
	}
}

func TestLogsReturnsArray(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/webhook/logs?user_id=nobody", env.adminToken, "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("empty logs = %d %q", w.Code, w.Body.String())
	}

	env.do(http.MethodPost, "/webhook", "", `{"message":"first john@techcorp.com","user_id":"user"}`)
	env.do(http.MethodPost, "/webhook", "", `{"message":"second john@techcorp.com","user_id":"user"}`)

	w = env.do(http.MethodGet, "/webhook/logs", env.adminToken, "")
	var logs []domain.LogEntry
	if err := json.NewDecoder(w.Body).Decode(&logs); err != nil {
		t.Fatalf("decode as array: %v", err)
	}
	if len(logs) != 2 || !strings.HasPrefix(logs[0].Message, "first") || !strings.HasPrefix(logs[1].Message, "second") {
		t.Fatalf("unexpected logs %+v", logs)
	}
}
