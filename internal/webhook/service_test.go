package webhook

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/lead-agent/internal/domain"
	"github.com/ashureev/lead-agent/internal/session"
	"github.com/ashureev/lead-agent/internal/store"
)

type fakeExtractor struct {
	lead  domain.LeadRecord
	calls []string
}

func (f *fakeExtractor) Extract(_ context.Context, message string) domain.LeadRecord {
	f.calls = append(f.calls, message)
	if strings.TrimSpace(message) == "" {
		return domain.FallbackLead()
	}
	return f.lead
}

type fakeSaver struct {
	result store.SaveResult
	saved  []domain.LeadRecord
	stats  store.Stats
}

func (f *fakeSaver) SaveLead(_ context.Context, lead domain.LeadRecord) store.SaveResult {
	f.saved = append(f.saved, lead)
	return f.result
}

func (f *fakeSaver) Stats(context.Context) store.Stats { return f.stats }

type fakePublisher struct {
	mu      sync.Mutex
	entries []domain.LogEntry
}

func (f *fakePublisher) Publish(e domain.LogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

var johnLead = domain.LeadRecord{Name: "John Doe", Email: "john@techcorp.com", Company: "TechCorp"}

func newTestService(ext *fakeExtractor, saver *fakeSaver, pub Publisher) *Service {
	tracker := session.NewTracker(24*time.Hour, 100)
	svc := NewService(ext, saver, tracker, pub, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.newID = func() string { return "log-1" }
	return svc
}

func TestProcess_SuccessfulExtraction(t *testing.T) {
	ext := &fakeExtractor{lead: johnLead}
	saver := &fakeSaver{result: store.SaveResult{Status: domain.SaveStatusSuccess, Attempts: 1}}
	pub := &fakePublisher{}
	svc := newTestService(ext, saver, pub)

	msg := "Hi, I'm John Doe from TechCorp. My email is john@techcorp.com"
	resp := svc.Process(context.Background(), Request{Message: msg, UserID: "user"})

	if resp.SaveStatus != domain.SaveStatusSuccess {
		t.Fatalf("expected success, got %s", resp.SaveStatus)
	}
	if resp.Message != "Lead extracted and saved successfully" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
	if resp.Extracted != johnLead {
		t.Fatalf("extracted not echoed: %+v", resp.Extracted)
	}
	if resp.RetryAttempts != "0" || resp.UserID != "user" || !strings.HasPrefix(resp.SessionID, "session_") {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(saver.saved) != 1 || saver.saved[0] != johnLead {
		t.Fatalf("unexpected saves %+v", saver.saved)
	}

	logs := svc.Tracker().UserLogs("user", 0)
	if len(logs) != 1 || logs[0].Message != msg || logs[0].SessionID != resp.SessionID {
		t.Fatalf("unexpected user logs %+v", logs)
	}
	if logs[0].RetryInfo.HasRetries || logs[0].RetryInfo.FinalStatus != "success" {
		t.Fatalf("unexpected retry info %+v", logs[0].RetryInfo)
	}
	if len(svc.Tracker().Logs(0)) != 1 {
		t.Fatal("expected one global entry")
	}
	if len(pub.entries) != 1 || pub.entries[0].ID != "log-1" {
		t.Fatalf("unexpected published entries %+v", pub.entries)
	}

	sess, ok := svc.Tracker().Session(resp.SessionID)
	if !ok || sess.TotalRequests != 1 {
		t.Fatalf("session not touched: %+v", sess)
	}
}

func TestProcess_EmptyMessageSkipsStore(t *testing.T) {
	ext := &fakeExtractor{lead: johnLead}
	saver := &fakeSaver{result: store.SaveResult{Status: domain.SaveStatusSuccess, Attempts: 1}}
	svc := newTestService(ext, saver, nil)

	resp := svc.Process(context.Background(), Request{Message: ""})

	want := domain.LeadRecord{Name: "Unknown", Email: "unknown@example.com", Company: "Unknown"}
	if resp.Extracted != want {
		t.Fatalf("expected fallback, got %+v", resp.Extracted)
	}
	if resp.SaveStatus != domain.SaveStatusNoContactInfo {
		t.Fatalf("expected no_contact_info, got %s", resp.SaveStatus)
	}
	if resp.Message != "No contact information found in message" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
	if len(saver.saved) != 0 {
		t.Fatal("store must not be called without contact info")
	}
	if !strings.HasPrefix(resp.UserID, "user_") {
		t.Fatalf("expected generated user id, got %q", resp.UserID)
	}
}

func TestProcess_RetriesReported(t *testing.T) {
	tests := []struct {
		name        string
		result      store.SaveResult
		wantStatus  domain.SaveStatus
		wantRetries string
		wantMessage string
	}{
		{
			name:        "recovered after two retries",
			result:      store.SaveResult{Status: domain.SaveStatusSuccess, Attempts: 3},
			wantStatus:  domain.SaveStatusSuccess,
			wantRetries: "2",
			wantMessage: "Lead extracted and saved successfully",
		},
		{
			name:        "exhausted",
			result:      store.SaveResult{Status: domain.SaveStatusFailure, Attempts: 4},
			wantStatus:  domain.SaveStatusFailure,
			wantRetries: "3",
			wantMessage: "Lead extracted but could not be saved after retries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&fakeExtractor{lead: johnLead}, &fakeSaver{result: tt.result}, nil)
			resp := svc.Process(context.Background(), Request{Message: "john@techcorp.com", UserID: "u1"})

			if resp.SaveStatus != tt.wantStatus || resp.RetryAttempts != tt.wantRetries || resp.Message != tt.wantMessage {
				t.Fatalf("unexpected response %+v", resp)
			}
			logs := svc.Tracker().UserLogs("u1", 0)
			if len(logs) != 1 || !logs[0].RetryInfo.HasRetries || logs[0].RetryInfo.FinalStatus != string(tt.wantStatus) {
				t.Fatalf("unexpected log %+v", logs)
			}
		})
	}
}

func TestProcess_SessionResolution(t *testing.T) {
	svc := newTestService(&fakeExtractor{lead: johnLead}, &fakeSaver{result: store.SaveResult{Status: domain.SaveStatusSuccess, Attempts: 1}}, nil)
	existing := svc.Tracker().CreateSession("owner")

	resp := svc.Process(context.Background(), Request{Message: "x", SessionID: existing.SessionID})
	if resp.SessionID != existing.SessionID || resp.UserID != "owner" {
		t.Fatalf("known session not reused: %+v", resp)
	}

	resp = svc.Process(context.Background(), Request{Message: "x", SessionID: "session_unknown", UserID: "bob"})
	if resp.SessionID == "session_unknown" || resp.UserID != "bob" {
		t.Fatalf("unknown session should create a new one: %+v", resp)
	}
	if _, ok := svc.Tracker().Session(resp.SessionID); !ok {
		t.Fatal("new session not registered")
	}

	sess, _ := svc.Tracker().Session(existing.SessionID)
	if sess.TotalRequests != 1 {
		t.Fatalf("expected 1 request on existing session, got %d", sess.TotalRequests)
	}
}

type panickingPublisher struct{}

func (panickingPublisher) Publish(domain.LogEntry) { panic("feed closed") }

func TestProcess_PublisherFailuresDoNotEscape(t *testing.T) {
	var nilPub *fakePublisher
	tests := []struct {
		name string
		pub  Publisher
	}{
		{"untyped nil", nil},
		{"typed nil pointer", nilPub},
		{"panicking", panickingPublisher{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saver := &fakeSaver{result: store.SaveResult{Status: domain.SaveStatusSuccess, Attempts: 1}}
			svc := newTestService(&fakeExtractor{lead: johnLead}, saver, tt.pub)

			resp := svc.Process(context.Background(), Request{Message: "john@techcorp.com", UserID: "u1"})
			if resp.SaveStatus != domain.SaveStatusSuccess {
				t.Fatalf("unexpected response %+v", resp)
			}
			if logs := svc.Tracker().UserLogs("u1", 0); len(logs) != 1 {
				t.Fatalf("expected entry recorded, got %d", len(logs))
			}
		})
	}
}
