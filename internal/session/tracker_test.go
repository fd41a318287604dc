package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/lead-agent/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTracker(t *testing.T) (*Tracker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
	tr := NewTracker(24*time.Hour, 100)
	tr.now = clock.Now
	return tr, clock
}

func entry(userID string, status domain.SaveStatus, ts time.Time) domain.LogEntry {
	return domain.LogEntry{ID: fmt.Sprintf("%s-%d", userID, ts.UnixNano()), Timestamp: ts, UserID: userID, SaveStatus: status}
}

func TestCreateSession(t *testing.T) {
	tr, clock := newTestTracker(t)

	s := tr.CreateSession("alice")
	if s.UserID != "alice" || !strings.HasPrefix(s.SessionID, "session_") {
		t.Fatalf("unexpected session %+v", s)
	}
	if s.TotalRequests != 0 || !s.CreatedAt.Equal(clock.Now()) || !s.LastActivity.Equal(clock.Now()) {
		t.Fatalf("unexpected session state %+v", s)
	}

	anon := tr.CreateSession("")
	if !strings.HasPrefix(anon.UserID, "user_") || len(anon.UserID) != len("user_")+8 {
		t.Fatalf("unexpected generated user id %q", anon.UserID)
	}
	if anon.SessionID == s.SessionID {
		t.Fatal("session ids must be unique")
	}

	got, ok := tr.Session(s.SessionID)
	if !ok || got != s {
		t.Fatalf("Session lookup = %+v, %v", got, ok)
	}
	if _, ok := tr.Session("session_missing"); ok {
		t.Fatal("expected unknown session lookup to fail")
	}
}

func TestCreateSession_RegeneratesCollidingID(t *testing.T) {
	tr, _ := newTestTracker(t)
	ids := []string{"aaaaaaaa", "aaaaaaaa", "bbbbbbbb"}
	tr.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first := tr.CreateSession("u")
	second := tr.CreateSession("u")
	if first.SessionID != "session_aaaaaaaa" || second.SessionID != "session_bbbbbbbb" {
		t.Fatalf("unexpected ids %q, %q", first.SessionID, second.SessionID)
	}
}

func TestTouch(t *testing.T) {
	tr, clock := newTestTracker(t)
	s := tr.CreateSession("alice")

	clock.Advance(time.Minute)
	if !tr.Touch(s.SessionID) {
		t.Fatal("expected touch to succeed")
	}
	got, _ := tr.Session(s.SessionID)
	if got.TotalRequests != 1 || !got.LastActivity.Equal(clock.Now()) {
		t.Fatalf("unexpected session after touch %+v", got)
	}
	if tr.Touch("session_missing") {
		t.Fatal("expected touch on unknown session to fail")
	}
}

func TestCleanupExpired_StrictBoundary(t *testing.T) {
	tr, clock := newTestTracker(t)

	old := tr.CreateSession("a")
	clock.Advance(time.Second)
	edge := tr.CreateSession("b")
	clock.Advance(time.Hour)
	fresh := tr.CreateSession("c")

	// old is idle 24h+1s, edge exactly 24h.
	clock.Advance(24*time.Hour - time.Hour)

	if n := tr.SessionCount(); n != 3 {
		t.Fatalf("expected 3 sessions before cleanup, got %d", n)
	}
	if removed := tr.CleanupExpired(); removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if n := tr.SessionCount(); n != 2 {
		t.Fatalf("expected 2 sessions after cleanup, got %d", n)
	}
	if _, ok := tr.Session(old.SessionID); ok {
		t.Fatal("expired session still present")
	}
	for _, id := range []string{edge.SessionID, fresh.SessionID} {
		if _, ok := tr.Session(id); !ok {
			t.Fatalf("session %s should survive", id)
		}
	}

	if removed := tr.CleanupExpired(); removed != 0 {
		t.Fatalf("second cleanup removed %d", removed)
	}
}

func TestAppendUserLog_EvictsOldest(t *testing.T) {
	tr, clock := newTestTracker(t)

	var first domain.LogEntry
	for i := 0; i < 101; i++ {
		e := entry("alice", domain.SaveStatusSuccess, clock.Now())
		if i == 0 {
			first = e
		}
		tr.AppendUserLog("alice", e)
		clock.Advance(time.Second)
	}

	logs := tr.UserLogs("alice", 0)
	if len(logs) != 100 {
		t.Fatalf("expected 100 retained entries, got %d", len(logs))
	}
	if logs[0].ID == first.ID {
		t.Fatal("oldest entry was not evicted")
	}
}

func TestRecord_GlobalAndUserLogs(t *testing.T) {
	tr, clock := newTestTracker(t)

	for i := 0; i < 5; i++ {
		tr.Record(entry("alice", domain.SaveStatusSuccess, clock.Now()))
		clock.Advance(time.Second)
		tr.Record(entry("bob", domain.SaveStatusNoContactInfo, clock.Now()))
		clock.Advance(time.Second)
	}
	tr.Record(domain.LogEntry{ID: "anonymous", Timestamp: clock.Now(), SaveStatus: domain.SaveStatusNoContactInfo})

	if got := len(tr.Logs(0)); got != 11 {
		t.Fatalf("expected 11 global entries, got %d", got)
	}

	last := tr.Logs(3)
	if len(last) != 3 || last[2].ID != "anonymous" {
		t.Fatalf("unexpected tail %+v", last)
	}
	if !last[0].Timestamp.Before(last[1].Timestamp) {
		t.Fatal("logs must be chronological")
	}

	alice := tr.UserLogs("alice", 2)
	if len(alice) != 2 || alice[0].UserID != "alice" || !alice[0].Timestamp.Before(alice[1].Timestamp) {
		t.Fatalf("unexpected user logs %+v", alice)
	}
	if logs := tr.UserLogs("nobody", 10); len(logs) != 0 {
		t.Fatalf("expected no logs, got %d", len(logs))
	}
}

func TestUserStats(t *testing.T) {
	tr, clock := newTestTracker(t)

	empty := tr.UserStats("ghost")
	if empty.SuccessRate != 0 || empty.TotalRequests != 0 || empty.LastActivity != nil {
		t.Fatalf("unexpected stats for unknown user %+v", empty)
	}

	s1 := tr.CreateSession("alice")
	tr.CreateSession("alice")
	tr.Record(entry("alice", domain.SaveStatusSuccess, clock.Now()))
	clock.Advance(time.Second)
	tr.Record(entry("alice", domain.SaveStatusFailure, clock.Now()))
	clock.Advance(time.Second)
	tr.Record(entry("alice", domain.SaveStatusNoContactInfo, clock.Now()))

	stats := tr.UserStats("alice")
	if stats.TotalRequests != 3 {
		t.Fatalf("expected 3 requests, got %d", stats.TotalRequests)
	}
	if stats.SuccessRate != 33.33 {
		t.Fatalf("expected 33.33, got %v", stats.SuccessRate)
	}
	if stats.LastActivity == nil || !stats.LastActivity.Equal(clock.Now()) {
		t.Fatalf("unexpected last activity %v", stats.LastActivity)
	}
	if stats.ActiveSessions != 2 {
		t.Fatalf("expected 2 active sessions, got %d", stats.ActiveSessions)
	}

	// Keep s1 alive, let the other expire.
	clock.Advance(20 * time.Hour)
	tr.Touch(s1.SessionID)
	clock.Advance(5 * time.Hour)
	if got := tr.UserStats("alice").ActiveSessions; got != 1 {
		t.Fatalf("expected 1 active session, got %d", got)
	}
}

func TestUserStats_NoLogsWithSession(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.CreateSession("carol")

	stats := tr.UserStats("carol")
	if stats.SuccessRate != 0 || stats.TotalRequests != 0 || stats.ActiveSessions != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestAllUsersStats(t *testing.T) {
	tr, clock := newTestTracker(t)
	tr.CreateSession("alice")
	tr.Record(entry("bob", domain.SaveStatusSuccess, clock.Now()))

	all := tr.AllUsersStats()
	if len(all) != 2 {
		t.Fatalf("expected 2 users, got %d", len(all))
	}
	if all["bob"].SuccessRate != 100 {
		t.Fatalf("expected 100, got %v", all["bob"].SuccessRate)
	}
	if _, ok := all["alice"]; !ok {
		t.Fatal("expected alice in stats")
	}
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Hour, 100)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i%4)
			s := tr.CreateSession(user)
			for j := 0; j < 50; j++ {
				tr.Touch(s.SessionID)
				tr.Record(domain.LogEntry{ID: fmt.Sprintf("%d-%d", i, j), UserID: user, SaveStatus: domain.SaveStatusSuccess, Timestamp: time.Now()})
				_ = tr.UserStats(user)
				_ = tr.Logs(10)
			}
			tr.CleanupExpired()
		}(i)
	}
	wg.Wait()

	if got := len(tr.Logs(0)); got != 1000 {
		t.Fatalf("expected 1000 global entries, got %d", got)
	}
	for i := 0; i < 4; i++ {
		if got := len(tr.UserLogs(fmt.Sprintf("user-%d", i), 0)); got != 100 {
			t.Fatalf("expected 100 entries for user-%d, got %d", i, got)
		}
	}
}

func TestStartSweeper(t *testing.T) {
	tr, clock := newTestTracker(t)
	s := tr.CreateSession("alice")
	clock.Advance(25 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		StartSweeper(ctx, tr, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := tr.Session(s.SessionID); !ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("sweeper did not evict the expired session")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestStartSweeper_DisabledReturnsImmediately(t *testing.T) {
	tr, _ := newTestTracker(t)
	done := make(chan struct{})
	go func() {
		StartSweeper(context.Background(), tr, 0)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled sweeper should return immediately")
	}
}
