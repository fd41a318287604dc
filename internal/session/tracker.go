// Package session tracks webhook sessions, per-user audit logs and usage
// statistics in memory.
package session

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/lead-agent/internal/domain"
	"github.com/google/uuid"
)

// Defaults used when the tracker is constructed with zero values.
const (
	DefaultTimeout      = 24 * time.Hour
	DefaultUserLogLimit = 100
)

// UserStats summarizes a user's webhook activity.
type UserStats struct {
	TotalRequests  int        `json:"total_requests"`
	SuccessRate    float64    `json:"success_rate"`
	LastActivity   *time.Time `json:"last_activity"`
	ActiveSessions int        `json:"active_sessions"`
}

// Tracker holds sessions, per-user logs and the global log.
type Tracker struct {
	mu        sync.RWMutex
	sessions  map[string]*domain.Session
	userLogs  map[string][]domain.LogEntry
	globalLog []domain.LogEntry

	timeout      time.Duration
	userLogLimit int

	now   func() time.Time
	newID func() string
}

// NewTracker creates an empty tracker.
func NewTracker(timeout time.Duration, userLogLimit int) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if userLogLimit <= 0 {
		userLogLimit = DefaultUserLogLimit
	}
	return &Tracker{
		sessions:     make(map[string]*domain.Session),
		userLogs:     make(map[string][]domain.LogEntry),
		timeout:      timeout,
		userLogLimit: userLogLimit,
		now:          time.Now,
		newID:        func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// Timeout returns the idle duration after which sessions expire.
func (t *Tracker) Timeout() time.Duration {
	return t.timeout
}

// CreateSession registers a new session for userID. An empty userID is
// replaced by a generated one.
func (t *Tracker) CreateSession(userID string) domain.Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	if userID == "" {
		userID = "user_" + t.newID()[:8]
	}

	sessionID := "session_" + t.newID()
	for {
		if _, taken := t.sessions[sessionID]; !taken {
			break
		}
		sessionID = "session_" + t.newID()
	}

	now := t.now()
	s := &domain.Session{
		UserID:       userID,
		SessionID:    sessionID,
		CreatedAt:    now,
		LastActivity: now,
	}
	t.sessions[sessionID] = s

	if _, ok := t.userLogs[userID]; !ok {
		t.userLogs[userID] = []domain.LogEntry{}
	}
	return *s
}

// Session returns a copy of the session with the given id.
func (t *Tracker) Session(sessionID string) (domain.Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.sessions[sessionID]
	if !ok {
		return domain.Session{}, false
	}
	return *s, true
}

// Touch records activity on a session. It returns false for unknown ids.
func (t *Tracker) Touch(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[sessionID]
	if !ok {
		return false
	}
	s.Touch(t.now())
	return true
}

// CleanupExpired removes every session idle for longer than the timeout and
// returns how many were removed.
func (t *Tracker) CleanupExpired() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for id, s := range t.sessions {
		if s.Expired(now, t.timeout) {
			delete(t.sessions, id)
			removed++
		}
	}
	return removed
}

// SessionCount returns the number of tracked sessions, expired or not.
func (t *Tracker) SessionCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// AppendUserLog adds an entry to the user's log, evicting the oldest entries
// beyond the limit.
func (t *Tracker) AppendUserLog(userID string, entry domain.LogEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendUserLogLocked(userID, entry)
}

func (t *Tracker) appendUserLogLocked(userID string, entry domain.LogEntry) {
	logs := append(t.userLogs[userID], entry)
	if over := len(logs) - t.userLogLimit; over > 0 {
		logs = append([]domain.LogEntry(nil), logs[over:]...)
	}
	t.userLogs[userID] = logs
}

// Record appends the entry to the global log and, when it carries a user id,
// to that user's log.
func (t *Tracker) Record(entry domain.LogEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.globalLog = append(t.globalLog, entry)
	if entry.UserID != "" {
		t.appendUserLogLocked(entry.UserID, entry)
	}
}

// UserLogs returns up to limit of the user's most recent entries, oldest first.
func (t *Tracker) UserLogs(userID string, limit int) []domain.LogEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return tail(t.userLogs[userID], limit)
}

// Logs returns up to limit of the most recent global entries, oldest first.
func (t *Tracker) Logs(limit int) []domain.LogEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return tail(t.globalLog, limit)
}

func tail(entries []domain.LogEntry, limit int) []domain.LogEntry {
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	out := make([]domain.LogEntry, limit)
	copy(out, entries[len(entries)-limit:])
	return out
}

// UserStats returns activity statistics for one user.
func (t *Tracker) UserStats(userID string) UserStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.userStatsLocked(userID, t.now())
}

// AllUsersStats returns statistics for every user that has a log.
func (t *Tracker) AllUsersStats() map[string]UserStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	out := make(map[string]UserStats, len(t.userLogs))
	for userID := range t.userLogs {
		out[userID] = t.userStatsLocked(userID, now)
	}
	return out
}

func (t *Tracker) userStatsLocked(userID string, now time.Time) UserStats {
	logs := t.userLogs[userID]
	stats := UserStats{TotalRequests: len(logs)}

	if len(logs) > 0 {
		succeeded := 0
		for _, e := range logs {
			if e.SaveStatus == domain.SaveStatusSuccess {
				succeeded++
			}
		}
		rate := float64(succeeded) / float64(len(logs)) * 100
		stats.SuccessRate = math.Round(rate*100) / 100

		last := logs[len(logs)-1].Timestamp
		stats.LastActivity = &last
	}

	for _, s := range t.sessions {
		if s.UserID == userID && !s.Expired(now, t.timeout) {
			stats.ActiveSessions++
		}
	}
	return stats
}
