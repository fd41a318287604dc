package domain

import (
	"time"
)

// Session associates a user with a sequence of webhook requests.
type Session struct {
	UserID        string    `json:"user_id"`
	SessionID     string    `json:"session_id"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `json:"last_activity"`
	TotalRequests int       `json:"total_requests"`
}

// Expired returns true if the session has been idle for strictly longer than timeout.
func (s *Session) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActivity) > timeout
}

// Touch records activity on the session.
func (s *Session) Touch(now time.Time) {
	s.LastActivity = now
	s.TotalRequests++
}
