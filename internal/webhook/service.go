// Package webhook orchestrates lead extraction, persistence and logging for
// incoming webhook messages.
package webhook

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/ashureev/lead-agent/internal/agent"
	"github.com/ashureev/lead-agent/internal/domain"
	"github.com/ashureev/lead-agent/internal/session"
	"github.com/ashureev/lead-agent/internal/store"
	"github.com/google/uuid"
)

// Extractor turns free text into a lead. It never fails.
type Extractor interface {
	Extract(ctx context.Context, message string) domain.LeadRecord
}

// Saver persists leads with retry and reports store statistics.
type Saver interface {
	SaveLead(ctx context.Context, lead domain.LeadRecord) store.SaveResult
	Stats(ctx context.Context) store.Stats
}

// Publisher receives every recorded log entry.
type Publisher interface {
	Publish(entry domain.LogEntry)
}

// Request is one webhook invocation.
type Request struct {
	Message   string
	UserID    string
	SessionID string
}

// Response is the outcome returned to the webhook caller.
type Response struct {
	Extracted     domain.LeadRecord `json:"extracted"`
	SaveStatus    domain.SaveStatus `json:"save_status"`
	Message       string            `json:"message"`
	RetryAttempts string            `json:"retry_attempts"`
	UserID        string            `json:"user_id"`
	SessionID     string            `json:"session_id"`
}

// Service runs the webhook pipeline.
type Service struct {
	extractor Extractor
	saver     Saver
	tracker   *session.Tracker
	publisher Publisher
	logger    *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewService creates the webhook service. publisher may be nil.
func NewService(extractor Extractor, saver Saver, tracker *session.Tracker, publisher Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		extractor: extractor,
		saver:     saver,
		tracker:   tracker,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Tracker returns the session tracker backing the service.
func (s *Service) Tracker() *session.Tracker {
	return s.tracker
}

// Process extracts a lead from the message, saves it when it carries contact
// information, and records the outcome.
func (s *Service) Process(ctx context.Context, req Request) Response {
	userID, sessionID := s.resolveSession(req.UserID, req.SessionID)
	s.tracker.Touch(sessionID)

	lead := s.extractor.Extract(ctx, req.Message)
	if !agent.IsValidLead(lead) {
		s.logger.Warn("Extracted lead has an implausible email", "user_id", userID, "email", lead.Email)
	}

	status := domain.SaveStatusNoContactInfo
	retries := 0
	if lead.HasContactInfo() {
		res := s.saver.SaveLead(ctx, lead)
		status = res.Status
		retries = res.Retries()
	}

	entry, err := domain.NewLogEntry(
		s.newID(),
		s.now().UTC(),
		userID,
		sessionID,
		req.Message,
		lead,
		status,
		domain.RetryInfo{HasRetries: retries > 0, FinalStatus: string(status)},
	)
	if err != nil {
		s.logger.Error("Failed to build log entry", "error", err, "user_id", userID)
	} else {
		s.tracker.Record(entry)
		s.publish(entry)
	}

	s.logger.Info("Webhook processed",
		"user_id", userID,
		"session_id", sessionID,
		"save_status", status,
		"retries", retries,
	)

	return Response{
		Extracted:     lead,
		SaveStatus:    status,
		Message:       status.StatusMessage(),
		RetryAttempts: strconv.Itoa(retries),
		UserID:        userID,
		SessionID:     sessionID,
	}
}

// publish hands the entry to the publisher. A failing publisher is logged and
// never fails the request.
func (s *Service) publish(entry domain.LogEntry) {
	if s.publisher == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Log entry publisher panicked", "panic", r, "entry_id", entry.ID)
		}
	}()
	s.publisher.Publish(entry)
}

// resolveSession returns the user and session for a request, creating a
// session when none is given or the given one is unknown.
func (s *Service) resolveSession(userID, sessionID string) (string, string) {
	if sessionID != "" {
		if sess, ok := s.tracker.Session(sessionID); ok {
			if userID == "" {
				userID = sess.UserID
			}
			return userID, sessionID
		}
		s.logger.Info("Unknown session id, creating a new session", "session_id", sessionID)
	}

	sess := s.tracker.CreateSession(userID)
	return sess.UserID, sess.SessionID
}
