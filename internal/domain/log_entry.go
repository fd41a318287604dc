package domain

import (
	"fmt"
	"time"
)

// SaveStatus is the outcome of persisting an extracted lead.
type SaveStatus string

const (
	// SaveStatusSuccess indicates the lead was persisted.
	SaveStatusSuccess SaveStatus = "success"
	// SaveStatusFailure indicates every persistence attempt failed.
	SaveStatusFailure SaveStatus = "failure"
	// SaveStatusNoContactInfo indicates extraction found nothing worth persisting.
	SaveStatusNoContactInfo SaveStatus = "no_contact_info"
)

// StatusMessage returns the human-readable message for a save status.
func (s SaveStatus) StatusMessage() string {
	switch s {
	case SaveStatusSuccess:
		return "Lead extracted and saved successfully"
	case SaveStatusFailure:
		return "Lead extracted but could not be saved after retries"
	default:
		return "No contact information found in message"
	}
}

// RetryInfo summarizes the retry behaviour of a save.
type RetryInfo struct {
	HasRetries  bool   `json:"has_retries"`
	FinalStatus string `json:"final_status"`
}

// LogEntry is an immutable audit record of one webhook invocation.
type LogEntry struct {
	ID         string     `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	UserID     string     `json:"user_id,omitempty"`
	SessionID  string     `json:"session_id,omitempty"`
	Message    string     `json:"message"`
	Extracted  LeadRecord `json:"extracted"`
	SaveStatus SaveStatus `json:"save_status"`
	RetryInfo  RetryInfo  `json:"retry_info"`
}

// NewLogEntry builds a LogEntry and checks that the save status agrees with
// the presence of contact data in the extracted lead.
func NewLogEntry(id string, ts time.Time, userID, sessionID, message string, extracted LeadRecord, status SaveStatus, retry RetryInfo) (LogEntry, error) {
	switch status {
	case SaveStatusSuccess, SaveStatusFailure:
		if !extracted.HasContactInfo() {
			return LogEntry{}, fmt.Errorf("save status %q without contact info", status)
		}
	case SaveStatusNoContactInfo:
		if extracted.HasContactInfo() {
			return LogEntry{}, fmt.Errorf("save status %q with contact info present", status)
		}
	default:
		return LogEntry{}, fmt.Errorf("unknown save status %q", status)
	}

	return LogEntry{
		ID:         id,
		Timestamp:  ts,
		UserID:     userID,
		SessionID:  sessionID,
		Message:    message,
		Extracted:  extracted,
		SaveStatus: status,
		RetryInfo:  retry,
	}, nil
}
