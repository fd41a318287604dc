// Package store provides lead persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/lead-agent/internal/domain"
)

// LeadStore defines the interface for the append-only lead collection.
type LeadStore interface {
	// AppendLead persists a lead after every previously appended lead.
	AppendLead(ctx context.Context, lead domain.LeadRecord) error

	// Stats returns aggregate statistics over the collection.
	Stats(ctx context.Context) (Stats, error)

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases the backing storage.
	Close() error
}

// Stats summarizes the stored lead collection.
type Stats struct {
	TotalLeads  int        `json:"total_leads"`
	LastUpdated *time.Time `json:"last_updated"`
	FileSize    int64      `json:"file_size"`
	Error       string     `json:"error,omitempty"`
}
