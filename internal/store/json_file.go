package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ashureev/lead-agent/internal/domain"
)

// JSONFileStore implements LeadStore as a JSON array on disk.
type JSONFileStore struct {
	path string
	mu   sync.Mutex // guards the read-modify-write cycle
}

// NewJSONFile creates a file-backed lead store. The file is created lazily on
// the first append.
func NewJSONFile(path string) (*JSONFileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create leads directory: %w", err)
	}
	return &JSONFileStore{path: path}, nil
}

// AppendLead reads the array, appends the lead and atomically rewrites the file.
func (s *JSONFileStore) AppendLead(_ context.Context, lead domain.LeadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	leads, err := s.readLocked()
	if err != nil {
		return err
	}
	leads = append(leads, lead)

	data, err := json.MarshalIndent(leads, "", "  ")
	if err != nil {
		return fmt.Errorf("encode leads: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write leads: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace leads file: %w", err)
	}
	return nil
}

// Leads returns every stored lead in insertion order.
func (s *JSONFileStore) Leads(_ context.Context) ([]domain.LeadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// readLocked returns the stored leads; a missing file is an empty collection.
func (s *JSONFileStore) readLocked() ([]domain.LeadRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []domain.LeadRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read leads file: %w", err)
	}

	var leads []domain.LeadRecord
	if err := json.Unmarshal(data, &leads); err != nil {
		return nil, fmt.Errorf("decode leads file: %w", err)
	}
	return leads, nil
}

// Stats returns the lead count with the file's modification time and size.
// A missing file yields zero stats.
func (s *JSONFileStore) Stats(_ context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, fmt.Errorf("stat leads file: %w", err)
	}

	leads, err := s.readLocked()
	if err != nil {
		return Stats{}, err
	}

	modTime := info.ModTime()
	return Stats{
		TotalLeads:  len(leads),
		LastUpdated: &modTime,
		FileSize:    info.Size(),
	}, nil
}

// Ping checks that the leads directory is accessible.
func (s *JSONFileStore) Ping(_ context.Context) error {
	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("stat leads directory: %w", err)
	}
	return nil
}

// Close is a no-op; the file is not held open.
func (s *JSONFileStore) Close() error {
	return nil
}
