package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrUnknownSection is returned by Section for an unrecognized name.
	ErrUnknownSection = errors.New("unknown settings section")
	// ErrNoUpdates is returned by Apply when the update names no section.
	ErrNoUpdates = errors.New("no updates provided")
)

// LLMUpdate carries a partial LLM settings change. Nil fields are left as is.
type LLMUpdate struct {
	Model       *string  `json:"model"`
	Temperature *float32 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
}

// CRMUpdate carries a partial CRM settings change.
type CRMUpdate struct {
	RetryAttempts *int     `json:"retry_attempts"`
	RetryDelay    *float64 `json:"retry_delay"`
	FailureRate   *float64 `json:"failure_rate"`
}

// WebhookUpdate carries a partial webhook settings change.
type WebhookUpdate struct {
	RateLimit        *int  `json:"rate_limit"`
	MessageMaxLength *int  `json:"message_max_length"`
	EnableRetry      *bool `json:"enable_retry"`
}

// ExtractionUpdate carries a partial extraction settings change.
type ExtractionUpdate struct {
	RequiredFields []string        `json:"required_fields"`
	FallbackValues *FallbackValues `json:"fallback_values"`
}

// Update changes several sections at once. Nil sections are left as is.
type Update struct {
	LLM        *LLMUpdate        `json:"llm_settings"`
	CRM        *CRMUpdate        `json:"crm_settings"`
	Webhook    *WebhookUpdate    `json:"webhook_settings"`
	Extraction *ExtractionUpdate `json:"extraction_settings"`
}

// Sections returns the names of the sections the update touches.
func (u Update) Sections() []string {
	var names []string
	if u.LLM != nil {
		names = append(names, SectionLLM)
	}
	if u.CRM != nil {
		names = append(names, SectionCRM)
	}
	if u.Webhook != nil {
		names = append(names, SectionWebhook)
	}
	if u.Extraction != nil {
		names = append(names, SectionExtraction)
	}
	return names
}

// SectionCheck is the validation outcome for one section.
type SectionCheck struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Validation reports whether the current settings pass validation.
type Validation struct {
	Sections     map[string]SectionCheck `json:"validation"`
	OverallValid bool                    `json:"overall_valid"`
}

// History describes the persisted settings file.
type History struct {
	LastUpdated time.Time `json:"last_updated"`
	ConfigFile  string    `json:"config_file"`
	FileSize    int64     `json:"file_size"`
}

// Manager holds the current settings and persists every change.
type Manager struct {
	path     string
	defaults Settings
	validate *validator.Validate

	mu      sync.RWMutex
	current Settings
	now     func() time.Time
}

// NewManager loads settings from path. A missing file is created from
// defaults; an unreadable one is logged and replaced by defaults in memory.
func NewManager(path string, defaults Settings) (*Manager, error) {
	m := &Manager{
		path:     path,
		defaults: defaults.clone(),
		validate: validator.New(),
		now:      time.Now,
	}
	if err := m.validate.Struct(defaults); err != nil {
		return nil, fmt.Errorf("validate default settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create settings directory: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		m.current = defaults.clone()
		if err := m.saveLocked(); err != nil {
			return nil, err
		}
		slog.Info("Default settings created", "path", path)
	case err != nil:
		return nil, fmt.Errorf("read settings file: %w", err)
	default:
		s := defaults.clone()
		if err := json.Unmarshal(data, &s); err != nil {
			slog.Error("Settings file is corrupt, using defaults", "error", err, "path", path)
			m.current = defaults.clone()
			return m, nil
		}
		if err := m.validate.Struct(s); err != nil {
			slog.Error("Settings file is invalid, using defaults", "error", err, "path", path)
			m.current = defaults.clone()
			return m, nil
		}
		m.current = s
		slog.Info("Settings loaded", "path", path)
	}
	return m, nil
}

// Get returns the current settings.
func (m *Manager) Get() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.clone()
}

// Section returns one named section of the current settings.
func (m *Manager) Section(name string) (interface{}, error) {
	s := m.Get()
	switch name {
	case SectionLLM:
		return s.LLM, nil
	case SectionCRM:
		return s.CRM, nil
	case SectionWebhook:
		return s.Webhook, nil
	case SectionExtraction:
		return s.Extraction, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSection, name)
	}
}

// UpdateLLM applies a partial LLM change.
func (m *Manager) UpdateLLM(u LLMUpdate) (LLMSettings, error) {
	s, err := m.update(u.apply)
	return s.LLM, err
}

// UpdateCRM applies a partial CRM change.
func (m *Manager) UpdateCRM(u CRMUpdate) (CRMSettings, error) {
	s, err := m.update(u.apply)
	return s.CRM, err
}

// UpdateWebhook applies a partial webhook change.
func (m *Manager) UpdateWebhook(u WebhookUpdate) (WebhookSettings, error) {
	s, err := m.update(u.apply)
	return s.Webhook, err
}

// UpdateExtraction applies a partial extraction change.
func (m *Manager) UpdateExtraction(u ExtractionUpdate) (ExtractionSettings, error) {
	s, err := m.update(u.apply)
	return s.Extraction, err
}

// Apply changes every section named by u in one validated write. Either all
// sections change or none do.
func (m *Manager) Apply(u Update) (Settings, error) {
	if len(u.Sections()) == 0 {
		return m.Get(), ErrNoUpdates
	}
	return m.update(func(s *Settings) {
		if u.LLM != nil {
			u.LLM.apply(s)
		}
		if u.CRM != nil {
			u.CRM.apply(s)
		}
		if u.Webhook != nil {
			u.Webhook.apply(s)
		}
		if u.Extraction != nil {
			u.Extraction.apply(s)
		}
	})
}

// Validate checks every section of the current settings.
func (m *Manager) Validate() Validation {
	s := m.Get()
	sections := map[string]interface{}{
		SectionLLM:        s.LLM,
		SectionCRM:        s.CRM,
		SectionWebhook:    s.Webhook,
		SectionExtraction: s.Extraction,
	}

	v := Validation{Sections: make(map[string]SectionCheck, len(sections)), OverallValid: true}
	for name, section := range sections {
		check := SectionCheck{Valid: true}
		if err := m.validate.Struct(section); err != nil {
			check.Valid = false
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				for _, fe := range verrs {
					check.Errors = append(check.Errors, fe.Error())
				}
			} else {
				check.Errors = []string{err.Error()}
			}
			v.OverallValid = false
		}
		v.Sections[name] = check
	}
	return v
}

func (u LLMUpdate) apply(s *Settings) {
	if u.Model != nil {
		s.LLM.Model = *u.Model
	}
	if u.Temperature != nil {
		s.LLM.Temperature = *u.Temperature
	}
	if u.MaxTokens != nil {
		s.LLM.MaxTokens = *u.MaxTokens
	}
}

func (u CRMUpdate) apply(s *Settings) {
	if u.RetryAttempts != nil {
		s.CRM.RetryAttempts = *u.RetryAttempts
	}
	if u.RetryDelay != nil {
		s.CRM.RetryDelay = *u.RetryDelay
	}
	if u.FailureRate != nil {
		s.CRM.FailureRate = *u.FailureRate
	}
}

func (u WebhookUpdate) apply(s *Settings) {
	if u.RateLimit != nil {
		s.Webhook.RateLimit = *u.RateLimit
	}
	if u.MessageMaxLength != nil {
		s.Webhook.MessageMaxLength = *u.MessageMaxLength
	}
	if u.EnableRetry != nil {
		s.Webhook.EnableRetry = *u.EnableRetry
	}
}

func (u ExtractionUpdate) apply(s *Settings) {
	if u.RequiredFields != nil {
		s.Extraction.RequiredFields = append([]string(nil), u.RequiredFields...)
	}
	if u.FallbackValues != nil {
		s.Extraction.FallbackValues = *u.FallbackValues
	}
}

// Reset restores and persists the defaults.
func (m *Manager) Reset() (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.current
	m.current = m.defaults.clone()
	if err := m.saveLocked(); err != nil {
		m.current = prev
		return prev.clone(), err
	}
	return m.current.clone(), nil
}

// History reports when and where settings were last persisted.
func (m *Manager) History() History {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := History{LastUpdated: m.current.LastUpdated, ConfigFile: m.path}
	if info, err := os.Stat(m.path); err == nil {
		h.FileSize = info.Size()
	}
	return h
}

// update applies fn to a copy, validates it and persists it. The in-memory
// settings only change when the write succeeds.
func (m *Manager) update(fn func(*Settings)) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.current.clone()
	fn(&next)
	if err := m.validate.Struct(next); err != nil {
		return m.current.clone(), fmt.Errorf("validate settings: %w", err)
	}

	prev := m.current
	m.current = next
	if err := m.saveLocked(); err != nil {
		m.current = prev
		return prev.clone(), err
	}
	return m.current.clone(), nil
}

func (m *Manager) saveLocked() error {
	m.current.LastUpdated = m.now().UTC()

	data, err := json.MarshalIndent(m.current, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}
