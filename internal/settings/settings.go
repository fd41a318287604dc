// Package settings manages the business settings that can be changed at
// runtime through the admin API.
package settings

import (
	"time"

	"github.com/ashureev/lead-agent/internal/agent"
	"github.com/ashureev/lead-agent/internal/config"
	"github.com/ashureev/lead-agent/internal/domain"
	"github.com/ashureev/lead-agent/internal/store"
)

// Section names accepted by Manager.Section.
const (
	SectionLLM        = "llm_settings"
	SectionCRM        = "crm_settings"
	SectionWebhook    = "webhook_settings"
	SectionExtraction = "extraction_settings"
)

// Sections lists the section names in document order.
var Sections = []string{SectionLLM, SectionCRM, SectionWebhook, SectionExtraction}

// LLMSettings tunes the extraction call. Temperature must be positive since
// a zero value is omitted from the completion request.
type LLMSettings struct {
	Model       string  `json:"model" validate:"required"`
	Temperature float32 `json:"temperature" validate:"gt=0,lte=2"`
	MaxTokens   int     `json:"max_tokens" validate:"gte=1"`
}

// CRMSettings tunes the record store retry policy. RetryDelay is in seconds.
type CRMSettings struct {
	RetryAttempts int     `json:"retry_attempts" validate:"gte=0,lte=10"`
	RetryDelay    float64 `json:"retry_delay" validate:"gte=0,lte=60"`
	FailureRate   float64 `json:"failure_rate" validate:"gte=0,lte=1"`
}

// WebhookSettings tunes inbound message handling.
type WebhookSettings struct {
	RateLimit        int  `json:"rate_limit" validate:"gte=0"`
	MessageMaxLength int  `json:"message_max_length" validate:"gte=1"`
	EnableRetry      bool `json:"enable_retry"`
}

// FallbackValues are the placeholders reported when nothing is extracted.
type FallbackValues struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required"`
	Company string `json:"company" validate:"required"`
}

// ExtractionSettings describes the extracted record shape. It is published
// to clients; the extractor always requires every lead field.
type ExtractionSettings struct {
	RequiredFields []string       `json:"required_fields" validate:"min=1,unique,dive,oneof=name email company"`
	FallbackValues FallbackValues `json:"fallback_values"`
}

// Settings is the persisted document.
type Settings struct {
	LLM         LLMSettings        `json:"llm_settings"`
	CRM         CRMSettings        `json:"crm_settings"`
	Webhook     WebhookSettings    `json:"webhook_settings"`
	Extraction  ExtractionSettings `json:"extraction_settings"`
	LastUpdated time.Time          `json:"last_updated"`
}

// clone returns a copy that shares no slices with s.
func (s Settings) clone() Settings {
	s.Extraction.RequiredFields = append([]string(nil), s.Extraction.RequiredFields...)
	return s
}

// Defaults derives the initial settings from process configuration.
func Defaults(cfg *config.Config) Settings {
	fallback := domain.FallbackLead()
	return Settings{
		LLM: LLMSettings{
			Model:       cfg.LLM.Model,
			Temperature: float32(cfg.LLM.Temperature),
			MaxTokens:   cfg.LLM.MaxTokens,
		},
		CRM: CRMSettings{
			RetryAttempts: cfg.CRM.RetryAttempts,
			RetryDelay:    cfg.CRM.RetryDelay.Seconds(),
			FailureRate:   cfg.CRM.FailureRate,
		},
		Webhook: WebhookSettings{
			RateLimit:        cfg.Webhook.RateLimit,
			MessageMaxLength: cfg.Webhook.MessageMaxLength,
			EnableRetry:      cfg.Webhook.EnableRetry,
		},
		Extraction: ExtractionSettings{
			RequiredFields: []string{"name", "email", "company"},
			FallbackValues: FallbackValues{
				Name:    fallback.Name,
				Email:   fallback.Email,
				Company: fallback.Company,
			},
		},
	}
}

// AgentOptions overlays the LLM and webhook settings on base.
func (s Settings) AgentOptions(base agent.Options) agent.Options {
	base.Model = s.LLM.Model
	base.Temperature = s.LLM.Temperature
	base.MaxTokens = s.LLM.MaxTokens
	base.MaxMessageLength = s.Webhook.MessageMaxLength
	return base
}

// RetryPolicy returns the record store retry policy.
func (s Settings) RetryPolicy() store.RetryPolicy {
	return store.RetryPolicy{
		MaxRetries:  s.CRM.RetryAttempts,
		Delay:       time.Duration(s.CRM.RetryDelay * float64(time.Second)),
		FailureRate: s.CRM.FailureRate,
		EnableRetry: s.Webhook.EnableRetry,
	}
}
