// Package agent implements the lead extraction agent.
package agent

import (
	"time"
)

// Defaults used when an option is left unset.
const (
	DefaultModel            = "llama3-70b-8192"
	DefaultTemperature      = 0.2
	DefaultMaxTokens        = 200
	DefaultTimeout          = 30 * time.Second
	DefaultMaxMessageLength = 10000
)

// Options holds the tunable parameters of an extraction call.
type Options struct {
	Model            string
	Temperature      float32 // zero is omitted from the request
	MaxTokens        int
	Timeout          time.Duration
	MaxMessageLength int
}

// DefaultOptions returns the default extraction options.
func DefaultOptions() Options {
	return Options{
		Model:            DefaultModel,
		Temperature:      DefaultTemperature,
		MaxTokens:        DefaultMaxTokens,
		Timeout:          DefaultTimeout,
		MaxMessageLength: DefaultMaxMessageLength,
	}
}

// withDefaults fills zero-valued fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Model == "" {
		o.Model = d.Model
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = d.MaxTokens
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.MaxMessageLength <= 0 {
		o.MaxMessageLength = d.MaxMessageLength
	}
	return o
}

// OptionsSource yields the options for the next extraction call.
type OptionsSource func() Options

// StaticOptions returns a source that always yields o.
func StaticOptions(o Options) OptionsSource {
	return func() Options { return o }
}

// Message is a single chat turn sent to the completion service.
type Message struct {
	Role    string
	Content string
}

// CompletionRequest is a chat-style completion request.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}
