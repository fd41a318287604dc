package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ashureev/lead-agent/internal/domain"
	"github.com/sashabaranov/go-openai"
)

// requiredFields are the keys every extraction result must carry.
var requiredFields = []string{"name", "email", "company"}

// jsonObjectPattern matches from the first '{' to the last '}' in the response.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

var (
	errNoJSONObject  = errors.New("no JSON object in response")
	errMissingFields = errors.New("extracted data missing required fields")
	errNestedValue   = errors.New("extracted field is not a scalar")
	errTrailingData  = errors.New("unexpected data after JSON object")
)

const promptTemplate = `
Extract the full name, email, and company name from the following message:
"""%s"""

Return ONLY valid JSON in this exact format without any additional text:
{ "name": "...", "email": "...", "company": "..." }
`

// Extractor turns unstructured messages into LeadRecords using a language model.
// Extract never fails: every problem yields domain.FallbackLead.
type Extractor struct {
	completer Completer
	options   OptionsSource
	logger    *slog.Logger
}

// NewExtractor creates an extractor. A nil source uses DefaultOptions.
func NewExtractor(completer Completer, source OptionsSource, logger *slog.Logger) *Extractor {
	if source == nil {
		source = StaticOptions(DefaultOptions())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		completer: completer,
		options:   source,
		logger:    logger,
	}
}

// Extract returns the lead found in message, or the fallback lead.
func (e *Extractor) Extract(ctx context.Context, message string) (lead domain.LeadRecord) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Unexpected error during lead extraction", "panic", r)
			lead = domain.FallbackLead()
		}
	}()

	message = strings.TrimSpace(message)
	if message == "" {
		e.logger.Warn("Empty message provided for extraction")
		return domain.FallbackLead()
	}

	opts := e.options().withDefaults()

	if runes := []rune(message); len(runes) > opts.MaxMessageLength {
		e.logger.Warn("Message too long, truncating",
			"length", len(runes),
			"max_length", opts.MaxMessageLength,
		)
		message = string(runes[:opts.MaxMessageLength])
	}

	callCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	content, err := e.completer.Complete(callCtx, CompletionRequest{
		Model: opts.Model,
		Messages: []Message{
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(promptTemplate, message)},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		e.logTransportError(callCtx, err)
		return domain.FallbackLead()
	}

	lead, err = ParseLead(content)
	if err != nil {
		e.logger.Warn("Using fallback values due to extraction failure", "error", err)
		return domain.FallbackLead()
	}

	e.logger.Info("Successfully extracted lead data", "name", lead.Name)
	return lead
}

func (e *Extractor) logTransportError(ctx context.Context, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		e.logger.Error("Completion request timed out", "error", err)
	case statusCode(err) != 0:
		e.logger.Error("Completion request returned HTTP error", "status", statusCode(err), "error", err)
	default:
		e.logger.Error("Completion request failed", "error", err)
	}
}

// ParseLead finds the first JSON object in content and converts it into a
// LeadRecord. It fails when no object is present, the object is malformed,
// or a required key is missing.
func ParseLead(content string) (domain.LeadRecord, error) {
	match := jsonObjectPattern.FindString(content)
	if match == "" {
		return domain.LeadRecord{}, errNoJSONObject
	}

	dec := json.NewDecoder(strings.NewReader(match))
	dec.UseNumber()
	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return domain.LeadRecord{}, fmt.Errorf("parse JSON from response: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return domain.LeadRecord{}, fmt.Errorf("parse JSON from response: %w", errTrailingData)
	}

	values := make(map[string]string, len(requiredFields))
	for _, field := range requiredFields {
		raw, ok := obj[field]
		if !ok {
			return domain.LeadRecord{}, fmt.Errorf("%w: %s", errMissingFields, field)
		}
		s, err := scalarString(raw)
		if err != nil {
			return domain.LeadRecord{}, fmt.Errorf("field %s: %w", field, err)
		}
		values[field] = s
	}

	return domain.LeadRecord{
		Name:    values["name"],
		Email:   values["email"],
		Company: values["company"],
	}, nil
}

func scalarString(v interface{}) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case map[string]interface{}, []interface{}:
		return "", errNestedValue
	default:
		return fmt.Sprint(t), nil
	}
}
