package agent

import (
	"context"
)

// Completer sends a chat completion request to a language model and returns
// the content of the first choice.
// This interface is implemented by the OpenAI-compatible client.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Ensure OpenAICompleter implements Completer.
var _ Completer = (*OpenAICompleter)(nil)
