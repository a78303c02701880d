package answer

import (
	"context"
	"fmt"

	"github.com/yourorg/apiask/pkg/types"
)

// NoAnswerFallback is returned when the completion capability responds
// with no usable content. It is a success value, not an error: the
// pipeline ran, there was just nothing to say.
const NoAnswerFallback = "No answer available"

// Completer is the remote completion capability. *Client satisfies it.
type Completer interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Synthesizer turns retrieved endpoint context plus a question into an
// answer via the completion capability.
type Synthesizer struct {
	Client Completer
}

// Answer builds the two-message prompt and returns the first choice's
// text. Remote failures wrap types.ErrSynthesis; an empty response
// becomes NoAnswerFallback.
func (s *Synthesizer) Answer(ctx context.Context, question string, results []types.RetrievedEndpoint) (string, error) {
	if s.Client == nil {
		return "", fmt.Errorf("%w: completion capability required to answer questions", types.ErrConfiguration)
	}
	user := BuildUserPrompt(BuildContext(results), question)
	content, err := s.Client.Chat(ctx, SystemPrompt(), user)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrSynthesis, err)
	}
	if content == "" {
		return NoAnswerFallback, nil
	}
	return content, nil
}
