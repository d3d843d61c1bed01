package ai

import "context"

const PlaceholderPrefix = "[placeholder]"

// PlaceholderReply is returned when no model credential is configured.
const PlaceholderReply = PlaceholderPrefix + " AI service not configured. Please add your API key to the .env file."

// PlaceholderProvider stands in when no API key is set. Its reply is
// labeled so callers can tell "no backend" apart from a real answer.
type PlaceholderProvider struct{}

func (PlaceholderProvider) ModelName() string { return "placeholder" }

func (PlaceholderProvider) Chat(ctx context.Context, _ []Message, _ Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return PlaceholderReply, nil
}

func (PlaceholderProvider) StreamChat(ctx context.Context, _ []Message, _ Options) (<-chan string, <-chan error) {
	chunks := make(chan string, 1)
	errs := make(chan error, 1)
	chunks <- PlaceholderReply
	close(chunks)
	close(errs)
	return chunks, errs
}
