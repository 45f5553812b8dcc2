package docsapi

import (
	"context"

	"outline_assistant/auth"
)

// PollSource reads a document through the API for the polling observer.
// It never prompts; a rejected token is dropped so the next tick can
// refresh it silently.
type PollSource struct {
	Client *Client
	Tokens *auth.TokenManager
	DocID  string
}

func (p PollSource) Text(ctx context.Context) (string, error) {
	token, err := p.Tokens.Token(ctx, false)
	if err != nil {
		return "", err
	}
	text, err := p.Client.ReadText(ctx, token, p.DocID)
	if err != nil && auth.IsUnauthorized(err) {
		_ = p.Tokens.Invalidate(ctx, token)
	}
	return text, err
}
