package generator

import "context"

// LLMClient abstracts the completion backend so tests can swap it out.
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// LLMSettings is the provider configuration handed to concrete clients.
type LLMSettings struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	// RelayURL points at the secret relay used when APIKey is empty.
	RelayURL string
}
