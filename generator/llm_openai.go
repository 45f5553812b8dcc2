package generator

import (
	"context"
	"errors"
	"sync"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is used when the configuration leaves llm.model empty.
const DefaultModel = "gpt-3.5-turbo"

// KeySource supplies the completion API key on demand.
type KeySource interface {
	Key(ctx context.Context) (string, error)
}

// OpenAILLM implements LLMClient using the official openai-go SDK (chat completions).
// With no static key in Opts, the key is fetched once from Keys and reused.
type OpenAILLM struct {
	Model       string
	Temperature float64
	Opts        []option.RequestOption
	Keys        KeySource

	mu  sync.Mutex
	key string
}

func NewOpenAILLMFromConfig(cfg *LLMSettings) (*OpenAILLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	llm := &OpenAILLM{Model: model, Temperature: 0.7}
	switch {
	case cfg.APIKey != "":
		llm.Opts = append(llm.Opts, option.WithAPIKey(cfg.APIKey))
	case cfg.RelayURL != "":
		llm.Keys = &RelayKeySource{URL: cfg.RelayURL}
	default:
		return nil, errors.New("openai api key missing; provide llm.api_key, OPENAI_API_KEY or llm.relay_url")
	}
	if cfg.BaseURL != "" {
		llm.Opts = append(llm.Opts, option.WithBaseURL(cfg.BaseURL))
	}
	return llm, nil
}

func (o *OpenAILLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	opts := append([]option.RequestOption(nil), o.Opts...)
	if o.Keys != nil {
		key, err := o.apiKey(ctx)
		if err != nil {
			return "", err
		}
		opts = append(opts, option.WithAPIKey(key))
	}
	client := openai.NewClient(opts...)

	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(prompt.System),
		openai.UserMessage(prompt.User),
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.Model),
		Messages: msgs,
	}
	if o.Temperature > 0 {
		params.Temperature = openai.Float(o.Temperature)
	}
	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if o.Keys != nil && errors.As(err, &apiErr) && apiErr.StatusCode == 401 {
			o.forgetKey()
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAILLM) apiKey(ctx context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.key != "" {
		return o.key, nil
	}
	key, err := o.Keys.Key(ctx)
	if err != nil {
		return "", err
	}
	o.key = key
	return key, nil
}

func (o *OpenAILLM) forgetKey() {
	o.mu.Lock()
	o.key = ""
	o.mu.Unlock()
}
