package generator

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go"

	"outline_assistant/hostview"
	"outline_assistant/outline"
)

// Generator turns document text into an Outline through an LLMClient.
type Generator struct {
	llm     LLMClient
	logger  *log.Logger
	verbose bool
}

func New(llm LLMClient, logger *log.Logger, verbose bool) (*Generator, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Generator{llm: llm, logger: logger, verbose: verbose}, nil
}

func (g *Generator) infof(format string, args ...interface{}) {
	if !g.verbose {
		return
	}
	g.logger.Printf("[INFO] [generator] "+format, args...)
}

// Generate asks the model for an outline of text. The cursor, when present,
// steers the outline toward the part being edited. Every failure is a
// *GenerationError; nothing is retried here.
func (g *Generator) Generate(ctx context.Context, text string, cursor *hostview.CursorPosition) (outline.Outline, error) {
	if strings.TrimSpace(text) == "" {
		return outline.Outline{}, &GenerationError{Status: http.StatusBadRequest, Message: ErrEmptyText.Error(), Err: ErrEmptyText}
	}

	prompt := BuildOutlinePrompt(Request{Text: text, Cursor: cursor})
	g.infof("requesting outline for %d characters of text", len(text))

	raw, err := g.llm.Complete(ctx, prompt)
	if err != nil {
		return outline.Outline{}, classify(err)
	}

	o, err := PostProcess(raw)
	if err != nil {
		g.logger.Printf("[WARN] [generator] %v", err)
		return outline.Outline{}, err
	}
	g.infof("outline has %d sections", len(o.Sections))
	return o, nil
}

func classify(err error) error {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return &GenerationError{Status: apiErr.StatusCode, Message: msg, Err: err}
	}
	var relayErr *RelayError
	if errors.As(err, &relayErr) {
		return &GenerationError{Status: relayErr.Status, Message: relayErr.Message, Err: err}
	}
	return &GenerationError{Message: err.Error(), Err: err}
}
