// Package applier writes a generated outline into the host document.
package applier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"outline_assistant/auth"
	"outline_assistant/docsapi"
	"outline_assistant/hostview"
	"outline_assistant/outline"
)

// Target says where the outline goes.
type Target struct {
	DocumentID string
	Cursor     *hostview.CursorPosition
	// Index is the host-API insertion index; 0 means the document start.
	Index int64
}

// Strategy performs exactly one insertion of payload.
type Strategy interface {
	Name() string
	Insert(ctx context.Context, payload string, target Target) error
}

// Result describes a successful Apply.
type Result struct {
	Strategy string `json:"strategy"`
	Payload  string `json:"payload"`
	// AlreadyPresent is set when the same block was found in the view and
	// nothing new was written.
	AlreadyPresent bool `json:"already_present,omitempty"`
}

const (
	bodySnippetRunes    = 200
	payloadSnippetRunes = 40
)

// InsertionError is the terminal failure of Apply. Status and Body come from
// the host API response when there was one; Payload is the start of the text
// that was being inserted.
type InsertionError struct {
	Status  int
	Message string
	Body    string
	Payload string
	Err     error
}

func (e *InsertionError) Error() string {
	msg := "insert outline failed"
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (%d)", msg, e.Status)
	}
	msg += ": " + e.Message
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *InsertionError) Unwrap() error { return e.Err }

// Applier formats outlines once and hands them to its Strategy.
type Applier struct {
	strategy Strategy
	verbose  bool
	logger   *log.Logger
}

func New(strategy Strategy, logger *log.Logger, verbose bool) (*Applier, error) {
	if strategy == nil {
		return nil, errors.New("insertion strategy is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Applier{strategy: strategy, verbose: verbose, logger: logger}, nil
}

func (a *Applier) infof(format string, args ...interface{}) {
	if !a.verbose {
		return
	}
	a.logger.Printf("[INFO] [applier] "+format, args...)
}

// Apply formats o into a single plain-text block and inserts it.
func (a *Applier) Apply(ctx context.Context, o outline.Outline, target Target) (Result, error) {
	if err := o.Validate(); err != nil {
		return Result{}, &InsertionError{Message: err.Error(), Err: err}
	}
	payload := o.Text()
	res := Result{Strategy: a.strategy.Name(), Payload: payload}
	a.infof("inserting %d sections with %s strategy", len(o.Sections), res.Strategy)

	err := a.strategy.Insert(ctx, payload, target)
	switch {
	case err == nil:
		a.infof("outline inserted")
		return res, nil
	case errors.Is(err, hostview.ErrAlreadyInserted):
		a.infof("outline already present, skipped")
		res.AlreadyPresent = true
		return res, nil
	}

	insErr := &InsertionError{
		Status:  auth.StatusOf(err),
		Message: FriendlyMessage(err),
		Body:    responseBody(err),
		Payload: snippet(payload, payloadSnippetRunes),
		Err:     err,
	}
	a.logger.Printf("[WARN] [applier] %v", insErr)
	return Result{}, insErr
}

// responseBody returns the truncated response body of a host API failure.
func responseBody(err error) string {
	var se *docsapi.StatusError
	if !errors.As(err, &se) {
		return ""
	}
	body := strings.TrimSpace(se.Body)
	if body == "" {
		body = se.Message
	}
	return snippet(body, bodySnippetRunes)
}

func snippet(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
