package generator

import (
	"errors"
	"fmt"

	"outline_assistant/hostview"
)

// Request is one outline generation over the current document text.
type Request struct {
	Text   string
	Cursor *hostview.CursorPosition
}

// ErrEmptyText is returned before any model call when there is nothing to outline.
var ErrEmptyText = errors.New("document text is empty")

// GenerationError is the only error kind Generate returns. Status carries the
// completion API's HTTP status when there was one.
type GenerationError struct {
	Status  int
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("outline generation failed (%d): %s", e.Status, e.Message)
	}
	return "outline generation failed: " + e.Message
}

func (e *GenerationError) Unwrap() error { return e.Err }
