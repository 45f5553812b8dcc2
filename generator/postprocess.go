package generator

import (
	"errors"
	"strings"

	"outline_assistant/outline"
)

// PostProcess validates the model reply and normalizes it into an Outline.
func PostProcess(raw string) (outline.Outline, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return outline.Outline{}, &GenerationError{Message: "model returned an empty reply"}
	}

	o, err := outline.Normalize([]byte(text))
	if err != nil {
		var malformed *outline.MalformedError
		if errors.As(err, &malformed) {
			return outline.Outline{}, &GenerationError{Message: "model reply is not an outline", Err: err}
		}
		return outline.Outline{}, &GenerationError{Message: err.Error(), Err: err}
	}
	if o.Title == "" {
		o.Title = "Document Outline"
	}
	return o, nil
}
