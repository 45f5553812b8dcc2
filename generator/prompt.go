package generator

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxPromptChars bounds how much document text is sent to the model.
const MaxPromptChars = 12000

// Prompt is the system and user message pair sent to the model.
type Prompt struct {
	System string
	User   string
}

const systemPrompt = "You are a writing assistant that turns a draft into a clear, well structured outline. " +
	"Reply with the outline only, no preamble and no closing remarks."

// BuildOutlinePrompt asks for an outline of req.Text in the shape ParseFreeform
// reads: bold section titles followed by dash key points.
func BuildOutlinePrompt(req Request) Prompt {
	var sb strings.Builder
	sb.WriteString("Create an outline for the document below.\n")
	sb.WriteString("Requirements:\n")
	sb.WriteString("- 3 to 6 sections in the order the document should follow.\n")
	sb.WriteString("- Write each section title on its own line as **Title**.\n")
	sb.WriteString("- Under each title list 2 to 4 key points, one per line, starting with \"- \".\n")
	sb.WriteString("- Key points are short, specific and grounded in the document.\n")

	if hint := cursorHint(req); hint != "" {
		sb.WriteString("- ")
		sb.WriteString(hint)
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\nDocument:\n%s\n", truncate(strings.TrimSpace(req.Text), MaxPromptChars))

	return Prompt{
		System: systemPrompt,
		User:   sb.String(),
	}
}

func cursorHint(req Request) string {
	if req.Cursor == nil {
		return ""
	}
	if sel := strings.TrimSpace(req.Cursor.Position); sel != "" {
		return fmt.Sprintf("The writer is working near: %q. Make sure the outline covers that part.", truncate(sel, 200))
	}
	return ""
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}
