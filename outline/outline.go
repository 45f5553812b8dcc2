// Package outline holds the canonical outline shape shared by generation,
// display and insertion, and the single place where foreign payloads are
// normalized into it.
package outline

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
)

// SubPointPrefix marks a key point nested under the previous one.
const SubPointPrefix = "  "

// Section is one top-level entry of an outline.
type Section struct {
	Title           string   `json:"title"`
	KeyPoints       []string `json:"key_points"`
	SuggestedLength *int     `json:"suggested_length,omitempty"`
}

// Outline is an ordered, non-empty list of sections.
type Outline struct {
	Title    string    `json:"title,omitempty"`
	Sections []Section `json:"sections"`
}

// MalformedError reports a payload that does not yield a usable outline.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return "malformed outline: " + e.Reason
}

// Validate checks the invariants every consumer relies on.
func (o Outline) Validate() error {
	if len(o.Sections) == 0 {
		return &MalformedError{Reason: "no sections"}
	}
	for i, s := range o.Sections {
		if strings.TrimSpace(s.Title) == "" {
			return &MalformedError{Reason: fmt.Sprintf("section %d has an empty title", i+1)}
		}
		if s.SuggestedLength != nil && *s.SuggestedLength <= 0 {
			return &MalformedError{Reason: fmt.Sprintf("section %d has a non-positive suggested length", i+1)}
		}
	}
	return nil
}

// Text renders the outline as the plain-text block written into documents:
// the title line, one bullet per key point, a blank line after each section.
func (o Outline) Text() string {
	var b strings.Builder
	for i, s := range o.Sections {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(s.Title)
		b.WriteString("\n")
		for _, p := range s.KeyPoints {
			if sub, ok := strings.CutPrefix(p, SubPointPrefix); ok {
				b.WriteString(SubPointPrefix + "◦ " + strings.TrimSpace(sub) + "\n")
				continue
			}
			b.WriteString("• " + strings.TrimSpace(p) + "\n")
		}
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	return b.String()
}

// Lines splits Text into display lines, dropping blanks.
func (o Outline) Lines() []string {
	var out []string
	for _, l := range strings.Split(o.Text(), "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

// Markdown renders the outline for the sidebar.
func (o Outline) Markdown() string {
	var b strings.Builder
	if o.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", o.Title)
	}
	for i, s := range o.Sections {
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, s.Title)
		for _, p := range s.KeyPoints {
			if sub, ok := strings.CutPrefix(p, SubPointPrefix); ok {
				fmt.Fprintf(&b, "  - %s\n", strings.TrimSpace(sub))
				continue
			}
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(p))
		}
		if s.SuggestedLength != nil {
			fmt.Fprintf(&b, "\n*Suggested length: ~%d words*\n", *s.SuggestedLength)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// HTML converts Markdown to HTML.
func (o Outline) HTML() (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(o.Markdown()), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
