package generator

import (
	"context"
	"fmt"
	"strings"
)

// MockLLM is an offline client for local runs. It outlines the document by
// turning each paragraph into a section named after its opening words.
type MockLLM struct{}

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	_, doc, _ := strings.Cut(prompt.User, "\nDocument:\n")

	var sb strings.Builder
	n := 0
	for _, para := range strings.Split(doc, "\n\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		n++
		fmt.Fprintf(&sb, "**%s**\n", strings.Join(words[:min(4, len(words))], " "))
		fmt.Fprintf(&sb, "- Expand on the %d words already written\n", len(words))
		sb.WriteString("- Add a supporting example\n\n")
		if n == 6 {
			break
		}
	}
	if n == 0 {
		sb.WriteString("**Introduction**\n- State the main idea\n")
	}
	return sb.String(), nil
}
