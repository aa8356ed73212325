package repair

import (
	"fmt"
	"strings"
)

// ContextSnippet is a retrieved code fragment attached to the repair prompt.
type ContextSnippet struct {
	Identifier string  `json:"identifier"`
	Content    string  `json:"content"`
	Score      float64 `json:"score,omitempty"`
}

// buildSystemPrompt returns the base system prompt for a repair run.
func buildSystemPrompt() string {
	return strings.TrimSpace(`
You are an automated code repair assistant. You fix broken Python code so that every provided test passes.
Respond only by calling one of the available tools. Use execute_and_test to submit a complete candidate fix together with assertable test statements. Use install_dependency when a required package is missing from the runtime.
Prefer minimal changes over rewrites. The code you submit must be complete and runnable on its own.`)
}

// buildUserPrompt formats the failing problem with retrieved context.
func buildUserPrompt(title, description string, ctx []ContextSnippet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Problem: %s\n\n%s\n", title, description)
	if len(ctx) > 0 {
		b.WriteString("\nRelated code from the codebase:\n")
		for _, snippet := range ctx {
			fmt.Fprintf(&b, "Source: %s\n", snippet.Identifier)
			b.WriteString(snippet.Content)
			if !strings.HasSuffix(snippet.Content, "\n") {
				b.WriteString("\n")
			}
			b.WriteString("---\n")
		}
	}
	b.WriteString("\nProduce a fix and verify it with execute_and_test.")
	return b.String()
}

// buildRetryAfterInstallPrompt nudges the model to retry after an
// automatic dependency installation.
func buildRetryAfterInstallPrompt(dep string) string {
	return fmt.Sprintf("The missing dependency %q has been installed. Run the fix and tests again with execute_and_test.", dep)
}

func truncateForPrompt(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return text[:limit] + "... [truncated]"
}
