package answer

import (
	"fmt"
	"strings"

	"github.com/yourorg/apiask/pkg/types"
)

const systemPrompt = `You are an API expert. You answer questions about a REST API using only the endpoint context provided in the user message.
Be concrete: name the exact method, path and parameters involved. If the context does not contain the information needed, say so instead of guessing.`

// SystemPrompt returns the static system instruction.
func SystemPrompt() string {
	return systemPrompt
}

// BuildContext renders retrieved endpoints as one context block, one
// paragraph per endpoint.
func BuildContext(results []types.RetrievedEndpoint) string {
	if len(results) == 0 {
		return "(no matching endpoints found)"
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		ep := r.Endpoint
		b.WriteString(ep.Method)
		b.WriteByte(' ')
		b.WriteString(ep.Path)
		if ep.Description != "" {
			b.WriteString(": ")
			b.WriteString(ep.Description)
		}
		for _, f := range ep.Fields {
			req := "optional"
			if f.Required {
				req = "required"
			}
			b.WriteString(fmt.Sprintf("\n- %s (%s, %s)", f.Name, f.Type, req))
			if f.Description != "" {
				b.WriteString(": " + f.Description)
			}
			if f.Example != "" {
				b.WriteString(" (example: " + f.Example + ")")
			}
		}
	}
	return b.String()
}

// BuildUserPrompt assembles the user message: the context block followed
// by the literal question.
func BuildUserPrompt(contextBlock, question string) string {
	return fmt.Sprintf("Relevant API endpoints:\n\n%s\n\nQuestion: %s", contextBlock, question)
}
