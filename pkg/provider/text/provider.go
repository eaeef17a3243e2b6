// Package text defines the Provider interface for structured text generation.
//
// A text provider wraps a remote model API (Gemini, OpenAI, or any backend
// reachable through any-llm-go) and turns a prompt plus a response [Schema]
// into raw JSON text. Providers that support native structured output pass
// the schema to the API; the others embed it in the prompt. Callers must
// still validate the returned JSON.
//
// Implementors must be safe for concurrent use.
package text

import (
	"context"
	"strings"
)

// Request carries everything needed for one structured generation.
type Request struct {
	// Prompt is the full user prompt.
	Prompt string

	// Schema describes the required JSON response. Must be an object schema.
	Schema *Schema

	// SchemaName identifies the schema to APIs that require a name. Defaults
	// to "response".
	SchemaName string

	// Temperature controls output randomness. Zero means provider default.
	Temperature float64
}

// Name returns SchemaName or its default.
func (r Request) Name() string {
	if r.SchemaName == "" {
		return "response"
	}
	return r.SchemaName
}

// Provider generates JSON text conforming to a schema.
type Provider interface {
	// GenerateJSON returns the model's JSON response text.
	GenerateJSON(ctx context.Context, req Request) (string, error)
}

// TrimJSON strips surrounding whitespace and a Markdown code fence from a
// model response, which models without native JSON mode often add.
func TrimJSON(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the language tag line, e.g. ```json.
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
