// Package gemini provides a structured text provider backed by the Gemini
// API through google.golang.org/genai. The response schema is passed to the
// API natively, so replies are plain JSON.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/MrWong99/speakeasy/pkg/provider/text"
)

// DefaultModel is the model used for feedback analysis when none is set.
const DefaultModel = "gemini-2.5-pro"

// Provider implements text.Provider using the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

type config struct {
	model   string
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithModel overrides [DefaultModel].
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithBaseURL overrides the API endpoint. Primarily used in tests.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a Gemini text Provider.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	cfg := &config{model: DefaultModel}
	for _, o := range opts {
		o(cfg)
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.baseURL
	}
	if cfg.timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.timeout}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Provider{client: client, model: cfg.model}, nil
}

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }

// GenerateJSON implements text.Provider.
func (p *Provider) GenerateJSON(ctx context.Context, req text.Request) (string, error) {
	if req.Prompt == "" {
		return "", fmt.Errorf("gemini: prompt must not be empty")
	}
	if req.Schema == nil || req.Schema.Type != text.TypeObject {
		return "", fmt.Errorf("gemini: schema must be an object schema")
	}

	gc := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   toGenaiSchema(req.Schema),
	}
	if req.Temperature != 0 {
		gc.Temperature = genai.Ptr(float32(req.Temperature))
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(req.Prompt), gc)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	out := text.TrimJSON(resp.Text())
	if out == "" {
		return "", fmt.Errorf("gemini: empty response")
	}
	return out, nil
}

// toGenaiSchema converts a provider-neutral schema into the Gemini
// OpenAPI-subset schema. Property order is carried over so the model
// generates fields in the declared order.
func toGenaiSchema(s *text.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(string(s.Type))),
		Description: s.Description,
	}
	switch s.Type {
	case text.TypeObject:
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
		out.PropertyOrdering = s.PropertyNames()
		out.Required = append([]string{}, s.Required...)
	case text.TypeArray:
		out.Items = toGenaiSchema(s.Items)
	}
	return out
}

// Ensure Provider implements text.Provider at compile time.
var _ text.Provider = (*Provider)(nil)
