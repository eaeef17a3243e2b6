// Package mock provides a test double for the text.Provider interface.
//
// Use Provider in unit tests to verify the prompt and schema sent by a
// caller and to feed controlled JSON responses without a live model.
// All fields are safe to set before calling any method; mutating them during a
// concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{Response: `{"ok":true}`}
//	raw, err := p.GenerateJSON(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/speakeasy/pkg/provider/text"
)

// Call records a single invocation of GenerateJSON.
type Call struct {
	// Ctx is the context passed to GenerateJSON.
	Ctx context.Context
	// Req is the Request passed to GenerateJSON.
	Req text.Request
}

// Provider is a mock implementation of text.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Response is returned by GenerateJSON when Responses is exhausted.
	Response string

	// Responses, if set, are returned one per call in order before falling
	// back to Response.
	Responses []string

	// Err, if non-nil, is returned as the error from GenerateJSON.
	Err error

	// Block makes GenerateJSON wait for ctx cancellation and return ctx.Err().
	Block bool

	// --- Call records (read after test) ---

	// Calls records every invocation of GenerateJSON in order.
	Calls []Call
}

// GenerateJSON records the call and returns the next scripted response.
func (p *Provider) GenerateJSON(ctx context.Context, req text.Request) (string, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, Call{Ctx: ctx, Req: req})
	block := p.Block
	err := p.Err
	resp := p.Response
	if len(p.Responses) > 0 {
		resp = p.Responses[0]
		p.Responses = p.Responses[1:]
	}
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return resp, nil
}

// CallCount returns the number of GenerateJSON invocations so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements text.Provider at compile time.
var _ text.Provider = (*Provider)(nil)
