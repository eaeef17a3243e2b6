package resilience

import (
	"context"

	"github.com/MrWong99/speakeasy/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with failover across multiple TTS
// backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Providers returns the backend names in try order.
func (f *TTSFallback) Providers() []string { return f.group.Names() }

// Synthesize returns the clip from the first healthy backend.
func (f *TTSFallback) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, tts.ErrEmptyText
	}
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p tts.Provider) ([]byte, error) {
		return p.Synthesize(ctx, text)
	})
}
