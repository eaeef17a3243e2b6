// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (Gemini, OpenAI or
// ElevenLabs) and turns a short text, typically one vocabulary word or
// example sentence, into a complete PCM clip. Every provider returns the
// same format so the clip can be scheduled on the 24 kHz playback graph
// without conversion.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// SampleRate is the sample rate of every clip returned by Synthesize.
const SampleRate = 24000

// ErrEmptyText is returned when Synthesize is called with blank text.
var ErrEmptyText = errors.New("tts: text must not be empty")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize returns the spoken form of text as signed 16-bit
	// little-endian mono PCM at [SampleRate].
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
