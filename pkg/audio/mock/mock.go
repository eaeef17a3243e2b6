// Package mock provides in-memory implementations of the [audio.Microphone]
// and [audio.CaptureStream] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	mic := &mock.Microphone{}
//	stream, _ := mic.Open(ctx, 16000)
//	mic.Stream().Push(make([]float32, 4096))
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/speakeasy/pkg/audio"
)

// ─── Microphone ───────────────────────────────────────────────────────────────

// Microphone is a mock implementation of [audio.Microphone].
type Microphone struct {
	mu sync.Mutex

	// OpenError is returned by [Microphone.Open] when non-nil.
	OpenError error

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	// RequestedRates records the sampleRate argument of every Open call.
	RequestedRates []int

	stream *CaptureStream
	opened chan struct{}
}

// Open implements [audio.Microphone].
func (m *Microphone) Open(_ context.Context, sampleRate int) (audio.CaptureStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountOpen++
	m.RequestedRates = append(m.RequestedRates, sampleRate)
	if m.OpenError != nil {
		return nil, m.OpenError
	}
	m.stream = NewCaptureStream()
	if m.opened != nil {
		close(m.opened)
		m.opened = nil
	}
	return m.stream, nil
}

// Stream returns the most recently opened stream, or nil.
func (m *Microphone) Stream() *CaptureStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream
}

// Opened returns a channel that is closed once the next Open call succeeds.
func (m *Microphone) Opened() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	if m.opened == nil {
		m.opened = make(chan struct{})
	}
	return m.opened
}

// ─── CaptureStream ────────────────────────────────────────────────────────────

// CaptureStream is a mock implementation of [audio.CaptureStream]. Tests feed
// samples with Push.
type CaptureStream struct {
	mu      sync.Mutex
	ch      chan []float32
	stopped bool

	// CallCountStop records how many times Stop was called.
	CallCountStop int
}

// NewCaptureStream returns a ready stream with a small buffer.
func NewCaptureStream() *CaptureStream {
	return &CaptureStream{ch: make(chan []float32, 64)}
}

// Push delivers one buffer. It is a no-op after Stop.
func (s *CaptureStream) Push(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.ch <- samples
}

// Samples implements [audio.CaptureStream].
func (s *CaptureStream) Samples() <-chan []float32 { return s.ch }

// Stop implements [audio.CaptureStream].
func (s *CaptureStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	if !s.stopped {
		s.stopped = true
		close(s.ch)
	}
	return nil
}

// Stopped reports whether Stop has been called.
func (s *CaptureStream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
