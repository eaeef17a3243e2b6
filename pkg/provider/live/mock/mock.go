// Package mock provides a scriptable live.Provider for tests. Tests push
// synthetic server events into a Session and inspect the frames the code
// under test sent upstream.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/speakeasy/pkg/audio"
	"github.com/MrWong99/speakeasy/pkg/provider/live"
)

var (
	_ live.Provider = (*Provider)(nil)
	_ live.Session  = (*Session)(nil)
)

// ErrClosed is returned by SendAudio after Close.
var ErrClosed = errors.New("mock: session closed")

// Provider is a mock implementation of [live.Provider].
type Provider struct {
	mu sync.Mutex

	// ConnectError is returned by Connect when non-nil.
	ConnectError error

	// Block makes Connect wait until the context is cancelled or Release is
	// called.
	Block bool

	// Configs records the config of every Connect call.
	Configs []live.Config

	sessions []*Session
	release  chan struct{}
	notify   chan *Session
}

// Connect implements [live.Provider].
func (p *Provider) Connect(ctx context.Context, cfg live.Config) (live.Session, error) {
	p.mu.Lock()
	p.Configs = append(p.Configs, cfg)
	block := p.Block
	if block && p.release == nil {
		p.release = make(chan struct{})
	}
	release := p.release
	err := p.ConnectError
	p.mu.Unlock()

	if block {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
		}
	}
	if err != nil {
		return nil, err
	}

	s := NewSession()
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	notify := p.notify
	p.mu.Unlock()
	if notify != nil {
		notify <- s
	}
	return s, nil
}

// Release unblocks a Connect call waiting because of Block.
func (p *Provider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.release == nil {
		p.release = make(chan struct{})
	}
	select {
	case <-p.release:
	default:
		close(p.release)
	}
}

// Sessions returns every session created so far.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Session(nil), p.sessions...)
}

// Connected returns a channel receiving every session created after the call.
func (p *Provider) Connected() <-chan *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.notify == nil {
		p.notify = make(chan *Session, 8)
	}
	return p.notify
}

// Session is a mock implementation of [live.Session].
type Session struct {
	mu     sync.Mutex
	events chan live.Event
	closed bool

	// SendError is returned by SendAudio when non-nil.
	SendError error

	// Sent records every frame passed to SendAudio.
	Sent []audio.Blob

	// CallCountClose records how many times Close was called.
	CallCountClose int

	sentNotify chan struct{}
}

// NewSession returns an open session.
func NewSession() *Session {
	return &Session{events: make(chan live.Event, 64), sentNotify: make(chan struct{}, 64)}
}

// Push delivers a synthetic server event. It is a no-op after Close.
func (s *Session) Push(ev live.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}

// SendAudio implements [live.Session].
func (s *Session) SendAudio(_ context.Context, frame audio.Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.SendError != nil {
		return s.SendError
	}
	s.Sent = append(s.Sent, frame)
	select {
	case s.sentNotify <- struct{}{}:
	default:
	}
	return nil
}

// SentNotify receives a value after every successful SendAudio.
func (s *Session) SentNotify() <-chan struct{} { return s.sentNotify }

// SentFrames returns a copy of the frames sent so far.
func (s *Session) SentFrames() []audio.Blob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audio.Blob(nil), s.Sent...)
}

// SetSendError changes the error returned by SendAudio.
func (s *Session) SetSendError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendError = err
}

// Events implements [live.Session].
func (s *Session) Events() <-chan live.Event { return s.events }

// Close implements [live.Session].
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
