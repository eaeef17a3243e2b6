// Package bridge connects the daemon's audio pipeline to a browser tab over
// a websocket.
//
// The browser is a thin audio peer: it plays the PCM the daemon renders and,
// when asked, streams its microphone. A [Bridge] is at the same time the
// [audio.Microphone] handed to the tutor controller and the [graph.Sink] of
// the output graph.
//
// Wire protocol on a single websocket:
//
//   - binary, daemon → browser: rendered output, s16le mono at the output rate;
//   - binary, browser → daemon: microphone PCM, s16le at the rate and channel
//     count the browser announced when granting capture (mono by default);
//   - text, both directions: JSON [Control] messages.
//
// Control messages:
//
//	daemon → browser  {"type":"hello","rate":24000}     output format, sent on connect
//	daemon → browser  {"type":"capture","rate":16000}   please start the microphone
//	daemon → browser  {"type":"stop"}                   stop the microphone
//	browser → daemon  {"type":"granted","rate":48000}   capture started at rate
//	browser → daemon  {"type":"granted","rate":44100,"channels":2}
//	browser → daemon  {"type":"denied"}                 permission refused
//
// Only one browser peer is attached at a time; a new connection replaces the
// previous one.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/speakeasy/pkg/audio"
	"github.com/MrWong99/speakeasy/pkg/audio/graph"
)

// Compile-time interface assertions.
var (
	_ audio.Microphone = (*Bridge)(nil)
	_ graph.Sink       = (*Bridge)(nil)
	_ http.Handler     = (*Bridge)(nil)
)

// Control message types.
const (
	TypeHello   = "hello"
	TypeCapture = "capture"
	TypeStop    = "stop"
	TypeGranted = "granted"
	TypeDenied  = "denied"
)

var (
	// ErrNoPeer is returned by Open when no browser is connected.
	ErrNoPeer = errors.New("bridge: no browser audio peer connected")

	// ErrPeerGone is returned by Open when the browser disconnects while
	// capture is being negotiated.
	ErrPeerGone = errors.New("bridge: browser audio peer disconnected")
)

const (
	outboundBuffer = 64
	captureBuffer  = 32
)

// Control is a JSON control message.
type Control struct {
	Type string `json:"type"`
	Rate int    `json:"rate,omitempty"`
	// Channels is only set on granted replies; zero means mono.
	Channels int `json:"channels,omitempty"`
}

// Option configures a [Bridge].
type Option func(*Bridge)

// WithOriginPatterns sets the host patterns allowed to open the websocket
// from another origin, e.g. a dev frontend on another port.
func WithOriginPatterns(patterns ...string) Option {
	return func(b *Bridge) { b.origins = patterns }
}

// Bridge is the browser audio peer endpoint. It is safe for concurrent use.
type Bridge struct {
	outputRate int
	origins    []string

	mu      sync.Mutex
	peer    *peer
	capture *captureStream

	// dropped counts output frames discarded because the peer was slow.
	dropped int
}

// New creates a bridge that tells the browser to play output at outputRate.
func New(outputRate int, opts ...Option) *Bridge {
	b := &Bridge{outputRate: outputRate}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Connected reports whether a browser peer is attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peer != nil
}

// ── websocket endpoint ────────────────────────────────────────────────────────

// ServeHTTP upgrades the request to a websocket and serves the browser peer
// until either side closes the connection.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: b.origins})
	if err != nil {
		slog.Warn("bridge: websocket upgrade failed", "err", err)
		return
	}
	p := newPeer(conn)
	if prev := b.attach(p); prev != nil {
		// Close waits for the old tab to echo the close frame, which a frozen
		// tab never does. The new peer must not wait on it.
		go prev.conn.Close(websocket.StatusGoingAway, "replaced by a newer browser tab")
	}
	slog.Info("bridge: browser audio peer connected", "remote", r.RemoteAddr)

	p.send(controlMessage(Control{Type: TypeHello, Rate: b.outputRate}))

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error { return b.readLoop(ctx, p) })
	g.Go(func() error { return p.writeLoop(ctx) })
	err = g.Wait()

	b.detach(p)
	status := websocket.CloseStatus(err)
	if status == -1 && !errors.Is(err, context.Canceled) {
		slog.Warn("bridge: browser audio peer failed", "err", err)
	}
	conn.Close(websocket.StatusNormalClosure, "")
	slog.Info("bridge: browser audio peer disconnected", "remote", r.RemoteAddr)
}

func (b *Bridge) attach(p *peer) *peer {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.peer
	b.peer = p
	if b.capture != nil {
		b.capture.closeLocked()
		b.capture = nil
	}
	return prev
}

func (b *Bridge) detach(p *peer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p.closeOnce.Do(func() { close(p.done) })
	if b.peer != p {
		return
	}
	b.peer = nil
	if b.capture != nil {
		b.capture.closeLocked()
		b.capture = nil
	}
}

func (b *Bridge) readLoop(ctx context.Context, p *peer) error {
	for {
		typ, data, err := p.conn.Read(ctx)
		if err != nil {
			return err
		}
		switch typ {
		case websocket.MessageBinary:
			b.deliver(p, data)
		case websocket.MessageText:
			var c Control
			if err := json.Unmarshal(data, &c); err != nil {
				slog.Warn("bridge: ignoring malformed control message", "err", err)
				continue
			}
			switch c.Type {
			case TypeGranted, TypeDenied:
				select {
				case p.grants <- c:
				default:
					slog.Warn("bridge: unexpected capture reply", "type", c.Type)
				}
			default:
				slog.Debug("bridge: ignoring control message", "type", c.Type)
			}
		}
	}
}

// deliver converts one inbound microphone frame and hands it to the active
// capture stream.
func (b *Bridge) deliver(p *peer, pcm []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.capture
	if s == nil || b.peer != p {
		return
	}
	s.pushLocked(s.conv.Convert(pcm, s.src))
}

// ── audio.Microphone ──────────────────────────────────────────────────────────

// Open asks the browser to start its microphone and waits for the answer.
// A refusal is [audio.ErrPermissionDenied]. Samples are resampled to
// sampleRate. Opening again replaces the previous capture stream.
func (b *Bridge) Open(ctx context.Context, sampleRate int) (audio.CaptureStream, error) {
	b.mu.Lock()
	p := b.peer
	b.mu.Unlock()
	if p == nil {
		return nil, ErrNoPeer
	}

	// Discard a reply left over from an abandoned request.
	select {
	case <-p.grants:
	default:
	}
	p.send(controlMessage(Control{Type: TypeCapture, Rate: sampleRate}))

	var reply Control
	select {
	case reply = <-p.grants:
	case <-p.done:
		return nil, ErrPeerGone
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if reply.Type == TypeDenied {
		return nil, audio.ErrPermissionDenied
	}
	if reply.Rate <= 0 {
		return nil, fmt.Errorf("bridge: open: browser granted capture with invalid rate %d", reply.Rate)
	}
	channels := reply.Channels
	if channels <= 0 {
		channels = 1
	}

	s := &captureStream{
		b:    b,
		peer: p,
		src:  audio.Format{SampleRate: reply.Rate, Channels: channels},
		conv: &audio.Converter{Target: sampleRate},
		ch:   make(chan []float32, captureBuffer),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.peer != p {
		return nil, ErrPeerGone
	}
	if b.capture != nil {
		b.capture.closeLocked()
	}
	b.capture = s
	slog.Debug("bridge: capture started", "browser_format", s.src.String(), "rate", sampleRate)
	return s, nil
}

// ── graph.Sink ────────────────────────────────────────────────────────────────

// WriteSamples sends one rendered output frame to the browser. Without a
// peer the frame is discarded. A full outbound queue drops the frame rather
// than stalling the render loop.
func (b *Bridge) WriteSamples(samples []float32) error {
	b.mu.Lock()
	p := b.peer
	b.mu.Unlock()
	if p == nil {
		return nil
	}
	if !p.send(message{typ: websocket.MessageBinary, data: audio.EncodePCM16(samples)}) {
		b.mu.Lock()
		b.dropped++
		n := b.dropped
		b.mu.Unlock()
		if n%100 == 1 {
			slog.Warn("bridge: browser is not keeping up; dropping output frames", "dropped", n)
		}
	}
	return nil
}

// ── peer ──────────────────────────────────────────────────────────────────────

type message struct {
	typ  websocket.MessageType
	data []byte
}

func controlMessage(c Control) message {
	data, _ := json.Marshal(c)
	return message{typ: websocket.MessageText, data: data}
}

type peer struct {
	conn      *websocket.Conn
	out       chan message
	grants    chan Control
	done      chan struct{}
	closeOnce sync.Once
}

func newPeer(conn *websocket.Conn) *peer {
	return &peer{
		conn:   conn,
		out:    make(chan message, outboundBuffer),
		grants: make(chan Control, 1),
		done:   make(chan struct{}),
	}
}

// send queues m without blocking and reports whether it was queued.
func (p *peer) send(m message) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.out <- m:
		return true
	default:
		return false
	}
}

func (p *peer) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-p.out:
			if err := p.conn.Write(ctx, m.typ, m.data); err != nil {
				return err
			}
		}
	}
}

// ── capture stream ────────────────────────────────────────────────────────────

type captureStream struct {
	b      *Bridge
	peer   *peer
	src    audio.Format
	conv   *audio.Converter // guarded by b.mu
	ch     chan []float32
	closed bool // guarded by b.mu
}

// Samples implements [audio.CaptureStream].
func (s *captureStream) Samples() <-chan []float32 { return s.ch }

// Stop implements [audio.CaptureStream]. It tells the browser to release
// the microphone.
func (s *captureStream) Stop() error {
	s.b.mu.Lock()
	if s.closed {
		s.b.mu.Unlock()
		return nil
	}
	s.closeLocked()
	if s.b.capture == s {
		s.b.capture = nil
	}
	s.b.mu.Unlock()

	s.peer.send(controlMessage(Control{Type: TypeStop}))
	return nil
}

// pushLocked must be called with b.mu held.
func (s *captureStream) pushLocked(samples []float32) {
	if s.closed || len(samples) == 0 {
		return
	}
	select {
	case s.ch <- samples:
	default:
		slog.Warn("bridge: capture consumer is slow; dropping microphone frame", "samples", len(samples))
	}
}

// closeLocked must be called with b.mu held.
func (s *captureStream) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
