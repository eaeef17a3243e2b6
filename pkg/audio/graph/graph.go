// Package graph implements a software audio output context and the capture
// side block processor.
//
// A [Graph] owns a sample clock. Voices are scheduled against that clock and
// mixed into mono float frames whenever the graph renders, either driven by
// [Graph.Run] in real time or by explicit [Graph.Render] calls in tests.
// Rendered frames are handed to a [Sink], typically the browser bridge.
package graph

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/speakeasy/pkg/audio"
)

var _ audio.OutputGraph = (*Graph)(nil)

// Sink receives rendered output frames.
type Sink interface {
	WriteSamples(samples []float32) error
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(samples []float32) error

// WriteSamples calls f.
func (f SinkFunc) WriteSamples(samples []float32) error { return f(samples) }

// DefaultPeriod is the render quantum used by [Graph.Run].
const DefaultPeriod = 20 * time.Millisecond

// Option configures a [Graph].
type Option func(*Graph)

// WithGain scales every rendered sample. The default is 1.
func WithGain(g float32) Option {
	return func(gr *Graph) { gr.gain = g }
}

// WithSink sets the destination of rendered frames.
func WithSink(s Sink) Option {
	return func(gr *Graph) { gr.sink = s }
}

// Graph is a mono output context at a fixed sample rate.
// All methods are safe for concurrent use.
type Graph struct {
	rate int
	gain float32
	sink Sink

	mu     sync.Mutex
	pos    int64 // samples rendered so far
	voices map[*voice]struct{}
	closed bool

	warnSink sync.Once
}

// New creates a graph running at rate.
func New(rate int, opts ...Option) *Graph {
	g := &Graph{
		rate:   rate,
		gain:   1,
		voices: make(map[*voice]struct{}),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// SampleRate implements [audio.OutputGraph].
func (g *Graph) SampleRate() int { return g.rate }

// Now implements [audio.OutputGraph].
func (g *Graph) Now() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return audio.Duration(int(g.pos), g.rate)
}

// Schedule implements [audio.OutputGraph].
func (g *Graph) Schedule(samples []float32, at time.Duration) audio.Voice {
	return g.schedule(nil, samples, at)
}

func (g *Graph) schedule(owner *Child, samples []float32, at time.Duration) audio.Voice {
	v := &voice{g: g, owner: owner, samples: samples, done: make(chan struct{})}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || len(samples) == 0 || (owner != nil && owner.closed) {
		v.finishLocked()
		return v
	}
	v.start = max(g.toSamples(at), g.pos)
	g.voices[v] = struct{}{}
	return v
}

// Active returns the number of voices that are scheduled or playing.
func (g *Graph) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.voices)
}

// Render advances the clock by n samples and returns the mixed frame. The
// frame is also written to the sink when one is configured.
func (g *Graph) Render(n int) []float32 {
	if n <= 0 {
		return nil
	}
	out := make([]float32, n)

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return out
	}
	from, to := g.pos, g.pos+int64(n)
	for v := range g.voices {
		end := v.start + int64(len(v.samples))
		if v.start < to && end > from {
			lo := max(v.start, from)
			hi := min(end, to)
			for i := lo; i < hi; i++ {
				out[i-from] += v.samples[i-v.start]
			}
		}
		if end <= to {
			v.finishLocked()
		}
	}
	g.pos = to
	sink := g.sink
	g.mu.Unlock()

	for i, s := range out {
		s *= g.gain
		out[i] = min(max(s, -1), 1)
	}

	if sink != nil {
		if err := sink.WriteSamples(out); err != nil {
			g.warnSink.Do(func() {
				slog.Warn("audio graph: sink write failed", "err", err)
			})
		}
	}
	return out
}

// Run renders in real time until ctx is cancelled or the graph is closed.
func (g *Graph) Run(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		period = DefaultPeriod
	}
	perTick := int(int64(g.rate) * int64(period) / int64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if g.isClosed() {
				return nil
			}
			g.Render(perTick)
		}
	}
}

// Close implements [audio.OutputGraph].
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	for v := range g.voices {
		v.finishLocked()
	}
	return nil
}

func (g *Graph) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

func (g *Graph) toSamples(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return (int64(d)*int64(g.rate) + int64(time.Second)/2) / int64(time.Second)
}

// ── voice ─────────────────────────────────────────────────────────────────────

type voice struct {
	g       *Graph
	owner   *Child
	samples []float32
	start   int64
	done    chan struct{}
	ended   bool
}

// Stop implements [audio.Voice].
func (v *voice) Stop() {
	v.g.mu.Lock()
	defer v.g.mu.Unlock()
	v.finishLocked()
}

// Done implements [audio.Voice].
func (v *voice) Done() <-chan struct{} { return v.done }

// finishLocked must be called with g.mu held.
func (v *voice) finishLocked() {
	if v.ended {
		return
	}
	v.ended = true
	delete(v.g.voices, v)
	close(v.done)
}
