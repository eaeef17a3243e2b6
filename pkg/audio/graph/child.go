package graph

import (
	"time"

	"github.com/MrWong99/speakeasy/pkg/audio"
)

var _ audio.OutputGraph = (*Child)(nil)

// Child is a view of a [Graph] that shares its clock and sink but owns its
// voices. Closing a child stops only the voices scheduled through it, so a
// live session can own "its" output graph while cues keep playing on the
// parent.
type Child struct {
	g      *Graph
	closed bool // guarded by g.mu
}

// Child returns a new child view of g.
func (g *Graph) Child() *Child { return &Child{g: g} }

// SampleRate implements [audio.OutputGraph].
func (c *Child) SampleRate() int { return c.g.rate }

// Now implements [audio.OutputGraph].
func (c *Child) Now() time.Duration { return c.g.Now() }

// Schedule implements [audio.OutputGraph]. Voices scheduled after Close end
// immediately.
func (c *Child) Schedule(samples []float32, at time.Duration) audio.Voice {
	return c.g.schedule(c, samples, at)
}

// Close stops every voice of this child. The parent keeps running.
// Idempotent.
func (c *Child) Close() error {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for v := range c.g.voices {
		if v.owner == c {
			v.finishLocked()
		}
	}
	return nil
}
