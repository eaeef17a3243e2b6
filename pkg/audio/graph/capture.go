package graph

import (
	"sync"

	"github.com/MrWong99/speakeasy/pkg/audio"
)

// BlockProcessor re-slices a capture stream of arbitrary buffer sizes into
// fixed-size blocks. Not safe for concurrent use.
type BlockProcessor struct {
	size int
	buf  []float32
	emit func(block []float32)
}

// NewBlockProcessor returns a processor that calls emit with every complete
// block of size samples. Each block is a fresh slice owned by the callee.
func NewBlockProcessor(size int, emit func(block []float32)) *BlockProcessor {
	if size <= 0 {
		size = audio.CaptureBlockSize
	}
	return &BlockProcessor{size: size, buf: make([]float32, 0, size), emit: emit}
}

// Write appends samples and emits every block that completes.
func (p *BlockProcessor) Write(samples []float32) {
	for len(samples) > 0 {
		n := min(p.size-len(p.buf), len(samples))
		p.buf = append(p.buf, samples[:n]...)
		samples = samples[n:]
		if len(p.buf) == p.size {
			block := p.buf
			p.buf = make([]float32, 0, p.size)
			p.emit(block)
		}
	}
}

// Pending returns the number of buffered samples not yet emitted.
func (p *BlockProcessor) Pending() int { return len(p.buf) }

// Capture connects a [audio.CaptureStream] to a [BlockProcessor] on its own
// goroutine.
type Capture struct {
	stream audio.CaptureStream
	proc   *BlockProcessor

	mu           sync.Mutex
	disconnected bool

	done chan struct{}
}

// StartCapture begins pumping stream into blocks of blockSize samples.
func StartCapture(stream audio.CaptureStream, blockSize int, onBlock func(block []float32)) *Capture {
	c := &Capture{stream: stream, done: make(chan struct{})}
	c.proc = NewBlockProcessor(blockSize, func(block []float32) {
		c.mu.Lock()
		off := c.disconnected
		c.mu.Unlock()
		if !off {
			onBlock(block)
		}
	})
	go c.pump()
	return c
}

func (c *Capture) pump() {
	defer close(c.done)
	for samples := range c.stream.Samples() {
		c.mu.Lock()
		off := c.disconnected
		c.mu.Unlock()
		if off {
			continue
		}
		c.proc.Write(samples)
	}
}

// Disconnect stops delivering blocks. Samples still arriving are discarded.
func (c *Capture) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

// Done is closed once the capture stream has ended and the pump exited.
func (c *Capture) Done() <-chan struct{} { return c.done }
