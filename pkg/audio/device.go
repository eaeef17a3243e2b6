package audio

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied is returned by a [Microphone] when the user refused
// access to the capture device.
var ErrPermissionDenied = errors.New("audio: microphone permission denied")

// Microphone opens capture streams. Implementations resample to the
// requested rate before delivering samples.
type Microphone interface {
	// Open starts capturing mono audio at sampleRate. It blocks until the
	// device is granted or refused.
	Open(ctx context.Context, sampleRate int) (CaptureStream, error)
}

// CaptureStream delivers captured sample buffers of arbitrary length.
type CaptureStream interface {
	// Samples returns the channel of captured buffers. It is closed when the
	// stream stops.
	Samples() <-chan []float32

	// Stop ends capture and releases the device. Idempotent.
	Stop() error
}

// OutputGraph is an owned playback context with its own clock.
type OutputGraph interface {
	// SampleRate is the fixed rate of the graph.
	SampleRate() int

	// Now returns the graph's current output time.
	Now() time.Duration

	// Schedule starts playing samples at the given graph time. A time in the
	// past starts immediately.
	Schedule(samples []float32, at time.Duration) Voice

	// Close stops every voice and releases the graph. Idempotent.
	Close() error
}

// Voice is one scheduled buffer on an [OutputGraph].
type Voice interface {
	// Stop silences the voice immediately. Idempotent.
	Stop()

	// Done is closed when the voice finishes playing or is stopped.
	Done() <-chan struct{}
}
