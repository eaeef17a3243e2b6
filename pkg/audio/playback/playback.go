// Package playback sequences decoded speech buffers on an output graph so
// that consecutive chunks play back to back without gaps or overlap, and
// cancels everything at once when the user barges in.
package playback

import (
	"sync"
	"time"

	"github.com/MrWong99/speakeasy/pkg/audio"
)

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithInterruptHandler registers fn to be called after every Interrupt with
// the number of voices that were stopped. Last writer wins.
func WithInterruptHandler(fn func(stopped int)) Option {
	return func(s *Scheduler) { s.onInterrupt = fn }
}

// Scheduler places audio chunks on an [audio.OutputGraph].
//
// Each chunk starts at max(nextStart, graph.Now()) and nextStart advances by
// the chunk's duration. Interrupt stops every tracked voice and resets
// nextStart to zero, so the next chunk starts at the current graph time.
//
// All methods are safe for concurrent use; Enqueue and Interrupt are
// serialised by the same lock.
type Scheduler struct {
	graph       audio.OutputGraph
	onInterrupt func(int)

	mu        sync.Mutex
	nextStart time.Duration
	voices    map[audio.Voice]struct{}
	closed    bool
}

// New creates a Scheduler playing on g.
func New(g audio.OutputGraph, opts ...Option) *Scheduler {
	s := &Scheduler{
		graph:  g,
		voices: make(map[audio.Voice]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enqueue schedules samples (at the graph's rate) and returns the start time
// it was given. After Close it returns the current graph time and plays
// nothing.
func (s *Scheduler) Enqueue(samples []float32) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.graph.Now()
	if s.closed {
		return now
	}
	s.pruneLocked()

	start := max(s.nextStart, now)
	v := s.graph.Schedule(samples, start)
	s.voices[v] = struct{}{}
	s.nextStart = start + audio.Duration(len(samples), s.graph.SampleRate())
	return start
}

// Interrupt stops every scheduled or playing chunk and resets the schedule.
// It returns the number of voices stopped.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	n := len(s.voices)
	for v := range s.voices {
		v.Stop()
		delete(s.voices, v)
	}
	s.nextStart = 0
	fn := s.onInterrupt
	s.mu.Unlock()

	if fn != nil {
		fn(n)
	}
	return n
}

// Pending returns the number of chunks that have not finished playing.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	return len(s.voices)
}

// NextStart returns the time at which the next chunk would start if the graph
// clock did not advance.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// Close stops all chunks. Later Enqueue calls are ignored. Idempotent.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for v := range s.voices {
		v.Stop()
		delete(s.voices, v)
	}
}

// pruneLocked drops voices that have already finished.
func (s *Scheduler) pruneLocked() {
	for v := range s.voices {
		select {
		case <-v.Done():
			delete(s.voices, v)
		default:
		}
	}
}
