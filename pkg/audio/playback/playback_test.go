package playback_test

import (
	"testing"
	"time"

	"github.com/MrWong99/speakeasy/pkg/audio/graph"
	"github.com/MrWong99/speakeasy/pkg/audio/playback"
)

const rate = 1000 // 1 sample per millisecond keeps the arithmetic readable

func chunk(ms int) []float32 {
	s := make([]float32, ms)
	for i := range s {
		s[i] = 0.1
	}
	return s
}

func TestScheduler_GaplessBackToBack(t *testing.T) {
	t.Parallel()
	g := graph.New(rate)
	s := playback.New(g)

	durations := []int{120, 80, 200}
	var want time.Duration
	for i, d := range durations {
		got := s.Enqueue(chunk(d))
		if got != want {
			t.Errorf("chunk %d start = %v, want %v", i, got, want)
		}
		want += time.Duration(d) * time.Millisecond
	}
	if s.NextStart() != 400*time.Millisecond {
		t.Errorf("NextStart = %v, want 400ms", s.NextStart())
	}

	// Rendering the whole schedule produces continuous output with no gaps.
	out := g.Render(400)
	for i, v := range out {
		if v == 0 {
			t.Fatalf("gap at sample %d", i)
		}
		if v > 0.11 {
			t.Fatalf("overlap at sample %d: %v", i, v)
		}
	}
}

func TestScheduler_NeverSchedulesInThePast(t *testing.T) {
	t.Parallel()
	g := graph.New(rate)
	s := playback.New(g)

	s.Enqueue(chunk(50))
	g.Render(300) // clock well past the end of the first chunk
	if got := s.Enqueue(chunk(10)); got != 300*time.Millisecond {
		t.Errorf("start = %v, want 300ms", got)
	}
}

func TestScheduler_InterruptStopsEverythingAndResets(t *testing.T) {
	t.Parallel()
	g := graph.New(rate)
	stoppedCh := make(chan int, 1)
	s := playback.New(g, playback.WithInterruptHandler(func(n int) { stoppedCh <- n }))

	s.Enqueue(chunk(100))
	s.Enqueue(chunk(100))
	s.Enqueue(chunk(100))
	g.Render(50)

	if n := s.Interrupt(); n != 3 {
		t.Errorf("Interrupt stopped %d, want 3", n)
	}
	if n := <-stoppedCh; n != 3 {
		t.Errorf("handler got %d, want 3", n)
	}
	if s.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", s.Pending())
	}
	if s.NextStart() != 0 {
		t.Errorf("NextStart = %v, want 0", s.NextStart())
	}

	for i, v := range g.Render(250) {
		if v != 0 {
			t.Fatalf("sample %d = %v after interrupt, want silence", i, v)
		}
	}

	// Next chunk starts at the current time, not at a stale offset.
	now := g.Now()
	if got := s.Enqueue(chunk(10)); got != now {
		t.Errorf("post-interrupt start = %v, want %v", got, now)
	}
}

func TestScheduler_PendingDropsFinished(t *testing.T) {
	t.Parallel()
	g := graph.New(rate)
	s := playback.New(g)
	s.Enqueue(chunk(10))
	s.Enqueue(chunk(10))
	g.Render(15)
	if s.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", s.Pending())
	}
}

func TestScheduler_CloseIgnoresLaterChunks(t *testing.T) {
	t.Parallel()
	g := graph.New(rate)
	s := playback.New(g)
	s.Enqueue(chunk(10))
	s.Close()
	s.Close()
	s.Enqueue(chunk(10))
	if s.Pending() != 0 {
		t.Errorf("Pending = %d after Close, want 0", s.Pending())
	}
}
