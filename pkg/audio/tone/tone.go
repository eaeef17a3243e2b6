// Package tone synthesises the short alert cues played on session events and
// plays arbitrary PCM payloads (spoken vocabulary words) on an output graph.
package tone

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/MrWong99/speakeasy/pkg/audio"
)

// Waveform selects the oscillator shape of a [Tone].
type Waveform int

const (
	Sine Waveform = iota
	Square
	Triangle
)

// String returns the oscillator name.
func (w Waveform) String() string {
	switch w {
	case Sine:
		return "sine"
	case Square:
		return "square"
	case Triangle:
		return "triangle"
	default:
		return fmt.Sprintf("Waveform(%d)", int(w))
	}
}

// Tone is one enveloped oscillator burst within a cue.
type Tone struct {
	Frequency float64
	Duration  time.Duration
	Offset    time.Duration
	Wave      Waveform
}

// Cue identifies one of the fixed alert sounds.
type Cue int

const (
	// Connect is a rising C5-E5 pair played when a session opens.
	Connect Cue = iota
	// Error is a low buzz.
	Error
	// Message is a short blip played when a turn is finalised.
	Message
	// Goal is a C6-E6 chime played when a goal is completed.
	Goal
)

// String returns the cue name used in logs.
func (c Cue) String() string {
	switch c {
	case Connect:
		return "connect"
	case Error:
		return "error"
	case Message:
		return "message"
	case Goal:
		return "goal"
	default:
		return fmt.Sprintf("Cue(%d)", int(c))
	}
}

// Tones returns the tone sequence of c.
func (c Cue) Tones() []Tone {
	switch c {
	case Connect:
		return []Tone{
			{Frequency: 523.25, Duration: 100 * time.Millisecond, Wave: Sine},
			{Frequency: 659.25, Duration: 100 * time.Millisecond, Offset: 100 * time.Millisecond, Wave: Sine},
		}
	case Error:
		return []Tone{{Frequency: 150, Duration: 300 * time.Millisecond, Wave: Square}}
	case Message:
		return []Tone{{Frequency: 880, Duration: 50 * time.Millisecond, Wave: Triangle}}
	case Goal:
		return []Tone{
			{Frequency: 1046.50, Duration: 100 * time.Millisecond, Wave: Triangle},
			{Frequency: 1318.51, Duration: 150 * time.Millisecond, Offset: 100 * time.Millisecond, Wave: Triangle},
		}
	}
	return nil
}

const (
	envelopeFloor  = 0.0001
	envelopePeak   = 0.3
	envelopeAttack = 20 * time.Millisecond
)

// Envelope returns the gain at time t into a tone of length d: an
// exponential rise from 0.0001 to 0.3 over 20ms followed by an exponential
// fall back to 0.0001 at d.
func Envelope(t, d time.Duration) float64 {
	if t < 0 || t >= d {
		return 0
	}
	if t < envelopeAttack {
		return expRamp(envelopeFloor, envelopePeak, t.Seconds()/envelopeAttack.Seconds())
	}
	decay := d - envelopeAttack
	if decay <= 0 {
		return envelopePeak
	}
	return expRamp(envelopePeak, envelopeFloor, (t - envelopeAttack).Seconds()/decay.Seconds())
}

func expRamp(from, to, frac float64) float64 {
	return from * math.Pow(to/from, frac)
}

func oscillate(w Waveform, phase float64) float64 {
	// phase in cycles, [0, 1)
	switch w {
	case Square:
		if phase < 0.5 {
			return 1
		}
		return -1
	case Triangle:
		return 1 - 4*math.Abs(phase-0.5)
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// Render synthesises the tones into one mono buffer at rate.
func Render(tones []Tone, rate int) []float32 {
	var total time.Duration
	for _, t := range tones {
		total = max(total, t.Offset+t.Duration)
	}
	out := make([]float32, samplesFor(total, rate))
	for _, t := range tones {
		start := samplesFor(t.Offset, rate)
		n := samplesFor(t.Duration, rate)
		for i := 0; i < n && start+i < len(out); i++ {
			at := time.Duration(float64(i) / float64(rate) * float64(time.Second))
			_, phase := math.Modf(t.Frequency * float64(i) / float64(rate))
			out[start+i] += float32(oscillate(t.Wave, phase) * Envelope(at, t.Duration))
		}
	}
	return out
}

func samplesFor(d time.Duration, rate int) int {
	return int(int64(d) * int64(rate) / int64(time.Second))
}

// Player plays cues and PCM payloads on an owned output graph.
type Player struct {
	graph audio.OutputGraph
}

// NewPlayer returns a Player that schedules on g.
func NewPlayer(g audio.OutputGraph) *Player {
	return &Player{graph: g}
}

// Play schedules cue to start at the graph's current time.
func (p *Player) Play(c Cue) audio.Voice {
	return p.graph.Schedule(Render(c.Tones(), p.graph.SampleRate()), p.graph.Now())
}

// PlayPCM decodes little-endian int16 PCM at [audio.OutputSampleRate] and
// plays it immediately.
func (p *Player) PlayPCM(pcm []byte) (audio.Voice, error) {
	samples, err := audio.DecodeFrame(pcm, audio.OutputSampleRate, p.graph.SampleRate(), 1)
	if err != nil {
		slog.Warn("tone: dropping undecodable pcm", "bytes", len(pcm), "err", err)
		return nil, err
	}
	return p.graph.Schedule(samples, p.graph.Now()), nil
}
