package tone_test

import (
	"math"
	"testing"
	"time"

	"github.com/MrWong99/speakeasy/pkg/audio/graph"
	"github.com/MrWong99/speakeasy/pkg/audio/tone"
)

func TestCue_Tones(t *testing.T) {
	t.Parallel()
	tests := []struct {
		cue   tone.Cue
		freqs []float64
		waves []tone.Waveform
		total time.Duration
	}{
		{tone.Connect, []float64{523.25, 659.25}, []tone.Waveform{tone.Sine, tone.Sine}, 200 * time.Millisecond},
		{tone.Error, []float64{150}, []tone.Waveform{tone.Square}, 300 * time.Millisecond},
		{tone.Message, []float64{880}, []tone.Waveform{tone.Triangle}, 50 * time.Millisecond},
		{tone.Goal, []float64{1046.5, 1318.51}, []tone.Waveform{tone.Triangle, tone.Triangle}, 250 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.cue.String(), func(t *testing.T) {
			t.Parallel()
			tones := tt.cue.Tones()
			if len(tones) != len(tt.freqs) {
				t.Fatalf("tones = %d, want %d", len(tones), len(tt.freqs))
			}
			var total time.Duration
			for i, tn := range tones {
				if tn.Frequency != tt.freqs[i] || tn.Wave != tt.waves[i] {
					t.Errorf("tone %d = %+v", i, tn)
				}
				total = max(total, tn.Offset+tn.Duration)
			}
			if total != tt.total {
				t.Errorf("total = %v, want %v", total, tt.total)
			}
		})
	}
}

func TestEnvelope(t *testing.T) {
	t.Parallel()
	d := 100 * time.Millisecond
	if got := tone.Envelope(0, d); math.Abs(got-0.0001) > 1e-9 {
		t.Errorf("Envelope(0) = %v, want 0.0001", got)
	}
	if got := tone.Envelope(20*time.Millisecond, d); math.Abs(got-0.3) > 1e-9 {
		t.Errorf("Envelope(attack) = %v, want 0.3", got)
	}
	if got := tone.Envelope(d, d); got != 0 {
		t.Errorf("Envelope(end) = %v, want 0", got)
	}
	if tone.Envelope(60*time.Millisecond, d) >= tone.Envelope(40*time.Millisecond, d) {
		t.Error("envelope should decay after the attack")
	}
}

func TestRender_LengthAndPeak(t *testing.T) {
	t.Parallel()
	buf := tone.Render(tone.Goal.Tones(), 24000)
	if len(buf) != 6000 {
		t.Fatalf("len = %d, want 6000", len(buf))
	}
	var peak float64
	for _, s := range buf {
		peak = max(peak, math.Abs(float64(s)))
	}
	if peak > 0.3+1e-6 || peak < 0.1 {
		t.Errorf("peak = %v, want within (0.1, 0.3]", peak)
	}
}

func TestPlayer_PlaySchedulesNow(t *testing.T) {
	t.Parallel()
	g := graph.New(24000)
	p := tone.NewPlayer(g)
	g.Render(100)
	p.Play(tone.Message)
	if g.Active() != 1 {
		t.Fatalf("Active = %d, want 1", g.Active())
	}
	out := g.Render(1200)
	var energy float64
	for _, s := range out {
		energy += float64(s * s)
	}
	if energy == 0 {
		t.Error("expected audible output from message cue")
	}
	if g.Active() != 0 {
		t.Errorf("Active = %d after cue ended, want 0", g.Active())
	}
}

func TestPlayer_PlayPCMRejectsOddBytes(t *testing.T) {
	t.Parallel()
	p := tone.NewPlayer(graph.New(24000))
	if _, err := p.PlayPCM([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for malformed PCM")
	}
	if _, err := p.PlayPCM([]byte{0, 0x40}); err != nil {
		t.Errorf("PlayPCM: %v", err)
	}
}
